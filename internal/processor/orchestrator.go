/**
 * Batch Orchestrator
 *
 * Drives a full run: discover page images, skip pages already cached, process
 * the rest on a bounded worker pool, persist the cache, and report a summary.
 *
 * Concurrency model: up to PageConcurrency pages run in parallel; within a
 * page all stages are sequential. The speaker roster is shared across the
 * pool, so classification on concurrent pages sees names discovered by the
 * others (interleaving is last-write-wins and only affects prompt hints,
 * never correctness).
 *
 * Failure policy: a failed page is recorded and the run continues; only a
 * missing or unreadable input directory aborts the run.
 */

package processor

import (
	"context"
	stderrors "errors"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dougiefresh49/comic-reader/internal/config"
	"github.com/dougiefresh49/comic-reader/internal/errors"
	"github.com/dougiefresh49/comic-reader/internal/storage"
)

// pageExtensions are the image formats accepted as pages.
var pageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".webp": true,
}

// RunSummary is the outcome of one batch run
type RunSummary struct {
	RunID            string   `json:"runId"`
	Pages            int      `json:"pages"`
	Processed        int      `json:"processed"`
	Cached           int      `json:"cached"`
	Failed           int      `json:"failed"`
	Bubbles          int      `json:"bubbles"`
	ClassifyFailures int      `json:"classifyFailures"`
	FailedPages      []string `json:"failedPages,omitempty"`
	Duration         string   `json:"duration"`
}

// StatusFunc receives page state transitions, e.g. for progress events.
type StatusFunc func(runID, page string, state PageState)

// BatchProcessor orchestrates a run over a directory of pages
type BatchProcessor struct {
	cfg       *config.Config
	pages     *PageProcessor
	store     *storage.StorageManager
	embedder  *EmbeddingClient // nil disables dialogue indexing
	OnStatus  StatusFunc       // optional
}

// NewBatchProcessor wires the orchestrator. embedder may be nil.
func NewBatchProcessor(cfg *config.Config, pages *PageProcessor, store *storage.StorageManager, embedder *EmbeddingClient) *BatchProcessor {
	return &BatchProcessor{
		cfg:      cfg,
		pages:    pages,
		store:    store,
		embedder: embedder,
	}
}

// ProcessRun processes every page image under inputDir. Pages already in the
// cache are skipped; the cache is persisted once at the end of the batch even
// when some pages failed, so completed work survives.
func (b *BatchProcessor) ProcessRun(ctx context.Context, runID, inputDir string) (*RunSummary, error) {
	start := time.Now()
	if runID == "" {
		runID = uuid.New().String()
	}

	pageNames, err := listPages(inputDir)
	if err != nil {
		return nil, err
	}

	log.Printf("[Run %s] Starting: %d pages in %s, concurrency %d, %d already cached",
		runID, len(pageNames), inputDir, b.cfg.PageConcurrency, b.store.Cache.Len())

	summary := &RunSummary{RunID: runID, Pages: len(pageNames)}
	roster := NewSpeakerRoster()

	var mu sync.Mutex // guards summary and cache writes
	var wg sync.WaitGroup
	sem := make(chan struct{}, b.cfg.PageConcurrency)

	for _, pageName := range pageNames {
		if b.store.Cache.Has(pageName) {
			log.Printf("[Page %s] Cached, skipping", pageName)
			b.emitStatus(runID, pageName, StateSkipped)
			summary.Cached++
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(pageName string) {
			defer wg.Done()
			defer func() { <-sem }()

			b.processOne(ctx, runID, pageName, filepath.Join(inputDir, pageName), roster, summary, &mu)
		}(pageName)
	}

	wg.Wait()

	if err := b.store.Cache.Save(); err != nil {
		return nil, errors.NewStorageFailedError("", err)
	}

	summary.Duration = time.Since(start).Round(time.Millisecond).String()
	log.Printf("[Run %s] Complete in %s: %d processed, %d cached, %d failed, %d bubbles, %d classification failures",
		runID, summary.Duration, summary.Processed, summary.Cached, summary.Failed,
		summary.Bubbles, summary.ClassifyFailures)

	if roster.Len() > 0 {
		log.Printf("[Run %s] Speakers discovered: %s", runID, strings.Join(roster.Names(), ", "))
	}

	return summary, nil
}

// processOne runs a single page end to end, recording its outcome.
func (b *BatchProcessor) processOne(ctx context.Context, runID, pageName, pagePath string, roster *SpeakerRoster, summary *RunSummary, mu *sync.Mutex) {
	pageStart := time.Now()

	// Intermediate states (detecting, transcribing, classifying) surface
	// from inside the pipeline; terminal states are emitted here.
	result, err := b.pages.ProcessPage(ctx, pageName, pagePath, roster, func(page string, state PageState) {
		b.emitStatus(runID, page, state)
	})
	if err != nil {
		log.Printf("[Page %s] Failed: %v", pageName, err)
		b.emitStatus(runID, pageName, StateFailed)
		b.recordPage(ctx, runID, pageName, string(StateFailed), nil, err, time.Since(pageStart))

		mu.Lock()
		summary.Failed++
		summary.FailedPages = append(summary.FailedPages, pageName)
		mu.Unlock()
		return
	}

	mu.Lock()
	cacheErr := b.store.Cache.Put(pageName, result.Bubbles, result.ClassifyFailures)
	summary.Processed++
	summary.Bubbles += len(result.Bubbles)
	summary.ClassifyFailures += result.ClassifyFailures
	mu.Unlock()

	if cacheErr != nil {
		log.Printf("[Page %s] Warning: failed to cache result: %v", pageName, cacheErr)
	}

	b.emitStatus(runID, pageName, StateCached)
	b.recordPage(ctx, runID, pageName, string(StateCached), result, nil, time.Since(pageStart))
	b.indexDialogue(ctx, pageName, result.Bubbles)
}

// recordPage writes the optional run-store row for a page outcome.
func (b *BatchProcessor) recordPage(ctx context.Context, runID, pageName, status string, result *PageResult, pageErr error, elapsed time.Duration) {
	rec := &storage.PageRecord{
		RunID:            runID,
		Page:             pageName,
		Status:           status,
		ProcessingTimeMs: elapsed.Milliseconds(),
	}

	if result != nil {
		rec.BubbleCount = len(result.Bubbles)
		rec.SkippedCount = len(result.Skipped)
		rec.ClassifyFailures = result.ClassifyFailures
		rec.Metadata = map[string]interface{}{
			"raw_detections": result.RawDetections,
		}
	}

	if pageErr != nil {
		var perr *errors.PipelineError
		if stderrors.As(pageErr, &perr) {
			rec.ErrorCode = string(perr.Code)
			rec.ErrorMessage = perr.Message
		} else {
			rec.ErrorMessage = pageErr.Error()
		}
	}

	b.store.RecordPage(ctx, rec)
}

// indexDialogue embeds and indexes a page's bubble texts when both the
// embedder and the Qdrant index are configured. Best-effort.
func (b *BatchProcessor) indexDialogue(ctx context.Context, pageName string, bubbles []Bubble) {
	if b.embedder == nil || !b.store.HasDialogueIndex() || len(bubbles) == 0 {
		return
	}

	texts := make([]string, len(bubbles))
	for i, bubble := range bubbles {
		texts[i] = bubble.Text
	}

	vectors, err := b.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		log.Printf("[Page %s] Warning: failed to embed dialogue: %v", pageName, err)
		return
	}

	for i, bubble := range bubbles {
		speaker := ""
		if bubble.Speaker != nil {
			speaker = *bubble.Speaker
		}

		b.store.IndexDialogue(ctx, &storage.DialoguePoint{
			ID:     uuid.NewSHA1(uuid.NameSpaceOID, []byte(bubble.ID)).String(),
			Vector: vectors[i],
			Metadata: map[string]interface{}{
				"page":      pageName,
				"bubble_id": bubble.ID,
				"speaker":   speaker,
				"type":      string(bubble.Type),
				"text":      bubble.Text,
			},
		})
	}
}

func (b *BatchProcessor) emitStatus(runID, page string, state PageState) {
	if b.OnStatus != nil {
		b.OnStatus(runID, page, state)
	}
}

// listPages returns the base names of all page images in dir, sorted
// lexicographically. Pages are expected to be zero-padded (page-01.png) so
// lexicographic order is reading order.
func listPages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.NewInputError(dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasPrefix(name, "page-") {
			continue
		}
		if pageExtensions[strings.ToLower(filepath.Ext(name))] {
			names = append(names, name)
		}
	}

	if len(names) == 0 {
		return nil, errors.NewInputError(dir, os.ErrNotExist)
	}

	sort.Strings(names)
	return names, nil
}

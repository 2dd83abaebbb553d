package processor

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/dougiefresh49/comic-reader/internal/clients"
	"github.com/dougiefresh49/comic-reader/internal/storage"
)

// lockedVision is a pipelineVision safe for concurrent pages.
type lockedVision struct {
	mu sync.Mutex
	pipelineVision
}

func (v *lockedVision) Transcribe(ctx context.Context, cropData []byte) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.pipelineVision.Transcribe(ctx, cropData)
}

func (v *lockedVision) Classify(ctx context.Context, pageImage []byte, prompt string) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.pipelineVision.Classify(ctx, pageImage, prompt)
}

func newTestStore(t *testing.T, cachePath string) *storage.StorageManager {
	t.Helper()
	store, err := storage.NewStorageManager(cachePath, "", "", "")
	if err != nil {
		t.Fatalf("failed to init storage: %v", err)
	}
	return store
}

func TestProcessRunAndResume(t *testing.T) {
	inputDir := t.TempDir()
	writeTestPage(t, inputDir, "page-01.png")
	writeTestPage(t, inputDir, "page-02.png")
	cachePath := filepath.Join(t.TempDir(), "bubbles.json")

	detector := &fakeDetector{
		detections: []clients.WireDetection{
			{XCenter: 400, YCenter: 600, Width: 100, Height: 60, Confidence: 0.9},
		},
	}
	vision := &lockedVision{pipelineVision: pipelineVision{
		transcriptions: []string{"FIRST", "SECOND"},
		classifications: []string{
			`{"type": "SPEECH", "speaker": "Mia", "emotion": "happy"}`,
			`{"type": "SPEECH", "speaker": "Ren", "emotion": "calm"}`,
		},
	}}

	cfg := testConfig()
	store := newTestStore(t, cachePath)
	batch := NewBatchProcessor(cfg, NewPageProcessor(cfg, detector, vision), store, nil)

	summary, err := batch.ProcessRun(context.Background(), "run-1", inputDir)
	if err != nil {
		t.Fatalf("ProcessRun failed: %v", err)
	}
	if summary.Pages != 2 || summary.Processed != 2 || summary.Cached != 0 || summary.Failed != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if summary.Bubbles != 2 {
		t.Errorf("expected 2 bubbles total, got %d", summary.Bubbles)
	}

	// Resume with a fresh store over the same cache file: every page is
	// already cached, so no service call happens at all.
	vision2 := &lockedVision{} // would error on any call
	store2 := newTestStore(t, cachePath)
	batch2 := NewBatchProcessor(cfg, NewPageProcessor(cfg, detector, vision2), store2, nil)

	resumed, err := batch2.ProcessRun(context.Background(), "run-2", inputDir)
	if err != nil {
		t.Fatalf("resumed run failed: %v", err)
	}
	if resumed.Processed != 0 || resumed.Cached != 2 {
		t.Fatalf("resume must skip cached pages: %+v", resumed)
	}
}

func TestProcessRunContinuesPastFailedPages(t *testing.T) {
	inputDir := t.TempDir()
	writeTestPage(t, inputDir, "page-01.png")
	writeTestPage(t, inputDir, "page-02.png")
	cachePath := filepath.Join(t.TempDir(), "bubbles.json")

	detector := &fakeDetector{err: fmt.Errorf("detector down")}
	cfg := testConfig()
	store := newTestStore(t, cachePath)
	batch := NewBatchProcessor(cfg, NewPageProcessor(cfg, detector, &lockedVision{}), store, nil)

	summary, err := batch.ProcessRun(context.Background(), "run-1", inputDir)
	if err != nil {
		t.Fatalf("page failures must not fail the run: %v", err)
	}
	if summary.Failed != 2 {
		t.Errorf("expected 2 failed pages, got %d", summary.Failed)
	}
	if len(summary.FailedPages) != 2 {
		t.Errorf("failed pages must be listed: %v", summary.FailedPages)
	}
}

func TestProcessRunMissingInputDirIsFatal(t *testing.T) {
	cachePath := filepath.Join(t.TempDir(), "bubbles.json")
	cfg := testConfig()
	store := newTestStore(t, cachePath)
	batch := NewBatchProcessor(cfg, NewPageProcessor(cfg, &fakeDetector{}, &lockedVision{}), store, nil)

	if _, err := batch.ProcessRun(context.Background(), "run-1", "/nonexistent/pages"); err == nil {
		t.Fatal("missing input directory must abort the run")
	}
}

func TestProcessRunEmitsPageStates(t *testing.T) {
	inputDir := t.TempDir()
	writeTestPage(t, inputDir, "page-01.png")
	cachePath := filepath.Join(t.TempDir(), "bubbles.json")

	detector := &fakeDetector{
		detections: []clients.WireDetection{
			{XCenter: 400, YCenter: 600, Width: 100, Height: 60, Confidence: 0.9},
		},
	}
	vision := &lockedVision{pipelineVision: pipelineVision{
		transcriptions:  []string{"HI"},
		classifications: []string{`{"type": "SPEECH", "speaker": "Mia", "emotion": "happy"}`},
	}}

	cfg := testConfig()
	store := newTestStore(t, cachePath)
	batch := NewBatchProcessor(cfg, NewPageProcessor(cfg, detector, vision), store, nil)

	var mu sync.Mutex
	var states []PageState
	batch.OnStatus = func(runID, page string, state PageState) {
		mu.Lock()
		states = append(states, state)
		mu.Unlock()
	}

	if _, err := batch.ProcessRun(context.Background(), "run-1", inputDir); err != nil {
		t.Fatalf("ProcessRun failed: %v", err)
	}

	want := []PageState{StateDetecting, StateTranscribing, StateClassifying, StateCached}
	if len(states) != len(want) {
		t.Fatalf("expected %d state transitions, got %v", len(want), states)
	}
	for i, state := range want {
		if states[i] != state {
			t.Errorf("state %d: expected %s, got %s (full sequence %v)", i, state, states[i], states)
		}
	}
}

/**
 * Page Processor - Single-page bubble extraction pipeline
 *
 * Runs one page through the fixed stage order:
 *   detect → convert/clamp → spatial dedup → container filter →
 *   transcribe → text dedup → classify → ID assignment
 *
 * A detection failure aborts only this page; downstream stage failures are
 * absorbed per-region (fail-open) and surfaced through counters. Bubble IDs
 * are assigned after all filtering, in survival order, so they are dense per
 * page.
 */

package processor

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"log"
	"os"
	"time"

	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"github.com/dougiefresh49/comic-reader/internal/clients"
	"github.com/dougiefresh49/comic-reader/internal/config"
	"github.com/dougiefresh49/comic-reader/internal/errors"
	"github.com/dougiefresh49/comic-reader/internal/geometry"
)

// PageProcessor extracts classified bubbles from a single page image
type PageProcessor struct {
	detector    RegionDetector
	transcriber *Transcriber
	classifier  *Classifier
	debug       *DebugWriter

	spatialDedupEnable bool
	spatialDedupTol    float64
}

// NewPageProcessor wires the pipeline stages from configuration.
func NewPageProcessor(cfg *config.Config, detector RegionDetector, vision VisionModel) *PageProcessor {
	var fallback *TesseractOCR
	if cfg.TesseractEnabled {
		fallback = NewTesseractOCR(nil)
	}

	return &PageProcessor{
		detector:           detector,
		transcriber:        NewTranscriber(vision, fallback, cfg.AuditDir),
		classifier:         NewClassifier(vision, time.Duration(cfg.ClassifyDelayMs)*time.Millisecond),
		debug:              NewDebugWriter(cfg.DebugDir),
		spatialDedupEnable: cfg.SpatialDedupEnable,
		spatialDedupTol:    cfg.SpatialDedupTol,
	}
}

// StateFunc receives a page's state transitions as the pipeline advances.
type StateFunc func(page string, state PageState)

// ProcessPage runs the full pipeline for one page image file. pageName is the
// file's base name and keys the cache entry; roster is the shared per-run
// speaker roster. onState may be nil.
func (p *PageProcessor) ProcessPage(ctx context.Context, pageName, pagePath string, roster *SpeakerRoster, onState StateFunc) (*PageResult, error) {
	start := time.Now()
	emit := func(state PageState) {
		log.Printf("[Page %s] State: %s", pageName, state)
		if onState != nil {
			onState(pageName, state)
		}
	}

	imageData, err := os.ReadFile(pagePath)
	if err != nil {
		return nil, errors.NewInputError(fmt.Sprintf("cannot read page %s", pageName), err)
	}

	pageImage, format, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		return nil, errors.NewInputError(fmt.Sprintf("cannot decode page %s", pageName), err)
	}
	bounds := pageImage.Bounds()
	log.Printf("[Page %s] Decoded %s image %dx%d", pageName, format, bounds.Dx(), bounds.Dy())

	// Stage 1: detection. Failure here aborts the page; there is nothing to
	// recover downstream without boxes.
	emit(StateDetecting)
	wireDetections, err := p.detector.DetectRegions(ctx, imageData)
	if err != nil {
		return nil, errors.NewDetectionFailedError(pageName, err)
	}

	detections := p.ingestDetections(pageName, wireDetections, bounds.Dx(), bounds.Dy())
	rawCount := len(detections)
	p.debug.WritePage(pageName, pageImage, detections)

	// Stage 2+3: geometric dedup, then container filtering. Order matters:
	// spatial dedup must collapse identical boxes before mutual containment
	// is checked.
	detections = DeduplicateSpatial(detections, p.spatialDedupTol, p.spatialDedupEnable)
	detections = FilterContainers(detections)
	log.Printf("[Page %s] %d raw detections, %d after geometric filtering",
		pageName, rawCount, len(detections))

	// Stage 4+5: transcription, then text-level dedup.
	emit(StateTranscribing)
	regions := p.transcriber.TranscribeRegions(ctx, pageName, pageImage, detections)
	regions = DeduplicateByText(regions)
	log.Printf("[Page %s] %d regions with valid text after dedup", pageName, len(regions))

	// Stage 6: classification. Sequential within the page.
	emit(StateClassifying)
	bubbles, skipped, failures := p.classifier.ClassifyRegions(ctx, pageName, imageData, regions, roster)

	// IDs reflect final survival order, not detection order.
	for i := range bubbles {
		bubbles[i].ID = fmt.Sprintf("%s_b%02d", pageName, i)
	}

	log.Printf("[Page %s] Done in %v: %d bubbles, %d skipped, %d classification failures",
		pageName, time.Since(start).Round(time.Millisecond), len(bubbles), len(skipped), failures)

	return &PageResult{
		Page:             pageName,
		Bubbles:          bubbles,
		Skipped:          skipped,
		RawDetections:    rawCount,
		ClassifyFailures: failures,
	}, nil
}

// ingestDetections converts wire-format center-origin boxes to clamped
// top-left-origin pixel boxes, dropping detections that clamp to zero area.
func (p *PageProcessor) ingestDetections(pageName string, wire []clients.WireDetection, pageW, pageH int) []geometry.RawDetection {
	out := make([]geometry.RawDetection, 0, len(wire))

	for i, d := range wire {
		box, ok := geometry.FromCenter(d.XCenter, d.YCenter, d.Width, d.Height, pageW, pageH)
		if !ok {
			log.Printf("[Page %s] Detection %d clamps to zero area, dropping", pageName, i)
			continue
		}
		out = append(out, geometry.RawDetection{
			Box:        box,
			Confidence: d.Confidence,
			Class:      d.Class,
		})
	}

	return out
}

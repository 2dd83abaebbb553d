/**
 * Region Transcriber
 *
 * Crops each surviving detection out of the page image and obtains verbatim
 * text from the vision-language capability, falling back to local Tesseract
 * when the vision call fails and Tesseract is configured. All failures are
 * absorbed: a region that cannot be transcribed yields empty text and is
 * filtered out downstream, never an error.
 *
 * Crops are persisted as PNGs to an audit directory so misreads can be
 * reviewed against the source pixels.
 */

package processor

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/dougiefresh49/comic-reader/internal/errors"
	"github.com/dougiefresh49/comic-reader/internal/geometry"
)

// shortWordAllowList holds the single-character transcriptions that are real
// words rather than OCR noise.
var shortWordAllowList = map[string]bool{
	"I": true,
	"A": true,
}

// Transcriber turns surviving detections into OCR regions
type Transcriber struct {
	vision   VisionModel
	fallback *TesseractOCR // nil when the fallback tier is disabled
	auditDir string        // "" disables crop persistence
}

// NewTranscriber creates a transcriber. fallback may be nil.
func NewTranscriber(vision VisionModel, fallback *TesseractOCR, auditDir string) *Transcriber {
	return &Transcriber{
		vision:   vision,
		fallback: fallback,
		auditDir: auditDir,
	}
}

// TranscribeRegions crops and transcribes each detection in order. The
// returned slice contains only regions that pass the validity filter; the
// Index field preserves each region's position in the input ordering.
func (t *Transcriber) TranscribeRegions(ctx context.Context, pageName string, pageImage image.Image, detections []geometry.RawDetection) []OCRRegion {
	regions := make([]OCRRegion, 0, len(detections))

	for i, det := range detections {
		cropData, err := t.crop(pageImage, det.Box)
		if err != nil {
			log.Printf("[Page %s] Region %d: invalid crop, dropping: %v", pageName, i, err)
			continue
		}

		cropPath := t.persistCrop(pageName, i, cropData)

		text := t.transcribe(ctx, pageName, i, cropData)
		text = normalizeTranscription(text)

		if !validText(text) {
			log.Printf("[Page %s] Region %d: text %q failed validity filter, dropping", pageName, i, text)
			continue
		}

		regions = append(regions, OCRRegion{
			RawDetection: det,
			Index:        i,
			Text:         text,
			CropPath:     cropPath,
		})
	}

	return regions
}

// transcribe runs the tier cascade for one crop: vision model, then local
// Tesseract, then fail-open to empty text.
func (t *Transcriber) transcribe(ctx context.Context, pageName string, index int, cropData []byte) string {
	text, err := t.vision.Transcribe(ctx, cropData)
	if err == nil {
		return text
	}
	log.Printf("[Page %s] Region %d: vision transcription failed: %v", pageName, index, err)

	if t.fallback != nil {
		text, err = t.fallback.Recognize(ctx, cropData)
		if err == nil {
			log.Printf("[Page %s] Region %d: used Tesseract fallback", pageName, index)
			return text
		}
	}

	// Fail open: an empty-text region is filtered downstream, not retried.
	log.Printf("All tiers exhausted: %v", errors.NewTranscriptionFailedError(pageName, index, err))
	return ""
}

// crop extracts the box from the page image with integer bounds clamping and
// encodes it as PNG. Zero-area crops are rejected before any service call.
func (t *Transcriber) crop(pageImage image.Image, box geometry.Box) ([]byte, error) {
	bounds := pageImage.Bounds()

	r := image.Rect(box.X, box.Y, box.X+box.Width, box.Y+box.Height).Intersect(bounds)
	if r.Empty() {
		return nil, fmt.Errorf("zero-area crop for box %+v in page bounds %v", box, bounds)
	}

	sub, ok := pageImage.(interface {
		SubImage(r image.Rectangle) image.Image
	})
	if !ok {
		return nil, fmt.Errorf("page image type %T does not support cropping", pageImage)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, sub.SubImage(r)); err != nil {
		return nil, fmt.Errorf("failed to encode crop: %w", err)
	}
	return buf.Bytes(), nil
}

// persistCrop writes the crop PNG to the audit directory. Persistence is
// best-effort: a write failure is logged and the pipeline continues.
func (t *Transcriber) persistCrop(pageName string, index int, cropData []byte) string {
	if t.auditDir == "" {
		return ""
	}

	if err := os.MkdirAll(t.auditDir, 0o755); err != nil {
		log.Printf("[Page %s] Warning: cannot create audit dir: %v", pageName, err)
		return ""
	}

	path := filepath.Join(t.auditDir, fmt.Sprintf("%s_r%02d.png", pageName, index))
	if err := os.WriteFile(path, cropData, 0o644); err != nil {
		log.Printf("[Page %s] Warning: failed to persist crop %d: %v", pageName, index, err)
		return ""
	}
	return path
}

// normalizeTranscription collapses horizontal whitespace within lines and
// removes blank lines while preserving the line structure of the bubble.
func normalizeTranscription(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))

	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}

	return strings.Join(out, "\n")
}

// validText is the pre-dedup validity filter: empty and single-character
// transcriptions are noise unless the character is a real one-letter word.
func validText(text string) bool {
	switch len([]rune(text)) {
	case 0:
		return false
	case 1:
		return shortWordAllowList[text]
	default:
		return true
	}
}

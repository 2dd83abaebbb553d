/**
 * Debug Artifacts
 *
 * When a debug directory is configured, each processed page gets two
 * artifacts for reviewing the pipeline's decisions:
 * - a JSON dump of the raw detections before any dedup
 * - a copy of the page with every raw detection outlined and labeled by index
 *
 * Artifact writes are best-effort and never fail the page.
 */

package processor

import (
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"log"
	"os"
	"path/filepath"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/dougiefresh49/comic-reader/internal/geometry"
)

var (
	annotateBoxColor   = color.RGBA{R: 220, G: 40, B: 40, A: 255}
	annotateLabelColor = color.RGBA{R: 255, G: 255, B: 255, A: 255}
)

// DebugWriter emits per-page debug artifacts
type DebugWriter struct {
	dir string
}

// NewDebugWriter creates a writer rooted at dir. An empty dir disables all
// output.
func NewDebugWriter(dir string) *DebugWriter {
	return &DebugWriter{dir: dir}
}

// Enabled reports whether artifacts will be written.
func (w *DebugWriter) Enabled() bool {
	return w != nil && w.dir != ""
}

// WritePage persists the raw-detection dump and the annotated page image.
func (w *DebugWriter) WritePage(pageName string, pageImage image.Image, detections []geometry.RawDetection) {
	if !w.Enabled() {
		return
	}

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		log.Printf("[Page %s] Warning: cannot create debug dir: %v", pageName, err)
		return
	}

	w.writeDump(pageName, detections)
	w.writeAnnotated(pageName, pageImage, detections)
}

func (w *DebugWriter) writeDump(pageName string, detections []geometry.RawDetection) {
	data, err := json.MarshalIndent(detections, "", "  ")
	if err != nil {
		log.Printf("[Page %s] Warning: failed to marshal detection dump: %v", pageName, err)
		return
	}

	path := filepath.Join(w.dir, fmt.Sprintf("%s_detections.json", pageName))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		log.Printf("[Page %s] Warning: failed to write detection dump: %v", pageName, err)
	}
}

func (w *DebugWriter) writeAnnotated(pageName string, pageImage image.Image, detections []geometry.RawDetection) {
	bounds := pageImage.Bounds()
	canvas := image.NewRGBA(bounds)
	draw.Draw(canvas, bounds, pageImage, bounds.Min, draw.Src)

	for i, det := range detections {
		r := image.Rect(det.X, det.Y, det.X+det.Width, det.Y+det.Height).Intersect(bounds)
		if r.Empty() {
			continue
		}
		drawRect(canvas, r, annotateBoxColor)
		drawLabel(canvas, r.Min.X+3, r.Min.Y+12, fmt.Sprintf("%d %.2f", i, det.Confidence))
	}

	path := filepath.Join(w.dir, fmt.Sprintf("%s_annotated.png", pageName))
	f, err := os.Create(path)
	if err != nil {
		log.Printf("[Page %s] Warning: failed to create annotated image: %v", pageName, err)
		return
	}
	defer f.Close()

	if err := png.Encode(f, canvas); err != nil {
		log.Printf("[Page %s] Warning: failed to encode annotated image: %v", pageName, err)
	}
}

// drawRect outlines r on img with a 2px border.
func drawRect(img *image.RGBA, r image.Rectangle, c color.Color) {
	for t := 0; t < 2; t++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			img.Set(x, r.Min.Y+t, c)
			img.Set(x, r.Max.Y-1-t, c)
		}
		for y := r.Min.Y; y < r.Max.Y; y++ {
			img.Set(r.Min.X+t, y, c)
			img.Set(r.Max.X-1-t, y, c)
		}
	}
}

// drawLabel renders text at (x, y) using the fixed 7x13 face. A dark strip is
// painted behind the text so labels stay readable on light panels.
func drawLabel(img *image.RGBA, x, y int, text string) {
	bg := image.Rect(x-2, y-11, x+7*len(text)+2, y+3).Intersect(img.Bounds())
	draw.Draw(img, bg, image.NewUniform(color.RGBA{A: 200}), image.Point{}, draw.Over)

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(annotateLabelColor),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}

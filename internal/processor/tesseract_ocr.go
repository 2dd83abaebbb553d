/**
 * Tesseract OCR - Fallback transcription tier
 *
 * Free, offline recognition for bubble crops when the vision-language
 * service is unavailable. Comic lettering is usually uppercase display type,
 * which Tesseract handles tolerably for short bubbles; the vision tier
 * remains the primary path.
 */

package processor

import (
	"context"
	"fmt"

	"github.com/otiai10/gosseract/v2"
)

// TesseractOCR recognizes text in a single crop using a local Tesseract
// installation.
type TesseractOCR struct {
	languages []string
}

// NewTesseractOCR creates a Tesseract fallback tier. languages defaults to
// English when empty.
func NewTesseractOCR(languages []string) *TesseractOCR {
	if len(languages) == 0 {
		languages = []string{"eng"}
	}
	return &TesseractOCR{languages: languages}
}

// Recognize performs OCR on a crop image.
func (t *TesseractOCR) Recognize(ctx context.Context, cropData []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(t.languages...); err != nil {
		return "", fmt.Errorf("failed to set languages: %w", err)
	}

	if err := client.SetImageFromBytes(cropData); err != nil {
		return "", fmt.Errorf("failed to set image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("tesseract OCR failed: %w", err)
	}

	return text, nil
}

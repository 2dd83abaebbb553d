package processor

import (
	"context"
	"fmt"
	"image"
	"testing"

	"github.com/dougiefresh49/comic-reader/internal/geometry"
)

// textVision returns a fixed transcription per call index.
type textVision struct {
	texts []string
	errs  []error
	calls int
}

func (v *textVision) Transcribe(ctx context.Context, cropData []byte) (string, error) {
	i := v.calls
	v.calls++
	if i < len(v.errs) && v.errs[i] != nil {
		return "", v.errs[i]
	}
	if i < len(v.texts) {
		return v.texts[i], nil
	}
	return "", fmt.Errorf("unexpected call %d", i)
}

func (v *textVision) Classify(ctx context.Context, pageImage []byte, prompt string) (string, error) {
	return "", fmt.Errorf("not implemented")
}

func testPage() image.Image {
	return image.NewRGBA(image.Rect(0, 0, 800, 1200))
}

func TestTranscribeRegionsHappyPath(t *testing.T) {
	vision := &textVision{texts: []string{"HELLO THERE"}}
	tr := NewTranscriber(vision, nil, "")

	dets := []geometry.RawDetection{det(100, 100, 200, 80, 0.9)}
	regions := tr.TranscribeRegions(context.Background(), "page-01.png", testPage(), dets)

	if len(regions) != 1 {
		t.Fatalf("expected 1 region, got %d", len(regions))
	}
	if regions[0].Text != "HELLO THERE" {
		t.Errorf("unexpected text %q", regions[0].Text)
	}
	if regions[0].Index != 0 {
		t.Errorf("region must keep its input index, got %d", regions[0].Index)
	}
}

func TestTranscribeRegionsClampsCropToPageBounds(t *testing.T) {
	// Box extends past the right edge; the crop clamps instead of failing.
	vision := &textVision{texts: []string{"EDGE TEXT"}}
	tr := NewTranscriber(vision, nil, "")

	dets := []geometry.RawDetection{det(700, 100, 300, 80, 0.9)}
	regions := tr.TranscribeRegions(context.Background(), "page-01.png", testPage(), dets)

	if len(regions) != 1 {
		t.Fatalf("clamped crop must still transcribe, got %d regions", len(regions))
	}
}

func TestTranscribeRegionsDropsOutOfBoundsBox(t *testing.T) {
	vision := &textVision{}
	tr := NewTranscriber(vision, nil, "")

	dets := []geometry.RawDetection{det(900, 100, 100, 80, 0.9)}
	regions := tr.TranscribeRegions(context.Background(), "page-01.png", testPage(), dets)

	if len(regions) != 0 {
		t.Fatalf("zero-area crop must be dropped, got %d regions", len(regions))
	}
	if vision.calls != 0 {
		t.Errorf("no service call should be made for an invalid crop")
	}
}

func TestTranscribeRegionsFailOpenDropsRegion(t *testing.T) {
	// A failed transcription yields empty text, which the validity filter
	// removes. No error, no retry.
	vision := &textVision{errs: []error{fmt.Errorf("service down")}}
	tr := NewTranscriber(vision, nil, "")

	dets := []geometry.RawDetection{det(100, 100, 200, 80, 0.9)}
	regions := tr.TranscribeRegions(context.Background(), "page-01.png", testPage(), dets)

	if len(regions) != 0 {
		t.Fatalf("failed transcription must drop the region, got %d", len(regions))
	}
}

func TestTranscribeRegionsValidityFilter(t *testing.T) {
	vision := &textVision{texts: []string{"", "X", "I", "A", "OK"}}
	tr := NewTranscriber(vision, nil, "")

	dets := []geometry.RawDetection{
		det(0, 0, 100, 50, 0.9),
		det(0, 100, 100, 50, 0.9),
		det(0, 200, 100, 50, 0.9),
		det(0, 300, 100, 50, 0.9),
		det(0, 400, 100, 50, 0.9),
	}
	regions := tr.TranscribeRegions(context.Background(), "page-01.png", testPage(), dets)

	// "" and "X" are filtered; "I", "A" and "OK" survive.
	if len(regions) != 3 {
		t.Fatalf("expected 3 surviving regions, got %d", len(regions))
	}
	want := []string{"I", "A", "OK"}
	for i, region := range regions {
		if region.Text != want[i] {
			t.Errorf("region %d: got %q, want %q", i, region.Text, want[i])
		}
	}
	// Indexes reference input positions, not survivor positions.
	if regions[0].Index != 2 || regions[2].Index != 4 {
		t.Errorf("indexes must reflect input order: %d, %d", regions[0].Index, regions[2].Index)
	}
}

func TestNormalizeTranscription(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"HELLO   WORLD", "HELLO WORLD"},
		{"LINE ONE\nLINE TWO", "LINE ONE\nLINE TWO"},
		{"  padded  \n\n  lines  ", "padded\nlines"},
		{"\n\n\n", ""},
	}

	for _, tt := range tests {
		if got := normalizeTranscription(tt.in); got != tt.want {
			t.Errorf("normalizeTranscription(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestValidText(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"", false},
		{"X", false},
		{"I", true},
		{"A", true},
		{"OK", true},
		{"?", false},
	}

	for _, tt := range tests {
		if got := validText(tt.in); got != tt.want {
			t.Errorf("validText(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

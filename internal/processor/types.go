/**
 * Pipeline Types - Shared data structures for bubble extraction
 *
 * A page moves through: raw detections → deduplicated regions → transcribed
 * OCR regions → classified bubbles. Each stage's output type appears here.
 */

package processor

import (
	"context"
	"sync"

	"github.com/dougiefresh49/comic-reader/internal/clients"
	"github.com/dougiefresh49/comic-reader/internal/geometry"
)

// BubbleType is the discourse type of a finalized text region
type BubbleType string

const (
	TypeSpeech     BubbleType = "SPEECH"
	TypeNarration  BubbleType = "NARRATION"
	TypeCaption    BubbleType = "CAPTION"
	TypeSFX        BubbleType = "SFX"
	TypeBackground BubbleType = "BACKGROUND"
)

// narratorName is the forced speaker for NARRATION and CAPTION bubbles;
// these discourse types carry no vocal identity.
const narratorName = "Narrator"

// OCRRegion is a surviving detection with its transcribed text
type OCRRegion struct {
	geometry.RawDetection
	Index    int    `json:"index"`
	Text     string `json:"ocr_text"`
	CropPath string `json:"cropPath,omitempty"`
}

// BubbleBox is a bubble's rectangle plus its pre-classification region index
type BubbleBox struct {
	geometry.Box
	Index int `json:"index"`
}

// Bubble is a finalized, classified text region ready for narration.
// Invariant: Speaker is non-nil iff Type is not SFX/BACKGROUND (and those
// types never appear in a page's bubble list at all).
type Bubble struct {
	ID      string     `json:"id"`
	Box     BubbleBox  `json:"box_2d"`
	Text    string     `json:"ocr_text"`
	Type    BubbleType `json:"type"`
	Speaker *string    `json:"speaker"`
	Emotion string     `json:"emotion"`
	Ignored bool       `json:"ignored,omitempty"`
}

// SkippedRegion records a region excluded from the bubble list (SFX,
// background text) together with the reason, for the run report.
type SkippedRegion struct {
	Index  int        `json:"index"`
	Text   string     `json:"ocr_text"`
	Type   BubbleType `json:"type"`
	Reason string     `json:"reason"`
}

// PageState tracks a page through the pipeline state machine
type PageState string

const (
	StatePending      PageState = "pending"
	StateDetecting    PageState = "detecting"
	StateTranscribing PageState = "transcribing"
	StateClassifying  PageState = "classifying"
	StateCached       PageState = "cached"
	StateSkipped      PageState = "skipped"
	StateFailed       PageState = "failed"
)

// PageResult is the outcome of processing a single page
type PageResult struct {
	Page             string          `json:"page"`
	Bubbles          []Bubble        `json:"bubbles"`
	Skipped          []SkippedRegion `json:"skipped,omitempty"`
	RawDetections    int             `json:"rawDetections"`
	ClassifyFailures int             `json:"classifyFailures"`
}

// RegionDetector is the upstream region-detection capability
type RegionDetector interface {
	DetectRegions(ctx context.Context, imageData []byte) ([]clients.WireDetection, error)
}

// VisionModel is the upstream vision-language capability, used for both
// transcription and classification
type VisionModel interface {
	Transcribe(ctx context.Context, cropData []byte) (string, error)
	Classify(ctx context.Context, pageImage []byte, prompt string) (string, error)
}

// SpeakerRoster is the growing set of distinct speaker names observed within
// a run. It is an explicit per-run object: appends are serialized through its
// lock, and interleaving across concurrently-running pages is last-write-wins.
type SpeakerRoster struct {
	mu    sync.Mutex
	names []string
	seen  map[string]bool
}

// NewSpeakerRoster creates an empty roster
func NewSpeakerRoster() *SpeakerRoster {
	return &SpeakerRoster{seen: make(map[string]bool)}
}

// Add records a speaker name. Returns true if the name was new.
func (r *SpeakerRoster) Add(name string) bool {
	if name == "" || name == narratorName {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.seen[name] {
		return false
	}
	r.seen[name] = true
	r.names = append(r.names, name)
	return true
}

// Names returns a copy of the roster in first-seen order
func (r *SpeakerRoster) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Len returns the number of distinct speakers seen so far
func (r *SpeakerRoster) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.names)
}

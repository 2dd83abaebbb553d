package processor

import (
	"context"
	"fmt"
	"strings"
	"testing"
)

// scriptedVision replays canned classification responses in order. Transcribe
// is unused by the classifier.
type scriptedVision struct {
	responses []string
	errs      []error
	calls     int
	prompts   []string
}

func (v *scriptedVision) Transcribe(ctx context.Context, cropData []byte) (string, error) {
	return "", fmt.Errorf("not implemented")
}

func (v *scriptedVision) Classify(ctx context.Context, pageImage []byte, prompt string) (string, error) {
	i := v.calls
	v.calls++
	v.prompts = append(v.prompts, prompt)

	if i < len(v.errs) && v.errs[i] != nil {
		return "", v.errs[i]
	}
	if i < len(v.responses) {
		return v.responses[i], nil
	}
	return "", fmt.Errorf("unexpected call %d", i)
}

func TestClassifyRegionsSpeechBubble(t *testing.T) {
	vision := &scriptedVision{
		responses: []string{`{"type": "SPEECH", "speaker": "Mia", "emotion": "happy"}`},
	}
	c := NewClassifier(vision, 0)
	roster := NewSpeakerRoster()

	regions := []OCRRegion{region(10, 10, 100, 50, 0.9, "HELLO!")}
	bubbles, skipped, failures := c.ClassifyRegions(context.Background(), "page-01.png", nil, regions, roster)

	if failures != 0 || len(skipped) != 0 {
		t.Fatalf("unexpected failures=%d skipped=%d", failures, len(skipped))
	}
	if len(bubbles) != 1 {
		t.Fatalf("expected 1 bubble, got %d", len(bubbles))
	}
	if bubbles[0].Speaker == nil || *bubbles[0].Speaker != "Mia" {
		t.Errorf("expected speaker Mia, got %v", bubbles[0].Speaker)
	}
	if roster.Len() != 1 {
		t.Errorf("speaker must be added to roster, got %d entries", roster.Len())
	}
}

func TestClassifyRegionsNarrationForcesNarrator(t *testing.T) {
	// Whatever speaker/emotion the model invents for narration is overridden.
	vision := &scriptedVision{
		responses: []string{`{"type": "NARRATION", "speaker": "Mia", "emotion": "ominous"}`},
	}
	c := NewClassifier(vision, 0)
	roster := NewSpeakerRoster()

	regions := []OCRRegion{region(10, 10, 100, 50, 0.9, "Three days later...")}
	bubbles, _, _ := c.ClassifyRegions(context.Background(), "page-01.png", nil, regions, roster)

	if len(bubbles) != 1 {
		t.Fatalf("expected 1 bubble, got %d", len(bubbles))
	}
	if bubbles[0].Speaker == nil || *bubbles[0].Speaker != "Narrator" {
		t.Errorf("narration must be spoken by Narrator, got %v", bubbles[0].Speaker)
	}
	if bubbles[0].Emotion != "Neutral" {
		t.Errorf("narration emotion must be Neutral, got %q", bubbles[0].Emotion)
	}
	if roster.Len() != 0 {
		t.Errorf("Narrator must not enter the speaker roster")
	}
}

func TestClassifyRegionsSFXSkipped(t *testing.T) {
	vision := &scriptedVision{
		responses: []string{`{"type": "SFX", "reason": "explosion sound effect"}`},
	}
	c := NewClassifier(vision, 0)

	regions := []OCRRegion{region(10, 10, 100, 50, 0.9, "BOOM")}
	bubbles, skipped, failures := c.ClassifyRegions(context.Background(), "page-01.png", nil, regions, NewSpeakerRoster())

	if len(bubbles) != 0 {
		t.Fatalf("SFX must not produce a bubble, got %d", len(bubbles))
	}
	if len(skipped) != 1 {
		t.Fatalf("SFX must be recorded as skipped, got %d", len(skipped))
	}
	if skipped[0].Type != TypeSFX || skipped[0].Reason != "explosion sound effect" {
		t.Errorf("unexpected skip record: %+v", skipped[0])
	}
	if failures != 0 {
		t.Errorf("a clean SFX classification is not a failure")
	}
}

func TestClassifyRegionsFailOpenDefault(t *testing.T) {
	// A failed call still emits a bubble with safe defaults, and is counted.
	vision := &scriptedVision{
		errs: []error{fmt.Errorf("service unavailable")},
	}
	c := NewClassifier(vision, 0)

	regions := []OCRRegion{region(10, 10, 100, 50, 0.9, "WHAT WAS THAT?")}
	bubbles, _, failures := c.ClassifyRegions(context.Background(), "page-01.png", nil, regions, NewSpeakerRoster())

	if failures != 1 {
		t.Fatalf("expected 1 counted failure, got %d", failures)
	}
	if len(bubbles) != 1 {
		t.Fatalf("fail-open must still emit the bubble, got %d", len(bubbles))
	}
	if bubbles[0].Type != TypeSpeech {
		t.Errorf("default type must be SPEECH, got %s", bubbles[0].Type)
	}
	if bubbles[0].Speaker != nil {
		t.Errorf("default bubble has no speaker, got %v", *bubbles[0].Speaker)
	}
	if bubbles[0].Emotion != "neutral" {
		t.Errorf("default emotion must be neutral, got %q", bubbles[0].Emotion)
	}
	if bubbles[0].Text != "WHAT WAS THAT?" {
		t.Errorf("text must be preserved, got %q", bubbles[0].Text)
	}
}

func TestClassifyRegionsUnparseableResponseFailsOpen(t *testing.T) {
	vision := &scriptedVision{
		responses: []string{"I am not sure what this bubble is."},
	}
	c := NewClassifier(vision, 0)

	regions := []OCRRegion{region(10, 10, 100, 50, 0.9, "HM.")}
	bubbles, _, failures := c.ClassifyRegions(context.Background(), "page-01.png", nil, regions, NewSpeakerRoster())

	if failures != 1 {
		t.Fatalf("unparseable response must count as a failure, got %d", failures)
	}
	if len(bubbles) != 1 || bubbles[0].Type != TypeSpeech {
		t.Fatalf("unparseable response must fail open to a default SPEECH bubble")
	}
}

func TestClassifyRegionsNullSpeakerIgnored(t *testing.T) {
	vision := &scriptedVision{
		responses: []string{`{"type": "SPEECH", "speaker": "null", "emotion": "neutral"}`},
	}
	c := NewClassifier(vision, 0)
	roster := NewSpeakerRoster()

	regions := []OCRRegion{region(10, 10, 100, 50, 0.9, "...")}
	bubbles, _, _ := c.ClassifyRegions(context.Background(), "page-01.png", nil, regions, roster)

	if bubbles[0].Speaker != nil {
		t.Errorf("literal \"null\" speaker must be treated as unknown, got %q", *bubbles[0].Speaker)
	}
	if roster.Len() != 0 {
		t.Errorf("\"null\" must not enter the roster")
	}
}

func TestClassifyRegionsRosterBiasesLaterPrompts(t *testing.T) {
	vision := &scriptedVision{
		responses: []string{
			`{"type": "SPEECH", "speaker": "Mia", "emotion": "happy"}`,
			`{"type": "SPEECH", "speaker": "Mia", "emotion": "surprised"}`,
		},
	}
	c := NewClassifier(vision, 0)
	roster := NewSpeakerRoster()

	regions := []OCRRegion{
		region(10, 10, 100, 50, 0.9, "HI!"),
		region(10, 200, 100, 50, 0.9, "WAIT!"),
	}
	c.ClassifyRegions(context.Background(), "page-01.png", nil, regions, roster)

	if len(vision.prompts) != 2 {
		t.Fatalf("expected 2 classify calls, got %d", len(vision.prompts))
	}
	if strings.Contains(vision.prompts[0], "Known speakers") {
		t.Errorf("first prompt must not list speakers yet")
	}
	if !strings.Contains(vision.prompts[1], "Mia") {
		t.Errorf("second prompt must carry the roster, got:\n%s", vision.prompts[1])
	}
}

func TestParseBubbleTypeDefaultsToSpeech(t *testing.T) {
	tests := []struct {
		in   string
		want BubbleType
	}{
		{"SPEECH", TypeSpeech},
		{"narration", TypeNarration},
		{" Caption ", TypeCaption},
		{"sfx", TypeSFX},
		{"BACKGROUND", TypeBackground},
		{"DIALOGUE", TypeSpeech},
		{"", TypeSpeech},
	}

	for _, tt := range tests {
		if got := parseBubbleType(tt.in); got != tt.want {
			t.Errorf("parseBubbleType(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

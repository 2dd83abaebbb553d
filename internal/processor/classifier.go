/**
 * Context Classifier
 *
 * Labels each surviving region with discourse type, speaker and emotion,
 * given the full page image and the run's speaker roster. Classification
 * within a page is strictly sequential: each call reads the roster as
 * mutated by the previous call, which is what lets the model reuse existing
 * names instead of minting new ones.
 *
 * Failure policy is fail-open: a region whose classification fails is still
 * emitted as a default SPEECH bubble with no speaker, never dropped. Failures
 * are counted so the run summary can surface them even though the resulting
 * bubble looks normal.
 */

package processor

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/dougiefresh49/comic-reader/internal/errors"
)

// Classification is the structured output contract with the model
type Classification struct {
	Type    string `json:"type"`
	Speaker string `json:"speaker"`
	Emotion string `json:"emotion"`
	Reason  string `json:"reason,omitempty"`
}

// Classifier labels OCR regions using the vision-language capability
type Classifier struct {
	vision VisionModel
	delay  time.Duration // inter-call throttle within a page
}

// NewClassifier creates a classifier with the given inter-call delay.
func NewClassifier(vision VisionModel, delay time.Duration) *Classifier {
	return &Classifier{vision: vision, delay: delay}
}

// ClassifyRegions classifies each region in order and returns the page's
// bubbles, the skipped regions, and the number of classification failures.
// SFX and BACKGROUND regions are recorded as skipped and excluded from the
// bubble list.
func (c *Classifier) ClassifyRegions(ctx context.Context, pageName string, pageImage []byte, regions []OCRRegion, roster *SpeakerRoster) ([]Bubble, []SkippedRegion, int) {
	bubbles := make([]Bubble, 0, len(regions))
	skipped := make([]SkippedRegion, 0)
	failures := 0

	for i, region := range regions {
		result, err := c.classifyOne(ctx, pageName, pageImage, region, roster)
		if err != nil {
			// Fail open: emit a default SPEECH bubble rather than dropping
			// the region. The failure is still counted and logged with
			// enough context for a targeted re-run.
			failures++
			log.Printf("[Page %s] Region %d: classification failed (text=%q): %v",
				pageName, region.Index, errors.Preview(region.Text, 40), err)
			result = &Classification{Type: string(TypeSpeech), Emotion: "neutral"}
		}

		bubbleType := parseBubbleType(result.Type)

		if bubbleType == TypeSFX || bubbleType == TypeBackground {
			reason := result.Reason
			if reason == "" {
				reason = fmt.Sprintf("classified as %s", bubbleType)
			}
			log.Printf("[Page %s] Region %d: skipped (%s)", pageName, region.Index, reason)
			skipped = append(skipped, SkippedRegion{
				Index:  region.Index,
				Text:   region.Text,
				Type:   bubbleType,
				Reason: reason,
			})
		} else {
			bubbles = append(bubbles, buildBubble(region, bubbleType, result, roster))
		}

		// Throttle between classifier calls; skipped after the last one.
		if c.delay > 0 && i < len(regions)-1 {
			select {
			case <-time.After(c.delay):
			case <-ctx.Done():
				// Remaining regions fall through to the fail-open default
				// on their own calls.
			}
		}
	}

	return bubbles, skipped, failures
}

// classifyOne performs a single model call and extracts its structured output.
func (c *Classifier) classifyOne(ctx context.Context, pageName string, pageImage []byte, region OCRRegion, roster *SpeakerRoster) (*Classification, error) {
	prompt := buildClassifyPrompt(region, roster.Names())

	raw, err := c.vision.Classify(ctx, pageImage, prompt)
	if err != nil {
		return nil, errors.NewClassificationFailedError(pageName, region.Index, region.Text, err)
	}

	var result Classification
	if err := ExtractJSON(raw, &result); err != nil {
		return nil, errors.NewParseError(pageName, region.Index, raw)
	}

	return &result, nil
}

// buildBubble applies the speaker invariants and records new speakers on the
// roster.
func buildBubble(region OCRRegion, bubbleType BubbleType, result *Classification, roster *SpeakerRoster) Bubble {
	var speaker *string
	emotion := result.Emotion
	if emotion == "" {
		emotion = "neutral"
	}

	switch bubbleType {
	case TypeNarration, TypeCaption:
		// These discourse types carry no vocal identity; the model's
		// speaker/emotion output is overridden unconditionally.
		name := narratorName
		speaker = &name
		emotion = "Neutral"
	default:
		if name := strings.TrimSpace(result.Speaker); name != "" && !strings.EqualFold(name, "null") {
			speaker = &name
			roster.Add(name)
		}
	}

	return Bubble{
		Box:     BubbleBox{Box: region.Box, Index: region.Index},
		Text:    region.Text,
		Type:    bubbleType,
		Speaker: speaker,
		Emotion: emotion,
	}
}

// parseBubbleType maps model output to a known type, defaulting to SPEECH.
func parseBubbleType(s string) BubbleType {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(TypeNarration):
		return TypeNarration
	case string(TypeCaption):
		return TypeCaption
	case string(TypeSFX):
		return TypeSFX
	case string(TypeBackground):
		return TypeBackground
	default:
		return TypeSpeech
	}
}

// buildClassifyPrompt renders the classification instruction for one region.
// The roster biases coreference: the model is told to reuse existing names
// rather than mint new ones for recurring characters.
func buildClassifyPrompt(region OCRRegion, knownSpeakers []string) string {
	var b strings.Builder

	b.WriteString("You are annotating a comic page for narration.\n")
	fmt.Fprintf(&b, "Focus on the text region at x=%d y=%d width=%d height=%d reading:\n%q\n\n",
		region.X, region.Y, region.Width, region.Height, region.Text)
	b.WriteString("Classify this region. Respond with a single JSON object:\n")
	b.WriteString(`{"type": "SPEECH|NARRATION|CAPTION|SFX|BACKGROUND", "speaker": "<character name or null>", "emotion": "<one word>", "reason": "<only for SFX/BACKGROUND>"}` + "\n")

	if len(knownSpeakers) > 0 {
		fmt.Fprintf(&b, "\nKnown speakers so far: %s.\n", strings.Join(knownSpeakers, ", "))
		b.WriteString("If the speaker is one of these characters, reuse the exact existing name.\n")
	}

	return b.String()
}

package processor

import "testing"

func TestExtractJSONFencedBlock(t *testing.T) {
	raw := "Here is the classification:\n```json\n{\"type\": \"SPEECH\", \"speaker\": \"Mia\", \"emotion\": \"angry\"}\n```\nLet me know if you need anything else."

	var got Classification
	if err := ExtractJSON(raw, &got); err != nil {
		t.Fatalf("ExtractJSON failed: %v", err)
	}
	if got.Type != "SPEECH" || got.Speaker != "Mia" || got.Emotion != "angry" {
		t.Errorf("unexpected result: %+v", got)
	}
}

func TestExtractJSONBareFence(t *testing.T) {
	raw := "```\n{\"type\": \"SFX\", \"reason\": \"onomatopoeia\"}\n```"

	var got Classification
	if err := ExtractJSON(raw, &got); err != nil {
		t.Fatalf("ExtractJSON failed: %v", err)
	}
	if got.Type != "SFX" || got.Reason != "onomatopoeia" {
		t.Errorf("unexpected result: %+v", got)
	}
}

func TestExtractJSONBareObject(t *testing.T) {
	raw := `{"type": "NARRATION", "speaker": null, "emotion": "neutral"}`

	var got Classification
	if err := ExtractJSON(raw, &got); err != nil {
		t.Fatalf("ExtractJSON failed: %v", err)
	}
	if got.Type != "NARRATION" {
		t.Errorf("unexpected type: %q", got.Type)
	}
}

func TestExtractJSONEmbeddedInProse(t *testing.T) {
	raw := `Looking at the page, this is clearly dialogue. {"type": "SPEECH", "speaker": "Ren", "emotion": "worried"} — I based this on the panel layout.`

	var got Classification
	if err := ExtractJSON(raw, &got); err != nil {
		t.Fatalf("ExtractJSON failed: %v", err)
	}
	if got.Speaker != "Ren" {
		t.Errorf("unexpected speaker: %q", got.Speaker)
	}
}

func TestExtractJSONNestedBraces(t *testing.T) {
	raw := `{"type": "SPEECH", "speaker": "Kai {the elder}", "emotion": "calm"}`

	var got Classification
	if err := ExtractJSON(raw, &got); err != nil {
		t.Fatalf("ExtractJSON failed: %v", err)
	}
	if got.Speaker != "Kai {the elder}" {
		t.Errorf("braces inside strings mishandled: %q", got.Speaker)
	}
}

func TestExtractJSONGarbage(t *testing.T) {
	for _, raw := range []string{
		"",
		"no json here at all",
		"{unclosed",
		"``` still not json ```",
	} {
		var got Classification
		if err := ExtractJSON(raw, &got); err == nil {
			t.Errorf("ExtractJSON(%q) should fail", raw)
		}
	}
}

package storage

import (
	"context"
	"path/filepath"
	"testing"
)

func TestStorageManagerOptionalBackendsDisabled(t *testing.T) {
	cachePath := filepath.Join(t.TempDir(), "bubbles.json")

	sm, err := NewStorageManager(cachePath, "", "", "")
	if err != nil {
		t.Fatalf("cache-only storage must initialize: %v", err)
	}

	if sm.HasRunStore() {
		t.Error("run store must be disabled without a database URL")
	}
	if sm.HasDialogueIndex() {
		t.Error("dialogue index must be disabled without a Qdrant address")
	}

	// Both are fail-soft no-ops when disabled.
	sm.RecordPage(context.Background(), &PageRecord{RunID: "run-1", Page: "page-01.png"})
	sm.IndexDialogue(context.Background(), &DialoguePoint{ID: "p1"})

	summary, err := sm.GetRunSummary(context.Background(), "run-1")
	if err != nil || summary != nil {
		t.Errorf("disabled run store must report no summary, got %v, %v", summary, err)
	}
}

func TestStorageManagerCloseOnce(t *testing.T) {
	cachePath := filepath.Join(t.TempDir(), "bubbles.json")

	sm, err := NewStorageManager(cachePath, "", "", "")
	if err != nil {
		t.Fatal(err)
	}

	// The worker closes storage exactly once, from main's deferred Close,
	// in both run modes.
	if err := sm.Close(); err != nil {
		t.Errorf("Close must succeed: %v", err)
	}
}

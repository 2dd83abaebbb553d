/**
 * Storage Manager
 *
 * Coordinates the page cache (required, source of truth for bubble content)
 * with the optional PostgreSQL run store and Qdrant dialogue index. The
 * optional backends are fail-soft: an unreachable database degrades to a
 * warning, never a failed page, because the cache alone is enough to resume
 * and re-report a run.
 */

package storage

import (
	"context"
	"fmt"
	"log"
)

// StorageManager coordinates cache, PostgreSQL and Qdrant operations
type StorageManager struct {
	Cache    *PageCache
	postgres *PostgresClient // nil when DATABASE_URL is not configured
	qdrant   *QdrantClient   // nil when QDRANT_URL is not configured
}

// NewStorageManager loads the cache and connects the optional backends.
// postgresURL and qdrantAddress may be empty.
func NewStorageManager(cachePath, postgresURL, qdrantAddress, qdrantCollection string) (*StorageManager, error) {
	cache, err := LoadPageCache(cachePath)
	if err != nil {
		return nil, fmt.Errorf("failed to load page cache: %w", err)
	}

	sm := &StorageManager{Cache: cache}

	if postgresURL != "" {
		postgres, err := NewPostgresClient(postgresURL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize PostgreSQL client: %w", err)
		}
		sm.postgres = postgres
	}

	if qdrantAddress != "" {
		qdrant, err := NewQdrantClient(qdrantAddress, qdrantCollection)
		if err != nil {
			if sm.postgres != nil {
				sm.postgres.Close()
			}
			return nil, fmt.Errorf("failed to initialize Qdrant client: %w", err)
		}
		sm.qdrant = qdrant
	}

	return sm, nil
}

// HasRunStore reports whether per-page database bookkeeping is enabled.
func (sm *StorageManager) HasRunStore() bool {
	return sm.postgres != nil
}

// HasDialogueIndex reports whether Qdrant indexing is enabled.
func (sm *StorageManager) HasDialogueIndex() bool {
	return sm.qdrant != nil
}

// RecordPage upserts a page's status row when the run store is enabled.
// Fail-soft: errors are logged, not returned.
func (sm *StorageManager) RecordPage(ctx context.Context, rec *PageRecord) {
	if sm.postgres == nil {
		return
	}

	if err := sm.postgres.UpsertPageRecord(ctx, rec); err != nil {
		log.Printf("[Run %s] Warning: failed to record page %s status: %v", rec.RunID, rec.Page, err)
	}
}

// IndexDialogue upserts one bubble's embedding when the dialogue index is
// enabled. Fail-soft like RecordPage.
func (sm *StorageManager) IndexDialogue(ctx context.Context, point *DialoguePoint) {
	if sm.qdrant == nil {
		return
	}

	if err := sm.qdrant.UpsertDialogue(ctx, point); err != nil {
		log.Printf("Warning: failed to index dialogue point %s: %v", point.ID, err)
	}
}

// GetRunSummary aggregates page statuses for one run. Returns nil when the
// run store is disabled.
func (sm *StorageManager) GetRunSummary(ctx context.Context, runID string) (map[string]int, error) {
	if sm.postgres == nil {
		return nil, nil
	}
	return sm.postgres.GetRunSummary(ctx, runID)
}

// Close closes all backend connections. The cache needs no closing; callers
// persist it explicitly with Cache.Save.
func (sm *StorageManager) Close() error {
	var pgErr, qdErr error

	if sm.postgres != nil {
		pgErr = sm.postgres.Close()
	}

	if sm.qdrant != nil {
		qdErr = sm.qdrant.Close()
	}

	if pgErr != nil {
		return fmt.Errorf("failed to close PostgreSQL: %w", pgErr)
	}

	if qdErr != nil {
		return fmt.Errorf("failed to close Qdrant: %w", qdErr)
	}

	return nil
}

/**
 * PostgreSQL Run Store
 *
 * Optional per-page bookkeeping for queue-mode deployments: one row per
 * (run, page) with status, bubble counts and the last error. The JSON cache
 * file remains the source of truth for bubble content; these rows exist so
 * operators can query run progress without reading worker logs.
 */

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresClient handles run-store database operations
type PostgresClient struct {
	db *sql.DB
}

// PageRecord is one page's status row
type PageRecord struct {
	RunID            string
	Page             string
	Status           string
	BubbleCount      int
	SkippedCount     int
	ClassifyFailures int
	ProcessingTimeMs int64
	ErrorCode        string
	ErrorMessage     string
	Metadata         map[string]interface{}
}

// NewPostgresClient creates a new PostgreSQL client
func NewPostgresClient(databaseURL string) (*PostgresClient, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(2 * time.Minute)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresClient{db: db}, nil
}

// UpsertPageRecord records a page's status, creating the row on first update.
// The worker may report a page before the API has seen the run at all, so
// inserts and updates go through the same statement.
func (p *PostgresClient) UpsertPageRecord(ctx context.Context, rec *PageRecord) error {
	if rec.RunID == "" {
		return fmt.Errorf("run ID is required")
	}
	if rec.Page == "" {
		return fmt.Errorf("page is required")
	}
	if rec.Status == "" {
		return fmt.Errorf("status is required")
	}

	metadataJSON, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		INSERT INTO comic.page_runs (
			run_id, page, status,
			bubble_count, skipped_count, classify_failures,
			processing_time_ms, error_code, error_message, metadata,
			created_at, updated_at
		) VALUES (
			$1::uuid, $2, $3,
			$4, $5, $6,
			NULLIF($7, 0), NULLIF($8, ''), NULLIF($9, ''),
			COALESCE($10::jsonb, '{}'::jsonb),
			NOW(), NOW()
		)
		ON CONFLICT (run_id, page) DO UPDATE SET
			status = EXCLUDED.status,
			bubble_count = EXCLUDED.bubble_count,
			skipped_count = EXCLUDED.skipped_count,
			classify_failures = EXCLUDED.classify_failures,
			processing_time_ms = COALESCE(EXCLUDED.processing_time_ms, comic.page_runs.processing_time_ms),
			error_code = NULLIF(EXCLUDED.error_code, ''),
			error_message = NULLIF(EXCLUDED.error_message, ''),
			metadata = COALESCE(EXCLUDED.metadata, comic.page_runs.metadata),
			updated_at = NOW()
		RETURNING run_id
	`

	var returnedID string
	err = p.db.QueryRowContext(
		ctx,
		query,
		rec.RunID,            // $1
		rec.Page,             // $2
		rec.Status,           // $3
		rec.BubbleCount,      // $4
		rec.SkippedCount,     // $5
		rec.ClassifyFailures, // $6
		rec.ProcessingTimeMs, // $7
		rec.ErrorCode,        // $8
		rec.ErrorMessage,     // $9
		metadataJSON,         // $10
	).Scan(&returnedID)

	if err != nil {
		return fmt.Errorf("failed to upsert page record (run=%s, page=%s, status=%s): %w",
			rec.RunID, rec.Page, rec.Status, err)
	}

	return nil
}

// GetRunSummary aggregates page statuses for one run.
func (p *PostgresClient) GetRunSummary(ctx context.Context, runID string) (map[string]int, error) {
	if runID == "" {
		return nil, fmt.Errorf("run ID is required")
	}

	query := `
		SELECT status, COUNT(*)
		FROM comic.page_runs
		WHERE run_id = $1::uuid
		GROUP BY status
	`

	rows, err := p.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query run summary: %w", err)
	}
	defer rows.Close()

	summary := make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan run summary row: %w", err)
		}
		summary[status] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read run summary: %w", err)
	}

	return summary, nil
}

// Ping checks database connectivity
func (p *PostgresClient) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close closes the database connection
func (p *PostgresClient) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

// GetStats returns connection pool statistics
func (p *PostgresClient) GetStats() sql.DBStats {
	return p.db.Stats()
}

package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"fintrack/internal/storage"
)

// SyncRecord is one finished reconciliation cycle as shown by "desktop status".
type SyncRecord struct {
	FinishedAt time.Time
	State      string
	Fetched    int
	Inserted   int
	Uploaded   int
	Message    string
}

func (c *Cache) RecordSync(ctx context.Context, rec SyncRecord) error {
	if rec.FinishedAt.IsZero() {
		rec.FinishedAt = c.now()
	}
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO sync_log (finished_at, state, fetched, inserted, uploaded, message)
		VALUES (?, ?, ?, ?, ?, ?)`,
		storage.EncodeTime(rec.FinishedAt), rec.State, rec.Fetched, rec.Inserted, rec.Uploaded, rec.Message)
	if err != nil {
		return fmt.Errorf("record sync: %w", err)
	}
	return nil
}

// LastSync returns the most recent cycle, or storage.ErrNotFound before the first one.
func (c *Cache) LastSync(ctx context.Context) (SyncRecord, error) {
	var (
		rec      SyncRecord
		finished string
	)
	err := c.db.QueryRowContext(ctx, `
		SELECT finished_at, state, fetched, inserted, uploaded, message
		FROM sync_log ORDER BY id DESC LIMIT 1`).
		Scan(&finished, &rec.State, &rec.Fetched, &rec.Inserted, &rec.Uploaded, &rec.Message)
	if errors.Is(err, sql.ErrNoRows) {
		return SyncRecord{}, storage.ErrNotFound
	}
	if err != nil {
		return SyncRecord{}, fmt.Errorf("read last sync: %w", err)
	}
	if rec.FinishedAt, err = storage.DecodeTime(finished); err != nil {
		return SyncRecord{}, err
	}
	return rec, nil
}

// UnsyncedCount is the number of records waiting for upload.
func (c *Cache) UnsyncedCount(ctx context.Context) (int, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cached_transactions WHERE synced = 0`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count unsynced: %w", err)
	}
	return n, nil
}

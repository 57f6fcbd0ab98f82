package digest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/muilab/notigpt/internal/storage"
)

// ErrNoDigest is returned when no digest has been recorded for a mode.
var ErrNoDigest = errors.New("no digest recorded")

// HistoryStore keeps finished digests so clients can fetch the latest one.
type HistoryStore struct {
	db *storage.Database
}

// NewHistoryStore creates a history store on db.
func NewHistoryStore(db *storage.Database) *HistoryStore {
	return &HistoryStore{db: db}
}

// Save records d. Per-chunk results are not persisted.
func (s *HistoryStore) Save(ctx context.Context, d *Digest) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO digests (id, mode, text, chunk_count, failed_chunks, unit_count, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, string(d.Mode), d.Text, d.ChunkCount, d.Failed, d.UnitCount,
		d.Duration.Milliseconds(), d.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to save digest %s: %w", d.ID, err)
	}
	return nil
}

// Latest returns the most recent digest for mode.
func (s *HistoryStore) Latest(ctx context.Context, mode Mode) (*Digest, error) {
	var (
		d          Digest
		modeStr    string
		durationMS int64
		createdAtM int64
	)

	err := s.db.QueryRowContext(ctx, `
		SELECT id, mode, text, chunk_count, failed_chunks, unit_count, duration_ms, created_at
		FROM digests
		WHERE mode = ?
		ORDER BY created_at DESC
		LIMIT 1`, string(mode)).
		Scan(&d.ID, &modeStr, &d.Text, &d.ChunkCount, &d.Failed, &d.UnitCount, &durationMS, &createdAtM)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w for mode %q", ErrNoDigest, mode)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load latest digest: %w", err)
	}

	d.Mode = Mode(modeStr)
	d.Duration = time.Duration(durationMS) * time.Millisecond
	d.CreatedAt = time.UnixMilli(createdAtM)
	return &d, nil
}

// Prune removes digests older than cutoff and reports how many went.
func (s *HistoryStore) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM digests WHERE created_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to prune digests: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

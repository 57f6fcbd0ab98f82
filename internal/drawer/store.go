package drawer

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/muilab/notigpt/internal/logger"
	"github.com/muilab/notigpt/internal/storage"
)

// Store is the drawer's data-access object.
type Store interface {
	GetAll(ctx context.Context) ([]NotiUnit, error)
	GetPage(ctx context.Context, limit, offset int) ([]NotiUnit, error)
	CountAll(ctx context.Context) (int, error)
	GetBySbnKey(ctx context.Context, sbnKey string) ([]NotiUnit, error)
	GetByHashKey(ctx context.Context, hashKey int64) ([]NotiUnit, error)
	Insert(ctx context.Context, unit NotiUnit) error
	Update(ctx context.Context, unit NotiUnit) error
	UpdateList(ctx context.Context, units []NotiUnit) error
	DeleteBySbnKey(ctx context.Context, sbnKey string) error
	DeleteAll(ctx context.Context) error
	Modify(ctx context.Context, sbnKey string, fn ModifyFunc) (*NotiUnit, error)
}

// ModifyFunc edits the unit stored under a key. exists is false when the key
// is new, in which case unit is zero-valued and fn must fill it in.
type ModifyFunc func(unit *NotiUnit, exists bool) error

// modifyAttempts bounds retries when a concurrent writer creates the same key.
const modifyAttempts = 3

const selectColumns = `SELECT sbn_key, hash_key, app_name, is_people, title, noti_infos, prev_noti_infos, score, ranking, updated_at FROM noti_drawer`

const orderByDisplay = ` ORDER BY score DESC, ranking ASC, sbn_key ASC`

// DBStore persists units in the noti_drawer table.
type DBStore struct {
	db     *storage.Database
	logger *logger.Logger
}

// NewDBStore creates a store on an open database.
func NewDBStore(db *storage.Database, logger *logger.Logger) *DBStore {
	return &DBStore{
		db:     db,
		logger: logger.WithComponent("drawer-store"),
	}
}

// GetAll returns every unit ordered by score desc, then ranking asc.
func (s *DBStore) GetAll(ctx context.Context) ([]NotiUnit, error) {
	return s.query(ctx, selectColumns+orderByDisplay)
}

// GetPage returns one page of units in display order.
func (s *DBStore) GetPage(ctx context.Context, limit, offset int) ([]NotiUnit, error) {
	return s.query(ctx, selectColumns+orderByDisplay+` LIMIT ? OFFSET ?`, limit, offset)
}

// CountAll returns the number of stored units.
func (s *DBStore) CountAll(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM noti_drawer`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count units: %w", err)
	}
	return n, nil
}

// GetBySbnKey returns the units stored under sbnKey (zero or one).
func (s *DBStore) GetBySbnKey(ctx context.Context, sbnKey string) ([]NotiUnit, error) {
	return s.query(ctx, selectColumns+` WHERE sbn_key = ?`, sbnKey)
}

// GetByHashKey returns the units sharing hashKey.
func (s *DBStore) GetByHashKey(ctx context.Context, hashKey int64) ([]NotiUnit, error) {
	return s.query(ctx, selectColumns+` WHERE hash_key = ?`+orderByDisplay, hashKey)
}

const insertColumns = `
		INSERT INTO noti_drawer (sbn_key, hash_key, app_name, is_people, title, noti_infos, prev_noti_infos, score, ranking, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// Insert stores unit, replacing any unit with the same key.
func (s *DBStore) Insert(ctx context.Context, unit NotiUnit) error {
	args, err := unitArgs(unit)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, insertColumns+`
		ON CONFLICT (sbn_key) DO UPDATE SET
			hash_key = excluded.hash_key,
			app_name = excluded.app_name,
			is_people = excluded.is_people,
			title = excluded.title,
			noti_infos = excluded.noti_infos,
			prev_noti_infos = excluded.prev_noti_infos,
			score = excluded.score,
			ranking = excluded.ranking,
			updated_at = excluded.updated_at`, args...)
	if err != nil {
		s.logger.Error("failed to insert unit",
			slog.String("sbn_key", unit.SbnKey),
			slog.String("error", err.Error()))
		return fmt.Errorf("failed to insert unit: %w", err)
	}

	s.logger.Debug("unit stored", slog.String("sbn_key", unit.SbnKey))
	return nil
}

// Update rewrites an existing unit. It returns ErrNotFound if the key is unknown.
func (s *DBStore) Update(ctx context.Context, unit NotiUnit) error {
	n, err := s.update(ctx, s.db.DB, unit)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("update %s: %w", unit.SbnKey, ErrNotFound)
	}
	return nil
}

// UpdateList rewrites units in one transaction. Unknown keys are skipped.
func (s *DBStore) UpdateList(ctx context.Context, units []NotiUnit) error {
	if len(units) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, unit := range units {
		if _, err := s.update(ctx, tx, unit); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit unit updates: %w", err)
	}

	s.logger.Debug("units updated", slog.Int("count", len(units)))
	return nil
}

// Modify reads the unit under sbnKey, lets fn change it and writes it back in
// one transaction. On postgres the row is locked for the duration; a key
// created concurrently by another writer makes the call start over.
func (s *DBStore) Modify(ctx context.Context, sbnKey string, fn ModifyFunc) (*NotiUnit, error) {
	for attempt := 1; attempt <= modifyAttempts; attempt++ {
		unit, conflict, err := s.modifyOnce(ctx, sbnKey, fn)
		if err != nil {
			return nil, err
		}
		if !conflict {
			return unit, nil
		}
		s.logger.Debug("unit created concurrently, retrying",
			slog.String("sbn_key", sbnKey),
			slog.Int("attempt", attempt))
	}
	return nil, fmt.Errorf("failed to modify unit %s: key kept changing under concurrent writers", sbnKey)
}

func (s *DBStore) modifyOnce(ctx context.Context, sbnKey string, fn ModifyFunc) (*NotiUnit, bool, error) {
	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := selectColumns + ` WHERE sbn_key = ?`
	if s.db.Driver == storage.DriverPostgres {
		query += ` FOR UPDATE`
	}
	rows, err := tx.QueryContext(ctx, s.db.Rebind(query), sbnKey)
	if err != nil {
		return nil, false, fmt.Errorf("failed to query unit: %w", err)
	}
	existing, err := scanUnits(rows)
	if err != nil {
		return nil, false, err
	}

	var unit NotiUnit
	exists := len(existing) > 0
	if exists {
		unit = existing[0]
	}
	if err := fn(&unit, exists); err != nil {
		return nil, false, err
	}
	unit.SbnKey = sbnKey

	if exists {
		if _, err := s.update(ctx, tx, unit); err != nil {
			return nil, false, err
		}
	} else {
		args, err := unitArgs(unit)
		if err != nil {
			return nil, false, err
		}
		res, err := tx.ExecContext(ctx, s.db.Rebind(insertColumns+` ON CONFLICT (sbn_key) DO NOTHING`), args...)
		if err != nil {
			return nil, false, fmt.Errorf("failed to insert unit: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, false, fmt.Errorf("failed to read affected rows: %w", err)
		}
		if n == 0 {
			return nil, true, nil
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit unit: %w", err)
	}
	return &unit, false, nil
}

// DeleteBySbnKey removes the unit stored under sbnKey.
func (s *DBStore) DeleteBySbnKey(ctx context.Context, sbnKey string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM noti_drawer WHERE sbn_key = ?`, sbnKey); err != nil {
		return fmt.Errorf("failed to delete unit %s: %w", sbnKey, err)
	}
	return nil
}

// DeleteAll empties the drawer.
func (s *DBStore) DeleteAll(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM noti_drawer`); err != nil {
		return fmt.Errorf("failed to clear drawer: %w", err)
	}
	s.logger.Info("drawer cleared")
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *DBStore) update(ctx context.Context, ex execer, unit NotiUnit) (int64, error) {
	args, err := unitArgs(unit)
	if err != nil {
		return 0, err
	}
	// Move sbn_key from the front to the WHERE clause.
	args = append(args[1:], args[0])

	res, err := ex.ExecContext(ctx, s.db.Rebind(`
		UPDATE noti_drawer SET
			hash_key = ?, app_name = ?, is_people = ?, title = ?,
			noti_infos = ?, prev_noti_infos = ?, score = ?, ranking = ?, updated_at = ?
		WHERE sbn_key = ?`), args...)
	if err != nil {
		s.logger.Error("failed to update unit",
			slog.String("sbn_key", unit.SbnKey),
			slog.String("error", err.Error()))
		return 0, fmt.Errorf("failed to update unit: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n, nil
}

func (s *DBStore) query(ctx context.Context, query string, args ...any) ([]NotiUnit, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query units: %w", err)
	}
	return scanUnits(rows)
}

func scanUnits(rows *sql.Rows) ([]NotiUnit, error) {
	defer rows.Close()

	var units []NotiUnit
	for rows.Next() {
		var (
			unit       NotiUnit
			infos      string
			prevInfos  string
			updatedAtM int64
		)
		if err := rows.Scan(&unit.SbnKey, &unit.HashKey, &unit.AppName, &unit.IsPeople, &unit.Title,
			&infos, &prevInfos, &unit.Score, &unit.Ranking, &updatedAtM); err != nil {
			return nil, fmt.Errorf("failed to scan unit: %w", err)
		}
		if err := json.Unmarshal([]byte(infos), &unit.NotiInfos); err != nil {
			return nil, fmt.Errorf("failed to decode noti_infos of %s: %w", unit.SbnKey, err)
		}
		if err := json.Unmarshal([]byte(prevInfos), &unit.PrevNotiInfos); err != nil {
			return nil, fmt.Errorf("failed to decode prev_noti_infos of %s: %w", unit.SbnKey, err)
		}
		if updatedAtM > 0 {
			unit.UpdatedAt = time.UnixMilli(updatedAtM)
		}
		units = append(units, unit)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating units: %w", err)
	}

	return units, nil
}

func unitArgs(unit NotiUnit) ([]any, error) {
	infos, err := marshalInfos(unit.NotiInfos)
	if err != nil {
		return nil, err
	}
	prevInfos, err := marshalInfos(unit.PrevNotiInfos)
	if err != nil {
		return nil, err
	}

	updatedAt := unit.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	return []any{
		unit.SbnKey, unit.HashKey, unit.AppName, unit.IsPeople, unit.Title,
		infos, prevInfos, unit.Score, unit.Ranking, updatedAt.UnixMilli(),
	}, nil
}

func marshalInfos(infos []NotiInfo) (string, error) {
	if infos == nil {
		infos = []NotiInfo{}
	}
	b, err := json.Marshal(infos)
	if err != nil {
		return "", fmt.Errorf("failed to encode infos: %w", err)
	}
	return string(b), nil
}

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

package notifications

import (
	"context"
	"fmt"
	"time"

	"github.com/muilab/notigpt/internal/storage"
)

// TokenStore keeps push tokens in the device_tokens table.
type TokenStore struct {
	db *storage.Database
}

// NewTokenStore creates a token store on db.
func NewTokenStore(db *storage.Database) *TokenStore {
	return &TokenStore{db: db}
}

// Register inserts or refreshes a token.
func (ts *TokenStore) Register(ctx context.Context, device Device) error {
	updatedAt := device.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	_, err := ts.db.ExecContext(ctx, `
		INSERT INTO device_tokens (token, device_id, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (token) DO UPDATE SET
			device_id = excluded.device_id,
			updated_at = excluded.updated_at`,
		device.Token, device.DeviceID, updatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to register device token: %w", err)
	}
	return nil
}

// Remove deletes a token. Removing an unknown token is not an error.
func (ts *TokenStore) Remove(ctx context.Context, token string) error {
	if _, err := ts.db.ExecContext(ctx, `DELETE FROM device_tokens WHERE token = ?`, token); err != nil {
		return fmt.Errorf("failed to remove device token: %w", err)
	}
	return nil
}

// All returns every registered device, most recently updated first.
func (ts *TokenStore) All(ctx context.Context) ([]Device, error) {
	rows, err := ts.db.QueryContext(ctx, `
		SELECT token, device_id, updated_at
		FROM device_tokens
		ORDER BY updated_at DESC, token ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query device tokens: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		var (
			d          Device
			updatedAtM int64
		)
		if err := rows.Scan(&d.Token, &d.DeviceID, &updatedAtM); err != nil {
			return nil, fmt.Errorf("failed to scan device token: %w", err)
		}
		d.UpdatedAt = time.UnixMilli(updatedAtM)
		devices = append(devices, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating device tokens: %w", err)
	}

	return devices, nil
}

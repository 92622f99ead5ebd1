// Package kv provides small persistent buckets that scripts use to remember
// values between scene runs, for example which preset a cycling scene showed
// last. Values are stored as JSON and may expire.
package kv

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// Bucket is a namespace in the kv_store table.
type Bucket struct {
	db   *sql.DB
	name string
	now  func() time.Time
}

// NewBucket returns the named bucket.
func NewBucket(db *sql.DB, name string) *Bucket {
	return &Bucket{db: db, name: name, now: time.Now}
}

// Name returns the bucket name.
func (b *Bucket) Name() string {
	return b.name
}

// Set stores value under key. A positive ttl makes the key expire.
func (b *Bucket) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	now := b.now().UTC()
	var expiresAt *int64
	if ttl > 0 {
		exp := now.Add(ttl).UnixMilli()
		expiresAt = &exp
	}

	_, err = b.db.ExecContext(ctx, `
		INSERT INTO kv_store (bucket, key, value, expires_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(bucket, key) DO UPDATE SET
			value = excluded.value,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at
	`, b.name, key, string(data), expiresAt, now.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to store %q: %w", key, err)
	}
	return nil
}

// Get returns the decoded value, or nil when the key is missing or expired.
func (b *Bucket) Get(ctx context.Context, key string) (any, error) {
	var raw string
	var expiresAt sql.NullInt64

	err := b.db.QueryRowContext(ctx, `
		SELECT value, expires_at FROM kv_store
		WHERE bucket = ? AND key = ?
	`, b.name, key).Scan(&raw, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %q: %w", key, err)
	}

	if expiresAt.Valid && b.now().UTC().UnixMilli() >= expiresAt.Int64 {
		if _, err := b.Delete(ctx, key); err != nil {
			log.Warn().Err(err).Str("bucket", b.name).Str("key", key).Msg("Failed to drop expired key")
		}
		return nil, nil
	}

	var value any
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %q: %w", key, err)
	}
	return value, nil
}

// Delete removes key and reports whether it existed.
func (b *Bucket) Delete(ctx context.Context, key string) (bool, error) {
	result, err := b.db.ExecContext(ctx, `
		DELETE FROM kv_store WHERE bucket = ? AND key = ?
	`, b.name, key)
	if err != nil {
		return false, fmt.Errorf("failed to delete %q: %w", key, err)
	}
	affected, _ := result.RowsAffected()
	return affected > 0, nil
}

// Keys returns the live keys in name order.
func (b *Bucket) Keys(ctx context.Context) ([]string, error) {
	rows, err := b.db.QueryContext(ctx, `
		SELECT key FROM kv_store
		WHERE bucket = ? AND (expires_at IS NULL OR expires_at > ?)
		ORDER BY key
	`, b.name, b.now().UTC().UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// Clear removes every key in the bucket.
func (b *Bucket) Clear(ctx context.Context) error {
	if _, err := b.db.ExecContext(ctx, `DELETE FROM kv_store WHERE bucket = ?`, b.name); err != nil {
		return fmt.Errorf("failed to clear bucket %q: %w", b.name, err)
	}
	return nil
}

// DeleteExpired removes expired keys across all buckets.
func DeleteExpired(ctx context.Context, db *sql.DB) (int64, error) {
	result, err := db.ExecContext(ctx, `
		DELETE FROM kv_store WHERE expires_at IS NOT NULL AND expires_at <= ?
	`, time.Now().UTC().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired keys: %w", err)
	}
	return result.RowsAffected()
}

// Package ledger provides an append-only history of light applies and the IR
// frames they produced. There is no acknowledgment from the fixtures, so this
// is the only record of what was actually sent.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// EntryType represents the type of entry in the ledger
type EntryType string

const (
	EntryApply          EntryType = "apply"
	EntryTransmit       EntryType = "transmit"
	EntryTransmitFailed EntryType = "transmit_failed"
)

// Entry represents a single row in the ledger
type Entry struct {
	ID        int64          `json:"id"`
	Type      EntryType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	BatchID   string         `json:"batch_id"`
	LightID   string         `json:"light_id"`
	Signal    string         `json:"signal,omitempty"`
	Times     int            `json:"times,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// Batch groups the entries produced by one apply of one light.
type Batch struct {
	ID      string
	LightID string
}

// NewBatch starts a batch for a light.
func NewBatch(lightID string) Batch {
	return Batch{ID: uuid.NewString(), LightID: lightID}
}

type batchKey struct{}

// WithBatch attaches a batch to ctx so senders down the stack can attribute
// their frames.
func WithBatch(ctx context.Context, b Batch) context.Context {
	return context.WithValue(ctx, batchKey{}, b)
}

// BatchFrom returns the batch attached to ctx.
func BatchFrom(ctx context.Context) (Batch, bool) {
	b, ok := ctx.Value(batchKey{}).(Batch)
	return b, ok
}

// Ledger provides append-only history
type Ledger struct {
	db  *sql.DB
	now func() time.Time
}

// New creates a new Ledger using the provided database connection
func New(db *sql.DB) *Ledger {
	return &Ledger{db: db, now: time.Now}
}

// Append adds a new entry. Timestamp is set when zero.
func (l *Ledger) Append(ctx context.Context, e Entry) error {
	var payloadJSON []byte
	var err error

	if e.Payload != nil {
		payloadJSON, err = json.Marshal(e.Payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
	}

	ts := e.Timestamp
	if ts.IsZero() {
		ts = l.now()
	}

	_, err = l.db.ExecContext(ctx, `
		INSERT INTO ir_ledger (entry_type, timestamp, batch_id, light_id, signal, times, payload, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, string(e.Type), ts.UTC().UnixMilli(), e.BatchID, e.LightID, e.Signal, e.Times, string(payloadJSON), e.Error)

	return err
}

// RecordApply stores the apply that opened a batch.
func (l *Ledger) RecordApply(ctx context.Context, b Batch, payload map[string]any) error {
	return l.Append(ctx, Entry{
		Type:    EntryApply,
		BatchID: b.ID,
		LightID: b.LightID,
		Payload: payload,
	})
}

const selectEntries = `
	SELECT id, entry_type, timestamp, batch_id, light_id, signal, times, payload, error
	FROM ir_ledger
`

// Recent returns the newest entries first.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]*Entry, error) {
	rows, err := l.db.QueryContext(ctx, selectEntries+`
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return l.scanEntries(rows)
}

// ByLight returns the newest entries for a light first.
func (l *Ledger) ByLight(ctx context.Context, lightID string, limit int) ([]*Entry, error) {
	rows, err := l.db.QueryContext(ctx, selectEntries+`
		WHERE light_id = ?
		ORDER BY id DESC
		LIMIT ?
	`, lightID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return l.scanEntries(rows)
}

// Batch returns the entries of one batch in the order they were written.
func (l *Ledger) Batch(ctx context.Context, batchID string) ([]*Entry, error) {
	rows, err := l.db.QueryContext(ctx, selectEntries+`
		WHERE batch_id = ?
		ORDER BY id ASC
	`, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return l.scanEntries(rows)
}

// DeleteOlderThan removes entries older than the specified duration (retention policy)
func (l *Ledger) DeleteOlderThan(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := l.now().Add(-retention).UTC().UnixMilli()
	result, err := l.db.ExecContext(ctx, `
		DELETE FROM ir_ledger WHERE timestamp < ?
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// RunCleanup periodically removes entries older than retention until ctx is done.
func (l *Ledger) RunCleanup(ctx context.Context, interval, retention time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := l.DeleteOlderThan(ctx, retention)
			if err != nil {
				log.Error().Err(err).Msg("Failed to cleanup old ledger entries")
			} else if deleted > 0 {
				log.Info().Int64("deleted", deleted).Dur("retention", retention).Msg("Cleaned up old ledger entries")
			}
		}
	}
}

func (l *Ledger) scanEntries(rows *sql.Rows) ([]*Entry, error) {
	var entries []*Entry
	for rows.Next() {
		var entry Entry
		var payloadStr, signal, errStr sql.NullString
		var times sql.NullInt64
		var timestamp int64

		err := rows.Scan(
			&entry.ID, &entry.Type, &timestamp, &entry.BatchID, &entry.LightID,
			&signal, &times, &payloadStr, &errStr,
		)
		if err != nil {
			return nil, err
		}

		entry.Timestamp = time.UnixMilli(timestamp).UTC()
		entry.Signal = signal.String
		entry.Times = int(times.Int64)
		entry.Error = errStr.String

		if payloadStr.Valid && payloadStr.String != "" {
			entry.Payload = make(map[string]any)
			if err := json.Unmarshal([]byte(payloadStr.String), &entry.Payload); err != nil {
				return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
			}
		}

		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}

package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"github.com/jrsteele09/go-accounting-sync/entities"
	syncerrors "github.com/jrsteele09/go-accounting-sync/internal/errors"
)

// EntityRepo stores one kind of local record. The record body is kept as
// JSON; the sync state lives in its own columns so the sync engine can
// update it without rewriting the record.
type EntityRepo[T entities.Syncable] struct {
	db    *sql.DB
	table string
}

func newEntityRepo[T entities.Syncable](db *sql.DB, table string) *EntityRepo[T] {
	return &EntityRepo[T]{db: db, table: table}
}

// Upsert inserts rec or replaces its body. The sync state of an existing
// row is left alone.
func (r *EntityRepo[T]) Upsert(ctx context.Context, rec T) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("%s %s: encode: %w", r.table, rec.Key(), err)
	}
	state := rec.Sync()
	if state.SyncStatus == "" {
		state.SyncStatus = entities.SyncStatusUnsynced
	}
	var syncedAt sql.NullString
	if state.SyncedAt != nil {
		syncedAt = formatTime(*state.SyncedAt)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO `+r.table+` (local_id, data, remote_id, sync_status, synced_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(local_id) DO UPDATE SET data = excluded.data`,
		rec.Key(), string(data), nullString(state.RemoteID), string(state.SyncStatus), syncedAt)
	if err != nil {
		return fmt.Errorf("%s %s: save: %w", r.table, rec.Key(), err)
	}
	return nil
}

func (r *EntityRepo[T]) Get(ctx context.Context, localID string) (T, error) {
	row := r.db.QueryRowContext(ctx, `SELECT data, remote_id, sync_status, synced_at FROM `+r.table+` WHERE local_id = ?`, localID)
	rec, err := r.scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		var zero T
		return zero, fmt.Errorf("%s %s: %w", r.table, localID, syncerrors.ErrNotFound)
	}
	if err != nil {
		var zero T
		return zero, fmt.Errorf("%s %s: %w", r.table, localID, err)
	}
	return rec, nil
}

func (r *EntityRepo[T]) List(ctx context.Context) ([]T, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT data, remote_id, sync_status, synced_at FROM `+r.table+` ORDER BY local_id`)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", r.table, err)
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		rec, err := r.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", r.table, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// UpdateSyncState writes state for localID. Setting a remote id different
// from one already stored is refused.
func (r *EntityRepo[T]) UpdateSyncState(ctx context.Context, localID string, state entities.SyncState) error {
	var syncedAt sql.NullString
	if state.SyncedAt != nil {
		syncedAt = formatTime(*state.SyncedAt)
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE `+r.table+`
		SET remote_id = COALESCE(remote_id, ?), sync_status = ?, synced_at = COALESCE(?, synced_at)
		WHERE local_id = ? AND (remote_id IS NULL OR ? IS NULL OR remote_id = ?)`,
		nullString(state.RemoteID), string(state.SyncStatus), syncedAt, localID, nullString(state.RemoteID), nullString(state.RemoteID))
	if err != nil {
		return fmt.Errorf("%s %s: update sync state: %w", r.table, localID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 1 {
		return nil
	}

	var existing sql.NullString
	err = r.db.QueryRowContext(ctx, `SELECT remote_id FROM `+r.table+` WHERE local_id = ?`, localID).Scan(&existing)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", r.table, localID, syncerrors.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("%s %s: update sync state: %w", r.table, localID, err)
	}
	return fmt.Errorf("%s %s: remote id %s cannot be replaced by %s: %w", r.table, localID, existing.String, state.RemoteID, syncerrors.ErrInternal)
}

type scanner interface {
	Scan(dest ...any) error
}

func (r *EntityRepo[T]) scan(row scanner) (T, error) {
	var (
		zero               T
		data               string
		remoteID, syncedAt sql.NullString
		status             string
	)
	if err := row.Scan(&data, &remoteID, &status, &syncedAt); err != nil {
		return zero, err
	}
	// T is a pointer type; allocate the pointee before decoding.
	rec := reflect.New(reflect.TypeOf(zero).Elem()).Interface().(T)
	if err := json.Unmarshal([]byte(data), rec); err != nil {
		return zero, fmt.Errorf("decode: %w", err)
	}
	state := entities.SyncState{RemoteID: remoteID.String, SyncStatus: entities.SyncStatus(status)}
	if syncedAt.Valid {
		t, err := parseTime(syncedAt)
		if err != nil {
			return zero, err
		}
		state.SyncedAt = &t
	}
	rec.SetSync(state)
	return rec, nil
}

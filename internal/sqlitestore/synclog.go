package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jrsteele09/go-accounting-sync/entities"
	syncerrors "github.com/jrsteele09/go-accounting-sync/internal/errors"
	"github.com/jrsteele09/go-accounting-sync/synclog"
)

type SyncLogRepo struct {
	db *sql.DB
}

var _ synclog.Repo = (*SyncLogRepo)(nil)

func (r *SyncLogRepo) Append(ctx context.Context, e *synclog.Entry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sync_log (id, entity_type, entity_local_id, action, status, remote_id, error_message, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.EntityType), e.EntityLocalID, string(e.Action), string(e.Status),
		nullString(e.RemoteID), nullString(e.ErrorMessage), nullString(string(e.Reason)), formatTime(e.Timestamp).String)
	if err != nil {
		return fmt.Errorf("append sync log entry %s: %w", e.ID, err)
	}
	return nil
}

// ListRecent returns up to limit entries, newest first.
func (r *SyncLogRepo) ListRecent(ctx context.Context, limit int) ([]*synclog.Entry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, entity_type, entity_local_id, action, status, remote_id, error_message, reason, created_at
		FROM sync_log ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list sync log: %w", err)
	}
	defer rows.Close()

	var out []*synclog.Entry
	for rows.Next() {
		var (
			e                     synclog.Entry
			kind, action, status  string
			remoteID, msg, reason sql.NullString
			createdAt             sql.NullString
		)
		if err := rows.Scan(&e.ID, &kind, &e.EntityLocalID, &action, &status, &remoteID, &msg, &reason, &createdAt); err != nil {
			return nil, fmt.Errorf("list sync log: %w", err)
		}
		e.EntityType = entities.Kind(kind)
		e.Action = synclog.Action(action)
		e.Status = synclog.Status(status)
		e.RemoteID = remoteID.String
		e.ErrorMessage = msg.String
		e.Reason = syncerrors.Kind(reason.String)
		if e.Timestamp, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

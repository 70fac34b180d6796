package synclog

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-accounting-sync/entities"
	syncerrors "github.com/jrsteele09/go-accounting-sync/internal/errors"
)

type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
)

type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Entry records one sync attempt. Entries are append-only.
type Entry struct {
	ID            string          `json:"id"`
	EntityType    entities.Kind   `json:"entityType"`
	EntityLocalID string          `json:"entityLocalId"`
	Action        Action          `json:"action"`
	Status        Status          `json:"status"`
	RemoteID      string          `json:"remoteId,omitempty"`
	ErrorMessage  string          `json:"errorMessage,omitempty"`
	Reason        syncerrors.Kind `json:"reason,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
}

// Repo is the append target and read side of the sync log.
type Repo interface {
	Append(ctx context.Context, entry *Entry) error
	// ListRecent returns at most limit entries, newest first.
	ListRecent(ctx context.Context, limit int) ([]*Entry, error)
}

func NewSuccess(kind entities.Kind, localID string, action Action, remoteID string, at time.Time) *Entry {
	return &Entry{
		ID:            uuid.NewString(),
		EntityType:    kind,
		EntityLocalID: localID,
		Action:        action,
		Status:        StatusSuccess,
		RemoteID:      remoteID,
		Timestamp:     at,
	}
}

func NewFailure(kind entities.Kind, localID string, action Action, remoteID string, err error, at time.Time) *Entry {
	return &Entry{
		ID:            uuid.NewString(),
		EntityType:    kind,
		EntityLocalID: localID,
		Action:        action,
		Status:        StatusError,
		RemoteID:      remoteID,
		ErrorMessage:  err.Error(),
		Reason:        syncerrors.Classify(err),
		Timestamp:     at,
	}
}

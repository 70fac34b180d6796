package entities

import (
	"context"
	"time"
)

// Kind names a syncable entity type.
type Kind string

const (
	KindCustomer      Kind = "customer"
	KindItem          Kind = "item"
	KindSalesDocument Kind = "sales_document"
)

func (k Kind) Valid() bool {
	switch k {
	case KindCustomer, KindItem, KindSalesDocument:
		return true
	}
	return false
}

type SyncStatus string

const (
	SyncStatusUnsynced SyncStatus = "unsynced"
	SyncStatusSynced   SyncStatus = "synced"
	SyncStatusError    SyncStatus = "error"
)

// SyncState is the part of a local record owned by the sync engine.
// RemoteID is empty until the first successful create and never changes after.
type SyncState struct {
	RemoteID   string     `json:"remoteId,omitempty"`
	SyncStatus SyncStatus `json:"syncStatus"`
	SyncedAt   *time.Time `json:"syncedAt,omitempty"`
}

func (s SyncState) HasRemoteID() bool {
	return s.RemoteID != ""
}

// Syncable is implemented by every local record the engine can push.
type Syncable interface {
	Key() string
	Sync() SyncState
	SetSync(SyncState)
}

// Repo is the slice of the local store the engine reads and writes.
type Repo[T Syncable] interface {
	Get(ctx context.Context, localID string) (T, error)
	List(ctx context.Context) ([]T, error)
	// UpdateSyncState writes only the sync columns of the record.
	UpdateSyncState(ctx context.Context, localID string, state SyncState) error
}

// Address is a postal address.
type Address struct {
	Line1      string `json:"line1,omitempty"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city,omitempty"`
	Region     string `json:"region,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
	Country    string `json:"country,omitempty"`
}

func (a Address) IsZero() bool {
	return a == Address{}
}

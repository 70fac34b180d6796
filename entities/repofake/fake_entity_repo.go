package entityrepofake

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/jrsteele09/go-accounting-sync/entities"
	syncerrors "github.com/jrsteele09/go-accounting-sync/internal/errors"
)

// FakeRepo is an in-memory entities.Repo. Records are deep-copied on the way
// in and out so callers never share state with the store.
type FakeRepo[T entities.Syncable] struct {
	records map[string]T
	lock    sync.RWMutex
}

func NewFakeRepo[T entities.Syncable](initial ...T) *FakeRepo[T] {
	r := &FakeRepo[T]{records: make(map[string]T)}
	for _, rec := range initial {
		r.records[rec.Key()] = deepCopy(rec)
	}
	return r
}

func NewFakeCustomerRepo(initial ...*entities.Customer) *FakeRepo[*entities.Customer] {
	return NewFakeRepo(initial...)
}

func NewFakeItemRepo(initial ...*entities.Item) *FakeRepo[*entities.Item] {
	return NewFakeRepo(initial...)
}

func NewFakeSalesDocumentRepo(initial ...*entities.SalesDocument) *FakeRepo[*entities.SalesDocument] {
	return NewFakeRepo(initial...)
}

func (r *FakeRepo[T]) Upsert(rec T) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.records[rec.Key()] = deepCopy(rec)
}

func (r *FakeRepo[T]) Get(_ context.Context, localID string) (T, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	rec, ok := r.records[localID]
	if !ok {
		var zero T
		return zero, fmt.Errorf("record %s: %w", localID, syncerrors.ErrNotFound)
	}
	return deepCopy(rec), nil
}

func (r *FakeRepo[T]) List(_ context.Context) ([]T, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	keys := make([]string, 0, len(r.records))
	for k := range r.records {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]T, 0, len(keys))
	for _, k := range keys {
		out = append(out, deepCopy(r.records[k]))
	}
	return out, nil
}

func (r *FakeRepo[T]) UpdateSyncState(_ context.Context, localID string, state entities.SyncState) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	rec, ok := r.records[localID]
	if !ok {
		return fmt.Errorf("record %s: %w", localID, syncerrors.ErrNotFound)
	}
	rec.SetSync(state)
	return nil
}

// SyncState returns the stored sync state of a record, for assertions.
func (r *FakeRepo[T]) SyncState(localID string) entities.SyncState {
	r.lock.RLock()
	defer r.lock.RUnlock()
	rec, ok := r.records[localID]
	if !ok {
		return entities.SyncState{}
	}
	return rec.Sync()
}

func deepCopy[T entities.Syncable](rec T) T {
	raw, err := json.Marshal(rec)
	if err != nil {
		panic(err)
	}
	// T is a pointer type; allocate the pointee before decoding.
	out := reflect.New(reflect.TypeOf(rec).Elem()).Interface().(T)
	if err := json.Unmarshal(raw, out); err != nil {
		panic(err)
	}
	return out
}

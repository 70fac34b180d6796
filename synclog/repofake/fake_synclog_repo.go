package synclogrepofake

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-accounting-sync/synclog"
)

var _ synclog.Repo = (*FakeSyncLogRepo)(nil)

type FakeSyncLogRepo struct {
	entries   []synclog.Entry
	appendErr error
	lock      sync.RWMutex
}

func NewFakeSyncLogRepo() *FakeSyncLogRepo {
	return &FakeSyncLogRepo{}
}

func (r *FakeSyncLogRepo) Append(_ context.Context, entry *synclog.Entry) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.appendErr != nil {
		return r.appendErr
	}
	r.entries = append(r.entries, *entry)
	return nil
}

// FailAppends makes every following Append return err; nil restores it.
func (r *FakeSyncLogRepo) FailAppends(err error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.appendErr = err
}

func (r *FakeSyncLogRepo) ListRecent(_ context.Context, limit int) ([]*synclog.Entry, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	if limit <= 0 || limit > len(r.entries) {
		limit = len(r.entries)
	}
	out := make([]*synclog.Entry, 0, limit)
	for i := len(r.entries) - 1; i >= 0 && len(out) < limit; i-- {
		e := r.entries[i]
		out = append(out, &e)
	}
	return out, nil
}

// All returns every entry in append order.
func (r *FakeSyncLogRepo) All() []synclog.Entry {
	r.lock.RLock()
	defer r.lock.RUnlock()
	out := make([]synclog.Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// ForEntity returns the entries of one entity in append order.
func (r *FakeSyncLogRepo) ForEntity(localID string) []synclog.Entry {
	r.lock.RLock()
	defer r.lock.RUnlock()
	var out []synclog.Entry
	for _, e := range r.entries {
		if e.EntityLocalID == localID {
			out = append(out, e)
		}
	}
	return out
}

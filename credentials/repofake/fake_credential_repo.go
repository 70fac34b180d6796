package credentialrepofake

import (
	"context"
	"fmt"
	"sync"

	"github.com/jrsteele09/go-accounting-sync/credentials"
	syncerrors "github.com/jrsteele09/go-accounting-sync/internal/errors"
)

var _ credentials.Repo = (*FakeCredentialRepo)(nil)

type FakeCredentialRepo struct {
	credentials map[string]*credentials.RemoteCredential
	upserts     int
	lock        sync.RWMutex
}

func NewFakeCredentialRepo(initial ...*credentials.RemoteCredential) *FakeCredentialRepo {
	r := &FakeCredentialRepo{
		credentials: make(map[string]*credentials.RemoteCredential),
	}
	for _, c := range initial {
		r.credentials[c.RealmID] = c.Clone()
	}
	return r
}

func (r *FakeCredentialRepo) Get(_ context.Context, realmID string) (*credentials.RemoteCredential, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	c, ok := r.credentials[realmID]
	if !ok {
		return nil, fmt.Errorf("realm %s: %w", realmID, syncerrors.ErrNotFound)
	}
	return c.Clone(), nil
}

func (r *FakeCredentialRepo) Upsert(_ context.Context, credential *credentials.RemoteCredential) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.credentials[credential.RealmID] = credential.Clone()
	r.upserts++
	return nil
}

// Upserts returns how many times a credential has been written.
func (r *FakeCredentialRepo) Upserts() int {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return r.upserts
}

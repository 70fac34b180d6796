package syncmanager

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-accounting-sync/entities"
	"github.com/jrsteele09/go-accounting-sync/entitysync"
	syncerrors "github.com/jrsteele09/go-accounting-sync/internal/errors"
	"github.com/rs/zerolog/log"
)

// run is the state shared by the workers of one manager invocation.
type run struct {
	memo depMemo

	mu    sync.Mutex
	fatal error
}

func newRun() *run {
	return &run{memo: depMemo{calls: make(map[depKey]*depCall)}}
}

// observe records the first account-fatal failure. Once set, no new entity
// is started in this run.
func (r *run) observe(out entitysync.Outcome) {
	if !out.Failed() || !syncerrors.IsAccountFatal(out.Err) {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fatal != nil {
		return
	}
	r.fatal = out.Err
	log.Error().
		Err(out.Err).
		Str("entity_type", string(out.EntityType)).
		Str("local_id", out.LocalID).
		Msg("authorization lost, aborting remaining syncs")
}

func (r *run) err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fatal
}

func (r *run) stopped(ctx context.Context) bool {
	return ctx.Err() != nil || r.err() != nil
}

func (r *run) stopErr(ctx context.Context) error {
	if err := r.err(); err != nil {
		return err
	}
	return ctx.Err()
}

type depKey struct {
	kind    entities.Kind
	localID string
}

type depCall struct {
	done chan struct{}
	out  entitysync.Outcome
}

// depMemo makes sure each dependency is synced at most once per run, even
// when several documents reach it concurrently. Later callers wait for and
// share the first caller's outcome.
type depMemo struct {
	mu    sync.Mutex
	calls map[depKey]*depCall
}

// seed records an outcome produced outside the memo, e.g. by an earlier phase.
func (m *depMemo) seed(out entitysync.Outcome) {
	key := depKey{kind: out.EntityType, localID: out.LocalID}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.calls[key]; ok {
		return
	}
	c := &depCall{done: make(chan struct{}), out: out}
	close(c.done)
	m.calls[key] = c
}

func (m *depMemo) do(kind entities.Kind, localID string, fn func() entitysync.Outcome) entitysync.Outcome {
	key := depKey{kind: kind, localID: localID}
	m.mu.Lock()
	if c, ok := m.calls[key]; ok {
		m.mu.Unlock()
		<-c.done
		return c.out
	}
	c := &depCall{done: make(chan struct{})}
	m.calls[key] = c
	m.mu.Unlock()

	c.out = fn()
	close(c.done)
	return c.out
}

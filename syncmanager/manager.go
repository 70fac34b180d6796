package syncmanager

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jrsteele09/go-accounting-sync/credentials"
	"github.com/jrsteele09/go-accounting-sync/entities"
	"github.com/jrsteele09/go-accounting-sync/entitysync"
	"github.com/jrsteele09/go-accounting-sync/internal/config"
	syncerrors "github.com/jrsteele09/go-accounting-sync/internal/errors"
	"github.com/jrsteele09/go-accounting-sync/remote"
	"github.com/jrsteele09/go-accounting-sync/synclog"
	"github.com/jrsteele09/go-accounting-sync/token"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const (
	defaultWorkers  = 4
	defaultLogLimit = 50
	maxLogLimit     = 500
)

// Repos are the local stores the manager syncs from and records into.
type Repos struct {
	Credentials credentials.Repo
	Customers   entities.Repo[*entities.Customer]
	Items       entities.Repo[*entities.Item]
	Documents   entities.Repo[*entities.SalesDocument]
	Log         synclog.Repo
}

// BatchResult holds the outcomes of a full run, per kind.
type BatchResult struct {
	Customers []entitysync.Outcome `json:"customers"`
	Items     []entitysync.Outcome `json:"items"`
	Documents []entitysync.Outcome `json:"documents"`
}

// Failed counts failed outcomes across all kinds.
func (b *BatchResult) Failed() int {
	n := 0
	for _, outs := range [][]entitysync.Outcome{b.Customers, b.Items, b.Documents} {
		for _, o := range outs {
			if o.Failed() {
				n++
			}
		}
	}
	return n
}

// Manager is the entry point for syncing local records to the remote
// accounting system. It orders documents after the customers and items
// they reference and runs batches on a bounded worker pool.
type Manager struct {
	customers *entitysync.Service[*entities.Customer]
	items     *entitysync.Service[*entities.Item]
	documents *entitysync.Service[*entities.SalesDocument]

	customerRepo entities.Repo[*entities.Customer]
	itemRepo     entities.Repo[*entities.Item]
	log          synclog.Repo
	workers      int
}

type managerOptions struct {
	workers              int
	defaultIncomeAccount string
	nowFunc              func() time.Time
}

type Option func(*managerOptions)

// WithWorkers sets the number of entities synced concurrently in a batch.
func WithWorkers(n int) Option {
	return func(o *managerOptions) {
		o.workers = n
	}
}

func WithDefaultIncomeAccount(name string) Option {
	return func(o *managerOptions) {
		o.defaultIncomeAccount = name
	}
}

func WithNowFunc(now func() time.Time) Option {
	return func(o *managerOptions) {
		o.nowFunc = now
	}
}

// New builds a Manager from configuration. It is the only place the token
// manager and the remote client are constructed.
func New(cfg config.Config, repos Repos, httpClient *http.Client) (*Manager, error) {
	required := []struct{ name, value string }{
		{"SYNC_REALM_ID", cfg.GetRealmID()},
		{"SYNC_CLIENT_ID", cfg.GetClientID()},
		{"SYNC_CLIENT_SECRET", cfg.GetClientSecret()},
		{"SYNC_TOKEN_URL", cfg.GetTokenURL()},
		{"SYNC_API_BASE_URL", cfg.GetAPIBaseURL()},
	}
	for _, r := range required {
		if r.value == "" {
			return nil, fmt.Errorf("%s must be set", r.name)
		}
	}
	if repos.Credentials == nil {
		return nil, fmt.Errorf("credential store is required: %w", syncerrors.ErrCredentialMissing)
	}

	refresher := token.NewOAuth2Refresher(cfg.GetClientID(), cfg.GetClientSecret(), cfg.GetTokenURL(), httpClient)
	tokens := token.New(cfg.GetRealmID(), repos.Credentials, refresher,
		token.WithSafetyMargin(cfg.GetTokenSafetyMargin()),
		token.WithRefreshTimeout(cfg.GetRequestTimeout()),
	)
	client := remote.NewClient(cfg.GetAPIBaseURL(), cfg.GetRealmID(), tokens,
		remote.WithHTTPClient(httpClient),
		remote.WithRequestTimeout(cfg.GetRequestTimeout()),
		remote.WithMinorVersion(cfg.GetMinorVersion()),
	)
	return NewWithAPI(client, repos,
		WithWorkers(cfg.GetWorkers()),
		WithDefaultIncomeAccount(cfg.GetDefaultIncomeAccount()),
	), nil
}

// NewWithAPI builds a Manager around an already constructed remote API.
func NewWithAPI(api remote.API, repos Repos, options ...Option) *Manager {
	opts := managerOptions{workers: defaultWorkers, nowFunc: time.Now}
	for _, opt := range options {
		opt(&opts)
	}
	clock := entitysync.WithNowFunc(opts.nowFunc)
	return &Manager{
		customers:    entitysync.NewService(repos.Customers, api, repos.Log, entitysync.CustomerMapper{}, clock),
		items:        entitysync.NewService(repos.Items, api, repos.Log, entitysync.NewItemMapper(api, opts.defaultIncomeAccount), clock),
		documents:    entitysync.NewService(repos.Documents, api, repos.Log, entitysync.NewSalesDocumentMapper(repos.Customers, repos.Items), clock),
		customerRepo: repos.Customers,
		itemRepo:     repos.Items,
		log:          repos.Log,
		workers:      config.ClampWorkers(opts.workers),
	}
}

// SyncOne syncs a single record, syncing an unsynced document's customer
// and items first. The returned error is non-nil only for an unknown kind
// or an account-fatal failure; everything else is reported in the outcome.
func (m *Manager) SyncOne(ctx context.Context, kind entities.Kind, localID string) (entitysync.Outcome, error) {
	r := newRun()
	var out entitysync.Outcome
	switch kind {
	case entities.KindCustomer:
		out = m.customers.SyncByID(ctx, localID)
	case entities.KindItem:
		out = m.items.SyncByID(ctx, localID)
	case entities.KindSalesDocument:
		out = m.syncDocument(ctx, r, localID)
	default:
		return entitysync.Outcome{}, fmt.Errorf("sync %q: %w", kind, syncerrors.ErrUnsupported)
	}
	r.observe(out)
	return out, r.err()
}

// SyncAllOfType syncs every local record of one kind. Outcomes are returned
// in local id order; records not started because of an account-fatal error
// have no outcome.
func (m *Manager) SyncAllOfType(ctx context.Context, kind entities.Kind) ([]entitysync.Outcome, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("sync all %q: %w", kind, syncerrors.ErrUnsupported)
	}
	r := newRun()
	outs, err := m.syncKind(ctx, r, kind)
	if err != nil {
		return nil, err
	}
	return outs, r.stopErr(ctx)
}

// SyncAll syncs customers and items, then documents. A document's
// dependencies that failed in the first phase are not retried in the
// same run.
func (m *Manager) SyncAll(ctx context.Context) (*BatchResult, error) {
	started := time.Now()
	r := newRun()
	result := &BatchResult{}

	var err error
	if result.Customers, err = m.syncKind(ctx, r, entities.KindCustomer); err != nil {
		return result, err
	}
	if result.Items, err = m.syncKind(ctx, r, entities.KindItem); err != nil {
		return result, err
	}
	for _, o := range result.Customers {
		r.memo.seed(o)
	}
	for _, o := range result.Items {
		r.memo.seed(o)
	}
	if result.Documents, err = m.syncKind(ctx, r, entities.KindSalesDocument); err != nil {
		return result, err
	}

	log.Info().
		Int("customers", len(result.Customers)).
		Int("items", len(result.Items)).
		Int("documents", len(result.Documents)).
		Int("failed", result.Failed()).
		Dur("elapsed", time.Since(started)).
		Msg("batch sync finished")
	return result, r.stopErr(ctx)
}

// ListRecentSyncLogEntries returns the newest log entries first.
func (m *Manager) ListRecentSyncLogEntries(ctx context.Context, limit int) ([]*synclog.Entry, error) {
	if limit <= 0 {
		limit = defaultLogLimit
	}
	if limit > maxLogLimit {
		limit = maxLogLimit
	}
	return m.log.ListRecent(ctx, limit)
}

func (m *Manager) syncKind(ctx context.Context, r *run, kind entities.Kind) ([]entitysync.Outcome, error) {
	if r.stopped(ctx) {
		return nil, nil
	}
	var (
		runner entitysync.Runner
		syncFn func(context.Context, string) entitysync.Outcome
	)
	switch kind {
	case entities.KindCustomer:
		runner, syncFn = m.customers, m.customers.SyncByID
	case entities.KindItem:
		runner, syncFn = m.items, m.items.SyncByID
	case entities.KindSalesDocument:
		runner = m.documents
		syncFn = func(ctx context.Context, id string) entitysync.Outcome {
			return m.syncDocument(ctx, r, id)
		}
	}

	ids, err := runner.LocalIDs(ctx)
	if err != nil {
		return nil, err
	}
	return m.runPool(ctx, r, ids, syncFn), nil
}

// runPool syncs ids with at most m.workers in flight. Each worker fills its
// own slot so outcomes keep the order of ids.
func (m *Manager) runPool(ctx context.Context, r *run, ids []string, syncFn func(context.Context, string) entitysync.Outcome) []entitysync.Outcome {
	slots := make([]*entitysync.Outcome, len(ids))
	var g errgroup.Group
	g.SetLimit(m.workers)
	for i, id := range ids {
		if r.stopped(ctx) {
			break
		}
		g.Go(func() error {
			if r.stopped(ctx) {
				return nil
			}
			out := syncFn(ctx, id)
			r.observe(out)
			slots[i] = &out
			return nil
		})
	}
	_ = g.Wait()

	outs := make([]entitysync.Outcome, 0, len(ids))
	for _, o := range slots {
		if o != nil {
			outs = append(outs, *o)
		}
	}
	return outs
}

// syncDocument syncs the document's unsynced customer and items first, then
// the document itself. A dependency that cannot be synced fails the
// document without any remote call for it.
func (m *Manager) syncDocument(ctx context.Context, r *run, localID string) entitysync.Outcome {
	doc, err := m.documents.Load(ctx, localID)
	if err != nil {
		return m.documents.SyncByID(ctx, localID)
	}
	if err := m.ensureDependencies(ctx, r, doc); err != nil {
		return m.documents.RecordFailure(ctx, doc, err)
	}
	return m.documents.Sync(ctx, doc)
}

func (m *Manager) ensureDependencies(ctx context.Context, r *run, doc *entities.SalesDocument) error {
	customer, err := m.customerRepo.Get(ctx, doc.CustomerLocalID)
	if err != nil {
		return fmt.Errorf("document %s: customer %s: %w: %w", doc.LocalID, doc.CustomerLocalID, syncerrors.ErrDependencyUnsynced, err)
	}
	if !customer.HasRemoteID() {
		out := r.memo.do(entities.KindCustomer, customer.LocalID, func() entitysync.Outcome {
			return m.customers.Sync(ctx, customer)
		})
		if out.Failed() {
			return dependencyError(doc, out)
		}
	}

	for _, itemID := range doc.ItemLocalIDs() {
		item, err := m.itemRepo.Get(ctx, itemID)
		if err != nil {
			return fmt.Errorf("document %s: item %s: %w: %w", doc.LocalID, itemID, syncerrors.ErrDependencyUnsynced, err)
		}
		if item.HasRemoteID() {
			continue
		}
		out := r.memo.do(entities.KindItem, item.LocalID, func() entitysync.Outcome {
			return m.items.Sync(ctx, item)
		})
		if out.Failed() {
			return dependencyError(doc, out)
		}
	}
	return nil
}

// dependencyError keeps the dependency's own cause in the chain so an
// account-fatal failure still aborts the run.
func dependencyError(doc *entities.SalesDocument, dep entitysync.Outcome) error {
	return fmt.Errorf("document %s: %s %s could not be synced: %w: %w", doc.LocalID, dep.EntityType, dep.LocalID, syncerrors.ErrDependencyUnsynced, dep.Err)
}

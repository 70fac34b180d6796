package entitysync

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jrsteele09/go-accounting-sync/entities"
	syncerrors "github.com/jrsteele09/go-accounting-sync/internal/errors"
	"github.com/jrsteele09/go-accounting-sync/remote"
	"github.com/jrsteele09/go-accounting-sync/synclog"
	"github.com/jrsteele09/go-accounting-sync/wire"
	"github.com/rs/zerolog/log"
)

// Result tags an Outcome.
type Result string

const (
	ResultCreated Result = "created"
	ResultUpdated Result = "updated"
	ResultFailed  Result = "failed"
)

// Outcome is the result of one sync attempt, returned as data rather than
// as an error so batches can be rendered entity by entity.
type Outcome struct {
	EntityType entities.Kind   `json:"entityType"`
	LocalID    string          `json:"localId"`
	Action     synclog.Action  `json:"action"`
	Result     Result          `json:"result"`
	RemoteID   string          `json:"remoteId,omitempty"`
	Err        error           `json:"-"`
	Reason     syncerrors.Kind `json:"reason,omitempty"`
	At         time.Time       `json:"at"`
	// LogErr is set when the attempt could not be written to the sync log.
	LogErr     error           `json:"-"`
}

func (o Outcome) Failed() bool {
	return o.Result == ResultFailed
}

// Logged is false when the attempt could not be written to the sync log.
func (o Outcome) Logged() bool {
	return o.LogErr == nil
}

// Mapper translates a local record into its remote wire shape.
type Mapper[T entities.Syncable] interface {
	Kind() entities.Kind
	// Entity is the remote entity name the record is stored as.
	Entity(local T) (string, error)
	MapToRemote(ctx context.Context, local T) (any, error)
}

// Runner is the type-erased view of a Service the manager schedules.
type Runner interface {
	Kind() entities.Kind
	SyncByID(ctx context.Context, localID string) Outcome
	LocalIDs(ctx context.Context) ([]string, error)
}

// Service pushes one kind of local record to the remote API and records
// the attempt locally.
type Service[T entities.Syncable] struct {
	repo    entities.Repo[T]
	api     remote.API
	log     synclog.Repo
	mapper  Mapper[T]
	nowFunc func() time.Time
}

type serviceOptions struct {
	nowFunc func() time.Time
}

type ServiceOption func(*serviceOptions)

func WithNowFunc(now func() time.Time) ServiceOption {
	return func(o *serviceOptions) {
		o.nowFunc = now
	}
}

func NewService[T entities.Syncable](repo entities.Repo[T], api remote.API, logRepo synclog.Repo, mapper Mapper[T], options ...ServiceOption) *Service[T] {
	opts := serviceOptions{nowFunc: time.Now}
	for _, opt := range options {
		opt(&opts)
	}
	return &Service[T]{
		repo:    repo,
		api:     api,
		log:     logRepo,
		mapper:  mapper,
		nowFunc: opts.nowFunc,
	}
}

func (s *Service[T]) Kind() entities.Kind {
	return s.mapper.Kind()
}

func (s *Service[T]) Load(ctx context.Context, localID string) (T, error) {
	return s.repo.Get(ctx, localID)
}

func (s *Service[T]) LocalIDs(ctx context.Context) ([]string, error) {
	recs, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", s.Kind(), err)
	}
	ids := make([]string, 0, len(recs))
	for _, r := range recs {
		ids = append(ids, r.Key())
	}
	return ids, nil
}

// SyncByID loads the record and syncs it. A record that cannot be loaded
// yields a failed outcome without touching the log.
func (s *Service[T]) SyncByID(ctx context.Context, localID string) Outcome {
	local, err := s.repo.Get(ctx, localID)
	if err != nil {
		err = fmt.Errorf("load %s %s: %w", s.Kind(), localID, err)
		return Outcome{
			EntityType: s.Kind(),
			LocalID:    localID,
			Result:     ResultFailed,
			Err:        err,
			Reason:     syncerrors.Classify(err),
			At:         s.nowFunc(),
		}
	}
	return s.Sync(ctx, local)
}

// ActionFor reports whether syncing local would create or update it.
func ActionFor(state entities.SyncState) synclog.Action {
	if state.HasRemoteID() {
		return synclog.ActionUpdate
	}
	return synclog.ActionCreate
}

// Sync creates local remotely when it has no remote id, and otherwise
// updates the existing remote record. Failures are recorded and returned in
// the outcome; the remote id is never changed once set.
func (s *Service[T]) Sync(ctx context.Context, local T) Outcome {
	state := local.Sync()
	action := ActionFor(state)

	var (
		remoteID string
		err      error
	)
	if action == synclog.ActionCreate {
		remoteID, err = s.create(ctx, local)
	} else {
		remoteID, err = s.update(ctx, local, state.RemoteID)
	}
	if err != nil {
		return s.RecordFailure(ctx, local, err)
	}

	// The audit trail must survive a cancelled caller.
	pctx := context.WithoutCancel(ctx)
	now := s.nowFunc()
	next := entities.SyncState{
		RemoteID:   remoteID,
		SyncStatus: entities.SyncStatusSynced,
		SyncedAt:   &now,
	}
	local.SetSync(next)
	if err := s.repo.UpdateSyncState(pctx, local.Key(), next); err != nil {
		// The remote side changed but we could not record it; surface loudly.
		err = fmt.Errorf("%s %s succeeded remotely as %s but local state was not saved: %w", action, s.Kind(), remoteID, err)
		log.Error().Err(err).Str("entity_type", string(s.Kind())).Str("local_id", local.Key()).Str("remote_id", remoteID).Msg("sync state write failed")
		logErr := s.appendLog(pctx, synclog.NewFailure(s.Kind(), local.Key(), action, remoteID, err, now))
		return Outcome{EntityType: s.Kind(), LocalID: local.Key(), Action: action, Result: ResultFailed, RemoteID: remoteID, Err: err, Reason: syncerrors.Classify(err), At: now, LogErr: logErr}
	}

	logErr := s.appendLog(pctx, synclog.NewSuccess(s.Kind(), local.Key(), action, remoteID, now))
	log.Info().
		Str("entity_type", string(s.Kind())).
		Str("local_id", local.Key()).
		Str("remote_id", remoteID).
		Str("action", string(action)).
		Msg("entity synced")

	result := ResultCreated
	if action == synclog.ActionUpdate {
		result = ResultUpdated
	}
	return Outcome{EntityType: s.Kind(), LocalID: local.Key(), Action: action, Result: result, RemoteID: remoteID, At: now, LogErr: logErr}
}

// RecordFailure marks local as errored, appends the failed attempt to the
// log and returns the failed outcome. The remote id is left as it was.
func (s *Service[T]) RecordFailure(ctx context.Context, local T, cause error) Outcome {
	ctx = context.WithoutCancel(ctx)
	now := s.nowFunc()
	state := local.Sync()
	action := ActionFor(state)
	state.SyncStatus = entities.SyncStatusError
	local.SetSync(state)

	if err := s.repo.UpdateSyncState(ctx, local.Key(), state); err != nil {
		log.Err(err).Str("entity_type", string(s.Kind())).Str("local_id", local.Key()).Msg("failed to record sync error state")
	}
	logErr := s.appendLog(ctx, synclog.NewFailure(s.Kind(), local.Key(), action, state.RemoteID, cause, now))

	reason := syncerrors.Classify(cause)
	log.Warn().
		Err(cause).
		Str("entity_type", string(s.Kind())).
		Str("local_id", local.Key()).
		Str("action", string(action)).
		Str("reason", string(reason)).
		Msg("entity sync failed")

	return Outcome{
		EntityType: s.Kind(),
		LocalID:    local.Key(),
		Action:     action,
		Result:     ResultFailed,
		RemoteID:   state.RemoteID,
		Err:        cause,
		Reason:     reason,
		At:         now,
		LogErr:     logErr,
	}
}

func (s *Service[T]) create(ctx context.Context, local T) (string, error) {
	entity, err := s.mapper.Entity(local)
	if err != nil {
		return "", err
	}
	payload, err := s.mapper.MapToRemote(ctx, local)
	if err != nil {
		return "", err
	}
	raw, err := s.api.Post(ctx, entityPath(entity), payload)
	if err != nil {
		return "", fmt.Errorf("create %s %s: %w", entity, local.Key(), err)
	}
	var created struct {
		ID string `json:"Id"`
	}
	if err := remote.DecodeEntity(raw, entity, &created); err != nil {
		return "", err
	}
	if created.ID == "" {
		return "", fmt.Errorf("create %s %s: response carried no Id: %w", entity, local.Key(), syncerrors.ErrInternal)
	}
	return created.ID, nil
}

func (s *Service[T]) update(ctx context.Context, local T, remoteID string) (string, error) {
	entity, err := s.mapper.Entity(local)
	if err != nil {
		return "", err
	}
	// Map before any remote call so an unmappable record never reaches the API.
	desired, err := s.mapper.MapToRemote(ctx, local)
	if err != nil {
		return "", err
	}

	raw, err := s.api.Get(ctx, entityPath(entity)+"/"+url.PathEscape(remoteID))
	if err != nil {
		return "", fmt.Errorf("fetch %s %s: %w", entity, remoteID, err)
	}
	var current map[string]any
	if err := remote.DecodeEntity(raw, entity, &current); err != nil {
		return "", err
	}
	syncToken, _ := current["SyncToken"].(string)
	if syncToken == "" {
		return "", fmt.Errorf("fetch %s %s: no SyncToken in remote record: %w", entity, remoteID, syncerrors.ErrInternal)
	}

	payload, err := wire.SparseUpdate(desired, current, remoteID, syncToken)
	if err != nil {
		return "", err
	}
	log.Debug().Str("entity", entity).Str("remote_id", remoteID).Strs("fields", wire.ChangedFields(payload)).Msg("sparse update")

	if _, err := s.api.Post(ctx, entityPath(entity), payload); err != nil {
		return "", fmt.Errorf("update %s %s: %w", entity, remoteID, err)
	}
	return remoteID, nil
}

func (s *Service[T]) appendLog(ctx context.Context, entry *synclog.Entry) error {
	if err := s.log.Append(ctx, entry); err != nil {
		log.Err(err).Str("entity_type", string(entry.EntityType)).Str("local_id", entry.EntityLocalID).Msg("failed to append sync log entry")
		return fmt.Errorf("append sync log entry: %w", err)
	}
	return nil
}

func entityPath(entity string) string {
	return "/" + strings.ToLower(entity)
}

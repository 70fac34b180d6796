package token

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jrsteele09/go-accounting-sync/credentials"
	syncerrors "github.com/jrsteele09/go-accounting-sync/internal/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const (
	defaultSafetyMargin   = 60 * time.Second
	defaultRefreshTimeout = 30 * time.Second
)

// Source hands out bearer tokens for remote calls.
type Source interface {
	EnsureValidAccessToken(ctx context.Context) (string, error)
	ForceRefresh(ctx context.Context, staleToken string) (string, error)
}

// Manager keeps the access token of a single realm valid. Refreshes are
// single-flight: callers that observe the same expiring (or rejected) token
// share one refresh call, and refreshes for the realm never overlap.
type Manager struct {
	realmID        string
	repo           credentials.Repo
	refresher      Refresher
	safetyMargin   time.Duration
	refreshTimeout time.Duration
	nowFunc        func() time.Time

	flight    singleflight.Group
	refreshMu sync.Mutex
}

var _ Source = (*Manager)(nil)

type ManagerOption func(*Manager)

func WithNowFunc(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowFunc = now
	}
}

func WithSafetyMargin(margin time.Duration) ManagerOption {
	return func(m *Manager) {
		m.safetyMargin = margin
	}
}

// WithRefreshTimeout bounds a single refresh call, independent of any caller's context.
func WithRefreshTimeout(timeout time.Duration) ManagerOption {
	return func(m *Manager) {
		m.refreshTimeout = timeout
	}
}

func New(realmID string, repo credentials.Repo, refresher Refresher, options ...ManagerOption) *Manager {
	m := &Manager{
		realmID:   realmID,
		repo:      repo,
		refresher: refresher,
	}
	for _, opt := range options {
		opt(m)
	}
	if m.safetyMargin <= 0 {
		m.safetyMargin = defaultSafetyMargin
	}
	if m.refreshTimeout <= 0 {
		m.refreshTimeout = defaultRefreshTimeout
	}
	if m.nowFunc == nil {
		m.nowFunc = time.Now
	}
	return m
}

// EnsureValidAccessToken returns the stored access token, refreshing it first
// when it expires within the safety margin.
func (m *Manager) EnsureValidAccessToken(ctx context.Context) (string, error) {
	cred, err := m.load(ctx)
	if err != nil {
		return "", err
	}
	if !cred.AccessTokenExpiring(m.nowFunc(), m.safetyMargin) {
		return cred.AccessToken, nil
	}
	return m.refresh(ctx, cred.AccessToken)
}

// ForceRefresh replaces staleToken after the remote rejected it. If another
// caller already replaced it, the newer token is returned without a refresh.
func (m *Manager) ForceRefresh(ctx context.Context, staleToken string) (string, error) {
	return m.refresh(ctx, staleToken)
}

func (m *Manager) refresh(ctx context.Context, observed string) (string, error) {
	ch := m.flight.DoChan(observed, func() (any, error) {
		// The refresh outlives any one caller: others may be waiting on it.
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.refreshTimeout)
		defer cancel()
		return m.refreshLocked(fctx, observed)
	})

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("waiting for token refresh: %w", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (m *Manager) refreshLocked(ctx context.Context, observed string) (string, error) {
	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()

	cred, err := m.load(ctx)
	if err != nil {
		return "", err
	}
	now := m.nowFunc()
	if cred.AccessToken != observed && !cred.AccessTokenExpiring(now, m.safetyMargin) {
		// Someone refreshed while we waited.
		return cred.AccessToken, nil
	}
	if cred.RefreshTokenExpired(now) {
		log.Warn().Str("realm_id", m.realmID).Time("refresh_expires_at", cred.RefreshTokenExpiresAt).Msg("refresh token expired, re-authorization required")
		return "", fmt.Errorf("realm %s: refresh token expired at %s: %w", m.realmID, cred.RefreshTokenExpiresAt.Format(time.RFC3339), syncerrors.ErrAuthExpired)
	}

	grant, err := m.refresher.Refresh(ctx, cred.RefreshToken)
	if err != nil {
		log.Err(err).Str("realm_id", m.realmID).Msg("token refresh failed")
		return "", fmt.Errorf("realm %s: refresh: %w", m.realmID, err)
	}

	// Expiries are absolute, computed from the clock at the time of the response.
	now = m.nowFunc()
	updated := cred.Clone()
	updated.AccessToken = grant.AccessToken
	updated.AccessTokenExpiresAt = now.Add(grant.ExpiresIn)
	if grant.RefreshToken != "" {
		updated.RefreshToken = grant.RefreshToken
	}
	if grant.RefreshTokenExpiresIn > 0 {
		updated.RefreshTokenExpiresAt = now.Add(grant.RefreshTokenExpiresIn)
	}
	updated.UpdatedAt = now

	if err := m.repo.Upsert(ctx, updated); err != nil {
		return "", fmt.Errorf("realm %s: failed to persist refreshed credential: %w", m.realmID, err)
	}

	log.Info().
		Str("realm_id", m.realmID).
		Time("access_expires_at", updated.AccessTokenExpiresAt).
		Time("refresh_expires_at", updated.RefreshTokenExpiresAt).
		Msg("access token refreshed")
	return updated.AccessToken, nil
}

func (m *Manager) load(ctx context.Context) (*credentials.RemoteCredential, error) {
	cred, err := m.repo.Get(ctx, m.realmID)
	if err != nil {
		if syncerrors.Is(err, syncerrors.ErrNotFound) {
			return nil, fmt.Errorf("realm %s: %w", m.realmID, syncerrors.ErrCredentialMissing)
		}
		return nil, fmt.Errorf("realm %s: failed to load credential: %w", m.realmID, err)
	}
	return cred, nil
}

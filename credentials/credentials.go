package credentials

import (
	"context"
	"time"
)

// RemoteCredential is the OAuth2 state for one connected remote account.
// It is created by the authorization handshake and afterwards only mutated by
// a token refresh.
type RemoteCredential struct {
	RealmID               string    `json:"realmId"`
	AccessToken           string    `json:"-"`
	RefreshToken          string    `json:"-"`
	AccessTokenExpiresAt  time.Time `json:"accessTokenExpiresAt"`
	RefreshTokenExpiresAt time.Time `json:"refreshTokenExpiresAt"`
	UpdatedAt             time.Time `json:"updatedAt"`
}

// AccessTokenExpiring reports whether the access token is expired, or will be
// within margin of now.
func (c *RemoteCredential) AccessTokenExpiring(now time.Time, margin time.Duration) bool {
	if c.AccessToken == "" {
		return true
	}
	return !now.Before(c.AccessTokenExpiresAt.Add(-margin))
}

// RefreshTokenExpired reports whether the refresh token can no longer be used.
// A zero expiry means the remote never told us, so the token is assumed usable.
func (c *RemoteCredential) RefreshTokenExpired(now time.Time) bool {
	if c.RefreshToken == "" {
		return true
	}
	if c.RefreshTokenExpiresAt.IsZero() {
		return false
	}
	return !now.Before(c.RefreshTokenExpiresAt)
}

// Clone returns a copy safe to hand to another goroutine.
func (c *RemoteCredential) Clone() *RemoteCredential {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}

// Repo persists remote credentials keyed by realm id.
type Repo interface {
	Get(ctx context.Context, realmID string) (*RemoteCredential, error)
	Upsert(ctx context.Context, credential *RemoteCredential) error
}

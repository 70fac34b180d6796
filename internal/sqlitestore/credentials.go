package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jrsteele09/go-accounting-sync/credentials"
	syncerrors "github.com/jrsteele09/go-accounting-sync/internal/errors"
)

// CredentialRepo stores one credential per realm. Tokens are sealed before
// they are written when a sealer is configured.
type CredentialRepo struct {
	db     *sql.DB
	sealer *credentials.Sealer
}

var _ credentials.Repo = (*CredentialRepo)(nil)

func (r *CredentialRepo) Get(ctx context.Context, realmID string) (*credentials.RemoteCredential, error) {
	var (
		access, refresh             string
		accessExp, refreshExp, upAt sql.NullString
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT access_token, refresh_token, access_token_expires_at, refresh_token_expires_at, updated_at
		FROM credentials WHERE realm_id = ?`, realmID).
		Scan(&access, &refresh, &accessExp, &refreshExp, &upAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("realm %s: %w", realmID, syncerrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("realm %s: query credential: %w", realmID, err)
	}

	cred := &credentials.RemoteCredential{RealmID: realmID}
	if cred.AccessToken, err = r.sealer.Open(access); err != nil {
		return nil, fmt.Errorf("realm %s: access token: %w", realmID, err)
	}
	if cred.RefreshToken, err = r.sealer.Open(refresh); err != nil {
		return nil, fmt.Errorf("realm %s: refresh token: %w", realmID, err)
	}
	if cred.AccessTokenExpiresAt, err = parseTime(accessExp); err != nil {
		return nil, err
	}
	if cred.RefreshTokenExpiresAt, err = parseTime(refreshExp); err != nil {
		return nil, err
	}
	if cred.UpdatedAt, err = parseTime(upAt); err != nil {
		return nil, err
	}
	return cred, nil
}

func (r *CredentialRepo) Upsert(ctx context.Context, cred *credentials.RemoteCredential) error {
	access, err := r.sealer.Seal(cred.AccessToken)
	if err != nil {
		return fmt.Errorf("realm %s: seal access token: %w", cred.RealmID, err)
	}
	refresh, err := r.sealer.Seal(cred.RefreshToken)
	if err != nil {
		return fmt.Errorf("realm %s: seal refresh token: %w", cred.RealmID, err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO credentials (realm_id, access_token, refresh_token, access_token_expires_at, refresh_token_expires_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(realm_id) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			access_token_expires_at = excluded.access_token_expires_at,
			refresh_token_expires_at = excluded.refresh_token_expires_at,
			updated_at = excluded.updated_at`,
		cred.RealmID, access, refresh,
		formatTime(cred.AccessTokenExpiresAt), formatTime(cred.RefreshTokenExpiresAt), formatTime(cred.UpdatedAt).String)
	if err != nil {
		return fmt.Errorf("realm %s: save credential: %w", cred.RealmID, err)
	}
	return nil
}

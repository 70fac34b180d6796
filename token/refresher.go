package token

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	syncerrors "github.com/jrsteele09/go-accounting-sync/internal/errors"
	"golang.org/x/oauth2"
)

// Grant is the result of a refresh_token grant. Lifetimes are relative to
// the moment the response was received; a missing lifetime is zero.
type Grant struct {
	AccessToken           string
	RefreshToken          string
	ExpiresIn             time.Duration
	RefreshTokenExpiresIn time.Duration
}

// Refresher exchanges a refresh token for a new token pair.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*Grant, error)
}

// OAuth2Refresher performs the refresh_token grant against the remote token
// endpoint, authenticating the client with HTTP Basic auth.
type OAuth2Refresher struct {
	config     *oauth2.Config
	httpClient *http.Client
}

var _ Refresher = (*OAuth2Refresher)(nil)

func NewOAuth2Refresher(clientID, clientSecret, tokenURL string, httpClient *http.Client) *OAuth2Refresher {
	return &OAuth2Refresher{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		httpClient: httpClient,
	}
}

func (r *OAuth2Refresher) Refresh(ctx context.Context, refreshToken string) (*Grant, error) {
	if r.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, r.httpClient)
	}
	// A token with only a refresh token is never valid, so Token() always
	// issues grant_type=refresh_token.
	tok, err := r.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, classifyRefreshError(err)
	}

	grant := &Grant{
		AccessToken:           tok.AccessToken,
		RefreshToken:          tok.RefreshToken,
		ExpiresIn:             seconds(tok.Extra("expires_in")),
		RefreshTokenExpiresIn: seconds(tok.Extra("x_refresh_token_expires_in")),
	}
	if grant.RefreshToken == "" {
		grant.RefreshToken = refreshToken
	}
	if grant.AccessToken == "" {
		return nil, fmt.Errorf("token endpoint returned no access_token: %w", syncerrors.ErrAuthExpired)
	}
	return grant, nil
}

// classifyRefreshError separates a rejected refresh token (account-fatal)
// from a transient failure to reach the token endpoint.
func classifyRefreshError(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		status := 0
		if retrieveErr.Response != nil {
			status = retrieveErr.Response.StatusCode
		}
		switch {
		case status >= 500 || status == http.StatusTooManyRequests:
			return fmt.Errorf("token endpoint status %d: %w", status, syncerrors.ErrRemoteServer)
		default:
			return fmt.Errorf("refresh rejected (status %d, %s): %w", status, retrieveErr.ErrorCode, syncerrors.ErrAuthExpired)
		}
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("token endpoint unreachable: %v: %w", err, syncerrors.ErrNetwork)
	}
	return fmt.Errorf("token refresh: %v: %w", err, syncerrors.ErrNetwork)
}

// seconds reads a lifetime in seconds from a decoded token response field.
func seconds(v any) time.Duration {
	var n float64
	switch t := v.(type) {
	case float64:
		n = t
	case int64:
		n = float64(t)
	case int:
		n = float64(t)
	case json.Number:
		n, _ = t.Float64()
	case string:
		n, _ = strconv.ParseFloat(t, 64)
	}
	if n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}

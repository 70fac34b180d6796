package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	syncerrors "github.com/jrsteele09/go-accounting-sync/internal/errors"
	"github.com/jrsteele09/go-accounting-sync/token"
	"github.com/rs/zerolog/log"
)

const (
	defaultRequestTimeout = 30 * time.Second
	maxResponseBytes      = 4 << 20
)

// API is the set of remote primitives the entity sync services use.
type API interface {
	Get(ctx context.Context, path string) ([]byte, error)
	Post(ctx context.Context, path string, body any) ([]byte, error)
	Query(ctx context.Context, query string) ([]byte, error)
}

// Client issues authenticated calls against one realm of the remote REST API.
type Client struct {
	baseURL        string
	realmID        string
	minorVersion   string
	tokens         token.Source
	httpClient     *http.Client
	requestTimeout time.Duration
}

var _ API = (*Client)(nil)

type ClientOption func(*Client)

func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithRequestTimeout bounds each individual call.
func WithRequestTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.requestTimeout = timeout
	}
}

func WithMinorVersion(minorVersion string) ClientOption {
	return func(c *Client) {
		c.minorVersion = minorVersion
	}
}

func NewClient(baseURL, realmID string, tokens token.Source, options ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		realmID: realmID,
		tokens:  tokens,
	}
	for _, opt := range options {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = http.DefaultClient
	}
	if c.requestTimeout <= 0 {
		c.requestTimeout = defaultRequestTimeout
	}
	return c
}

// Get fetches path, e.g. "/customer/42".
func (c *Client) Get(ctx context.Context, path string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, path, nil, nil)
}

// Post sends body to path. The remote treats a body without Id as a create
// and a body with Id and SyncToken as an update.
func (c *Client) Post(ctx context.Context, path string, body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %v: %w", path, err, syncerrors.ErrInvalidRecord)
	}
	return c.do(ctx, http.MethodPost, path, nil, payload)
}

// Query runs a query-language statement, e.g. "select * from Account where Name = 'Sales'".
func (c *Client) Query(ctx context.Context, query string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, "/query", url.Values{"query": {query}}, nil)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body []byte) ([]byte, error) {
	accessToken, err := c.tokens.EnsureValidAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	raw, err := c.send(ctx, method, path, query, body, accessToken)
	if !isUnauthorized(err) {
		return raw, err
	}

	// A 401 right after validating the token means it was revoked or rotated
	// elsewhere: refresh once and retry once.
	log.Warn().Str("realm_id", c.realmID).Str("method", method).Str("path", path).Msg("access token rejected, forcing refresh")
	accessToken, err = c.tokens.ForceRefresh(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	raw, err = c.send(ctx, method, path, query, body, accessToken)
	if isUnauthorized(err) {
		return nil, fmt.Errorf("%w: %w", syncerrors.ErrAuthExpired, err)
	}
	return raw, err
}

func (c *Client) send(ctx context.Context, method, path string, query url.Values, body []byte, accessToken string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.url(path, query), bodyReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request %s %s: %w", method, path, err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %v: %w", method, path, err, syncerrors.ErrNetwork)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%s %s: read response: %v: %w", method, path, err, syncerrors.ErrNetwork)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newAPIError(resp.StatusCode, raw)
	}
	return raw, nil
}

func (c *Client) url(path string, query url.Values) string {
	if query == nil {
		query = url.Values{}
	}
	if c.minorVersion != "" {
		query.Set("minorversion", c.minorVersion)
	}
	u := c.baseURL + "/v3/company/" + url.PathEscape(c.realmID) + path
	if encoded := query.Encode(); encoded != "" {
		u += "?" + encoded
	}
	return u
}

func bodyReader(body []byte) io.Reader {
	if body == nil {
		return nil
	}
	return bytes.NewReader(body)
}

func isUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized
}

package remote_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	credentialrepofake "github.com/jrsteele09/go-accounting-sync/credentials/repofake"
	syncerrors "github.com/jrsteele09/go-accounting-sync/internal/errors"
	"github.com/jrsteele09/go-accounting-sync/remote"
	"github.com/jrsteele09/go-accounting-sync/remote/remotefake"
	"github.com/jrsteele09/go-accounting-sync/token"
	"github.com/stretchr/testify/require"
)

// stubTokens hands out numbered tokens and counts forced refreshes.
type stubTokens struct {
	mu       sync.Mutex
	current  string
	forced   int
	forceErr error
}

func (s *stubTokens) EnsureValidAccessToken(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, nil
}

func (s *stubTokens) ForceRefresh(context.Context, string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.forceErr != nil {
		return "", s.forceErr
	}
	s.forced++
	s.current = s.current + "-r"
	return s.current, nil
}

func TestClient_RequestShape(t *testing.T) {
	var got *http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"Customer":{"Id":"Q-1","SyncToken":"0"}}`))
	}))
	t.Cleanup(srv.Close)

	c := remote.NewClient(srv.URL+"/", "realm 9", &stubTokens{current: "tok"}, remote.WithHTTPClient(srv.Client()), remote.WithMinorVersion("65"))
	raw, err := c.Post(context.Background(), "/customer", map[string]any{"DisplayName": "Acme"})
	require.NoError(t, err)

	require.Equal(t, http.MethodPost, got.Method)
	require.Equal(t, "/v3/company/realm%209/customer", got.URL.EscapedPath())
	require.Equal(t, "65", got.URL.Query().Get("minorversion"))
	require.Equal(t, "Bearer tok", got.Header.Get("Authorization"))
	require.Equal(t, "application/json", got.Header.Get("Content-Type"))

	var rec struct{ ID string `json:"Id"` }
	require.NoError(t, remote.DecodeEntity(raw, "Customer", &rec))
	require.Equal(t, "Q-1", rec.ID)
}

func TestClient_ErrorClassification(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		want    error
		message string
	}{
		{name: "flat error", status: http.StatusBadRequest, body: `{"error":"Invalid email"}`, want: syncerrors.ErrRemoteValidation, message: "Invalid email"},
		{name: "fault envelope", status: http.StatusBadRequest, body: `{"Fault":{"Error":[{"Message":"Duplicate Name Exists Error","Detail":"The name supplied already exists.","code":"6240"}],"type":"ValidationFault"}}`, want: syncerrors.ErrRemoteValidation, message: "Duplicate Name Exists Error: The name supplied already exists."},
		{name: "server error", status: http.StatusInternalServerError, body: `<html>oops</html>`, want: syncerrors.ErrRemoteServer, message: "<html>oops</html>"},
		{name: "throttled", status: http.StatusTooManyRequests, body: `{"error":"slow down"}`, want: syncerrors.ErrRemoteServer, message: "slow down"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			t.Cleanup(srv.Close)

			c := remote.NewClient(srv.URL, "r", &stubTokens{current: "tok"}, remote.WithHTTPClient(srv.Client()))
			_, err := c.Get(context.Background(), "/customer/1")
			require.ErrorIs(t, err, tt.want)

			var apiErr *remote.APIError
			require.ErrorAs(t, err, &apiErr)
			require.Equal(t, tt.status, apiErr.StatusCode)
			require.Equal(t, tt.message, apiErr.Message)
			require.Equal(t, tt.body, string(apiErr.RawBody))
		})
	}
}

func TestClient_UnauthorizedRefreshesOnceAndRetries(t *testing.T) {
	srv := remotefake.NewServer()
	t.Cleanup(srv.Close)
	now := time.Now()
	repo := credentialrepofake.NewFakeCredentialRepo(srv.Credential(now.Add(time.Hour), now.Add(24*time.Hour)))
	tokens := token.New(remotefake.RealmID, repo, token.NewOAuth2Refresher(remotefake.ClientID, remotefake.ClientSecret, srv.TokenURL(), srv.Client()))
	c := remote.NewClient(srv.URL, remotefake.RealmID, tokens, remote.WithHTTPClient(srv.Client()))
	id := srv.Seed("Customer", map[string]any{"DisplayName": "Acme"})

	// The stored token still looks valid locally but the remote no longer accepts it.
	srv.RevokeAccessTokens()

	raw, err := c.Get(context.Background(), "/customer/"+id)
	require.NoError(t, err)
	var rec map[string]any
	require.NoError(t, remote.DecodeEntity(raw, "Customer", &rec))
	require.Equal(t, "Acme", rec["DisplayName"])
	require.Equal(t, 1, srv.RefreshCalls())

	reqs := srv.Requests()
	require.Len(t, reqs, 2)
	require.Equal(t, "access-0", reqs[0].Token)
	require.Equal(t, "access-1", reqs[1].Token)
}

func TestClient_SecondUnauthorizedIsAuthExpired(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"fault":{"error":[{"message":"AuthenticationFailed","code":"3200"}],"type":"AUTHENTICATION"}}`))
	}))
	t.Cleanup(srv.Close)

	tokens := &stubTokens{current: "tok"}
	c := remote.NewClient(srv.URL, "r", tokens, remote.WithHTTPClient(srv.Client()))
	_, err := c.Get(context.Background(), "/customer/1")
	require.ErrorIs(t, err, syncerrors.ErrAuthExpired)
	require.Equal(t, syncerrors.KindAuthExpired, syncerrors.Classify(err))
	require.Equal(t, 1, tokens.forced)
	require.Equal(t, 2, calls)
}

func TestClient_FailedForcedRefreshIsReturned(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	tokens := &stubTokens{current: "tok", forceErr: syncerrors.ErrAuthExpired}
	c := remote.NewClient(srv.URL, "r", tokens, remote.WithHTTPClient(srv.Client()))
	_, err := c.Get(context.Background(), "/customer/1")
	require.ErrorIs(t, err, syncerrors.ErrAuthExpired)
}

func TestClient_RequestTimeoutIsNetworkError(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	c := remote.NewClient(srv.URL, "r", &stubTokens{current: "tok"}, remote.WithHTTPClient(srv.Client()), remote.WithRequestTimeout(50*time.Millisecond))
	_, err := c.Get(context.Background(), "/customer/1")
	require.ErrorIs(t, err, syncerrors.ErrNetwork)
	require.Equal(t, syncerrors.KindNetwork, syncerrors.Classify(err))
}

func TestClient_QueryDecodesRows(t *testing.T) {
	srv := remotefake.NewServer()
	t.Cleanup(srv.Close)
	now := time.Now()
	repo := credentialrepofake.NewFakeCredentialRepo(srv.Credential(now.Add(time.Hour), now.Add(24*time.Hour)))
	tokens := token.New(remotefake.RealmID, repo, token.NewOAuth2Refresher(remotefake.ClientID, remotefake.ClientSecret, srv.TokenURL(), srv.Client()))
	c := remote.NewClient(srv.URL, remotefake.RealmID, tokens, remote.WithHTTPClient(srv.Client()))
	id := srv.Seed("Account", map[string]any{"Name": "Sales of Product Income"})
	srv.Seed("Account", map[string]any{"Name": "Services"})

	raw, err := c.Query(context.Background(), "select * from Account where Name = 'Sales of Product Income'")
	require.NoError(t, err)
	var rows []struct {
		ID   string `json:"Id"`
		Name string `json:"Name"`
	}
	require.NoError(t, remote.DecodeQuery(raw, "Account", &rows))
	require.Len(t, rows, 1)
	require.Equal(t, id, rows[0].ID)

	raw, err = c.Query(context.Background(), "select * from Account where Name = 'Nope'")
	require.NoError(t, err)
	rows = nil
	require.NoError(t, remote.DecodeQuery(raw, "Account", &rows))
	require.Empty(t, rows)
}

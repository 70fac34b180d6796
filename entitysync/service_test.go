package entitysync_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	credentialrepofake "github.com/jrsteele09/go-accounting-sync/credentials/repofake"
	"github.com/jrsteele09/go-accounting-sync/entities"
	entityrepofake "github.com/jrsteele09/go-accounting-sync/entities/repofake"
	"github.com/jrsteele09/go-accounting-sync/entitysync"
	syncerrors "github.com/jrsteele09/go-accounting-sync/internal/errors"
	"github.com/jrsteele09/go-accounting-sync/remote"
	"github.com/jrsteele09/go-accounting-sync/remote/remotefake"
	"github.com/jrsteele09/go-accounting-sync/synclog"
	synclogrepofake "github.com/jrsteele09/go-accounting-sync/synclog/repofake"
	"github.com/jrsteele09/go-accounting-sync/token"
	"github.com/stretchr/testify/require"
)

const defaultIncomeAccount = "Sales of Product Income"

var fixedNow = time.Date(2026, 4, 1, 9, 30, 0, 0, time.UTC)

type testFixture struct {
	server    *remotefake.Server
	client    *remote.Client
	logs      *synclogrepofake.FakeSyncLogRepo
	customers *entityrepofake.FakeRepo[*entities.Customer]
	items     *entityrepofake.FakeRepo[*entities.Item]
	documents *entityrepofake.FakeRepo[*entities.SalesDocument]

	customerSvc *entitysync.Service[*entities.Customer]
	itemSvc     *entitysync.Service[*entities.Item]
	documentSvc *entitysync.Service[*entities.SalesDocument]
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()

	srv := remotefake.NewServer()
	t.Cleanup(srv.Close)

	now := time.Now()
	creds := credentialrepofake.NewFakeCredentialRepo(srv.Credential(now.Add(time.Hour), now.Add(90*24*time.Hour)))
	tokens := token.New(remotefake.RealmID, creds, token.NewOAuth2Refresher(remotefake.ClientID, remotefake.ClientSecret, srv.TokenURL(), srv.Client()))
	client := remote.NewClient(srv.URL, remotefake.RealmID, tokens, remote.WithHTTPClient(srv.Client()), remote.WithRequestTimeout(2*time.Second))

	f := &testFixture{
		server:    srv,
		client:    client,
		logs:      synclogrepofake.NewFakeSyncLogRepo(),
		customers: entityrepofake.NewFakeCustomerRepo(),
		items:     entityrepofake.NewFakeItemRepo(),
		documents: entityrepofake.NewFakeSalesDocumentRepo(),
	}
	clock := entitysync.WithNowFunc(func() time.Time { return fixedNow })
	f.customerSvc = entitysync.NewService(f.customers, client, f.logs, entitysync.CustomerMapper{}, clock)
	f.itemSvc = entitysync.NewService(f.items, client, f.logs, entitysync.NewItemMapper(client, defaultIncomeAccount), clock)
	f.documentSvc = entitysync.NewService(f.documents, client, f.logs, entitysync.NewSalesDocumentMapper(f.customers, f.items), clock)
	return f
}

func (f *testFixture) addCustomer(c *entities.Customer) *entities.Customer {
	f.customers.Upsert(c)
	return c
}

func TestCustomerSync_CreateThenUpdate(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	c := f.addCustomer(&entities.Customer{LocalID: "c-1", Name: "Acme Ltd", Email: "ops@acme.test"})

	// Scenario A: no remote id, so a create is issued.
	out := f.customerSvc.Sync(ctx, c)
	require.False(t, out.Failed(), "unexpected error: %v", out.Err)
	require.Equal(t, entitysync.ResultCreated, out.Result)
	require.Equal(t, "Q-1", out.RemoteID)
	require.Equal(t, 1, f.server.Calls(http.MethodPost, "Customer"))
	require.Equal(t, 0, f.server.Calls(http.MethodGet, "Customer"))

	state := f.customers.SyncState("c-1")
	require.Equal(t, "Q-1", state.RemoteID)
	require.Equal(t, entities.SyncStatusSynced, state.SyncStatus)
	require.NotNil(t, state.SyncedAt)
	require.True(t, state.SyncedAt.Equal(fixedNow))

	entries := f.logs.ForEntity("c-1")
	require.Len(t, entries, 1)
	require.Equal(t, synclog.ActionCreate, entries[0].Action)
	require.Equal(t, synclog.StatusSuccess, entries[0].Status)
	require.Equal(t, "Q-1", entries[0].RemoteID)

	// Scenario B: remote id set, so the version marker is fetched and an update issued.
	c, err := f.customers.Get(ctx, "c-1")
	require.NoError(t, err)
	c.Email = "accounts@acme.test"
	out = f.customerSvc.Sync(ctx, c)
	require.False(t, out.Failed(), "unexpected error: %v", out.Err)
	require.Equal(t, entitysync.ResultUpdated, out.Result)
	require.Equal(t, "Q-1", out.RemoteID)
	require.Equal(t, 1, f.server.Calls(http.MethodGet, "Customer"))

	reqs := f.server.Requests()
	update := reqs[len(reqs)-1]
	require.Equal(t, http.MethodPost, update.Method)
	require.Equal(t, "Q-1", update.Body["Id"])
	require.Equal(t, "0", update.Body["SyncToken"])
	require.Equal(t, true, update.Body["sparse"])
	require.Equal(t, map[string]any{"Address": "accounts@acme.test"}, update.Body["PrimaryEmailAddr"])
	require.NotContains(t, update.Body, "DisplayName", "unchanged fields are not sent")

	rec, ok := f.server.Record("Customer", "Q-1")
	require.True(t, ok)
	require.Equal(t, "1", rec["SyncToken"])

	entries = f.logs.ForEntity("c-1")
	require.Len(t, entries, 2)
	require.Equal(t, synclog.ActionUpdate, entries[1].Action)
	require.Equal(t, synclog.StatusSuccess, entries[1].Status)
}

func TestCustomerSync_ClearedFieldsAreClearedRemotely(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	c := f.addCustomer(&entities.Customer{LocalID: "c-1", Name: "Acme Ltd", Email: "old@acme.test", Notes: "net 30"})

	out := f.customerSvc.Sync(ctx, c)
	require.Equal(t, entitysync.ResultCreated, out.Result, "unexpected error: %v", out.Err)

	c, err := f.customers.Get(ctx, "c-1")
	require.NoError(t, err)
	c.Email = ""
	c.Notes = ""
	out = f.customerSvc.Sync(ctx, c)
	require.Equal(t, entitysync.ResultUpdated, out.Result, "unexpected error: %v", out.Err)

	reqs := f.server.Requests()
	update := reqs[len(reqs)-1]
	require.Contains(t, update.Body, "PrimaryEmailAddr")
	require.Nil(t, update.Body["PrimaryEmailAddr"])
	require.Equal(t, "", update.Body["Notes"])
	require.NotContains(t, update.Body, "DisplayName")

	rec, ok := f.server.Record("Customer", "Q-1")
	require.True(t, ok)
	require.NotContains(t, rec, "PrimaryEmailAddr")
	require.Equal(t, "", rec["Notes"])
	require.Equal(t, "Acme Ltd", rec["DisplayName"])
}

func TestCustomerSync_ValidationErrorIsRecorded(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	f.server.AddRule(&remotefake.Rule{
		Method: http.MethodPost,
		Entity: "Customer",
		Match: func(body map[string]any) bool {
			email, _ := body["PrimaryEmailAddr"].(map[string]any)
			return email != nil && email["Address"] == "not-an-email"
		},
		Status: http.StatusBadRequest,
		Body:   `{"error":"Invalid email"}`,
	})
	c := f.addCustomer(&entities.Customer{LocalID: "c-1", Name: "Acme", Email: "not-an-email"})

	out := f.customerSvc.Sync(ctx, c)
	require.True(t, out.Failed())
	require.Equal(t, syncerrors.KindRemoteValidation, out.Reason)
	require.ErrorIs(t, out.Err, syncerrors.ErrRemoteValidation)

	var apiErr *remote.APIError
	require.ErrorAs(t, out.Err, &apiErr)
	require.Equal(t, http.StatusBadRequest, apiErr.StatusCode)

	state := f.customers.SyncState("c-1")
	require.Empty(t, state.RemoteID)
	require.Equal(t, entities.SyncStatusError, state.SyncStatus)

	entries := f.logs.ForEntity("c-1")
	require.Len(t, entries, 1)
	require.Equal(t, synclog.StatusError, entries[0].Status)
	require.Equal(t, synclog.ActionCreate, entries[0].Action)
	require.Contains(t, entries[0].ErrorMessage, "Invalid email")
}

func TestCustomerSync_FailedUpdateKeepsRemoteID(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	remoteID := f.server.Seed("Customer", map[string]any{"DisplayName": "Acme"})
	c := f.addCustomer(&entities.Customer{
		LocalID:   "c-1",
		Name:      "Acme Renamed",
		SyncState: entities.SyncState{RemoteID: remoteID, SyncStatus: entities.SyncStatusSynced},
	})
	f.server.AddRule(&remotefake.Rule{Method: http.MethodPost, Entity: "Customer", Status: http.StatusServiceUnavailable, Body: `{"error":"down"}`})

	out := f.customerSvc.Sync(ctx, c)
	require.True(t, out.Failed())
	require.Equal(t, synclog.ActionUpdate, out.Action)
	require.Equal(t, syncerrors.KindRemoteServer, out.Reason)
	require.Equal(t, remoteID, out.RemoteID)

	state := f.customers.SyncState("c-1")
	require.Equal(t, remoteID, state.RemoteID)
	require.Equal(t, entities.SyncStatusError, state.SyncStatus)

	entries := f.logs.ForEntity("c-1")
	require.Len(t, entries, 1)
	require.Equal(t, synclog.ActionUpdate, entries[0].Action)
	require.Equal(t, remoteID, entries[0].RemoteID)
}

func TestCustomerSync_RetryAfterErrorTakesCreatePath(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	f.server.AddRule(&remotefake.Rule{Method: http.MethodPost, Entity: "Customer", Status: http.StatusBadGateway, Body: `oops`, Times: 1})
	f.addCustomer(&entities.Customer{LocalID: "c-1", Name: "Acme"})

	out := f.customerSvc.SyncByID(ctx, "c-1")
	require.True(t, out.Failed())
	require.Equal(t, entities.SyncStatusError, f.customers.SyncState("c-1").SyncStatus)

	out = f.customerSvc.SyncByID(ctx, "c-1")
	require.False(t, out.Failed(), "unexpected error: %v", out.Err)
	require.Equal(t, entitysync.ResultCreated, out.Result)
	require.Equal(t, "Q-1", f.customers.SyncState("c-1").RemoteID)
	require.Equal(t, 2, f.server.Calls(http.MethodPost, "Customer"))
}

func TestCustomerSync_LogAppendFailureIsReported(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	diskFull := errors.New("disk full")
	f.logs.FailAppends(diskFull)
	f.addCustomer(&entities.Customer{LocalID: "c-1", Name: "Acme"})

	out := f.customerSvc.SyncByID(ctx, "c-1")
	require.Equal(t, entitysync.ResultCreated, out.Result, "unexpected error: %v", out.Err)
	require.False(t, out.Logged())
	require.ErrorIs(t, out.LogErr, diskFull)
	require.Equal(t, "Q-1", f.customers.SyncState("c-1").RemoteID)

	t.Run("failed attempt", func(t *testing.T) {
		f.server.AddRule(&remotefake.Rule{Method: http.MethodPost, Entity: "Customer", Status: http.StatusServiceUnavailable, Body: `{"error":"down"}`, Times: 1})
		out := f.customerSvc.SyncByID(ctx, "c-1")
		require.True(t, out.Failed())
		require.ErrorIs(t, out.LogErr, diskFull)
	})

	t.Run("log restored", func(t *testing.T) {
		f.logs.FailAppends(nil)
		f.addCustomer(&entities.Customer{LocalID: "c-2", Name: "Other"})
		out := f.customerSvc.SyncByID(ctx, "c-2")
		require.False(t, out.Failed(), "unexpected error: %v", out.Err)
		require.True(t, out.Logged())
		require.Len(t, f.logs.ForEntity("c-2"), 1)
	})
	require.Empty(t, f.logs.ForEntity("c-1"))
}

func TestCustomerSync_UnknownLocalID(t *testing.T) {
	f := setupTestFixture(t)
	out := f.customerSvc.SyncByID(context.Background(), "missing")
	require.True(t, out.Failed())
	require.Equal(t, syncerrors.KindNotFound, out.Reason)
	require.Empty(t, f.server.Requests())
	require.Empty(t, f.logs.All(), "no attempt reached the remote, so nothing is logged")
}

func TestItemSync_ResolvesDefaultIncomeAccountOnce(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	accountID := f.server.Seed("Account", map[string]any{"Name": defaultIncomeAccount, "AccountType": "Income"})
	f.items.Upsert(&entities.Item{LocalID: "i-1", Name: "Consulting", Type: entities.ItemTypeService, UnitPrice: 100})
	f.items.Upsert(&entities.Item{LocalID: "i-2", Name: "Support", Type: entities.ItemTypeService, UnitPrice: 50})

	for _, id := range []string{"i-1", "i-2"} {
		out := f.itemSvc.SyncByID(ctx, id)
		require.False(t, out.Failed(), "unexpected error: %v", out.Err)
	}

	queries := 0
	for _, r := range f.server.Requests() {
		if r.Query != "" {
			queries++
		}
	}
	require.Equal(t, 1, queries)

	rec, ok := f.server.Record("Item", f.items.SyncState("i-1").RemoteID)
	require.True(t, ok)
	require.Equal(t, map[string]any{"value": accountID}, rec["IncomeAccountRef"])
}

func TestItemSync_MissingIncomeAccount(t *testing.T) {
	f := setupTestFixture(t)
	f.items.Upsert(&entities.Item{LocalID: "i-1", Name: "Consulting", Type: entities.ItemTypeService})

	out := f.itemSvc.SyncByID(context.Background(), "i-1")
	require.True(t, out.Failed())
	require.Equal(t, syncerrors.KindRemoteValidation, out.Reason)
	require.Equal(t, 0, f.server.Calls(http.MethodPost, "Item"))
}

func TestSalesDocumentSync_UnsyncedReferenceNeverReachesRemote(t *testing.T) {
	f := setupTestFixture(t)
	f.addCustomer(&entities.Customer{LocalID: "c-1", Name: "Acme"})
	f.items.Upsert(&entities.Item{LocalID: "i-1", Name: "Widget", Type: entities.ItemTypeService, SyncState: entities.SyncState{RemoteID: "I-1", SyncStatus: entities.SyncStatusSynced}})
	f.documents.Upsert(&entities.SalesDocument{LocalID: "d-1", CustomerLocalID: "c-1", Lines: []entities.SalesLine{{ItemLocalID: "i-1", Quantity: 1, UnitPrice: 5}}})

	out := f.documentSvc.SyncByID(context.Background(), "d-1")
	require.True(t, out.Failed())
	require.Equal(t, syncerrors.KindDependencyUnsynced, out.Reason)
	require.Empty(t, f.server.Requests())
	require.Equal(t, entities.SyncStatusError, f.documents.SyncState("d-1").SyncStatus)
}

func TestSalesDocumentSync_Estimate(t *testing.T) {
	f := setupTestFixture(t)
	f.addCustomer(&entities.Customer{LocalID: "c-1", Name: "Acme", SyncState: entities.SyncState{RemoteID: "Q-7", SyncStatus: entities.SyncStatusSynced}})
	f.items.Upsert(&entities.Item{LocalID: "i-1", Name: "Widget", Type: entities.ItemTypeService, SyncState: entities.SyncState{RemoteID: "I-3", SyncStatus: entities.SyncStatusSynced}})
	f.documents.Upsert(&entities.SalesDocument{
		LocalID:         "d-1",
		Type:            entities.DocumentTypeEstimate,
		CustomerLocalID: "c-1",
		Lines:           []entities.SalesLine{{ItemLocalID: "i-1", Quantity: 2, UnitPrice: 5}},
	})

	out := f.documentSvc.SyncByID(context.Background(), "d-1")
	require.False(t, out.Failed(), "unexpected error: %v", out.Err)
	require.Equal(t, "E-1", out.RemoteID)

	rec, ok := f.server.Record("Estimate", "E-1")
	require.True(t, ok)
	require.Equal(t, map[string]any{"value": "Q-7"}, rec["CustomerRef"])
}

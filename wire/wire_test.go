package wire_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/jrsteele09/go-accounting-sync/entities"
	syncerrors "github.com/jrsteele09/go-accounting-sync/internal/errors"
	"github.com/jrsteele09/go-accounting-sync/wire"
	"github.com/stretchr/testify/require"
)

func encode(t *testing.T, v any) map[string]any {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	out := map[string]any{}
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestBuildCustomer(t *testing.T) {
	t.Run("empty fields are omitted", func(t *testing.T) {
		rec, err := wire.BuildCustomer(&entities.Customer{LocalID: "c-1", Name: "  Acme Ltd ", Email: " ", Phone: ""})
		require.NoError(t, err)

		m := encode(t, rec)
		require.Equal(t, map[string]any{"DisplayName": "Acme Ltd"}, m)
	})

	t.Run("populated fields are mapped", func(t *testing.T) {
		rec, err := wire.BuildCustomer(&entities.Customer{
			LocalID:   "c-1",
			Name:      "Acme Ltd",
			FirstName: "Ada",
			LastName:  "Lovelace",
			Email:     "ada@acme.test",
			Phone:     "555-0100",
			BillingAddress: entities.Address{
				Line1:      "1 Main St",
				City:       "Springfield",
				Region:     "IL",
				PostalCode: "62701",
			},
		})
		require.NoError(t, err)

		m := encode(t, rec)
		require.Equal(t, "Ada", m["GivenName"])
		require.Equal(t, "Lovelace", m["FamilyName"])
		require.Equal(t, map[string]any{"Address": "ada@acme.test"}, m["PrimaryEmailAddr"])
		require.Equal(t, map[string]any{"FreeFormNumber": "555-0100"}, m["PrimaryPhone"])
		require.Equal(t, map[string]any{
			"Line1":                  "1 Main St",
			"City":                   "Springfield",
			"CountrySubDivisionCode": "IL",
			"PostalCode":             "62701",
		}, m["BillAddr"])
		require.NotContains(t, m, "Id")
		require.NotContains(t, m, "CompanyName")
	})

	t.Run("whitespace-only address is omitted", func(t *testing.T) {
		rec, err := wire.BuildCustomer(&entities.Customer{LocalID: "c-1", Name: "A", BillingAddress: entities.Address{City: "  "}})
		require.NoError(t, err)
		require.Nil(t, rec.BillAddr)
	})

	t.Run("name required", func(t *testing.T) {
		_, err := wire.BuildCustomer(&entities.Customer{LocalID: "c-1"})
		require.ErrorIs(t, err, syncerrors.ErrInvalidRecord)
	})
}

func TestBuildItem(t *testing.T) {
	t.Run("service item", func(t *testing.T) {
		rec, err := wire.BuildItem(&entities.Item{LocalID: "i-1", Name: "Consulting", Type: entities.ItemTypeService, UnitPrice: 150}, "A-1")
		require.NoError(t, err)

		m := encode(t, rec)
		require.Equal(t, "Service", m["Type"])
		require.Equal(t, 150.0, m["UnitPrice"])
		require.Equal(t, map[string]any{"value": "A-1"}, m["IncomeAccountRef"])
		require.NotContains(t, m, "TrackQtyOnHand")
		require.NotContains(t, m, "Sku")
	})

	t.Run("inventory item tracks quantity", func(t *testing.T) {
		rec, err := wire.BuildItem(&entities.Item{
			LocalID:            "i-2",
			Name:               "Widget",
			Type:               entities.ItemTypeInventory,
			QuantityOnHand:     12,
			InventoryStartDate: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
		}, "")
		require.NoError(t, err)

		m := encode(t, rec)
		require.Equal(t, true, m["TrackQtyOnHand"])
		require.Equal(t, 12.0, m["QtyOnHand"])
		require.Equal(t, "2026-01-02", m["InvStartDate"])
		require.NotContains(t, m, "UnitPrice", "zero price is omitted")
		require.NotContains(t, m, "IncomeAccountRef")
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := wire.BuildItem(&entities.Item{LocalID: "i-3", Name: "X", Type: "bundle"}, "")
		require.ErrorIs(t, err, syncerrors.ErrInvalidRecord)
	})
}

func TestBuildSalesDocument(t *testing.T) {
	doc := &entities.SalesDocument{
		LocalID:         "d-1",
		DocNumber:       "1001",
		CustomerLocalID: "c-1",
		TxnDate:         time.Date(2026, 2, 3, 0, 0, 0, 0, time.UTC),
		Lines: []entities.SalesLine{
			{ItemLocalID: "i-1", Quantity: 3, UnitPrice: 9.99},
		},
	}

	t.Run("uses remote refs", func(t *testing.T) {
		rec, err := wire.BuildSalesDocument(doc, wire.DocumentRefs{
			CustomerRemoteID: "Q-1",
			ItemRemoteIDs:    map[string]string{"i-1": "I-9"},
		})
		require.NoError(t, err)
		require.Equal(t, "Q-1", rec.CustomerRef.Value)
		require.Len(t, rec.Line, 1)
		require.Equal(t, "I-9", rec.Line[0].SalesItemLineDetail.ItemRef.Value)
		require.Equal(t, 29.97, rec.Line[0].Amount)
		require.Equal(t, "2026-02-03", rec.TxnDate)
		require.Empty(t, rec.DueDate)
		require.Nil(t, rec.CustomerMemo)
	})

	t.Run("missing customer ref", func(t *testing.T) {
		_, err := wire.BuildSalesDocument(doc, wire.DocumentRefs{ItemRemoteIDs: map[string]string{"i-1": "I-9"}})
		require.ErrorIs(t, err, syncerrors.ErrDependencyUnsynced)
	})

	t.Run("missing item ref", func(t *testing.T) {
		_, err := wire.BuildSalesDocument(doc, wire.DocumentRefs{CustomerRemoteID: "Q-1"})
		require.ErrorIs(t, err, syncerrors.ErrDependencyUnsynced)
	})
}

func TestSalesDocumentEntity(t *testing.T) {
	name, err := wire.SalesDocumentEntity(entities.DocumentTypeEstimate)
	require.NoError(t, err)
	require.Equal(t, wire.EntityEstimate, name)

	name, err = wire.SalesDocumentEntity("")
	require.NoError(t, err)
	require.Equal(t, wire.EntityInvoice, name)

	_, err = wire.SalesDocumentEntity("credit_memo")
	require.ErrorIs(t, err, syncerrors.ErrInvalidRecord)
}

func TestSparseUpdate(t *testing.T) {
	desired := &wire.Customer{
		DisplayName:      "Acme Ltd",
		PrimaryEmailAddr: &wire.EmailAddress{Address: "new@acme.test"},
		BillAddr:         &wire.PhysicalAddress{City: "Springfield"},
	}
	current := map[string]any{
		"Id":               "Q-1",
		"SyncToken":        "3",
		"DisplayName":      "Acme Ltd",
		"PrimaryEmailAddr": map[string]any{"Address": "old@acme.test"},
		"BillAddr":         map[string]any{"Id": "77", "City": "Springfield"},
		"Balance":          12.5,
	}

	payload, err := wire.SparseUpdate(desired, current, "Q-1", "3")
	require.NoError(t, err)
	require.Equal(t, map[string]any{
		"Id":               "Q-1",
		"SyncToken":        "3",
		"sparse":           true,
		"PrimaryEmailAddr": map[string]any{"Address": "new@acme.test"},
	}, payload)
	require.ElementsMatch(t, []string{"PrimaryEmailAddr"}, wire.ChangedFields(payload))

	t.Run("no changes still carries identity", func(t *testing.T) {
		same := &wire.Customer{
			DisplayName:      "Acme Ltd",
			PrimaryEmailAddr: &wire.EmailAddress{Address: "old@acme.test"},
			BillAddr:         &wire.PhysicalAddress{City: "Springfield"},
		}
		payload, err := wire.SparseUpdate(same, current, "Q-1", "3")
		require.NoError(t, err)
		require.Equal(t, map[string]any{"Id": "Q-1", "SyncToken": "3", "sparse": true}, payload)
	})

	t.Run("cleared local fields are sent empty", func(t *testing.T) {
		remoteRec := map[string]any{
			"Id":               "Q-1",
			"SyncToken":        "3",
			"DisplayName":      "Acme Ltd",
			"Notes":            "call first",
			"PrimaryEmailAddr": map[string]any{"Address": "old@acme.test"},
			"PrimaryPhone":     map[string]any{},
			"BillAddr":         map[string]any{"Id": "77", "City": "Springfield"},
			"Balance":          12.5,
		}
		cleared, err := wire.BuildCustomer(&entities.Customer{LocalID: "c-1", Name: "Acme Ltd"})
		require.NoError(t, err)

		payload, err := wire.SparseUpdate(cleared, remoteRec, "Q-1", "3")
		require.NoError(t, err)
		require.Equal(t, map[string]any{
			"Id":               "Q-1",
			"SyncToken":        "3",
			"sparse":           true,
			"Notes":            "",
			"PrimaryEmailAddr": nil,
			"BillAddr":         nil,
		}, payload)
		require.ElementsMatch(t, []string{"Notes", "PrimaryEmailAddr", "BillAddr"}, wire.ChangedFields(payload))
	})

	t.Run("cleared item price is zeroed", func(t *testing.T) {
		desired, err := wire.BuildItem(&entities.Item{LocalID: "i-1", Name: "Consulting", Type: entities.ItemTypeService}, "A-1")
		require.NoError(t, err)
		remoteRec := map[string]any{
			"Id":               "I-1",
			"SyncToken":        "0",
			"Name":             "Consulting",
			"Type":             "Service",
			"UnitPrice":        150.0,
			"TrackQtyOnHand":   false,
			"IncomeAccountRef": map[string]any{"value": "A-1"},
		}

		payload, err := wire.SparseUpdate(desired, remoteRec, "I-1", "0")
		require.NoError(t, err)
		require.Equal(t, map[string]any{"Id": "I-1", "SyncToken": "0", "sparse": true, "UnitPrice": 0.0}, payload)
	})
}

package wire

import (
	"fmt"
	"math"
	"strings"

	"github.com/jrsteele09/go-accounting-sync/entities"
	syncerrors "github.com/jrsteele09/go-accounting-sync/internal/errors"
	"github.com/jrsteele09/go-accounting-sync/internal/utils"
)

const dateLayout = "2006-01-02"

var itemTypes = map[entities.ItemType]string{
	entities.ItemTypeService:      "Service",
	entities.ItemTypeInventory:    "Inventory",
	entities.ItemTypeNonInventory: "NonInventory",
}

// DocumentRefs carries the remote ids a sales document points at.
type DocumentRefs struct {
	CustomerRemoteID string
	ItemRemoteIDs    map[string]string // item local id -> remote id
}

func BuildCustomer(c *entities.Customer) (*Customer, error) {
	name := strings.TrimSpace(c.Name)
	if name == "" {
		return nil, fmt.Errorf("customer %s: display name is required: %w", c.LocalID, syncerrors.ErrInvalidRecord)
	}
	rec := &Customer{
		DisplayName: name,
		CompanyName: strings.TrimSpace(c.CompanyName),
		GivenName:   strings.TrimSpace(c.FirstName),
		FamilyName:  strings.TrimSpace(c.LastName),
		Notes:       strings.TrimSpace(c.Notes),
		BillAddr:    buildAddress(c.BillingAddress),
	}
	if email := strings.TrimSpace(c.Email); email != "" {
		rec.PrimaryEmailAddr = &EmailAddress{Address: email}
	}
	if phone := strings.TrimSpace(c.Phone); phone != "" {
		rec.PrimaryPhone = &TelephoneNumber{FreeFormNumber: phone}
	}
	return rec, nil
}

// BuildItem maps a local item. incomeAccountID must already be resolved.
func BuildItem(i *entities.Item, incomeAccountID string) (*Item, error) {
	name := strings.TrimSpace(i.Name)
	if name == "" {
		return nil, fmt.Errorf("item %s: name is required: %w", i.LocalID, syncerrors.ErrInvalidRecord)
	}
	itemType, ok := itemTypes[i.Type]
	if !ok {
		return nil, fmt.Errorf("item %s: unknown type %q: %w", i.LocalID, i.Type, syncerrors.ErrInvalidRecord)
	}
	if i.UnitPrice < 0 {
		return nil, fmt.Errorf("item %s: negative unit price: %w", i.LocalID, syncerrors.ErrInvalidRecord)
	}
	rec := &Item{
		Name:        name,
		Description: strings.TrimSpace(i.Description),
		Type:        itemType,
		Sku:         strings.TrimSpace(i.SKU),
		UnitPrice:   utils.PtrOrNil(i.UnitPrice),
	}
	if incomeAccountID != "" {
		rec.IncomeAccountRef = &Ref{Value: incomeAccountID}
	}
	if i.Type == entities.ItemTypeInventory {
		rec.TrackQtyOnHand = utils.Ptr(true)
		rec.QtyOnHand = utils.Ptr(i.QuantityOnHand)
		if !i.InventoryStartDate.IsZero() {
			rec.InvStartDate = i.InventoryStartDate.Format(dateLayout)
		}
	}
	return rec, nil
}

// BuildSalesDocument maps a local document. Every referenced customer and
// item must already have a remote id; a missing one is reported as
// ErrDependencyUnsynced and nothing is built.
func BuildSalesDocument(d *entities.SalesDocument, refs DocumentRefs) (*SalesDocument, error) {
	if refs.CustomerRemoteID == "" {
		return nil, fmt.Errorf("document %s: customer %s has no remote id: %w", d.LocalID, d.CustomerLocalID, syncerrors.ErrDependencyUnsynced)
	}
	if len(d.Lines) == 0 {
		return nil, fmt.Errorf("document %s: at least one line is required: %w", d.LocalID, syncerrors.ErrInvalidRecord)
	}
	rec := &SalesDocument{
		DocNumber:   strings.TrimSpace(d.DocNumber),
		CustomerRef: Ref{Value: refs.CustomerRemoteID},
		Line:        make([]SaleLine, 0, len(d.Lines)),
	}
	if !d.TxnDate.IsZero() {
		rec.TxnDate = d.TxnDate.Format(dateLayout)
	}
	if !d.DueDate.IsZero() {
		rec.DueDate = d.DueDate.Format(dateLayout)
	}
	if memo := strings.TrimSpace(d.Memo); memo != "" {
		rec.CustomerMemo = &MemoRef{Value: memo}
	}
	for n, l := range d.Lines {
		itemID := refs.ItemRemoteIDs[l.ItemLocalID]
		if itemID == "" {
			return nil, fmt.Errorf("document %s line %d: item %s has no remote id: %w", d.LocalID, n+1, l.ItemLocalID, syncerrors.ErrDependencyUnsynced)
		}
		if l.Quantity <= 0 {
			return nil, fmt.Errorf("document %s line %d: quantity must be positive: %w", d.LocalID, n+1, syncerrors.ErrInvalidRecord)
		}
		rec.Line = append(rec.Line, SaleLine{
			Description: strings.TrimSpace(l.Description),
			Amount:      roundCents(l.Quantity * l.UnitPrice),
			DetailType:  "SalesItemLineDetail",
			SalesItemLineDetail: &SalesItemLineDetail{
				ItemRef:   Ref{Value: itemID},
				Qty:       utils.Ptr(l.Quantity),
				UnitPrice: utils.Ptr(l.UnitPrice),
			},
		})
	}
	return rec, nil
}

// SalesDocumentEntity is the remote entity a local document type is stored as.
func SalesDocumentEntity(t entities.DocumentType) (string, error) {
	switch t {
	case entities.DocumentTypeInvoice, "":
		return EntityInvoice, nil
	case entities.DocumentTypeEstimate:
		return EntityEstimate, nil
	}
	return "", fmt.Errorf("unknown document type %q: %w", t, syncerrors.ErrInvalidRecord)
}

func buildAddress(a entities.Address) *PhysicalAddress {
	if a.IsZero() {
		return nil
	}
	addr := &PhysicalAddress{
		Line1:                  strings.TrimSpace(a.Line1),
		Line2:                  strings.TrimSpace(a.Line2),
		City:                   strings.TrimSpace(a.City),
		CountrySubDivisionCode: strings.TrimSpace(a.Region),
		PostalCode:             strings.TrimSpace(a.PostalCode),
		Country:                strings.TrimSpace(a.Country),
	}
	if *addr == (PhysicalAddress{}) {
		return nil
	}
	return addr
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

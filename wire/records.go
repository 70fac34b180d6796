// Package wire holds the remote API's record shapes and the builders that
// produce them from local entities.
//
// Omission rule: every optional field is either a pointer or tagged
// omitempty, and builders leave it unset when the local value is empty. A
// create never sends "" for an empty local field; a sparse update sends one
// only to clear a value the remote still holds.
package wire

// Remote entity names, used both as the envelope key and (lower-cased) as the path.
const (
	EntityCustomer = "Customer"
	EntityItem     = "Item"
	EntityInvoice  = "Invoice"
	EntityEstimate = "Estimate"
	EntityAccount  = "Account"
)

type Ref struct {
	Value string `json:"value"`
	Name  string `json:"name,omitempty"`
}

type EmailAddress struct {
	Address string `json:"Address"`
}

type TelephoneNumber struct {
	FreeFormNumber string `json:"FreeFormNumber"`
}

type PhysicalAddress struct {
	Line1                  string `json:"Line1,omitempty"`
	Line2                  string `json:"Line2,omitempty"`
	City                   string `json:"City,omitempty"`
	CountrySubDivisionCode string `json:"CountrySubDivisionCode,omitempty"`
	PostalCode             string `json:"PostalCode,omitempty"`
	Country                string `json:"Country,omitempty"`
}

type Customer struct {
	ID               string           `json:"Id,omitempty"`
	SyncToken        string           `json:"SyncToken,omitempty"`
	DisplayName      string           `json:"DisplayName"`
	CompanyName      string           `json:"CompanyName,omitempty"`
	GivenName        string           `json:"GivenName,omitempty"`
	FamilyName       string           `json:"FamilyName,omitempty"`
	PrimaryEmailAddr *EmailAddress    `json:"PrimaryEmailAddr,omitempty"`
	PrimaryPhone     *TelephoneNumber `json:"PrimaryPhone,omitempty"`
	BillAddr         *PhysicalAddress `json:"BillAddr,omitempty"`
	Notes            string           `json:"Notes,omitempty"`
}

type Item struct {
	ID               string   `json:"Id,omitempty"`
	SyncToken        string   `json:"SyncToken,omitempty"`
	Name             string   `json:"Name"`
	Description      string   `json:"Description,omitempty"`
	Type             string   `json:"Type"`
	Sku              string   `json:"Sku,omitempty"`
	UnitPrice        *float64 `json:"UnitPrice,omitempty"`
	TrackQtyOnHand   *bool    `json:"TrackQtyOnHand,omitempty"`
	QtyOnHand        *float64 `json:"QtyOnHand,omitempty"`
	InvStartDate     string   `json:"InvStartDate,omitempty"`
	IncomeAccountRef *Ref     `json:"IncomeAccountRef,omitempty"`
}

// SalesDocument is the shared shape of Invoice and Estimate.
type SalesDocument struct {
	ID           string     `json:"Id,omitempty"`
	SyncToken    string     `json:"SyncToken,omitempty"`
	DocNumber    string     `json:"DocNumber,omitempty"`
	TxnDate      string     `json:"TxnDate,omitempty"`
	DueDate      string     `json:"DueDate,omitempty"`
	CustomerRef  Ref        `json:"CustomerRef"`
	CustomerMemo *MemoRef   `json:"CustomerMemo,omitempty"`
	Line         []SaleLine `json:"Line"`
}

type MemoRef struct {
	Value string `json:"value"`
}

type SaleLine struct {
	Description         string               `json:"Description,omitempty"`
	Amount              float64              `json:"Amount"`
	DetailType          string               `json:"DetailType"`
	SalesItemLineDetail *SalesItemLineDetail `json:"SalesItemLineDetail,omitempty"`
}

type SalesItemLineDetail struct {
	ItemRef   Ref      `json:"ItemRef"`
	Qty       *float64 `json:"Qty,omitempty"`
	UnitPrice *float64 `json:"UnitPrice,omitempty"`
}

type Account struct {
	ID          string `json:"Id"`
	Name        string `json:"Name"`
	AccountType string `json:"AccountType,omitempty"`
}

package entities

import "time"

type DocumentType string

const (
	DocumentTypeInvoice  DocumentType = "invoice"
	DocumentTypeEstimate DocumentType = "estimate"
)

// SalesDocument is an invoice or estimate. It references one customer and
// one item per line by local id.
type SalesDocument struct {
	LocalID         string       `json:"localId"`
	Type            DocumentType `json:"type"`
	DocNumber       string       `json:"docNumber,omitempty"`
	CustomerLocalID string       `json:"customerLocalId"`
	TxnDate         time.Time    `json:"txnDate"`
	DueDate         time.Time    `json:"dueDate,omitempty"`
	Memo            string       `json:"memo,omitempty"`
	Lines           []SalesLine  `json:"lines"`
	SyncState
}

type SalesLine struct {
	ItemLocalID string  `json:"itemLocalId"`
	Description string  `json:"description,omitempty"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unitPrice"`
}

var _ Syncable = (*SalesDocument)(nil)

func (d *SalesDocument) Key() string         { return d.LocalID }
func (d *SalesDocument) Sync() SyncState     { return d.SyncState }
func (d *SalesDocument) SetSync(s SyncState) { d.SyncState = s }

// ItemLocalIDs returns the distinct items referenced by the document's lines, in line order.
func (d *SalesDocument) ItemLocalIDs() []string {
	seen := make(map[string]struct{}, len(d.Lines))
	ids := make([]string, 0, len(d.Lines))
	for _, l := range d.Lines {
		if _, ok := seen[l.ItemLocalID]; ok {
			continue
		}
		seen[l.ItemLocalID] = struct{}{}
		ids = append(ids, l.ItemLocalID)
	}
	return ids
}

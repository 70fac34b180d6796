package entities

import "time"

type ItemType string

const (
	ItemTypeService      ItemType = "service"
	ItemTypeInventory    ItemType = "inventory"
	ItemTypeNonInventory ItemType = "non_inventory"
)

type Item struct {
	LocalID     string   `json:"localId"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Type        ItemType `json:"type"`
	SKU         string   `json:"sku,omitempty"`
	UnitPrice   float64  `json:"unitPrice"`
	// QuantityOnHand and InventoryStartDate apply to inventory items only.
	QuantityOnHand     float64   `json:"quantityOnHand,omitempty"`
	InventoryStartDate time.Time `json:"inventoryStartDate,omitempty"`
	// IncomeAccountID is the remote account id; empty resolves the configured default.
	IncomeAccountID string `json:"incomeAccountId,omitempty"`
	SyncState
}

var _ Syncable = (*Item)(nil)

func (i *Item) Key() string         { return i.LocalID }
func (i *Item) Sync() SyncState     { return i.SyncState }
func (i *Item) SetSync(s SyncState) { i.SyncState = s }

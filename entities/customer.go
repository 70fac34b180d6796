package entities

type Customer struct {
	LocalID        string  `json:"localId"`
	Name           string  `json:"name"`
	CompanyName    string  `json:"companyName,omitempty"`
	FirstName      string  `json:"firstName,omitempty"`
	LastName       string  `json:"lastName,omitempty"`
	Email          string  `json:"email,omitempty"`
	Phone          string  `json:"phone,omitempty"`
	BillingAddress Address `json:"billingAddress"`
	Notes          string  `json:"notes,omitempty"`
	SyncState
}

var _ Syncable = (*Customer)(nil)

func (c *Customer) Key() string         { return c.LocalID }
func (c *Customer) Sync() SyncState     { return c.SyncState }
func (c *Customer) SetSync(s SyncState) { c.SyncState = s }

package entitysync

import (
	"context"
	"fmt"

	"github.com/jrsteele09/go-accounting-sync/entities"
	syncerrors "github.com/jrsteele09/go-accounting-sync/internal/errors"
	"github.com/jrsteele09/go-accounting-sync/wire"
)

// SalesDocumentMapper maps documents using the remote ids currently stored
// on the referenced customer and items. It never syncs dependencies itself.
type SalesDocumentMapper struct {
	customers entities.Repo[*entities.Customer]
	items     entities.Repo[*entities.Item]
}

var _ Mapper[*entities.SalesDocument] = (*SalesDocumentMapper)(nil)

func NewSalesDocumentMapper(customers entities.Repo[*entities.Customer], items entities.Repo[*entities.Item]) *SalesDocumentMapper {
	return &SalesDocumentMapper{customers: customers, items: items}
}

func (*SalesDocumentMapper) Kind() entities.Kind { return entities.KindSalesDocument }

func (*SalesDocumentMapper) Entity(d *entities.SalesDocument) (string, error) {
	return wire.SalesDocumentEntity(d.Type)
}

func (m *SalesDocumentMapper) MapToRemote(ctx context.Context, d *entities.SalesDocument) (any, error) {
	refs, err := m.refs(ctx, d)
	if err != nil {
		return nil, err
	}
	return wire.BuildSalesDocument(d, refs)
}

func (m *SalesDocumentMapper) refs(ctx context.Context, d *entities.SalesDocument) (wire.DocumentRefs, error) {
	refs := wire.DocumentRefs{ItemRemoteIDs: make(map[string]string, len(d.Lines))}
	customer, err := m.customers.Get(ctx, d.CustomerLocalID)
	if err != nil {
		return refs, fmt.Errorf("document %s: customer %s: %w: %w", d.LocalID, d.CustomerLocalID, syncerrors.ErrDependencyUnsynced, err)
	}
	refs.CustomerRemoteID = customer.RemoteID
	for _, itemID := range d.ItemLocalIDs() {
		item, err := m.items.Get(ctx, itemID)
		if err != nil {
			return refs, fmt.Errorf("document %s: item %s: %w: %w", d.LocalID, itemID, syncerrors.ErrDependencyUnsynced, err)
		}
		refs.ItemRemoteIDs[itemID] = item.RemoteID
	}
	return refs, nil
}

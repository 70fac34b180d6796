package entitysync

import (
	"context"

	"github.com/jrsteele09/go-accounting-sync/entities"
	"github.com/jrsteele09/go-accounting-sync/wire"
)

type CustomerMapper struct{}

var _ Mapper[*entities.Customer] = CustomerMapper{}

func (CustomerMapper) Kind() entities.Kind { return entities.KindCustomer }

func (CustomerMapper) Entity(*entities.Customer) (string, error) { return wire.EntityCustomer, nil }

func (CustomerMapper) MapToRemote(_ context.Context, c *entities.Customer) (any, error) {
	return wire.BuildCustomer(c)
}

package entitysync

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jrsteele09/go-accounting-sync/entities"
	syncerrors "github.com/jrsteele09/go-accounting-sync/internal/errors"
	"github.com/jrsteele09/go-accounting-sync/remote"
	"github.com/jrsteele09/go-accounting-sync/wire"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const accountLookupTimeout = 30 * time.Second

// ItemMapper maps items and resolves the income account an item posts to.
// Items without an explicit account use the default account, looked up by
// name once and cached.
type ItemMapper struct {
	api                  remote.API
	defaultIncomeAccount string

	mu       sync.RWMutex
	accounts map[string]string // account name -> remote id
	lookups  singleflight.Group
}

var _ Mapper[*entities.Item] = (*ItemMapper)(nil)

func NewItemMapper(api remote.API, defaultIncomeAccount string) *ItemMapper {
	return &ItemMapper{
		api:                  api,
		defaultIncomeAccount: defaultIncomeAccount,
		accounts:             make(map[string]string),
	}
}

func (*ItemMapper) Kind() entities.Kind { return entities.KindItem }

func (*ItemMapper) Entity(*entities.Item) (string, error) { return wire.EntityItem, nil }

func (m *ItemMapper) MapToRemote(ctx context.Context, i *entities.Item) (any, error) {
	accountID := i.IncomeAccountID
	if accountID == "" && m.defaultIncomeAccount != "" {
		var err error
		if accountID, err = m.resolveAccount(ctx, m.defaultIncomeAccount); err != nil {
			return nil, err
		}
	}
	return wire.BuildItem(i, accountID)
}

func (m *ItemMapper) resolveAccount(ctx context.Context, name string) (string, error) {
	m.mu.RLock()
	id, ok := m.accounts[name]
	m.mu.RUnlock()
	if ok {
		return id, nil
	}

	ch := m.lookups.DoChan(name, func() (any, error) {
		// Shared by every item waiting on this account, so no single caller cancels it.
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), accountLookupTimeout)
		defer cancel()
		raw, err := m.api.Query(lctx, fmt.Sprintf("select * from %s where Name = '%s'", wire.EntityAccount, escapeQuery(name)))
		if err != nil {
			return "", fmt.Errorf("resolve income account %q: %w", name, err)
		}
		var rows []wire.Account
		if err := remote.DecodeQuery(raw, wire.EntityAccount, &rows); err != nil {
			return "", err
		}
		if len(rows) == 0 || rows[0].ID == "" {
			return "", fmt.Errorf("income account %q not found: %w", name, syncerrors.ErrRemoteValidation)
		}
		m.mu.Lock()
		m.accounts[name] = rows[0].ID
		m.mu.Unlock()
		log.Debug().Str("account", name).Str("remote_id", rows[0].ID).Msg("income account resolved")
		return rows[0].ID, nil
	})

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("resolve income account %q: %w", name, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func escapeQuery(s string) string {
	return strings.ReplaceAll(s, "'", `\'`)
}

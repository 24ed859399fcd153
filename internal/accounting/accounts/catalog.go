package accounts

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/reconciler/internal/accounting/shared"
)

// Catalog is the read side of the chart of accounts used by posting. The
// chart is loaded once and refreshed after ttl; concurrent loads collapse
// into a single query.
type Catalog struct {
	repo  Repository
	ttl   time.Duration
	now   func() time.Time
	group singleflight.Group

	mu       sync.RWMutex
	byCode   map[string]Account
	ordered  []Account
	loadedAt time.Time
}

// NewCatalog builds a catalog over repo. A non-positive ttl keeps the first
// load until Refresh is called.
func NewCatalog(repo Repository, ttl time.Duration) *Catalog {
	return &Catalog{repo: repo, ttl: ttl, now: time.Now}
}

// Lookup resolves an account by code.
func (c *Catalog) Lookup(ctx context.Context, code string) (Account, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return Account{}, &shared.MissingAccountError{Code: code}
	}
	if err := c.ensureLoaded(ctx); err != nil {
		return Account{}, err
	}
	c.mu.RLock()
	acc, ok := c.byCode[code]
	c.mu.RUnlock()
	if !ok {
		return Account{}, &shared.MissingAccountError{Code: code}
	}
	return acc, nil
}

// Postable resolves code and rejects synthetic or inactive accounts.
func (c *Catalog) Postable(ctx context.Context, code string) (Account, error) {
	acc, err := c.Lookup(ctx, code)
	if err != nil {
		return Account{}, err
	}
	if acc.IsSynthetic {
		return Account{}, fmt.Errorf("%w: %s", shared.ErrSyntheticAccount, acc.Code)
	}
	if !acc.IsActive {
		return Account{}, fmt.Errorf("%w: %s", shared.ErrInactiveAccount, acc.Code)
	}
	return acc, nil
}

// List returns the whole chart ordered by code.
func (c *Catalog) List(ctx context.Context) ([]Account, error) {
	if err := c.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Account, len(c.ordered))
	copy(out, c.ordered)
	return out, nil
}

// Refresh forces a reload from the repository.
func (c *Catalog) Refresh(ctx context.Context) error {
	_, err, _ := c.group.Do("chart", func() (interface{}, error) {
		return nil, c.load(ctx)
	})
	return err
}

func (c *Catalog) ensureLoaded(ctx context.Context) error {
	c.mu.RLock()
	fresh := c.byCode != nil && (c.ttl <= 0 || c.now().Sub(c.loadedAt) < c.ttl)
	c.mu.RUnlock()
	if fresh {
		return nil
	}
	return c.Refresh(ctx)
}

func (c *Catalog) load(ctx context.Context) error {
	if c.repo == nil {
		return fmt.Errorf("accounts: catalog repository not configured")
	}
	list, err := c.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("accounts: load chart: %w", err)
	}
	byCode := make(map[string]Account, len(list))
	for _, acc := range list {
		byCode[acc.Code] = acc
	}
	c.mu.Lock()
	c.byCode = byCode
	c.ordered = list
	c.loadedAt = c.now()
	c.mu.Unlock()
	return nil
}

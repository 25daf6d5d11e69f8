package inventory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// CATALOG - Minimal product/category management around the ledgers
// =============================================================================

// Catalog creates and reads products and categories, and performs manual
// price edits. Stock is never written here; see StockLedger.
type Catalog struct {
	Store TxStore
	Now   func() time.Time
}

func NewCatalog(store TxStore) *Catalog {
	return &Catalog{Store: store, Now: time.Now}
}

// NewProductInput describes a product to create.
type NewProductInput struct {
	Name         string
	Price        decimal.Decimal
	InitialStock int64
	Categories   []CategoryID
}

func (c *Catalog) CreateCategory(ctx context.Context, name string) (*Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, invalid("nombre", "is required")
	}
	cat := &Category{Name: name, CreatedAt: c.now()}
	if err := c.Store.CreateCategory(ctx, cat); err != nil {
		return nil, err
	}
	return cat, nil
}

func (c *Catalog) ListCategories(ctx context.Context) ([]Category, error) {
	return c.Store.ListCategories(ctx)
}

// CreateProduct creates a product. Categories must exist; duplicates are dropped.
func (c *Catalog) CreateProduct(ctx context.Context, in NewProductInput) (*Product, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, invalid("nombre", "is required")
	}
	if err := ValidatePrice(RoundPrice(in.Price)); err != nil {
		return nil, err
	}

	now := c.now()
	p := &Product{
		Name:       name,
		Price:      RoundPrice(in.Price),
		Stock:      in.InitialStock,
		Categories: uniqueCategories(in.Categories),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	err := c.Store.WithTx(ctx, func(s Store) error {
		for _, id := range p.Categories {
			cat, err := s.GetCategory(ctx, id)
			if err != nil {
				return err
			}
			if cat == nil {
				return categoryNotFound(id)
			}
		}
		return s.CreateProduct(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (c *Catalog) GetProduct(ctx context.Context, id ProductID) (*Product, error) {
	p, err := c.Store.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, productNotFound(id)
	}
	return p, nil
}

// ListProducts lists products in scope, ordered by ID.
func (c *Catalog) ListProducts(ctx context.Context, scope Scope) ([]Product, error) {
	return c.Store.ListProducts(ctx, scope)
}

// SetPrice is a manual price edit outside any bulk adjustment. It does not
// touch adjustment snapshots; a later revert still restores snapshot prices.
func (c *Catalog) SetPrice(ctx context.Context, id ProductID, price decimal.Decimal) (*Product, error) {
	if err := ValidatePrice(RoundPrice(price)); err != nil {
		return nil, err
	}
	price = RoundPrice(price)
	now := c.now()

	var updated *Product
	err := c.Store.WithTx(ctx, func(s Store) error {
		p, err := s.GetProduct(ctx, id)
		if err != nil {
			return err
		}
		if p == nil {
			return productNotFound(id)
		}
		if err := s.UpdatePrice(ctx, id, price, p.Version, now); err != nil {
			return err
		}
		p.Price = price
		p.Version++
		p.UpdatedAt = now
		updated = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (c *Catalog) now() time.Time {
	if c.Now == nil {
		return time.Now().UTC()
	}
	return c.Now().UTC()
}

func uniqueCategories(ids []CategoryID) []CategoryID {
	seen := make(map[CategoryID]bool, len(ids))
	out := make([]CategoryID, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

package api

import (
	"context"
	"fmt"

	"github.com/warp/inventory-engine/factory"
	"github.com/warp/inventory-engine/inventory"
)

// SeedDemo loads the demo catalog when the store has no products.
// It reports whether anything was loaded.
func (h *Handler) SeedDemo(ctx context.Context) (bool, error) {
	existing, err := h.Catalog.ListProducts(ctx, inventory.AllProducts())
	if err != nil {
		return false, err
	}
	if len(existing) > 0 {
		return false, nil
	}

	f := factory.NewCatalogFactory()
	def, err := f.ParseCatalog(factory.DemoCatalogJSON)
	if err != nil {
		return false, fmt.Errorf("demo catalog: %w", err)
	}

	loaded, err := f.Load(ctx, h.Catalog, def)
	if err != nil {
		return false, err
	}

	h.Logger.Info("demo catalog loaded",
		"categories", len(loaded.Categories),
		"products", len(loaded.Products),
	)
	return true, nil
}

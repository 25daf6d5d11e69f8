package factory

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/inventory-engine/inventory"
	"github.com/warp/inventory-engine/inventory/store"
)

func TestParseCatalog_Demo(t *testing.T) {
	f := NewCatalogFactory()

	def, err := f.ParseCatalog(DemoCatalogJSON)
	require.NoError(t, err)

	assert.Len(t, def.Categories, 4)
	assert.Len(t, def.Products, 11)
	assert.True(t, def.Products[1].Price.Equal(decimal.RequireFromString("1450.50")))
}

func TestParseCatalog_Rejects(t *testing.T) {
	f := NewCatalogFactory()

	tests := []struct {
		name string
		json string
	}{
		{"malformed", `{"categories":`},
		{"missing key", `{"categories":[{"name":"A"}]}`},
		{"duplicate key", `{"categories":[{"key":"a","name":"A"},{"key":"a","name":"B"}]}`},
		{"unknown key", `{"categories":[{"key":"a","name":"A"}],"products":[{"name":"P","price":1,"categories":["b"]}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.ParseCatalog(tt.json)
			assert.Error(t, err)
		})
	}
}

func TestLoad_ResolvesCategoryKeys(t *testing.T) {
	// GIVEN: An empty catalog
	ctx := context.Background()
	catalog := inventory.NewCatalog(store.NewTxMemory())
	f := NewCatalogFactory()

	def, err := f.ParseCatalog(`{
		"categories": [{"key": "a", "name": "Alpha"}, {"key": "b", "name": "Beta"}],
		"products": [{"name": "P", "price": 9.99, "stock": 4, "categories": ["b", "a"]}]
	}`)
	require.NoError(t, err)

	// WHEN: Loading it
	loaded, err := f.Load(ctx, catalog, def)
	require.NoError(t, err)

	// THEN: Products reference the store-assigned category IDs
	require.Len(t, loaded.Products, 1)
	p, err := catalog.GetProduct(ctx, loaded.Products[0])
	require.NoError(t, err)
	assert.Equal(t, []inventory.CategoryID{loaded.Categories["a"], loaded.Categories["b"]}, p.Categories)
	assert.Equal(t, int64(4), p.Stock)
	assert.True(t, p.Price.Equal(decimal.RequireFromString("9.99")))
}

func TestLoad_StopsOnDomainError(t *testing.T) {
	ctx := context.Background()
	catalog := inventory.NewCatalog(store.NewTxMemory())
	f := NewCatalogFactory()

	def, err := f.ParseCatalog(`{"products": [{"name": "ok", "price": 1}, {"name": "bad", "price": -1}]}`)
	require.NoError(t, err)

	loaded, err := f.Load(ctx, catalog, def)
	assert.ErrorIs(t, err, inventory.ErrValidation)
	assert.Len(t, loaded.Products, 1)
}

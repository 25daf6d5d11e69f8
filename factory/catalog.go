/*
Package factory provides JSON to catalog conversion.

PURPOSE:
  Converts JSON catalog definitions into category and product inputs and
  loads them through inventory.Catalog. Demo data and fixtures are kept as
  JSON so they can be edited without code changes.

JSON SCHEMA:
  {
    "categories": [
      {"key": "bebidas", "name": "Bebidas"}
    ],
    "products": [
      {"name": "Agua 500ml", "price": 100, "stock": 24, "categories": ["bebidas"]}
    ]
  }

  Product categories reference category keys, not IDs: IDs are assigned
  by the store on load.

KEY FEATURES:
  - Prices are decoded straight into decimal.Decimal
  - Unknown category keys and duplicate keys are rejected before anything is written
  - Load goes through the catalog, so every domain validation applies

USAGE:
  f := NewCatalogFactory()
  def, err := f.ParseCatalog(DemoCatalogJSON)
  loaded, err := f.Load(ctx, catalog, def)

SEE ALSO:
  - inventory/catalog.go: Catalog service
  - api/seed.go: Startup seeding
*/
package factory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/warp/inventory-engine/inventory"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// CatalogJSON is the JSON representation of a catalog.
type CatalogJSON struct {
	Categories []CategoryJSON `json:"categories"`
	Products   []ProductJSON  `json:"products"`
}

// CategoryJSON is one category. Key is local to the document.
type CategoryJSON struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

// ProductJSON is one product.
type ProductJSON struct {
	Name       string          `json:"name"`
	Price      decimal.Decimal `json:"price"`
	Stock      int64           `json:"stock,omitempty"`
	Categories []string        `json:"categories,omitempty"` // category keys
}

// =============================================================================
// CATALOG FACTORY
// =============================================================================

// CatalogFactory converts JSON catalogs into the inventory model.
type CatalogFactory struct{}

// NewCatalogFactory creates a new catalog factory.
func NewCatalogFactory() *CatalogFactory {
	return &CatalogFactory{}
}

// Loaded maps document keys to the IDs the store assigned.
type Loaded struct {
	Categories map[string]inventory.CategoryID
	Products   []inventory.ProductID
}

// ParseCatalog parses and checks a JSON catalog.
func (f *CatalogFactory) ParseCatalog(jsonStr string) (*CatalogJSON, error) {
	var cj CatalogJSON
	if err := json.Unmarshal([]byte(jsonStr), &cj); err != nil {
		return nil, fmt.Errorf("failed to parse catalog JSON: %w", err)
	}
	if err := f.check(cj); err != nil {
		return nil, err
	}
	return &cj, nil
}

func (f *CatalogFactory) check(cj CatalogJSON) error {
	keys := make(map[string]bool, len(cj.Categories))
	for _, c := range cj.Categories {
		key := strings.TrimSpace(c.Key)
		if key == "" {
			return fmt.Errorf("category %q: key is required", c.Name)
		}
		if keys[key] {
			return fmt.Errorf("category key %q is duplicated", key)
		}
		keys[key] = true
	}

	for _, p := range cj.Products {
		for _, key := range p.Categories {
			if !keys[strings.TrimSpace(key)] {
				return fmt.Errorf("product %q: unknown category key %q", p.Name, key)
			}
		}
	}
	return nil
}

// Load creates every category, then every product, in document order.
// It stops at the first error; what was created before it stays.
func (f *CatalogFactory) Load(ctx context.Context, catalog *inventory.Catalog, cj *CatalogJSON) (*Loaded, error) {
	loaded := &Loaded{Categories: make(map[string]inventory.CategoryID, len(cj.Categories))}

	for _, c := range cj.Categories {
		cat, err := catalog.CreateCategory(ctx, c.Name)
		if err != nil {
			return loaded, fmt.Errorf("create category %q: %w", c.Name, err)
		}
		loaded.Categories[strings.TrimSpace(c.Key)] = cat.ID
	}

	for _, p := range cj.Products {
		cats := make([]inventory.CategoryID, 0, len(p.Categories))
		for _, key := range p.Categories {
			cats = append(cats, loaded.Categories[strings.TrimSpace(key)])
		}

		prod, err := catalog.CreateProduct(ctx, inventory.NewProductInput{
			Name:         p.Name,
			Price:        p.Price,
			InitialStock: p.Stock,
			Categories:   cats,
		})
		if err != nil {
			return loaded, fmt.Errorf("create product %q: %w", p.Name, err)
		}
		loaded.Products = append(loaded.Products, prod.ID)
	}

	return loaded, nil
}

// =============================================================================
// DEMO CATALOG
// =============================================================================

// DemoCatalogJSON is a small kiosk catalog for local runs.
const DemoCatalogJSON = `{
  "categories": [
    {"key": "bebidas",   "name": "Bebidas"},
    {"key": "almacen",   "name": "Almacén"},
    {"key": "limpieza",  "name": "Limpieza"},
    {"key": "golosinas", "name": "Golosinas"}
  ],
  "products": [
    {"name": "Agua mineral 500ml",   "price": 100,     "stock": 48, "categories": ["bebidas"]},
    {"name": "Gaseosa cola 1.5L",    "price": 1450.50, "stock": 24, "categories": ["bebidas"]},
    {"name": "Jugo de naranja 1L",   "price": 980,     "stock": 12, "categories": ["bebidas"]},
    {"name": "Yerba mate 1kg",       "price": 3200,    "stock": 30, "categories": ["almacen"]},
    {"name": "Arroz largo fino 1kg", "price": 1150.75, "stock": 40, "categories": ["almacen"]},
    {"name": "Fideos tirabuzón",     "price": 890,     "stock": 36, "categories": ["almacen"]},
    {"name": "Lavandina 1L",         "price": 760,     "stock": 18, "categories": ["limpieza"]},
    {"name": "Detergente 750ml",     "price": 1320,    "stock": 15, "categories": ["limpieza"]},
    {"name": "Alfajor triple",       "price": 650,     "stock": 60, "categories": ["golosinas"]},
    {"name": "Chocolate con leche",  "price": 1200,    "stock": 25, "categories": ["golosinas", "almacen"]},
    {"name": "Caramelos surtidos",   "price": 0.25,    "stock": 500, "categories": ["golosinas"]}
  ]
}`

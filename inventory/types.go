/*
Package inventory provides the pricing and stock engine behind the point-of-sale catalog.

PURPOSE:
  This package owns the data the UI mutates: product prices and product stock.
  Bulk price adjustments are recorded as one immutable batch each, carrying a
  snapshot of every affected product's prior price so the batch can be reverted
  exactly once. Stock changes are recorded as an append-only ledger of signed
  deltas whose running sum is the product's current stock.

KEY CONCEPTS IN THIS FILE (types.go):
  - Product: catalog row with price, stock and a monotonic version counter
  - AdjustmentRule: percentage or fixed change, scoped to a category or all products
  - AdjustmentRecord: ledger entry for one bulk adjustment, with its price snapshot
  - StockEntry: one signed stock delta, never mutated or deleted

DESIGN PRINCIPLES:
  1. Precision: prices use decimal.Decimal, rounded half-to-even to 2 places
  2. Immutability: records are created once; the only permitted transition is
     AdjustmentRecord.Reverted false -> true
  3. Versioning: every price/stock write is conditional on Product.Version
  4. Type Safety: distinct ID types keep products, categories and records apart

SEE ALSO:
  - pricing.go: Price Mutation Engine
  - adjustment.go: Adjustment Orchestrator, Adjustment Ledger, Revert Engine
  - stock.go: Stock Ledger
  - store.go: Persistence interfaces
*/
package inventory

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ProductID int64
type CategoryID int64
type AdjustmentID int64
type StockEntryID int64

func (id ProductID) String() string    { return strconv.FormatInt(int64(id), 10) }
func (id CategoryID) String() string   { return strconv.FormatInt(int64(id), 10) }
func (id AdjustmentID) String() string { return strconv.FormatInt(int64(id), 10) }

// =============================================================================
// CATALOG
// =============================================================================

// PriceScale is the number of decimal places kept for prices (currency minor unit).
const PriceScale = 2

type Category struct {
	ID        CategoryID
	Name      string
	CreatedAt time.Time
}

// Product is owned by the catalog. Price is changed by bulk adjustments, reverts
// and manual edits; Stock only by the stock ledger.
type Product struct {
	ID         ProductID
	Name       string
	Price      decimal.Decimal
	Stock      int64
	Categories []CategoryID

	// Version increments on every price or stock write.
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// InCategory reports whether the product belongs to the category.
func (p Product) InCategory(id CategoryID) bool {
	for _, c := range p.Categories {
		if c == id {
			return true
		}
	}
	return false
}

// =============================================================================
// ADJUSTMENT RULE
// =============================================================================

type RuleKind string

const (
	RulePercentage RuleKind = "percentage" // p' = p * (1 + value/100)
	RuleFixed      RuleKind = "fixed"      // p' = p + value
)

func (k RuleKind) Valid() bool {
	return k == RulePercentage || k == RuleFixed
}

// Scope selects the products a rule targets. A nil CategoryID means all products.
type Scope struct {
	CategoryID *CategoryID
}

// AllProducts is the unscoped rule target.
func AllProducts() Scope { return Scope{} }

// InCategory scopes a rule to one category.
func InCategory(id CategoryID) Scope { return Scope{CategoryID: &id} }

func (s Scope) IsAll() bool { return s.CategoryID == nil }

func (s Scope) Matches(p Product) bool {
	return s.IsAll() || p.InCategory(*s.CategoryID)
}

// AdjustmentRule is immutable once submitted.
type AdjustmentRule struct {
	Kind  RuleKind
	Value decimal.Decimal
	Scope Scope
}

// =============================================================================
// ADJUSTMENT RECORD - Ledger entry for one bulk adjustment
// =============================================================================

// SnapshotEntry is one product's price immediately before (and after) a batch.
type SnapshotEntry struct {
	ProductID   ProductID
	PriceBefore decimal.Decimal
	PriceAfter  decimal.Decimal
}

// AdjustmentRecord is written once on apply. Snapshot is fixed at creation and
// is the sole source of truth for revert.
type AdjustmentRecord struct {
	ID        AdjustmentID
	Rule      AdjustmentRule
	Note      string
	CreatedBy string
	CreatedAt time.Time

	Reverted   bool
	RevertedAt *time.Time
	RevertedBy string

	// Snapshot is ordered by product ID. It may be empty on list reads;
	// ProductCount is always populated.
	Snapshot     []SnapshotEntry
	ProductCount int

	// CategoryName is resolved on read for display; empty for all-products scope.
	CategoryName string
}

// =============================================================================
// STOCK ENTRY - Append-only stock ledger
// =============================================================================

type StockEntry struct {
	ID          StockEntryID
	ProductID   ProductID
	Delta       int64
	StockBefore int64
	StockAfter  int64
	Reason      string
	CreatedBy   string
	CreatedAt   time.Time
}

// =============================================================================
// HELPERS
// =============================================================================

// RoundPrice rounds half-to-even to PriceScale places.
func RoundPrice(d decimal.Decimal) decimal.Decimal {
	return d.RoundBank(PriceScale)
}

/*
store.go - Persistence interface for the catalog and its ledgers

PURPOSE:
  Defines the interface between the engine and the database. Different
  implementations use SQLite, PostgreSQL, or in-memory storage.

KEY INTERFACES:
  Store:        Reads and versioned writes for products, ledgers, categories
  TxStore:      Store plus WithTx for atomic multi-row units of work
  HistoryCache: Optional read-through cache for adjustment history

APPEND-ONLY CONTRACT:
  - Stock entries: AppendStockEntry only. No update, no delete.
  - Adjustment records: CreateAdjustment once, then MarkReverted once.
    MarkReverted is a compare-and-set on the reverted flag.

VERSIONED WRITES:
  UpdatePrice and UpdateStock take the version the caller read. If the row
  moved on, they return a *ConflictError and write nothing. Inside WithTx
  the caller then aborts the whole unit.

LOOKUPS:
  Get* methods return (nil, nil) when the row does not exist. The engine
  turns that into a *NotFoundError with the right kind and ID.

IMPLEMENTATIONS:
  - store/sqlstore: SQLite and PostgreSQL
  - inventory/store/memory.go: In-memory for testing/dev
*/
package inventory

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// STORE
// =============================================================================

type Store interface {
	// Categories
	CreateCategory(ctx context.Context, c *Category) error
	GetCategory(ctx context.Context, id CategoryID) (*Category, error)
	ListCategories(ctx context.Context) ([]Category, error)

	// Products
	CreateProduct(ctx context.Context, p *Product) error
	GetProduct(ctx context.Context, id ProductID) (*Product, error)

	// ListProducts resolves a scope to its products, ordered by ID.
	ListProducts(ctx context.Context, scope Scope) ([]Product, error)

	// UpdatePrice writes price if the row is still at expectedVersion,
	// and bumps the version.
	UpdatePrice(ctx context.Context, id ProductID, price decimal.Decimal, expectedVersion int64, at time.Time) error

	// UpdateStock writes stock if the row is still at expectedVersion,
	// and bumps the version.
	UpdateStock(ctx context.Context, id ProductID, stock int64, expectedVersion int64, at time.Time) error

	// Adjustment ledger
	CreateAdjustment(ctx context.Context, rec *AdjustmentRecord) error
	GetAdjustment(ctx context.Context, id AdjustmentID) (*AdjustmentRecord, error)

	// ListAdjustments returns records newest first, without snapshots.
	ListAdjustments(ctx context.Context) ([]AdjustmentRecord, error)

	// MarkReverted flips reverted false -> true. Returns false if the record
	// was already reverted (the caller lost the race or retried).
	MarkReverted(ctx context.Context, id AdjustmentID, by string, at time.Time) (bool, error)

	// Stock ledger
	AppendStockEntry(ctx context.Context, e *StockEntry) error

	// ListStockEntries returns a product's entries newest first.
	ListStockEntries(ctx context.Context, productID ProductID) ([]StockEntry, error)
}

// =============================================================================
// TRANSACTIONAL STORE - For atomic operations across multiple writes
// =============================================================================

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// HISTORY CACHE
// =============================================================================

// HistoryCache caches the adjustment history list. Implementations must treat
// a miss as (nil, false, nil).
//
// The version is shared by every process using the cache. InvalidateHistory
// moves it, and SetHistory writes only while it still equals the version read
// before the list was loaded, so a fill that raced a write is dropped.
type HistoryCache interface {
	GetHistory(ctx context.Context) ([]AdjustmentRecord, bool, error)
	HistoryVersion(ctx context.Context) (int64, error)
	SetHistory(ctx context.Context, version int64, records []AdjustmentRecord) error
	InvalidateHistory(ctx context.Context) error
}

// Package store provides in-memory Store implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/inventory-engine/inventory"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu sync.RWMutex
	state
}

type state struct {
	categories  map[inventory.CategoryID]inventory.Category
	products    map[inventory.ProductID]inventory.Product
	adjustments map[inventory.AdjustmentID]inventory.AdjustmentRecord
	stock       map[inventory.ProductID][]inventory.StockEntry

	nextCategory   int64
	nextProduct    int64
	nextAdjustment int64
	nextStockEntry int64
}

func NewMemory() *Memory {
	return &Memory{state: newState()}
}

func newState() state {
	return state{
		categories:  make(map[inventory.CategoryID]inventory.Category),
		products:    make(map[inventory.ProductID]inventory.Product),
		adjustments: make(map[inventory.AdjustmentID]inventory.AdjustmentRecord),
		stock:       make(map[inventory.ProductID][]inventory.StockEntry),
	}
}

// --- Categories ---

func (m *Memory) CreateCategory(_ context.Context, c *inventory.Category) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createCategoryLocked(c)
	return nil
}

func (s *state) createCategoryLocked(c *inventory.Category) {
	s.nextCategory++
	c.ID = inventory.CategoryID(s.nextCategory)
	s.categories[c.ID] = *c
}

func (m *Memory) GetCategory(_ context.Context, id inventory.CategoryID) (*inventory.Category, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getCategoryLocked(id), nil
}

func (s *state) getCategoryLocked(id inventory.CategoryID) *inventory.Category {
	c, ok := s.categories[id]
	if !ok {
		return nil
	}
	return &c
}

func (m *Memory) ListCategories(_ context.Context) ([]inventory.Category, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listCategoriesLocked(), nil
}

func (s *state) listCategoriesLocked() []inventory.Category {
	result := make([]inventory.Category, 0, len(s.categories))
	for _, c := range s.categories {
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// --- Products ---

func (m *Memory) CreateProduct(_ context.Context, p *inventory.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createProductLocked(p)
	return nil
}

func (s *state) createProductLocked(p *inventory.Product) {
	s.nextProduct++
	p.ID = inventory.ProductID(s.nextProduct)
	p.Version = 1
	s.products[p.ID] = copyProduct(*p)
}

func (m *Memory) GetProduct(_ context.Context, id inventory.ProductID) (*inventory.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getProductLocked(id), nil
}

func (s *state) getProductLocked(id inventory.ProductID) *inventory.Product {
	p, ok := s.products[id]
	if !ok {
		return nil
	}
	p = copyProduct(p)
	return &p
}

func (m *Memory) ListProducts(_ context.Context, scope inventory.Scope) ([]inventory.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listProductsLocked(scope), nil
}

func (s *state) listProductsLocked(scope inventory.Scope) []inventory.Product {
	var result []inventory.Product
	for _, p := range s.products {
		if scope.Matches(p) {
			result = append(result, copyProduct(p))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

func (m *Memory) UpdatePrice(_ context.Context, id inventory.ProductID, price decimal.Decimal, expectedVersion int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updatePriceLocked(id, price, expectedVersion, at)
}

func (s *state) updatePriceLocked(id inventory.ProductID, price decimal.Decimal, expectedVersion int64, at time.Time) error {
	p, err := s.versionedLocked(id, expectedVersion)
	if err != nil {
		return err
	}
	p.Price = price
	p.Version++
	p.UpdatedAt = at
	s.products[id] = p
	return nil
}

func (m *Memory) UpdateStock(_ context.Context, id inventory.ProductID, stock int64, expectedVersion int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateStockLocked(id, stock, expectedVersion, at)
}

func (s *state) updateStockLocked(id inventory.ProductID, stock int64, expectedVersion int64, at time.Time) error {
	p, err := s.versionedLocked(id, expectedVersion)
	if err != nil {
		return err
	}
	p.Stock = stock
	p.Version++
	p.UpdatedAt = at
	s.products[id] = p
	return nil
}

func (s *state) versionedLocked(id inventory.ProductID, expectedVersion int64) (inventory.Product, error) {
	p, ok := s.products[id]
	if !ok {
		return p, &inventory.NotFoundError{Kind: "product", ID: id.String()}
	}
	if p.Version != expectedVersion {
		return p, &inventory.ConflictError{Kind: "product", ID: id.String()}
	}
	return p, nil
}

// --- Adjustment ledger ---

func (m *Memory) CreateAdjustment(_ context.Context, rec *inventory.AdjustmentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createAdjustmentLocked(rec)
	return nil
}

func (s *state) createAdjustmentLocked(rec *inventory.AdjustmentRecord) {
	s.nextAdjustment++
	rec.ID = inventory.AdjustmentID(s.nextAdjustment)
	rec.ProductCount = len(rec.Snapshot)
	stored := *rec
	stored.Snapshot = append([]inventory.SnapshotEntry(nil), rec.Snapshot...)
	s.adjustments[rec.ID] = stored
}

func (m *Memory) GetAdjustment(_ context.Context, id inventory.AdjustmentID) (*inventory.AdjustmentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getAdjustmentLocked(id), nil
}

func (s *state) getAdjustmentLocked(id inventory.AdjustmentID) *inventory.AdjustmentRecord {
	rec, ok := s.adjustments[id]
	if !ok {
		return nil
	}
	rec.Snapshot = append([]inventory.SnapshotEntry(nil), rec.Snapshot...)
	rec.CategoryName = s.categoryNameLocked(rec.Rule.Scope)
	return &rec
}

func (m *Memory) ListAdjustments(_ context.Context) ([]inventory.AdjustmentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listAdjustmentsLocked(), nil
}

func (s *state) listAdjustmentsLocked() []inventory.AdjustmentRecord {
	result := make([]inventory.AdjustmentRecord, 0, len(s.adjustments))
	for _, rec := range s.adjustments {
		rec.Snapshot = nil
		rec.CategoryName = s.categoryNameLocked(rec.Rule.Scope)
		result = append(result, rec)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})
	return result
}

func (m *Memory) MarkReverted(_ context.Context, id inventory.AdjustmentID, by string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.markRevertedLocked(id, by, at)
}

func (s *state) markRevertedLocked(id inventory.AdjustmentID, by string, at time.Time) (bool, error) {
	rec, ok := s.adjustments[id]
	if !ok {
		return false, &inventory.NotFoundError{Kind: "adjustment", ID: id.String()}
	}
	if rec.Reverted {
		return false, nil
	}
	rec.Reverted = true
	rec.RevertedAt = &at
	rec.RevertedBy = by
	s.adjustments[id] = rec
	return true, nil
}

func (s *state) categoryNameLocked(scope inventory.Scope) string {
	if scope.IsAll() {
		return ""
	}
	return s.categories[*scope.CategoryID].Name
}

// --- Stock ledger ---

func (m *Memory) AppendStockEntry(_ context.Context, e *inventory.StockEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendStockEntryLocked(e)
}

func (s *state) appendStockEntryLocked(e *inventory.StockEntry) error {
	if _, ok := s.products[e.ProductID]; !ok {
		return &inventory.NotFoundError{Kind: "product", ID: e.ProductID.String()}
	}
	s.nextStockEntry++
	e.ID = inventory.StockEntryID(s.nextStockEntry)
	s.stock[e.ProductID] = append(s.stock[e.ProductID], *e)
	return nil
}

func (m *Memory) ListStockEntries(_ context.Context, productID inventory.ProductID) ([]inventory.StockEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listStockEntriesLocked(productID), nil
}

func (s *state) listStockEntriesLocked(productID inventory.ProductID) []inventory.StockEntry {
	entries := s.stock[productID]
	result := make([]inventory.StockEntry, len(entries))
	// Entries are appended in commit order; newest first is the reverse.
	for i, e := range entries {
		result[len(entries)-1-i] = e
	}
	return result
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
// The write lock is held for the whole unit, so units are serialized.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(inventory.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.snapshot()

	if err := fn(&txMemoryView{s: &tm.state}); err != nil {
		tm.state = snapshot
		return err
	}
	return nil
}

func (tm *TxMemory) snapshot() state {
	c := newState()
	for k, v := range tm.categories {
		c.categories[k] = v
	}
	for k, v := range tm.products {
		c.products[k] = v
	}
	for k, v := range tm.adjustments {
		c.adjustments[k] = v
	}
	for k, v := range tm.stock {
		c.stock[k] = append([]inventory.StockEntry{}, v...)
	}
	c.nextCategory = tm.nextCategory
	c.nextProduct = tm.nextProduct
	c.nextAdjustment = tm.nextAdjustment
	c.nextStockEntry = tm.nextStockEntry
	return c
}

// txMemoryView runs against the locked state without re-acquiring the lock.
type txMemoryView struct {
	s *state
}

func (tv *txMemoryView) CreateCategory(_ context.Context, c *inventory.Category) error {
	tv.s.createCategoryLocked(c)
	return nil
}

func (tv *txMemoryView) GetCategory(_ context.Context, id inventory.CategoryID) (*inventory.Category, error) {
	return tv.s.getCategoryLocked(id), nil
}

func (tv *txMemoryView) ListCategories(_ context.Context) ([]inventory.Category, error) {
	return tv.s.listCategoriesLocked(), nil
}

func (tv *txMemoryView) CreateProduct(_ context.Context, p *inventory.Product) error {
	tv.s.createProductLocked(p)
	return nil
}

func (tv *txMemoryView) GetProduct(_ context.Context, id inventory.ProductID) (*inventory.Product, error) {
	return tv.s.getProductLocked(id), nil
}

func (tv *txMemoryView) ListProducts(_ context.Context, scope inventory.Scope) ([]inventory.Product, error) {
	return tv.s.listProductsLocked(scope), nil
}

func (tv *txMemoryView) UpdatePrice(_ context.Context, id inventory.ProductID, price decimal.Decimal, expectedVersion int64, at time.Time) error {
	return tv.s.updatePriceLocked(id, price, expectedVersion, at)
}

func (tv *txMemoryView) UpdateStock(_ context.Context, id inventory.ProductID, stock int64, expectedVersion int64, at time.Time) error {
	return tv.s.updateStockLocked(id, stock, expectedVersion, at)
}

func (tv *txMemoryView) CreateAdjustment(_ context.Context, rec *inventory.AdjustmentRecord) error {
	tv.s.createAdjustmentLocked(rec)
	return nil
}

func (tv *txMemoryView) GetAdjustment(_ context.Context, id inventory.AdjustmentID) (*inventory.AdjustmentRecord, error) {
	return tv.s.getAdjustmentLocked(id), nil
}

func (tv *txMemoryView) ListAdjustments(_ context.Context) ([]inventory.AdjustmentRecord, error) {
	return tv.s.listAdjustmentsLocked(), nil
}

func (tv *txMemoryView) MarkReverted(_ context.Context, id inventory.AdjustmentID, by string, at time.Time) (bool, error) {
	return tv.s.markRevertedLocked(id, by, at)
}

func (tv *txMemoryView) AppendStockEntry(_ context.Context, e *inventory.StockEntry) error {
	return tv.s.appendStockEntryLocked(e)
}

func (tv *txMemoryView) ListStockEntries(_ context.Context, productID inventory.ProductID) ([]inventory.StockEntry, error) {
	return tv.s.listStockEntriesLocked(productID), nil
}

func copyProduct(p inventory.Product) inventory.Product {
	p.Categories = append([]inventory.CategoryID(nil), p.Categories...)
	return p
}

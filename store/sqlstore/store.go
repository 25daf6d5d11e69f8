/*
Package sqlstore provides a SQL-backed implementation of inventory.TxStore.

PURPOSE:
  Implements the inventory persistence interface on SQLite (local/dev) and
  PostgreSQL (production). Queries are built once with squirrel and run
  against either the pool or an open transaction, so the same code serves
  both the plain Store methods and the WithTx view.

KEY TABLES:
  categories:             Category catalog
  products:               Price, stock and version counter per product
  product_categories:     Product <-> category membership
  price_adjustments:      One row per bulk adjustment (the ledger)
  price_adjustment_items: Snapshot rows (price before/after) per adjustment
  stock_movements:        Append-only stock ledger

IMMUTABILITY:
  price_adjustments rows are never deleted; the only UPDATE is the
  reverted false -> true compare-and-set in MarkReverted. Snapshot items
  and stock movements are insert-only.

CONCURRENCY:
  Units of work in one process are serialized by a store-wide mutex.
  Across processes, every price/stock write is conditional on the row
  version, and PostgreSQL additionally locks the scoped product rows
  (SELECT ... FOR UPDATE) inside WithTx.

MIGRATION:
  Schema is applied with goose from embedded, per-dialect migrations
  on Open. See migrate.go.

SEE ALSO:
  - inventory/store.go: Interface definitions
  - inventory/store/memory.go: In-memory implementation for testing
*/
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/shopspring/decimal"
	"github.com/warp/inventory-engine/inventory"
)

// Store implements inventory.TxStore on database/sql.
type Store struct {
	db      *sql.DB
	dialect dialect
	mu      sync.RWMutex
}

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries holds every statement. It runs on the pool for plain reads and
// on a *sql.Tx inside WithTx, where it is handed out as the inventory.Store.
type queries struct {
	db dbtx
	sb sq.StatementBuilderType

	// lockRows adds the dialect's row-lock suffix to product reads.
	lockRows string
}

func newStore(db *sql.DB, d dialect) *Store {
	return &Store{db: db, dialect: d}
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the pool for health checks.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) q() *queries {
	return &queries{db: s.db, sb: sq.StatementBuilder.PlaceholderFormat(s.dialect.placeholder)}
}

// =============================================================================
// TRANSACTIONAL STORE (inventory.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(inventory.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	view := &queries{
		db:       sqlTx,
		sb:       sq.StatementBuilder.PlaceholderFormat(s.dialect.placeholder),
		lockRows: s.dialect.lockSuffix,
	}
	if err := fn(view); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// --- Locked wrappers: plain Store calls outside a unit of work ---

func (s *Store) CreateCategory(ctx context.Context, c *inventory.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q().CreateCategory(ctx, c)
}

func (s *Store) GetCategory(ctx context.Context, id inventory.CategoryID) (*inventory.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q().GetCategory(ctx, id)
}

func (s *Store) ListCategories(ctx context.Context) ([]inventory.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q().ListCategories(ctx)
}

func (s *Store) CreateProduct(ctx context.Context, p *inventory.Product) error {
	return s.WithTx(ctx, func(st inventory.Store) error {
		return st.CreateProduct(ctx, p)
	})
}

func (s *Store) GetProduct(ctx context.Context, id inventory.ProductID) (*inventory.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q().GetProduct(ctx, id)
}

func (s *Store) ListProducts(ctx context.Context, scope inventory.Scope) ([]inventory.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q().ListProducts(ctx, scope)
}

func (s *Store) UpdatePrice(ctx context.Context, id inventory.ProductID, price decimal.Decimal, expectedVersion int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q().UpdatePrice(ctx, id, price, expectedVersion, at)
}

func (s *Store) UpdateStock(ctx context.Context, id inventory.ProductID, stock int64, expectedVersion int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q().UpdateStock(ctx, id, stock, expectedVersion, at)
}

func (s *Store) CreateAdjustment(ctx context.Context, rec *inventory.AdjustmentRecord) error {
	return s.WithTx(ctx, func(st inventory.Store) error {
		return st.CreateAdjustment(ctx, rec)
	})
}

func (s *Store) GetAdjustment(ctx context.Context, id inventory.AdjustmentID) (*inventory.AdjustmentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q().GetAdjustment(ctx, id)
}

func (s *Store) ListAdjustments(ctx context.Context) ([]inventory.AdjustmentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q().ListAdjustments(ctx)
}

func (s *Store) MarkReverted(ctx context.Context, id inventory.AdjustmentID, by string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q().MarkReverted(ctx, id, by, at)
}

func (s *Store) AppendStockEntry(ctx context.Context, e *inventory.StockEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q().AppendStockEntry(ctx, e)
}

func (s *Store) ListStockEntries(ctx context.Context, productID inventory.ProductID) ([]inventory.StockEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q().ListStockEntries(ctx, productID)
}

// =============================================================================
// CATEGORIES
// =============================================================================

func (q *queries) CreateCategory(ctx context.Context, c *inventory.Category) error {
	query := q.sb.Insert("categories").
		Columns("name", "created_at").
		Values(c.Name, c.CreatedAt.UTC()).
		Suffix("RETURNING id")

	var id int64
	if err := q.insertReturning(ctx, query, &id); err != nil {
		return fmt.Errorf("failed to create category: %w", err)
	}
	c.ID = inventory.CategoryID(id)
	return nil
}

func (q *queries) GetCategory(ctx context.Context, id inventory.CategoryID) (*inventory.Category, error) {
	query := q.sb.Select("id", "name", "created_at").
		From("categories").
		Where(sq.Eq{"id": int64(id)})

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	var c inventory.Category
	err = q.db.QueryRowContext(ctx, sqlStr, args...).Scan(&c.ID, &c.Name, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get category: %w", err)
	}
	c.CreatedAt = c.CreatedAt.UTC()
	return &c, nil
}

func (q *queries) ListCategories(ctx context.Context) ([]inventory.Category, error) {
	query := q.sb.Select("id", "name", "created_at").
		From("categories").
		OrderBy("name ASC", "id ASC")

	rows, err := q.query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	result := []inventory.Category{}
	for rows.Next() {
		var c inventory.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.CreatedAt = c.CreatedAt.UTC()
		result = append(result, c)
	}
	return result, rows.Err()
}

// =============================================================================
// PRODUCTS
// =============================================================================

var productColumns = []string{
	"p.id", "p.name", "p.price", "p.stock", "p.version", "p.created_at", "p.updated_at",
}

func (q *queries) CreateProduct(ctx context.Context, p *inventory.Product) error {
	query := q.sb.Insert("products").
		Columns("name", "price", "stock", "version", "created_at", "updated_at").
		Values(p.Name, p.Price, p.Stock, 1, p.CreatedAt.UTC(), p.UpdatedAt.UTC()).
		Suffix("RETURNING id")

	var id int64
	if err := q.insertReturning(ctx, query, &id); err != nil {
		return fmt.Errorf("failed to create product: %w", err)
	}
	p.ID = inventory.ProductID(id)
	p.Version = 1

	if len(p.Categories) == 0 {
		return nil
	}
	link := q.sb.Insert("product_categories").Columns("product_id", "category_id")
	for _, cid := range p.Categories {
		link = link.Values(id, int64(cid))
	}
	if _, err := q.exec(ctx, link); err != nil {
		return fmt.Errorf("failed to link product categories: %w", err)
	}
	return nil
}

func (q *queries) GetProduct(ctx context.Context, id inventory.ProductID) (*inventory.Product, error) {
	query := q.sb.Select(productColumns...).
		From("products p").
		Where(sq.Eq{"p.id": int64(id)})
	if q.lockRows != "" {
		query = query.Suffix(q.lockRows)
	}

	products, err := q.selectProducts(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	if len(products) == 0 {
		return nil, nil
	}
	return &products[0], nil
}

func (q *queries) ListProducts(ctx context.Context, scope inventory.Scope) ([]inventory.Product, error) {
	query := q.sb.Select(productColumns...).
		From("products p").
		OrderBy("p.id ASC")
	if !scope.IsAll() {
		query = query.
			Join("product_categories pc ON pc.product_id = p.id").
			Where(sq.Eq{"pc.category_id": int64(*scope.CategoryID)})
	}
	if q.lockRows != "" {
		query = query.Suffix(q.lockRows)
	}

	products, err := q.selectProducts(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	return products, nil
}

// selectProducts scans products, then attaches category memberships in a
// second query once the first result set is closed.
func (q *queries) selectProducts(ctx context.Context, query sq.SelectBuilder) ([]inventory.Product, error) {
	rows, err := q.query(ctx, query)
	if err != nil {
		return nil, err
	}

	products := []inventory.Product{}
	for rows.Next() {
		var p inventory.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.Stock, &p.Version, &p.CreatedAt, &p.UpdatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		p.CreatedAt = p.CreatedAt.UTC()
		p.UpdatedAt = p.UpdatedAt.UTC()
		products = append(products, p)
	}
	err = rows.Err()
	rows.Close()
	if err != nil || len(products) == 0 {
		return products, err
	}

	ids := make([]int64, len(products))
	index := make(map[inventory.ProductID]int, len(products))
	for i, p := range products {
		ids[i] = int64(p.ID)
		index[p.ID] = i
	}

	links, err := q.query(ctx, q.sb.Select("product_id", "category_id").
		From("product_categories").
		Where(sq.Eq{"product_id": ids}).
		OrderBy("product_id ASC", "category_id ASC"))
	if err != nil {
		return nil, err
	}
	defer links.Close()

	for links.Next() {
		var pid inventory.ProductID
		var cid inventory.CategoryID
		if err := links.Scan(&pid, &cid); err != nil {
			return nil, err
		}
		i := index[pid]
		products[i].Categories = append(products[i].Categories, cid)
	}
	return products, links.Err()
}

func (q *queries) UpdatePrice(ctx context.Context, id inventory.ProductID, price decimal.Decimal, expectedVersion int64, at time.Time) error {
	return q.updateVersioned(ctx, id, expectedVersion, "price", price, at)
}

func (q *queries) UpdateStock(ctx context.Context, id inventory.ProductID, stock int64, expectedVersion int64, at time.Time) error {
	return q.updateVersioned(ctx, id, expectedVersion, "stock", stock, at)
}

// updateVersioned writes column only if the row is still at expectedVersion.
func (q *queries) updateVersioned(ctx context.Context, id inventory.ProductID, expectedVersion int64, column string, value any, at time.Time) error {
	query := q.sb.Update("products").
		Set(column, value).
		Set("version", sq.Expr("version + 1")).
		Set("updated_at", at.UTC()).
		Where(sq.Eq{"id": int64(id), "version": expectedVersion})

	res, err := q.exec(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to update product: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &inventory.ConflictError{Kind: "product", ID: id.String()}
	}
	return nil
}

// =============================================================================
// ADJUSTMENT LEDGER
// =============================================================================

var adjustmentColumns = []string{
	"a.id", "a.kind", "a.value", "a.category_id", "a.note", "a.created_by", "a.created_at",
	"a.reverted", "a.reverted_at", "a.reverted_by", "a.product_count", "COALESCE(c.name, '')",
}

func (q *queries) CreateAdjustment(ctx context.Context, rec *inventory.AdjustmentRecord) error {
	var categoryID sql.NullInt64
	if cid := rec.Rule.Scope.CategoryID; cid != nil {
		categoryID = sql.NullInt64{Int64: int64(*cid), Valid: true}
	}

	query := q.sb.Insert("price_adjustments").
		Columns("kind", "value", "category_id", "note", "created_by", "created_at",
			"reverted", "reverted_by", "product_count").
		Values(string(rec.Rule.Kind), rec.Rule.Value, categoryID, rec.Note, rec.CreatedBy,
			rec.CreatedAt.UTC(), false, "", len(rec.Snapshot)).
		Suffix("RETURNING id")

	var id int64
	if err := q.insertReturning(ctx, query, &id); err != nil {
		return fmt.Errorf("failed to create adjustment: %w", err)
	}
	rec.ID = inventory.AdjustmentID(id)
	rec.ProductCount = len(rec.Snapshot)

	if len(rec.Snapshot) == 0 {
		return nil
	}
	items := q.sb.Insert("price_adjustment_items").
		Columns("adjustment_id", "position", "product_id", "price_before", "price_after")
	for i, e := range rec.Snapshot {
		items = items.Values(id, i, int64(e.ProductID), e.PriceBefore, e.PriceAfter)
	}
	if _, err := q.exec(ctx, items); err != nil {
		return fmt.Errorf("failed to write adjustment snapshot: %w", err)
	}
	return nil
}

func (q *queries) GetAdjustment(ctx context.Context, id inventory.AdjustmentID) (*inventory.AdjustmentRecord, error) {
	query := q.sb.Select(adjustmentColumns...).
		From("price_adjustments a").
		LeftJoin("categories c ON c.id = a.category_id").
		Where(sq.Eq{"a.id": int64(id)})

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}
	rec, err := scanAdjustment(q.db.QueryRowContext(ctx, sqlStr, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get adjustment: %w", err)
	}

	rows, err := q.query(ctx, q.sb.Select("product_id", "price_before", "price_after").
		From("price_adjustment_items").
		Where(sq.Eq{"adjustment_id": int64(id)}).
		OrderBy("position ASC"))
	if err != nil {
		return nil, fmt.Errorf("failed to load adjustment snapshot: %w", err)
	}
	defer rows.Close()

	rec.Snapshot = []inventory.SnapshotEntry{}
	for rows.Next() {
		var e inventory.SnapshotEntry
		if err := rows.Scan(&e.ProductID, &e.PriceBefore, &e.PriceAfter); err != nil {
			return nil, err
		}
		rec.Snapshot = append(rec.Snapshot, e)
	}
	return rec, rows.Err()
}

func (q *queries) ListAdjustments(ctx context.Context) ([]inventory.AdjustmentRecord, error) {
	query := q.sb.Select(adjustmentColumns...).
		From("price_adjustments a").
		LeftJoin("categories c ON c.id = a.category_id").
		OrderBy("a.created_at DESC", "a.id DESC")

	rows, err := q.query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list adjustments: %w", err)
	}
	defer rows.Close()

	result := []inventory.AdjustmentRecord{}
	for rows.Next() {
		rec, err := scanAdjustment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *rec)
	}
	return result, rows.Err()
}

// MarkReverted flips reverted false -> true. It reports false, without error,
// when the record exists but was already reverted.
func (q *queries) MarkReverted(ctx context.Context, id inventory.AdjustmentID, by string, at time.Time) (bool, error) {
	query := q.sb.Update("price_adjustments").
		Set("reverted", true).
		Set("reverted_at", at.UTC()).
		Set("reverted_by", by).
		Where(sq.Eq{"id": int64(id), "reverted": false})

	res, err := q.exec(ctx, query)
	if err != nil {
		return false, fmt.Errorf("failed to mark adjustment reverted: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 1 {
		return true, nil
	}

	existing, err := q.GetAdjustment(ctx, id)
	if err != nil {
		return false, err
	}
	if existing == nil {
		return false, &inventory.NotFoundError{Kind: "adjustment", ID: id.String()}
	}
	return false, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAdjustment(row rowScanner) (*inventory.AdjustmentRecord, error) {
	var (
		rec        inventory.AdjustmentRecord
		kind       string
		categoryID sql.NullInt64
		revertedAt sql.NullTime
	)
	err := row.Scan(&rec.ID, &kind, &rec.Rule.Value, &categoryID, &rec.Note, &rec.CreatedBy,
		&rec.CreatedAt, &rec.Reverted, &revertedAt, &rec.RevertedBy, &rec.ProductCount, &rec.CategoryName)
	if err != nil {
		return nil, err
	}

	rec.Rule.Kind = inventory.RuleKind(kind)
	if categoryID.Valid {
		rec.Rule.Scope = inventory.InCategory(inventory.CategoryID(categoryID.Int64))
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	if revertedAt.Valid {
		t := revertedAt.Time.UTC()
		rec.RevertedAt = &t
	}
	return &rec, nil
}

// =============================================================================
// STOCK LEDGER
// =============================================================================

func (q *queries) AppendStockEntry(ctx context.Context, e *inventory.StockEntry) error {
	query := q.sb.Insert("stock_movements").
		Columns("product_id", "delta", "stock_before", "stock_after", "reason", "created_by", "created_at").
		Values(int64(e.ProductID), e.Delta, e.StockBefore, e.StockAfter, e.Reason, e.CreatedBy, e.CreatedAt.UTC()).
		Suffix("RETURNING id")

	var id int64
	if err := q.insertReturning(ctx, query, &id); err != nil {
		if isForeignKeyError(err) {
			return &inventory.NotFoundError{Kind: "product", ID: e.ProductID.String()}
		}
		return fmt.Errorf("failed to append stock entry: %w", err)
	}
	e.ID = inventory.StockEntryID(id)
	return nil
}

func (q *queries) ListStockEntries(ctx context.Context, productID inventory.ProductID) ([]inventory.StockEntry, error) {
	query := q.sb.Select("id", "product_id", "delta", "stock_before", "stock_after", "reason", "created_by", "created_at").
		From("stock_movements").
		Where(sq.Eq{"product_id": int64(productID)}).
		OrderBy("id DESC")

	rows, err := q.query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list stock entries: %w", err)
	}
	defer rows.Close()

	result := []inventory.StockEntry{}
	for rows.Next() {
		var e inventory.StockEntry
		if err := rows.Scan(&e.ID, &e.ProductID, &e.Delta, &e.StockBefore, &e.StockAfter,
			&e.Reason, &e.CreatedBy, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.CreatedAt = e.CreatedAt.UTC()
		result = append(result, e)
	}
	return result, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func (q *queries) query(ctx context.Context, b sq.SelectBuilder) (*sql.Rows, error) {
	sqlStr, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	return q.db.QueryContext(ctx, sqlStr, args...)
}

func (q *queries) exec(ctx context.Context, b sq.Sqlizer) (sql.Result, error) {
	sqlStr, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	return q.db.ExecContext(ctx, sqlStr, args...)
}

func (q *queries) insertReturning(ctx context.Context, b sq.InsertBuilder, dest any) error {
	sqlStr, args, err := b.ToSql()
	if err != nil {
		return err
	}
	return q.db.QueryRowContext(ctx, sqlStr, args...).Scan(dest)
}

/*
adjustment_test.go - Bulk adjustment apply/revert behavior

Tests for:
- Snapshot-based revert across overlapping batches
- Revert-at-most-once and missing records
- Scope resolution (unknown category, empty scope)
- All-or-nothing batches on mid-batch failure
- Concurrent applies and history cache invalidation
*/
package inventory_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/inventory-engine/inventory"
	"github.com/warp/inventory-engine/inventory/store"
	"golang.org/x/sync/errgroup"
)

type fixture struct {
	store    *store.TxMemory
	catalog  *inventory.Catalog
	adjuster *inventory.Adjuster
	stock    *inventory.StockLedger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := store.NewTxMemory()
	return &fixture{
		store:    s,
		catalog:  inventory.NewCatalog(s),
		adjuster: inventory.NewAdjuster(s),
		stock:    inventory.NewStockLedger(s),
	}
}

func (f *fixture) category(t *testing.T, name string) inventory.CategoryID {
	t.Helper()
	c, err := f.catalog.CreateCategory(context.Background(), name)
	require.NoError(t, err)
	return c.ID
}

func (f *fixture) product(t *testing.T, name, price string, cats ...inventory.CategoryID) inventory.ProductID {
	t.Helper()
	p, err := f.catalog.CreateProduct(context.Background(), inventory.NewProductInput{
		Name:       name,
		Price:      dec(price),
		Categories: cats,
	})
	require.NoError(t, err)
	return p.ID
}

func (f *fixture) price(t *testing.T, id inventory.ProductID) decimal.Decimal {
	t.Helper()
	p, err := f.catalog.GetProduct(context.Background(), id)
	require.NoError(t, err)
	return p.Price
}

func pctIn(v string, cat inventory.CategoryID) inventory.ApplyInput {
	return inventory.ApplyInput{Rule: inventory.AdjustmentRule{
		Kind: inventory.RulePercentage, Value: dec(v), Scope: inventory.InCategory(cat),
	}, Actor: "user-1"}
}

func fixedAll(v string) inventory.ApplyInput {
	return inventory.ApplyInput{Rule: inventory.AdjustmentRule{
		Kind: inventory.RuleFixed, Value: dec(v), Scope: inventory.AllProducts(),
	}, Actor: "user-1"}
}

func TestApply_ScopedPercentage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// GIVEN: X in C, Y outside C
	c := f.category(t, "C")
	x := f.product(t, "X", "100.00", c)
	y := f.product(t, "Y", "50.00")

	// WHEN: +20% on C
	in := pctIn("20", c)
	in.Note = "  inflación marzo "
	rec, err := f.adjuster.Apply(ctx, in)
	require.NoError(t, err)

	// THEN: Only X moves; the record carries X's prior price
	assert.True(t, f.price(t, x).Equal(dec("120.00")))
	assert.True(t, f.price(t, y).Equal(dec("50.00")))

	assert.NotZero(t, rec.ID)
	assert.Equal(t, 1, rec.ProductCount)
	assert.Equal(t, "inflación marzo", rec.Note)
	assert.Equal(t, "C", rec.CategoryName)
	assert.Equal(t, "user-1", rec.CreatedBy)
	assert.False(t, rec.Reverted)
	require.Len(t, rec.Snapshot, 1)
	assert.Equal(t, x, rec.Snapshot[0].ProductID)
	assert.True(t, rec.Snapshot[0].PriceBefore.Equal(dec("100")))
	assert.True(t, rec.Snapshot[0].PriceAfter.Equal(dec("120")))
}

func TestRevert_UsesSnapshotNotInverse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// GIVEN: X = 100 in C
	c := f.category(t, "C")
	x := f.product(t, "X", "100.00", c)

	// WHEN: +20% on C, then -50 fixed on all, then revert the first batch
	first, err := f.adjuster.Apply(ctx, pctIn("20", c))
	require.NoError(t, err)
	assert.True(t, f.price(t, x).Equal(dec("120.00")))

	_, err = f.adjuster.Apply(ctx, fixedAll("-50"))
	require.NoError(t, err)
	assert.True(t, f.price(t, x).Equal(dec("70.00")))

	reverted, err := f.adjuster.Revert(ctx, first.ID, "user-2")
	require.NoError(t, err)

	// THEN: X is back at its snapshot price, not 70 / 1.2
	assert.True(t, f.price(t, x).Equal(dec("100.00")))
	assert.True(t, reverted.Reverted)
	assert.Equal(t, "user-2", reverted.RevertedBy)
	require.NotNil(t, reverted.RevertedAt)

	stored, err := f.adjuster.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, stored.Reverted)
}

func TestRevert_OverwritesManualEdit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	x := f.product(t, "X", "10.00")
	rec, err := f.adjuster.Apply(ctx, fixedAll("5"))
	require.NoError(t, err)

	// GIVEN: A manual edit after the batch
	_, err = f.catalog.SetPrice(ctx, x, dec("99.99"))
	require.NoError(t, err)

	// WHEN: Reverting the batch
	_, err = f.adjuster.Revert(ctx, rec.ID, "user-1")
	require.NoError(t, err)

	// THEN: Last revert wins
	assert.True(t, f.price(t, x).Equal(dec("10.00")))
}

func TestRevert_AtMostOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	x := f.product(t, "X", "100.00")
	rec, err := f.adjuster.Apply(ctx, fixedAll("10"))
	require.NoError(t, err)

	_, err = f.adjuster.Revert(ctx, rec.ID, "user-1")
	require.NoError(t, err)

	// Someone edits the price; a second revert must not touch it.
	_, err = f.catalog.SetPrice(ctx, x, dec("150"))
	require.NoError(t, err)

	_, err = f.adjuster.Revert(ctx, rec.ID, "user-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, inventory.ErrAlreadyReverted))
	assert.True(t, inventory.IsClientError(err))

	var are *inventory.AlreadyRevertedError
	require.True(t, errors.As(err, &are))
	assert.Equal(t, rec.ID, are.ID)
	assert.NotNil(t, are.RevertedAt)

	assert.True(t, f.price(t, x).Equal(dec("150")))
}

func TestRevert_ConcurrentOnlyOneWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.product(t, "X", "100.00")
	rec, err := f.adjuster.Apply(ctx, fixedAll("10"))
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		already   int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.adjuster.Revert(ctx, rec.ID, "user-1")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, inventory.ErrAlreadyReverted):
				already++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 9, already)
}

func TestRevert_NotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.adjuster.Revert(context.Background(), 42, "user-1")
	assert.True(t, inventory.IsNotFound(err))

	_, err = f.adjuster.Get(context.Background(), 42)
	assert.True(t, inventory.IsNotFound(err))
}

func TestApply_UnknownCategory(t *testing.T) {
	f := newFixture(t)
	f.product(t, "X", "100.00")

	_, err := f.adjuster.Apply(context.Background(), pctIn("10", 77))

	var nf *inventory.NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "category", nf.Kind)
	assert.Equal(t, "77", nf.ID)
}

func TestApply_EmptyScopeCreatesNoRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// GIVEN: A category with no products
	empty := f.category(t, "Vacía")
	f.product(t, "X", "100.00")

	// WHEN: Applying to it
	_, err := f.adjuster.Apply(ctx, pctIn("10", empty))

	// THEN: Rejected, ledger untouched
	assert.True(t, errors.Is(err, inventory.ErrValidation))
	history, err := f.adjuster.History(ctx)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestApply_InvalidRule(t *testing.T) {
	f := newFixture(t)
	f.product(t, "X", "100.00")

	_, err := f.adjuster.Apply(context.Background(), inventory.ApplyInput{
		Rule: inventory.AdjustmentRule{Kind: "double", Value: dec("2")},
	})
	assert.True(t, errors.Is(err, inventory.ErrValidation))
}

// failingStore makes UpdatePrice fail for one product inside units of work.
type failingStore struct {
	*store.TxMemory
	failOn inventory.ProductID
}

type failingView struct {
	inventory.Store
	failOn inventory.ProductID
}

func (v failingView) UpdatePrice(ctx context.Context, id inventory.ProductID, price decimal.Decimal, version int64, at time.Time) error {
	if id == v.failOn {
		return &inventory.ConflictError{Kind: "product", ID: id.String()}
	}
	return v.Store.UpdatePrice(ctx, id, price, version, at)
}

func (s *failingStore) WithTx(ctx context.Context, fn func(inventory.Store) error) error {
	return s.TxMemory.WithTx(ctx, func(tx inventory.Store) error {
		return fn(failingView{Store: tx, failOn: s.failOn})
	})
}

func TestApply_AllOrNothing(t *testing.T) {
	mem := store.NewTxMemory()
	catalog := inventory.NewCatalog(mem)
	ctx := context.Background()

	var ids []inventory.ProductID
	for _, name := range []string{"A", "B", "C"} {
		p, err := catalog.CreateProduct(ctx, inventory.NewProductInput{Name: name, Price: dec("10.00")})
		require.NoError(t, err)
		ids = append(ids, p.ID)
	}

	// GIVEN: The second product's write fails mid-batch
	adjuster := inventory.NewAdjuster(&failingStore{TxMemory: mem, failOn: ids[1]})

	// WHEN: Applying to all
	_, err := adjuster.Apply(ctx, fixedAll("1"))

	// THEN: The error surfaces and no price or record changed
	require.Error(t, err)
	assert.True(t, inventory.IsRetryable(err))
	for _, id := range ids {
		p, err := catalog.GetProduct(ctx, id)
		require.NoError(t, err)
		assert.True(t, p.Price.Equal(dec("10.00")), "product %d", id)
		assert.Equal(t, int64(1), p.Version)
	}
	history, err := mem.ListAdjustments(ctx)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestRevert_AllOrNothing(t *testing.T) {
	mem := store.NewTxMemory()
	catalog := inventory.NewCatalog(mem)
	ctx := context.Background()

	a, err := catalog.CreateProduct(ctx, inventory.NewProductInput{Name: "A", Price: dec("10.00")})
	require.NoError(t, err)
	b, err := catalog.CreateProduct(ctx, inventory.NewProductInput{Name: "B", Price: dec("20.00")})
	require.NoError(t, err)

	rec, err := inventory.NewAdjuster(mem).Apply(ctx, fixedAll("5"))
	require.NoError(t, err)

	_, err = inventory.NewAdjuster(&failingStore{TxMemory: mem, failOn: b.ID}).Revert(ctx, rec.ID, "user-1")
	require.Error(t, err)

	// Record stays revertible and prices stay adjusted.
	stored, err := mem.GetAdjustment(ctx, rec.ID)
	require.NoError(t, err)
	assert.False(t, stored.Reverted)

	pa, err := catalog.GetProduct(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, pa.Price.Equal(dec("15.00")))
}

func TestApply_ConcurrentBatchesSerialize(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	x := f.product(t, "X", "100.00")

	// WHEN: 20 batches of +1 run at once
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < 20; i++ {
		g.Go(func() error {
			_, err := f.adjuster.Apply(gctx, fixedAll("1"))
			return err
		})
	}
	require.NoError(t, g.Wait())

	// THEN: Every batch saw the previous one's result
	assert.True(t, f.price(t, x).Equal(dec("120.00")))

	history, err := f.adjuster.History(ctx)
	require.NoError(t, err)
	require.Len(t, history, 20)

	seen := map[string]bool{}
	for _, rec := range history {
		full, err := f.adjuster.Get(ctx, rec.ID)
		require.NoError(t, err)
		seen[full.Snapshot[0].PriceBefore.StringFixed(2)] = true
	}
	assert.Len(t, seen, 20, "each batch snapshots a distinct prior price")
}

func TestHistory_NewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	clock := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	f.adjuster.Now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}
	c := f.category(t, "C")
	f.product(t, "X", "10.00", c)

	first, err := f.adjuster.Apply(ctx, fixedAll("1"))
	require.NoError(t, err)
	second, err := f.adjuster.Apply(ctx, pctIn("10", c))
	require.NoError(t, err)

	history, err := f.adjuster.History(ctx)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, second.ID, history[0].ID)
	assert.Equal(t, "C", history[0].CategoryName)
	assert.Equal(t, first.ID, history[1].ID)
	assert.True(t, history[1].Rule.Scope.IsAll())
}

// fakeCache records calls and serves whatever was last set.
type fakeCache struct {
	mu          sync.Mutex
	records     []inventory.AdjustmentRecord
	cached      bool
	version     int64
	hits        int
	sets        int
	invalidated int
	failGet     bool

	// beforeSet, when set, runs at the start of SetHistory without the lock held.
	beforeSet func()
}

func (c *fakeCache) GetHistory(context.Context) ([]inventory.AdjustmentRecord, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failGet {
		return nil, false, errors.New("cache down")
	}
	if !c.cached {
		return nil, false, nil
	}
	c.hits++
	return c.records, true, nil
}

func (c *fakeCache) HistoryVersion(context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version, nil
}

func (c *fakeCache) SetHistory(_ context.Context, version int64, records []inventory.AdjustmentRecord) error {
	if c.beforeSet != nil {
		c.beforeSet()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if version != c.version {
		return nil
	}
	c.records = records
	c.cached = true
	c.sets++
	return nil
}

func (c *fakeCache) InvalidateHistory(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = nil
	c.cached = false
	c.version++
	c.invalidated++
	return nil
}

func TestHistory_CacheInvalidatedOnWrite(t *testing.T) {
	f := newFixture(t)
	cache := &fakeCache{}
	f.adjuster.Cache = cache
	ctx := context.Background()

	f.product(t, "X", "10.00")
	rec, err := f.adjuster.Apply(ctx, fixedAll("1"))
	require.NoError(t, err)
	assert.Equal(t, 1, cache.invalidated)

	// First read fills, second read hits.
	_, err = f.adjuster.History(ctx)
	require.NoError(t, err)
	history, err := f.adjuster.History(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.sets)
	assert.Equal(t, 1, cache.hits)
	require.Len(t, history, 1)
	assert.False(t, history[0].Reverted)

	// Revert invalidates, so the next read sees the flag.
	_, err = f.adjuster.Revert(ctx, rec.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 2, cache.invalidated)

	history, err = f.adjuster.History(ctx)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.True(t, history[0].Reverted)
}

func TestHistory_CacheFailureFallsBackToStore(t *testing.T) {
	f := newFixture(t)
	f.adjuster.Cache = &fakeCache{failGet: true}
	ctx := context.Background()

	f.product(t, "X", "10.00")
	_, err := f.adjuster.Apply(ctx, fixedAll("1"))
	require.NoError(t, err)

	history, err := f.adjuster.History(ctx)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestHistory_FillRacingRevertIsNotCached(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.product(t, "X", "10.00")
	rec, err := f.adjuster.Apply(ctx, fixedAll("1"))
	require.NoError(t, err)

	// GIVEN: A history fill parked just before it writes the cache
	parked := make(chan struct{})
	release := make(chan struct{})
	cache := &fakeCache{}
	var once sync.Once
	cache.beforeSet = func() {
		once.Do(func() {
			close(parked)
			<-release
		})
	}
	f.adjuster.Cache = cache

	fill := make(chan error, 1)
	go func() {
		_, err := f.adjuster.History(ctx)
		fill <- err
	}()
	<-parked

	// WHEN: A revert commits and invalidates while the fill holds the old list
	_, err = f.adjuster.Revert(ctx, rec.ID, "user-2")
	require.NoError(t, err)
	close(release)
	require.NoError(t, <-fill)

	// THEN: The next read sees the revert
	history, err := f.adjuster.History(ctx)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.True(t, history[0].Reverted)
}

// cancelAwareStore fails reads on a cancelled context, like a SQL driver.
type cancelAwareStore struct {
	*store.TxMemory
}

func (s cancelAwareStore) ListAdjustments(ctx context.Context) ([]inventory.AdjustmentRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.TxMemory.ListAdjustments(ctx)
}

func TestHistory_FillIgnoresCallerCancellation(t *testing.T) {
	s := cancelAwareStore{TxMemory: store.NewTxMemory()}
	catalog := inventory.NewCatalog(s)
	adjuster := inventory.NewAdjuster(s)
	ctx := context.Background()

	_, err := catalog.CreateProduct(ctx, inventory.NewProductInput{Name: "X", Price: dec("1")})
	require.NoError(t, err)
	_, err = adjuster.Apply(ctx, fixedAll("1"))
	require.NoError(t, err)

	// WHEN: The caller that starts the fill has already gone away
	gone, cancel := context.WithCancel(ctx)
	cancel()

	// THEN: The shared fill still completes
	history, err := adjuster.History(gone)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestApply_ConcurrentDisjointScopesAreIndependent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// GIVEN: Two categories with their own products
	a := f.category(t, "A")
	b := f.category(t, "B")
	a1 := f.product(t, "A1", "100.00", a)
	a2 := f.product(t, "A2", "50.00", a)
	b1 := f.product(t, "B1", "200.00", b)

	// WHEN: +10% on A and -20% on B run at once
	var recA, recB *inventory.AdjustmentRecord
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		recA, err = f.adjuster.Apply(gctx, pctIn("10", a))
		return err
	})
	g.Go(func() (err error) {
		recB, err = f.adjuster.Apply(gctx, pctIn("-20", b))
		return err
	})
	require.NoError(t, g.Wait())

	// THEN: Both batches exist and each touched only its own category
	assert.ElementsMatch(t, []inventory.ProductID{a1, a2}, snapshotIDs(recA))
	assert.ElementsMatch(t, []inventory.ProductID{b1}, snapshotIDs(recB))

	assert.True(t, f.price(t, a1).Equal(dec("110.00")))
	assert.True(t, f.price(t, a2).Equal(dec("55.00")))
	assert.True(t, f.price(t, b1).Equal(dec("160.00")))

	history, err := f.adjuster.History(ctx)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func snapshotIDs(rec *inventory.AdjustmentRecord) []inventory.ProductID {
	ids := make([]inventory.ProductID, len(rec.Snapshot))
	for i, e := range rec.Snapshot {
		ids[i] = e.ProductID
	}
	return ids
}

func TestApply_ResultOutOfRangeIsRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// GIVEN: A product near the largest storable price
	x := f.product(t, "X", "999999999999.00")

	// WHEN: A batch would push it past the bound
	_, err := f.adjuster.Apply(ctx, fixedAll("1"))

	// THEN: Validation error, nothing recorded or changed
	var ve *inventory.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "valor", ve.Field)
	assert.True(t, f.price(t, x).Equal(dec("999999999999.00")))

	history, err := f.adjuster.History(ctx)
	require.NoError(t, err)
	assert.Empty(t, history)
}

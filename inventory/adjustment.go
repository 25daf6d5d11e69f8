/*
adjustment.go - Bulk price adjustment with audit and reversal

PURPOSE:
  The Adjuster coordinates one bulk price adjustment as a single unit of work:
  resolve the scope, compute every new price, write one ledger record carrying
  the prior-price snapshot, then write the new prices. Revert replays that
  snapshot exactly once.

APPLY FLOW:
  1. Validate the rule
  2. Inside WithTx:
     a. Resolve scope to a fixed product set (category membership read once)
     b. Stage (product -> price before, price after) into the snapshot
     c. CreateAdjustment (rule, note, snapshot, reverted=false)
     d. UpdatePrice for every staged product, conditional on its version
  3. Invalidate the history cache

REVERT FLOW:
  1. Inside WithTx:
     a. Load the record (NotFound if absent)
     b. Refuse if already reverted (AlreadyReverted)
     c. MarkReverted as compare-and-set
     d. Write every snapshot price back, overwriting whatever is current
  2. Invalidate the history cache

WHY A SNAPSHOT AND NOT AN INVERSE:
  Prices may change after a batch (manual edits, later batches). Replaying the
  recorded prior prices is well-defined regardless of that history; recomputing
  the inverse of the rule is not. Example:

    X = 100, apply +20% on C   -> X = 120.00   (snapshot X: 100)
    apply -50 fixed on all     -> X = 70.00    (snapshot X: 120)
    revert the first batch     -> X = 100.00   (not 70 / 1.2)

ATOMICITY:
  Any failure inside the unit (missing product, version conflict, store error)
  rolls the whole batch back. No automatic retry: two applies are two batches.

SEE ALSO:
  - pricing.go: ApplyRule
  - store.go: TxStore, HistoryCache
*/
package inventory

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// ApplyInput is a submitted bulk adjustment.
type ApplyInput struct {
	Rule  AdjustmentRule
	Note  string
	Actor string
}

// Adjuster is the Adjustment Orchestrator and Revert Engine.
type Adjuster struct {
	Store TxStore

	// Cache is optional. Failures are logged, never returned.
	Cache HistoryCache

	Logger *slog.Logger
	Now    func() time.Time

	fills singleflight.Group

	// generation moves on every invalidation so a fill that raced a write
	// does not repopulate the cache with a stale list.
	generation atomic.Uint64
}

func NewAdjuster(store TxStore) *Adjuster {
	return &Adjuster{
		Store:  store,
		Logger: slog.Default(),
		Now:    time.Now,
	}
}

// =============================================================================
// APPLY
// =============================================================================

// Apply applies a bulk adjustment and returns the created record, snapshot included.
func (a *Adjuster) Apply(ctx context.Context, in ApplyInput) (*AdjustmentRecord, error) {
	if err := ValidateRule(in.Rule); err != nil {
		return nil, err
	}

	now := a.now()
	rec := &AdjustmentRecord{
		Rule:      in.Rule,
		Note:      strings.TrimSpace(in.Note),
		CreatedBy: in.Actor,
		CreatedAt: now,
	}

	err := a.Store.WithTx(ctx, func(s Store) error {
		if cid := in.Rule.Scope.CategoryID; cid != nil {
			cat, err := s.GetCategory(ctx, *cid)
			if err != nil {
				return err
			}
			if cat == nil {
				return categoryNotFound(*cid)
			}
			rec.CategoryName = cat.Name
		}

		products, err := s.ListProducts(ctx, in.Rule.Scope)
		if err != nil {
			return err
		}
		if len(products) == 0 {
			return invalid("categoria_id", "no products match the adjustment scope")
		}

		rec.Snapshot = make([]SnapshotEntry, len(products))
		for i, p := range products {
			rec.Snapshot[i] = SnapshotEntry{
				ProductID:   p.ID,
				PriceBefore: p.Price,
				PriceAfter:  ApplyRule(p.Price, in.Rule),
			}
			if err := ValidatePrice(rec.Snapshot[i].PriceAfter); err != nil {
				return invalid("valor", "would push a price out of range")
			}
		}
		rec.ProductCount = len(products)

		if err := s.CreateAdjustment(ctx, rec); err != nil {
			return err
		}

		for i, p := range products {
			if err := s.UpdatePrice(ctx, p.ID, rec.Snapshot[i].PriceAfter, p.Version, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	a.invalidate(ctx)
	a.logger().Info("bulk price adjustment applied",
		"adjustment_id", int64(rec.ID),
		"kind", string(rec.Rule.Kind),
		"value", rec.Rule.Value.String(),
		"products", rec.ProductCount,
		"actor", rec.CreatedBy,
	)
	return rec, nil
}

// =============================================================================
// REVERT
// =============================================================================

// Revert restores every product in the record's snapshot to its prior price
// and marks the record reverted. A record can be reverted at most once.
func (a *Adjuster) Revert(ctx context.Context, id AdjustmentID, actor string) (*AdjustmentRecord, error) {
	now := a.now()

	var reverted *AdjustmentRecord
	err := a.Store.WithTx(ctx, func(s Store) error {
		rec, err := s.GetAdjustment(ctx, id)
		if err != nil {
			return err
		}
		if rec == nil {
			return adjustmentNotFound(id)
		}
		if rec.Reverted {
			return &AlreadyRevertedError{ID: id, RevertedAt: rec.RevertedAt}
		}

		ok, err := s.MarkReverted(ctx, id, actor, now)
		if err != nil {
			return err
		}
		if !ok {
			return &AlreadyRevertedError{ID: id}
		}

		// Last revert wins: the snapshot price overwrites the current one.
		for _, entry := range rec.Snapshot {
			p, err := s.GetProduct(ctx, entry.ProductID)
			if err != nil {
				return err
			}
			if p == nil {
				return productNotFound(entry.ProductID)
			}
			if err := s.UpdatePrice(ctx, p.ID, entry.PriceBefore, p.Version, now); err != nil {
				return err
			}
		}

		rec.Reverted = true
		rec.RevertedAt = &now
		rec.RevertedBy = actor
		reverted = rec
		return nil
	})
	if err != nil {
		return nil, err
	}

	a.invalidate(ctx)
	a.logger().Info("bulk price adjustment reverted",
		"adjustment_id", int64(id),
		"products", len(reverted.Snapshot),
		"actor", actor,
	)
	return reverted, nil
}

// =============================================================================
// QUERIES
// =============================================================================

// Get returns one record with its snapshot.
func (a *Adjuster) Get(ctx context.Context, id AdjustmentID) (*AdjustmentRecord, error) {
	rec, err := a.Store.GetAdjustment(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, adjustmentNotFound(id)
	}
	return rec, nil
}

// History returns all records newest first. Served from the cache when one is
// configured; concurrent misses share a single store read.
func (a *Adjuster) History(ctx context.Context) ([]AdjustmentRecord, error) {
	if a.Cache != nil {
		records, ok, err := a.Cache.GetHistory(ctx)
		if err != nil {
			a.logger().Warn("history cache read failed", "error", err)
		} else if ok {
			return records, nil
		}
	}

	// The fill outlives the caller that started it; other callers share its result.
	fillCtx := context.WithoutCancel(ctx)
	v, err, _ := a.fills.Do("history", func() (any, error) {
		return a.fillHistory(fillCtx)
	})
	if err != nil {
		return nil, err
	}
	return v.([]AdjustmentRecord), nil
}

func (a *Adjuster) fillHistory(ctx context.Context) ([]AdjustmentRecord, error) {
	gen := a.generation.Load()

	var version int64
	cacheable := a.Cache != nil
	if cacheable {
		var err error
		if version, err = a.Cache.HistoryVersion(ctx); err != nil {
			a.logger().Warn("history cache version read failed", "error", err)
			cacheable = false
		}
	}

	records, err := a.Store.ListAdjustments(ctx)
	if err != nil {
		return nil, err
	}
	if !cacheable || a.generation.Load() != gen {
		return records, nil
	}

	if err := a.Cache.SetHistory(ctx, version, records); err != nil {
		a.logger().Warn("history cache write failed", "error", err)
		return records, nil
	}

	// A write in this process may have invalidated between the check and the set.
	if a.generation.Load() != gen {
		a.invalidate(ctx)
	}
	return records, nil
}

func (a *Adjuster) invalidate(ctx context.Context) {
	a.generation.Add(1)
	if a.Cache == nil {
		return
	}
	if err := a.Cache.InvalidateHistory(ctx); err != nil {
		a.logger().Warn("history cache invalidation failed", "error", err)
	}
}

func (a *Adjuster) now() time.Time {
	if a.Now == nil {
		return time.Now().UTC()
	}
	return a.Now().UTC()
}

func (a *Adjuster) logger() *slog.Logger {
	if a.Logger == nil {
		return slog.Default()
	}
	return a.Logger
}

/*
stock.go - Append-only stock ledger

PURPOSE:
  Every stock change is a signed delta recorded as an immutable StockEntry.
  Appending the entry and moving the product's running total happen in one
  transaction, so the ledger and Product.Stock never diverge:

    current_stock == initial_stock + sum(accepted deltas)

POLICY:
  - A delta of exactly zero is rejected (ErrInvalidDelta).
  - Stock may go negative (backorder / shrinkage). A "do not sell below zero"
    rule belongs to the sales layer, not here.

CONCURRENCY:
  Appends for the same product are serialized by the store transaction and
  the version check on UpdateStock; each accepted delta is counted once.
*/
package inventory

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// StockInput is a submitted stock delta.
type StockInput struct {
	ProductID ProductID
	Delta     int64
	Reason    string
	Actor     string
}

type StockLedger struct {
	Store  TxStore
	Logger *slog.Logger
	Now    func() time.Time
}

func NewStockLedger(store TxStore) *StockLedger {
	return &StockLedger{
		Store:  store,
		Logger: slog.Default(),
		Now:    time.Now,
	}
}

// ApplyDelta appends a ledger entry and adds Delta to the product's stock.
func (l *StockLedger) ApplyDelta(ctx context.Context, in StockInput) (*StockEntry, error) {
	if in.Delta == 0 {
		return nil, invalidDelta("must not be zero")
	}

	now := time.Now().UTC()
	if l.Now != nil {
		now = l.Now().UTC()
	}

	var entry *StockEntry
	err := l.Store.WithTx(ctx, func(s Store) error {
		p, err := s.GetProduct(ctx, in.ProductID)
		if err != nil {
			return err
		}
		if p == nil {
			return productNotFound(in.ProductID)
		}

		e := &StockEntry{
			ProductID:   p.ID,
			Delta:       in.Delta,
			StockBefore: p.Stock,
			StockAfter:  p.Stock + in.Delta,
			Reason:      strings.TrimSpace(in.Reason),
			CreatedBy:   in.Actor,
			CreatedAt:   now,
		}
		if err := s.AppendStockEntry(ctx, e); err != nil {
			return err
		}
		if err := s.UpdateStock(ctx, p.ID, e.StockAfter, p.Version, now); err != nil {
			return err
		}
		entry = e
		return nil
	})
	if err != nil {
		return nil, err
	}

	if l.Logger != nil {
		l.Logger.Info("stock adjusted",
			"product_id", int64(entry.ProductID),
			"delta", entry.Delta,
			"stock", entry.StockAfter,
			"actor", entry.CreatedBy,
		)
	}
	return entry, nil
}

// History returns a product's stock entries newest first.
func (l *StockLedger) History(ctx context.Context, productID ProductID) ([]StockEntry, error) {
	p, err := l.Store.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, productNotFound(productID)
	}
	return l.Store.ListStockEntries(ctx, productID)
}

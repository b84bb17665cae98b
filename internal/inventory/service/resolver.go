package service

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/stockwise/stockwise-backend/internal/inventory/repository"
	"github.com/stockwise/stockwise-backend/pkg/errors"
	"golang.org/x/sync/singleflight"
)

// Position defaults applied when a position is created lazily by a restock
const (
	DefaultLowStockThreshold = 10
	DefaultLocationTag       = "main"
)

// PositionDefaults are the initial values of a lazily created position
type PositionDefaults struct {
	LowStockThreshold int
	LocationTag       string
}

// Resolver finds or creates the position for a (product, branch) pair
type Resolver struct {
	positions PositionStore
	defaults  PositionDefaults
	lookups   singleflight.Group
}

// NewResolver creates a resolver
func NewResolver(positions PositionStore, defaults PositionDefaults) *Resolver {
	if defaults.LowStockThreshold <= 0 {
		defaults.LowStockThreshold = DefaultLowStockThreshold
	}
	if defaults.LocationTag == "" {
		defaults.LocationTag = DefaultLocationTag
	}
	return &Resolver{positions: positions, defaults: defaults}
}

// Resolve returns the position for the pair, creating an empty one if none exists.
// created reports whether this call inserted the row. Must run inside the caller's
// transaction so the insert rolls back with it.
func (r *Resolver) Resolve(ctx context.Context, productID, branchID string) (*repository.Position, bool, error) {
	pos, err := r.positions.FindByProductBranch(ctx, productID, branchID)
	if err == nil {
		return pos, false, nil
	}
	if !errors.Is(err, errors.ErrNotFound) {
		return nil, false, err
	}

	candidate := &repository.Position{
		ProductID:         productID,
		BranchID:          branchID,
		LowStockThreshold: r.defaults.LowStockThreshold,
		CostPerUnit:       decimal.Zero,
		LocationTag:       r.defaults.LocationTag,
	}
	created, err := r.positions.InsertIfAbsent(ctx, candidate)
	if err != nil {
		return nil, false, err
	}
	if created {
		return candidate, true, nil
	}

	// A concurrent writer created the row first; adopt it.
	pos, err = r.positions.FindByProductBranch(ctx, productID, branchID)
	if errors.Is(err, errors.ErrNotFound) {
		return nil, false, errors.Conflict("inventory position was created concurrently and is not yet visible")
	}
	if err != nil {
		return nil, false, err
	}
	return pos, false, nil
}

// Lookup reads the position for the pair without creating it. Concurrent lookups for
// the same pair share one store read.
func (r *Resolver) Lookup(ctx context.Context, productID, branchID string) (*repository.Position, error) {
	key := productID + ":" + branchID
	ch := r.lookups.DoChan(key, func() (interface{}, error) {
		// Detached so one caller's cancellation does not fail the others.
		return r.positions.FindByProductBranch(context.WithoutCancel(ctx), productID, branchID)
	})

	select {
	case <-ctx.Done():
		return nil, errors.Storage(ctx.Err(), "inventory position lookup cancelled")
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		pos := *res.Val.(*repository.Position)
		return &pos, nil
	}
}

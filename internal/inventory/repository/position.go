package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stockwise/stockwise-backend/pkg/database"
)

const positionColumns = `id, product_id, branch_id, quantity, reserved_quantity, low_stock_threshold,
	min_stock_level, max_stock_level, cost_per_unit, last_restocked_at, location_tag,
	created_at, updated_at`

// PositionRepository handles inventory position persistence
type PositionRepository struct {
	db *database.DB
}

// NewPositionRepository creates a new position repository
func NewPositionRepository(db *database.DB) *PositionRepository {
	return &PositionRepository{db: db}
}

// GetByID gets a position by ID
func (r *PositionRepository) GetByID(ctx context.Context, id string) (*Position, error) {
	var p Position
	query := `SELECT ` + positionColumns + ` FROM inventory WHERE id = $1`
	if err := r.db.Conn(ctx).GetContext(ctx, &p, query, id); err != nil {
		return nil, database.MapError(err, "inventory position")
	}
	return &p, nil
}

// FindByProductBranch gets the position for a product at a branch
func (r *PositionRepository) FindByProductBranch(ctx context.Context, productID, branchID string) (*Position, error) {
	var p Position
	query := `SELECT ` + positionColumns + ` FROM inventory WHERE product_id = $1 AND branch_id = $2`
	if err := r.db.Conn(ctx).GetContext(ctx, &p, query, productID, branchID); err != nil {
		return nil, database.MapError(err, "inventory position")
	}
	return &p, nil
}

// LockByID reads a position and holds its row lock until the surrounding transaction ends.
func (r *PositionRepository) LockByID(ctx context.Context, id string) (*Position, error) {
	var p Position
	query := `SELECT ` + positionColumns + ` FROM inventory WHERE id = $1 FOR UPDATE`
	if err := r.db.Conn(ctx).GetContext(ctx, &p, query, id); err != nil {
		return nil, database.MapError(err, "inventory position")
	}
	return &p, nil
}

// InsertIfAbsent inserts p unless a position for the same product and branch exists.
// Returns false when another writer got there first; p is left untouched in that case.
func (r *PositionRepository) InsertIfAbsent(ctx context.Context, p *Position) (bool, error) {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}

	query := `
		INSERT INTO inventory (
			id, product_id, branch_id, quantity, reserved_quantity, low_stock_threshold,
			min_stock_level, max_stock_level, cost_per_unit, location_tag
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (product_id, branch_id) DO NOTHING
		RETURNING created_at, updated_at
	`

	err := r.db.Conn(ctx).QueryRowxContext(ctx, query,
		p.ID, p.ProductID, p.BranchID, p.Quantity, p.ReservedQuantity, p.LowStockThreshold,
		p.MinStockLevel, p.MaxStockLevel, p.CostPerUnit, p.LocationTag,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if stderrors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, database.MapError(err, "inventory position")
	}
	return true, nil
}

// ApplyRestock adds delta to the on-hand quantity in a single statement and records the
// restock cost and time. Returns the updated row.
func (r *PositionRepository) ApplyRestock(ctx context.Context, id string, delta int, cost decimal.Decimal, at time.Time) (*Position, error) {
	var p Position
	query := `
		UPDATE inventory SET
			quantity = quantity + $2,
			cost_per_unit = $3,
			last_restocked_at = $4,
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + positionColumns

	if err := r.db.Conn(ctx).GetContext(ctx, &p, query, id, delta, cost, at); err != nil {
		return nil, database.MapError(err, "inventory position")
	}
	return &p, nil
}

// AdjustQuantity adds delta (possibly negative) to the on-hand quantity.
// The quantity >= 0 check constraint rejects a result below zero.
func (r *PositionRepository) AdjustQuantity(ctx context.Context, id string, delta int) (*Position, error) {
	var p Position
	query := `
		UPDATE inventory SET
			quantity = quantity + $2,
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + positionColumns

	if err := r.db.Conn(ctx).GetContext(ctx, &p, query, id, delta); err != nil {
		return nil, database.MapError(err, "inventory position")
	}
	return &p, nil
}

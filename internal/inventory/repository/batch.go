package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/stockwise/stockwise-backend/pkg/database"
	"github.com/stockwise/stockwise-backend/pkg/errors"
)

const batchColumns = `id, inventory_id, batch_number, quantity, received_date, expiration_date,
	cost_per_unit, supplier_name, supplier_info, status, is_active, created_at, updated_at`

// BatchRepository handles batch persistence
type BatchRepository struct {
	db *database.DB
}

// NewBatchRepository creates a new batch repository
func NewBatchRepository(db *database.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

// Create creates a new batch
func (r *BatchRepository) Create(ctx context.Context, batch *Batch) error {
	if batch.ID == "" {
		batch.ID = uuid.New().String()
	}
	if batch.Status == "" {
		batch.Status = BatchStatusActive
		batch.IsActive = true
	}

	query := `
		INSERT INTO product_batches (
			id, inventory_id, batch_number, quantity, received_date, expiration_date,
			cost_per_unit, supplier_name, supplier_info, status, is_active
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at
	`

	err := r.db.Conn(ctx).QueryRowxContext(ctx, query,
		batch.ID, batch.InventoryID, batch.BatchNumber, batch.Quantity, batch.ReceivedDate,
		batch.ExpirationDate, batch.CostPerUnit, batch.SupplierName, batch.SupplierInfo,
		batch.Status, batch.IsActive,
	).Scan(&batch.CreatedAt, &batch.UpdatedAt)
	return database.MapError(err, "batch")
}

// GetByID gets a batch by ID
func (r *BatchRepository) GetByID(ctx context.Context, id string) (*Batch, error) {
	var batch Batch
	query := `SELECT ` + batchColumns + ` FROM product_batches WHERE id = $1`
	if err := r.db.Conn(ctx).GetContext(ctx, &batch, query, id); err != nil {
		return nil, database.MapError(err, "batch")
	}
	return &batch, nil
}

// LockByID reads a batch and holds its row lock until the surrounding transaction ends.
func (r *BatchRepository) LockByID(ctx context.Context, id string) (*Batch, error) {
	var batch Batch
	query := `SELECT ` + batchColumns + ` FROM product_batches WHERE id = $1 FOR UPDATE`
	if err := r.db.Conn(ctx).GetContext(ctx, &batch, query, id); err != nil {
		return nil, database.MapError(err, "batch")
	}
	return &batch, nil
}

// ListActiveByPosition lists active batches of a position in FIFO order:
// earliest expiration first, then oldest, then by id.
func (r *BatchRepository) ListActiveByPosition(ctx context.Context, positionID string) ([]*Batch, error) {
	batches := []*Batch{}
	query := `
		SELECT ` + batchColumns + ` FROM product_batches
		WHERE inventory_id = $1 AND is_active = true
		ORDER BY expiration_date, created_at, id
	`
	if err := r.db.Conn(ctx).SelectContext(ctx, &batches, query, positionID); err != nil {
		return nil, database.MapError(err, "batch")
	}
	return batches, nil
}

// BatchNumberExists reports whether any batch, active or removed, uses the number
func (r *BatchRepository) BatchNumberExists(ctx context.Context, batchNumber string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM product_batches WHERE batch_number = $1)`
	if err := r.db.Conn(ctx).GetContext(ctx, &exists, query, batchNumber); err != nil {
		return false, database.MapError(err, "batch")
	}
	return exists, nil
}

// Retire marks an active batch removed. Its quantity is left as received.
func (r *BatchRepository) Retire(ctx context.Context, id string) (*Batch, error) {
	var batch Batch
	query := `
		UPDATE product_batches SET
			is_active = false,
			status = 'removed',
			updated_at = NOW()
		WHERE id = $1 AND is_active = true
		RETURNING ` + batchColumns

	if err := r.db.Conn(ctx).GetContext(ctx, &batch, query, id); err != nil {
		mapped := database.MapError(err, "batch")
		if errors.Is(mapped, errors.ErrNotFound) {
			return nil, errors.Precondition("batch is not active")
		}
		return nil, mapped
	}
	return &batch, nil
}

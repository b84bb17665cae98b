package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/stockwise/stockwise-backend/pkg/database"
)

const restockColumns = `id, inventory_id, batch_id, quantity, cost_per_unit, supplier_name,
	supplier_info, purchase_order_ref, received_date, performed_by, notes, created_at`

// RestockHistoryRepository persists restock audit records
type RestockHistoryRepository struct {
	db *database.DB
}

// NewRestockHistoryRepository creates a new restock history repository
func NewRestockHistoryRepository(db *database.DB) *RestockHistoryRepository {
	return &RestockHistoryRepository{db: db}
}

// Create appends a restock record
func (r *RestockHistoryRepository) Create(ctx context.Context, rec *RestockRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}

	query := `
		INSERT INTO restock_history (
			id, inventory_id, batch_id, quantity, cost_per_unit, supplier_name,
			supplier_info, purchase_order_ref, received_date, performed_by, notes
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at
	`

	err := r.db.Conn(ctx).QueryRowxContext(ctx, query,
		rec.ID, rec.InventoryID, rec.BatchID, rec.Quantity, rec.CostPerUnit, rec.SupplierName,
		rec.SupplierInfo, rec.PurchaseOrderRef, rec.ReceivedDate, rec.PerformedBy, rec.Notes,
	).Scan(&rec.CreatedAt)
	return database.MapError(err, "restock history")
}

// ListByPosition lists restock records of a position, newest first
func (r *RestockHistoryRepository) ListByPosition(ctx context.Context, positionID string, limit, offset int) ([]*RestockRecord, error) {
	records := []*RestockRecord{}
	query := `
		SELECT ` + restockColumns + ` FROM restock_history
		WHERE inventory_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`
	if err := r.db.Conn(ctx).SelectContext(ctx, &records, query, positionID, limit, offset); err != nil {
		return nil, database.MapError(err, "restock history")
	}
	return records, nil
}

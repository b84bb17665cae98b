package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/stockwise/stockwise-backend/pkg/database"
)

const movementColumns = `id, inventory_id, movement_type, quantity, quantity_before, quantity_after,
	batch_id, notes, performed_by, created_at`

// MovementRepository persists the append-only stock movement log
type MovementRepository struct {
	db *database.DB
}

// NewMovementRepository creates a new movement repository
func NewMovementRepository(db *database.DB) *MovementRepository {
	return &MovementRepository{db: db}
}

// Create appends a movement
func (r *MovementRepository) Create(ctx context.Context, m *Movement) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}

	query := `
		INSERT INTO inventory_movements (
			id, inventory_id, movement_type, quantity, quantity_before, quantity_after,
			batch_id, notes, performed_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at
	`

	err := r.db.Conn(ctx).QueryRowxContext(ctx, query,
		m.ID, m.InventoryID, m.MovementType, m.Quantity, m.QuantityBefore, m.QuantityAfter,
		m.BatchID, m.Notes, m.PerformedBy,
	).Scan(&m.CreatedAt)
	return database.MapError(err, "inventory movement")
}

// ListByPosition lists movements of a position, newest first
func (r *MovementRepository) ListByPosition(ctx context.Context, positionID string, limit, offset int) ([]*Movement, error) {
	movements := []*Movement{}
	query := `
		SELECT ` + movementColumns + ` FROM inventory_movements
		WHERE inventory_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`
	if err := r.db.Conn(ctx).SelectContext(ctx, &movements, query, positionID, limit, offset); err != nil {
		return nil, database.MapError(err, "inventory movement")
	}
	return movements, nil
}

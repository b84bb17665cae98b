package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stockwise/stockwise-backend/internal/inventory/repository"
)

// PositionStore persists inventory positions
type PositionStore interface {
	GetByID(ctx context.Context, id string) (*repository.Position, error)
	FindByProductBranch(ctx context.Context, productID, branchID string) (*repository.Position, error)
	LockByID(ctx context.Context, id string) (*repository.Position, error)
	InsertIfAbsent(ctx context.Context, p *repository.Position) (bool, error)
	ApplyRestock(ctx context.Context, id string, delta int, cost decimal.Decimal, at time.Time) (*repository.Position, error)
	AdjustQuantity(ctx context.Context, id string, delta int) (*repository.Position, error)
}

// BatchStore persists product batches
type BatchStore interface {
	Create(ctx context.Context, batch *repository.Batch) error
	GetByID(ctx context.Context, id string) (*repository.Batch, error)
	LockByID(ctx context.Context, id string) (*repository.Batch, error)
	ListActiveByPosition(ctx context.Context, positionID string) ([]*repository.Batch, error)
	BatchNumberExists(ctx context.Context, batchNumber string) (bool, error)
	Retire(ctx context.Context, id string) (*repository.Batch, error)
}

// MovementStore appends and lists movement records
type MovementStore interface {
	Create(ctx context.Context, m *repository.Movement) error
	ListByPosition(ctx context.Context, positionID string, limit, offset int) ([]*repository.Movement, error)
}

// RestockHistoryStore appends and lists restock history records
type RestockHistoryStore interface {
	Create(ctx context.Context, rec *repository.RestockRecord) error
	ListByPosition(ctx context.Context, positionID string, limit, offset int) ([]*repository.RestockRecord, error)
}

// Transactor runs fn inside one store transaction carried by ctx.
// *database.DB satisfies it.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// EventPublisher announces committed ledger changes. Implementations must be
// best-effort: publishing never fails the operation that triggered it.
type EventPublisher interface {
	BatchRestocked(ctx context.Context, pos *repository.Position, batch *repository.Batch, positionCreated bool, performedBy string)
	BatchRetired(ctx context.Context, pos *repository.Position, batch *repository.Batch, reason, performedBy string)
	StockLow(ctx context.Context, pos *repository.Position)
}

type noopPublisher struct{}

func (noopPublisher) BatchRestocked(context.Context, *repository.Position, *repository.Batch, bool, string) {
}

func (noopPublisher) BatchRetired(context.Context, *repository.Position, *repository.Batch, string, string) {
}

func (noopPublisher) StockLow(context.Context, *repository.Position) {}

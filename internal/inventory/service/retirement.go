package service

import (
	"context"
	"fmt"
	"time"

	"github.com/stockwise/stockwise-backend/internal/inventory/repository"
	"github.com/stockwise/stockwise-backend/pkg/actor"
	"github.com/stockwise/stockwise-backend/pkg/errors"
	"github.com/stockwise/stockwise-backend/pkg/logger"
	"github.com/stockwise/stockwise-backend/pkg/permissions"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// RetirementResult is the outcome of a committed retirement
type RetirementResult struct {
	Batch      *repository.Batch    `json:"batch"`
	Position   *repository.Position `json:"position"`
	MovementID string               `json:"movement_id"`
}

// Retirement removes expired batches from stock
type Retirement struct {
	tx        Transactor
	ledger    *Ledger
	positions PositionStore
	batches   BatchStore
	movements MovementStore
	events    EventPublisher
	timeouts  Timeouts
	logger    *logger.Logger
}

// NewRetirement creates the retirement workflow
func NewRetirement(
	tx Transactor,
	ledger *Ledger,
	positions PositionStore,
	batches BatchStore,
	movements MovementStore,
	events EventPublisher,
	timeouts Timeouts,
	log *logger.Logger,
) *Retirement {
	if events == nil {
		events = noopPublisher{}
	}
	return &Retirement{
		tx:        tx,
		ledger:    ledger,
		positions: positions,
		batches:   batches,
		movements: movements,
		events:    events,
		timeouts:  timeouts.withDefaults(),
		logger:    log.WithComponent("retirement"),
	}
}

// Retire moves an expired batch from active to removed and takes its quantity
// off the position. Batches that have not expired yet are refused.
func (r *Retirement) Retire(ctx context.Context, batchID string, by *actor.Actor, reason string) (*RetirementResult, error) {
	if by == nil {
		return nil, errors.Unauthorized("authentication required")
	}
	if !by.Can(permissions.InventoryBatchRetire) {
		return nil, errors.Forbidden("missing permission " + permissions.InventoryBatchRetire)
	}
	reason, err := ValidateRetireReason(reason)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeouts.Operation)
	defer cancel()
	ctx, span := tracer.Start(ctx, "inventory.retire", trace.WithAttributes(
		attribute.String("inventory.batch_id", batchID),
	))
	defer span.End()

	var (
		batch    *repository.Batch
		pos      *repository.Position
		movement *repository.Movement
	)

	err = r.tx.WithinTx(ctx, func(ctx context.Context) error {
		var locked *repository.Batch
		if err := r.statement(ctx, func(ctx context.Context) (err error) {
			locked, err = r.batches.LockByID(ctx, batchID)
			return err
		}); err != nil {
			return err
		}
		if !locked.IsActive || locked.Status != repository.BatchStatusActive {
			return errors.Precondition(fmt.Sprintf("batch %s is already removed", locked.BatchNumber))
		}
		if days, status := r.ledger.Status(locked); status != StatusExpired {
			expires := locked.ExpirationDate.Format(time.DateOnly)
			return errors.Precondition(fmt.Sprintf("batch %s cannot be retired before it expires on %s", locked.BatchNumber, expires)).
				WithDetails(map[string]string{
					"expiration_date":       expires,
					"days_until_expiration": fmt.Sprint(days),
				})
		}

		var current *repository.Position
		if err := r.statement(ctx, func(ctx context.Context) (err error) {
			current, err = r.positions.LockByID(ctx, locked.InventoryID)
			return err
		}); err != nil {
			return err
		}
		if current.Quantity < locked.Quantity {
			return errors.Precondition(fmt.Sprintf(
				"insufficient stock: position holds %d but batch %s has %d",
				current.Quantity, locked.BatchNumber, locked.Quantity))
		}

		if err := r.statement(ctx, func(ctx context.Context) (err error) {
			pos, err = r.positions.AdjustQuantity(ctx, current.ID, -locked.Quantity)
			return err
		}); err != nil {
			return err
		}
		if err := r.statement(ctx, func(ctx context.Context) (err error) {
			batch, err = r.batches.Retire(ctx, locked.ID)
			return err
		}); err != nil {
			return err
		}

		movement = &repository.Movement{
			InventoryID:    pos.ID,
			MovementType:   repository.MovementRetire,
			Quantity:       -locked.Quantity,
			QuantityBefore: current.Quantity,
			QuantityAfter:  pos.Quantity,
			BatchID:        &locked.ID,
			Notes:          &reason,
			PerformedBy:    by.ID,
		}
		return r.statement(ctx, func(ctx context.Context) error {
			return r.movements.Create(ctx, movement)
		})
	})
	if err != nil {
		if !errors.IsAppError(err) {
			err = errors.Storage(err, "batch retirement failed")
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "retire")
		r.logger.Warn().Err(err).Str("batch_id", batchID).Str("user_id", by.ID).Msg("batch retirement refused")
		return nil, err
	}

	r.logger.Info().
		Str("batch_id", batch.ID).
		Str("position_id", pos.ID).
		Int("quantity", batch.Quantity).
		Int("new_quantity", pos.Quantity).
		Str("user_id", by.ID).
		Msg("batch retired")

	r.events.BatchRetired(ctx, pos, batch, reason, by.ID)
	if pos.IsLowStock() {
		r.events.StockLow(ctx, pos)
	}

	return &RetirementResult{Batch: batch, Position: pos, MovementID: movement.ID}, nil
}

// statement runs one database call under its own step deadline
func (r *Retirement) statement(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeouts.Step)
	defer cancel()
	return fn(ctx)
}

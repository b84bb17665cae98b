package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/stockwise/stockwise-backend/internal/inventory/repository"
	"github.com/stockwise/stockwise-backend/pkg/actor"
	"github.com/stockwise/stockwise-backend/pkg/calendar"
	"github.com/stockwise/stockwise-backend/pkg/database"
	"github.com/stockwise/stockwise-backend/pkg/errors"
	"github.com/stockwise/stockwise-backend/pkg/logger"
	"github.com/stockwise/stockwise-backend/pkg/permissions"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("stockwise/inventory")

// Step names a stage of the restock workflow
type Step string

const (
	StepValidate         Step = "validate"
	StepBegin            Step = "begin"
	StepResolvePosition  Step = "resolve_position"
	StepCheckBatchNumber Step = "check_batch_number"
	StepCreateBatch      Step = "create_batch"
	StepUpdateQuantity   Step = "update_quantity"
	StepRecordMovement   Step = "record_movement"
	StepRecordHistory    Step = "record_history"
	StepCommit           Step = "commit"
)

// Default deadlines
const (
	DefaultRestockTimeout = 15 * time.Second
	DefaultStepTimeout    = 5 * time.Second
)

// RestockError reports which step of a restock failed and what had been written
// before it. RolledBack is false for validation failures (nothing was written) and
// for commit failures, where the outcome on the server is unknown.
type RestockError struct {
	Step            Step
	PositionID      string
	BatchID         string
	PositionCreated bool
	RolledBack      bool
	Err             error
}

func (e *RestockError) Error() string {
	return fmt.Sprintf("restock failed at step %s: %v", e.Step, e.Err)
}

func (e *RestockError) Unwrap() error {
	return e.Err
}

// Details lists the step diagnostics as strings for API error bodies
func (e *RestockError) Details() map[string]string {
	d := map[string]string{
		"step":        string(e.Step),
		"rolled_back": strconv.FormatBool(e.RolledBack),
	}
	if e.PositionID != "" {
		d["position_id"] = e.PositionID
		d["position_created"] = strconv.FormatBool(e.PositionCreated)
	}
	if e.BatchID != "" {
		d["batch_id"] = e.BatchID
	}
	return d
}

// AppError returns a copy of the underlying AppError with the step diagnostics
// merged into its details. The wrapped error is not modified.
func (e *RestockError) AppError() *errors.AppError {
	var inner *errors.AppError
	if !errors.As(e.Err, &inner) {
		inner = errors.Internal("restock failed")
	}
	out := *inner
	out.Details = make(map[string]string, len(inner.Details)+5)
	for k, v := range inner.Details {
		out.Details[k] = v
	}
	for k, v := range e.Details() {
		out.Details[k] = v
	}
	return &out
}

// RestockResult is the outcome of a committed restock
type RestockResult struct {
	BatchID          string               `json:"batch_id"`
	Batch            *repository.Batch    `json:"batch"`
	Position         *repository.Position `json:"position"`
	MovementID       string               `json:"movement_id"`
	RestockHistoryID string               `json:"restock_history_id"`
	PositionCreated  bool                 `json:"position_created"`
}

// Timeouts bound a whole operation and each of its steps
type Timeouts struct {
	Operation time.Duration
	Step      time.Duration
}

func (t Timeouts) withDefaults() Timeouts {
	if t.Operation <= 0 {
		t.Operation = DefaultRestockTimeout
	}
	if t.Step <= 0 {
		t.Step = DefaultStepTimeout
	}
	return t
}

// Coordinator executes restocks. Everything after validation runs in one
// transaction with the position row locked, so concurrent restocks and
// retirements of a position serialize.
type Coordinator struct {
	tx        Transactor
	validator *Validator
	resolver  *Resolver
	positions PositionStore
	batches   BatchStore
	movements MovementStore
	history   RestockHistoryStore
	events    EventPublisher
	cal       *calendar.Calendar
	timeouts  Timeouts
	logger    *logger.Logger
}

// NewCoordinator creates a restock coordinator
func NewCoordinator(
	tx Transactor,
	validator *Validator,
	resolver *Resolver,
	positions PositionStore,
	batches BatchStore,
	movements MovementStore,
	history RestockHistoryStore,
	events EventPublisher,
	cal *calendar.Calendar,
	timeouts Timeouts,
	log *logger.Logger,
) *Coordinator {
	if events == nil {
		events = noopPublisher{}
	}
	return &Coordinator{
		tx:        tx,
		validator: validator,
		resolver:  resolver,
		positions: positions,
		batches:   batches,
		movements: movements,
		history:   history,
		events:    events,
		cal:       cal,
		timeouts:  timeouts.withDefaults(),
		logger:    log.WithComponent("restock"),
	}
}

// Restock records a received batch against the (product, branch) position,
// creating the position on first use.
func (c *Coordinator) Restock(ctx context.Context, in RestockInput, by *actor.Actor) (*RestockResult, error) {
	if by == nil {
		return nil, errors.Unauthorized("authentication required")
	}
	if !by.Can(permissions.InventoryRestock) {
		return nil, errors.Forbidden("missing permission " + permissions.InventoryRestock)
	}

	in = in.normalized(c.cal)

	ctx, cancel := context.WithTimeout(ctx, c.timeouts.Operation)
	defer cancel()
	ctx, span := tracer.Start(ctx, "inventory.restock", trace.WithAttributes(
		attribute.String("inventory.product_id", in.ProductID),
		attribute.String("inventory.branch_id", in.BranchID),
		attribute.String("inventory.batch_number", in.BatchNumber),
	))
	defer span.End()

	log := c.logger.WithUserID(by.ID)
	failure := &RestockError{}

	if err := c.step(ctx, failure, StepValidate, func(ctx context.Context) error {
		return c.validator.ValidateRestock(ctx, in)
	}); err != nil {
		return nil, c.fail(span, log, failure)
	}

	var (
		pos      *repository.Position
		batch    *repository.Batch
		movement *repository.Movement
		record   *repository.RestockRecord
		now      = c.cal.Now()
	)

	failure.Step = StepBegin
	err := c.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := c.step(ctx, failure, StepResolvePosition, func(ctx context.Context) error {
			resolved, created, err := c.resolver.Resolve(ctx, in.ProductID, in.BranchID)
			if err != nil {
				return err
			}
			failure.PositionID = resolved.ID
			failure.PositionCreated = created
			pos, err = c.positions.LockByID(ctx, resolved.ID)
			return err
		}); err != nil {
			return err
		}

		if err := c.step(ctx, failure, StepCheckBatchNumber, func(ctx context.Context) error {
			exists, err := c.batches.BatchNumberExists(ctx, in.BatchNumber)
			if err != nil {
				return err
			}
			if exists {
				return errors.Conflict("batch number " + in.BatchNumber + " already exists")
			}
			return nil
		}); err != nil {
			return err
		}

		if err := c.step(ctx, failure, StepCreateBatch, func(ctx context.Context) error {
			batch = &repository.Batch{
				InventoryID: pos.ID,
				BatchNumber: in.BatchNumber,
				Quantity:    in.Quantity,
				// DATE columns hold the civil date; pin it to UTC so the driver cannot shift it.
				ReceivedDate:   calendar.Civil(in.ReceivedDate, time.UTC),
				ExpirationDate: calendar.Civil(in.ExpirationDate, time.UTC),
				CostPerUnit:    in.CostPerUnit,
				SupplierName:   in.SupplierName,
				SupplierInfo: repository.SupplierInfo{
					Contact:          in.SupplierContact,
					Email:            in.SupplierEmail,
					PurchaseOrderRef: in.PurchaseOrderRef,
				},
				Status:   repository.BatchStatusActive,
				IsActive: true,
			}
			if err := c.batches.Create(ctx, batch); err != nil {
				return err
			}
			failure.BatchID = batch.ID
			return nil
		}); err != nil {
			return err
		}

		if err := c.step(ctx, failure, StepUpdateQuantity, func(ctx context.Context) error {
			updated, err := c.positions.ApplyRestock(ctx, pos.ID, in.Quantity, in.CostPerUnit, now)
			if err != nil {
				return err
			}
			pos = updated
			return nil
		}); err != nil {
			return err
		}

		if err := c.step(ctx, failure, StepRecordMovement, func(ctx context.Context) error {
			movement = &repository.Movement{
				InventoryID:    pos.ID,
				MovementType:   repository.MovementRestock,
				Quantity:       in.Quantity,
				QuantityBefore: pos.Quantity - in.Quantity,
				QuantityAfter:  pos.Quantity,
				BatchID:        &batch.ID,
				Notes:          optional(in.Notes),
				PerformedBy:    by.ID,
			}
			return c.movements.Create(ctx, movement)
		}); err != nil {
			return err
		}

		return c.step(ctx, failure, StepRecordHistory, func(ctx context.Context) error {
			record = &repository.RestockRecord{
				InventoryID:      pos.ID,
				BatchID:          batch.ID,
				Quantity:         in.Quantity,
				CostPerUnit:      in.CostPerUnit,
				SupplierName:     in.SupplierName,
				SupplierInfo:     batch.SupplierInfo,
				PurchaseOrderRef: optional(in.PurchaseOrderRef),
				ReceivedDate:     batch.ReceivedDate,
				PerformedBy:      by.ID,
				Notes:            optional(in.Notes),
			}
			return c.history.Create(ctx, record)
		})
	})
	if err != nil {
		var commitErr *database.CommitError
		switch {
		case errors.As(err, &commitErr):
			failure.Step = StepCommit
			failure.Err = errors.Storage(err, "restock commit failed; outcome unknown")
			failure.RolledBack = false
		case failure.Err != nil:
			failure.RolledBack = true
		default:
			// Begin failed, or a step panicked and the transaction recovered it.
			failure.Err = errors.Storage(err, "restock transaction failed")
			failure.RolledBack = failure.Step != StepBegin
		}
		return nil, c.fail(span, log, failure)
	}

	log.Info().
		Str("position_id", pos.ID).
		Str("batch_id", batch.ID).
		Str("batch_number", batch.BatchNumber).
		Int("quantity", in.Quantity).
		Int("new_quantity", pos.Quantity).
		Bool("position_created", failure.PositionCreated).
		Msg("restock committed")

	c.events.BatchRestocked(ctx, pos, batch, failure.PositionCreated, by.ID)
	if pos.IsLowStock() {
		c.events.StockLow(ctx, pos)
	}

	return &RestockResult{
		BatchID:          batch.ID,
		Batch:            batch,
		Position:         pos,
		MovementID:       movement.ID,
		RestockHistoryID: record.ID,
		PositionCreated:  failure.PositionCreated,
	}, nil
}

// step runs fn under the step deadline and its own span. On failure the error is
// recorded on failure, which is returned so the transaction rolls back.
func (c *Coordinator) step(ctx context.Context, failure *RestockError, step Step, fn func(ctx context.Context) error) error {
	failure.Step = step

	ctx, cancel := context.WithTimeout(ctx, c.timeouts.Step)
	defer cancel()
	ctx, span := tracer.Start(ctx, "inventory.restock."+string(step))
	defer span.End()

	if err := fn(ctx); err != nil {
		if !errors.IsAppError(err) {
			err = errors.Storage(err, fmt.Sprintf("restock step %s failed", step))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, string(step))
		failure.Err = err
		return failure
	}

	c.logger.Debug().
		Str("step", string(step)).
		Str("position_id", failure.PositionID).
		Str("batch_id", failure.BatchID).
		Msg("restock step completed")
	return nil
}

func (c *Coordinator) fail(span trace.Span, log *logger.Logger, failure *RestockError) error {
	span.RecordError(failure)
	span.SetStatus(codes.Error, string(failure.Step))

	event := log.Error()
	if failure.Step == StepValidate {
		event = log.Warn()
	}
	event.Err(failure.Err).
		Str("step", string(failure.Step)).
		Str("position_id", failure.PositionID).
		Str("batch_id", failure.BatchID).
		Bool("position_created", failure.PositionCreated).
		Bool("rolled_back", failure.RolledBack).
		Msg("restock failed")
	return failure
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

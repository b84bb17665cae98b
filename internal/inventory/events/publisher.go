package events

import (
	"context"

	"github.com/stockwise/stockwise-backend/internal/inventory/repository"
	"github.com/stockwise/stockwise-backend/pkg/httputil"
	"github.com/stockwise/stockwise-backend/pkg/logger"
	"github.com/stockwise/stockwise-backend/pkg/messaging"
)

// Source identifies this service on published events
const Source = "inventory-service"

// Sender publishes one event. *messaging.Publisher satisfies it.
type Sender interface {
	Publish(ctx context.Context, eventType string, data interface{}) error
}

// InventoryEventPublisher publishes ledger events after their transaction commits.
// A nil publisher is valid and drops everything, which is how publishing is disabled.
type InventoryEventPublisher struct {
	sender Sender
	logger *logger.Logger
}

// NewInventoryEventPublisher declares the inventory exchange and returns a publisher on it
func NewInventoryEventPublisher(rmq *messaging.RabbitMQ, log *logger.Logger) (*InventoryEventPublisher, error) {
	publisher, err := messaging.NewPublisher(rmq, messaging.ExchangeInventoryEvents, Source, log)
	if err != nil {
		return nil, err
	}
	return NewWithSender(publisher, log), nil
}

// NewWithSender creates a publisher on an arbitrary sender
func NewWithSender(sender Sender, log *logger.Logger) *InventoryEventPublisher {
	return &InventoryEventPublisher{
		sender: sender,
		logger: log.WithComponent("events"),
	}
}

// BatchRestocked publishes a batch restocked event
func (p *InventoryEventPublisher) BatchRestocked(ctx context.Context, pos *repository.Position, batch *repository.Batch, positionCreated bool, performedBy string) {
	if p == nil {
		return
	}

	data := messaging.BatchRestockedEvent{
		PositionID:      pos.ID,
		ProductID:       pos.ProductID,
		BranchID:        pos.BranchID,
		BatchID:         batch.ID,
		BatchNumber:     batch.BatchNumber,
		Quantity:        batch.Quantity,
		CostPerUnit:     batch.CostPerUnit.StringFixed(2),
		ExpirationDate:  batch.ExpirationDate,
		NewQuantity:     pos.Quantity,
		PositionCreated: positionCreated,
		PerformedBy:     performedBy,
	}

	p.publish(ctx, messaging.EventBatchRestocked, data, batch.ID)
}

// BatchRetired publishes a batch retired event
func (p *InventoryEventPublisher) BatchRetired(ctx context.Context, pos *repository.Position, batch *repository.Batch, reason, performedBy string) {
	if p == nil {
		return
	}

	data := messaging.BatchRetiredEvent{
		PositionID:  pos.ID,
		BatchID:     batch.ID,
		BatchNumber: batch.BatchNumber,
		Quantity:    batch.Quantity,
		NewQuantity: pos.Quantity,
		Reason:      reason,
		PerformedBy: performedBy,
	}

	p.publish(ctx, messaging.EventBatchRetired, data, batch.ID)
}

// StockLow publishes a low stock event
func (p *InventoryEventPublisher) StockLow(ctx context.Context, pos *repository.Position) {
	if p == nil {
		return
	}

	data := messaging.StockLowEvent{
		PositionID:        pos.ID,
		ProductID:         pos.ProductID,
		BranchID:          pos.BranchID,
		AvailableQuantity: pos.AvailableQuantity(),
		Threshold:         pos.LowStockThreshold,
	}

	p.publish(ctx, messaging.EventStockLow, data, pos.ID)
}

func (p *InventoryEventPublisher) publish(ctx context.Context, eventType string, data interface{}, subjectID string) {
	log := p.logger
	if requestID := httputil.GetRequestID(ctx); requestID != "" {
		ctx = messaging.WithCorrelationID(ctx, requestID)
		log = log.WithRequestID(requestID)
	}

	// The ledger change is already committed; a lost event is logged, not returned.
	if err := p.sender.Publish(ctx, eventType, data); err != nil {
		log.Error().Err(err).
			Str("event_type", eventType).
			Str("subject_id", subjectID).
			Msg("failed to publish inventory event")
	}
}

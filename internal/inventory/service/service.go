// Package service implements the batch ledger: FIFO batch listings, the restock
// transaction and expired batch retirement.
package service

import (
	"context"

	"github.com/stockwise/stockwise-backend/internal/inventory/repository"
	"github.com/stockwise/stockwise-backend/pkg/actor"
	"github.com/stockwise/stockwise-backend/pkg/calendar"
	"github.com/stockwise/stockwise-backend/pkg/config"
	"github.com/stockwise/stockwise-backend/pkg/logger"
)

// Config holds the ledger's business rules
type Config struct {
	ExpiringWindowDays int
	Defaults           PositionDefaults
	Timeouts           Timeouts
}

// ConfigFrom maps the inventory configuration section
func ConfigFrom(cfg config.InventoryConfig) Config {
	return Config{
		ExpiringWindowDays: cfg.ExpiringWindowDays,
		Defaults: PositionDefaults{
			LowStockThreshold: cfg.DefaultLowStockThreshold,
			LocationTag:       cfg.DefaultLocationTag,
		},
		Timeouts: Timeouts{
			Operation: cfg.RestockTimeout,
			Step:      cfg.StepTimeout,
		},
	}
}

// Stores groups the persistence dependencies
type Stores struct {
	Tx        Transactor
	Positions PositionStore
	Batches   BatchStore
	Movements MovementStore
	History   RestockHistoryStore
}

// InventoryService is the entry point used by the HTTP handlers
type InventoryService struct {
	stores      Stores
	ledger      *Ledger
	resolver    *Resolver
	coordinator *Coordinator
	retirement  *Retirement
	logger      *logger.Logger
}

// NewInventoryService wires the ledger components together
func NewInventoryService(stores Stores, events EventPublisher, cal *calendar.Calendar, cfg Config, log *logger.Logger) *InventoryService {
	ledger := NewLedger(stores.Positions, stores.Batches, cal, cfg.ExpiringWindowDays)
	resolver := NewResolver(stores.Positions, cfg.Defaults)
	validator := NewValidator(cal, stores.Batches)

	return &InventoryService{
		stores:   stores,
		ledger:   ledger,
		resolver: resolver,
		coordinator: NewCoordinator(
			stores.Tx, validator, resolver,
			stores.Positions, stores.Batches, stores.Movements, stores.History,
			events, cal, cfg.Timeouts, log,
		),
		retirement: NewRetirement(
			stores.Tx, ledger,
			stores.Positions, stores.Batches, stores.Movements,
			events, cfg.Timeouts, log,
		),
		logger: log,
	}
}

// Restock records a received batch
func (s *InventoryService) Restock(ctx context.Context, in RestockInput, by *actor.Actor) (*RestockResult, error) {
	return s.coordinator.Restock(ctx, in, by)
}

// RetireBatch removes an expired batch
func (s *InventoryService) RetireBatch(ctx context.Context, batchID string, by *actor.Actor, reason string) (*RetirementResult, error) {
	return s.retirement.Retire(ctx, batchID, by, reason)
}

// ListBatches lists a position's active batches in FIFO order
func (s *InventoryService) ListBatches(ctx context.Context, positionID string) ([]AnnotatedBatch, error) {
	return s.ledger.ListActiveBatches(ctx, positionID)
}

// GetPosition gets a position by ID
func (s *InventoryService) GetPosition(ctx context.Context, id string) (*repository.Position, error) {
	return s.stores.Positions.GetByID(ctx, id)
}

// LookupPosition finds the position for a product at a branch without creating it
func (s *InventoryService) LookupPosition(ctx context.Context, productID, branchID string) (*repository.Position, error) {
	return s.resolver.Lookup(ctx, productID, branchID)
}

// ListMovements lists a position's movements, newest first
func (s *InventoryService) ListMovements(ctx context.Context, positionID string, limit, offset int) ([]*repository.Movement, error) {
	if _, err := s.stores.Positions.GetByID(ctx, positionID); err != nil {
		return nil, err
	}
	return s.stores.Movements.ListByPosition(ctx, positionID, limit, offset)
}

// ListRestockHistory lists a position's restocks, newest first
func (s *InventoryService) ListRestockHistory(ctx context.Context, positionID string, limit, offset int) ([]*repository.RestockRecord, error) {
	if _, err := s.stores.Positions.GetByID(ctx, positionID); err != nil {
		return nil, err
	}
	return s.stores.History.ListByPosition(ctx, positionID, limit, offset)
}

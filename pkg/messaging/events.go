package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	EventBatchRestocked = "inventory.batch.restocked"
	EventBatchRetired   = "inventory.batch.retired"
	EventStockLow       = "inventory.stock.low"
)

// ExchangeInventoryEvents is the topic exchange all inventory events go to
const ExchangeInventoryEvents = "inventory.events"

// Event is the envelope every message is wrapped in
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            uuid.New().String(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// BatchRestockedEvent is published after a restock commits
type BatchRestockedEvent struct {
	PositionID      string    `json:"position_id"`
	ProductID       string    `json:"product_id"`
	BranchID        string    `json:"branch_id"`
	BatchID         string    `json:"batch_id"`
	BatchNumber     string    `json:"batch_number"`
	Quantity        int       `json:"quantity"`
	CostPerUnit     string    `json:"cost_per_unit"`
	ExpirationDate  time.Time `json:"expiration_date"`
	NewQuantity     int       `json:"new_quantity"`
	PositionCreated bool      `json:"position_created"`
	PerformedBy     string    `json:"performed_by"`
}

// BatchRetiredEvent is published after an expired batch is retired
type BatchRetiredEvent struct {
	PositionID  string `json:"position_id"`
	BatchID     string `json:"batch_id"`
	BatchNumber string `json:"batch_number"`
	Quantity    int    `json:"quantity"`
	NewQuantity int    `json:"new_quantity"`
	Reason      string `json:"reason"`
	PerformedBy string `json:"performed_by"`
}

// StockLowEvent is published when available quantity drops below the position's threshold
type StockLowEvent struct {
	PositionID        string `json:"position_id"`
	ProductID         string `json:"product_id"`
	BranchID          string `json:"branch_id"`
	AvailableQuantity int    `json:"available_quantity"`
	Threshold         int    `json:"threshold"`
}

package repository

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Batch statuses
const (
	BatchStatusActive  = "active"
	BatchStatusRemoved = "removed"
)

// Movement types
const (
	MovementRestock = "restock"
	MovementRetire  = "retire"
)

// Position is the stock of one product at one branch (table inventory).
// It is the aggregate root batches, movements and restock history hang off.
type Position struct {
	ID                string          `db:"id" json:"id"`
	ProductID         string          `db:"product_id" json:"product_id"`
	BranchID          string          `db:"branch_id" json:"branch_id"`
	Quantity          int             `db:"quantity" json:"quantity"`
	ReservedQuantity  int             `db:"reserved_quantity" json:"reserved_quantity"`
	LowStockThreshold int             `db:"low_stock_threshold" json:"low_stock_threshold"`
	MinStockLevel     int             `db:"min_stock_level" json:"min_stock_level"`
	MaxStockLevel     *int            `db:"max_stock_level" json:"max_stock_level,omitempty"`
	CostPerUnit       decimal.Decimal `db:"cost_per_unit" json:"cost_per_unit"`
	LastRestockedAt   *time.Time      `db:"last_restocked_at" json:"last_restocked_at,omitempty"`
	LocationTag       string          `db:"location_tag" json:"location_tag"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at" json:"updated_at"`
}

// AvailableQuantity is on-hand minus reserved. Never stored.
func (p *Position) AvailableQuantity() int {
	return p.Quantity - p.ReservedQuantity
}

// IsLowStock reports whether available stock is under the position's threshold
func (p *Position) IsLowStock() bool {
	return p.AvailableQuantity() < p.LowStockThreshold
}

// MarshalJSON adds the derived available_quantity
func (p Position) MarshalJSON() ([]byte, error) {
	type alias Position
	return json.Marshal(struct {
		alias
		AvailableQuantity int `json:"available_quantity"`
	}{alias(p), p.AvailableQuantity()})
}

// SupplierInfo is the supplier detail stored as JSONB on batches and history rows
type SupplierInfo struct {
	Contact          string `json:"contact,omitempty"`
	Email            string `json:"email,omitempty"`
	PurchaseOrderRef string `json:"purchase_order_ref,omitempty"`
}

// Value implements driver.Valuer
func (s SupplierInfo) Value() (driver.Value, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner
func (s *SupplierInfo) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*s = SupplierInfo{}
		return nil
	case []byte:
		return json.Unmarshal(v, s)
	case string:
		return json.Unmarshal([]byte(v), s)
	default:
		return fmt.Errorf("supplier_info: unsupported type %T", src)
	}
}

// Batch is a dated, cost-bearing lot of stock (table product_batches).
// Quantity is fixed at creation; retirement only flips status.
type Batch struct {
	ID             string          `db:"id" json:"id"`
	InventoryID    string          `db:"inventory_id" json:"inventory_id"`
	BatchNumber    string          `db:"batch_number" json:"batch_number"`
	Quantity       int             `db:"quantity" json:"quantity"`
	ReceivedDate   time.Time       `db:"received_date" json:"received_date"`
	ExpirationDate time.Time       `db:"expiration_date" json:"expiration_date"`
	CostPerUnit    decimal.Decimal `db:"cost_per_unit" json:"cost_per_unit"`
	SupplierName   string          `db:"supplier_name" json:"supplier_name"`
	SupplierInfo   SupplierInfo    `db:"supplier_info" json:"supplier_info"`
	Status         string          `db:"status" json:"status"`
	IsActive       bool            `db:"is_active" json:"is_active"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
}

// Movement is an append-only change to a position's on-hand quantity (table inventory_movements).
// QuantityAfter always equals QuantityBefore + Quantity.
type Movement struct {
	ID             string    `db:"id" json:"id"`
	InventoryID    string    `db:"inventory_id" json:"inventory_id"`
	MovementType   string    `db:"movement_type" json:"movement_type"`
	Quantity       int       `db:"quantity" json:"quantity"`
	QuantityBefore int       `db:"quantity_before" json:"quantity_before"`
	QuantityAfter  int       `db:"quantity_after" json:"quantity_after"`
	BatchID        *string   `db:"batch_id" json:"batch_id,omitempty"`
	Notes          *string   `db:"notes" json:"notes,omitempty"`
	PerformedBy    string    `db:"performed_by" json:"performed_by"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// RestockRecord is the audit row written for every restock (table restock_history)
type RestockRecord struct {
	ID               string          `db:"id" json:"id"`
	InventoryID      string          `db:"inventory_id" json:"inventory_id"`
	BatchID          string          `db:"batch_id" json:"batch_id"`
	Quantity         int             `db:"quantity" json:"quantity"`
	CostPerUnit      decimal.Decimal `db:"cost_per_unit" json:"cost_per_unit"`
	SupplierName     string          `db:"supplier_name" json:"supplier_name"`
	SupplierInfo     SupplierInfo    `db:"supplier_info" json:"supplier_info"`
	PurchaseOrderRef *string         `db:"purchase_order_ref" json:"purchase_order_ref,omitempty"`
	ReceivedDate     time.Time       `db:"received_date" json:"received_date"`
	PerformedBy      string          `db:"performed_by" json:"performed_by"`
	Notes            *string         `db:"notes" json:"notes,omitempty"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
}

package testutil

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/stockwise/stockwise-backend/pkg/actor"
	"github.com/stockwise/stockwise-backend/pkg/permissions"
)

// RestockPayload mirrors the JSON body of a restock request
type RestockPayload struct {
	ProductID        string `json:"product_id"`
	BranchID         string `json:"branch_id"`
	Quantity         int    `json:"quantity"`
	CostPerUnit      string `json:"cost_per_unit"`
	ExpirationDate   string `json:"expiration_date"`
	ReceivedDate     string `json:"received_date"`
	SupplierName     string `json:"supplier_name"`
	SupplierContact  string `json:"supplier_contact,omitempty"`
	SupplierEmail    string `json:"supplier_email,omitempty"`
	BatchNumber      string `json:"batch_number"`
	PurchaseOrderRef string `json:"purchase_order_ref,omitempty"`
	Notes            string `json:"notes,omitempty"`
}

// FixtureFactory creates test fixtures with sensible defaults
type FixtureFactory struct {
	sequence atomic.Int64
}

// NewFixtureFactory creates a new fixture factory
func NewFixtureFactory() *FixtureFactory {
	return &FixtureFactory{}
}

func (f *FixtureFactory) nextSeq() int64 {
	return f.sequence.Add(1)
}

// BatchNumber returns a batch number unique within the factory
func (f *FixtureFactory) BatchNumber() string {
	return fmt.Sprintf("B-%05d", f.nextSeq())
}

// Restock creates a valid restock payload received on today (a date string in YYYY-MM-DD form)
func (f *FixtureFactory) Restock(today string, opts ...func(*RestockPayload)) RestockPayload {
	received, err := time.Parse(time.DateOnly, today)
	if err != nil {
		panic(err)
	}

	p := RestockPayload{
		ProductID:      uuid.New().String(),
		BranchID:       uuid.New().String(),
		Quantity:       20,
		CostPerUnit:    "15.00",
		ReceivedDate:   received.Format(time.DateOnly),
		ExpirationDate: received.AddDate(0, 6, 0).Format(time.DateOnly),
		SupplierName:   "Acme Supply Co.",
		BatchNumber:    f.BatchNumber(),
	}

	for _, opt := range opts {
		opt(&p)
	}
	return p
}

// WithQuantity sets the restock quantity
func WithQuantity(q int) func(*RestockPayload) {
	return func(p *RestockPayload) {
		p.Quantity = q
	}
}

// WithBatchNumber sets the batch number
func WithBatchNumber(n string) func(*RestockPayload) {
	return func(p *RestockPayload) {
		p.BatchNumber = n
	}
}

// WithPosition sets product and branch
func WithPosition(productID, branchID string) func(*RestockPayload) {
	return func(p *RestockPayload) {
		p.ProductID = productID
		p.BranchID = branchID
	}
}

// InventoryManager returns an actor allowed to restock and retire
func InventoryManager() *actor.Actor {
	return &actor.Actor{
		ID:          uuid.New().String(),
		Email:       "manager@stockwise.test",
		Name:        "Inventory Manager",
		Role:        "inventory_manager",
		Permissions: []string{"inventory.*"},
	}
}

// Clerk returns an actor that may read and restock but not retire batches
func Clerk() *actor.Actor {
	return &actor.Actor{
		ID:          uuid.New().String(),
		Email:       "clerk@stockwise.test",
		Name:        "Stock Clerk",
		Role:        "clerk",
		Permissions: []string{permissions.InventoryRead, permissions.InventoryRestock},
	}
}

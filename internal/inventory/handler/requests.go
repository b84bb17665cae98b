package handler

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stockwise/stockwise-backend/internal/inventory/service"
	"github.com/stockwise/stockwise-backend/pkg/errors"
)

// RestockRequest is the body of POST /restocks.
// Dates are calendar dates (YYYY-MM-DD) in the business timezone.
type RestockRequest struct {
	ProductID        string          `json:"product_id"`
	BranchID         string          `json:"branch_id"`
	Quantity         int             `json:"quantity"`
	CostPerUnit      decimal.Decimal `json:"cost_per_unit"`
	ExpirationDate   string          `json:"expiration_date"`
	ReceivedDate     string          `json:"received_date"`
	SupplierName     string          `json:"supplier_name"`
	SupplierContact  string          `json:"supplier_contact"`
	SupplierEmail    string          `json:"supplier_email"`
	BatchNumber      string          `json:"batch_number"`
	PurchaseOrderRef string          `json:"purchase_order_ref"`
	Notes            string          `json:"notes"`
}

// toInput converts the request, parsing dates in loc. Empty dates stay zero so
// the ordered restock rules report them.
func (req RestockRequest) toInput(loc *time.Location) (service.RestockInput, error) {
	expiration, err := parseDate("expiration_date", req.ExpirationDate, loc)
	if err != nil {
		return service.RestockInput{}, err
	}
	received, err := parseDate("received_date", req.ReceivedDate, loc)
	if err != nil {
		return service.RestockInput{}, err
	}

	return service.RestockInput{
		ProductID:        req.ProductID,
		BranchID:         req.BranchID,
		Quantity:         req.Quantity,
		CostPerUnit:      req.CostPerUnit,
		ExpirationDate:   expiration,
		ReceivedDate:     received,
		SupplierName:     req.SupplierName,
		SupplierContact:  req.SupplierContact,
		SupplierEmail:    req.SupplierEmail,
		BatchNumber:      req.BatchNumber,
		PurchaseOrderRef: req.PurchaseOrderRef,
		Notes:            req.Notes,
	}, nil
}

func parseDate(field, value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation(time.DateOnly, value, loc)
	if err != nil {
		return time.Time{}, errors.FieldValidation(field, "must be a date in YYYY-MM-DD format")
	}
	return t, nil
}

// RetireRequest is the body of POST /batches/{id}/retire
type RetireRequest struct {
	Reason string `json:"reason" validate:"required"`
}

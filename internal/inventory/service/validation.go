package service

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"github.com/stockwise/stockwise-backend/pkg/calendar"
	"github.com/stockwise/stockwise-backend/pkg/errors"
	"github.com/stockwise/stockwise-backend/pkg/httputil"
)

// Restock bounds
const (
	MaxRestockQuantity   = 1_000_000
	MaxShelfLifeYears    = 5
	MaxReceivedAgeYears  = 1
	MaxSupplierNameRunes = 255
	MaxRetireReasonRunes = 500
)

// MaxCostPerUnit is the largest accepted unit cost
var MaxCostPerUnit = decimal.NewFromInt(1_000_000)

// RestockInput is one restock request. Dates are business calendar dates.
type RestockInput struct {
	ProductID        string
	BranchID         string
	Quantity         int
	CostPerUnit      decimal.Decimal
	ExpirationDate   time.Time
	ReceivedDate     time.Time
	SupplierName     string
	SupplierContact  string
	SupplierEmail    string
	BatchNumber      string
	PurchaseOrderRef string
	Notes            string
}

// normalized trims free text fields and pins both dates to their civil date in
// the business timezone, so validation and storage judge the same day.
func (in RestockInput) normalized(cal *calendar.Calendar) RestockInput {
	if !in.ReceivedDate.IsZero() {
		in.ReceivedDate = cal.Date(in.ReceivedDate)
	}
	if !in.ExpirationDate.IsZero() {
		in.ExpirationDate = cal.Date(in.ExpirationDate)
	}
	in.ProductID = strings.TrimSpace(in.ProductID)
	in.BranchID = strings.TrimSpace(in.BranchID)
	in.SupplierName = strings.TrimSpace(in.SupplierName)
	in.SupplierContact = strings.TrimSpace(in.SupplierContact)
	in.SupplierEmail = strings.TrimSpace(in.SupplierEmail)
	in.BatchNumber = strings.TrimSpace(in.BatchNumber)
	in.PurchaseOrderRef = strings.TrimSpace(in.PurchaseOrderRef)
	in.Notes = strings.TrimSpace(in.Notes)
	return in
}

// BatchNumberChecker reports whether a batch number is already taken
type BatchNumberChecker interface {
	BatchNumberExists(ctx context.Context, batchNumber string) (bool, error)
}

// Validator checks a restock request before anything is written.
// Rules run in a fixed order and the first failure is returned.
type Validator struct {
	cal     *calendar.Calendar
	batches BatchNumberChecker
}

// NewValidator creates a validator. batches may be nil to skip the store check.
func NewValidator(cal *calendar.Calendar, batches BatchNumberChecker) *Validator {
	return &Validator{cal: cal, batches: batches}
}

// ValidateRestock applies every restock rule to in
func (v *Validator) ValidateRestock(ctx context.Context, in RestockInput) error {
	in = in.normalized(v.cal)

	rules := []func() error{
		func() error { return httputil.ValidateVar("product_id", in.ProductID, "required,uuid") },
		func() error { return httputil.ValidateVar("branch_id", in.BranchID, "required,uuid") },
		func() error { return validateQuantity(in.Quantity) },
		func() error { return validateCost(in.CostPerUnit) },
		func() error { return v.validateExpiration(in.ExpirationDate, in.ReceivedDate) },
		func() error { return v.validateReceived(in.ReceivedDate) },
		func() error { return validateSupplierName(in.SupplierName) },
		func() error { return v.validateBatchNumber(ctx, in.BatchNumber) },
		func() error { return httputil.ValidateVar("supplier_email", in.SupplierEmail, "omitempty,email") },
	}
	for _, rule := range rules {
		if err := rule(); err != nil {
			return err
		}
	}
	return nil
}

func validateQuantity(qty int) error {
	if qty <= 0 {
		return errors.FieldValidation("quantity", "must be greater than 0")
	}
	if qty > MaxRestockQuantity {
		return errors.FieldValidation("quantity", "must be at most 1000000")
	}
	return nil
}

func validateCost(cost decimal.Decimal) error {
	if cost.IsNegative() {
		return errors.FieldValidation("cost_per_unit", "must not be negative")
	}
	if cost.GreaterThan(MaxCostPerUnit) {
		return errors.FieldValidation("cost_per_unit", "must be at most 1000000")
	}
	return nil
}

func (v *Validator) validateExpiration(expiration, received time.Time) error {
	if expiration.IsZero() {
		return errors.FieldValidation("expiration_date", "this field is required")
	}
	// Without a received date there is nothing to compare against; the next rule reports it.
	if received.IsZero() {
		return nil
	}
	if calendar.DaysBetween(received, expiration) <= 0 {
		return errors.FieldValidation("expiration_date", "must be after the received date")
	}
	if calendar.DaysBetween(calendar.AddYears(received, MaxShelfLifeYears), expiration) > 0 {
		return errors.FieldValidation("expiration_date", "must be within 5 years of the received date")
	}
	return nil
}

func (v *Validator) validateReceived(received time.Time) error {
	if received.IsZero() {
		return errors.FieldValidation("received_date", "this field is required")
	}
	today := v.cal.Today()
	if calendar.DaysBetween(today, received) > 0 {
		return errors.FieldValidation("received_date", "must not be in the future")
	}
	if calendar.DaysBetween(received, calendar.AddYears(today, -MaxReceivedAgeYears)) > 0 {
		return errors.FieldValidation("received_date", "must not be more than 1 year in the past")
	}
	return nil
}

func validateSupplierName(name string) error {
	if name == "" {
		return errors.FieldValidation("supplier_name", "this field is required")
	}
	if utf8.RuneCountInString(name) > MaxSupplierNameRunes {
		return errors.FieldValidation("supplier_name", "must be at most 255 characters")
	}
	return nil
}

func (v *Validator) validateBatchNumber(ctx context.Context, number string) error {
	if number == "" {
		return errors.FieldValidation("batch_number", "this field is required")
	}
	if v.batches == nil {
		return nil
	}
	exists, err := v.batches.BatchNumberExists(ctx, number)
	if err != nil {
		return err
	}
	if exists {
		return errors.Conflict("batch number " + number + " already exists")
	}
	return nil
}

// ValidateRetireReason checks a retirement reason and returns it trimmed
func ValidateRetireReason(reason string) (string, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return "", errors.FieldValidation("reason", "this field is required")
	}
	if utf8.RuneCountInString(reason) > MaxRetireReasonRunes {
		return "", errors.FieldValidation("reason", "must be at most 500 characters")
	}
	return reason, nil
}

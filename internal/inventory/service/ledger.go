package service

import (
	"context"
	"sort"
	"time"

	"github.com/stockwise/stockwise-backend/internal/inventory/repository"
	"github.com/stockwise/stockwise-backend/pkg/calendar"
)

// ExpirationStatus classifies a batch by days remaining until it expires
type ExpirationStatus string

const (
	StatusFresh    ExpirationStatus = "fresh"
	StatusExpiring ExpirationStatus = "expiring"
	StatusExpired  ExpirationStatus = "expired"
)

// DefaultExpiringWindowDays is how many days ahead a batch counts as expiring
const DefaultExpiringWindowDays = 7

// AnnotatedBatch is a batch with the values derived at read time
type AnnotatedBatch struct {
	*repository.Batch
	DaysUntilExpiration int              `json:"days_until_expiration"`
	ExpirationStatus    ExpirationStatus `json:"expiration_status"`
	PriorityOrder       int              `json:"priority_order"`
}

// DaysUntil returns whole calendar days from today to expiration.
// The expiration DATE is taken at face value, today is already a business date.
func DaysUntil(expiration, today time.Time) int {
	return calendar.DaysBetween(today, expiration)
}

// StatusFor classifies days remaining. Today counts as expiring, not expired.
func StatusFor(days, window int) ExpirationStatus {
	switch {
	case days < 0:
		return StatusExpired
	case days <= window:
		return StatusExpiring
	default:
		return StatusFresh
	}
}

// SortFIFO orders batches in place: earliest expiration first, then oldest row, then id.
func SortFIFO(batches []*repository.Batch) {
	sort.SliceStable(batches, func(i, j int) bool {
		a, b := batches[i], batches[j]
		if !a.ExpirationDate.Equal(b.ExpirationDate) {
			return a.ExpirationDate.Before(b.ExpirationDate)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

// Annotate sorts a copy of batches FIFO and derives status and priority against today.
// The input slice is not reordered.
func Annotate(batches []*repository.Batch, today time.Time, window int) []AnnotatedBatch {
	ordered := make([]*repository.Batch, len(batches))
	copy(ordered, batches)
	SortFIFO(ordered)

	result := make([]AnnotatedBatch, len(ordered))
	for i, b := range ordered {
		days := DaysUntil(b.ExpirationDate, today)
		result[i] = AnnotatedBatch{
			Batch:               b,
			DaysUntilExpiration: days,
			ExpirationStatus:    StatusFor(days, window),
			PriorityOrder:       i + 1,
		}
	}
	return result
}

// Ledger serves annotated batch listings
type Ledger struct {
	positions PositionStore
	batches   BatchStore
	cal       *calendar.Calendar
	window    int
}

// NewLedger creates a ledger. A non-positive window falls back to the default.
func NewLedger(positions PositionStore, batches BatchStore, cal *calendar.Calendar, window int) *Ledger {
	if window <= 0 {
		window = DefaultExpiringWindowDays
	}
	return &Ledger{positions: positions, batches: batches, cal: cal, window: window}
}

// ListActiveBatches returns the position's active batches in consumption order.
// An empty position yields an empty list; an unknown position is NotFound.
func (l *Ledger) ListActiveBatches(ctx context.Context, positionID string) ([]AnnotatedBatch, error) {
	if _, err := l.positions.GetByID(ctx, positionID); err != nil {
		return nil, err
	}

	batches, err := l.batches.ListActiveByPosition(ctx, positionID)
	if err != nil {
		return nil, err
	}

	return Annotate(batches, l.cal.Today(), l.window), nil
}

// Status classifies a single batch against the current business date
func (l *Ledger) Status(b *repository.Batch) (int, ExpirationStatus) {
	days := DaysUntil(b.ExpirationDate, l.cal.Today())
	return days, StatusFor(days, l.window)
}

package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stockwise/stockwise-backend/internal/inventory/repository"
	"github.com/stockwise/stockwise-backend/pkg/database"
	"github.com/stockwise/stockwise-backend/pkg/errors"
)

type memTxKey struct{}

// memStore is an in-memory ledger store. Transactions are serialized and roll
// back by restoring a snapshot, which is enough to observe atomicity.
type memStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	positions map[string]repository.Position
	batches   map[string]repository.Batch
	movements []repository.Movement
	history   []repository.RestockRecord

	seq       int
	writes    int
	fail      map[string]error
	commitErr error
	onInsert  func(p *repository.Position) (handled bool, created bool)
	onFind    func()
	onLock    func(ctx context.Context) error
	finds     int
}

func newMemStore() *memStore {
	return &memStore{
		positions: map[string]repository.Position{},
		batches:   map[string]repository.Batch{},
		fail:      map[string]error{},
	}
}

type memSnapshot struct {
	positions map[string]repository.Position
	batches   map[string]repository.Batch
	movements []repository.Movement
	history   []repository.RestockRecord
	writes    int
}

func (s *memStore) snapshot() memSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := memSnapshot{
		positions: make(map[string]repository.Position, len(s.positions)),
		batches:   make(map[string]repository.Batch, len(s.batches)),
		movements: append([]repository.Movement(nil), s.movements...),
		history:   append([]repository.RestockRecord(nil), s.history...),
		writes:    s.writes,
	}
	for k, v := range s.positions {
		snap.positions[k] = v
	}
	for k, v := range s.batches {
		snap.batches[k] = v
	}
	return snap
}

func (s *memStore) restore(snap memSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions = snap.positions
	s.batches = snap.batches
	s.movements = snap.movements
	s.history = snap.history
	s.writes = snap.writes
}

func (s *memStore) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(memTxKey{}) != nil {
		return fn(ctx)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	snap := s.snapshot()
	if err := fn(context.WithValue(ctx, memTxKey{}, true)); err != nil {
		s.restore(snap)
		return err
	}
	if s.commitErr != nil {
		s.restore(snap)
		return &database.CommitError{Err: s.commitErr}
	}
	return nil
}

func (s *memStore) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%04d", prefix, s.seq)
}

func (s *memStore) failure(op string) error {
	return s.fail[op]
}

func (s *memStore) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

func (s *memStore) stores() Stores {
	return Stores{
		Tx:        s,
		Positions: memPositions{s},
		Batches:   memBatches{s},
		Movements: memMovements{s},
		History:   memHistory{s},
	}
}

type memPositions struct{ s *memStore }

func (r memPositions) GetByID(_ context.Context, id string) (*repository.Position, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.positions[id]
	if !ok {
		return nil, errors.NotFound("inventory position")
	}
	return &p, nil
}

func (r memPositions) FindByProductBranch(_ context.Context, productID, branchID string) (*repository.Position, error) {
	if r.s.onFind != nil {
		r.s.onFind()
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.finds++
	for _, p := range r.s.positions {
		if p.ProductID == productID && p.BranchID == branchID {
			return &p, nil
		}
	}
	return nil, errors.NotFound("inventory position")
}

func (r memPositions) LockByID(ctx context.Context, id string) (*repository.Position, error) {
	if r.s.onLock != nil {
		if err := r.s.onLock(ctx); err != nil {
			return nil, err
		}
	}
	return r.GetByID(ctx, id)
}

func (r memPositions) InsertIfAbsent(_ context.Context, p *repository.Position) (bool, error) {
	if r.s.onInsert != nil {
		if handled, created := r.s.onInsert(p); handled {
			return created, nil
		}
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("positions.insert"); err != nil {
		return false, err
	}
	for _, existing := range r.s.positions {
		if existing.ProductID == p.ProductID && existing.BranchID == p.BranchID {
			return false, nil
		}
	}
	if p.ID == "" {
		p.ID = r.s.nextID("pos")
	}
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	r.s.positions[p.ID] = *p
	r.s.writes++
	return true, nil
}

func (r memPositions) ApplyRestock(_ context.Context, id string, delta int, cost decimal.Decimal, at time.Time) (*repository.Position, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("positions.apply"); err != nil {
		return nil, err
	}
	p, ok := r.s.positions[id]
	if !ok {
		return nil, errors.NotFound("inventory position")
	}
	p.Quantity += delta
	p.CostPerUnit = cost
	p.LastRestockedAt = &at
	p.UpdatedAt = at
	r.s.positions[id] = p
	r.s.writes++
	return &p, nil
}

func (r memPositions) AdjustQuantity(_ context.Context, id string, delta int) (*repository.Position, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.positions[id]
	if !ok {
		return nil, errors.NotFound("inventory position")
	}
	if p.Quantity+delta < 0 {
		return nil, errors.Precondition("insufficient stock: quantity on hand cannot become negative")
	}
	p.Quantity += delta
	r.s.positions[id] = p
	r.s.writes++
	return &p, nil
}

// setQuantity changes on-hand stock out of band, as another consumer of the table would
func (s *memStore) setQuantity(id string, qty int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.positions[id]
	p.Quantity = qty
	s.positions[id] = p
}

type memBatches struct{ s *memStore }

func (r memBatches) Create(_ context.Context, b *repository.Batch) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("batches.create"); err != nil {
		return err
	}
	for _, existing := range r.s.batches {
		if existing.BatchNumber == b.BatchNumber {
			return errors.Conflict("a batch with this batch number already exists")
		}
	}
	if b.ID == "" {
		b.ID = r.s.nextID("batch")
	}
	// Distinct creation instants keep FIFO ties deterministic.
	b.CreatedAt = time.Date(2024, 1, 1, 0, 0, r.s.seq, 0, time.UTC)
	b.UpdatedAt = b.CreatedAt
	r.s.batches[b.ID] = *b
	r.s.writes++
	return nil
}

func (r memBatches) GetByID(_ context.Context, id string) (*repository.Batch, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.batches[id]
	if !ok {
		return nil, errors.NotFound("batch")
	}
	return &b, nil
}

func (r memBatches) LockByID(ctx context.Context, id string) (*repository.Batch, error) {
	if r.s.onLock != nil {
		if err := r.s.onLock(ctx); err != nil {
			return nil, err
		}
	}
	return r.GetByID(ctx, id)
}

func (r memBatches) ListActiveByPosition(_ context.Context, positionID string) ([]*repository.Batch, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	result := []*repository.Batch{}
	for _, b := range r.s.batches {
		if b.InventoryID == positionID && b.IsActive {
			b := b
			result = append(result, &b)
		}
	}
	// Map iteration order is random; callers must not depend on store order.
	sort.Slice(result, func(i, j int) bool { return result[i].ID > result[j].ID })
	return result, nil
}

func (r memBatches) BatchNumberExists(_ context.Context, number string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("batches.exists"); err != nil {
		return false, err
	}
	for _, b := range r.s.batches {
		if b.BatchNumber == number {
			return true, nil
		}
	}
	return false, nil
}

func (r memBatches) Retire(_ context.Context, id string) (*repository.Batch, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.batches[id]
	if !ok || !b.IsActive {
		return nil, errors.Precondition("batch is not active")
	}
	b.IsActive = false
	b.Status = repository.BatchStatusRemoved
	r.s.batches[id] = b
	r.s.writes++
	return &b, nil
}

type memMovements struct{ s *memStore }

func (r memMovements) Create(_ context.Context, m *repository.Movement) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("movements.create"); err != nil {
		return err
	}
	m.ID = r.s.nextID("mov")
	m.CreatedAt = time.Now()
	r.s.movements = append(r.s.movements, *m)
	r.s.writes++
	return nil
}

func (r memMovements) ListByPosition(_ context.Context, positionID string, limit, offset int) ([]*repository.Movement, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	result := []*repository.Movement{}
	for i := len(r.s.movements) - 1; i >= 0; i-- {
		if m := r.s.movements[i]; m.InventoryID == positionID {
			result = append(result, &m)
		}
	}
	return page(result, limit, offset), nil
}

type memHistory struct{ s *memStore }

func (r memHistory) Create(_ context.Context, rec *repository.RestockRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("history.create"); err != nil {
		return err
	}
	rec.ID = r.s.nextID("hist")
	rec.CreatedAt = time.Now()
	r.s.history = append(r.s.history, *rec)
	r.s.writes++
	return nil
}

func (r memHistory) ListByPosition(_ context.Context, positionID string, limit, offset int) ([]*repository.RestockRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	result := []*repository.RestockRecord{}
	for i := len(r.s.history) - 1; i >= 0; i-- {
		if rec := r.s.history[i]; rec.InventoryID == positionID {
			result = append(result, &rec)
		}
	}
	return page(result, limit, offset), nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return items[:0]
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

type recordingEvents struct {
	mu     sync.Mutex
	events []string
}

func (e *recordingEvents) record(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, name)
}

func (e *recordingEvents) names() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.events...)
}

func (e *recordingEvents) BatchRestocked(_ context.Context, _ *repository.Position, b *repository.Batch, _ bool, _ string) {
	e.record("restocked:" + b.BatchNumber)
}

func (e *recordingEvents) BatchRetired(_ context.Context, _ *repository.Position, b *repository.Batch, _, _ string) {
	e.record("retired:" + b.BatchNumber)
}

func (e *recordingEvents) StockLow(_ context.Context, p *repository.Position) {
	e.record("stock_low:" + p.ID)
}

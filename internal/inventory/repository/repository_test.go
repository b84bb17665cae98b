package repository_test

import (
	"context"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stockwise/stockwise-backend/internal/inventory/repository"
	"github.com/stockwise/stockwise-backend/pkg/errors"
	"github.com/stockwise/stockwise-backend/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var positionCols = []string{
	"id", "product_id", "branch_id", "quantity", "reserved_quantity", "low_stock_threshold",
	"min_stock_level", "max_stock_level", "cost_per_unit", "last_restocked_at", "location_tag",
	"created_at", "updated_at",
}

var batchCols = []string{
	"id", "inventory_id", "batch_number", "quantity", "received_date", "expiration_date",
	"cost_per_unit", "supplier_name", "supplier_info", "status", "is_active", "created_at", "updated_at",
}

var now = time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)

func positionValues(id string, qty int) []driver.Value {
	return []driver.Value{
		id, "prod-1", "branch-1", qty, 0, 10, 0, nil, "15.00", now, "main", now, now,
	}
}

func batchValues(id, number string, expiration time.Time, created time.Time) []driver.Value {
	return []driver.Value{
		id, "pos-1", number, 20, now, expiration, "15.00", "Acme",
		[]byte(`{"contact":"Ana","email":"ana@acme.test","purchase_order_ref":"PO-1"}`),
		"active", true, created, created,
	}
}

func newMock(t *testing.T) *testutil.MockDB {
	t.Helper()
	m := testutil.NewMockDB(t)
	t.Cleanup(func() {
		m.ExpectationsWereMet(t)
		m.Close()
	})
	return m
}

// --- Position Repository ---

func TestPositionRepository_InsertIfAbsent(t *testing.T) {
	t.Run("creates row", func(t *testing.T) {
		m := newMock(t)
		repo := repository.NewPositionRepository(m.Database())

		m.Mock.ExpectQuery(`INSERT INTO inventory .* ON CONFLICT \(product_id, branch_id\) DO NOTHING`).
			WithArgs(testutil.AnyUUID{}, "prod-1", "branch-1", 0, 0, 10, 0, nil, sqlmock.AnyArg(), "main").
			WillReturnRows(testutil.MockRows("created_at", "updated_at").AddRow(now, now))

		p := &repository.Position{ProductID: "prod-1", BranchID: "branch-1", LowStockThreshold: 10, LocationTag: "main"}
		created, err := repo.InsertIfAbsent(context.Background(), p)
		require.NoError(t, err)
		assert.True(t, created)
		assert.NotEmpty(t, p.ID)
		assert.Equal(t, now, p.CreatedAt)
	})

	t.Run("existing row is left alone", func(t *testing.T) {
		m := newMock(t)
		repo := repository.NewPositionRepository(m.Database())

		m.Mock.ExpectQuery(`INSERT INTO inventory`).
			WillReturnRows(testutil.MockRows("created_at", "updated_at"))

		created, err := repo.InsertIfAbsent(context.Background(), &repository.Position{ProductID: "prod-1", BranchID: "branch-1"})
		require.NoError(t, err)
		assert.False(t, created)
	})
}

func TestPositionRepository_GetByID(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		m := newMock(t)
		repo := repository.NewPositionRepository(m.Database())

		m.Mock.ExpectQuery(`SELECT .* FROM inventory WHERE id = \$1`).
			WithArgs("pos-1").
			WillReturnRows(testutil.MockRows(positionCols...).AddRow(positionValues("pos-1", 50)...))

		p, err := repo.GetByID(context.Background(), "pos-1")
		require.NoError(t, err)
		assert.Equal(t, 50, p.Quantity)
		assert.Equal(t, 50, p.AvailableQuantity())
		assert.True(t, decimal.RequireFromString("15").Equal(p.CostPerUnit))
		assert.Nil(t, p.MaxStockLevel)
	})

	t.Run("not found", func(t *testing.T) {
		m := newMock(t)
		repo := repository.NewPositionRepository(m.Database())

		m.Mock.ExpectQuery(`SELECT .* FROM inventory WHERE id = \$1`).
			WithArgs("missing").
			WillReturnRows(testutil.MockRows(positionCols...))

		_, err := repo.GetByID(context.Background(), "missing")
		assert.True(t, errors.Is(err, errors.ErrNotFound))
	})

	t.Run("store failure is retryable storage error", func(t *testing.T) {
		m := newMock(t)
		repo := repository.NewPositionRepository(m.Database())

		m.Mock.ExpectQuery(`SELECT .* FROM inventory`).WillReturnError(assert.AnError)

		_, err := repo.GetByID(context.Background(), "pos-1")
		assert.True(t, errors.Is(err, errors.ErrStorage))
	})
}

func TestPositionRepository_LockByID(t *testing.T) {
	m := newMock(t)
	repo := repository.NewPositionRepository(m.Database())

	m.Mock.ExpectQuery(`SELECT .* FROM inventory WHERE id = \$1 FOR UPDATE`).
		WithArgs("pos-1").
		WillReturnRows(testutil.MockRows(positionCols...).AddRow(positionValues("pos-1", 50)...))

	p, err := repo.LockByID(context.Background(), "pos-1")
	require.NoError(t, err)
	assert.Equal(t, "pos-1", p.ID)
}

func TestPositionRepository_LockAndApplyShareTransaction(t *testing.T) {
	t.Run("commits", func(t *testing.T) {
		m := newMock(t)
		db := m.Database()
		repo := repository.NewPositionRepository(db)

		m.ExpectBegin()
		m.ExpectQuery(`FOR UPDATE`).
			WithArgs("pos-1").
			WillReturnRows(testutil.MockRows(positionCols...).AddRow(positionValues("pos-1", 50)...))
		m.ExpectQuery(`UPDATE inventory SET`).
			WithArgs("pos-1", 20, sqlmock.AnyArg(), testutil.AnyTime{}).
			WillReturnRows(testutil.MockRows(positionCols...).AddRow(positionValues("pos-1", 70)...))
		m.ExpectCommit()

		err := db.WithinTx(context.Background(), func(ctx context.Context) error {
			if _, err := repo.LockByID(ctx, "pos-1"); err != nil {
				return err
			}
			_, err := repo.ApplyRestock(ctx, "pos-1", 20, decimal.RequireFromString("15.00"), now)
			return err
		})
		require.NoError(t, err)
	})

	t.Run("rolls back on failure", func(t *testing.T) {
		m := newMock(t)
		db := m.Database()
		repo := repository.NewPositionRepository(db)

		m.ExpectBegin()
		m.ExpectQuery(`FOR UPDATE`).
			WithArgs("pos-1").
			WillReturnError(context.DeadlineExceeded)
		m.ExpectRollback()

		err := db.WithinTx(context.Background(), func(ctx context.Context) error {
			_, err := repo.LockByID(ctx, "pos-1")
			return err
		})
		require.Error(t, err)
	})
}

func TestPositionRepository_ApplyRestock(t *testing.T) {
	m := newMock(t)
	repo := repository.NewPositionRepository(m.Database())

	m.Mock.ExpectQuery(`UPDATE inventory SET\s+quantity = quantity \+ \$2,\s+cost_per_unit = \$3,\s+last_restocked_at = \$4`).
		WithArgs("pos-1", 20, sqlmock.AnyArg(), testutil.AnyTime{}).
		WillReturnRows(testutil.MockRows(positionCols...).AddRow(positionValues("pos-1", 70)...))

	p, err := repo.ApplyRestock(context.Background(), "pos-1", 20, decimal.RequireFromString("15.00"), now)
	require.NoError(t, err)
	assert.Equal(t, 70, p.Quantity)
}

func TestPositionRepository_AdjustQuantity_BelowZero(t *testing.T) {
	m := newMock(t)
	repo := repository.NewPositionRepository(m.Database())

	m.Mock.ExpectQuery(`UPDATE inventory SET\s+quantity = quantity \+ \$2`).
		WithArgs("pos-1", -30).
		WillReturnError(&pq.Error{Code: "23514", Constraint: "inventory_quantity_non_negative"})

	_, err := repo.AdjustQuantity(context.Background(), "pos-1", -30)
	assert.True(t, errors.Is(err, errors.ErrPrecondition))
}

// --- Batch Repository ---

func TestBatchRepository_Create(t *testing.T) {
	t.Run("defaults to active", func(t *testing.T) {
		m := newMock(t)
		repo := repository.NewBatchRepository(m.Database())

		m.Mock.ExpectQuery(`INSERT INTO product_batches`).
			WithArgs(testutil.AnyUUID{}, "pos-1", "B-001", 20, testutil.AnyTime{}, testutil.AnyTime{},
				sqlmock.AnyArg(), "Acme", `{"email":"ana@acme.test"}`, "active", true).
			WillReturnRows(testutil.MockRows("created_at", "updated_at").AddRow(now, now))

		b := &repository.Batch{
			InventoryID:    "pos-1",
			BatchNumber:    "B-001",
			Quantity:       20,
			ReceivedDate:   now,
			ExpirationDate: now.AddDate(0, 6, 0),
			CostPerUnit:    decimal.RequireFromString("15.00"),
			SupplierName:   "Acme",
			SupplierInfo:   repository.SupplierInfo{Email: "ana@acme.test"},
		}
		require.NoError(t, repo.Create(context.Background(), b))
		assert.True(t, b.IsActive)
		assert.Equal(t, repository.BatchStatusActive, b.Status)
	})

	t.Run("duplicate batch number is a conflict", func(t *testing.T) {
		m := newMock(t)
		repo := repository.NewBatchRepository(m.Database())

		m.Mock.ExpectQuery(`INSERT INTO product_batches`).
			WillReturnError(&pq.Error{Code: "23505", Constraint: "product_batches_batch_number_key"})

		err := repo.Create(context.Background(), &repository.Batch{InventoryID: "pos-1", BatchNumber: "B-DUP"})
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrConflict))
		assert.Contains(t, err.Error(), "batch number")
	})
}

func TestBatchRepository_ListActiveByPosition(t *testing.T) {
	m := newMock(t)
	repo := repository.NewBatchRepository(m.Database())

	feb := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	mar := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	m.Mock.ExpectQuery(`WHERE inventory_id = \$1 AND is_active = true\s+ORDER BY expiration_date, created_at, id`).
		WithArgs("pos-1").
		WillReturnRows(testutil.MockRows(batchCols...).
			AddRow(batchValues("b1", "B-FEB", feb, now)...).
			AddRow(batchValues("b2", "B-MAR", mar, now)...))

	batches, err := repo.ListActiveByPosition(context.Background(), "pos-1")
	require.NoError(t, err)
	require.Len(t, batches, 2)
	assert.Equal(t, "B-FEB", batches[0].BatchNumber)
	assert.Equal(t, "Ana", batches[0].SupplierInfo.Contact)
	assert.Equal(t, "PO-1", batches[0].SupplierInfo.PurchaseOrderRef)
}

func TestBatchRepository_ListActiveByPosition_Empty(t *testing.T) {
	m := newMock(t)
	repo := repository.NewBatchRepository(m.Database())

	m.Mock.ExpectQuery(`FROM product_batches`).WillReturnRows(testutil.MockRows(batchCols...))

	batches, err := repo.ListActiveByPosition(context.Background(), "pos-1")
	require.NoError(t, err)
	assert.NotNil(t, batches)
	assert.Empty(t, batches)
}

func TestBatchRepository_BatchNumberExists(t *testing.T) {
	m := newMock(t)
	repo := repository.NewBatchRepository(m.Database())

	m.Mock.ExpectQuery(`SELECT EXISTS`).WithArgs("B-DUP").
		WillReturnRows(testutil.MockRows("exists").AddRow(true))

	exists, err := repo.BatchNumberExists(context.Background(), "B-DUP")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestBatchRepository_Retire(t *testing.T) {
	t.Run("active batch", func(t *testing.T) {
		m := newMock(t)
		repo := repository.NewBatchRepository(m.Database())

		values := batchValues("b1", "B-001", now, now)
		values[9], values[10] = "removed", false
		m.Mock.ExpectQuery(`UPDATE product_batches SET\s+is_active = false,\s+status = 'removed'`).
			WithArgs("b1").
			WillReturnRows(testutil.MockRows(batchCols...).AddRow(values...))

		b, err := repo.Retire(context.Background(), "b1")
		require.NoError(t, err)
		assert.False(t, b.IsActive)
		assert.Equal(t, repository.BatchStatusRemoved, b.Status)
		assert.Equal(t, 20, b.Quantity)
	})

	t.Run("already removed", func(t *testing.T) {
		m := newMock(t)
		repo := repository.NewBatchRepository(m.Database())

		m.Mock.ExpectQuery(`UPDATE product_batches`).WithArgs("b1").
			WillReturnRows(testutil.MockRows(batchCols...))

		_, err := repo.Retire(context.Background(), "b1")
		assert.True(t, errors.Is(err, errors.ErrPrecondition))
	})
}

// --- Movement and Restock History Repositories ---

func TestMovementRepository_Create(t *testing.T) {
	m := newMock(t)
	repo := repository.NewMovementRepository(m.Database())

	batchID := "b1"
	m.Mock.ExpectQuery(`INSERT INTO inventory_movements`).
		WithArgs(testutil.AnyUUID{}, "pos-1", repository.MovementRestock, 20, 50, 70, &batchID, nil, "user-1").
		WillReturnRows(testutil.MockRows("created_at").AddRow(now))

	mv := &repository.Movement{
		InventoryID:    "pos-1",
		MovementType:   repository.MovementRestock,
		Quantity:       20,
		QuantityBefore: 50,
		QuantityAfter:  70,
		BatchID:        &batchID,
		PerformedBy:    "user-1",
	}
	require.NoError(t, repo.Create(context.Background(), mv))
	assert.Equal(t, now, mv.CreatedAt)
}

func TestMovementRepository_ListByPosition(t *testing.T) {
	m := newMock(t)
	repo := repository.NewMovementRepository(m.Database())

	m.Mock.ExpectQuery(`FROM inventory_movements\s+WHERE inventory_id = \$1\s+ORDER BY created_at DESC, id DESC\s+LIMIT \$2 OFFSET \$3`).
		WithArgs("pos-1", 50, 0).
		WillReturnRows(testutil.MockRows("id", "inventory_id", "movement_type", "quantity", "quantity_before",
			"quantity_after", "batch_id", "notes", "performed_by", "created_at").
			AddRow("m1", "pos-1", "retire", -20, 70, 50, "b1", "expired", "user-1", now))

	movements, err := repo.ListByPosition(context.Background(), "pos-1", 50, 0)
	require.NoError(t, err)
	require.Len(t, movements, 1)
	assert.Equal(t, movements[0].QuantityBefore+movements[0].Quantity, movements[0].QuantityAfter)
	assert.Equal(t, "expired", *movements[0].Notes)
}

func TestRestockHistoryRepository_Create(t *testing.T) {
	m := newMock(t)
	repo := repository.NewRestockHistoryRepository(m.Database())

	m.Mock.ExpectQuery(`INSERT INTO restock_history`).
		WillReturnRows(testutil.MockRows("created_at").AddRow(now))

	rec := &repository.RestockRecord{
		InventoryID:  "pos-1",
		BatchID:      "b1",
		Quantity:     20,
		CostPerUnit:  decimal.RequireFromString("15.00"),
		SupplierName: "Acme",
		ReceivedDate: now,
		PerformedBy:  "user-1",
	}
	require.NoError(t, repo.Create(context.Background(), rec))
	assert.NotEmpty(t, rec.ID)
}

func TestRestockHistoryRepository_ListByPosition_Timeout(t *testing.T) {
	m := newMock(t)
	repo := repository.NewRestockHistoryRepository(m.Database())

	m.Mock.ExpectQuery(`FROM restock_history`).
		WithArgs("pos-1", 10, 0).
		WillReturnError(context.DeadlineExceeded)

	_, err := repo.ListByPosition(context.Background(), "pos-1", 10, 0)
	assert.True(t, errors.Is(err, errors.ErrStorage))
	assert.Contains(t, err.Error(), "timed out")
}

package repository

// Migrations returns the idempotent DDL for the inventory ledger tables, in order.
func Migrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS inventory (
			id UUID PRIMARY KEY,
			product_id UUID NOT NULL,
			branch_id UUID NOT NULL,
			quantity INTEGER NOT NULL DEFAULT 0,
			reserved_quantity INTEGER NOT NULL DEFAULT 0,
			low_stock_threshold INTEGER NOT NULL DEFAULT 10,
			min_stock_level INTEGER NOT NULL DEFAULT 0,
			max_stock_level INTEGER,
			cost_per_unit NUMERIC(14, 4) NOT NULL DEFAULT 0,
			last_restocked_at TIMESTAMPTZ,
			location_tag VARCHAR(100) NOT NULL DEFAULT 'main',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT inventory_product_branch_key UNIQUE (product_id, branch_id),
			CONSTRAINT inventory_quantity_non_negative CHECK (quantity >= 0),
			CONSTRAINT inventory_reserved_non_negative CHECK (reserved_quantity >= 0)
		)`,
		`CREATE TABLE IF NOT EXISTS product_batches (
			id UUID PRIMARY KEY,
			inventory_id UUID NOT NULL REFERENCES inventory(id),
			batch_number VARCHAR(100) NOT NULL,
			quantity INTEGER NOT NULL,
			received_date DATE NOT NULL,
			expiration_date DATE NOT NULL,
			cost_per_unit NUMERIC(14, 4) NOT NULL,
			supplier_name VARCHAR(255) NOT NULL,
			supplier_info JSONB NOT NULL DEFAULT '{}',
			status VARCHAR(20) NOT NULL DEFAULT 'active',
			is_active BOOLEAN NOT NULL DEFAULT true,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT product_batches_batch_number_key UNIQUE (batch_number),
			CONSTRAINT product_batches_batch_quantity_positive CHECK (quantity > 0),
			CONSTRAINT product_batches_expiration_after_received CHECK (expiration_date > received_date),
			CONSTRAINT product_batches_status_valid CHECK (status IN ('active', 'removed'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_product_batches_fifo
			ON product_batches (inventory_id, expiration_date, created_at, id)
			WHERE is_active`,
		`CREATE TABLE IF NOT EXISTS inventory_movements (
			id UUID PRIMARY KEY,
			inventory_id UUID NOT NULL REFERENCES inventory(id),
			movement_type VARCHAR(20) NOT NULL,
			quantity INTEGER NOT NULL,
			quantity_before INTEGER NOT NULL,
			quantity_after INTEGER NOT NULL,
			batch_id UUID REFERENCES product_batches(id),
			notes TEXT,
			performed_by VARCHAR(64) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT inventory_movements_type_valid CHECK (movement_type IN ('restock', 'retire')),
			CONSTRAINT inventory_movements_balance CHECK (quantity_after = quantity_before + quantity)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_inventory_movements_position
			ON inventory_movements (inventory_id, created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS restock_history (
			id UUID PRIMARY KEY,
			inventory_id UUID NOT NULL REFERENCES inventory(id),
			batch_id UUID NOT NULL REFERENCES product_batches(id),
			quantity INTEGER NOT NULL,
			cost_per_unit NUMERIC(14, 4) NOT NULL,
			supplier_name VARCHAR(255) NOT NULL,
			supplier_info JSONB NOT NULL DEFAULT '{}',
			purchase_order_ref VARCHAR(100),
			received_date DATE NOT NULL,
			performed_by VARCHAR(64) NOT NULL,
			notes TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_restock_history_position
			ON restock_history (inventory_id, created_at DESC)`,
	}
}

package pgorders

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS senders (
  phone TEXT PRIMARY KEY,
  org_id BIGINT NOT NULL,
  display_name TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMPTZ NOT NULL
)`,
		`
CREATE TABLE IF NOT EXISTS package_counters (
  org_id BIGINT PRIMARY KEY,
  value BIGINT NOT NULL
)`,
		`
CREATE TABLE IF NOT EXISTS orders (
  id BIGSERIAL PRIMARY KEY,
  org_id BIGINT NOT NULL,
  package_number TEXT NOT NULL,
  customer_name TEXT NOT NULL,
  status TEXT NOT NULL,
  tracking_number TEXT NULL,
  order_number TEXT NULL,
  seller TEXT NULL,
  declared_value_cents BIGINT NOT NULL DEFAULT 0,
  duty_cents BIGINT NOT NULL DEFAULT 0,
  vat_cents BIGINT NOT NULL DEFAULT 0,
  total_fees_cents BIGINT NOT NULL DEFAULT 0,
  extraction_error TEXT NULL,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL,
  UNIQUE (org_id, package_number)
)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_org_id_created_at ON orders(org_id, created_at DESC)`,
		`
CREATE TABLE IF NOT EXISTS order_items (
  id BIGSERIAL PRIMARY KEY,
  order_id BIGINT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
  description TEXT NOT NULL DEFAULT '',
  hs_code TEXT NOT NULL DEFAULT '',
  quantity INT NOT NULL DEFAULT 1,
  unit_value_cents BIGINT NOT NULL DEFAULT 0,
  total_value_cents BIGINT NOT NULL DEFAULT 0
)`,
		`CREATE INDEX IF NOT EXISTS idx_order_items_order_id ON order_items(order_id)`,
		`
CREATE TABLE IF NOT EXISTS order_attachments (
  id BIGSERIAL PRIMARY KEY,
  order_id BIGINT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
  storage_url TEXT NOT NULL,
  content_type TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_order_attachments_order_id ON order_attachments(order_id)`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}

package pgorders

import (
	"context"
	"time"

	"github.com/BearBump/ParcelDesk/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

// NextPackageNumber атомарно выдаёт следующий номер счётчика организации.
// Один UPSERT вместо "прочитать последние заказы и прибавить" — та схема
// гонится при параллельных коммитах. Пропуски в нумерации допустимы,
// дубликаты — нет.
func (s *Storage) NextPackageNumber(ctx context.Context, orgID uint64) (int64, error) {
	var n int64
	err := s.db.QueryRow(ctx, `
INSERT INTO package_counters (org_id, value)
VALUES ($1, 1)
ON CONFLICT (org_id)
DO UPDATE SET value = package_counters.value + 1
RETURNING value
`, orgID).Scan(&n)
	if err != nil {
		return 0, errors.Wrap(err, "next package number")
	}
	return n, nil
}

// CreateOrder persists the order with its items and attachment references in
// one transaction.
func (s *Storage) CreateOrder(ctx context.Context, in models.OrderCreateInput) (*models.Order, error) {
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var id uint64
	err = tx.QueryRow(ctx, `
INSERT INTO orders (
  org_id, package_number, customer_name, status,
  tracking_number, order_number, seller,
  declared_value_cents, duty_cents, vat_cents, total_fees_cents,
  extraction_error, created_at, updated_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$13)
RETURNING id
`, in.OrgID, in.PackageNumber, in.CustomerName, models.OrderStatusPendingReview,
		in.TrackingNumber, in.OrderNumber, in.Seller,
		in.DeclaredValueCents, in.DutyCents, in.VATCents, in.TotalFeesCents,
		in.ExtractionError, now).Scan(&id)
	if err != nil {
		return nil, errors.Wrap(err, "insert order")
	}

	for _, it := range in.Items {
		_, err := tx.Exec(ctx, `
INSERT INTO order_items (order_id, description, hs_code, quantity, unit_value_cents, total_value_cents)
VALUES ($1,$2,$3,$4,$5,$6)
`, id, it.Description, it.HSCode, it.Quantity, it.UnitValueCents, it.TotalValueCents)
		if err != nil {
			return nil, errors.Wrap(err, "insert order item")
		}
	}

	for _, a := range in.Attachments {
		_, err := tx.Exec(ctx, `
INSERT INTO order_attachments (order_id, storage_url, content_type, created_at)
VALUES ($1,$2,$3,$4)
`, id, a.StorageURL, a.ContentType, now)
		if err != nil {
			return nil, errors.Wrap(err, "insert order attachment")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}

	return s.GetOrderByID(ctx, id)
}

func (s *Storage) GetOrderByID(ctx context.Context, id uint64) (*models.Order, error) {
	var o models.Order
	err := s.db.QueryRow(ctx, `
SELECT
  id, org_id, package_number, customer_name, status,
  tracking_number, order_number, seller,
  declared_value_cents, duty_cents, vat_cents, total_fees_cents,
  extraction_error, created_at, updated_at
FROM orders
WHERE id = $1
`, id).Scan(
		&o.ID, &o.OrgID, &o.PackageNumber, &o.CustomerName, &o.Status,
		&o.TrackingNumber, &o.OrderNumber, &o.Seller,
		&o.DeclaredValueCents, &o.DutyCents, &o.VATCents, &o.TotalFeesCents,
		&o.ExtractionError, &o.CreatedAt, &o.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "select order")
	}

	rows, err := s.db.Query(ctx, `
SELECT id, order_id, description, hs_code, quantity, unit_value_cents, total_value_cents
FROM order_items
WHERE order_id = $1
ORDER BY id
`, id)
	if err != nil {
		return nil, errors.Wrap(err, "select order items")
	}
	defer rows.Close()
	for rows.Next() {
		var it models.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.Description, &it.HSCode, &it.Quantity, &it.UnitValueCents, &it.TotalValueCents); err != nil {
			return nil, errors.Wrap(err, "scan order item")
		}
		o.Items = append(o.Items, it)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}

	arows, err := s.db.Query(ctx, `
SELECT id, order_id, storage_url, content_type, created_at
FROM order_attachments
WHERE order_id = $1
ORDER BY id
`, id)
	if err != nil {
		return nil, errors.Wrap(err, "select order attachments")
	}
	defer arows.Close()
	for arows.Next() {
		var a models.OrderAttachment
		if err := arows.Scan(&a.ID, &a.OrderID, &a.StorageURL, &a.ContentType, &a.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan order attachment")
		}
		o.Attachments = append(o.Attachments, a)
	}
	if arows.Err() != nil {
		return nil, errors.Wrap(arows.Err(), "rows")
	}

	return &o, nil
}

// ApplyReviewStatus меняет статус заказа. Статус — единственное изменяемое
// поле заказа; источник изменений — review-пайплайн.
func (s *Storage) ApplyReviewStatus(ctx context.Context, orderID uint64, status string) error {
	tag, err := s.db.Exec(ctx, `
UPDATE orders SET status = $2, updated_at = now() WHERE id = $1
`, orderID, status)
	if err != nil {
		return errors.Wrap(err, "update order status")
	}
	if tag.RowsAffected() == 0 {
		return errors.Errorf("order %d not found", orderID)
	}
	return nil
}

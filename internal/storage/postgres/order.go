package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/dyorwellness/storefront/internal/domain/order"
)

const orderColumns = `id, order_number, customer_email, items, subtotal, discount_amount, discount_code,
	shipping_cost, tax, total, status, payment_status, payment_method, payment_reference,
	tracking_number, carrier, created_at, updated_at, shipped_at, delivered_at`

const (
	// Order and first history entry go in one statement so the pair is
	// atomic even outside a unit of work.
	createOrderSQL = `WITH inserted AS (
		INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		RETURNING id
	)
	INSERT INTO order_status_history (order_id, status, note, created_at)
	SELECT id, $21, $22, $23 FROM inserted`

	getOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE order_number = $1`

	updateOrderStatusSQL = `WITH updated AS (
		UPDATE orders SET
			status = $2, payment_status = $3, tracking_number = $4, carrier = $5,
			shipped_at = $6, delivered_at = $7, updated_at = $8
		WHERE order_number = $1 AND status = $9
		RETURNING id
	)
	INSERT INTO order_status_history (order_id, status, note, created_at)
	SELECT id, $10, $11, $12 FROM updated`

	updateOrderTrackingSQL = `WITH updated AS (
		UPDATE orders SET tracking_number = $2, carrier = $3, updated_at = $4
		WHERE order_number = $1 AND status = $5
		RETURNING id
	)
	INSERT INTO order_status_history (order_id, status, note, created_at)
	SELECT id, $5, $6, $7 FROM updated`

	orderExistsSQL = `SELECT EXISTS (SELECT 1 FROM orders WHERE order_number = $1)`

	orderHistorySQL = `SELECT status, created_at, note FROM order_status_history
		WHERE order_id = $1 ORDER BY id`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	db DBTX
}

// NewOrderRepository returns an OrderRepository over db.
func NewOrderRepository(db DBTX) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create persists a new order and its first history entry. The order items
// are serialized to JSON for storage in the JSONB column.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order, first order.HistoryEntry) error {
	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return errors.Wrap(err, "marshal order items")
	}

	trackingNumber, carrier := trackingColumns(o)
	_, err = r.db.Exec(ctx, createOrderSQL,
		o.ID, o.Number, o.CustomerEmail, itemsJSON, o.Subtotal, o.DiscountAmount, o.DiscountCode,
		o.ShippingCost, o.Tax, o.Total, string(o.Status), string(o.PaymentStatus), o.PaymentMethod, o.PaymentReference,
		trackingNumber, carrier, o.CreatedAt, o.UpdatedAt, o.ShippedAt, o.DeliveredAt,
		string(first.Status), first.Note, first.At,
	)
	if err != nil {
		return errors.Wrapf(err, "create order %q", o.Number)
	}
	return nil
}

// Get returns the order with the given number.
func (r *OrderRepository) Get(ctx context.Context, number string) (*order.Order, error) {
	rows, err := r.db.Query(ctx, getOrderSQL, number)
	if err != nil {
		return nil, errors.Wrapf(err, "get order %q", number)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get order %q", number)
	}
	return &o, nil
}

// UpdateStatus persists the lifecycle fields of o while its stored status
// is still prev.
func (r *OrderRepository) UpdateStatus(ctx context.Context, o *order.Order, prev order.Status, entry order.HistoryEntry) error {
	trackingNumber, carrier := trackingColumns(o)
	tag, err := r.db.Exec(ctx, updateOrderStatusSQL,
		o.Number, string(o.Status), string(o.PaymentStatus), trackingNumber, carrier,
		o.ShippedAt, o.DeliveredAt, o.UpdatedAt, string(prev),
		string(entry.Status), entry.Note, entry.At,
	)
	if err != nil {
		return errors.Wrapf(err, "update order %q status", o.Number)
	}
	if tag.RowsAffected() == 0 {
		return r.missOrConflict(ctx, o.Number)
	}
	return nil
}

// UpdateTracking persists the tracking details of o while it is still in
// the same status.
func (r *OrderRepository) UpdateTracking(ctx context.Context, o *order.Order, entry order.HistoryEntry) error {
	trackingNumber, carrier := trackingColumns(o)
	tag, err := r.db.Exec(ctx, updateOrderTrackingSQL,
		o.Number, trackingNumber, carrier, o.UpdatedAt, string(o.Status),
		entry.Note, entry.At,
	)
	if err != nil {
		return errors.Wrapf(err, "update order %q tracking", o.Number)
	}
	if tag.RowsAffected() == 0 {
		return r.missOrConflict(ctx, o.Number)
	}
	return nil
}

func (r *OrderRepository) missOrConflict(ctx context.Context, number string) error {
	var exists bool
	if err := r.db.QueryRow(ctx, orderExistsSQL, number).Scan(&exists); err != nil {
		return errors.Wrap(err, "check order")
	}
	if !exists {
		return order.ErrNotFound
	}
	return order.ErrConflict
}

// History returns the status history of an order, oldest first.
func (r *OrderRepository) History(ctx context.Context, orderID string) ([]order.HistoryEntry, error) {
	rows, err := r.db.Query(ctx, orderHistorySQL, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "get order history")
	}
	h, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.HistoryEntry, error) {
		var (
			e      order.HistoryEntry
			status string
		)
		err := row.Scan(&status, &e.At, &e.Note)
		e.Status = order.Status(status)
		return e, err
	})
	if err != nil {
		return nil, errors.Wrap(err, "get order history")
	}
	return h, nil
}

// List returns orders matching f, newest first.
func (r *OrderRepository) List(ctx context.Context, f order.ListFilter) ([]order.Order, error) {
	var (
		sb   strings.Builder
		args []any
	)
	sb.WriteString(`SELECT ` + orderColumns + ` FROM orders`)
	if f.Status != "" {
		args = append(args, string(f.Status))
		fmt.Fprintf(&sb, " WHERE status = $%d", len(args))
	}
	sb.WriteString(" ORDER BY created_at DESC")
	if f.Limit > 0 {
		args = append(args, f.Limit, f.Offset)
		fmt.Fprintf(&sb, " LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}

	rows, err := r.db.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return orders, nil
}

func trackingColumns(o *order.Order) (number, carrier *string) {
	if o.Tracking == nil {
		return nil, nil
	}
	return &o.Tracking.Number, &o.Tracking.Carrier
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o                       order.Order
		itemsJSON               []byte
		status, paymentStatus   string
		trackingNumber, carrier *string
		shippedAt, deliveredAt  *time.Time
	)
	err := row.Scan(
		&o.ID, &o.Number, &o.CustomerEmail, &itemsJSON, &o.Subtotal, &o.DiscountAmount, &o.DiscountCode,
		&o.ShippingCost, &o.Tax, &o.Total, &status, &paymentStatus, &o.PaymentMethod, &o.PaymentReference,
		&trackingNumber, &carrier, &o.CreatedAt, &o.UpdatedAt, &shippedAt, &deliveredAt,
	)
	if err != nil {
		return o, err
	}
	if err := json.Unmarshal(itemsJSON, &o.Items); err != nil {
		return o, errors.Wrap(err, "unmarshal order items")
	}

	o.Status = order.Status(status)
	o.PaymentStatus = order.PaymentStatus(paymentStatus)
	o.ShippedAt = shippedAt
	o.DeliveredAt = deliveredAt
	if trackingNumber != nil && carrier != nil {
		o.Tracking = &order.Tracking{Number: *trackingNumber, Carrier: *carrier}
	}
	return o, nil
}

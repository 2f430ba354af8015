package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/dyorwellness/storefront/internal/domain/affiliate"
)

const commissionColumns = `id, order_id, order_number, discount_code_id, code, affiliate_name, affiliate_email,
	order_total, commission_rate, commission, status, created_at, approved_at, paid_at, cancelled_at`

const (
	insertCommissionSQL = `INSERT INTO affiliate_orders (` + commissionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	getCommissionSQL = `SELECT ` + commissionColumns + ` FROM affiliate_orders WHERE id = $1`

	// Amount and rate are never written after insert.
	updateCommissionStatusSQL = `UPDATE affiliate_orders
		SET status = $2, approved_at = $3, paid_at = $4, cancelled_at = $5
		WHERE id = $1 AND status = $6`

	commissionExistsSQL = `SELECT EXISTS (SELECT 1 FROM affiliate_orders WHERE id = $1)`
)

var _ affiliate.Repository = (*CommissionRepository)(nil)

// CommissionRepository implements affiliate.Repository backed by PostgreSQL.
type CommissionRepository struct {
	db DBTX
}

// NewCommissionRepository returns a CommissionRepository over db.
func NewCommissionRepository(db DBTX) *CommissionRepository {
	return &CommissionRepository{db: db}
}

func (r *CommissionRepository) Create(ctx context.Context, c *affiliate.Commission) error {
	_, err := r.db.Exec(ctx, insertCommissionSQL,
		c.ID, c.OrderID, c.OrderNumber, c.DiscountCodeID, c.Code, c.AffiliateName, c.AffiliateEmail,
		c.OrderTotal, c.CommissionRate, c.Amount, string(c.Status), c.CreatedAt,
		c.ApprovedAt, c.PaidAt, c.CancelledAt,
	)
	if err != nil {
		return errors.Wrapf(err, "insert commission for order %q", c.OrderNumber)
	}
	return nil
}

func (r *CommissionRepository) Get(ctx context.Context, id string) (*affiliate.Commission, error) {
	rows, err := r.db.Query(ctx, getCommissionSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get commission %q", id)
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanCommission)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, affiliate.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get commission %q", id)
	}
	return &c, nil
}

func (r *CommissionRepository) UpdateStatus(ctx context.Context, c *affiliate.Commission, prev affiliate.Status) error {
	tag, err := r.db.Exec(ctx, updateCommissionStatusSQL,
		c.ID, string(c.Status), c.ApprovedAt, c.PaidAt, c.CancelledAt, string(prev),
	)
	if err != nil {
		return errors.Wrapf(err, "update commission %q", c.ID)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRow(ctx, commissionExistsSQL, c.ID).Scan(&exists); err != nil {
		return errors.Wrap(err, "check commission")
	}
	if !exists {
		return affiliate.ErrNotFound
	}
	return affiliate.ErrConflict
}

func (r *CommissionRepository) List(ctx context.Context, f affiliate.Filter) ([]affiliate.Commission, error) {
	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.Code != "" {
		args = append(args, f.Code)
		where = append(where, fmt.Sprintf("UPPER(code) = UPPER($%d)", len(args)))
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		args = append(args, "%"+q+"%")
		n := len(args)
		where = append(where, fmt.Sprintf("(affiliate_name ILIKE $%d OR affiliate_email ILIKE $%d OR order_number ILIKE $%d)", n, n, n))
	}

	var sb strings.Builder
	sb.WriteString(`SELECT ` + commissionColumns + ` FROM affiliate_orders`)
	if len(where) > 0 {
		sb.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	sb.WriteString(" ORDER BY created_at DESC")
	if f.Limit > 0 {
		args = append(args, f.Limit, f.Offset)
		fmt.Fprintf(&sb, " LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}

	rows, err := r.db.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, errors.Wrap(err, "list commissions")
	}
	out, err := pgx.CollectRows(rows, scanCommission)
	if err != nil {
		return nil, errors.Wrap(err, "list commissions")
	}
	return out, nil
}

func scanCommission(row pgx.CollectableRow) (affiliate.Commission, error) {
	var (
		c      affiliate.Commission
		status string
	)
	err := row.Scan(
		&c.ID, &c.OrderID, &c.OrderNumber, &c.DiscountCodeID, &c.Code, &c.AffiliateName, &c.AffiliateEmail,
		&c.OrderTotal, &c.CommissionRate, &c.Amount, &status, &c.CreatedAt,
		&c.ApprovedAt, &c.PaidAt, &c.CancelledAt,
	)
	c.Status = affiliate.Status(status)
	return c, err
}

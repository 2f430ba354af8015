package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/dyorwellness/storefront/internal/domain/discount"
)

const discountColumns = `id, code, kind, value, min_order_amount, max_uses, current_uses, active,
	expires_at, is_affiliate, affiliate_name, affiliate_email, commission_rate, created_at, updated_at`

const (
	findDiscountSQL = `SELECT ` + discountColumns + ` FROM discount_codes WHERE UPPER(code) = UPPER($1)`

	// The usage guard lives in the WHERE clause so concurrent redemptions
	// serialize on the row lock and the loser matches no row.
	incrementUsesSQL = `UPDATE discount_codes
		SET current_uses = current_uses + 1, updated_at = now()
		WHERE id = $1 AND (max_uses IS NULL OR current_uses < max_uses)`

	discountExistsSQL = `SELECT EXISTS (SELECT 1 FROM discount_codes WHERE id = $1)`

	insertDiscountSQL = `INSERT INTO discount_codes (
		id, code, kind, value, min_order_amount, max_uses, current_uses, active,
		expires_at, is_affiliate, affiliate_name, affiliate_email, commission_rate, created_at, updated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	updateDiscountSQL = `UPDATE discount_codes SET
		kind = $2, value = $3, min_order_amount = $4, max_uses = $5, active = $6, expires_at = $7,
		is_affiliate = $8, affiliate_name = $9, affiliate_email = $10, commission_rate = $11, updated_at = $12
		WHERE id = $1`

	setActiveSQL = `UPDATE discount_codes SET active = $2, updated_at = now() WHERE UPPER(code) = UPPER($1)`
)

var _ discount.Repository = (*DiscountRepository)(nil)

// DiscountRepository implements discount.Repository backed by PostgreSQL.
type DiscountRepository struct {
	db DBTX
}

// NewDiscountRepository returns a DiscountRepository over db.
func NewDiscountRepository(db DBTX) *DiscountRepository {
	return &DiscountRepository{db: db}
}

// FindByCode looks a code up case-insensitively.
func (r *DiscountRepository) FindByCode(ctx context.Context, code string) (*discount.Code, error) {
	rows, err := r.db.Query(ctx, findDiscountSQL, code)
	if err != nil {
		return nil, errors.Wrapf(err, "find discount code %q", code)
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanDiscount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, discount.ErrNotFound
		}
		return nil, errors.Wrapf(err, "find discount code %q", code)
	}
	return &c, nil
}

// IncrementUses consumes one use of the code with the given id.
func (r *DiscountRepository) IncrementUses(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, incrementUsesSQL, id)
	if err != nil {
		return errors.Wrap(err, "increment uses")
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRow(ctx, discountExistsSQL, id).Scan(&exists); err != nil {
		return errors.Wrap(err, "check discount code")
	}
	if !exists {
		return discount.ErrNotFound
	}
	return discount.ErrUsageExceeded
}

// Create inserts a new code.
func (r *DiscountRepository) Create(ctx context.Context, c *discount.Code) error {
	name, email, rate := affiliateColumns(c)
	_, err := r.db.Exec(ctx, insertDiscountSQL,
		c.ID, c.Code, string(c.Kind), c.Value, c.MinOrderAmount, c.MaxUses, c.CurrentUses, c.Active,
		c.ExpiresAt, c.IsAffiliate(), name, email, rate, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return discount.ErrDuplicate
		}
		return errors.Wrapf(err, "insert discount code %q", c.Code)
	}
	return nil
}

// Update replaces the editable attributes of c. The usage counter is left
// untouched.
func (r *DiscountRepository) Update(ctx context.Context, c *discount.Code) error {
	name, email, rate := affiliateColumns(c)
	tag, err := r.db.Exec(ctx, updateDiscountSQL,
		c.ID, string(c.Kind), c.Value, c.MinOrderAmount, c.MaxUses, c.Active, c.ExpiresAt,
		c.IsAffiliate(), name, email, rate, c.UpdatedAt,
	)
	if err != nil {
		return errors.Wrapf(err, "update discount code %q", c.Code)
	}
	if tag.RowsAffected() == 0 {
		return discount.ErrNotFound
	}
	return nil
}

// SetActive toggles the active flag of code.
func (r *DiscountRepository) SetActive(ctx context.Context, code string, active bool) error {
	tag, err := r.db.Exec(ctx, setActiveSQL, code, active)
	if err != nil {
		return errors.Wrapf(err, "set discount code %q active", code)
	}
	if tag.RowsAffected() == 0 {
		return discount.ErrNotFound
	}
	return nil
}

// List returns codes matching f ordered by code.
func (r *DiscountRepository) List(ctx context.Context, f discount.ListFilter) ([]discount.Code, error) {
	var (
		where []string
		args  []any
	)
	if f.ActiveOnly {
		where = append(where, "active")
	}
	if f.AffiliateOnly {
		where = append(where, "is_affiliate")
	}

	var sb strings.Builder
	sb.WriteString(`SELECT ` + discountColumns + ` FROM discount_codes`)
	if len(where) > 0 {
		sb.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	sb.WriteString(" ORDER BY code")
	if f.Limit > 0 {
		args = append(args, f.Limit, f.Offset)
		fmt.Fprintf(&sb, " LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}

	rows, err := r.db.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, errors.Wrap(err, "list discount codes")
	}
	codes, err := pgx.CollectRows(rows, scanDiscount)
	if err != nil {
		return nil, errors.Wrap(err, "list discount codes")
	}
	return codes, nil
}

func affiliateColumns(c *discount.Code) (name, email *string, rate decimal.NullDecimal) {
	if a := c.Affiliate; a != nil {
		return &a.Name, &a.Email, decimal.NewNullDecimal(a.CommissionRate)
	}
	return nil, nil, decimal.NullDecimal{}
}

func scanDiscount(row pgx.CollectableRow) (discount.Code, error) {
	var (
		c           discount.Code
		kind        string
		maxUses     *int32
		expiresAt   *time.Time
		isAffiliate bool
		name, email *string
		rate        decimal.NullDecimal
	)
	err := row.Scan(
		&c.ID, &c.Code, &kind, &c.Value, &c.MinOrderAmount, &maxUses, &c.CurrentUses, &c.Active,
		&expiresAt, &isAffiliate, &name, &email, &rate, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return c, err
	}

	c.Kind = discount.Kind(kind)
	c.ExpiresAt = expiresAt
	if maxUses != nil {
		v := int(*maxUses)
		c.MaxUses = &v
	}
	if isAffiliate {
		a := &discount.Affiliate{CommissionRate: rate.Decimal}
		if name != nil {
			a.Name = *name
		}
		if email != nil {
			a.Email = *email
		}
		c.Affiliate = a
	}
	return c, nil
}

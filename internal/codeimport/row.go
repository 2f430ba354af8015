package codeimport

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/dyorwellness/storefront/internal/domain/discount"
)

// Column order of an import row. Columns after value are optional.
const (
	colCode = iota
	colKind
	colValue
	colMinOrder
	colMaxUses
	colAffiliateName
	colAffiliateEmail
	colCommissionRate
	numColumns
)

// RowError reports a row that could not be turned into a valid code.
type RowError struct {
	File string
	Line int
	Err  error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("%s:%d: %v", e.File, e.Line, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

func isHeader(record []string) bool {
	return len(record) > 0 && strings.EqualFold(strings.TrimSpace(record[colCode]), "code")
}

// ParseRow converts a CSV record into an active discount code and checks
// its invariants.
func ParseRow(record []string) (*discount.Code, error) {
	if len(record) < colValue+1 || len(record) > numColumns {
		return nil, errors.Errorf("want %d to %d columns, got %d", colValue+1, numColumns, len(record))
	}
	field := func(i int) string {
		if i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	c := &discount.Code{Code: discount.Normalize(field(colCode)), Active: true}
	var err error
	if c.Kind, err = discount.ParseKind(field(colKind)); err != nil {
		return nil, err
	}
	if c.Value, err = decimal.NewFromString(field(colValue)); err != nil {
		return nil, errors.Wrap(err, "value")
	}
	if raw := field(colMinOrder); raw != "" {
		if c.MinOrderAmount, err = decimal.NewFromString(raw); err != nil {
			return nil, errors.Wrap(err, "min order")
		}
	}
	if raw := field(colMaxUses); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, errors.Wrap(err, "max uses")
		}
		c.MaxUses = &n
	}

	name, rate := field(colAffiliateName), field(colCommissionRate)
	if name != "" || rate != "" {
		a := &discount.Affiliate{Name: name, Email: field(colAffiliateEmail)}
		if rate != "" {
			if a.CommissionRate, err = decimal.NewFromString(rate); err != nil {
				return nil, errors.Wrap(err, "commission rate")
			}
		}
		c.Affiliate = a
	}

	if err := c.Check(); err != nil {
		return nil, err
	}
	return c, nil
}

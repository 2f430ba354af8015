// Package report renders affiliate commission reports for operators.
package report

import (
	"encoding/csv"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/klauspost/pgzip"
	"github.com/olekukonko/tablewriter"

	"github.com/dyorwellness/storefront/internal/domain/affiliate"
)

// Line is the commission summary of one affiliate code.
type Line struct {
	Code           string
	AffiliateName  string
	AffiliateEmail string
	affiliate.Summary
}

// Owed is what has not been paid out or cancelled yet.
func (l Line) Owed() string {
	return l.Pending.Add(l.Approved).StringFixed(2)
}

// ByAffiliate groups commissions per code, sorted by code.
func ByAffiliate(commissions []affiliate.Commission) []Line {
	groups := make(map[string][]affiliate.Commission)
	for _, c := range commissions {
		key := strings.ToUpper(c.Code)
		groups[key] = append(groups[key], c)
	}

	lines := make([]Line, 0, len(groups))
	for code, list := range groups {
		// Name and email are frozen per commission; show the newest.
		newest := list[0]
		for _, c := range list[1:] {
			if c.CreatedAt.After(newest.CreatedAt) {
				newest = c
			}
		}
		lines = append(lines, Line{
			Code:           code,
			AffiliateName:  newest.AffiliateName,
			AffiliateEmail: newest.AffiliateEmail,
			Summary:        affiliate.Aggregate(list),
		})
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].Code < lines[j].Code })
	return lines
}

// Render writes lines as a table with a totals footer.
func Render(w io.Writer, lines []Line) error {
	table := tablewriter.NewWriter(w)
	table.Header("Code", "Affiliate", "Email", "Orders", "Pending", "Approved", "Paid", "Cancelled", "Owed")

	var all []affiliate.Summary
	for _, l := range lines {
		if err := table.Append(
			l.Code, l.AffiliateName, l.AffiliateEmail, strconv.Itoa(l.Count),
			l.Pending.StringFixed(2), l.Approved.StringFixed(2), l.Paid.StringFixed(2), l.Cancelled.StringFixed(2),
			l.Owed(),
		); err != nil {
			return errors.Wrapf(err, "append %s", l.Code)
		}
		all = append(all, l.Summary)
	}

	total := Line{Summary: sum(all)}
	table.Footer("Total", "", "", strconv.Itoa(total.Count),
		total.Pending.StringFixed(2), total.Approved.StringFixed(2), total.Paid.StringFixed(2), total.Cancelled.StringFixed(2),
		total.Owed(),
	)
	if err := table.Render(); err != nil {
		return errors.Wrap(err, "render table")
	}
	return nil
}

func sum(summaries []affiliate.Summary) affiliate.Summary {
	out := affiliate.Aggregate(nil)
	for _, s := range summaries {
		out.Pending = out.Pending.Add(s.Pending)
		out.Approved = out.Approved.Add(s.Approved)
		out.Paid = out.Paid.Add(s.Paid)
		out.Cancelled = out.Cancelled.Add(s.Cancelled)
		out.Count += s.Count
	}
	return out
}

var exportHeader = []string{
	"id", "order_number", "code", "affiliate_name", "affiliate_email",
	"order_total", "commission_rate", "amount", "status", "created_at",
}

// Export writes every commission as a gzip compressed CSV row.
func Export(w io.Writer, commissions []affiliate.Commission) error {
	gz := pgzip.NewWriter(w)
	cw := csv.NewWriter(gz)

	if err := cw.Write(exportHeader); err != nil {
		return errors.Wrap(err, "write header")
	}
	for _, c := range commissions {
		if err := cw.Write([]string{
			c.ID, c.OrderNumber, c.Code, c.AffiliateName, c.AffiliateEmail,
			c.OrderTotal.StringFixed(2), c.CommissionRate.String(), c.Amount.StringFixed(2),
			string(c.Status), c.CreatedAt.UTC().Format(time.RFC3339),
		}); err != nil {
			return errors.Wrapf(err, "write commission %s", c.ID)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return errors.Wrap(err, "flush csv")
	}
	if err := gz.Close(); err != nil {
		return errors.Wrap(err, "close gzip")
	}
	return nil
}

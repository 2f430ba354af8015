// Package codeimport reads discount codes from gzip compressed CSV files.
//
// Files are read in three streaming passes. The first builds a bloom filter
// of codes per file, concurrently. The second re-reads each file and counts
// exact occurrences of every code that another file's filter (or its own)
// may contain, which confirms duplicates without holding every code in
// memory. The last pass parses rows in file order and yields each code once,
// from its first occurrence.
package codeimport

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"strings"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/dyorwellness/storefront/internal/domain/discount"
)

// Options sizes the per-file bloom filters.
type Options struct {
	// ExpectedCodes is the estimated number of codes in a single file.
	ExpectedCodes uint
	// FalsePositiveRate of each filter.
	FalsePositiveRate float64
}

func (o Options) withDefaults() Options {
	if o.ExpectedCodes == 0 {
		o.ExpectedCodes = 1_000_000
	}
	if o.FalsePositiveRate <= 0 || o.FalsePositiveRate >= 1 {
		o.FalsePositiveRate = 0.001
	}
	return o
}

// Stats summarizes an import run.
type Stats struct {
	Rows       int
	Imported   int
	Duplicates int
	Invalid    int
}

// Importer streams codes out of a fixed list of files.
type Importer struct {
	files []string
	opts  Options

	dups map[string]struct{}
}

// New creates an Importer over files, read in the given order.
func New(files []string, opts Options) (*Importer, error) {
	if len(files) == 0 {
		return nil, errors.New("no input files")
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			return nil, errors.Wrapf(err, "check file %s", f)
		}
	}
	return &Importer{files: files, opts: opts.withDefaults()}, nil
}

// FindDuplicates returns every code occurring more than once across all
// files, including repeats within a single file.
func (im *Importer) FindDuplicates(ctx context.Context) (map[string]struct{}, error) {
	filters, self, err := im.buildFilters(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "build bloom filters")
	}
	counts, err := im.countCandidates(ctx, filters, self)
	if err != nil {
		return nil, errors.Wrap(err, "count candidates")
	}

	total := make(map[string]int)
	for _, c := range counts {
		for code, n := range c {
			total[code] += n
		}
	}
	dups := make(map[string]struct{})
	for code, n := range total {
		if n > 1 {
			dups[code] = struct{}{}
		}
	}
	im.dups = dups
	return dups, nil
}

// buildFilters creates one bloom filter per file, concurrently. Codes that
// were possibly seen earlier in the same file are collected in self.
func (im *Importer) buildFilters(ctx context.Context) ([]*bloom.BloomFilter, []map[string]struct{}, error) {
	filters := make([]*bloom.BloomFilter, len(im.files))
	self := make([]map[string]struct{}, len(im.files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range im.files {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(im.opts.ExpectedCodes, im.opts.FalsePositiveRate)
			repeats := make(map[string]struct{})
			if err := streamCodes(ctx, path, func(code string) {
				if filter.TestOrAddString(code) {
					repeats[code] = struct{}{}
				}
			}); err != nil {
				return err
			}
			filters[i] = filter
			self[i] = repeats
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return filters, self, nil
}

// countCandidates re-streams each file and counts exact occurrences of the
// codes that may also occur elsewhere.
func (im *Importer) countCandidates(
	ctx context.Context,
	filters []*bloom.BloomFilter,
	self []map[string]struct{},
) ([]map[string]int, error) {
	counts := make([]map[string]int, len(im.files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range im.files {
		g.Go(func() error {
			c := make(map[string]int)
			if err := streamCodes(ctx, path, func(code string) {
				if _, ok := self[i][code]; ok || inOthers(filters, i, code) {
					c[code]++
				}
			}); err != nil {
				return err
			}
			counts[i] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return counts, nil
}

func inOthers(filters []*bloom.BloomFilter, idx int, code string) bool {
	for j, f := range filters {
		if j != idx && f.TestString(code) {
			return true
		}
	}
	return false
}

// Each parses the files in order and calls fn with every valid code once,
// from its first occurrence. Invalid rows go to onInvalid and do not stop
// the import; an error from fn does. FindDuplicates must run first.
func (im *Importer) Each(
	ctx context.Context,
	fn func(ctx context.Context, c *discount.Code) error,
	onInvalid func(err *RowError),
) (Stats, error) {
	var stats Stats
	if im.dups == nil {
		return stats, errors.New("duplicates not computed")
	}

	seen := make(map[string]struct{}, len(im.dups))
	for _, path := range im.files {
		err := streamRecords(ctx, path, func(line int, record []string) error {
			stats.Rows++
			code := discount.Normalize(record[colCode])
			if _, dup := im.dups[code]; dup && code != "" {
				if _, ok := seen[code]; ok {
					stats.Duplicates++
					return nil
				}
				seen[code] = struct{}{}
			}

			c, err := ParseRow(record)
			if err != nil {
				stats.Invalid++
				if onInvalid != nil {
					onInvalid(&RowError{File: path, Line: line, Err: err})
				}
				return nil
			}
			if err := fn(ctx, c); err != nil {
				return errors.Wrapf(err, "%s:%d: import %s", path, line, c.Code)
			}
			stats.Imported++
			return nil
		})
		if err != nil {
			return stats, err
		}
	}
	return stats, nil
}

// streamCodes calls fn with the normalized code of every data row in path.
func streamCodes(ctx context.Context, path string, fn func(code string)) error {
	return streamRecords(ctx, path, func(_ int, record []string) error {
		fn(discount.Normalize(record[colCode]))
		return nil
	})
}

// streamRecords opens a gzip-compressed CSV file and calls fn for each data
// row. A leading header row is skipped.
func streamRecords(ctx context.Context, path string, fn func(line int, record []string) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	r := csv.NewReader(gz)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	r.ReuseRecord = true

	for first := true; ; first = false {
		if err := ctx.Err(); err != nil {
			return err
		}
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return errors.Wrapf(err, "read %s", path)
		}
		if first && isHeader(record) {
			continue
		}
		if len(record) == 1 && strings.TrimSpace(record[0]) == "" {
			continue
		}
		line, _ := r.FieldPos(0)
		if err := fn(line, record); err != nil {
			return err
		}
	}
}

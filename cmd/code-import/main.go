package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/go-faster/errors"
	"golang.org/x/time/rate"

	"github.com/dyorwellness/storefront/internal/codeimport"
	"github.com/dyorwellness/storefront/internal/domain/discount"
	"github.com/dyorwellness/storefront/internal/storage/postgres"
)

const progressEvery = 1000

func main() {
	var (
		dataDir     string
		databaseURL string
		expected    uint
		writesPerS  float64
		dryRun      bool
	)

	flag.StringVar(&dataDir, "data-dir", "", "directory of *.csv.gz files, used when no files are given")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.UintVar(&expected, "expected-codes", 1_000_000, "estimated codes per file, sizes the bloom filters")
	flag.Float64Var(&writesPerS, "rate", 0, "max code writes per second, 0 for unlimited")
	flag.BoolVar(&dryRun, "dry-run", false, "validate and report without writing")
	flag.Parse()

	files := flag.Args()
	if len(files) == 0 && dataDir != "" {
		matches, err := filepath.Glob(filepath.Join(dataDir, "*.csv.gz"))
		if err != nil {
			slog.Error("list data dir", slog.String("error", err.Error()))
			os.Exit(1)
		}
		files = matches
	}
	if len(files) == 0 {
		slog.Error("no input files: pass files as arguments or set --data-dir")
		os.Exit(1)
	}

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" && !dryRun {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	limit := rate.Inf
	if writesPerS > 0 {
		limit = rate.Limit(writesPerS)
	}

	if err := run(ctx, files, databaseURL, expected, rate.NewLimiter(limit, 1), dryRun); err != nil {
		slog.Error("code import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("code import completed successfully")
}

func run(ctx context.Context, files []string, databaseURL string, expected uint, limiter *rate.Limiter, dryRun bool) error {
	im, err := codeimport.New(files, codeimport.Options{ExpectedCodes: expected})
	if err != nil {
		return err
	}

	slog.Info("finding duplicate codes", slog.Int("files", len(files)))

	dups, err := im.FindDuplicates(ctx)
	if err != nil {
		return errors.Wrap(err, "find duplicates")
	}

	slog.Info("duplicates found", slog.Int("count", len(dups)))

	write := func(context.Context, *discount.Code) error { return nil }
	if !dryRun {
		slog.Info("connecting to database")

		pool, err := postgres.NewPool(ctx, databaseURL)
		if err != nil {
			return errors.Wrap(err, "connect to database")
		}
		defer pool.Close()

		write = upserter(discount.NewEngine(postgres.NewDiscountRepository(pool)), limiter)
	}

	var written int
	stats, err := im.Each(ctx, func(ctx context.Context, c *discount.Code) error {
		if err := write(ctx, c); err != nil {
			return err
		}
		written++
		if written%progressEvery == 0 {
			slog.Info("write progress", slog.Int("written", written))
		}
		return nil
	}, func(rowErr *codeimport.RowError) {
		slog.Warn("skipping invalid row",
			slog.String("file", rowErr.File),
			slog.Int("line", rowErr.Line),
			slog.String("error", rowErr.Err.Error()),
		)
	})
	if err != nil {
		return err
	}

	slog.Info("import summary",
		slog.Int("rows", stats.Rows),
		slog.Int("imported", stats.Imported),
		slog.Int("duplicates", stats.Duplicates),
		slog.Int("invalid", stats.Invalid),
		slog.Bool("dry_run", dryRun),
	)
	return nil
}

// upserter creates each code, updating it in place when it already exists.
// Updates keep the stored usage counter.
func upserter(engine *discount.Engine, limiter *rate.Limiter) func(context.Context, *discount.Code) error {
	return func(ctx context.Context, c *discount.Code) error {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
		err := engine.Create(ctx, c)
		if errors.Is(err, discount.ErrDuplicate) {
			err = engine.Update(ctx, c)
		}
		return err
	}
}

package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"

	"github.com/dyorwellness/storefront/internal/domain/affiliate"
	"github.com/dyorwellness/storefront/internal/report"
	"github.com/dyorwellness/storefront/internal/storage/postgres"
)

func main() {
	var (
		databaseURL string
		status      string
		code        string
		export      string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&status, "status", "", "only include commissions in this status")
	flag.StringVar(&code, "code", "", "only include commissions of this affiliate code")
	flag.StringVar(&export, "export", "", "also write every commission to this gzip CSV file")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	f := affiliate.Filter{Code: code}
	if status != "" {
		st, err := affiliate.ParseStatus(status)
		if err != nil {
			slog.Error("invalid --status", slog.String("error", err.Error()))
			os.Exit(1)
		}
		f.Status = st
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, f, export); err != nil {
		slog.Error("commission report failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, databaseURL string, f affiliate.Filter, export string) error {
	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	// Zero limit lists every matching commission.
	list, err := postgres.NewCommissionRepository(pool).List(ctx, f)
	if err != nil {
		return errors.Wrap(err, "list commissions")
	}

	if err := report.Render(os.Stdout, report.ByAffiliate(list)); err != nil {
		return err
	}

	if export == "" {
		return nil
	}
	out, err := os.Create(export)
	if err != nil {
		return errors.Wrap(err, "create export file")
	}
	if err := report.Export(out, list); err != nil {
		_ = out.Close()
		return errors.Wrap(err, "export commissions")
	}
	if err := out.Close(); err != nil {
		return errors.Wrap(err, "close export file")
	}
	slog.Info("exported commissions", slog.String("path", export), slog.Int("count", len(list)))
	return nil
}

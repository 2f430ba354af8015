package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"

	"github.com/dyorwellness/storefront/internal/domain/discount"
	"github.com/dyorwellness/storefront/internal/seed"
	"github.com/dyorwellness/storefront/internal/storage/postgres"
)

func main() {
	var (
		databaseURL string
		adminKey    string
		pepper      string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&adminKey, "admin-key", "", "Admin API key to seed (or STOREFRONT_SEED_ADMIN_KEY env)")
	flag.StringVar(&pepper, "admin-key-pepper", "", "HMAC pepper for admin key hashing (or STOREFRONT_ADMIN_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if adminKey == "" {
		adminKey = os.Getenv("STOREFRONT_SEED_ADMIN_KEY")
	}
	if pepper == "" {
		pepper = os.Getenv("STOREFRONT_ADMIN_KEY_PEPPER")
	}
	if adminKey != "" && pepper == "" {
		slog.Error("admin key pepper is required when seeding an admin key")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, seed.AdminKey{Key: adminKey, Pepper: []byte(pepper)}); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL string, key seed.AdminKey) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	res, err := seed.Apply(ctx, seed.Target{
		Products:  postgres.NewProductRepository(pool),
		Discounts: discount.NewEngine(postgres.NewDiscountRepository(pool)),
		APIKeys:   postgres.NewAPIKeyRepository(pool),
	}, key)
	if err != nil {
		return err
	}

	slog.Info("seeded",
		slog.Int("products", res.Products),
		slog.Int("codes_created", res.CodesCreated),
		slog.Int("codes_skipped", res.CodesSkipped),
		slog.Bool("admin_key", res.AdminKey),
	)
	if !res.AdminKey {
		slog.Warn("no admin key seeded: set --admin-key to manage orders and codes")
	}

	return nil
}

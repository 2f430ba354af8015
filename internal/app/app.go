// Package app wires configuration, storage, domain services and the HTTP
// server of the storefront API.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/dyorwellness/storefront/internal/domain/affiliate"
	"github.com/dyorwellness/storefront/internal/domain/checkout"
	"github.com/dyorwellness/storefront/internal/domain/discount"
	"github.com/dyorwellness/storefront/internal/domain/order"
	"github.com/dyorwellness/storefront/internal/domain/pricing"
	"github.com/dyorwellness/storefront/internal/handler"
	"github.com/dyorwellness/storefront/pkg/health"
	"github.com/dyorwellness/storefront/pkg/httpmiddleware"
)

const serviceName = "storefront-api"

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("storage", cfg.Storage),
	)

	store, err := openStorage(ctx, lg, cfg)
	if err != nil {
		return err
	}
	defer store.close()

	products, closeCache := withCache(ctx, lg, cfg, store.products)
	defer closeCache()

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck(cfg.Storage, 5*time.Second, health.PingCheck(cfg.Storage, store.pinger))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.AddLivenessCheck("gc_pause", time.Second, health.GCMaxPauseCheck(time.Second))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Domain services.
	pricingCfg, err := cfg.Pricing.Parse()
	if err != nil {
		return errors.Wrap(err, "pricing config")
	}
	calc, err := pricing.NewCalculator(pricingCfg, m.MeterProvider().Meter(serviceName))
	if err != nil {
		return errors.Wrap(err, "create pricing calculator")
	}
	discounts := discount.NewEngine(store.discounts)
	affiliates := affiliate.NewService(store.commissions)
	checkoutSvc, err := checkout.NewService(
		checkout.Config{OrderNumberPrefix: cfg.OrderNumberPrefix},
		checkout.Deps{
			Products:       products,
			Discounts:      discounts,
			Pricing:        calc,
			Commissions:    affiliates,
			UnitOfWork:     store.uow,
			MeterProvider:  m.MeterProvider(),
			TracerProvider: m.TracerProvider(),
		},
	)
	if err != nil {
		return errors.Wrap(err, "create checkout service")
	}

	// HTTP handlers.
	h := handler.New(
		handler.Config{
			ImageBaseURL:   cfg.ImageBaseURL,
			AdminKeyPepper: []byte(cfg.AdminKeyPepper),
		},
		handler.Deps{
			Products:   products,
			Discounts:  discounts,
			Checkout:   checkoutSvc,
			Orders:     order.NewService(store.orders),
			Affiliates: affiliates,
			APIKeys:    store.apikeys,
		},
	)

	// Middlewares run inside the router so route patterns are known when
	// requests are logged and labeled.
	r := chi.NewRouter()
	r.Use(
		httpmiddleware.Recovery(),
		httpmiddleware.CORS(httpmiddleware.CORSConfig{
			AllowOrigins:     cfg.CORS.Origins,
			AllowHeaders:     []string{"Content-Type", handler.HeaderAdminKey, httpmiddleware.HeaderRequestID},
			ExposeHeaders:    []string{httpmiddleware.HeaderRequestID},
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           86400,
		}),
		httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
			Max:    cfg.RateLimit.Max,
			Window: cfg.RateLimit.Window,
			Skip:   isProbe,
		}),
		httpmiddleware.RequestID(),
		httpmiddleware.InjectLogger(zctx.From(ctx)),
		httpmiddleware.Instrument(serviceName, m),
		httpmiddleware.LogRequests(),
		httpmiddleware.Labeler(),
	)
	r.Get("/livez", healthSvc.LiveEndpoint)
	r.Get("/readyz", healthSvc.ReadyEndpoint)
	r.Mount("/api", h.Routes())

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler:           r,
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

func isProbe(r *http.Request) bool {
	return r.URL.Path == "/livez" || r.URL.Path == "/readyz"
}

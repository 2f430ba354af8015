package checkout

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/dyorwellness/storefront/internal/domain/affiliate"
	"github.com/dyorwellness/storefront/internal/domain/discount"
	"github.com/dyorwellness/storefront/internal/domain/order"
	"github.com/dyorwellness/storefront/internal/domain/pricing"
	"github.com/dyorwellness/storefront/internal/domain/product"
)

const instrumentationName = "github.com/dyorwellness/storefront/internal/domain/checkout"

// Config holds checkout settings.
type Config struct {
	// OrderNumberPrefix starts every order number, e.g. DYOR.
	OrderNumberPrefix string
}

// Deps are the collaborators of a Service.
type Deps struct {
	Products    product.Repository
	Discounts   *discount.Engine
	Pricing     *pricing.Calculator
	Commissions *affiliate.Service
	UnitOfWork  UnitOfWork

	MeterProvider  metric.MeterProvider
	TracerProvider trace.TracerProvider
}

// Service prices carts and completes paid checkouts.
type Service struct {
	products    product.Repository
	discounts   *discount.Engine
	pricing     *pricing.Calculator
	commissions *affiliate.Service
	uow         UnitOfWork
	prefix      string
	now         func() time.Time

	tracer    trace.Tracer
	completed metric.Int64Counter
	rejected  metric.Int64Counter
	revenue   metric.Float64Counter
}

// NewService creates a checkout Service. Nil providers disable telemetry.
func NewService(cfg Config, deps Deps) (*Service, error) {
	mp := deps.MeterProvider
	if mp == nil {
		mp = metricnoop.NewMeterProvider()
	}
	tp := deps.TracerProvider
	if tp == nil {
		tp = tracenoop.NewTracerProvider()
	}
	meter := mp.Meter(instrumentationName)

	completed, err := meter.Int64Counter("storefront.checkout.completed",
		metric.WithDescription("Checkouts that produced an order"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create completed counter")
	}
	rejected, err := meter.Int64Counter("storefront.checkout.rejected",
		metric.WithDescription("Checkouts rejected before an order was created"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create rejected counter")
	}
	revenue, err := meter.Float64Counter("storefront.checkout.revenue",
		metric.WithDescription("Sum of completed order totals"),
		metric.WithUnit("USD"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create revenue counter")
	}

	prefix := cfg.OrderNumberPrefix
	if prefix == "" {
		prefix = "DYOR"
	}

	return &Service{
		products:    deps.Products,
		discounts:   deps.Discounts,
		pricing:     deps.Pricing,
		commissions: deps.Commissions,
		uow:         deps.UnitOfWork,
		prefix:      prefix,
		now:         time.Now,
		tracer:      tp.Tracer(instrumentationName),
		completed:   completed,
		rejected:    rejected,
		revenue:     revenue,
	}, nil
}

// Quote prices req without side effects.
func (s *Service) Quote(ctx context.Context, req Request) (_ *Quote, rerr error) {
	ctx, span := s.tracer.Start(ctx, "checkout.Quote")
	defer func() { s.endSpan(span, rerr) }()

	if err := req.validate(); err != nil {
		return nil, err
	}

	items, subtotal, err := s.resolveItems(ctx, req.Items)
	if err != nil {
		return nil, err
	}

	q := &Quote{Items: items}
	discountAmount := decimal.Zero
	if req.DiscountCode != "" {
		applied, err := s.discounts.Quote(ctx, req.DiscountCode, subtotal)
		if err != nil {
			return nil, err
		}
		q.Discount = applied
		discountAmount = applied.Amount
	}
	q.Breakdown = s.pricing.Quote(ctx, subtotal, discountAmount)

	return q, nil
}

// Complete turns a paid cart into an order. Redeeming the discount code,
// creating the order and recording an affiliate commission happen in one
// unit of work: either all of them persist or none does.
func (s *Service) Complete(ctx context.Context, req CompleteRequest) (_ *Result, rerr error) {
	ctx, span := s.tracer.Start(ctx, "checkout.Complete")
	defer func() { s.endSpan(span, rerr) }()
	defer func() {
		if rerr != nil {
			s.rejected.Add(ctx, 1, metric.WithAttributes(
				attribute.String("reason", rejectReason(rerr)),
			))
		}
	}()

	email, err := req.validate()
	if err != nil {
		return nil, err
	}

	items, subtotal, err := s.resolveItems(ctx, req.Items)
	if err != nil {
		return nil, err
	}

	var res *Result
	err = s.uow.Do(ctx, func(ctx context.Context, r Repos) error {
		now := s.now()

		discountAmount := decimal.Zero
		var applied *discount.Applied
		if req.DiscountCode != "" {
			a, err := s.discounts.WithRepository(r.Discounts).Redeem(ctx, req.DiscountCode, subtotal)
			if err != nil {
				return err
			}
			applied = a
			discountAmount = a.Amount
		}

		b := s.pricing.Quote(ctx, subtotal, discountAmount)
		o := &order.Order{
			ID:               uuid.New().String(),
			Number:           order.NewNumber(s.prefix, now),
			CustomerEmail:    email,
			Items:            items,
			Subtotal:         b.Subtotal,
			DiscountAmount:   b.Discount,
			ShippingCost:     b.Shipping,
			Tax:              b.Tax,
			Total:            b.Total,
			Status:           order.StatusPending,
			PaymentStatus:    order.PaymentPaid,
			PaymentMethod:    req.Payment.Method,
			PaymentReference: req.Payment.Reference,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if applied != nil {
			code := applied.Code.Code
			o.DiscountCode = &code
		}
		if err := o.CheckTotals(); err != nil {
			return errors.Wrap(err, "check order totals")
		}

		first := order.HistoryEntry{Status: order.StatusPending, At: now, Note: "order placed"}
		if err := r.Orders.Create(ctx, o, first); err != nil {
			return errors.Wrap(err, "create order")
		}
		res = &Result{Order: o}

		if applied != nil && applied.Code.IsAffiliate() {
			c, err := s.commissions.WithRepository(r.Commissions).Record(ctx, affiliate.OrderRef{
				ID:     o.ID,
				Number: o.Number,
				Total:  o.Total,
			}, applied.Code)
			if err != nil {
				return errors.Wrap(err, "record commission")
			}
			res.Commission = c
		}
		return nil
	})
	if err != nil {
		if isValidation(err) {
			return nil, err
		}
		zctx.From(ctx).Error("Checkout failed", zap.Error(err))
		return nil, &retryError{err: err}
	}

	s.completed.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("discounted", res.Order.DiscountCode != nil),
		attribute.Bool("affiliate", res.Commission != nil),
	))
	s.revenue.Add(ctx, res.Order.Total.InexactFloat64())

	lg := zctx.From(ctx).With(
		zap.String("order", res.Order.Number),
		zap.String("total", res.Order.Total.StringFixed(2)),
	)
	if res.Commission != nil {
		lg = lg.With(zap.String("affiliate_code", res.Commission.Code))
	}
	lg.Info("Order placed")

	return res, nil
}

// resolveItems fetches every requested product in one batch and snapshots
// its price.
func (s *Service) resolveItems(ctx context.Context, lines []LineItem) ([]order.Item, decimal.Decimal, error) {
	ids := make([]string, len(lines))
	for i, line := range lines {
		ids[i] = line.ProductID
	}

	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, decimal.Zero, errors.Wrap(err, "get products")
	}
	byID := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}

	items := make([]order.Item, 0, len(lines))
	subtotal := decimal.Zero
	for _, line := range lines {
		p, ok := byID[line.ProductID]
		if !ok {
			return nil, decimal.Zero, &ProductNotFoundError{ProductID: line.ProductID}
		}
		if !p.InStock {
			return nil, decimal.Zero, &OutOfStockError{ProductID: line.ProductID}
		}
		item := order.Item{
			ProductID: p.ID,
			Name:      p.Name,
			UnitPrice: p.Price,
			Quantity:  line.Quantity,
		}
		items = append(items, item)
		subtotal = subtotal.Add(item.LineTotal())
	}

	return items, subtotal.Round(2), nil
}

func (s *Service) endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, rejectReason(err))
	}
	span.End()
}

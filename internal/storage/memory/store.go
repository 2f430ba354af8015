// Package memory is an in-process implementation of every storefront
// repository, used for local development and tests.
package memory

import (
	"context"
	"sync"

	"github.com/dyorwellness/storefront/internal/domain/affiliate"
	"github.com/dyorwellness/storefront/internal/domain/auth"
	"github.com/dyorwellness/storefront/internal/domain/checkout"
	"github.com/dyorwellness/storefront/internal/domain/discount"
	"github.com/dyorwellness/storefront/internal/domain/order"
	"github.com/dyorwellness/storefront/internal/domain/product"
)

// Store holds all storefront data in maps. Units of work are serialized and
// roll back by restoring a snapshot taken when they start.
type Store struct {
	// txMu serializes writers so a rollback cannot discard a concurrent
	// write made outside the unit of work.
	txMu sync.Mutex
	mu   sync.RWMutex

	products    map[string]product.Product
	codes       map[string]*discount.Code
	orders      map[string]*order.Order
	history     map[string][]order.HistoryEntry
	commissions map[string]*affiliate.Commission
	apikeys     map[string]*auth.APIKeyInfo
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		products:    make(map[string]product.Product),
		codes:       make(map[string]*discount.Code),
		orders:      make(map[string]*order.Order),
		history:     make(map[string][]order.HistoryEntry),
		commissions: make(map[string]*affiliate.Commission),
		apikeys:     make(map[string]*auth.APIKeyInfo),
	}
}

type snapshot struct {
	codes       map[string]*discount.Code
	orders      map[string]*order.Order
	history     map[string][]order.HistoryEntry
	commissions map[string]*affiliate.Commission
}

// snapshot copies the state a unit of work can modify.
func (s *Store) snapshot() snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := snapshot{
		codes:       make(map[string]*discount.Code, len(s.codes)),
		orders:      make(map[string]*order.Order, len(s.orders)),
		history:     make(map[string][]order.HistoryEntry, len(s.history)),
		commissions: make(map[string]*affiliate.Commission, len(s.commissions)),
	}
	for k, v := range s.codes {
		cp := *v
		snap.codes[k] = &cp
	}
	for k, v := range s.orders {
		cp := *v
		snap.orders[k] = &cp
	}
	for k, v := range s.history {
		snap.history[k] = append([]order.HistoryEntry(nil), v...)
	}
	for k, v := range s.commissions {
		cp := *v
		snap.commissions[k] = &cp
	}
	return snap
}

func (s *Store) restore(snap snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.codes = snap.codes
	s.orders = snap.orders
	s.history = snap.history
	s.commissions = snap.commissions
}

// Do runs fn as a unit of work. Any error discards every write fn made.
func (s *Store) Do(ctx context.Context, fn func(ctx context.Context, r checkout.Repos) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	snap := s.snapshot()
	err := fn(ctx, checkout.Repos{
		Discounts:   &DiscountRepository{s: s, inTx: true},
		Orders:      &OrderRepository{s: s, inTx: true},
		Commissions: &CommissionRepository{s: s, inTx: true},
	})
	if err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

// Discounts returns a discount repository outside any unit of work.
func (s *Store) Discounts() *DiscountRepository { return &DiscountRepository{s: s} }

// Orders returns an order repository outside any unit of work.
func (s *Store) Orders() *OrderRepository { return &OrderRepository{s: s} }

// Commissions returns a commission repository outside any unit of work.
func (s *Store) Commissions() *CommissionRepository { return &CommissionRepository{s: s} }

// Products returns the product repository.
func (s *Store) Products() *ProductRepository { return &ProductRepository{s: s} }

// APIKeys returns the API key repository.
func (s *Store) APIKeys() *APIKeyRepository { return &APIKeyRepository{s: s} }

// write runs fn under the data lock, and under the writer lock unless the
// caller already holds it through Do.
func (s *Store) write(inTx bool, fn func() error) error {
	if !inTx {
		s.txMu.Lock()
		defer s.txMu.Unlock()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn()
}

func (s *Store) read(fn func() error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn()
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

func paginate[T any](items []T, limit, offset int) []T {
	start := offset
	if start > len(items) {
		start = len(items)
	}
	end := start + limit
	if limit <= 0 || end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

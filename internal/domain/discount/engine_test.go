package discount

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockRepo keeps codes in a map and guards IncrementUses the same way the
// SQL implementation does.
type mockRepo struct {
	mu           sync.Mutex
	codes        map[string]*Code
	findErr      error
	incrementErr error
	increments   int
}

func newMockRepo(codes ...*Code) *mockRepo {
	m := &mockRepo{codes: make(map[string]*Code)}
	for _, c := range codes {
		m.codes[c.Code] = c
	}
	return m
}

func (m *mockRepo) FindByCode(_ context.Context, code string) (*Code, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.findErr != nil {
		return nil, m.findErr
	}
	c, ok := m.codes[code]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *mockRepo) IncrementUses(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.incrementErr != nil {
		return m.incrementErr
	}
	for _, c := range m.codes {
		if c.ID != id {
			continue
		}
		if c.MaxUses != nil && c.CurrentUses >= *c.MaxUses {
			return ErrUsageExceeded
		}
		c.CurrentUses++
		m.increments++
		return nil
	}
	return ErrNotFound
}

func (m *mockRepo) Create(_ context.Context, c *Code) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.codes[c.Code]; ok {
		return ErrDuplicate
	}
	cp := *c
	m.codes[c.Code] = &cp
	return nil
}

func (m *mockRepo) Update(_ context.Context, c *Code) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *c
	m.codes[c.Code] = &cp
	return nil
}

func (m *mockRepo) SetActive(_ context.Context, code string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.codes[code]
	if !ok {
		return ErrNotFound
	}
	c.Active = active
	return nil
}

func (m *mockRepo) List(_ context.Context, _ ListFilter) ([]Code, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Code, 0, len(m.codes))
	for _, c := range m.codes {
		out = append(out, *c)
	}
	return out, nil
}

func intPtr(v int) *int { return &v }

func TestEngine_Validate(t *testing.T) {
	fixedNow := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	oneSecondAgo := fixedNow.Add(-time.Second)
	oneSecondAhead := fixedNow.Add(time.Second)

	tests := []struct {
		name     string
		code     *Code
		lookup   string
		subtotal decimal.Decimal
		wantErr  error
	}{
		{
			name:     "valid code",
			code:     &Code{ID: "1", Code: "SAVE10", Kind: KindPercentage, Value: d("10"), Active: true},
			lookup:   "SAVE10",
			subtotal: d("100"),
		},
		{
			name:     "lookup is case-insensitive",
			code:     &Code{ID: "1", Code: "SAVE10", Kind: KindPercentage, Value: d("10"), Active: true},
			lookup:   "  save10 ",
			subtotal: d("100"),
		},
		{
			name:     "unknown code",
			code:     &Code{ID: "1", Code: "SAVE10", Kind: KindPercentage, Value: d("10"), Active: true},
			lookup:   "NOPE",
			subtotal: d("100"),
			wantErr:  ErrNotFound,
		},
		{
			name:     "inactive code",
			code:     &Code{ID: "1", Code: "OFF", Kind: KindFixed, Value: d("5"), Active: false},
			lookup:   "OFF",
			subtotal: d("100"),
			wantErr:  ErrInactive,
		},
		{
			name:     "expired one second ago",
			code:     &Code{ID: "1", Code: "OLD", Kind: KindFixed, Value: d("5"), Active: true, ExpiresAt: &oneSecondAgo},
			lookup:   "OLD",
			subtotal: d("100"),
			wantErr:  ErrExpired,
		},
		{
			name:     "expires in one second",
			code:     &Code{ID: "1", Code: "SOON", Kind: KindFixed, Value: d("5"), Active: true, ExpiresAt: &oneSecondAhead},
			lookup:   "SOON",
			subtotal: d("100"),
		},
		{
			name:     "uses equal max",
			code:     &Code{ID: "1", Code: "LIMIT", Kind: KindFixed, Value: d("5"), Active: true, MaxUses: intPtr(5), CurrentUses: 5},
			lookup:   "LIMIT",
			subtotal: d("100"),
			wantErr:  ErrUsageExceeded,
		},
		{
			name:     "one use left",
			code:     &Code{ID: "1", Code: "LIMIT", Kind: KindFixed, Value: d("5"), Active: true, MaxUses: intPtr(5), CurrentUses: 4},
			lookup:   "LIMIT",
			subtotal: d("100"),
		},
		{
			name:     "unlimited uses",
			code:     &Code{ID: "1", Code: "FOREVER", Kind: KindFixed, Value: d("5"), Active: true, CurrentUses: 99999},
			lookup:   "FOREVER",
			subtotal: d("100"),
		},
		{
			name:     "below minimum order amount",
			code:     &Code{ID: "1", Code: "MIN50", Kind: KindFixed, Value: d("5"), Active: true, MinOrderAmount: d("50")},
			lookup:   "MIN50",
			subtotal: d("49.99"),
			wantErr:  ErrBelowMinimum,
		},
		{
			name:     "exactly minimum order amount",
			code:     &Code{ID: "1", Code: "MIN50", Kind: KindFixed, Value: d("5"), Active: true, MinOrderAmount: d("50")},
			lookup:   "MIN50",
			subtotal: d("50"),
		},
		{
			name:     "inactive wins over expired",
			code:     &Code{ID: "1", Code: "BOTH", Kind: KindFixed, Value: d("5"), Active: false, ExpiresAt: &oneSecondAgo},
			lookup:   "BOTH",
			subtotal: d("100"),
			wantErr:  ErrInactive,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEngine(newMockRepo(tt.code))
			e.now = func() time.Time { return fixedNow }

			got, err := e.Validate(context.Background(), tt.lookup, tt.subtotal)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.code.Code, got.Code)
		})
	}
}

func TestEngine_Validate_LookupError(t *testing.T) {
	repo := newMockRepo()
	repo.findErr = errors.New("connection reset")

	_, err := NewEngine(repo).Validate(context.Background(), "ANY", d("10"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lookup discount code")
}

func TestEngine_QuoteDoesNotConsume(t *testing.T) {
	repo := newMockRepo(&Code{ID: "1", Code: "SAVE20", Kind: KindFixed, Value: d("20"), Active: true})

	applied, err := NewEngine(repo).Quote(context.Background(), "SAVE20", d("100"))
	require.NoError(t, err)
	assert.True(t, d("20").Equal(applied.Amount))
	assert.Zero(t, repo.increments)
}

func TestEngine_Redeem(t *testing.T) {
	repo := newMockRepo(&Code{ID: "1", Code: "SAVE20", Kind: KindFixed, Value: d("20"), Active: true})

	applied, err := NewEngine(repo).Redeem(context.Background(), "save20", d("100"))
	require.NoError(t, err)
	assert.True(t, d("20").Equal(applied.Amount))
	assert.Equal(t, 1, applied.Code.CurrentUses)
	assert.Equal(t, 1, repo.codes["SAVE20"].CurrentUses)
}

func TestEngine_Redeem_IncrementError(t *testing.T) {
	repo := newMockRepo(&Code{ID: "1", Code: "SAVE20", Kind: KindFixed, Value: d("20"), Active: true})
	repo.incrementErr = errors.New("db error")

	_, err := NewEngine(repo).Redeem(context.Background(), "SAVE20", d("100"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "increment discount uses")
}

func TestEngine_Redeem_ConcurrentLastUse(t *testing.T) {
	repo := newMockRepo(&Code{
		ID: "1", Code: "ONCE", Kind: KindFixed, Value: d("5"),
		Active: true, MaxUses: intPtr(1),
	})
	e := NewEngine(repo)

	const attempts = 2
	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
		errs  = make([]error, attempts)
	)
	for i := range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, errs[i] = e.Redeem(context.Background(), "ONCE", d("50"))
		}()
	}
	close(start)
	wg.Wait()

	var ok, exceeded int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrUsageExceeded):
			exceeded++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, exceeded)
	assert.Equal(t, 1, repo.codes["ONCE"].CurrentUses)
}

func TestEngine_Create(t *testing.T) {
	t.Run("normalizes and stores", func(t *testing.T) {
		repo := newMockRepo()
		c := &Code{Code: " spring25 ", Kind: KindPercentage, Value: d("25"), Active: true, CurrentUses: 7}

		require.NoError(t, NewEngine(repo).Create(context.Background(), c))
		stored := repo.codes["SPRING25"]
		require.NotNil(t, stored)
		assert.NotEmpty(t, stored.ID)
		assert.Zero(t, stored.CurrentUses)
	})

	t.Run("affiliate requires commission rate", func(t *testing.T) {
		c := &Code{
			Code: "PARTNER", Kind: KindPercentage, Value: d("10"), Active: true,
			Affiliate: &Affiliate{Name: "Dr. Lab"},
		}
		err := NewEngine(newMockRepo()).Create(context.Background(), c)

		var invalid *InvalidCodeError
		require.ErrorAs(t, err, &invalid)
		assert.Equal(t, "commission_rate", invalid.Field)
	})

	t.Run("affiliate requires name", func(t *testing.T) {
		c := &Code{
			Code: "PARTNER", Kind: KindPercentage, Value: d("10"), Active: true,
			Affiliate: &Affiliate{CommissionRate: d("10")},
		}
		err := NewEngine(newMockRepo()).Create(context.Background(), c)

		var invalid *InvalidCodeError
		require.ErrorAs(t, err, &invalid)
		assert.Equal(t, "affiliate_name", invalid.Field)
	})

	t.Run("percentage above 100 rejected", func(t *testing.T) {
		c := &Code{Code: "TOOMUCH", Kind: KindPercentage, Value: d("101"), Active: true}
		err := NewEngine(newMockRepo()).Create(context.Background(), c)

		var invalid *InvalidCodeError
		require.ErrorAs(t, err, &invalid)
		assert.Equal(t, "value", invalid.Field)
	})

	t.Run("duplicate", func(t *testing.T) {
		repo := newMockRepo(&Code{ID: "1", Code: "DUP", Kind: KindFixed, Value: d("1"), Active: true})
		err := NewEngine(repo).Create(context.Background(), &Code{Code: "dup", Kind: KindFixed, Value: d("2"), Active: true})
		require.ErrorIs(t, err, ErrDuplicate)
	})
}

func TestEngine_UpdateKeepsUsage(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	repo := newMockRepo(&Code{
		ID: "abc", Code: "SAVE5", Kind: KindFixed, Value: d("5"),
		Active: true, CurrentUses: 12, CreatedAt: created,
	})

	err := NewEngine(repo).Update(context.Background(), &Code{
		Code: "save5", Kind: KindFixed, Value: d("7.50"), Active: true, CurrentUses: 0,
	})
	require.NoError(t, err)

	stored := repo.codes["SAVE5"]
	assert.Equal(t, "abc", stored.ID)
	assert.Equal(t, 12, stored.CurrentUses)
	assert.Equal(t, created, stored.CreatedAt)
	assert.True(t, d("7.50").Equal(stored.Value))
}

func TestEngine_Deactivate(t *testing.T) {
	repo := newMockRepo(&Code{ID: "1", Code: "BYE", Kind: KindFixed, Value: d("5"), Active: true})
	e := NewEngine(repo)

	require.NoError(t, e.Deactivate(context.Background(), "bye"))
	assert.False(t, repo.codes["BYE"].Active)

	_, err := e.Validate(context.Background(), "BYE", d("100"))
	require.ErrorIs(t, err, ErrInactive)

	require.ErrorIs(t, e.Deactivate(context.Background(), "MISSING"), ErrNotFound)
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind(" Percentage ")
	require.NoError(t, err)
	assert.Equal(t, KindPercentage, k)

	_, err = ParseKind("bogo")
	require.Error(t, err)
}

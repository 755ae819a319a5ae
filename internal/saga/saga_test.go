package saga

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/eventsnap/service-gallery/internal/domain/coupon"
	"github.com/eventsnap/service-gallery/internal/domain/order"
	"github.com/eventsnap/service-gallery/internal/domain/pricing"
	"github.com/eventsnap/service-gallery/pkg/domain"
	"github.com/eventsnap/service-gallery/pkg/kafka"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSaga_CompensatesInReverse(t *testing.T) {
	var trail []string
	step := func(name string, fail bool) SagaStep {
		return SagaStep{
			Name: name,
			Execute: func(context.Context) error {
				trail = append(trail, "exec:"+name)
				if fail {
					return errors.New("boom")
				}
				return nil
			},
			Compensate: func(context.Context) error {
				trail = append(trail, "undo:"+name)
				return nil
			},
		}
	}

	s := NewSaga("test", zap.NewNop())
	s.AddStep(step("a", false))
	s.AddStep(step("b", false))
	s.AddStep(step("c", true))
	s.AddStep(step("d", false))

	err := s.Execute(context.Background())
	require.Error(t, err)

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, "c", stepErr.Step)
	assert.Equal(t, []string{"exec:a", "exec:b", "exec:c", "undo:b", "undo:a"}, trail)
}

func TestStepError_Unwraps(t *testing.T) {
	s := NewSaga("test", zap.NewNop())
	s.AddStep(SagaStep{Name: "only", Execute: func(context.Context) error { return coupon.ErrAlreadyUsed }})

	err := s.Execute(context.Background())
	assert.ErrorIs(t, err, coupon.ErrAlreadyUsed)
	assert.ErrorIs(t, err, domain.ErrConflict)
}

type memOrders struct {
	mu     sync.Mutex
	orders map[uuid.UUID]*order.Order
	err    error
}

func (m *memOrders) CreateWithRedemption(_ context.Context, o *order.Order, _ *coupon.Redemption) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.orders[o.ID()] = o
	return nil
}

func (m *memOrders) FindByID(_ context.Context, id uuid.UUID) (*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.orders[id]; ok {
		return o, nil
	}
	return nil, domain.NewNotFoundError("Order", id.String())
}

func (m *memOrders) FindByPaymentRef(context.Context, string) (*order.Order, error) {
	return nil, domain.NewNotFoundError("Order", "")
}

func (m *memOrders) Update(_ context.Context, o *order.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID()] = o
	return nil
}

func (m *memOrders) ListAll(context.Context, order.Status, int, int) ([]*order.Order, int64, error) {
	return nil, 0, nil
}

func (m *memOrders) SalesStats(context.Context) (int64, map[string]int64, error) {
	return 0, nil, nil
}

type stubGateway struct {
	calls     int
	err       error
	cancelled []string
}

func (g *stubGateway) CreateCheckout(_ context.Context, id uuid.UUID, _ int64, _, _ string) (string, string, error) {
	g.calls++
	if g.err != nil {
		return "", "", g.err
	}
	return "cs_1", "https://pay/" + id.String(), nil
}

func (g *stubGateway) CancelCheckout(_ context.Context, ref string) error {
	g.cancelled = append(g.cancelled, ref)
	return nil
}

type recordingPublisher struct {
	types []string
}

func (p *recordingPublisher) PublishEvent(_ context.Context, _ string, ce kafka.CloudEvent) error {
	p.types = append(p.types, ce.Type)
	return nil
}

func newTestOrder(t *testing.T, n int, terms *pricing.CouponTerms) *order.Order {
	t.Helper()
	ids := make([]uuid.UUID, n)
	for i := range ids {
		ids[i] = uuid.New()
	}
	o, err := order.NewOrder(ids, pricing.Calculate(n, terms), "", "", "x@y.z")
	require.NoError(t, err)
	return o
}

func TestCheckout_Pending(t *testing.T) {
	repo := &memOrders{orders: map[uuid.UUID]*order.Order{}}
	gw := &stubGateway{}
	pub := &recordingPublisher{}
	svc := NewCheckoutSagaService(repo, gw, pub, "USD", zap.NewNop())

	o := newTestOrder(t, 2, nil)
	url, err := svc.Checkout(context.Background(), o, nil)
	require.NoError(t, err)
	assert.Equal(t, "https://pay/"+o.ID().String(), url)
	assert.Equal(t, "cs_1", o.PaymentRef())
	assert.Equal(t, order.StatusPending, o.Status())
	assert.Equal(t, []string{"order.created"}, pub.types)
}

func TestCheckout_FreeOrderSkipsGateway(t *testing.T) {
	repo := &memOrders{orders: map[uuid.UUID]*order.Order{}}
	gw := &stubGateway{}
	pub := &recordingPublisher{}
	svc := NewCheckoutSagaService(repo, gw, pub, "USD", zap.NewNop())

	o := newTestOrder(t, 1, &pricing.CouponTerms{Type: pricing.DiscountPercentage, Value: 100})
	url, err := svc.Checkout(context.Background(), o, nil)
	require.NoError(t, err)
	assert.Empty(t, url)
	assert.Zero(t, gw.calls)
	assert.Equal(t, order.StatusPaid, o.Status())
	assert.Empty(t, o.PaymentRef())
	assert.Equal(t, []string{"order.created", "order.paid"}, pub.types)
}

func TestCheckout_GatewayFailureMarksFailed(t *testing.T) {
	repo := &memOrders{orders: map[uuid.UUID]*order.Order{}}
	gw := &stubGateway{err: errors.New("provider down")}
	pub := &recordingPublisher{}
	svc := NewCheckoutSagaService(repo, gw, pub, "USD", zap.NewNop())

	o := newTestOrder(t, 3, nil)
	_, err := svc.Checkout(context.Background(), o, nil)
	require.Error(t, err)

	stored, err := repo.FindByID(context.Background(), o.ID())
	require.NoError(t, err)
	assert.Equal(t, order.StatusFailed, stored.Status())
	assert.Equal(t, []string{"order.failed"}, pub.types)
}

func TestCheckout_RedemptionConflictStoresNothing(t *testing.T) {
	repo := &memOrders{orders: map[uuid.UUID]*order.Order{}, err: coupon.ErrAlreadyUsed}
	gw := &stubGateway{}
	svc := NewCheckoutSagaService(repo, gw, kafka.NoopPublisher{}, "USD", zap.NewNop())

	_, err := svc.Checkout(context.Background(), newTestOrder(t, 1, nil), &coupon.Redemption{Identity: "u"})
	assert.ErrorIs(t, err, coupon.ErrAlreadyUsed)
	assert.Zero(t, gw.calls)
	assert.Empty(t, repo.orders)
}

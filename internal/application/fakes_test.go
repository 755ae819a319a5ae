package application

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/eventsnap/service-gallery/internal/adapter"
	couponDomain "github.com/eventsnap/service-gallery/internal/domain/coupon"
	eventDomain "github.com/eventsnap/service-gallery/internal/domain/event"
	orderDomain "github.com/eventsnap/service-gallery/internal/domain/order"
	photoDomain "github.com/eventsnap/service-gallery/internal/domain/photo"
	"github.com/eventsnap/service-gallery/pkg/domain"
	"github.com/eventsnap/service-gallery/pkg/kafka"
)

// store is an in-memory catalog shared by the fake repositories. Its mutex
// plays the role of the database transaction.
type store struct {
	mu      sync.Mutex
	events  map[uuid.UUID]*eventDomain.Event
	photos  map[uuid.UUID]*photoDomain.Photo
	coupons map[uuid.UUID]*couponDomain.Coupon
	usages  map[string]bool
	orders  map[uuid.UUID]*orderDomain.Order
}

func newStore() *store {
	return &store{
		events:  make(map[uuid.UUID]*eventDomain.Event),
		photos:  make(map[uuid.UUID]*photoDomain.Photo),
		coupons: make(map[uuid.UUID]*couponDomain.Coupon),
		usages:  make(map[string]bool),
		orders:  make(map[uuid.UUID]*orderDomain.Order),
	}
}

// --- events ---

type memEvents struct{ st *store }

func (r memEvents) Save(_ context.Context, e *eventDomain.Event) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	r.st.events[e.ID()] = e
	return nil
}

func (r memEvents) Update(ctx context.Context, e *eventDomain.Event) error { return r.Save(ctx, e) }

func (r memEvents) FindByID(_ context.Context, id uuid.UUID) (*eventDomain.Event, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if e, ok := r.st.events[id]; ok {
		return e, nil
	}
	return nil, domain.NewNotFoundError("Event", id.String())
}

func (r memEvents) List(_ context.Context, page, limit int) ([]*eventDomain.Event, int64, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var out []*eventDomain.Event
	for _, e := range r.st.events {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date().After(out[j].Date()) })
	total := int64(len(out))
	start := (page - 1) * limit
	if start > len(out) {
		start = len(out)
	}
	end := start + limit
	if end > len(out) {
		end = len(out)
	}
	return out[start:end], total, nil
}

func (r memEvents) Delete(_ context.Context, id uuid.UUID) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if _, ok := r.st.events[id]; !ok {
		return domain.NewNotFoundError("Event", id.String())
	}
	delete(r.st.events, id)
	for pid, p := range r.st.photos {
		if p.EventID() == id {
			delete(r.st.photos, pid)
		}
	}
	return nil
}

// --- photos ---

type memPhotos struct{ st *store }

func (r memPhotos) Save(_ context.Context, p *photoDomain.Photo) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	r.st.photos[p.ID()] = p
	return nil
}

func (r memPhotos) FindByID(_ context.Context, id uuid.UUID) (*photoDomain.Photo, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if p, ok := r.st.photos[id]; ok {
		return p, nil
	}
	return nil, domain.NewNotFoundError("Photo", id.String())
}

func (r memPhotos) FindByIDs(_ context.Context, ids []uuid.UUID) ([]*photoDomain.Photo, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var out []*photoDomain.Photo
	for _, id := range ids {
		if p, ok := r.st.photos[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r memPhotos) where(keep func(*photoDomain.Photo) bool) []*photoDomain.Photo {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var out []*photoDomain.Photo
	for _, p := range r.st.photos {
		if keep(p) {
			out = append(out, p)
		}
	}
	return out
}

func (r memPhotos) FindByEvent(_ context.Context, eventID uuid.UUID) ([]*photoDomain.Photo, error) {
	return r.where(func(p *photoDomain.Photo) bool { return p.EventID() == eventID }), nil
}

func (r memPhotos) FindUnindexed(_ context.Context, eventID uuid.UUID) ([]*photoDomain.Photo, error) {
	return r.where(func(p *photoDomain.Photo) bool { return p.EventID() == eventID && !p.IsIndexed() }), nil
}

func (r memPhotos) FindByEventAndFaceIDs(_ context.Context, eventID uuid.UUID, faceIDs []string) ([]*photoDomain.Photo, error) {
	want := make(map[string]bool, len(faceIDs))
	for _, f := range faceIDs {
		want[f] = true
	}
	return r.where(func(p *photoDomain.Photo) bool {
		return p.EventID() == eventID && p.IsIndexed() && want[*p.FaceID()]
	}), nil
}

func (r memPhotos) UpdateFaceID(_ context.Context, id uuid.UUID, faceID string) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	p, ok := r.st.photos[id]
	if !ok {
		return domain.NewNotFoundError("Photo", id.String())
	}
	return p.AssignFace(faceID)
}

func (r memPhotos) CountByEvent(ctx context.Context, eventID uuid.UUID) (int64, error) {
	list, _ := r.FindByEvent(ctx, eventID)
	return int64(len(list)), nil
}

func (r memPhotos) DeleteByEvent(_ context.Context, eventID uuid.UUID) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	for id, p := range r.st.photos {
		if p.EventID() == eventID {
			delete(r.st.photos, id)
		}
	}
	return nil
}

// --- coupons ---

type memCoupons struct{ st *store }

func (r memCoupons) Save(_ context.Context, c *couponDomain.Coupon) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	for _, existing := range r.st.coupons {
		if existing.Code() == c.Code() && existing.ID() != c.ID() {
			return domain.NewConflictError("coupon code already exists")
		}
	}
	r.st.coupons[c.ID()] = c
	return nil
}

func (r memCoupons) Update(ctx context.Context, c *couponDomain.Coupon) error { return r.Save(ctx, c) }

func (r memCoupons) FindByCode(_ context.Context, code string) (*couponDomain.Coupon, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	code = couponDomain.NormalizeCode(code)
	for _, c := range r.st.coupons {
		if c.Code() == code {
			return c, nil
		}
	}
	return nil, couponDomain.ErrNotFound
}

func (r memCoupons) FindByID(_ context.Context, id uuid.UUID) (*couponDomain.Coupon, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if c, ok := r.st.coupons[id]; ok {
		return c, nil
	}
	return nil, couponDomain.ErrNotFound
}

func (r memCoupons) List(_ context.Context) ([]*couponDomain.Coupon, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var out []*couponDomain.Coupon
	for _, c := range r.st.coupons {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code() < out[j].Code() })
	return out, nil
}

func (r memCoupons) HasIdentityUsed(_ context.Context, couponID uuid.UUID, identity string) (bool, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	return r.st.usages[couponID.String()+"|"+identity], nil
}

// --- orders ---

type memOrders struct{ st *store }

func (r memOrders) CreateWithRedemption(_ context.Context, o *orderDomain.Order, red *couponDomain.Redemption) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	if red != nil {
		c, ok := r.st.coupons[red.CouponID]
		if !ok {
			return couponDomain.ErrNotFound
		}
		key := red.CouponID.String() + "|" + red.Identity
		if red.OnePerIdentity && r.st.usages[key] {
			return couponDomain.ErrAlreadyUsed
		}
		if !c.Active() {
			return couponDomain.ErrInactive
		}
		if err := c.CheckRemaining(); err != nil {
			return err
		}
		r.st.coupons[c.ID()] = couponDomain.Reconstruct(
			c.ID(), c.Code(), c.DiscountType(), c.DiscountValue(), c.ExpiresAt(), c.MaxUses(),
			c.UsedCount()+1, c.FreeUnits(), c.Active(), c.OnePerIdentity(), c.CreatedAt(), c.UpdatedAt(),
		)
		if red.OnePerIdentity {
			r.st.usages[key] = true
		}
	}
	r.st.orders[o.ID()] = o
	return nil
}

func (r memOrders) FindByID(_ context.Context, id uuid.UUID) (*orderDomain.Order, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if o, ok := r.st.orders[id]; ok {
		return o, nil
	}
	return nil, domain.NewNotFoundError("Order", id.String())
}

func (r memOrders) FindByPaymentRef(_ context.Context, ref string) (*orderDomain.Order, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	for _, o := range r.st.orders {
		if o.PaymentRef() == ref {
			return o, nil
		}
	}
	return nil, domain.NewNotFoundError("Order", ref)
}

func (r memOrders) Update(_ context.Context, o *orderDomain.Order) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	r.st.orders[o.ID()] = o
	return nil
}

func (r memOrders) ListAll(_ context.Context, status orderDomain.Status, page, limit int) ([]*orderDomain.Order, int64, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var all []*orderDomain.Order
	for _, o := range r.st.orders {
		if status == "" || o.Status() == status {
			all = append(all, o)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt().After(all[j].CreatedAt()) })
	total := int64(len(all))
	start := (page - 1) * limit
	if start >= len(all) {
		return nil, total, nil
	}
	end := start + limit
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], total, nil
}

func (r memOrders) SalesStats(context.Context) (int64, map[string]int64, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var revenue int64
	counts := make(map[string]int64)
	for _, o := range r.st.orders {
		counts[string(o.Status())]++
		if o.Status() == orderDomain.StatusPaid {
			revenue += o.TotalCents()
		}
	}
	return revenue, counts, nil
}

// --- collaborators ---

type stubFaces struct {
	matches []adapter.FaceMatch
	err     error
}

func (f *stubFaces) Index(_ context.Context, _ []byte, externalID string) (string, bool, error) {
	return "face-" + externalID, true, nil
}

func (f *stubFaces) Search(context.Context, []byte) ([]adapter.FaceMatch, error) {
	return f.matches, f.err
}

type countingGateway struct {
	*adapter.MockPaymentGateway
	mu    sync.Mutex
	calls int
}

func (g *countingGateway) CreateCheckout(ctx context.Context, orderID uuid.UUID, amountCents int64, currency, email string) (string, string, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	return g.MockPaymentGateway.CreateCheckout(ctx, orderID, amountCents, currency, email)
}

type recordingPublisher struct {
	mu    sync.Mutex
	types []string
}

func (p *recordingPublisher) PublishEvent(_ context.Context, _ string, ce kafka.CloudEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.types = append(p.types, ce.Type)
	return nil
}

func (p *recordingPublisher) count(eventType string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, t := range p.types {
		if t == eventType {
			n++
		}
	}
	return n
}

package repository

import (
	"context"
	"database/sql/driver"
	"errors"
	"time"

	couponDomain "github.com/eventsnap/service-gallery/internal/domain/coupon"
	orderDomain "github.com/eventsnap/service-gallery/internal/domain/order"
	"github.com/eventsnap/service-gallery/pkg/domain"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"
)

// PhotoIDList is a text[] column on postgres. Other dialects store the same
// array literal in a plain text column.
type PhotoIDList pq.StringArray

// Value implements driver.Valuer.
func (l PhotoIDList) Value() (driver.Value, error) {
	return pq.StringArray(l).Value()
}

// Scan implements sql.Scanner.
func (l *PhotoIDList) Scan(src interface{}) error {
	return (*pq.StringArray)(l).Scan(src)
}

// GormDBDataType picks the column type per dialect.
func (PhotoIDList) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	if db.Dialector.Name() == "postgres" {
		return "text[]"
	}
	return "text"
}

// OrderModel is the GORM persistence model for the orders table.
type OrderModel struct {
	ID             uuid.UUID   `gorm:"type:uuid;primaryKey"`
	PhotoIDs       PhotoIDList `gorm:"not null"`
	UnitPriceCents int64       `gorm:"not null"`
	SubtotalCents  int64       `gorm:"not null"`
	DiscountCents  int64       `gorm:"not null;default:0"`
	TotalCents     int64       `gorm:"not null"`
	Status         string      `gorm:"type:varchar(20);not null;default:'PENDING';index"`
	CouponCode     string      `gorm:"type:varchar(50)"`
	Identity       string      `gorm:"type:varchar(255);index"`
	CustomerEmail  string      `gorm:"type:varchar(255)"`
	PaymentRef     string      `gorm:"type:varchar(255);index"`
	FailureReason  string      `gorm:"type:text"`
	PaidAt         *time.Time
	CreatedAt      time.Time `gorm:"not null"`
	UpdatedAt      time.Time `gorm:"not null"`
}

// TableName specifies the table name for GORM.
func (OrderModel) TableName() string {
	return "orders"
}

// OrderRepositoryImpl is the GORM-based implementation of OrderRepository.
type OrderRepositoryImpl struct {
	db *gorm.DB
}

// NewOrderRepository creates a new GORM-based order repository.
func NewOrderRepository(db *gorm.DB) *OrderRepositoryImpl {
	return &OrderRepositoryImpl{db: db}
}

// CreateWithRedemption inserts the order and consumes the coupon in one
// transaction. The coupon row is locked first so concurrent checkouts for
// the same coupon are serialized.
func (r *OrderRepositoryImpl) CreateWithRedemption(ctx context.Context, o *orderDomain.Order, redemption *couponDomain.Redemption) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if redemption != nil {
			if err := redeem(tx, o, redemption); err != nil {
				return err
			}
		}
		return tx.Create(toOrderModel(o)).Error
	})
}

func redeem(tx *gorm.DB, o *orderDomain.Order, red *couponDomain.Redemption) error {
	var locked CouponModel
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", red.CouponID).
		First(&locked).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return couponDomain.ErrNotFound
		}
		return err
	}

	if red.OnePerIdentity {
		var used int64
		if err := tx.Model(&CouponUsageModel{}).
			Where("coupon_id = ? AND identity = ?", red.CouponID, red.Identity).
			Count(&used).Error; err != nil {
			return err
		}
		if used > 0 {
			return couponDomain.ErrAlreadyUsed
		}
	}

	if !locked.Active {
		return couponDomain.ErrInactive
	}
	if err := couponDomain.UseLimitError(locked.MaxUses, locked.UsedCount); err != nil {
		return err
	}

	result := tx.Model(&CouponModel{}).
		Where("id = ? AND active = ? AND (max_uses IS NULL OR used_count < max_uses)", red.CouponID, true).
		Updates(map[string]interface{}{
			"used_count": gorm.Expr("used_count + 1"),
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return couponDomain.ErrAlreadyUsed
	}

	if !red.OnePerIdentity {
		return nil
	}
	usage := CouponUsageModel{
		ID:            uuid.New(),
		CouponID:      red.CouponID,
		Identity:      red.Identity,
		OrderID:       o.ID(),
		DiscountCents: red.DiscountCents,
		UsedAt:        time.Now().UTC(),
	}
	if err := tx.Create(&usage).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return couponDomain.ErrAlreadyUsed
		}
		return err
	}
	return nil
}

// FindByID retrieves an order by its unique ID.
func (r *OrderRepositoryImpl) FindByID(ctx context.Context, id uuid.UUID) (*orderDomain.Order, error) {
	var model OrderModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewNotFoundError("Order", id.String())
		}
		return nil, err
	}
	return toOrderDomain(&model), nil
}

// FindByPaymentRef retrieves an order by its provider checkout reference.
func (r *OrderRepositoryImpl) FindByPaymentRef(ctx context.Context, ref string) (*orderDomain.Order, error) {
	var model OrderModel
	if err := r.db.WithContext(ctx).Where("payment_ref = ?", ref).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewNotFoundError("Order", ref)
		}
		return nil, err
	}
	return toOrderDomain(&model), nil
}

// Update persists the mutable fields of an order. Amounts are never rewritten.
func (r *OrderRepositoryImpl) Update(ctx context.Context, o *orderDomain.Order) error {
	result := r.db.WithContext(ctx).Model(&OrderModel{}).
		Where("id = ?", o.ID()).
		Updates(map[string]interface{}{
			"status":         string(o.Status()),
			"payment_ref":    o.PaymentRef(),
			"failure_reason": o.FailureReason(),
			"paid_at":        o.PaidAt(),
			"updated_at":     o.UpdatedAt(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.NewNotFoundError("Order", o.ID().String())
	}
	return nil
}

// ListAll retrieves orders with pagination, optionally filtered by status (admin).
func (r *OrderRepositoryImpl) ListAll(ctx context.Context, status orderDomain.Status, page, limit int) ([]*orderDomain.Order, int64, error) {
	query := r.db.WithContext(ctx).Model(&OrderModel{})
	if status != "" {
		query = query.Where("status = ?", string(status))
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var models []OrderModel
	offset := (page - 1) * limit
	if err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&models).Error; err != nil {
		return nil, 0, err
	}

	orders := make([]*orderDomain.Order, len(models))
	for i := range models {
		orders[i] = toOrderDomain(&models[i])
	}
	return orders, total, nil
}

// SalesStats returns paid revenue and order counts by status (admin).
func (r *OrderRepositoryImpl) SalesStats(ctx context.Context) (int64, map[string]int64, error) {
	var revenue int64
	if err := r.db.WithContext(ctx).Model(&OrderModel{}).
		Where("status = ?", string(orderDomain.StatusPaid)).
		Select("COALESCE(SUM(total_cents), 0)").
		Scan(&revenue).Error; err != nil {
		return 0, nil, err
	}

	type statusCount struct {
		Status string
		Count  int64
	}
	var results []statusCount
	if err := r.db.WithContext(ctx).Model(&OrderModel{}).
		Select("status, count(*) as count").
		Group("status").
		Find(&results).Error; err != nil {
		return 0, nil, err
	}

	counts := make(map[string]int64, len(results))
	for _, sc := range results {
		counts[sc.Status] = sc.Count
	}
	return revenue, counts, nil
}

// toOrderDomain maps an OrderModel to the domain Order aggregate.
func toOrderDomain(model *OrderModel) *orderDomain.Order {
	photoIDs := make([]uuid.UUID, 0, len(model.PhotoIDs))
	for _, raw := range model.PhotoIDs {
		if id, err := uuid.Parse(raw); err == nil {
			photoIDs = append(photoIDs, id)
		}
	}
	return orderDomain.Reconstitute(
		model.ID,
		photoIDs,
		model.UnitPriceCents,
		model.SubtotalCents,
		model.DiscountCents,
		model.TotalCents,
		orderDomain.Status(model.Status),
		model.CouponCode,
		model.Identity,
		model.CustomerEmail,
		model.PaymentRef,
		model.FailureReason,
		model.PaidAt,
		model.CreatedAt,
		model.UpdatedAt,
	)
}

// toOrderModel maps a domain Order aggregate to an OrderModel for persistence.
func toOrderModel(o *orderDomain.Order) *OrderModel {
	photoIDs := make(PhotoIDList, len(o.PhotoIDs()))
	for i, id := range o.PhotoIDs() {
		photoIDs[i] = id.String()
	}
	return &OrderModel{
		ID:             o.ID(),
		PhotoIDs:       photoIDs,
		UnitPriceCents: o.UnitPriceCents(),
		SubtotalCents:  o.SubtotalCents(),
		DiscountCents:  o.DiscountCents(),
		TotalCents:     o.TotalCents(),
		Status:         string(o.Status()),
		CouponCode:     o.CouponCode(),
		Identity:       o.Identity(),
		CustomerEmail:  o.CustomerEmail(),
		PaymentRef:     o.PaymentRef(),
		FailureReason:  o.FailureReason(),
		PaidAt:         o.PaidAt(),
		CreatedAt:      o.CreatedAt(),
		UpdatedAt:      o.UpdatedAt(),
	}
}

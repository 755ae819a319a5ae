package repository

import (
	"context"
	"errors"
	"time"

	couponDomain "github.com/eventsnap/service-gallery/internal/domain/coupon"
	"github.com/eventsnap/service-gallery/internal/domain/pricing"
	"github.com/eventsnap/service-gallery/pkg/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CouponModel is the GORM model for the coupons table.
type CouponModel struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	Code           string    `gorm:"type:varchar(50);uniqueIndex;not null"`
	DiscountType   string    `gorm:"type:varchar(20);not null"`
	DiscountValue  int64     `gorm:"not null;default:0"`
	ExpiresAt      *time.Time
	MaxUses        *int
	UsedCount      int       `gorm:"not null;default:0"`
	FreeUnits      int       `gorm:"not null;default:0"`
	Active         bool      `gorm:"not null;default:true"`
	OnePerIdentity bool      `gorm:"not null;default:false"`
	CreatedAt      time.Time `gorm:"not null"`
	UpdatedAt      time.Time `gorm:"not null"`
}

// TableName sets the table name.
func (CouponModel) TableName() string { return "coupons" }

// CouponUsageModel is the GORM model for the coupon_usages table.
type CouponUsageModel struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	CouponID      uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_coupon_usages_coupon_identity"`
	Identity      string    `gorm:"type:varchar(255);not null;uniqueIndex:idx_coupon_usages_coupon_identity"`
	OrderID       uuid.UUID `gorm:"type:uuid;not null"`
	DiscountCents int64     `gorm:"not null"`
	UsedAt        time.Time `gorm:"not null"`
}

// TableName sets the table name.
func (CouponUsageModel) TableName() string { return "coupon_usages" }

// GormCouponRepository implements CouponRepository using GORM.
type GormCouponRepository struct {
	db *gorm.DB
}

// NewGormCouponRepository creates a new GormCouponRepository.
func NewGormCouponRepository(db *gorm.DB) *GormCouponRepository {
	return &GormCouponRepository{db: db}
}

// Save persists a new coupon. A duplicate code is a conflict.
func (r *GormCouponRepository) Save(ctx context.Context, c *couponDomain.Coupon) error {
	model := toCouponModel(c)
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.NewConflictError("coupon code already exists")
		}
		return err
	}
	return nil
}

// Update updates a coupon's mutable settings. used_count is owned by the
// redemption transaction and is never written from here.
func (r *GormCouponRepository) Update(ctx context.Context, c *couponDomain.Coupon) error {
	return r.db.WithContext(ctx).Model(&CouponModel{}).
		Where("id = ?", c.ID()).
		Updates(map[string]interface{}{
			"active":     c.Active(),
			"expires_at": c.ExpiresAt(),
			"max_uses":   c.MaxUses(),
			"updated_at": c.UpdatedAt(),
		}).Error
}

// FindByCode returns a coupon by its normalized code.
func (r *GormCouponRepository) FindByCode(ctx context.Context, code string) (*couponDomain.Coupon, error) {
	var model CouponModel
	if err := r.db.WithContext(ctx).Where("code = ?", couponDomain.NormalizeCode(code)).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, couponDomain.ErrNotFound
		}
		return nil, err
	}
	return toCouponDomain(&model), nil
}

// FindByID returns a coupon by ID.
func (r *GormCouponRepository) FindByID(ctx context.Context, id uuid.UUID) (*couponDomain.Coupon, error) {
	var model CouponModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewNotFoundError("Coupon", id.String())
		}
		return nil, err
	}
	return toCouponDomain(&model), nil
}

// List returns every coupon, newest first.
func (r *GormCouponRepository) List(ctx context.Context) ([]*couponDomain.Coupon, error) {
	var models []CouponModel
	if err := r.db.WithContext(ctx).Order("created_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}

	coupons := make([]*couponDomain.Coupon, len(models))
	for i := range models {
		coupons[i] = toCouponDomain(&models[i])
	}
	return coupons, nil
}

// HasIdentityUsed checks if an identity has already redeemed a coupon.
func (r *GormCouponRepository) HasIdentityUsed(ctx context.Context, couponID uuid.UUID, identity string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&CouponUsageModel{}).
		Where("coupon_id = ? AND identity = ?", couponID, identity).
		Count(&count).Error
	return count > 0, err
}

func toCouponModel(c *couponDomain.Coupon) CouponModel {
	return CouponModel{
		ID:             c.ID(),
		Code:           c.Code(),
		DiscountType:   string(c.DiscountType()),
		DiscountValue:  c.DiscountValue(),
		ExpiresAt:      c.ExpiresAt(),
		MaxUses:        c.MaxUses(),
		UsedCount:      c.UsedCount(),
		FreeUnits:      c.FreeUnits(),
		Active:         c.Active(),
		OnePerIdentity: c.OnePerIdentity(),
		CreatedAt:      c.CreatedAt(),
		UpdatedAt:      c.UpdatedAt(),
	}
}

func toCouponDomain(m *CouponModel) *couponDomain.Coupon {
	return couponDomain.Reconstruct(
		m.ID, m.Code, pricing.DiscountType(m.DiscountType), m.DiscountValue,
		m.ExpiresAt, m.MaxUses, m.UsedCount, m.FreeUnits,
		m.Active, m.OnePerIdentity,
		m.CreatedAt, m.UpdatedAt,
	)
}

package service

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"storefront/internal/apperr"
	"storefront/internal/models"
	"storefront/internal/store"
	"storefront/internal/util"
)

type CouponService struct {
	db     store.DB
	now    func() time.Time
	logger *zap.Logger
}

func NewCouponService(db store.DB) *CouponService {
	return &CouponService{db: db, now: time.Now, logger: util.GetLogger()}
}

// CouponQuote is the outcome of applying a coupon to a cart total.
type CouponQuote struct {
	Coupon   models.Coupon
	Discount decimal.Decimal
	NewTotal decimal.Decimal
}

// Validate checks code against total without consuming a use.
func (s *CouponService) Validate(ctx context.Context, code string, total decimal.Decimal) (*CouponQuote, error) {
	ctx, span := util.StartSpan(ctx, "CouponService.Validate")
	defer span.End()

	code = strings.TrimSpace(code)
	if code == "" {
		return nil, apperr.Validation("coupon code is required")
	}
	if total.IsNegative() {
		return nil, apperr.Validation("cart total cannot be negative")
	}

	coupon, err := s.db.GetCouponByCode(ctx, code)
	if err != nil {
		util.CouponValidationsTotal.WithLabelValues("unknown").Inc()
		return nil, notFoundAs(err, "invalid coupon code")
	}

	discount, err := evaluateCoupon(coupon, total, s.now())
	if err != nil {
		util.CouponValidationsTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}

	util.CouponValidationsTotal.WithLabelValues("valid").Inc()
	return &CouponQuote{
		Coupon:   *coupon,
		Discount: discount,
		NewTotal: models.RoundMoney(total.Sub(discount)),
	}, nil
}

// evaluateCoupon returns the discount coupon grants on total, or why it cannot be applied.
func evaluateCoupon(c *models.Coupon, total decimal.Decimal, now time.Time) (decimal.Decimal, error) {
	if !c.IsValid(now) {
		return decimal.Zero, apperr.Validation("coupon is expired or invalid")
	}
	if !c.MeetsMinimum(total) {
		return decimal.Zero, apperr.Validation("minimum order amount of %s required",
			models.FormatMoney(c.MinimumAmount.Decimal))
	}
	return c.DiscountFor(total), nil
}

type CreateCouponInput struct {
	Code          string           `json:"code" validate:"required,max=50"`
	Description   string           `json:"description"`
	DiscountType  string           `json:"discount_type" validate:"required,oneof=percentage fixed"`
	DiscountValue decimal.Decimal  `json:"discount_value"`
	MinimumAmount *decimal.Decimal `json:"minimum_amount"`
	UsageLimit    *int             `json:"usage_limit" validate:"omitempty,min=1"`
	IsActive      *bool            `json:"is_active"`
	ValidFrom     time.Time        `json:"valid_from" validate:"required"`
	ValidUntil    time.Time        `json:"valid_until" validate:"required"`
}

func (s *CouponService) Create(ctx context.Context, in CreateCouponInput) (*models.Coupon, error) {
	ctx, span := util.StartSpan(ctx, "CouponService.Create")
	defer span.End()

	if err := validateStruct(in); err != nil {
		return nil, err
	}
	if !in.DiscountValue.IsPositive() {
		return nil, apperr.Validation("discount value must be greater than 0")
	}
	if in.DiscountType == models.DiscountPercentage && in.DiscountValue.GreaterThan(decimal.NewFromInt(100)) {
		return nil, apperr.Validation("percentage discount cannot exceed 100")
	}
	if !in.ValidUntil.After(in.ValidFrom) {
		return nil, apperr.Validation("valid_until must be after valid_from")
	}

	c := &models.Coupon{
		Code:          strings.ToUpper(strings.TrimSpace(in.Code)),
		Description:   in.Description,
		DiscountType:  in.DiscountType,
		DiscountValue: in.DiscountValue,
		UsageLimit:    in.UsageLimit,
		IsActive:      in.IsActive == nil || *in.IsActive,
		ValidFrom:     in.ValidFrom,
		ValidUntil:    in.ValidUntil,
	}
	if in.MinimumAmount != nil {
		c.MinimumAmount = decimal.NewNullDecimal(*in.MinimumAmount)
	}

	if err := s.db.CreateCoupon(ctx, c); err != nil {
		return nil, conflictAs(err, "a coupon with this code already exists")
	}

	s.logger.Info("Coupon created", zap.String("code", c.Code), zap.String("type", c.DiscountType))
	return c, nil
}

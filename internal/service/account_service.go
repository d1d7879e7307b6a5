package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"storefront/internal/apperr"
	"storefront/internal/models"
	"storefront/internal/store"
	"storefront/internal/util"
)

// AccountService covers the signed-in user's profile, wishlist and reviews.
type AccountService struct {
	db     store.DB
	cache  CatalogCache
	logger *zap.Logger
}

func NewAccountService(db store.DB, cache CatalogCache) *AccountService {
	return &AccountService{db: db, cache: cache, logger: util.GetLogger()}
}

// GetProfile returns the user's profile, or an empty one if none was saved yet.
func (s *AccountService) GetProfile(ctx context.Context, user *models.User) (*models.UserProfile, error) {
	ctx, span := util.StartSpan(ctx, "AccountService.GetProfile")
	defer span.End()

	profile, err := s.db.GetProfile(ctx, user.ID)
	if errors.Is(err, store.ErrNotFound) {
		return &models.UserProfile{UserID: user.ID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return profile, nil
}

type ProfileInput struct {
	Phone                string  `json:"phone" validate:"max=20"`
	BirthDate            *string `json:"birth_date" validate:"omitempty,datetime=2006-01-02"`
	NewsletterSubscribed bool    `json:"newsletter_subscribed"`
	DefaultAddressLine1  string  `json:"default_address_line1" validate:"max=200"`
	DefaultAddressLine2  string  `json:"default_address_line2" validate:"max=200"`
	DefaultCity          string  `json:"default_city" validate:"max=100"`
	DefaultState         string  `json:"default_state" validate:"max=100"`
	DefaultZipCode       string  `json:"default_zip_code" validate:"max=20"`
	DefaultCountry       string  `json:"default_country" validate:"max=100"`
}

func (s *AccountService) UpdateProfile(ctx context.Context, user *models.User, in ProfileInput) (*models.UserProfile, error) {
	ctx, span := util.StartSpan(ctx, "AccountService.UpdateProfile")
	defer span.End()

	if err := validateStruct(in); err != nil {
		return nil, err
	}

	p := &models.UserProfile{
		UserID:               user.ID,
		Phone:                in.Phone,
		NewsletterSubscribed: in.NewsletterSubscribed,
		DefaultAddressLine1:  in.DefaultAddressLine1,
		DefaultAddressLine2:  in.DefaultAddressLine2,
		DefaultCity:          in.DefaultCity,
		DefaultState:         in.DefaultState,
		DefaultZipCode:       in.DefaultZipCode,
		DefaultCountry:       in.DefaultCountry,
	}
	if in.BirthDate != nil {
		d, err := time.Parse("2006-01-02", *in.BirthDate)
		if err != nil {
			return nil, apperr.ValidationDetails("invalid request", map[string]string{"birth_date": "use YYYY-MM-DD"})
		}
		p.BirthDate = &d
	}

	if err := s.db.UpsertProfile(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to save profile: %w", err)
	}
	return p, nil
}

func (s *AccountService) Wishlist(ctx context.Context, user *models.User) ([]models.Product, error) {
	ctx, span := util.StartSpan(ctx, "AccountService.Wishlist")
	defer span.End()

	products, err := s.db.ListWishlist(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list wishlist: %w", err)
	}
	return products, nil
}

// AddToWishlist is idempotent; adding a product twice keeps one entry.
func (s *AccountService) AddToWishlist(ctx context.Context, user *models.User, productID int64) ([]models.Product, error) {
	ctx, span := util.StartSpan(ctx, "AccountService.AddToWishlist")
	defer span.End()

	if _, err := s.db.GetProductByID(ctx, productID); err != nil {
		return nil, notFoundAs(err, "product not found")
	}
	if err := s.db.AddToWishlist(ctx, user.ID, productID); err != nil {
		return nil, fmt.Errorf("failed to add to wishlist: %w", err)
	}
	return s.Wishlist(ctx, user)
}

func (s *AccountService) RemoveFromWishlist(ctx context.Context, user *models.User, productID int64) error {
	ctx, span := util.StartSpan(ctx, "AccountService.RemoveFromWishlist")
	defer span.End()

	removed, err := s.db.RemoveFromWishlist(ctx, user.ID, productID)
	if err != nil {
		return fmt.Errorf("failed to remove from wishlist: %w", err)
	}
	if !removed {
		return apperr.NotFound("product not in wishlist")
	}
	return nil
}

// Reviews lists approved reviews of a product, newest first.
func (s *AccountService) Reviews(ctx context.Context, productID int64) ([]models.ProductReview, error) {
	ctx, span := util.StartSpan(ctx, "AccountService.Reviews")
	defer span.End()

	if _, err := s.db.GetProductByID(ctx, productID); err != nil {
		return nil, notFoundAs(err, "product not found")
	}
	reviews, err := s.db.ListReviews(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to list reviews: %w", err)
	}
	return reviews, nil
}

type ReviewInput struct {
	ProductID int64  `json:"product" validate:"required"`
	Rating    int    `json:"rating" validate:"required,min=1,max=5"`
	Title     string `json:"title" validate:"required,max=200"`
	Comment   string `json:"comment" validate:"required"`
}

// CreateReview records the user's single review of a product. It is marked as a
// verified purchase when one of the user's non-cancelled orders contains the product.
func (s *AccountService) CreateReview(ctx context.Context, user *models.User, in ReviewInput) (*models.ProductReview, error) {
	ctx, span := util.StartSpan(ctx, "AccountService.CreateReview")
	defer span.End()

	if err := validateStruct(in); err != nil {
		return nil, err
	}
	if _, err := s.db.GetProductByID(ctx, in.ProductID); err != nil {
		return nil, notFoundAs(err, "product not found")
	}

	verified, err := s.db.HasPurchased(ctx, user.ID, in.ProductID)
	if err != nil {
		return nil, fmt.Errorf("failed to check purchase: %w", err)
	}

	review := &models.ProductReview{
		ProductID:          in.ProductID,
		UserID:             user.ID,
		Username:           user.Username,
		Rating:             in.Rating,
		Title:              in.Title,
		Comment:            in.Comment,
		IsVerifiedPurchase: verified,
		IsApproved:         true,
	}
	if err := s.db.CreateReview(ctx, review); err != nil {
		return nil, conflictAs(err, "you have already reviewed this product")
	}

	s.logger.Info("Review created",
		zap.Int64("product_id", in.ProductID),
		zap.Int64("user_id", user.ID),
		zap.Bool("verified", verified))
	invalidateCatalog(ctx, s.cache, s.logger)
	return review, nil
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"storefront/internal/models"

	"github.com/jmoiron/sqlx"
)

func (q *Queries) CreateUser(ctx context.Context, u *models.User) error {
	query := `
		INSERT INTO users (username, email, first_name, last_name, password_hash, is_staff, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`
	err := sqlx.GetContext(ctx, q.q, u, query,
		u.Username, u.Email, u.FirstName, u.LastName, u.PasswordHash, u.IsStaff, u.IsActive)
	if isUniqueViolation(err) {
		return fmt.Errorf("user %q: %w", u.Username, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (q *Queries) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	return q.getUser(ctx, "SELECT * FROM users WHERE id = $1", id)
}

func (q *Queries) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return q.getUser(ctx, "SELECT * FROM users WHERE username = $1", username)
}

// GetUserByToken resolves an opaque token to its active user.
func (q *Queries) GetUserByToken(ctx context.Context, key string) (*models.User, error) {
	return q.getUser(ctx, `
		SELECT u.* FROM users u
		JOIN auth_tokens t ON t.user_id = u.id
		WHERE t.key = $1 AND u.is_active`, key)
}

func (q *Queries) getUser(ctx context.Context, query string, arg interface{}) (*models.User, error) {
	var u models.User
	err := sqlx.GetContext(ctx, q.q, &u, query, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

func (q *Queries) CreateToken(ctx context.Context, t *models.AuthToken) error {
	err := sqlx.GetContext(ctx, q.q, &t.CreatedAt,
		"INSERT INTO auth_tokens (key, user_id) VALUES ($1, $2) RETURNING created_at", t.Key, t.UserID)
	if err != nil {
		return fmt.Errorf("failed to create token: %w", err)
	}
	return nil
}

func (q *Queries) DeleteToken(ctx context.Context, key string) error {
	if _, err := q.q.ExecContext(ctx, "DELETE FROM auth_tokens WHERE key = $1", key); err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	return nil
}

func (q *Queries) GetProfile(ctx context.Context, userID int64) (*models.UserProfile, error) {
	var p models.UserProfile
	err := sqlx.GetContext(ctx, q.q, &p, "SELECT * FROM user_profiles WHERE user_id = $1", userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("profile for user %d: %w", userID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return &p, nil
}

// UpsertProfile creates or fully replaces the user's profile.
func (q *Queries) UpsertProfile(ctx context.Context, p *models.UserProfile) error {
	query := `
		INSERT INTO user_profiles (user_id, phone, birth_date, newsletter_subscribed,
			default_address_line1, default_address_line2, default_city, default_state,
			default_zip_code, default_country)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (user_id) DO UPDATE SET
			phone = EXCLUDED.phone,
			birth_date = EXCLUDED.birth_date,
			newsletter_subscribed = EXCLUDED.newsletter_subscribed,
			default_address_line1 = EXCLUDED.default_address_line1,
			default_address_line2 = EXCLUDED.default_address_line2,
			default_city = EXCLUDED.default_city,
			default_state = EXCLUDED.default_state,
			default_zip_code = EXCLUDED.default_zip_code,
			default_country = EXCLUDED.default_country,
			updated_at = NOW()
		RETURNING created_at, updated_at`
	err := sqlx.GetContext(ctx, q.q, p, query,
		p.UserID, p.Phone, p.BirthDate, p.NewsletterSubscribed,
		p.DefaultAddressLine1, p.DefaultAddressLine2, p.DefaultCity, p.DefaultState,
		p.DefaultZipCode, p.DefaultCountry)
	if err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	return nil
}

// AddToWishlist is idempotent.
func (q *Queries) AddToWishlist(ctx context.Context, userID, productID int64) error {
	_, err := q.q.ExecContext(ctx,
		"INSERT INTO wishlist_items (user_id, product_id) VALUES ($1, $2) ON CONFLICT DO NOTHING",
		userID, productID)
	if err != nil {
		return fmt.Errorf("failed to add to wishlist: %w", err)
	}
	return nil
}

func (q *Queries) RemoveFromWishlist(ctx context.Context, userID, productID int64) (bool, error) {
	res, err := q.q.ExecContext(ctx,
		"DELETE FROM wishlist_items WHERE user_id = $1 AND product_id = $2", userID, productID)
	if err != nil {
		return false, fmt.Errorf("failed to remove from wishlist: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (q *Queries) ListWishlist(ctx context.Context, userID int64) ([]models.Product, error) {
	products := []models.Product{}
	err := sqlx.SelectContext(ctx, q.q, &products, productSelect+`
		JOIN wishlist_items w ON w.product_id = p.id
		WHERE w.user_id = $1
		ORDER BY w.created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list wishlist: %w", err)
	}
	return products, nil
}

// ListReviews returns approved reviews for a product, newest first.
func (q *Queries) ListReviews(ctx context.Context, productID int64) ([]models.ProductReview, error) {
	reviews := []models.ProductReview{}
	err := sqlx.SelectContext(ctx, q.q, &reviews, `
		SELECT r.*, u.username FROM product_reviews r
		JOIN users u ON u.id = r.user_id
		WHERE r.product_id = $1 AND r.is_approved
		ORDER BY r.created_at DESC, r.id DESC`, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to list reviews: %w", err)
	}
	return reviews, nil
}

func (q *Queries) CreateReview(ctx context.Context, r *models.ProductReview) error {
	query := `
		INSERT INTO product_reviews (product_id, user_id, rating, title, comment,
			is_verified_purchase, is_approved)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, helpful_votes, created_at`
	err := sqlx.GetContext(ctx, q.q, r, query,
		r.ProductID, r.UserID, r.Rating, r.Title, r.Comment, r.IsVerifiedPurchase, r.IsApproved)
	if isUniqueViolation(err) {
		return fmt.Errorf("review for product %d: %w", r.ProductID, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to create review: %w", err)
	}
	return nil
}

// HasPurchased reports whether the user has a non-cancelled order containing the product.
func (q *Queries) HasPurchased(ctx context.Context, userID, productID int64) (bool, error) {
	var exists bool
	err := sqlx.GetContext(ctx, q.q, &exists, `
		SELECT EXISTS(
			SELECT 1 FROM order_items oi
			JOIN orders o ON o.id = oi.order_id
			WHERE o.user_id = $1 AND oi.product_id = $2 AND o.status <> 'cancelled'
		)`, userID, productID)
	if err != nil {
		return false, fmt.Errorf("failed to check purchase: %w", err)
	}
	return exists, nil
}

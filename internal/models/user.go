package models

import "time"

type User struct {
	ID           int64     `db:"id"`
	Username     string    `db:"username"`
	Email        string    `db:"email"`
	FirstName    string    `db:"first_name"`
	LastName     string    `db:"last_name"`
	PasswordHash string    `db:"password_hash"`
	IsStaff      bool      `db:"is_staff"`
	IsActive     bool      `db:"is_active"`
	CreatedAt    time.Time `db:"created_at"`
}

// AuthToken is an opaque credential mapped to a user.
type AuthToken struct {
	Key       string    `db:"key"`
	UserID    int64     `db:"user_id"`
	CreatedAt time.Time `db:"created_at"`
}

type UserProfile struct {
	UserID               int64      `db:"user_id"`
	Phone                string     `db:"phone"`
	BirthDate            *time.Time `db:"birth_date"`
	NewsletterSubscribed bool       `db:"newsletter_subscribed"`
	DefaultAddressLine1  string     `db:"default_address_line1"`
	DefaultAddressLine2  string     `db:"default_address_line2"`
	DefaultCity          string     `db:"default_city"`
	DefaultState         string     `db:"default_state"`
	DefaultZipCode       string     `db:"default_zip_code"`
	DefaultCountry       string     `db:"default_country"`
	CreatedAt            time.Time  `db:"created_at"`
	UpdatedAt            time.Time  `db:"updated_at"`
}

package service

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"storefront/internal/apperr"
	"storefront/internal/models"
	"storefront/internal/store"
)

// CatalogCache stores rendered catalog reads. Implemented by *redisclient.Client.
type CatalogCache interface {
	GetCatalog(ctx context.Context, key string, dest interface{}) (bool, error)
	SetCatalog(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	InvalidateCatalog(ctx context.Context) error
}

// Locker guards a critical section across instances. Implemented by *redisclient.Client.
type Locker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	ReleaseLock(ctx context.Context, key, token string) error
}

// IdempotencyStore remembers the result of a keyed request. Implemented by *redisclient.Client.
type IdempotencyStore interface {
	SetIdempotencyKey(ctx context.Context, key, value string, ttl time.Duration) error
	GetIdempotencyKey(ctx context.Context, key string) (string, bool, error)
}

// OrderEventPublisher is implemented by *broker.EventPublisher.
type OrderEventPublisher interface {
	PublishOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error
	PublishOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateStruct converts validator failures into a ValidationError with per-field details.
func validateStruct(s interface{}) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Validation("invalid request")
	}
	details := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		details[fieldPath(fe.Namespace())] = fieldMessage(fe)
	}
	return apperr.ValidationDetails("invalid request", details)
}

// fieldPath drops the root struct name from a validator namespace.
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "email":
		return "enter a valid email address"
	case "min", "gte":
		return "must be at least " + fe.Param()
	case "max", "lte":
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	default:
		return "invalid value"
	}
}

// notFoundAs maps store.ErrNotFound onto a client-facing NotFound and wraps anything else.
func notFoundAs(err error, message string) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound("%s", message)
	}
	return err
}

package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"storefront/internal/apperr"
	"storefront/internal/models"
	"storefront/internal/store"
	"storefront/internal/util"
)

// CartService manages the cart of a signed-in user or an anonymous session.
type CartService struct {
	db     store.DB
	logger *zap.Logger
}

func NewCartService(db store.DB) *CartService {
	return &CartService{db: db, logger: util.GetLogger()}
}

// CartView is a cart with its lines priced from the live catalog.
type CartView struct {
	Cart        models.Cart
	Lines       []models.CartLine
	TotalItems  int
	TotalAmount decimal.Decimal
}

type AddItemInput struct {
	ProductID int64  `json:"product_id" validate:"required"`
	VariantID *int64 `json:"variant_id"`
	Quantity  int    `json:"quantity"`
}

// Get returns the owner's cart, creating an empty one on first access.
func (s *CartService) Get(ctx context.Context, owner models.CartOwner) (*CartView, error) {
	ctx, span := util.StartSpan(ctx, "CartService.Get")
	defer span.End()

	cart, err := s.cart(ctx, s.db, owner)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, s.db, cart)
}

func (s *CartService) cart(ctx context.Context, r store.Repository, owner models.CartOwner) (*models.Cart, error) {
	if owner.IsZero() {
		return nil, apperr.Validation("cart owner is required")
	}
	cart, err := r.GetOrCreateCart(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}
	return cart, nil
}

func (s *CartService) view(ctx context.Context, r store.Repository, cart *models.Cart) (*CartView, error) {
	lines, err := r.ListCartLines(ctx, cart.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cart lines: %w", err)
	}
	items, amount := models.CartTotals(lines)
	return &CartView{Cart: *cart, Lines: lines, TotalItems: items, TotalAmount: amount}, nil
}

// Add puts qty units of a product (or one of its variants) into the cart. Adding
// a line that is already present increases its quantity.
func (s *CartService) Add(ctx context.Context, owner models.CartOwner, in AddItemInput) (*CartView, error) {
	ctx, span := util.StartSpan(ctx, "CartService.Add")
	defer span.End()

	if in.Quantity <= 0 {
		return nil, apperr.Validation("quantity must be greater than 0")
	}

	var view *CartView
	err := s.db.WithTx(ctx, func(r store.Repository) error {
		cart, err := s.cart(ctx, r, owner)
		if err != nil {
			return err
		}

		product, variant, err := s.sellable(ctx, r, in.ProductID, in.VariantID)
		if err != nil {
			return err
		}

		existing := 0
		item, err := r.FindCartItem(ctx, cart.ID, in.ProductID, in.VariantID)
		switch {
		case err == nil:
			existing = item.Quantity
		case !errors.Is(err, store.ErrNotFound):
			return err
		}
		if err := checkStock(product, variant, existing+in.Quantity); err != nil {
			return err
		}

		if _, err := r.UpsertCartItem(ctx, cart.ID, in.ProductID, in.VariantID, in.Quantity); err != nil {
			return fmt.Errorf("failed to add cart item: %w", err)
		}
		view, err = s.view(ctx, r, cart)
		return err
	})
	if err != nil {
		return nil, err
	}

	util.CartMutationsTotal.WithLabelValues("add").Inc()
	return view, nil
}

// SetQuantity overwrites a line's quantity. A quantity of zero or less removes it.
func (s *CartService) SetQuantity(ctx context.Context, owner models.CartOwner, itemID int64, qty int) (*CartView, error) {
	ctx, span := util.StartSpan(ctx, "CartService.SetQuantity")
	defer span.End()

	op := "update"
	var view *CartView
	err := s.db.WithTx(ctx, func(r store.Repository) error {
		cart, err := s.cart(ctx, r, owner)
		if err != nil {
			return err
		}
		item, err := r.GetCartItem(ctx, cart.ID, itemID)
		if err != nil {
			return notFoundAs(err, "cart item not found")
		}

		if qty <= 0 {
			op = "remove"
			if err := r.DeleteCartItem(ctx, item.ID); err != nil {
				return fmt.Errorf("failed to delete cart item: %w", err)
			}
		} else {
			product, variant, err := s.sellable(ctx, r, item.ProductID, item.VariantID)
			if err != nil {
				return err
			}
			if err := checkStock(product, variant, qty); err != nil {
				return err
			}
			if err := r.UpdateCartItemQuantity(ctx, item.ID, qty); err != nil {
				return fmt.Errorf("failed to update cart item: %w", err)
			}
		}
		view, err = s.view(ctx, r, cart)
		return err
	})
	if err != nil {
		return nil, err
	}

	util.CartMutationsTotal.WithLabelValues(op).Inc()
	return view, nil
}

func (s *CartService) Remove(ctx context.Context, owner models.CartOwner, itemID int64) (*CartView, error) {
	ctx, span := util.StartSpan(ctx, "CartService.Remove")
	defer span.End()

	var view *CartView
	err := s.db.WithTx(ctx, func(r store.Repository) error {
		cart, err := s.cart(ctx, r, owner)
		if err != nil {
			return err
		}
		if _, err := r.GetCartItem(ctx, cart.ID, itemID); err != nil {
			return notFoundAs(err, "cart item not found")
		}
		if err := r.DeleteCartItem(ctx, itemID); err != nil {
			return fmt.Errorf("failed to delete cart item: %w", err)
		}
		view, err = s.view(ctx, r, cart)
		return err
	})
	if err != nil {
		return nil, err
	}

	util.CartMutationsTotal.WithLabelValues("remove").Inc()
	return view, nil
}

func (s *CartService) Clear(ctx context.Context, owner models.CartOwner) (*CartView, error) {
	ctx, span := util.StartSpan(ctx, "CartService.Clear")
	defer span.End()

	cart, err := s.cart(ctx, s.db, owner)
	if err != nil {
		return nil, err
	}
	if err := s.db.ClearCart(ctx, cart.ID); err != nil {
		return nil, fmt.Errorf("failed to clear cart: %w", err)
	}

	util.CartMutationsTotal.WithLabelValues("clear").Inc()
	return &CartView{Cart: *cart, Lines: []models.CartLine{}, TotalAmount: decimal.Zero}, nil
}

// sellable loads a product and optional variant and checks both can be put in a cart.
func (s *CartService) sellable(ctx context.Context, r store.Repository, productID int64, variantID *int64) (*models.Product, *models.ProductVariant, error) {
	product, err := r.GetProductByID(ctx, productID)
	if err != nil {
		return nil, nil, notFoundAs(err, "product not found")
	}
	if !product.Available() {
		return nil, nil, apperr.Unavailable("product is not available")
	}
	if variantID == nil {
		return product, nil, nil
	}

	variant, err := r.GetVariant(ctx, *variantID)
	if err != nil {
		return nil, nil, notFoundAs(err, "variant not found")
	}
	if variant.ProductID != product.ID {
		return nil, nil, apperr.Validation("variant does not belong to this product")
	}
	if !variant.IsActive {
		return nil, nil, apperr.Unavailable("variant is not available")
	}
	return product, variant, nil
}

// checkStock applies the inventory policy to the resulting line quantity. Variant
// lines draw on both the variant's and the parent's stock at checkout.
func checkStock(product *models.Product, variant *models.ProductVariant, qty int) error {
	if !product.CanFulfill(qty) {
		return apperr.Unavailable("only %d items in stock", product.Stock)
	}
	if variant != nil && !variant.CanFulfill(product, qty) {
		return apperr.Unavailable("only %d items in stock", variant.Stock)
	}
	return nil
}

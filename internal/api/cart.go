package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"storefront/internal/apperr"
	"storefront/internal/service"
)

func paramID(c *gin.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("invalid %s", name)
	}
	return id, nil
}

func (h *Handler) getCart(c *gin.Context) {
	view, err := h.svc.Cart.Get(c.Request.Context(), cartOwner(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newCartResponse(view))
}

func (h *Handler) addToCart(c *gin.Context) {
	in := service.AddItemInput{Quantity: 1}
	if !h.bindJSON(c, &in) {
		return
	}

	view, err := h.svc.Cart.Add(c.Request.Context(), cartOwner(c), in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newCartResponse(view))
}

type updateQuantityRequest struct {
	Quantity *int `json:"quantity"`
}

func (h *Handler) updateCartItem(c *gin.Context) {
	itemID, err := paramID(c, "id")
	if err != nil {
		h.respondError(c, err)
		return
	}

	var req updateQuantityRequest
	if !h.bindJSON(c, &req) {
		return
	}
	if req.Quantity == nil {
		h.respondError(c, apperr.ValidationDetails("invalid request body", gin.H{"quantity": "is required"}))
		return
	}

	view, err := h.svc.Cart.SetQuantity(c.Request.Context(), cartOwner(c), itemID, *req.Quantity)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newCartResponse(view))
}

func (h *Handler) removeCartItem(c *gin.Context) {
	itemID, err := paramID(c, "id")
	if err != nil {
		h.respondError(c, err)
		return
	}

	view, err := h.svc.Cart.Remove(c.Request.Context(), cartOwner(c), itemID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newCartResponse(view))
}

func (h *Handler) clearCart(c *gin.Context) {
	view, err := h.svc.Cart.Clear(c.Request.Context(), cartOwner(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newCartResponse(view))
}

type validateCouponRequest struct {
	Code        string          `json:"code"`
	OrderAmount decimal.Decimal `json:"order_amount"`
}

func (h *Handler) validateCoupon(c *gin.Context) {
	var req validateCouponRequest
	if !h.bindJSON(c, &req) {
		return
	}

	quote, err := h.svc.Coupons.Validate(c.Request.Context(), req.Code, req.OrderAmount)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, couponQuoteResponse(quote))
}

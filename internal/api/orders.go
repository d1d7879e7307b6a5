package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"storefront/internal/models"
	"storefront/internal/service"
)

func (h *Handler) checkout(c *gin.Context) {
	var in service.CheckoutInput
	if !h.bindJSON(c, &in) {
		return
	}
	in.IdempotencyKey = c.GetHeader("Idempotency-Key")

	result, err := h.svc.Checkout.Checkout(c.Request.Context(), currentUser(c), in)
	if err != nil {
		h.respondError(c, err)
		return
	}

	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	c.JSON(status, newOrderResponse(result.Order))
}

func (h *Handler) listOrders(c *gin.Context) {
	orders, err := h.svc.Orders.ListOrders(c.Request.Context(), currentUser(c))
	if err != nil {
		h.respondError(c, err)
		return
	}

	out := make([]orderResponse, 0, len(orders))
	for i := range orders {
		out = append(out, newOrderResponse(&orders[i]))
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) getOrder(c *gin.Context) {
	order, err := h.svc.Orders.GetOrder(c.Request.Context(), currentUser(c), c.Param("order_number"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newOrderResponse(order))
}

type updateStatusRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

func (h *Handler) updateOrderStatus(c *gin.Context) {
	var req updateStatusRequest
	if !h.bindJSON(c, &req) {
		return
	}

	order, err := h.svc.Orders.UpdateStatus(c.Request.Context(), c.Param("order_number"), req.Status, req.Reason)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newOrderResponse(order))
}

func (h *Handler) createCoupon(c *gin.Context) {
	var in service.CreateCouponInput
	if !h.bindJSON(c, &in) {
		return
	}

	coupon, err := h.svc.Coupons.Create(c.Request.Context(), in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newCouponResponse(coupon))
}

func newCouponResponse(c *models.Coupon) gin.H {
	return gin.H{
		"id":             c.ID,
		"code":           c.Code,
		"description":    c.Description,
		"discount_type":  c.DiscountType,
		"discount_value": money(c.DiscountValue),
		"minimum_amount": nullMoney(c.MinimumAmount),
		"usage_limit":    c.UsageLimit,
		"used_count":     c.UsedCount,
		"is_active":      c.IsActive,
		"valid_from":     c.ValidFrom,
		"valid_until":    c.ValidUntil,
	}
}

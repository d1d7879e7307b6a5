package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"storefront/internal/apperr"
	"storefront/internal/models"
	"storefront/internal/service"
)

type sessionResponse struct {
	User  userResponse `json:"user"`
	Token string       `json:"token"`
}

func (h *Handler) register(c *gin.Context) {
	var in service.RegisterInput
	if !h.bindJSON(c, &in) {
		return
	}

	session, err := h.svc.Auth.Register(c.Request.Context(), in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sessionResponse{User: newUserResponse(session.User), Token: session.Token})
}

func (h *Handler) login(c *gin.Context) {
	var in service.LoginInput
	if !h.bindJSON(c, &in) {
		return
	}

	session, err := h.svc.Auth.Login(c.Request.Context(), in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sessionResponse{User: newUserResponse(session.User), Token: session.Token})
}

func (h *Handler) logout(c *gin.Context) {
	h.svc.Auth.Logout(c.Request.Context(), c.GetString(ctxToken))
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

func (h *Handler) getProfile(c *gin.Context) {
	profile, err := h.svc.Accounts.GetProfile(c.Request.Context(), currentUser(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newProfileResponse(profile))
}

func (h *Handler) updateProfile(c *gin.Context) {
	var in service.ProfileInput
	if !h.bindJSON(c, &in) {
		return
	}

	profile, err := h.svc.Accounts.UpdateProfile(c.Request.Context(), currentUser(c), in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newProfileResponse(profile))
}

func (h *Handler) getWishlist(c *gin.Context) {
	products, err := h.svc.Accounts.Wishlist(c.Request.Context(), currentUser(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": newProductList(products)})
}

type wishlistRequest struct {
	ProductID int64 `json:"product_id"`
}

func (h *Handler) addToWishlist(c *gin.Context) {
	var req wishlistRequest
	if !h.bindJSON(c, &req) {
		return
	}
	if req.ProductID <= 0 {
		h.respondError(c, apperr.ValidationDetails("invalid request body", gin.H{"product_id": "is required"}))
		return
	}

	products, err := h.svc.Accounts.AddToWishlist(c.Request.Context(), currentUser(c), req.ProductID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": newProductList(products)})
}

func (h *Handler) removeFromWishlist(c *gin.Context) {
	productID, err := paramID(c, "product_id")
	if err != nil {
		h.respondError(c, err)
		return
	}

	if err := h.svc.Accounts.RemoveFromWishlist(c.Request.Context(), currentUser(c), productID); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) listReviews(c *gin.Context) {
	productID, err := strconv.ParseInt(c.Query("product"), 10, 64)
	if err != nil || productID <= 0 {
		h.respondError(c, apperr.Validation("product query parameter is required"))
		return
	}

	reviews, err := h.svc.Accounts.Reviews(c.Request.Context(), productID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if reviews == nil {
		reviews = []models.ProductReview{}
	}
	c.JSON(http.StatusOK, reviews)
}

func (h *Handler) createReview(c *gin.Context) {
	var in service.ReviewInput
	if !h.bindJSON(c, &in) {
		return
	}

	review, err := h.svc.Accounts.CreateReview(c.Request.Context(), currentUser(c), in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, review)
}

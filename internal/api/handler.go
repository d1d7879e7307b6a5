package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"storefront/config"
	"storefront/internal/service"
	"storefront/internal/util"
)

// Services groups the application services the handlers call into.
type Services struct {
	Catalog  *service.CatalogService
	Cart     *service.CartService
	Coupons  *service.CouponService
	Checkout *service.CheckoutService
	Orders   *service.OrderService
	Auth     *service.AuthService
	Accounts *service.AccountService
}

// Pinger is a dependency pinged by the readiness check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler contains HTTP handlers
type Handler struct {
	svc         Services
	checks      map[string]Pinger
	origins     []string
	authLimiter *ipRateLimiter
	logger      *zap.Logger
}

// NewHandler creates a new HTTP handler. checks are pinged by /ready.
func NewHandler(svc Services, cfg *config.Config, checks map[string]Pinger) *Handler {
	return &Handler{
		svc:         svc,
		checks:      checks,
		origins:     cfg.Server.AllowedOrigins,
		authLimiter: newIPRateLimiter(cfg.Business.AuthRequestsPerMinute),
		logger:      util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(requestLogger(h.logger))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     h.origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Idempotency-Key", sessionHeader},
		ExposeHeaders:    []string{sessionHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	v1.Use(h.authenticate())
	{
		v1.GET("/products/", h.listProducts)
		v1.GET("/products/:slug/", h.getProduct)
		v1.GET("/categories/", h.listCategories)
		v1.GET("/brands/", h.listBrands)
		v1.GET("/search/", h.search)

		v1.GET("/cart/", h.getCart)
		v1.POST("/cart/", h.addToCart)
		v1.DELETE("/cart/", h.clearCart)
		v1.PUT("/cart/items/:id/", h.updateCartItem)
		v1.DELETE("/cart/items/:id/", h.removeCartItem)

		v1.POST("/coupons/validate/", h.validateCoupon)
		v1.GET("/reviews/", h.listReviews)

		auth := v1.Group("/auth", h.authLimiter.middleware())
		auth.POST("/register/", h.register)
		auth.POST("/login/", h.login)
		auth.POST("/logout/", h.requireAuth(), h.logout)

		account := v1.Group("", h.requireAuth())
		account.GET("/profile/", h.getProfile)
		account.PUT("/profile/", h.updateProfile)
		account.GET("/wishlist/", h.getWishlist)
		account.POST("/wishlist/", h.addToWishlist)
		account.DELETE("/wishlist/:product_id/", h.removeFromWishlist)
		account.POST("/reviews/", h.createReview)
		account.GET("/orders/", h.listOrders)
		account.POST("/orders/", h.checkout)
		account.GET("/orders/:order_number/", h.getOrder)

		staff := v1.Group("", h.requireStaff())
		staff.POST("/catalog/categories/", h.createCategory)
		staff.POST("/catalog/brands/", h.createBrand)
		staff.POST("/catalog/products/", h.createProduct)
		staff.POST("/catalog/products/:slug/variants/", h.createVariant)
		staff.POST("/coupons/", h.createCoupon)
		staff.PATCH("/orders/:order_number/status/", h.updateOrderStatus)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings every registered dependency.
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	results := gin.H{}
	for name, p := range h.checks {
		if err := p.Ping(ctx); err != nil {
			h.logger.Warn("Readiness check failed", zap.String("dependency", name), zap.Error(err))
			results[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}

	state := "ready"
	if status != http.StatusOK {
		state = "not ready"
	}
	c.JSON(status, gin.H{
		"status": state,
		"checks": results,
		"time":   time.Now().Unix(),
	})
}

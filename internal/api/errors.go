package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"storefront/internal/apperr"
)

// respondError writes err as {"error", "details"}. Errors outside the apperr
// taxonomy are logged and hidden behind a generic 500.
func (h *Handler) respondError(c *gin.Context, err error) {
	if e, ok := apperr.As(err); ok && e.Kind != apperr.KindInternal {
		body := gin.H{"error": e.Message}
		if e.Details != nil {
			body["details"] = e.Details
		}
		c.JSON(e.HTTPStatus(), body)
		return
	}

	h.logger.Error("Unhandled request error",
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.Error(err),
	)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
}

// bindJSON decodes the body into dest, reporting malformed input as a 400.
func (h *Handler) bindJSON(c *gin.Context, dest interface{}) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		if errors.Is(err, io.EOF) {
			h.respondError(c, apperr.Validation("request body is required"))
			return false
		}
		h.respondError(c, apperr.ValidationDetails("invalid request body", err.Error()))
		return false
	}
	return true
}

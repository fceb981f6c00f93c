package http

import (
	"errors"
	nethttp "net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/you/salon-booking/services/booking-service/internal/domain"
)

func statusOf(err error) int {
	var (
		ve *domain.ValidationError
		nf *domain.NotFoundError
		fe *domain.ForbiddenError
		ce *domain.ConflictError
		ge *domain.GatewayError
	)
	switch {
	case errors.As(err, &ve):
		return nethttp.StatusBadRequest
	case errors.As(err, &nf):
		return nethttp.StatusNotFound
	case errors.As(err, &fe):
		return nethttp.StatusForbidden
	case errors.As(err, &ce):
		return nethttp.StatusConflict
	case errors.As(err, &ge):
		return nethttp.StatusBadGateway
	default:
		return nethttp.StatusInternalServerError
	}
}

// fail writes {"error": msg}. Unclassified errors are logged and hidden.
func (h *Handler) fail(c *gin.Context, err error) {
	code := statusOf(err)
	if code == nethttp.StatusInternalServerError {
		h.log.Error("[http] request failed", "method", c.Request.Method, "path", c.FullPath(), "err", err)
		c.JSON(code, gin.H{"error": "internal error"})
		return
	}
	if code == nethttp.StatusBadGateway {
		h.log.Warn("[http] gateway failure", "path", c.FullPath(), "err", err)
	}
	c.JSON(code, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(nethttp.StatusBadRequest, gin.H{"error": err.Error()})
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	v := c.Query(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, domain.Invalid("%s must be an integer", key)
	}
	return n, nil
}

// Package http is the gin API of the booking service.
package http

import (
	"context"
	"log/slog"
	nethttp "net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"github.com/you/salon-booking/pkg/auth"
	"github.com/you/salon-booking/pkg/cache"
	"github.com/you/salon-booking/services/booking-service/internal/service"
)

type Deps struct {
	Availability *service.AvailabilitySvc
	Bookings     *service.BookingSvc
	Payments     *service.PaymentSvc
	Signer       *auth.Signer
	Cache        *cache.Client
	// Ping reports whether the durable store is reachable.
	Ping func(context.Context) error
	Log  *slog.Logger

	GatewayPublicKey    string
	DefaultSlotDuration int
}

type Handler struct {
	avail    *service.AvailabilitySvc
	bookings *service.BookingSvc
	payments *service.PaymentSvc
	cache    *cache.Client
	ping     func(context.Context) error
	log      *slog.Logger

	publicKey    string
	slotDuration int
}

func NewRouter(d Deps) *gin.Engine {
	binding.EnableDecoderDisallowUnknownFields = true
	if d.DefaultSlotDuration <= 0 {
		d.DefaultSlotDuration = 30
	}
	h := &Handler{
		avail:        d.Availability,
		bookings:     d.Bookings,
		payments:     d.Payments,
		cache:        d.Cache,
		ping:         d.Ping,
		log:          d.Log,
		publicKey:    d.GatewayPublicKey,
		slotDuration: d.DefaultSlotDuration,
	}

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	r.GET("/healthz", h.Health)
	r.POST("/webhooks/omise", h.OmiseWebhook)

	v1 := r.Group("/v1")
	v1.Use(JWTAuth(d.Signer))
	{
		v1.POST("/bookings", h.CreateBooking)
		v1.GET("/bookings", h.ListBookings)
		v1.GET("/bookings/:id", h.GetBooking)
		v1.GET("/bookings/:id/details", h.GetBookingDetails)
		v1.PUT("/bookings/:id/status", RequireRole(auth.RoleAdmin), h.UpdateBookingStatus)

		v1.POST("/payments/create", h.CreatePayment)
		v1.POST("/payments/verify", h.VerifyPayment)
		v1.GET("/payments/history", h.PaymentHistory)
		v1.GET("/payments/:id", h.GetPayment)
		v1.POST("/payments/:id/refund", RequireRole(auth.RoleAdmin), h.RefundPayment)
		v1.POST("/payments/:id/cancel", h.CancelPayment)

		owner := v1.Group("")
		owner.Use(RequireRole(auth.RoleSalonOwner, auth.RoleAdmin))
		owner.GET("/salons/:salonId/bookings", h.SalonBookings)
		owner.GET("/salons/:salonId/payments", h.SalonPayments)
		owner.POST("/staff/:staffId/schedules", h.CreateSchedule)
		owner.PUT("/schedules/:id", h.UpdateSchedule)
		owner.DELETE("/schedules/:id", h.DeleteSchedule)

		v1.GET("/staff/:staffId/schedules", h.ListSchedules)
		v1.GET("/staff/:staffId/slots/generate", h.GenerateSlots)
		v1.GET("/staff/:staffId/available-slots", h.AvailableSlots)
		v1.GET("/staff/:staffId/availability", h.Availability)
		v1.GET("/staff/:staffId/stats", h.SlotStats)
		v1.GET("/schedules/:id", h.GetSchedule)
		v1.POST("/schedules/:id/slots/:index/book", h.BookSlot)
		v1.POST("/schedules/:id/slots/:index/cancel", h.CancelSlot)
	}
	return r
}

// Health reports store and cache state; only the store decides the status code.
func (h *Handler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	store, code := "up", nethttp.StatusOK
	if h.ping != nil {
		if err := h.ping(ctx); err != nil {
			h.log.Warn("[http] store ping failed", "err", err)
			store, code = "down", nethttp.StatusServiceUnavailable
		}
	}
	c.JSON(code, gin.H{"store": store, "cache": h.cache.Status()})
}

package http

import (
	nethttp "net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/you/salon-booking/services/booking-service/internal/service"
)

// serviceReq names a catalogue service. Name, price and duration are read
// from the catalogue; a body that carries them is rejected.
type serviceReq struct {
	ServiceID string `json:"serviceId" binding:"required"`
}

type createBookingReq struct {
	CustomerID      string       `json:"customerId"`
	SalonID         string       `json:"salonId" binding:"required"`
	StaffID         *string      `json:"staffId"`
	Services        []serviceReq `json:"services" binding:"required,min=1,dive"`
	AppointmentTime time.Time    `json:"appointmentTime" binding:"required"`
	Notes           string       `json:"notes"`
}

// POST /v1/bookings
func (h *Handler) CreateBooking(c *gin.Context) {
	var in createBookingReq
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	ids := make([]string, 0, len(in.Services))
	for _, s := range in.Services {
		ids = append(ids, s.ServiceID)
	}
	b, conf, err := h.bookings.CreateBooking(c.Request.Context(), principal(c), service.CreateBookingInput{
		CustomerID:      in.CustomerID,
		SalonID:         in.SalonID,
		StaffID:         in.StaffID,
		ServiceIDs:      ids,
		AppointmentTime: in.AppointmentTime,
		Notes:           in.Notes,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(nethttp.StatusCreated, gin.H{"booking": b, "confirmation": conf})
}

// GET /v1/bookings?customerId=
// Admins without a customerId get every booking.
func (h *Handler) ListBookings(c *gin.Context) {
	p := principal(c)
	customerID := c.Query("customerId")
	if customerID == "" && p.IsAdmin() {
		out, err := h.bookings.ListAllBookings(c.Request.Context(), p)
		if err != nil {
			h.fail(c, err)
			return
		}
		c.JSON(nethttp.StatusOK, gin.H{"bookings": out})
		return
	}
	if customerID == "" {
		customerID = p.ID
	}
	out, err := h.bookings.ListBookingsForCustomer(c.Request.Context(), p, customerID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(nethttp.StatusOK, gin.H{"bookings": out})
}

// GET /v1/bookings/:id
func (h *Handler) GetBooking(c *gin.Context) {
	b, err := h.bookings.GetBooking(c.Request.Context(), principal(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(nethttp.StatusOK, b)
}

// GET /v1/bookings/:id/details
func (h *Handler) GetBookingDetails(c *gin.Context) {
	d, err := h.bookings.GetBookingDetails(c.Request.Context(), principal(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(nethttp.StatusOK, d)
}

type statusReq struct {
	Status string `json:"status" binding:"required"`
}

// PUT /v1/bookings/:id/status (ADMIN)
func (h *Handler) UpdateBookingStatus(c *gin.Context) {
	var in statusReq
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	b, err := h.bookings.UpdateStatus(c.Request.Context(), principal(c), c.Param("id"), in.Status)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(nethttp.StatusOK, b)
}

// GET /v1/salons/:salonId/bookings?status= (OWNER/ADMIN)
func (h *Handler) SalonBookings(c *gin.Context) {
	out, err := h.bookings.ListBookingsForSalon(c.Request.Context(), principal(c), c.Param("salonId"), c.Query("status"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(nethttp.StatusOK, out)
}

package http

import (
	nethttp "net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/you/salon-booking/services/booking-service/internal/domain"
	"github.com/you/salon-booking/services/booking-service/internal/service"
)

type createScheduleReq struct {
	Date     string `json:"date" binding:"required"`
	Duration int    `json:"duration" binding:"gte=0"`
	Notes    string `json:"notes"`
}

// POST /v1/staff/:staffId/schedules (OWNER/ADMIN)
func (h *Handler) CreateSchedule(c *gin.Context) {
	var in createScheduleReq
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	if in.Duration == 0 {
		in.Duration = h.slotDuration
	}
	s, err := h.avail.CreateDaySchedule(c.Request.Context(), principal(c), c.Param("staffId"), in.Date, in.Duration, in.Notes)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(nethttp.StatusCreated, s)
}

// GET /v1/staff/:staffId/schedules?from=&to=
func (h *Handler) ListSchedules(c *gin.Context) {
	out, err := h.avail.ListSchedules(c.Request.Context(), c.Param("staffId"), c.Query("from"), c.Query("to"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(nethttp.StatusOK, out)
}

// GET /v1/schedules/:id
func (h *Handler) GetSchedule(c *gin.Context) {
	s, err := h.avail.GetSchedule(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(nethttp.StatusOK, s)
}

type updateScheduleReq struct {
	Duration *int    `json:"duration" binding:"omitempty,gt=0"`
	Notes    *string `json:"notes"`
}

// PUT /v1/schedules/:id (OWNER/ADMIN)
func (h *Handler) UpdateSchedule(c *gin.Context) {
	var in updateScheduleReq
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	s, err := h.avail.UpdateSchedule(c.Request.Context(), principal(c), c.Param("id"), in.Duration, in.Notes)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(nethttp.StatusOK, s)
}

// DELETE /v1/schedules/:id (OWNER/ADMIN)
func (h *Handler) DeleteSchedule(c *gin.Context) {
	if err := h.avail.DeleteSchedule(c.Request.Context(), principal(c), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(nethttp.StatusNoContent)
}

func slotIndex(c *gin.Context) (int, error) {
	idx, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		return 0, domain.Invalid("slot index must be an integer")
	}
	return idx, nil
}

type bookSlotReq struct {
	CustomerID string  `json:"customerId"`
	ServiceID  *string `json:"serviceId"`
	Notes      string  `json:"notes"`
}

// POST /v1/schedules/:id/slots/:index/book
// Customers book for themselves; admins name the customer.
func (h *Handler) BookSlot(c *gin.Context) {
	idx, err := slotIndex(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	var in bookSlotReq
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&in); err != nil {
			badRequest(c, err)
			return
		}
	}
	p := principal(c)
	switch {
	case p.IsCustomer():
		in.CustomerID = p.ID
	case p.IsAdmin():
	default:
		h.fail(c, domain.Forbidden("only customers can book slots"))
		return
	}
	slot, err := h.avail.BookSlot(c.Request.Context(), service.BookSlotInput{
		ScheduleID: c.Param("id"),
		Index:      idx,
		CustomerID: in.CustomerID,
		ServiceID:  in.ServiceID,
		Notes:      in.Notes,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(nethttp.StatusOK, slot)
}

// POST /v1/schedules/:id/slots/:index/cancel
func (h *Handler) CancelSlot(c *gin.Context) {
	idx, err := slotIndex(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	slot, err := h.avail.CancelSlot(c.Request.Context(), principal(c), c.Param("id"), idx)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(nethttp.StatusOK, slot)
}

// GET /v1/staff/:staffId/slots/generate?date=&duration=
func (h *Handler) GenerateSlots(c *gin.Context) {
	duration, err := queryInt(c, "duration", h.slotDuration)
	if err != nil {
		h.fail(c, err)
		return
	}
	out, err := h.avail.GenerateDaySchedule(c.Request.Context(), c.Param("staffId"), c.Query("date"), duration)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(nethttp.StatusOK, out)
}

// GET /v1/staff/:staffId/available-slots?date=
func (h *Handler) AvailableSlots(c *gin.Context) {
	out, err := h.avail.GetAvailableSlots(c.Request.Context(), c.Param("staffId"), c.Query("date"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(nethttp.StatusOK, out)
}

// GET /v1/staff/:staffId/availability?from=&to=
func (h *Handler) Availability(c *gin.Context) {
	out, err := h.avail.ListAvailability(c.Request.Context(), c.Param("staffId"), c.Query("from"), c.Query("to"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(nethttp.StatusOK, out)
}

// GET /v1/staff/:staffId/stats?from=&to=
func (h *Handler) SlotStats(c *gin.Context) {
	out, err := h.avail.BookingStats(c.Request.Context(), c.Param("staffId"), c.Query("from"), c.Query("to"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(nethttp.StatusOK, out)
}

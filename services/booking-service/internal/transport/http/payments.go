package http

import (
	"encoding/json"
	nethttp "net/http"

	"github.com/gin-gonic/gin"

	"github.com/you/salon-booking/services/booking-service/internal/domain"
	"github.com/you/salon-booking/services/booking-service/internal/service"
)

type createPaymentReq struct {
	BookingID     string `json:"bookingId" binding:"required"`
	PaymentMethod string `json:"paymentMethod"`
}

// orderView is what the client needs to open the provider checkout.
type orderView struct {
	ID        string `json:"id"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	PublicKey string `json:"publicKey,omitempty"`
}

// POST /v1/payments/create
func (h *Handler) CreatePayment(c *gin.Context) {
	var in createPaymentReq
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	if in.PaymentMethod == "" {
		in.PaymentMethod = domain.MethodGateway
	}
	ctx, p := c.Request.Context(), principal(c)
	pay, order, err := h.payments.CreatePayment(ctx, p, in.BookingID, in.PaymentMethod)
	if err != nil {
		h.fail(c, err)
		return
	}
	// re-read so the booking carries the new payment link
	b, err := h.bookings.GetBooking(ctx, p, in.BookingID)
	if err != nil {
		h.fail(c, err)
		return
	}
	res := gin.H{"payment": pay, "booking": b}
	if order != nil {
		res["gatewayOrder"] = orderView{ID: order.ID, Amount: order.Amount, Currency: order.Currency, PublicKey: h.publicKey}
	}
	c.JSON(nethttp.StatusCreated, res)
}

// verifyReq is the checkout callback relayed by the client. paymentId is
// optional; the gateway order identifies the payment on its own.
type verifyReq struct {
	GatewayOrderID   string `json:"gatewayOrderId" binding:"required"`
	GatewayPaymentID string `json:"gatewayPaymentId" binding:"required"`
	GatewaySignature string `json:"gatewaySignature" binding:"required"`
	PaymentID        string `json:"paymentId"`
}

// POST /v1/payments/verify
// A rejected signature is a 200 with verified=false.
func (h *Handler) VerifyPayment(c *gin.Context) {
	var in verifyReq
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.payments.VerifyPayment(c.Request.Context(), principal(c), service.VerifyInput{
		OrderID:          in.GatewayOrderID,
		GatewayPaymentID: in.GatewayPaymentID,
		Signature:        in.GatewaySignature,
		PaymentID:        in.PaymentID,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(nethttp.StatusOK, res)
}

type refundReq struct {
	RefundAmount int64  `json:"refundAmount"`
	RefundReason string `json:"refundReason"`
}

// POST /v1/payments/:id/refund (ADMIN)
func (h *Handler) RefundPayment(c *gin.Context) {
	var in refundReq
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	pay, err := h.payments.ProcessRefund(c.Request.Context(), principal(c), c.Param("id"), in.RefundAmount, in.RefundReason)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(nethttp.StatusOK, pay)
}

// POST /v1/payments/:id/cancel
func (h *Handler) CancelPayment(c *gin.Context) {
	pay, err := h.payments.CancelPayment(c.Request.Context(), principal(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(nethttp.StatusOK, pay)
}

// GET /v1/payments/:id
func (h *Handler) GetPayment(c *gin.Context) {
	pay, err := h.payments.GetPayment(c.Request.Context(), principal(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(nethttp.StatusOK, pay)
}

// GET /v1/payments/history?customerId=&page=&pageSize=
func (h *Handler) PaymentHistory(c *gin.Context) {
	p := principal(c)
	page, size, err := pageParams(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	customerID := c.DefaultQuery("customerId", p.ID)
	out, err := h.payments.GetPaymentHistory(c.Request.Context(), p, customerID, page, size)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(nethttp.StatusOK, out)
}

// GET /v1/salons/:salonId/payments?page=&pageSize= (OWNER/ADMIN)
func (h *Handler) SalonPayments(c *gin.Context) {
	page, size, err := pageParams(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	out, err := h.payments.GetSalonPayments(c.Request.Context(), principal(c), c.Param("salonId"), page, size)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(nethttp.StatusOK, out)
}

func pageParams(c *gin.Context) (int, int, error) {
	page, err := queryInt(c, "page", 1)
	if err != nil {
		return 0, 0, err
	}
	size, err := queryInt(c, "pageSize", 20)
	if err != nil {
		return 0, 0, err
	}
	return page, size, nil
}

// webhookEvent is the only part of the provider's body that is read; the
// event itself is fetched again from the provider.
type webhookEvent struct {
	ID string `json:"id"`
}

// POST /webhooks/omise
func (h *Handler) OmiseWebhook(c *gin.Context) {
	var ev webhookEvent
	if err := json.NewDecoder(c.Request.Body).Decode(&ev); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.payments.HandleWebhook(c.Request.Context(), ev.ID); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(nethttp.StatusOK, gin.H{"received": true})
}

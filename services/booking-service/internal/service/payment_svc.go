package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"github.com/you/salon-booking/pkg/auth"
	"github.com/you/salon-booking/pkg/cache"
	"github.com/you/salon-booking/pkg/mq"
	"github.com/you/salon-booking/services/booking-service/internal/domain"
	"github.com/you/salon-booking/services/booking-service/internal/gateway"
	"github.com/you/salon-booking/services/booking-service/internal/repository"
)

type PaymentConfig struct {
	// Secret keys the callback HMAC.
	Secret   string
	Currency string
}

type PaymentSvc struct {
	payments *repository.PaymentRepo
	bookings *BookingSvc
	gw       gateway.Gateway
	cfg      PaymentConfig
	cache    *cache.Client
	events   emitter
	log      *slog.Logger
}

func NewPaymentSvc(
	payments *repository.PaymentRepo,
	bookings *BookingSvc,
	gw gateway.Gateway,
	cfg PaymentConfig,
	c *cache.Client,
	pub mq.EventPublisher,
	log *slog.Logger,
) *PaymentSvc {
	if cfg.Currency == "" {
		cfg.Currency = "THB"
	}
	return &PaymentSvc{
		payments: payments,
		bookings: bookings,
		gw:       gw,
		cfg:      cfg,
		cache:    c,
		events:   newEmitter(pub, log),
		log:      log,
	}
}

func gatewayErr(op string, err error) error {
	var ge *domain.GatewayError
	if errors.As(err, &ge) {
		return ge
	}
	return &domain.GatewayError{Op: op, Err: err}
}

func (s *PaymentSvc) invalidate(ctx context.Context, p *domain.Payment) {
	invalidate(ctx, s.cache,
		cache.PaymentInvalidation(p.ID, p.CustomerID, p.SalonID),
		cache.BookingInvalidation(p.BookingID, p.CustomerID, p.SalonID),
	)
}

// CreatePayment opens a payment for a booking. For the gateway method the
// remote order is created first and the local rows are written only once it
// exists; pay-on-visit never calls the gateway.
func (s *PaymentSvc) CreatePayment(ctx context.Context, p auth.Principal, bookingID, method string) (pay *domain.Payment, order *gateway.Order, err error) {
	ctx, span := startSpan(ctx, "payment.Create", attribute.String("booking.id", bookingID), attribute.String("method", method))
	defer func() { endSpan(span, err) }()

	if !domain.IsPaymentMethod(method) {
		return nil, nil, domain.Invalid("unknown payment method %q", method)
	}
	b, err := s.bookings.repo.ByID(ctx, bookingID)
	if err != nil {
		return nil, nil, err
	}
	if !p.Owns(b.CustomerID) {
		return nil, nil, domain.Forbidden("not allowed to pay for this booking")
	}
	if b.Status == domain.BookingCancelled || b.Status == domain.BookingCompleted {
		return nil, nil, domain.Invalid("booking is %s", b.Status)
	}
	active, err := s.payments.Active(ctx, bookingID)
	if err != nil {
		return nil, nil, err
	}
	if active != nil {
		return nil, nil, domain.Conflict(domain.ErrActivePayment)
	}

	pay = &domain.Payment{
		BookingID:       b.ID,
		CustomerID:      b.CustomerID,
		SalonID:         b.SalonID,
		Services:        b.Services,
		Amount:          b.TotalPrice,
		Currency:        s.cfg.Currency,
		Method:          method,
		Status:          domain.PaymentPending,
		Receipt:         "rcpt_" + b.ID,
		DiscountAmount:  b.DiscountAmount,
		DiscountApplied: b.DiscountApplied,
	}
	if method == domain.MethodGateway {
		order, err = s.gw.CreateOrder(ctx, gateway.OrderRequest{
			Amount:   domain.MinorUnits(pay.Amount),
			Currency: pay.Currency,
			Receipt:  pay.Receipt,
			Metadata: map[string]string{
				"bookingId":  b.ID,
				"customerId": b.CustomerID,
				"salonId":    b.SalonID,
			},
		})
		if err != nil {
			s.log.Warn("[payment] gateway order failed", "booking_id", b.ID, "err", err)
			return nil, nil, gatewayErr("create order", err)
		}
		pay.Status = domain.PaymentProcessing
		pay.GatewayOrderID = order.ID
	}

	if err := s.payments.Create(ctx, pay); err != nil {
		if order != nil {
			s.log.Warn("[payment] order left unused", "order_id", order.ID, "booking_id", b.ID, "err", err)
		}
		return nil, nil, err
	}
	s.invalidate(ctx, pay)
	s.log.Info("[payment] created", "payment_id", pay.ID, "booking_id", b.ID, "method", method, "amount", pay.Amount)
	s.events.emit(ctx, EvtPaymentCreated, paymentEvent(pay))
	return pay, order, nil
}

// VerifyInput is the relayed callback. PaymentID may be empty, in which case
// the payment is found by its gateway order.
type VerifyInput struct {
	OrderID          string `json:"gatewayOrderId"`
	GatewayPaymentID string `json:"gatewayPaymentId"`
	Signature        string `json:"gatewaySignature"`
	PaymentID        string `json:"paymentId,omitempty"`
}

func (s *PaymentSvc) verifyTarget(ctx context.Context, in VerifyInput) (*domain.Payment, error) {
	if in.PaymentID != "" {
		return s.payments.ByID(ctx, in.PaymentID)
	}
	if in.OrderID == "" {
		return nil, domain.Invalid("gatewayOrderId or paymentId is required")
	}
	return s.payments.ByOrderID(ctx, in.OrderID)
}

// VerifyPayment checks a client-relayed gateway callback. A bad signature
// fails the payment and is reported in the result, not as an error.
func (s *PaymentSvc) VerifyPayment(ctx context.Context, p auth.Principal, in VerifyInput) (res domain.VerifyResult, err error) {
	ctx, span := startSpan(ctx, "payment.Verify", attribute.String("payment.id", in.PaymentID), attribute.String("gateway.order_id", in.OrderID))
	defer func() { endSpan(span, err) }()

	pay, err := s.verifyTarget(ctx, in)
	if err != nil {
		return res, err
	}
	if !p.Owns(pay.CustomerID) {
		return res, domain.Forbidden("not allowed to verify this payment")
	}
	if pay.Method != domain.MethodGateway {
		return res, domain.Invalid("payment has no gateway order")
	}
	if in.OrderID != pay.GatewayOrderID {
		return res, domain.Invalid("order does not belong to this payment")
	}

	raw, _ := json.Marshal(in)
	cb := repository.Callback{GatewayPaymentID: in.GatewayPaymentID, Signature: in.Signature, Raw: string(raw)}

	if !gateway.VerifySignature(s.cfg.Secret, in.OrderID, in.GatewayPaymentID, in.Signature) {
		if pay.Status == domain.PaymentCompleted {
			return domain.VerifyResult{Verified: false, Payment: pay, Message: "signature mismatch"}, nil
		}
		cb.Reason = "signature mismatch"
		failed, err := s.payments.MarkFailed(ctx, pay.ID, cb)
		if err != nil {
			return res, err
		}
		s.log.Warn("[payment] signature mismatch", "payment_id", pay.ID, "order_id", in.OrderID)
		if failed.Status != pay.Status {
			s.invalidate(ctx, failed)
			s.events.emit(ctx, EvtPaymentFailed, paymentEvent(failed))
		}
		return domain.VerifyResult{Verified: false, Payment: failed, Message: "payment verification failed"}, nil
	}

	wasCompleted := pay.Status == domain.PaymentCompleted
	settled, b, err := s.payments.Settle(ctx, pay.ID, cb)
	if err != nil {
		return res, err
	}
	if !wasCompleted {
		s.afterSettle(ctx, settled, b)
	}
	return domain.VerifyResult{Verified: true, Payment: settled, Booking: b, Message: "payment verified"}, nil
}

func (s *PaymentSvc) afterSettle(ctx context.Context, pay *domain.Payment, b *domain.Booking) {
	s.invalidate(ctx, pay)
	s.log.Info("[payment] completed", "payment_id", pay.ID, "booking_id", b.ID)
	s.events.emit(ctx, EvtPaymentPaid, paymentEvent(pay))
	if b.Status == domain.BookingConfirmed {
		s.bookings.emitConfirmed(ctx, b)
	}
}

// ProcessRefund refunds a completed payment. A zero amount refunds in full.
// Nothing changes locally unless the gateway accepted the refund.
func (s *PaymentSvc) ProcessRefund(ctx context.Context, p auth.Principal, id string, amount int64, reason string) (pay *domain.Payment, err error) {
	ctx, span := startSpan(ctx, "payment.Refund", attribute.String("payment.id", id))
	defer func() { endSpan(span, err) }()

	if !p.IsAdmin() {
		return nil, domain.Forbidden("admin only")
	}
	pay, err = s.payments.ByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if pay.Status != domain.PaymentCompleted {
		return nil, domain.Invalid("only completed payments can be refunded, payment is %s", pay.Status)
	}
	if amount < 0 {
		return nil, domain.Invalid("refund amount must not be negative")
	}
	if amount == 0 {
		amount = pay.Amount
	}
	if amount > pay.Amount {
		return nil, domain.Invalid("refund %d exceeds payment amount %d", amount, pay.Amount)
	}

	refundID := "manual_" + pay.ID
	if pay.Method == domain.MethodGateway {
		rf, err := s.gw.Refund(ctx, pay.GatewayPaymentID, domain.MinorUnits(amount))
		if err != nil {
			s.log.Warn("[payment] gateway refund failed", "payment_id", pay.ID, "err", err)
			return nil, gatewayErr("refund", err)
		}
		refundID = rf.ID
	}
	pay, err = s.payments.Refund(ctx, id, amount, reason, refundID)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, pay)
	s.log.Info("[payment] refunded", "payment_id", pay.ID, "amount", amount)
	s.events.emit(ctx, EvtPaymentRefunded, paymentEvent(pay))
	return pay, nil
}

func (s *PaymentSvc) CancelPayment(ctx context.Context, p auth.Principal, id string) (*domain.Payment, error) {
	pay, err := s.payments.ByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.Owns(pay.CustomerID) {
		return nil, domain.Forbidden("not allowed to cancel this payment")
	}
	pay, err = s.payments.Cancel(ctx, id)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, pay)
	s.events.emit(ctx, EvtPaymentCancelled, paymentEvent(pay))
	return pay, nil
}

func (s *PaymentSvc) canViewSalon(ctx context.Context, p auth.Principal, salonID string) error {
	if p.IsAdmin() {
		return nil
	}
	if p.IsSalonOwner() {
		ok, err := s.bookings.dir.OwnsSalon(ctx, salonID, p.ID)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	return domain.Forbidden("not allowed to view this salon's payments")
}

func (s *PaymentSvc) GetPayment(ctx context.Context, p auth.Principal, id string) (*domain.Payment, error) {
	pay, err := cache.GetOrLoad(ctx, s.cache, cache.PaymentKey(id), cache.TTLEntity, func(ctx context.Context) (*domain.Payment, error) {
		return s.payments.ByID(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	if p.Owns(pay.CustomerID) {
		return pay, nil
	}
	if err := s.canViewSalon(ctx, p, pay.SalonID); err != nil {
		return nil, domain.Forbidden("not allowed to view this payment")
	}
	return pay, nil
}

func (s *PaymentSvc) GetPaymentHistory(ctx context.Context, p auth.Principal, customerID string, page, size int) (domain.PaymentPage, error) {
	if !p.Owns(customerID) {
		return domain.PaymentPage{}, domain.Forbidden("not allowed to view these payments")
	}
	page, size = repository.Page(page, size)
	return cache.GetOrLoad(ctx, s.cache, cache.CustomerPaymentsKey(customerID, page, size), cache.TTLList, func(ctx context.Context) (domain.PaymentPage, error) {
		return s.payments.ListByCustomer(ctx, customerID, page, size)
	})
}

func (s *PaymentSvc) GetSalonPayments(ctx context.Context, p auth.Principal, salonID string, page, size int) (domain.SalonPaymentReport, error) {
	if err := s.canViewSalon(ctx, p, salonID); err != nil {
		return domain.SalonPaymentReport{}, err
	}
	page, size = repository.Page(page, size)
	return cache.GetOrLoad(ctx, s.cache, cache.SalonPaymentsKey(salonID, page, size), cache.TTLStats, func(ctx context.Context) (domain.SalonPaymentReport, error) {
		return s.payments.SalonReport(ctx, salonID, page, size)
	})
}

// HandleWebhook settles a payment from a provider notification. The body is
// untrusted; the event is fetched again from the provider by id.
func (s *PaymentSvc) HandleWebhook(ctx context.Context, eventID string) (err error) {
	ctx, span := startSpan(ctx, "payment.Webhook", attribute.String("event.id", eventID))
	defer func() { endSpan(span, err) }()

	if eventID == "" {
		return domain.Invalid("event id is required")
	}
	ev, err := s.gw.RetrieveEvent(ctx, eventID)
	if err != nil {
		return gatewayErr("retrieve event", err)
	}
	if ev.Key != "charge.complete" {
		s.log.Info("[webhook] ignoring event", "key", ev.Key)
		return nil
	}
	pay, err := s.payments.ByOrderID(ctx, ev.OrderID)
	var nf *domain.NotFoundError
	if errors.As(err, &nf) {
		s.log.Warn("[webhook] no payment for order", "order_id", ev.OrderID)
		return nil
	}
	if err != nil {
		return err
	}
	cb := repository.Callback{
		GatewayPaymentID: ev.PaymentID,
		Signature:        gateway.Sign(s.cfg.Secret, ev.OrderID, ev.PaymentID),
		Raw:              string(ev.Raw),
		Reason:           ev.FailureCode,
	}
	if !ev.Paid {
		failed, err := s.payments.MarkFailed(ctx, pay.ID, cb)
		if err != nil {
			return err
		}
		if failed.Status == domain.PaymentFailed && pay.Status != domain.PaymentFailed {
			s.invalidate(ctx, failed)
			s.events.emit(ctx, EvtPaymentFailed, paymentEvent(failed))
		}
		return nil
	}
	if pay.Status == domain.PaymentCompleted {
		return nil
	}
	settled, b, err := s.payments.Settle(ctx, pay.ID, cb)
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		s.log.Warn("[webhook] charge paid for a closed payment", "payment_id", pay.ID, "status", pay.Status)
		return nil
	}
	if err != nil {
		return err
	}
	s.afterSettle(ctx, settled, b)
	return nil
}

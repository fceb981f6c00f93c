package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/you/salon-booking/pkg/auth"
	"github.com/you/salon-booking/services/booking-service/internal/domain"
	"github.com/you/salon-booking/services/booking-service/internal/gateway"
	"github.com/you/salon-booking/services/booking-service/internal/testutil"
)

// paid runs a gateway payment for b through a valid callback.
func (f *fixture) paid(t *testing.T, b *domain.Booking) *domain.Payment {
	t.Helper()
	ctx := context.Background()
	p := auth.Customer(b.CustomerID)
	pay, order, err := f.payments.CreatePayment(ctx, p, b.ID, domain.MethodGateway)
	require.NoError(t, err)
	res, err := f.payments.VerifyPayment(ctx, p, VerifyInput{
		OrderID:          order.ID,
		GatewayPaymentID: "chrg_" + b.ID,
		Signature:        gateway.Sign(testSecret, order.ID, "chrg_"+b.ID),
		PaymentID:        pay.ID,
	})
	require.NoError(t, err)
	require.True(t, res.Verified)
	return res.Payment
}

func TestCreatePayment(t *testing.T) {
	ctx := context.Background()

	t.Run("gateway order in minor units", func(t *testing.T) {
		f := newFixture(t)
		b := f.book(t, bob, testutil.Cut, at("10:00"))

		pay, order, err := f.payments.CreatePayment(ctx, bob, b.ID, domain.MethodGateway)
		require.NoError(t, err)
		assert.Equal(t, domain.PaymentProcessing, pay.Status)
		assert.Equal(t, int64(900), pay.Amount)
		assert.True(t, pay.DiscountApplied)
		assert.Equal(t, order.ID, pay.GatewayOrderID)
		assert.Equal(t, "rcpt_"+b.ID, pay.Receipt)

		require.Len(t, f.gw.Orders, 1)
		req := f.gw.Orders[0]
		assert.Equal(t, int64(90000), req.Amount)
		assert.Equal(t, "THB", req.Currency)
		assert.Equal(t, b.ID, req.Metadata["bookingId"])

		got, err := f.bookings.GetBooking(ctx, bob, b.ID)
		require.NoError(t, err)
		require.NotNil(t, got.PaymentID)
		assert.Equal(t, pay.ID, *got.PaymentID)
		assert.Contains(t, f.events.Keys(), EvtPaymentCreated)
	})

	t.Run("one active payment under concurrency", func(t *testing.T) {
		f := newFixture(t)
		b := f.book(t, alice, testutil.Cut, at("10:00"))

		const k = 8
		var wg sync.WaitGroup
		errs := make([]error, k)
		for i := 0; i < k; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, _, errs[i] = f.payments.CreatePayment(ctx, alice, b.ID, domain.MethodPayOnVisit)
			}(i)
		}
		wg.Wait()

		ok := 0
		for _, err := range errs {
			if err == nil {
				ok++
				continue
			}
			assert.True(t, errors.Is(err, domain.ErrActivePayment), "unexpected error: %v", err)
		}
		assert.Equal(t, 1, ok)
	})

	t.Run("gateway failure writes nothing", func(t *testing.T) {
		f := newFixture(t)
		b := f.book(t, alice, testutil.Cut, at("10:00"))
		f.gw.Err = errors.New("provider down")

		_, _, err := f.payments.CreatePayment(ctx, alice, b.ID, domain.MethodGateway)
		var ge *domain.GatewayError
		require.ErrorAs(t, err, &ge)

		page, err := f.payments.GetPaymentHistory(ctx, alice, testutil.Alice, 1, 20)
		require.NoError(t, err)
		assert.Zero(t, page.Total)
	})

	t.Run("gateway timeout", func(t *testing.T) {
		f := newFixture(t)
		b := f.book(t, alice, testutil.Cut, at("10:00"))
		f.gw.Block = true

		tctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()
		_, _, err := f.payments.CreatePayment(tctx, alice, b.ID, domain.MethodGateway)
		var ge *domain.GatewayError
		require.ErrorAs(t, err, &ge)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("rejections", func(t *testing.T) {
		f := newFixture(t)
		b := f.book(t, alice, testutil.Cut, at("10:00"))
		var (
			ve *domain.ValidationError
			fe *domain.ForbiddenError
			nf *domain.NotFoundError
		)
		_, _, err := f.payments.CreatePayment(ctx, alice, b.ID, "crypto")
		assert.ErrorAs(t, err, &ve)
		_, _, err = f.payments.CreatePayment(ctx, bob, b.ID, domain.MethodPayOnVisit)
		assert.ErrorAs(t, err, &fe)
		_, _, err = f.payments.CreatePayment(ctx, alice, "BK404", domain.MethodPayOnVisit)
		assert.ErrorAs(t, err, &nf)

		_, err = f.bookings.UpdateStatus(ctx, admin, b.ID, domain.BookingCancelled)
		require.NoError(t, err)
		_, _, err = f.payments.CreatePayment(ctx, alice, b.ID, domain.MethodPayOnVisit)
		assert.ErrorAs(t, err, &ve)
	})
}

func TestVerifyPayment(t *testing.T) {
	ctx := context.Background()

	t.Run("valid signature settles and confirms", func(t *testing.T) {
		f := newFixture(t)
		b := f.book(t, alice, testutil.Cut, at("10:00"))
		pay, order, err := f.payments.CreatePayment(ctx, alice, b.ID, domain.MethodGateway)
		require.NoError(t, err)

		in := VerifyInput{
			OrderID:          order.ID,
			GatewayPaymentID: "chrg_1",
			Signature:        gateway.Sign(testSecret, order.ID, "chrg_1"),
			PaymentID:        pay.ID,
		}
		res, err := f.payments.VerifyPayment(ctx, alice, in)
		require.NoError(t, err)
		assert.True(t, res.Verified)
		assert.Equal(t, domain.PaymentCompleted, res.Payment.Status)
		assert.Equal(t, "chrg_1", res.Payment.GatewayPaymentID)
		assert.Equal(t, domain.BookingConfirmed, res.Booking.Status)
		assert.Equal(t, domain.PayStatusCompleted, res.Booking.PaymentStatus)

		again, err := f.payments.VerifyPayment(ctx, alice, in)
		require.NoError(t, err)
		assert.True(t, again.Verified)

		paidEvents := 0
		for _, k := range f.events.Keys() {
			if k == EvtPaymentPaid {
				paidEvents++
			}
		}
		assert.Equal(t, 1, paidEvents)
		assert.Contains(t, f.events.Keys(), EvtBookingConfirmed)
	})

	t.Run("bad signature fails the payment", func(t *testing.T) {
		f := newFixture(t)
		b := f.book(t, alice, testutil.Cut, at("10:00"))
		pay, order, err := f.payments.CreatePayment(ctx, alice, b.ID, domain.MethodGateway)
		require.NoError(t, err)

		res, err := f.payments.VerifyPayment(ctx, alice, VerifyInput{
			OrderID:          order.ID,
			GatewayPaymentID: "chrg_1",
			Signature:        gateway.Sign("wrong-secret", order.ID, "chrg_1"),
			PaymentID:        pay.ID,
		})
		require.NoError(t, err)
		assert.False(t, res.Verified)
		assert.Equal(t, domain.PaymentFailed, res.Payment.Status)
		assert.Equal(t, "signature mismatch", res.Payment.FailureReason)
		assert.Contains(t, f.events.Keys(), EvtPaymentFailed)

		got, err := f.bookings.GetBooking(ctx, alice, b.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.BookingPending, got.Status)
		assert.Equal(t, domain.PayStatusFailed, got.PaymentStatus)

		// a failed payment no longer blocks a retry
		_, _, err = f.payments.CreatePayment(ctx, alice, b.ID, domain.MethodGateway)
		require.NoError(t, err)
	})

	t.Run("payment found by gateway order when no id is relayed", func(t *testing.T) {
		f := newFixture(t)
		b := f.book(t, alice, testutil.Cut, at("10:00"))
		pay, order, err := f.payments.CreatePayment(ctx, alice, b.ID, domain.MethodGateway)
		require.NoError(t, err)

		res, err := f.payments.VerifyPayment(ctx, alice, VerifyInput{
			OrderID:          order.ID,
			GatewayPaymentID: "chrg_1",
			Signature:        gateway.Sign(testSecret, order.ID, "chrg_1"),
		})
		require.NoError(t, err)
		assert.True(t, res.Verified)
		assert.Equal(t, pay.ID, res.Payment.ID)

		_, err = f.payments.VerifyPayment(ctx, alice, VerifyInput{OrderID: "src_unknown", GatewayPaymentID: "chrg_1"})
		var nf *domain.NotFoundError
		assert.ErrorAs(t, err, &nf)
		_, err = f.payments.VerifyPayment(ctx, alice, VerifyInput{GatewayPaymentID: "chrg_1"})
		var ve *domain.ValidationError
		assert.ErrorAs(t, err, &ve)
	})

	t.Run("order must belong to the payment", func(t *testing.T) {
		f := newFixture(t)
		b := f.book(t, alice, testutil.Cut, at("10:00"))
		pay, _, err := f.payments.CreatePayment(ctx, alice, b.ID, domain.MethodGateway)
		require.NoError(t, err)

		_, err = f.payments.VerifyPayment(ctx, alice, VerifyInput{OrderID: "src_other", PaymentID: pay.ID})
		var ve *domain.ValidationError
		assert.ErrorAs(t, err, &ve)
		_, err = f.payments.VerifyPayment(ctx, bob, VerifyInput{OrderID: pay.GatewayOrderID, PaymentID: pay.ID})
		var fe *domain.ForbiddenError
		assert.ErrorAs(t, err, &fe)
	})
}

func TestProcessRefund(t *testing.T) {
	ctx := context.Background()

	t.Run("full refund", func(t *testing.T) {
		f := newFixture(t)
		pay := f.paid(t, f.book(t, alice, testutil.Cut, at("10:00")))

		got, err := f.payments.ProcessRefund(ctx, admin, pay.ID, 0, "salon closed")
		require.NoError(t, err)
		assert.Equal(t, domain.PaymentRefunded, got.Status)
		assert.Equal(t, int64(1000), got.RefundAmount)
		assert.Equal(t, "salon closed", got.RefundReason)
		assert.Regexp(t, `^rfnd_`, got.RefundID)
		require.Len(t, f.gw.Refunds, 1)
		assert.Equal(t, pay.GatewayPaymentID, f.gw.Refunds[0])
		assert.Contains(t, f.events.Keys(), EvtPaymentRefunded)

		b, err := f.bookings.GetBooking(ctx, alice, pay.BookingID)
		require.NoError(t, err)
		assert.Equal(t, domain.PayStatusRefunded, b.PaymentStatus)

		var ve *domain.ValidationError
		_, err = f.payments.ProcessRefund(ctx, admin, pay.ID, 0, "twice")
		assert.ErrorAs(t, err, &ve)
	})

	t.Run("amount bounds and rights", func(t *testing.T) {
		f := newFixture(t)
		pay := f.paid(t, f.book(t, alice, testutil.Cut, at("10:00")))
		var (
			ve *domain.ValidationError
			fe *domain.ForbiddenError
		)
		_, err := f.payments.ProcessRefund(ctx, owner, pay.ID, 100, "")
		assert.ErrorAs(t, err, &fe)
		_, err = f.payments.ProcessRefund(ctx, admin, pay.ID, 1001, "")
		assert.ErrorAs(t, err, &ve)
		_, err = f.payments.ProcessRefund(ctx, admin, pay.ID, -1, "")
		assert.ErrorAs(t, err, &ve)

		got, err := f.payments.ProcessRefund(ctx, admin, pay.ID, 250, "partial")
		require.NoError(t, err)
		assert.Equal(t, int64(250), got.RefundAmount)
		_, refunds := f.gw.Calls()
		assert.Equal(t, 1, refunds)
	})

	t.Run("gateway error leaves the payment completed", func(t *testing.T) {
		f := newFixture(t)
		pay := f.paid(t, f.book(t, alice, testutil.Cut, at("10:00")))
		f.gw.Err = errors.New("refund rejected")

		_, err := f.payments.ProcessRefund(ctx, admin, pay.ID, 0, "")
		var ge *domain.GatewayError
		require.ErrorAs(t, err, &ge)

		got, err := f.payments.GetPayment(ctx, alice, pay.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.PaymentCompleted, got.Status)
		assert.Zero(t, got.RefundAmount)
	})

	t.Run("pending payments cannot be refunded", func(t *testing.T) {
		f := newFixture(t)
		b := f.book(t, alice, testutil.Cut, at("10:00"))
		pay, _, err := f.payments.CreatePayment(ctx, alice, b.ID, domain.MethodPayOnVisit)
		require.NoError(t, err)
		_, err = f.payments.ProcessRefund(ctx, admin, pay.ID, 0, "")
		var ve *domain.ValidationError
		assert.ErrorAs(t, err, &ve)
	})
}

func TestCancelPayment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	b := f.book(t, alice, testutil.Cut, at("10:00"))
	pay, _, err := f.payments.CreatePayment(ctx, alice, b.ID, domain.MethodGateway)
	require.NoError(t, err)

	var fe *domain.ForbiddenError
	_, err = f.payments.CancelPayment(ctx, bob, pay.ID)
	assert.ErrorAs(t, err, &fe)

	got, err := f.payments.CancelPayment(ctx, alice, pay.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentCancelled, got.Status)
	assert.NotNil(t, got.CancelledAt)

	booking, err := f.bookings.GetBooking(ctx, alice, b.ID)
	require.NoError(t, err)
	assert.Nil(t, booking.PaymentID)
	assert.Equal(t, domain.PayStatusPending, booking.PaymentStatus)

	var ve *domain.ValidationError
	_, err = f.payments.CancelPayment(ctx, alice, pay.ID)
	assert.ErrorAs(t, err, &ve)

	_, _, err = f.payments.CreatePayment(ctx, alice, b.ID, domain.MethodPayOnVisit)
	require.NoError(t, err)
}

func TestPaymentReads(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	first := f.paid(t, f.book(t, alice, testutil.Cut, at("10:00")))
	b2 := f.book(t, alice, testutil.Wash, at("11:00"))
	_, _, err := f.payments.CreatePayment(ctx, alice, b2.ID, domain.MethodPayOnVisit)
	require.NoError(t, err)

	_, err = f.payments.GetPayment(ctx, owner, first.ID)
	require.NoError(t, err)
	var fe *domain.ForbiddenError
	_, err = f.payments.GetPayment(ctx, bob, first.ID)
	assert.ErrorAs(t, err, &fe)
	_, err = f.payments.GetPayment(ctx, stranger, first.ID)
	assert.ErrorAs(t, err, &fe)

	history, err := f.payments.GetPaymentHistory(ctx, alice, testutil.Alice, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), history.Total)
	assert.Equal(t, 20, history.PageSize)
	_, err = f.payments.GetPaymentHistory(ctx, bob, testutil.Alice, 1, 20)
	assert.ErrorAs(t, err, &fe)

	report, err := f.payments.GetSalonPayments(ctx, owner, testutil.SalonID, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), report.Total)
	assert.Len(t, report.Payments, 1)
	assert.Equal(t, int64(1000), report.Revenue)
	assert.Equal(t, domain.StatusSummary{Count: 1, Amount: 600}, report.ByStatus[domain.PaymentPending])
	_, err = f.payments.GetSalonPayments(ctx, stranger, testutil.SalonID, 1, 20)
	assert.ErrorAs(t, err, &fe)
	_, err = f.payments.GetSalonPayments(ctx, alice, testutil.SalonID, 1, 20)
	assert.ErrorAs(t, err, &fe)
}

func TestHandleWebhook(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (*fixture, *domain.Payment) {
		f := newFixture(t)
		b := f.book(t, alice, testutil.Cut, at("10:00"))
		pay, _, err := f.payments.CreatePayment(ctx, alice, b.ID, domain.MethodGateway)
		require.NoError(t, err)
		return f, pay
	}

	t.Run("paid charge settles once", func(t *testing.T) {
		f, pay := setup(t)
		f.gw.Events["evnt_1"] = &gateway.ChargeEvent{EventID: "evnt_1", Key: "charge.complete", OrderID: pay.GatewayOrderID, PaymentID: "chrg_9", Paid: true, Raw: []byte(`{}`)}

		require.NoError(t, f.payments.HandleWebhook(ctx, "evnt_1"))
		got, err := f.payments.GetPayment(ctx, admin, pay.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.PaymentCompleted, got.Status)
		assert.Equal(t, "chrg_9", got.GatewayPaymentID)
		assert.True(t, gateway.VerifySignature(testSecret, pay.GatewayOrderID, "chrg_9", got.GatewaySignature))

		b, err := f.bookings.GetBooking(ctx, admin, pay.BookingID)
		require.NoError(t, err)
		assert.Equal(t, domain.BookingConfirmed, b.Status)

		require.NoError(t, f.payments.HandleWebhook(ctx, "evnt_1"))
		paidEvents := 0
		for _, k := range f.events.Keys() {
			if k == EvtPaymentPaid {
				paidEvents++
			}
		}
		assert.Equal(t, 1, paidEvents)
	})

	t.Run("failed charge", func(t *testing.T) {
		f, pay := setup(t)
		f.gw.Events["evnt_2"] = &gateway.ChargeEvent{Key: "charge.complete", OrderID: pay.GatewayOrderID, PaymentID: "chrg_2", FailureCode: "insufficient_fund"}

		require.NoError(t, f.payments.HandleWebhook(ctx, "evnt_2"))
		got, err := f.payments.GetPayment(ctx, admin, pay.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.PaymentFailed, got.Status)
		assert.Equal(t, "insufficient_fund", got.FailureReason)
	})

	t.Run("ignored and unknown events", func(t *testing.T) {
		f, pay := setup(t)
		f.gw.Events["evnt_3"] = &gateway.ChargeEvent{Key: "customer.create"}
		f.gw.Events["evnt_4"] = &gateway.ChargeEvent{Key: "charge.complete", OrderID: "src_unknown", Paid: true}

		require.NoError(t, f.payments.HandleWebhook(ctx, "evnt_3"))
		require.NoError(t, f.payments.HandleWebhook(ctx, "evnt_4"))
		got, err := f.payments.GetPayment(ctx, admin, pay.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.PaymentProcessing, got.Status)

		var ge *domain.GatewayError
		assert.ErrorAs(t, f.payments.HandleWebhook(ctx, "evnt_missing"), &ge)
		var ve *domain.ValidationError
		assert.ErrorAs(t, f.payments.HandleWebhook(ctx, ""), &ve)
	})
}

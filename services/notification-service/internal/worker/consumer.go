package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/you/salon-booking/services/notification-service/internal/events"
	"github.com/you/salon-booking/services/notification-service/internal/notifier"
)

// errMalformed marks bodies that will never decode; they are dead-lettered
// instead of requeued.
var errMalformed = errors.New("malformed event")

type Worker struct {
	notifier notifier.Notifier
	log      *slog.Logger
}

func New(n notifier.Notifier, log *slog.Logger) *Worker {
	return &Worker{notifier: n, log: log}
}

// Run handles deliveries until ctx is done or the channel closes.
func (w *Worker) Run(ctx context.Context, msgs <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return nil
			}
			err := w.Handle(ctx, d.RoutingKey, d.Body)
			switch {
			case err == nil:
				_ = d.Ack(false)
			case errors.Is(err, errMalformed):
				w.log.Warn("[notify] dropping malformed event", "key", d.RoutingKey, "err", err)
				_ = d.Nack(false, false)
			default:
				w.log.Error("[notify] handle error, requeue", "key", d.RoutingKey, "err", err)
				_ = d.Nack(false, true)
			}
		}
	}
}

// Handle renders one event and hands it to the notifier. Unknown keys are skipped.
func (w *Worker) Handle(ctx context.Context, key string, body []byte) error {
	var (
		msgs []notifier.Message
		err  error
	)
	switch {
	case strings.HasPrefix(key, "booking."):
		var ev events.Booking
		if ev, err = events.Decode[events.Booking](body); err == nil {
			msgs = bookingMessages(key, ev)
		}
	case strings.HasPrefix(key, "payment."):
		var ev events.Payment
		if ev, err = events.Decode[events.Payment](body); err == nil {
			msgs = paymentMessages(key, ev)
		}
	}
	if err != nil {
		return fmt.Errorf("%w: %v", errMalformed, err)
	}
	if len(msgs) == 0 {
		w.log.Debug("[notify] skip", "key", key)
		return nil
	}
	for _, m := range msgs {
		if err := w.notifier.Notify(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

func bookingMessages(key string, ev events.Booking) []notifier.Message {
	when := notifier.Appointment(ev.AppointmentTime)
	switch key {
	case events.RKBookingCreated:
		body := fmt.Sprintf("Booking %s on %s received, total %s.", ev.BookingID, when, notifier.Amount(ev.TotalPrice, ""))
		if ev.DiscountApplied {
			body += " Referral discount applied."
		}
		return []notifier.Message{{Recipient: ev.CustomerID, Subject: "Booking received", Body: body}}

	case events.RKBookingConfirmed:
		msgs := []notifier.Message{{
			Recipient: ev.CustomerID,
			Subject:   "Booking confirmed",
			Body:      confirmedBody(ev, when),
		}}
		if ev.SalonID != "" {
			msgs = append(msgs, notifier.Message{
				Recipient: ev.SalonID,
				Subject:   "New confirmed booking",
				Body:      fmt.Sprintf("Booking %s on %s is confirmed.", ev.BookingID, when),
			})
		}
		return msgs

	case events.RKBookingCancelled:
		return []notifier.Message{
			{Recipient: ev.CustomerID, Subject: "Booking cancelled", Body: fmt.Sprintf("Booking %s on %s has been cancelled.", ev.BookingID, when)},
			{Recipient: ev.SalonID, Subject: "Booking cancelled", Body: fmt.Sprintf("Booking %s on %s was cancelled.", ev.BookingID, when)},
		}

	case events.RKBookingStatusChanged:
		// confirmed and cancelled have their own events
		if ev.Status != "completed" {
			return nil
		}
		return []notifier.Message{{Recipient: ev.CustomerID, Subject: "Thanks for visiting", Body: fmt.Sprintf("Booking %s is complete.", ev.BookingID)}}
	}
	return nil
}

func confirmedBody(ev events.Booking, when string) string {
	d := ev.Details
	if d == nil {
		return fmt.Sprintf("Booking %s on %s has been confirmed.", ev.BookingID, when)
	}
	names := make([]string, 0, len(d.Services))
	for _, s := range d.Services {
		names = append(names, s.Name)
	}
	return fmt.Sprintf("Hi %s, your booking at %s on %s at %s is confirmed (%s, %d min). %s, %s.",
		d.CustomerName, d.SalonName, d.Date, d.Time, strings.Join(names, ", "), d.TotalDuration, d.SalonAddress, d.SalonPhone)
}

func paymentMessages(key string, ev events.Payment) []notifier.Message {
	amount := notifier.Amount(ev.Amount, ev.Currency)
	switch key {
	case events.RKPaymentPaid:
		return []notifier.Message{{Recipient: ev.CustomerID, Subject: "Payment received",
			Body: fmt.Sprintf("We received %s for booking %s.", amount, ev.BookingID)}}

	case events.RKPaymentFailed:
		body := fmt.Sprintf("Payment of %s for booking %s failed.", amount, ev.BookingID)
		if ev.Reason != "" {
			body += " Reason: " + ev.Reason
		}
		return []notifier.Message{{Recipient: ev.CustomerID, Subject: "Payment failed", Body: body}}

	case events.RKPaymentRefunded:
		return []notifier.Message{{Recipient: ev.CustomerID, Subject: "Refund issued",
			Body: fmt.Sprintf("%s was refunded for booking %s.", notifier.Amount(ev.RefundAmount, ev.Currency), ev.BookingID)}}
	}
	return nil
}

// Package gateway talks to the payment provider. Every call is bounded by a
// timeout, retried according to a Policy, and fails with *domain.GatewayError.
package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/you/salon-booking/services/booking-service/internal/domain"
)

type OrderRequest struct {
	Amount   int64 // minor units
	Currency string
	Receipt  string
	Metadata map[string]string
}

// Order is the provider-side intent a customer pays against.
type Order struct {
	ID       string
	Amount   int64
	Currency string
	Receipt  string
	Status   string
	Metadata map[string]string
}

type Refund struct {
	ID     string
	Amount int64
}

// ChargeEvent is a verified provider notification about a charge.
type ChargeEvent struct {
	EventID     string
	Key         string
	OrderID     string
	PaymentID   string
	Paid        bool
	FailureCode string
	Raw         []byte
}

type Gateway interface {
	CreateOrder(ctx context.Context, req OrderRequest) (*Order, error)
	Refund(ctx context.Context, paymentID string, amount int64) (*Refund, error)
	// RetrieveEvent re-fetches a webhook event from the provider, which is how
	// an unauthenticated webhook body is trusted.
	RetrieveEvent(ctx context.Context, eventID string) (*ChargeEvent, error)
}

// Policy bounds and retries provider calls. MaxAttempts <= 1 means no retry.
type Policy struct {
	Timeout     time.Duration
	MaxAttempts int
	Backoff     time.Duration
}

func (p Policy) withDefaults() Policy {
	if p.Timeout <= 0 {
		p.Timeout = 10 * time.Second
	}
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.Backoff <= 0 {
		p.Backoff = 200 * time.Millisecond
	}
	return p
}

// permanent marks errors that a retry cannot fix.
func permanent(err error) error { return backoff.Permanent(err) }

// Do runs fn under the policy. fn receives a context carrying the per-attempt
// timeout. The returned error is always a *domain.GatewayError.
func (p Policy) Do(ctx context.Context, op string, fn func(context.Context) error) error {
	p = p.withDefaults()
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.Backoff
	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(p.MaxAttempts-1)), ctx)

	err := backoff.Retry(func() error {
		actx, cancel := context.WithTimeout(ctx, p.Timeout)
		defer cancel()
		return fn(actx)
	}, b)
	if err == nil {
		return nil
	}
	var ge *domain.GatewayError
	if errors.As(err, &ge) {
		return ge
	}
	return &domain.GatewayError{Op: op, Err: err}
}

// Sign is the callback signature: hex HMAC-SHA256 of "orderID|paymentID".
func Sign(secret, orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature compares in constant time.
func VerifySignature(secret, orderID, paymentID, signature string) bool {
	want := Sign(secret, orderID, paymentID)
	return hmac.Equal([]byte(want), []byte(signature))
}

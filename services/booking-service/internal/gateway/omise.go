package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/omise/omise-go"
	"github.com/omise/omise-go/operations"
)

// Omise maps the gateway contract onto Omise: an order is a Source, the
// gateway payment id is the Charge created against it.
type Omise struct {
	omc        *omise.Client
	sourceType string
	policy     Policy
	log        *slog.Logger
}

func NewOmiseClient(pub, sec string) (*omise.Client, error) {
	return omise.NewClient(pub, sec)
}

func NewOmise(omc *omise.Client, sourceType string, policy Policy, log *slog.Logger) *Omise {
	if sourceType == "" {
		sourceType = "promptpay"
	}
	return &Omise{omc: omc, sourceType: sourceType, policy: policy, log: log}
}

// client returns a copy of the SDK client bound to ctx. WithContext mutates
// the client it is called on, and the shared one serves concurrent requests.
func (o *Omise) client(ctx context.Context) *omise.Client {
	c := *o.omc
	c.WithContext(ctx)
	return &c
}

// classify marks 4xx API errors permanent; the request itself is wrong.
func classify(err error) error {
	var apiErr *omise.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
		return permanent(err)
	}
	return err
}

// CreateOrder creates a source. Omise sources carry no metadata, so the
// receipt and metadata stay on the local payment record.
func (o *Omise) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	src := &omise.Source{}
	err := o.policy.Do(ctx, "create order", func(actx context.Context) error {
		return classify(o.client(actx).Do(src, &operations.CreateSource{
			Type:     o.sourceType,
			Amount:   req.Amount,
			Currency: req.Currency,
		}))
	})
	if err != nil {
		return nil, err
	}
	o.log.Info("[gateway] order created", "order_id", src.ID, "amount", src.Amount, "receipt", req.Receipt)
	return &Order{
		ID:       src.ID,
		Amount:   src.Amount,
		Currency: src.Currency,
		Receipt:  req.Receipt,
		Status:   "created",
		Metadata: req.Metadata,
	}, nil
}

func (o *Omise) Refund(ctx context.Context, paymentID string, amount int64) (*Refund, error) {
	rf := &omise.Refund{}
	err := o.policy.Do(ctx, "refund", func(actx context.Context) error {
		return classify(o.client(actx).Do(rf, &operations.CreateRefund{ChargeID: paymentID, Amount: amount}))
	})
	if err != nil {
		return nil, err
	}
	return &Refund{ID: rf.ID, Amount: rf.Amount}, nil
}

func (o *Omise) RetrieveEvent(ctx context.Context, eventID string) (*ChargeEvent, error) {
	ev := &omise.Event{}
	err := o.policy.Do(ctx, "retrieve event", func(actx context.Context) error {
		return classify(o.client(actx).Do(ev, &operations.RetrieveEvent{EventID: eventID}))
	})
	if err != nil {
		return nil, err
	}
	out := &ChargeEvent{EventID: ev.ID, Key: ev.Key}
	if ev.Key != "charge.complete" {
		return out, nil
	}
	// the SDK decodes charge events into *omise.Charge
	ch, ok := ev.Data.(*omise.Charge)
	if !ok {
		return nil, fmt.Errorf("event %s: unexpected data %T", ev.ID, ev.Data)
	}
	raw, err := json.Marshal(ch)
	if err != nil {
		return nil, fmt.Errorf("encode event data: %w", err)
	}
	out.Raw = raw
	out.PaymentID = ch.ID
	out.Paid = ch.Status == omise.ChargeSuccessful
	if ch.Source != nil {
		out.OrderID = ch.Source.ID
	}
	if ch.FailureCode != nil {
		out.FailureCode = *ch.FailureCode
	}
	return out, nil
}

package gateway

import (
	"context"
	"fmt"
	"sync"
)

// Fake is an in-memory Gateway for tests and local runs without credentials.
type Fake struct {
	mu      sync.Mutex
	seq     int
	Orders  []OrderRequest
	Refunds []string

	// Err, when set, fails every call.
	Err    error
	Events map[string]*ChargeEvent
	// Block makes calls wait for ctx, to exercise timeouts.
	Block bool
}

func NewFake() *Fake { return &Fake{Events: map[string]*ChargeEvent{}} }

func (f *Fake) next(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s_%04d", prefix, f.seq)
}

func (f *Fake) wait(ctx context.Context) error {
	if f.Block {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

func (f *Fake) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	f.Orders = append(f.Orders, req)
	return &Order{ID: f.next("src"), Amount: req.Amount, Currency: req.Currency, Receipt: req.Receipt, Status: "created", Metadata: req.Metadata}, nil
}

func (f *Fake) Refund(ctx context.Context, paymentID string, amount int64) (*Refund, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	f.Refunds = append(f.Refunds, paymentID)
	return &Refund{ID: f.next("rfnd"), Amount: amount}, nil
}

func (f *Fake) RetrieveEvent(ctx context.Context, eventID string) (*ChargeEvent, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	ev, ok := f.Events[eventID]
	if !ok {
		return nil, fmt.Errorf("event %s not found", eventID)
	}
	return ev, nil
}

// Calls reports how many orders and refunds reached the fake.
func (f *Fake) Calls() (orders, refunds int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Orders), len(f.Refunds)
}

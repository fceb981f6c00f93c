package notifier

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Message is one rendered notification addressed to a customer or a salon.
type Message struct {
	Recipient string
	Subject   string
	Body      string
}

// Notifier delivers messages. Console is the only transport for now.
type Notifier interface {
	Notify(ctx context.Context, m Message) error
}

type Console struct {
	log *slog.Logger
}

func NewConsole(log *slog.Logger) *Console {
	return &Console{log: log}
}

func (c *Console) Notify(_ context.Context, m Message) error {
	c.log.Info("[notify] "+m.Subject, "to", m.Recipient, "message", m.Body)
	return nil
}

// Appointment formats t the way customers see it, e.g. "Mon 07 Jan 2030, 10:00".
func Appointment(t time.Time) string {
	return t.UTC().Format("Mon 02 Jan 2006, 15:04")
}

// Amount formats whole currency units, e.g. "1,250 THB".
func Amount(v int64, currency string) string {
	neg := v < 0
	if neg {
		v = -v
	}
	s := fmt.Sprintf("%d", v)
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	out := b.String()
	if neg {
		out = "-" + out
	}
	if currency != "" {
		out += " " + strings.ToUpper(currency)
	}
	return out
}

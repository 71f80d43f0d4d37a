package messaging

import (
	"context"
	"strings"
	"time"

	"go.uber.org/atomic"
)

// delivery is the driver-neutral Message implementation.
type delivery struct {
	id      string
	topic   string
	key     []byte
	body    []byte
	headers []Header
	at      time.Time

	ack  func() error
	nack func() error

	settled atomic.Bool
}

func (d *delivery) Body() []byte         { return d.body }
func (d *delivery) Key() []byte          { return d.key }
func (d *delivery) Headers() []Header    { return d.headers }
func (d *delivery) ID() string           { return d.id }
func (d *delivery) Topic() string        { return d.topic }
func (d *delivery) Timestamp() time.Time { return d.at }

func (d *delivery) Header(key string) string {
	for _, h := range d.headers {
		if strings.EqualFold(h.Key, key) {
			return string(h.Value)
		}
	}
	return ""
}

func (d *delivery) Ack(ctx context.Context) error {
	return d.settle(ctx, d.ack)
}

func (d *delivery) Nack(ctx context.Context) error {
	return d.settle(ctx, d.nack)
}

func (d *delivery) settle(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !d.settled.CompareAndSwap(false, true) || fn == nil {
		return nil
	}
	return fn()
}

func (d *delivery) isSettled() bool { return d.settled.Load() }

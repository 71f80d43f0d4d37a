package messaging

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"go.uber.org/atomic"
)

// ErrBacklogFull is returned when a topic without consumers has Buffer messages waiting.
var ErrBacklogFull = errors.New("messaging: memory backlog full")

const (
	defaultMemoryBuffer       = 256
	defaultMemoryRedeliveries = 3
)

type MemoryConfig struct {
	// Buffer is the per-group queue size. Publish blocks when it is full.
	Buffer int
	// MaxRedeliveries bounds how often a nacked message is queued again.
	MaxRedeliveries int
}

// Memory is an in-process broker for single-instance deployments and tests.
//
// Each consumer group of a topic receives every message once; consumers in the
// same group share the load. Messages published before any group subscribes
// are kept (up to Buffer) and handed to the first group.
type Memory struct {
	buffer          int
	maxRedeliveries int
	seq             atomic.Int64

	mu      sync.Mutex
	closed  bool
	groups  map[string]map[string]chan *delivery
	backlog map[string][]memoryEnvelope
}

type memoryEnvelope struct {
	msg      OutgoingMessage
	id       string
	at       time.Time
	attempts int
}

func NewMemory(cfg MemoryConfig) *Memory {
	if cfg.Buffer <= 0 {
		cfg.Buffer = defaultMemoryBuffer
	}
	if cfg.MaxRedeliveries <= 0 {
		cfg.MaxRedeliveries = defaultMemoryRedeliveries
	}

	return &Memory{
		buffer:          cfg.Buffer,
		maxRedeliveries: cfg.MaxRedeliveries,
		groups:          make(map[string]map[string]chan *delivery),
		backlog:         make(map[string][]memoryEnvelope),
	}
}

func (m *Memory) Publish(ctx context.Context, destination string, msg OutgoingMessage) (PublishResult, error) {
	if err := validatePublish(ctx, destination); err != nil {
		return PublishResult{}, err
	}

	env := memoryEnvelope{
		msg: msg,
		id:  strconv.FormatInt(m.seq.Inc(), 10),
		at:  time.Now(),
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return PublishResult{}, ErrClosed
	}
	targets := make([]chan *delivery, 0, len(m.groups[destination]))
	for _, ch := range m.groups[destination] {
		targets = append(targets, ch)
	}
	if len(targets) == 0 {
		if len(m.backlog[destination]) >= m.buffer {
			m.mu.Unlock()
			return PublishResult{}, ErrBacklogFull
		}
		m.backlog[destination] = append(m.backlog[destination], env)
	}
	m.mu.Unlock()

	for _, ch := range targets {
		if err := send(ctx, ch, m.toDelivery(destination, ch, env)); err != nil {
			return PublishResult{}, err
		}
	}

	return PublishResult{MessageID: env.id, Topic: destination, Timestamp: env.at}, nil
}

// send fails with ErrClosed instead of panicking when Close raced with it.
func send(ctx context.Context, ch chan *delivery, d *delivery) (err error) {
	defer func() {
		if recover() != nil {
			err = ErrClosed
		}
	}()

	select {
	case ch <- d:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Memory) toDelivery(topic string, ch chan *delivery, env memoryEnvelope) *delivery {
	d := &delivery{
		id:      env.id,
		topic:   topic,
		key:     env.msg.Key,
		body:    env.msg.Body,
		headers: env.msg.Headers,
		at:      env.at,
	}
	d.nack = func() error {
		if env.attempts+1 >= m.maxRedeliveries {
			slog.Warn("memory broker dropped message after redeliveries", "topic", topic, "id", env.id)
			return nil
		}
		next := env
		next.attempts++
		go func() {
			//nolint:errcheck // broker closed, nothing left to redeliver to
			_ = send(context.Background(), ch, m.toDelivery(topic, ch, next))
		}()
		return nil
	}
	return d
}

func (m *Memory) Consume(ctx context.Context, source string, handler Handler, opts ...ConsumeOption) error {
	if err := validateConsume(ctx, source, handler); err != nil {
		return err
	}

	co := newConsumeOptions(opts...)
	ch, err := m.subscribe(source, co.anyGroup())
	if err != nil {
		return err
	}

	work := make(chan *delivery)
	wg := workerPool(co.concurrency, work, func(d *delivery) {
		//nolint:errcheck // handler errors are the handler's business once settled
		_ = dispatch(ctx, DriverMemory, d, handler, co.autoAck)
	})

	defer func() {
		close(work)
		wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-ch:
			if !ok {
				return nil
			}
			select {
			case work <- d:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

func (m *Memory) subscribe(topic, group string) (chan *delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}

	if m.groups[topic] == nil {
		m.groups[topic] = make(map[string]chan *delivery)
	}
	ch, ok := m.groups[topic][group]
	if ok {
		return ch, nil
	}

	ch = make(chan *delivery, m.buffer)
	m.groups[topic][group] = ch

	for _, env := range m.backlog[topic] {
		ch <- m.toDelivery(topic, ch, env)
	}
	delete(m.backlog, topic)

	return ch, nil
}

// Close stops all consumers; pending messages are discarded.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	for _, groups := range m.groups {
		for _, ch := range groups {
			close(ch)
		}
	}
	m.groups = nil
	m.backlog = nil

	return nil
}

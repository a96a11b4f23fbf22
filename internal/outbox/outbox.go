// Package outbox persists conversation turns off the request path.
//
// Engine calls hand an Event to Enqueue and return immediately. A single
// worker drains the queue, paces deliveries, retries failed writes with
// exponential backoff and finally drops what it cannot deliver. Nothing in
// here ever reports back to the conversation except a newly assigned lead ID.
package outbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/time/rate"

	"github.com/hurttlocker/leasebot/internal/lead"
)

// ErrClosed is returned by Enqueue after Close.
var ErrClosed = errors.New("outbox closed")

// ErrQueueFull is returned by Enqueue when the buffer has no room.
var ErrQueueFull = errors.New("outbox queue full")

// LeadSummary is the persisted view of a profile: everything except history.
type LeadSummary struct {
	ID          string      `json:"id,omitempty"`
	SessionID   string      `json:"sessionId"`
	Source      string      `json:"source"`
	Name        string      `json:"name,omitempty"`
	Email       string      `json:"email,omitempty"`
	Phone       string      `json:"phone,omitempty"`
	MoveInDate  string      `json:"moveInDate,omitempty"`
	Bedrooms    *int        `json:"bedrooms,omitempty"`
	Bathrooms   *float64    `json:"bathrooms,omitempty"`
	Budget      *int        `json:"budget,omitempty"`
	PetFriendly *bool       `json:"petFriendly,omitempty"`
	Preferences []string    `json:"preferences,omitempty"`
	Status      lead.Status `json:"status"`
}

// Summarize builds a LeadSummary from a profile snapshot.
func Summarize(p lead.Profile) LeadSummary {
	source := p.Source
	if source == "" {
		source = lead.DefaultSource
	}
	return LeadSummary{
		ID:          p.ID,
		SessionID:   p.SessionID,
		Source:      source,
		Name:        p.Name,
		Email:       p.Email,
		Phone:       p.Phone,
		MoveInDate:  p.MoveInDate,
		Bedrooms:    p.Bedrooms,
		Bathrooms:   p.Bathrooms,
		Budget:      p.Budget,
		PetFriendly: p.PetFriendly,
		Preferences: append([]string(nil), p.Preferences...),
		Status:      p.Status,
	}
}

// Sink is the durable side of the outbox.
type Sink interface {
	// UpsertLead creates or updates the lead for s.SessionID and returns its ID.
	UpsertLead(ctx context.Context, s LeadSummary) (string, error)
	// AppendMessage records one conversation message under leadID.
	AppendMessage(ctx context.Context, leadID string, m lead.Message) error
}

// Event is one conversation turn waiting to be persisted.
type Event struct {
	Profile  lead.Profile
	Messages []lead.Message
}

// AssignFunc is told about the lead ID the sink returned for a session.
type AssignFunc func(ctx context.Context, sessionID, leadID string) error

// Config tunes delivery.
type Config struct {
	Buffer         int           // queued events before Enqueue starts dropping
	Rate           float64       // deliveries per second; <= 0 means unlimited
	MaxAttempts    int           // per write, including the first
	AttemptTimeout time.Duration // bound on a single sink call
	Backoff        time.Duration // wait after the first failure; doubles per retry
	MaxBackoff     time.Duration
}

// DefaultConfig returns the delivery settings used when none are configured.
func DefaultConfig() Config {
	return Config{
		Buffer:         256,
		Rate:           20,
		MaxAttempts:    4,
		AttemptTimeout: 5 * time.Second,
		Backoff:        200 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Buffer <= 0 {
		c.Buffer = d.Buffer
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = d.AttemptTimeout
	}
	if c.Backoff <= 0 {
		c.Backoff = d.Backoff
	}
	if c.MaxBackoff < c.Backoff {
		c.MaxBackoff = c.Backoff
	}
	return c
}

// Stats counts what happened to enqueued events.
type Stats struct {
	Enqueued  int64
	Dropped   int64 // rejected by a full queue
	Delivered int64
	Failed    int64 // gave up after MaxAttempts
}

// Outbox is a buffered, single-worker delivery queue.
type Outbox struct {
	sink    Sink
	cfg     Config
	limiter *rate.Limiter
	logger  *slog.Logger
	assign  AssignFunc

	mu     sync.RWMutex
	closed bool
	queue  chan Event

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	enqueued, dropped, delivered, failed atomic.Int64
}

// Option configures an Outbox.
type Option func(*Outbox)

// WithLogger sets the logger for drops and delivery failures.
func WithLogger(l *slog.Logger) Option {
	return func(o *Outbox) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithAssign registers the callback for newly learned lead IDs.
func WithAssign(fn AssignFunc) Option {
	return func(o *Outbox) { o.assign = fn }
}

// New starts an outbox worker delivering to sink.
func New(sink Sink, cfg Config, opts ...Option) *Outbox {
	cfg = cfg.withDefaults()
	limit := rate.Inf
	if cfg.Rate > 0 {
		limit = rate.Limit(cfg.Rate)
	}
	ctx, cancel := context.WithCancel(context.Background())
	o := &Outbox{
		sink:    sink,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, 1),
		logger:  slog.Default(),
		queue:   make(chan Event, cfg.Buffer),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	go o.run()
	return o
}

// Enqueue queues ev without blocking. The event is copied so later changes
// to the caller's profile are not observed.
func (o *Outbox) Enqueue(ev Event) error {
	ev.Profile = ev.Profile.Clone()
	ev.Messages = append([]lead.Message(nil), ev.Messages...)

	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.closed {
		return ErrClosed
	}
	select {
	case o.queue <- ev:
		o.enqueued.Add(1)
		return nil
	default:
		o.dropped.Add(1)
		o.logger.Warn("outbox full, dropping event",
			slog.String("session", ev.Profile.SessionID), slog.Int("buffer", o.cfg.Buffer))
		return ErrQueueFull
	}
}

// Close stops accepting events and waits for the queue to drain. If ctx
// expires first, in-flight work is abandoned and ctx.Err() is returned.
func (o *Outbox) Close(ctx context.Context) error {
	o.mu.Lock()
	if !o.closed {
		o.closed = true
		close(o.queue)
	}
	o.mu.Unlock()

	select {
	case <-o.done:
		return nil
	case <-ctx.Done():
		o.cancel()
		<-o.done
		return ctx.Err()
	}
}

// Stats returns a snapshot of the delivery counters.
func (o *Outbox) Stats() Stats {
	return Stats{
		Enqueued:  o.enqueued.Load(),
		Dropped:   o.dropped.Load(),
		Delivered: o.delivered.Load(),
		Failed:    o.failed.Load(),
	}
}

func (o *Outbox) run() {
	defer close(o.done)
	defer o.cancel()
	for ev := range o.queue {
		if o.ctx.Err() != nil {
			o.failed.Add(1)
			continue
		}
		if err := o.limiter.Wait(o.ctx); err != nil {
			o.failed.Add(1)
			continue
		}
		if err := o.deliver(o.ctx, ev); err != nil {
			o.failed.Add(1)
			o.logger.Error("outbox delivery failed, event dropped",
				slog.String("session", ev.Profile.SessionID),
				slog.Int("messages", len(ev.Messages)),
				slog.Any("error", err))
			continue
		}
		o.delivered.Add(1)
	}
}

// deliver upserts the lead then appends each message in order.
func (o *Outbox) deliver(ctx context.Context, ev Event) error {
	summary := Summarize(ev.Profile)

	var leadID string
	err := o.retry(ctx, "upsert lead", func(actx context.Context) error {
		id, err := o.sink.UpsertLead(actx, summary)
		if err != nil {
			return err
		}
		if id == "" {
			return errors.New("sink returned empty lead id")
		}
		leadID = id
		return nil
	})
	if err != nil {
		return fmt.Errorf("upsert lead: %w", err)
	}

	if leadID != ev.Profile.ID && o.assign != nil {
		if err := o.assign(ctx, ev.Profile.SessionID, leadID); err != nil {
			o.logger.Warn("could not record lead id",
				slog.String("session", ev.Profile.SessionID),
				slog.String("lead", leadID),
				slog.Any("error", err))
		}
	}

	for i, m := range ev.Messages {
		err := o.retry(ctx, "append message", func(actx context.Context) error {
			return o.sink.AppendMessage(actx, leadID, m)
		})
		if err != nil {
			return fmt.Errorf("append message %d of %d: %w", i+1, len(ev.Messages), err)
		}
	}
	return nil
}

// retry runs fn up to MaxAttempts times, each bounded by AttemptTimeout,
// with exponential backoff from Backoff capped at MaxBackoff. Cancellation
// of ctx stops immediately.
func (o *Outbox) retry(ctx context.Context, op string, fn func(context.Context) error) error {
	attempt := 0
	operation := func() (struct{}, error) {
		if err := ctx.Err(); err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		attempt++
		actx, cancel := context.WithTimeout(ctx, o.cfg.AttemptTimeout)
		defer cancel()
		if err := fn(actx); err != nil {
			if ctx.Err() != nil {
				return struct{}{}, backoff.Permanent(err)
			}
			return struct{}{}, err
		}
		return struct{}{}, nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = o.cfg.Backoff
	bo.MaxInterval = o.cfg.MaxBackoff
	bo.Multiplier = 2

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(o.cfg.MaxAttempts)),
		backoff.WithNotify(func(err error, wait time.Duration) {
			o.logger.Debug("outbox retrying",
				slog.String("op", op),
				slog.Int("attempt", attempt),
				slog.Duration("wait", wait),
				slog.Any("error", err))
		}),
	)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return err
	}
	return fmt.Errorf("%s: gave up after %d attempts: %w", op, attempt, err)
}

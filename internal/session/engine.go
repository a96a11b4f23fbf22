package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hurttlocker/leasebot/internal/extract"
	"github.com/hurttlocker/leasebot/internal/lead"
	"github.com/hurttlocker/leasebot/internal/outbox"
	"github.com/hurttlocker/leasebot/internal/respond"
)

// Metadata keys set on assistant messages.
const (
	MetaExtracted = "extracted" // comma-separated fields the user message updated
	MetaBranch    = "branch"    // router branch that produced the reply
)

// Enqueuer accepts persistence events without blocking.
type Enqueuer interface {
	Enqueue(ev outbox.Event) error
}

// Engine runs conversation turns against a Store.
type Engine struct {
	store  Store
	router *respond.Router
	queue  Enqueuer
	logger *slog.Logger
	locks  *keyedMutex
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithRouter replaces the default response router.
func WithRouter(r *respond.Router) EngineOption {
	return func(e *Engine) {
		if r != nil {
			e.router = r
		}
	}
}

// WithOutbox sends every completed turn to q.
func WithOutbox(q Enqueuer) EngineOption {
	return func(e *Engine) { e.queue = q }
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine returns an engine over store.
func NewEngine(store Store, opts ...EngineOption) *Engine {
	e := &Engine{
		store:  store,
		logger: slog.Default(),
		locks:  newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.router == nil {
		e.router = respond.NewRouter(respond.WithLogger(e.logger))
	}
	return e
}

// Start resets id to a fresh NEW profile and returns the welcome message.
func (e *Engine) Start(ctx context.Context, id string) (lead.Message, error) {
	unlock := e.locks.Lock(id)
	defer unlock()

	p, err := e.store.Create(ctx, id)
	if err != nil {
		return lead.Message{}, fmt.Errorf("start session: %w", err)
	}
	welcome := lead.NewMessage(lead.RoleAssistant, respond.WelcomeMessage)
	p.History = append(p.History, welcome)
	if err := e.store.Put(ctx, p); err != nil {
		return lead.Message{}, fmt.Errorf("start session: %w", err)
	}
	e.logger.Info("session started", slog.String("session", id))
	return welcome, nil
}

// Send processes one user message and returns the assistant reply.
// Unknown ids are initialized on the fly. The only error is a store failure.
func (e *Engine) Send(ctx context.Context, id, text string) (lead.Message, error) {
	unlock := e.locks.Lock(id)
	defer unlock()

	p, err := e.store.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		e.logger.Info("auto-initializing unknown session", slog.String("session", id))
		p = lead.NewProfile(id)
	} else if err != nil {
		return lead.Message{}, fmt.Errorf("send: %w", err)
	}

	userMsg := lead.NewMessage(lead.RoleUser, text)
	p.History = append(p.History, userMsg)

	updated := extract.Extract(p, text)
	changed := extract.Changes(p, updated)

	reply := e.router.Route(ctx, updated, text)
	assistant := lead.NewMessage(lead.RoleAssistant, reply)
	assistant.Metadata = map[string]string{MetaBranch: e.router.Which(updated, text)}
	if len(changed) > 0 {
		assistant.Metadata[MetaExtracted] = extract.JoinFields(changed)
	}
	updated.History = append(updated.History, assistant)

	if lead.Qualify(&updated) {
		e.logger.Info("lead qualified", slog.String("session", id))
	}

	if err := e.store.Put(ctx, updated); err != nil {
		return lead.Message{}, fmt.Errorf("send: %w", err)
	}

	if len(changed) > 0 {
		e.logger.Debug("extracted", slog.String("session", id), slog.String("fields", extract.JoinFields(changed)))
	}
	e.persist(updated, userMsg, assistant)
	return assistant, nil
}

func (e *Engine) persist(p lead.Profile, msgs ...lead.Message) {
	if e.queue == nil {
		return
	}
	if err := e.queue.Enqueue(outbox.Event{Profile: p, Messages: msgs}); err != nil {
		e.logger.Warn("turn not queued for persistence",
			slog.String("session", p.SessionID), slog.Any("error", err))
	}
}

// Profile returns a snapshot of the stored profile.
func (e *Engine) Profile(ctx context.Context, id string) (lead.Profile, error) {
	return e.store.Get(ctx, id)
}

// History returns the conversation so far.
func (e *Engine) History(ctx context.Context, id string) ([]lead.Message, error) {
	p, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return p.History, nil
}

// Clear deletes the session.
func (e *Engine) Clear(ctx context.Context, id string) error {
	unlock := e.locks.Lock(id)
	defer unlock()
	if err := e.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("clear: %w", err)
	}
	e.logger.Info("session cleared", slog.String("session", id))
	return nil
}

// AssignID records the durable lead id for a session. The first id wins;
// a session cleared in the meantime is ignored.
func (e *Engine) AssignID(ctx context.Context, id, leadID string) error {
	unlock := e.locks.Lock(id)
	defer unlock()

	p, err := e.store.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("assign id: %w", err)
	}
	if p.ID != "" {
		return nil
	}
	p.ID = leadID
	if err := e.store.Put(ctx, p); err != nil {
		return fmt.Errorf("assign id: %w", err)
	}
	e.logger.Info("lead saved", slog.String("session", id), slog.String("lead", leadID))
	return nil
}

// SetStatus applies an external status change (tour booked, application
// submitted, decision made). The new status is persisted through the outbox.
func (e *Engine) SetStatus(ctx context.Context, id string, status lead.Status) (lead.Profile, error) {
	if !status.Valid() {
		return lead.Profile{}, fmt.Errorf("set status: %w: %q", lead.ErrInvalidStatus, status)
	}
	unlock := e.locks.Lock(id)
	defer unlock()

	p, err := e.store.Get(ctx, id)
	if err != nil {
		return lead.Profile{}, fmt.Errorf("set status: %w", err)
	}
	if p.Status == status {
		return p, nil
	}
	from := p.Status
	p.Status = status
	if err := e.store.Put(ctx, p); err != nil {
		return lead.Profile{}, fmt.Errorf("set status: %w", err)
	}
	e.logger.Info("status changed", slog.String("session", id),
		slog.String("from", string(from)), slog.String("to", string(status)))
	e.persist(p)
	return p, nil
}

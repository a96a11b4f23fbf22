package outbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/hurttlocker/leasebot/internal/lead"
)

type fakeSink struct {
	mu          sync.Mutex
	upsertFails int // fail this many upserts before succeeding
	appendFails int
	emptyIDs    int // return "" without error this many times
	upserts     []LeadSummary
	messages    map[string][]lead.Message
	block       chan struct{}
}

func newFakeSink() *fakeSink {
	return &fakeSink{messages: make(map[string][]lead.Message)}
}

func (f *fakeSink) UpsertLead(ctx context.Context, s LeadSummary) (string, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertFails > 0 {
		f.upsertFails--
		return "", errors.New("backend unavailable")
	}
	if f.emptyIDs > 0 {
		f.emptyIDs--
		return "", nil
	}
	f.upserts = append(f.upserts, s)
	return "lead-" + s.SessionID, nil
}

func (f *fakeSink) AppendMessage(_ context.Context, leadID string, m lead.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendFails > 0 {
		f.appendFails--
		return errors.New("write failed")
	}
	f.messages[leadID] = append(f.messages[leadID], m)
	return nil
}

func (f *fakeSink) snapshot() ([]LeadSummary, map[string][]lead.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := make(map[string][]lead.Message, len(f.messages))
	for k, v := range f.messages {
		msgs[k] = append([]lead.Message(nil), v...)
	}
	return append([]LeadSummary(nil), f.upserts...), msgs
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastConfig() Config {
	return Config{
		Buffer:         8,
		MaxAttempts:    3,
		AttemptTimeout: time.Second,
		Backoff:        time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	}
}

func turn(sessionID string) Event {
	p := lead.NewProfile(sessionID)
	p.Bedrooms = lead.IntPtr(2)
	return Event{
		Profile: p,
		Messages: []lead.Message{
			lead.NewMessage(lead.RoleUser, "2 bedrooms please"),
			lead.NewMessage(lead.RoleAssistant, "Got it"),
		},
	}
}

func TestDeliver_UpsertsThenAppends(t *testing.T) {
	sink := newFakeSink()
	var assigned []string
	var amu sync.Mutex
	o := New(sink, fastConfig(), WithLogger(quietLogger()), WithAssign(func(_ context.Context, sid, id string) error {
		amu.Lock()
		defer amu.Unlock()
		assigned = append(assigned, sid+"="+id)
		return nil
	}))

	if err := o.Enqueue(turn("s1")); err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}
	if err := o.Close(context.Background()); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	upserts, msgs := sink.snapshot()
	if len(upserts) != 1 || upserts[0].SessionID != "s1" || upserts[0].Source != "website" {
		t.Fatalf("upserts = %+v", upserts)
	}
	if upserts[0].Bedrooms == nil || *upserts[0].Bedrooms != 2 {
		t.Fatalf("bedrooms not carried: %+v", upserts[0])
	}
	got := msgs["lead-s1"]
	if len(got) != 2 || got[0].Role != lead.RoleUser || got[1].Role != lead.RoleAssistant {
		t.Fatalf("messages = %+v", got)
	}
	if len(assigned) != 1 || assigned[0] != "s1=lead-s1" {
		t.Fatalf("assigned = %v", assigned)
	}
	if st := o.Stats(); st.Delivered != 1 || st.Failed != 0 {
		t.Fatalf("Stats() = %+v", st)
	}
}

func TestDeliver_KnownIDNotReassigned(t *testing.T) {
	sink := newFakeSink()
	calls := 0
	o := New(sink, fastConfig(), WithLogger(quietLogger()), WithAssign(func(context.Context, string, string) error {
		calls++
		return nil
	}))
	ev := turn("s1")
	ev.Profile.ID = "lead-s1"
	_ = o.Enqueue(ev)
	_ = o.Close(context.Background())
	if calls != 0 {
		t.Fatalf("assign called %d times for a known id", calls)
	}
}

func TestDeliver_RetriesTransientFailures(t *testing.T) {
	sink := newFakeSink()
	sink.upsertFails = 2
	sink.appendFails = 1
	o := New(sink, fastConfig(), WithLogger(quietLogger()))

	_ = o.Enqueue(turn("s1"))
	_ = o.Close(context.Background())

	_, msgs := sink.snapshot()
	if len(msgs["lead-s1"]) != 2 {
		t.Fatalf("messages after retries = %d, want 2", len(msgs["lead-s1"]))
	}
	if st := o.Stats(); st.Delivered != 1 {
		t.Fatalf("Stats() = %+v", st)
	}
}

func TestDeliver_GivesUpAfterMaxAttempts(t *testing.T) {
	sink := newFakeSink()
	sink.upsertFails = 100
	o := New(sink, fastConfig(), WithLogger(quietLogger()))

	_ = o.Enqueue(turn("s1"))
	_ = o.Enqueue(turn("s2"))
	_ = o.Close(context.Background())

	if st := o.Stats(); st.Failed != 2 || st.Delivered != 0 {
		t.Fatalf("Stats() = %+v", st)
	}
	sink.mu.Lock()
	left := sink.upsertFails
	sink.mu.Unlock()
	if left != 100-2*3 {
		t.Fatalf("upsert attempts = %d, want 6", 100-left)
	}
}

func TestDeliver_RetriesEmptyLeadID(t *testing.T) {
	sink := newFakeSink()
	sink.emptyIDs = 2
	o := New(sink, fastConfig(), WithLogger(quietLogger()))

	_ = o.Enqueue(turn("s1"))
	_ = o.Close(context.Background())

	upserts, msgs := sink.snapshot()
	if len(upserts) != 1 || len(msgs["lead-s1"]) != 2 {
		t.Fatalf("upserts = %d, messages = %d; want 1 and 2", len(upserts), len(msgs["lead-s1"]))
	}
	if st := o.Stats(); st.Delivered != 1 || st.Failed != 0 {
		t.Fatalf("Stats() = %+v", st)
	}
}

func TestRetry_ReportsAttempts(t *testing.T) {
	o := New(newFakeSink(), fastConfig(), WithLogger(quietLogger()))
	defer o.Close(context.Background())

	calls := 0
	err := o.retry(context.Background(), "write", func(context.Context) error {
		calls++
		return errors.New("nope")
	})
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
	if err == nil || err.Error() != "write: gave up after 3 attempts: nope" {
		t.Fatalf("retry() = %v", err)
	}

	calls = 0
	err = o.retry(context.Background(), "write", func(context.Context) error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil || calls != 2 {
		t.Fatalf("retry() = %v after %d calls, want nil after 2", err, calls)
	}
}

func TestRetry_StopsOnCancel(t *testing.T) {
	o := New(newFakeSink(), fastConfig(), WithLogger(quietLogger()))
	defer o.Close(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := o.retry(ctx, "write", func(context.Context) error {
		calls++
		return nil
	})
	if calls != 0 || !errors.Is(err, context.Canceled) {
		t.Fatalf("retry(cancelled) = %v after %d calls", err, calls)
	}

	ctx, cancel = context.WithCancel(context.Background())
	calls = 0
	err = o.retry(ctx, "write", func(context.Context) error {
		calls++
		cancel()
		return errors.New("interrupted")
	})
	if calls != 1 {
		t.Fatalf("calls = %d after cancel mid-attempt, want 1", calls)
	}
	if err == nil || err.Error() != "interrupted" {
		t.Fatalf("retry() = %v, want the attempt error", err)
	}
}

func TestEnqueue_NeverBlocks(t *testing.T) {
	sink := newFakeSink()
	sink.block = make(chan struct{})
	cfg := fastConfig()
	cfg.Buffer = 2
	o := New(sink, cfg, WithLogger(quietLogger()))

	start := time.Now()
	var full int
	for i := 0; i < 10; i++ {
		if err := o.Enqueue(turn(fmt.Sprintf("s%d", i))); errors.Is(err, ErrQueueFull) {
			full++
		}
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Fatal("Enqueue blocked on a stalled sink")
	}
	if full == 0 {
		t.Fatal("expected drops once the buffer filled")
	}
	if st := o.Stats(); st.Dropped != int64(full) {
		t.Fatalf("Stats().Dropped = %d, want %d", st.Dropped, full)
	}

	close(sink.block)
	if err := o.Close(context.Background()); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
}

func TestClose_DeadlineAbandonsWork(t *testing.T) {
	sink := newFakeSink()
	sink.block = make(chan struct{})
	o := New(sink, fastConfig(), WithLogger(quietLogger()))
	_ = o.Enqueue(turn("s1"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := o.Close(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Close() = %v, want deadline exceeded", err)
	}
	if err := o.Enqueue(turn("s2")); !errors.Is(err, ErrClosed) {
		t.Fatalf("Enqueue after Close = %v, want ErrClosed", err)
	}
}

func TestEnqueue_CopiesProfile(t *testing.T) {
	sink := newFakeSink()
	sink.block = make(chan struct{})
	o := New(sink, fastConfig(), WithLogger(quietLogger()))

	ev := turn("s1")
	ev.Profile.Preferences = []string{"pool"}
	_ = o.Enqueue(ev)
	ev.Profile.Preferences[0] = "gym"
	*ev.Profile.Bedrooms = 5

	close(sink.block)
	_ = o.Close(context.Background())
	upserts, _ := sink.snapshot()
	if len(upserts) != 1 || upserts[0].Preferences[0] != "pool" || *upserts[0].Bedrooms != 2 {
		t.Fatalf("outbox saw caller mutation: %+v", upserts)
	}
}

func TestConfigDefaults(t *testing.T) {
	c := Config{}.withDefaults()
	d := DefaultConfig()
	if c.Buffer != d.Buffer || c.MaxAttempts != d.MaxAttempts || c.AttemptTimeout != d.AttemptTimeout {
		t.Fatalf("withDefaults() = %+v, want %+v", c, d)
	}
	if c.MaxBackoff < c.Backoff {
		t.Fatalf("MaxBackoff %v below Backoff %v", c.MaxBackoff, c.Backoff)
	}
}

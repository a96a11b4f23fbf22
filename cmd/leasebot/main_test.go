package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/hurttlocker/leasebot/internal/config"
	"github.com/hurttlocker/leasebot/internal/lead"
	"github.com/hurttlocker/leasebot/internal/session"
)

func resetGlobals() {
	globalDBPath = ""
	globalBackendURL = ""
	globalStore = ""
	globalLogLevel = ""
	globalConfigPath = ""
	globalEnvFile = ""
	globalVerbose = false
}

// ==================== parseGlobalFlags ====================

func TestParseGlobalFlags_DBFlag(t *testing.T) {
	resetGlobals()

	args := parseGlobalFlags([]string{"--db", "/tmp/test.db", "leads", "--json"})

	if globalDBPath != "/tmp/test.db" {
		t.Errorf("globalDBPath = %q, want %q", globalDBPath, "/tmp/test.db")
	}
	if len(args) != 2 || args[0] != "leads" || args[1] != "--json" {
		t.Errorf("filtered args = %v, want [leads --json]", args)
	}
}

func TestParseGlobalFlags_Equals(t *testing.T) {
	resetGlobals()

	args := parseGlobalFlags([]string{"--db=/tmp/eq.db", "--backend=http://localhost:3001/api", "--store=redis", "chat"})

	if globalDBPath != "/tmp/eq.db" {
		t.Errorf("globalDBPath = %q", globalDBPath)
	}
	if globalBackendURL != "http://localhost:3001/api" {
		t.Errorf("globalBackendURL = %q", globalBackendURL)
	}
	if globalStore != "redis" {
		t.Errorf("globalStore = %q", globalStore)
	}
	if len(args) != 1 || args[0] != "chat" {
		t.Errorf("filtered args = %v, want [chat]", args)
	}
}

func TestParseGlobalFlags_AnyPosition(t *testing.T) {
	resetGlobals()

	args := parseGlobalFlags([]string{"chat", "--session", "abc", "--log-level", "debug", "--config", "/etc/lb.yaml", "--env-file", "x.env"})

	if globalLogLevel != "debug" || globalConfigPath != "/etc/lb.yaml" || globalEnvFile != "x.env" {
		t.Errorf("globals = %q %q %q", globalLogLevel, globalConfigPath, globalEnvFile)
	}
	want := []string{"chat", "--session", "abc"}
	if strings.Join(args, " ") != strings.Join(want, " ") {
		t.Errorf("filtered args = %v, want %v", args, want)
	}
}

func TestParseGlobalFlags_VerboseFlag(t *testing.T) {
	resetGlobals()

	args := parseGlobalFlags([]string{"--verbose", "stats"})

	if !globalVerbose {
		t.Error("globalVerbose should be true")
	}
	if len(args) != 1 || args[0] != "stats" {
		t.Errorf("filtered args = %v, want [stats]", args)
	}
}

func TestParseGlobalFlags_TrailingFlagWithoutValue(t *testing.T) {
	resetGlobals()

	args := parseGlobalFlags([]string{"leads", "--db"})

	if globalDBPath != "" {
		t.Errorf("globalDBPath = %q, want empty", globalDBPath)
	}
	if len(args) != 2 || args[1] != "--db" {
		t.Errorf("filtered args = %v, want [leads --db]", args)
	}
}

func TestParseGlobalFlags_NoFlags(t *testing.T) {
	resetGlobals()

	args := parseGlobalFlags([]string{"seed", "props.yaml"})

	if globalDBPath != "" || globalVerbose {
		t.Errorf("globals changed: db=%q verbose=%v", globalDBPath, globalVerbose)
	}
	if len(args) != 2 {
		t.Errorf("filtered args = %v", args)
	}
}

// ==================== seed ====================

func TestParseSeed(t *testing.T) {
	doc := `
properties:
  - id: prop-1
    address: 123 Main Street, Apt 201
    bedrooms: 2
    bathrooms: 1.5
    rent: 1950
    pet_friendly: true
    amenities: [Parking, Laundry]
  - address: 456 Oak Avenue
    bedrooms: 0
    rent: 1200
    available: false
`
	props, err := parseSeed([]byte(doc))
	if err != nil {
		t.Fatalf("parseSeed: %v", err)
	}
	if len(props) != 2 {
		t.Fatalf("got %d properties, want 2", len(props))
	}

	first := props[0]
	if first.ID != "prop-1" || first.Bathrooms != 1.5 || !first.PetFriendly || !first.Available {
		t.Errorf("first = %+v", first)
	}
	if len(first.Amenities) != 2 || first.Amenities[0] != "Parking" {
		t.Errorf("amenities = %v", first.Amenities)
	}

	second := props[1]
	if second.ID != "" || second.Bedrooms != 0 || second.Bathrooms != 1 || second.Available {
		t.Errorf("second = %+v", second)
	}
}

func TestParseSeed_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"not yaml", "properties: [", "parsing seed file"},
		{"empty", "properties: []", "no properties"},
		{"missing address", "properties:\n  - rent: 1000\n", "address is required"},
		{"zero rent", "properties:\n  - address: 1 A St\n", "rent must be positive"},
		{"negative bedrooms", "properties:\n  - address: 1 A St\n    rent: 900\n    bedrooms: -1\n", "bedrooms"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseSeed([]byte(tt.doc))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("parseSeed error = %v, want containing %q", err, tt.want)
			}
		})
	}
}

// ==================== chat ====================

func TestChatLoop(t *testing.T) {
	engine := session.NewEngine(
		session.NewMemoryStore(session.Eviction{}),
		session.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)

	in := strings.NewReader("\n2 bedrooms, budget $2000, move in June 1\n/profile\n/quit\nnever read\n")
	var out bytes.Buffer
	if err := chatLoop(context.Background(), engine, "cli", in, &out); err != nil {
		t.Fatalf("chatLoop: %v", err)
	}

	text := out.String()
	if !strings.Contains(text, "Leasing Agent") {
		t.Errorf("missing welcome:\n%s", text)
	}
	if !strings.Contains(text, `"status": "QUALIFIED"`) {
		t.Errorf("profile not printed as qualified:\n%s", text)
	}

	hist, _ := engine.History(context.Background(), "cli")
	if len(hist) != 3 {
		t.Errorf("history = %d messages, want 3 (welcome, user, reply)", len(hist))
	}
}

func TestChatLoop_Reset(t *testing.T) {
	engine := session.NewEngine(
		session.NewMemoryStore(session.Eviction{}),
		session.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)

	in := strings.NewReader("3 bedrooms\n/reset\n")
	var out bytes.Buffer
	if err := chatLoop(context.Background(), engine, "cli", in, &out); err != nil {
		t.Fatalf("chatLoop: %v", err)
	}
	p, _ := engine.Profile(context.Background(), "cli")
	if p.Bedrooms != nil || len(p.History) != 1 {
		t.Errorf("after reset: bedrooms=%v history=%d", p.Bedrooms, len(p.History))
	}
}

func TestChatLoop_Resume(t *testing.T) {
	ctx := context.Background()
	engine := session.NewEngine(
		session.NewMemoryStore(session.Eviction{}),
		session.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	if _, err := engine.Start(ctx, "cli"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	last, err := engine.Send(ctx, "cli", "2 bedrooms, budget $2000, move in June 1")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	var out bytes.Buffer
	if err := chatLoop(ctx, engine, "cli", strings.NewReader("/quit\n"), &out); err != nil {
		t.Fatalf("chatLoop: %v", err)
	}

	p, err := engine.Profile(ctx, "cli")
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	if p.Status != lead.StatusQualified || len(p.History) != 3 || p.Bedrooms == nil {
		t.Fatalf("resumed profile: status=%s history=%d bedrooms=%v", p.Status, len(p.History), p.Bedrooms)
	}
	if !strings.HasPrefix(out.String(), last.Content) {
		t.Errorf("resume should replay the last reply, got:\n%s", out.String())
	}
}

// ==================== wiring ====================

func TestOutboxConfig(t *testing.T) {
	cfg := config.ResolvedConfig{
		OutboxBuffer:   config.ResolvedValue{Value: "8"},
		OutboxAttempts: config.ResolvedValue{Value: "2"},
	}
	got := outboxConfig(cfg)
	if got.Buffer != 8 || got.MaxAttempts != 2 {
		t.Errorf("outboxConfig = %+v", got)
	}
	if got.Rate != 20 {
		t.Errorf("Rate = %v, want default 20", got.Rate)
	}
}

func TestNewLogger_BadLevelFallsBackToInfo(t *testing.T) {
	l := newLogger("loud")
	if l.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("debug enabled for unknown level")
	}
	if !l.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("info disabled for unknown level")
	}
	if !newLogger("debug").Enabled(context.Background(), slog.LevelDebug) {
		t.Error("debug level not honored")
	}
}

func TestOpenApp_LocalStore(t *testing.T) {
	resetGlobals()
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	for _, k := range []string{"LEASEBOT_BACKEND_URL", "LEASEBOT_SESSION_STORE", "LEASEBOT_AMQP_URL", "LEASEBOT_DB", "LEASEBOT_DB_PATH"} {
		t.Setenv(k, "")
	}
	globalDBPath = ":memory:"
	globalLogLevel = "error"
	defer resetGlobals()

	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		t.Fatalf("openApp: %v", err)
	}
	if a.db == nil || a.backend != nil {
		t.Fatalf("expected local store wiring, got db=%v backend=%v", a.db, a.backend)
	}

	if _, err := a.engine.Send(ctx, "s1", "2 bedrooms, budget $2000, move in June 1"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	db := a.db
	// Drain the outbox but keep the database open for inspection.
	if err := a.outbox.Close(ctx); err != nil {
		t.Fatalf("outbox close: %v", err)
	}
	a.outbox = nil

	l, err := db.GetLeadBySession(ctx, "s1")
	if err != nil {
		t.Fatalf("GetLeadBySession: %v", err)
	}
	if l.Status != "QUALIFIED" {
		t.Errorf("persisted status = %s, want QUALIFIED", l.Status)
	}
	p, _ := a.engine.Profile(ctx, "s1")
	if p.ID != l.ID {
		t.Errorf("profile ID = %q, want persisted %q", p.ID, l.ID)
	}
	a.close()
}

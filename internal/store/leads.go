package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hurttlocker/leasebot/internal/lead"
	"github.com/hurttlocker/leasebot/internal/outbox"
)

// ErrLeadNotFound is returned when no lead matches.
var ErrLeadNotFound = errors.New("lead not found")

// Lead is a persisted lead row.
type Lead struct {
	outbox.LeadSummary
	CreatedAt time.Time
	UpdatedAt time.Time
}

// StoredMessage is one row of a lead's message log.
type StoredMessage struct {
	ID     int64
	LeadID string
	lead.Message
}

// ListOpts controls pagination and filtering for ListLeads.
type ListOpts struct {
	Limit  int
	Offset int
	Status lead.Status // empty means any
}

const leadColumns = `id, session_id, source, name, email, phone, move_in_date,
	bedrooms, bathrooms, budget, pet_friendly, preferences, status, created_at, updated_at`

// UpsertLead inserts or updates the lead for l.SessionID and returns its ID.
// Existing IDs are kept; a new lead gets a fresh ULID.
func (s *SQLiteStore) UpsertLead(ctx context.Context, l outbox.LeadSummary) (string, error) {
	if l.SessionID == "" {
		return "", errors.New("upsert lead: empty session id")
	}
	prefs, err := json.Marshal(nonNil(l.Preferences))
	if err != nil {
		return "", fmt.Errorf("upsert lead: encoding preferences: %w", err)
	}
	source := l.Source
	if source == "" {
		source = lead.DefaultSource
	}
	status := l.Status
	if status == "" {
		status = lead.StatusNew
	}
	now := time.Now().UTC()

	var id string
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO leads (id, session_id, source, name, email, phone, move_in_date,
			bedrooms, bathrooms, budget, pet_friendly, preferences, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			source = excluded.source,
			name = excluded.name,
			email = excluded.email,
			phone = excluded.phone,
			move_in_date = excluded.move_in_date,
			bedrooms = excluded.bedrooms,
			bathrooms = excluded.bathrooms,
			budget = excluded.budget,
			pet_friendly = excluded.pet_friendly,
			preferences = excluded.preferences,
			status = excluded.status,
			updated_at = excluded.updated_at
		RETURNING id`,
		s.newID(), l.SessionID, source, l.Name, l.Email, l.Phone, l.MoveInDate,
		nullInt(l.Bedrooms), nullFloat(l.Bathrooms), nullInt(l.Budget), nullBool(l.PetFriendly),
		string(prefs), string(status), now, now,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("upsert lead %q: %w", l.SessionID, err)
	}
	return id, nil
}

// AppendMessage adds m to the lead's message log.
func (s *SQLiteStore) AppendMessage(ctx context.Context, leadID string, m lead.Message) error {
	var md string
	if len(m.Metadata) > 0 {
		b, err := json.Marshal(m.Metadata)
		if err != nil {
			return fmt.Errorf("append message: encoding metadata: %w", err)
		}
		md = string(b)
	}
	ts := m.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO lead_messages (lead_id, role, content, metadata, sent_at) VALUES (?, ?, ?, ?, ?)`,
		leadID, string(m.Role), m.Content, md, ts.UTC(),
	)
	if err != nil {
		return fmt.Errorf("append message to %s: %w", leadID, err)
	}
	return nil
}

// GetLead loads a lead by ID.
func (s *SQLiteStore) GetLead(ctx context.Context, id string) (*Lead, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+leadColumns+" FROM leads WHERE id = ?", id)
	return scanLead(row)
}

// GetLeadBySession loads the lead created for a chat session.
func (s *SQLiteStore) GetLeadBySession(ctx context.Context, sessionID string) (*Lead, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+leadColumns+" FROM leads WHERE session_id = ?", sessionID)
	return scanLead(row)
}

// ListLeads returns leads, most recently updated first.
func (s *SQLiteStore) ListLeads(ctx context.Context, opts ListOpts) ([]*Lead, error) {
	if opts.Limit <= 0 {
		opts.Limit = 50
	}
	query := "SELECT " + leadColumns + " FROM leads"
	var args []any
	if opts.Status != "" {
		query += " WHERE status = ?"
		args = append(args, string(opts.Status))
	}
	query += " ORDER BY updated_at DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, opts.Limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing leads: %w", err)
	}
	defer rows.Close()

	var out []*Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// ListMessages returns a lead's messages in the order they were appended.
func (s *SQLiteStore) ListMessages(ctx context.Context, leadID string) ([]StoredMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, lead_id, role, content, metadata, sent_at FROM lead_messages WHERE lead_id = ? ORDER BY id`,
		leadID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	defer rows.Close()

	var out []StoredMessage
	for rows.Next() {
		var (
			m    StoredMessage
			role string
			md   string
		)
		if err := rows.Scan(&m.ID, &m.LeadID, &role, &m.Content, &md, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		m.Role = lead.Role(role)
		if md != "" {
			if err := json.Unmarshal([]byte(md), &m.Metadata); err != nil {
				return nil, fmt.Errorf("decoding message metadata: %w", err)
			}
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLead(r rowScanner) (*Lead, error) {
	var (
		l         Lead
		bedrooms  sql.NullInt64
		bathrooms sql.NullFloat64
		budget    sql.NullInt64
		pets      sql.NullBool
		prefs     string
		status    string
	)
	err := r.Scan(&l.ID, &l.SessionID, &l.Source, &l.Name, &l.Email, &l.Phone, &l.MoveInDate,
		&bedrooms, &bathrooms, &budget, &pets, &prefs, &status, &l.CreatedAt, &l.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrLeadNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning lead: %w", err)
	}
	if bedrooms.Valid {
		l.Bedrooms = lead.IntPtr(int(bedrooms.Int64))
	}
	if bathrooms.Valid {
		l.Bathrooms = lead.FloatPtr(bathrooms.Float64)
	}
	if budget.Valid {
		l.Budget = lead.IntPtr(int(budget.Int64))
	}
	if pets.Valid {
		l.PetFriendly = lead.BoolPtr(pets.Bool)
	}
	if prefs != "" {
		if err := json.Unmarshal([]byte(prefs), &l.Preferences); err != nil {
			return nil, fmt.Errorf("decoding preferences: %w", err)
		}
	}
	l.Status = lead.Status(status)
	return &l, nil
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullBool(v *bool) sql.NullBool {
	if v == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *v, Valid: true}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

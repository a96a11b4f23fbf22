// Package lead defines the shapes the intake engine operates on: the
// progressively completed lead profile, its conversation history, and the
// rental units it is matched against.
package lead

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Status is the lead-qualification state.
type Status string

const (
	StatusNew       Status = "NEW"
	StatusQualified Status = "QUALIFIED"
	StatusTouring   Status = "TOURING"
	StatusApplying  Status = "APPLYING"
	StatusApproved  Status = "APPROVED"
	StatusDenied    Status = "DENIED"
	StatusConverted Status = "CONVERTED"
)

// ErrInvalidStatus is returned by ParseStatus for unknown values.
var ErrInvalidStatus = errors.New("invalid lead status")

var allStatuses = []Status{
	StatusNew, StatusQualified, StatusTouring, StatusApplying,
	StatusApproved, StatusDenied, StatusConverted,
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	for _, v := range allStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// ParseStatus accepts any casing ("touring", "TOURING").
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToUpper(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
	}
	return s, nil
}

// DefaultSource tags leads created through the chat widget.
const DefaultSource = "website"

// Message is a single conversation turn. Treat as immutable once appended.
type Message struct {
	Role      Role              `json:"role"`
	Content   string            `json:"content"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// NewMessage stamps a message with the current UTC time.
func NewMessage(role Role, content string) Message {
	return Message{Role: role, Content: content, Timestamp: time.Now().UTC()}
}

// Profile is one prospective tenant's evolving lead.
type Profile struct {
	ID          string    `json:"id,omitempty"` // empty until durably saved
	SessionID   string    `json:"session_id"`
	Source      string    `json:"source,omitempty"`
	Name        string    `json:"name,omitempty"`
	Email       string    `json:"email,omitempty"`
	Phone       string    `json:"phone,omitempty"`
	MoveInDate  string    `json:"move_in_date,omitempty"`
	Bedrooms    *int      `json:"bedrooms,omitempty"`
	Bathrooms   *float64  `json:"bathrooms,omitempty"`
	Budget      *int      `json:"budget,omitempty"`
	PetFriendly *bool     `json:"pet_friendly,omitempty"`
	Preferences []string  `json:"preferences,omitempty"`
	Status      Status    `json:"status"`
	History     []Message `json:"conversation_history"`
}

// NewProfile returns an empty NEW profile for a session.
func NewProfile(sessionID string) Profile {
	return Profile{
		SessionID: sessionID,
		Source:    DefaultSource,
		Status:    StatusNew,
		History:   []Message{},
	}
}

// Clone returns a deep copy so snapshots never alias the stored profile.
func (p Profile) Clone() Profile {
	out := p
	if p.Bedrooms != nil {
		v := *p.Bedrooms
		out.Bedrooms = &v
	}
	if p.Bathrooms != nil {
		v := *p.Bathrooms
		out.Bathrooms = &v
	}
	if p.Budget != nil {
		v := *p.Budget
		out.Budget = &v
	}
	if p.PetFriendly != nil {
		v := *p.PetFriendly
		out.PetFriendly = &v
	}
	if p.Preferences != nil {
		out.Preferences = append([]string(nil), p.Preferences...)
	}
	if p.History != nil {
		out.History = make([]Message, len(p.History))
		for i, m := range p.History {
			if m.Metadata != nil {
				md := make(map[string]string, len(m.Metadata))
				for k, v := range m.Metadata {
					md[k] = v
				}
				m.Metadata = md
			}
			out.History[i] = m
		}
	}
	return out
}

// HasPreference reports whether tag is already recorded.
func (p Profile) HasPreference(tag string) bool {
	for _, t := range p.Preferences {
		if t == tag {
			return true
		}
	}
	return false
}

// IsPetFriendly is false when pet preference is unknown.
func (p Profile) IsPetFriendly() bool {
	return p.PetFriendly != nil && *p.PetFriendly
}

// Core intake fields, named as in the JSON encoding.
const (
	CoreBedrooms   = "bedrooms"
	CoreBudget     = "budget"
	CoreMoveInDate = "move_in_date"
)

// MissingCore lists the core intake fields still unknown, in asking order.
func (p Profile) MissingCore() []string {
	missing := []string{}
	if p.Bedrooms == nil {
		missing = append(missing, CoreBedrooms)
	}
	if p.Budget == nil {
		missing = append(missing, CoreBudget)
	}
	if p.MoveInDate == "" {
		missing = append(missing, CoreMoveInDate)
	}
	return missing
}

// Qualified reports whether the minimum intake fields are known.
func (p Profile) Qualified() bool {
	return len(p.MissingCore()) == 0
}

// Qualify applies the status rule: NEW moves to QUALIFIED once bedrooms,
// budget and move-in date are all known. No other transition happens here.
func Qualify(p *Profile) bool {
	if p.Status == "" {
		p.Status = StatusNew
	}
	if p.Status == StatusNew && p.Qualified() {
		p.Status = StatusQualified
		return true
	}
	return false
}

// Candidate is a rental unit supplied by a property search.
type Candidate struct {
	ID          string   `json:"id"`
	Address     string   `json:"address"`
	Bedrooms    int      `json:"bedrooms"`
	Bathrooms   float64  `json:"bathrooms"`
	Rent        int      `json:"rent"`
	Available   bool     `json:"available"`
	PetFriendly bool     `json:"pet_friendly"`
	Amenities   []string `json:"amenities"`
	MatchScore  float64  `json:"match_score"`
}

// Criteria narrows a property search.
type Criteria struct {
	Bedrooms    *int `json:"bedrooms,omitempty"`
	MaxRent     *int `json:"max_rent,omitempty"`
	PetFriendly bool `json:"pet_friendly,omitempty"`
}

// CriteriaFor derives search criteria from what the lead has told us.
func CriteriaFor(p Profile) Criteria {
	c := Criteria{PetFriendly: p.IsPetFriendly()}
	if p.Bedrooms != nil {
		v := *p.Bedrooms
		c.Bedrooms = &v
	}
	if p.Budget != nil {
		v := *p.Budget
		c.MaxRent = &v
	}
	return c
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int { return &v }

func FloatPtr(v float64) *float64 { return &v }

func BoolPtr(v bool) *bool { return &v }

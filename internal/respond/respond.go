// Package respond picks the assistant reply for a lead message.
//
// Replies come from an ordered table of branches. Each branch pairs a
// predicate with a reply builder; the first predicate that matches wins and
// later branches are never evaluated.
package respond

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hurttlocker/leasebot/internal/lead"
	"github.com/hurttlocker/leasebot/internal/match"
)

// DefaultLookupTimeout bounds the property search made for availability questions.
const DefaultLookupTimeout = 3 * time.Second

// maxListed caps how many ranked units are rendered in one reply.
const maxListed = 3

// Searcher finds candidate units. It may fail or time out.
type Searcher interface {
	Search(ctx context.Context, c lead.Criteria) ([]lead.Candidate, error)
}

// Turn is what every branch sees.
type Turn struct {
	Profile lead.Profile
	Text    string
	lower   string
}

// Branch is one row of the priority table.
type Branch struct {
	Name  string
	Match func(t Turn) bool
	Reply func(ctx context.Context, t Turn) string
}

// Router evaluates the branch table.
type Router struct {
	searcher      Searcher
	lookupTimeout time.Duration
	logger        *slog.Logger
	branches      []Branch
}

// Option configures a Router.
type Option func(*Router)

// WithSearcher sets the property search collaborator. Without one every
// availability lookup falls back to mock candidates.
func WithSearcher(s Searcher) Option {
	return func(r *Router) { r.searcher = s }
}

// WithLookupTimeout overrides DefaultLookupTimeout.
func WithLookupTimeout(d time.Duration) Option {
	return func(r *Router) {
		if d > 0 {
			r.lookupTimeout = d
		}
	}
}

// WithLogger sets the logger used for lookup failures.
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRouter builds a router with the standard branch table.
func NewRouter(opts ...Option) *Router {
	r := &Router{
		lookupTimeout: DefaultLookupTimeout,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.branches = r.table()
	return r
}

// Route returns the reply for text given the already-updated profile.
func (r *Router) Route(ctx context.Context, p lead.Profile, text string) string {
	t := Turn{Profile: p, Text: text, lower: strings.ToLower(text)}
	for _, b := range r.branches {
		if b.Match(t) {
			return b.Reply(ctx, t)
		}
	}
	return fallbackReply
}

// Branches lists branch names in priority order.
func (r *Router) Branches() []string {
	names := make([]string, len(r.branches))
	for i, b := range r.branches {
		names[i] = b.Name
	}
	return names
}

// Which reports the name of the branch that would answer.
func (r *Router) Which(p lead.Profile, text string) string {
	t := Turn{Profile: p, Text: text, lower: strings.ToLower(text)}
	for _, b := range r.branches {
		if b.Match(t) {
			return b.Name
		}
	}
	return ""
}

func (r *Router) table() []Branch {
	return []Branch{
		{Name: "need_name", Match: needsName, Reply: static(askNameReply)},
		{Name: "availability", Match: mentions("available", "vacancy", "vacancies", "units"), Reply: r.availability},
		{Name: "tour", Match: mentions("tour", "visit", "see", "viewing"), Reply: tourReply},
		{Name: "apply", Match: mentions("apply", "application"), Reply: static(applyReply)},
		{Name: "pricing", Match: mentions("price", "rent", "cost", "how much"), Reply: pricingReply},
		{Name: "amenities", Match: mentions("amenity", "amenities", "feature"), Reply: static(amenitiesReply)},
		{Name: "pets", Match: mentions("pet"), Reply: static(petPolicyReply)},
		{Name: "missing_core", Match: missingCore, Reply: missingCoreReply},
		{Name: "next_steps", Match: isNew, Reply: nextStepsReply},
		{Name: "fallback", Match: func(Turn) bool { return true }, Reply: static(fallbackReply)},
	}
}

func needsName(t Turn) bool {
	return t.Profile.Email != "" && t.Profile.Phone != "" && t.Profile.Name == ""
}

// mentions matches when any keyword appears as a substring of the message.
func mentions(keywords ...string) func(Turn) bool {
	return func(t Turn) bool {
		for _, k := range keywords {
			if strings.Contains(t.lower, k) {
				return true
			}
		}
		return false
	}
}

func missingCore(t Turn) bool {
	return len(missingFields(t.Profile)) > 0
}

func isNew(t Turn) bool {
	return t.Profile.Status == lead.StatusNew || t.Profile.Status == ""
}

func static(reply string) func(context.Context, Turn) string {
	return func(context.Context, Turn) string { return reply }
}

// coreLabels phrases each missing core field for the prospect.
var coreLabels = map[string]string{
	lead.CoreBedrooms:   "number of bedrooms",
	lead.CoreBudget:     "budget range",
	lead.CoreMoveInDate: "move-in date",
}

func missingFields(p lead.Profile) []string {
	missing := p.MissingCore()
	for i, f := range missing {
		missing[i] = coreLabels[f]
	}
	return missing
}

// availability answers "what's available" questions with ranked units.
func (r *Router) availability(ctx context.Context, t Turn) string {
	p := t.Profile
	if p.Bedrooms == nil || p.Budget == nil {
		return askCriteriaReply
	}
	candidates, err := r.lookup(ctx, p)
	if err != nil {
		return searchFailedReply
	}
	if len(candidates) == 0 {
		return fmt.Sprintf(noUnitsReply, *p.Bedrooms, *p.Budget)
	}
	return formatCandidates(match.Rank(p, candidates))
}

// lookup runs the bounded search. Search errors and timeouts are replaced by
// mock candidates; only a cancelled caller context is reported as a failure.
func (r *Router) lookup(ctx context.Context, p lead.Profile) ([]lead.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.searcher == nil {
		return match.MockCandidates(p), nil
	}

	sctx, cancel := context.WithTimeout(ctx, r.lookupTimeout)
	defer cancel()

	candidates, err := r.searcher.Search(sctx, lead.CriteriaFor(p))
	if err == nil {
		return candidates, nil
	}
	if ctx.Err() != nil {
		r.logger.Warn("property search abandoned", slog.Any("error", ctx.Err()))
		return nil, ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		r.logger.Warn("property search timed out, using mock candidates",
			slog.String("session", p.SessionID), slog.Duration("timeout", r.lookupTimeout))
	} else {
		r.logger.Warn("property search failed, using mock candidates",
			slog.String("session", p.SessionID), slog.Any("error", err))
	}
	return match.MockCandidates(p), nil
}

func tourReply(_ context.Context, t Turn) string {
	if t.Profile.Email == "" || t.Profile.Phone == "" {
		return tourContactReply
	}
	return tourScheduleReply
}

func pricingReply(_ context.Context, t Turn) string {
	if t.Profile.Bedrooms == nil {
		return pricingAskReply
	}
	b := *t.Profile.Bedrooms
	est := match.RentEstimate(b)
	return fmt.Sprintf(pricingRangeReply, b, est-200, est+200)
}

func missingCoreReply(_ context.Context, t Turn) string {
	return fmt.Sprintf(missingReply, strings.Join(missingFields(t.Profile), " and "))
}

func nextStepsReply(_ context.Context, t Turn) string {
	return fmt.Sprintf(nextStepsTemplate, *t.Profile.Bedrooms)
}

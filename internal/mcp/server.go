// Package mcp provides a Model Context Protocol server for leasebot.
//
// It exposes the conversation engine (start, send, profile, clear, status)
// and property search as MCP tools, and session profiles as MCP resources.
// Tour and application tools are registered only when a backend is
// configured.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hurttlocker/leasebot/internal/backend"
	"github.com/hurttlocker/leasebot/internal/lead"
	"github.com/hurttlocker/leasebot/internal/match"
	"github.com/hurttlocker/leasebot/internal/outbox"
	"github.com/hurttlocker/leasebot/internal/respond"
	"github.com/hurttlocker/leasebot/internal/session"
)

// sessionURIPrefix prefixes the per-session profile resource.
const sessionURIPrefix = "leasebot://sessions/"

// Actions are backend operations that move a lead forward.
type Actions interface {
	ScheduleTour(ctx context.Context, r backend.TourRequest) (string, error)
	SubmitApplication(ctx context.Context, r backend.ApplicationRequest) (string, error)
	RecordInquiry(ctx context.Context, leadID, propertyID, interest, notes string) error
}

// ServerConfig holds configuration for the MCP server.
type ServerConfig struct {
	Engine   *session.Engine
	Searcher respond.Searcher // optional; mock candidates without it
	Actions  Actions          // optional; enables lease_tour, lease_apply and lease_inquire
	Outbox   *outbox.Outbox   // optional; enables the outbox stats resource
	Version  string           // version string for MCP server info
}

// NewServer creates a configured MCP server with all leasebot tools and resources.
func NewServer(cfg ServerConfig) *server.MCPServer {
	ver := cfg.Version
	if ver == "" {
		ver = "dev"
	}

	s := server.NewMCPServer(
		"leasebot",
		ver,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(true, false),
	)

	registerStartTool(s, cfg.Engine)
	registerSendTool(s, cfg.Engine)
	registerProfileTool(s, cfg.Engine)
	registerClearTool(s, cfg.Engine)
	registerStatusTool(s, cfg.Engine)
	registerSearchTool(s, cfg.Searcher)
	if cfg.Actions != nil {
		registerTourTool(s, cfg.Engine, cfg.Actions)
		registerApplyTool(s, cfg.Engine, cfg.Actions)
		registerInquireTool(s, cfg.Engine, cfg.Actions)
	}

	registerSessionResource(s, cfg.Engine)
	if cfg.Outbox != nil {
		registerOutboxResource(s, cfg.Outbox)
	}

	return s
}

// --- Tools ---

func registerStartTool(s *server.MCPServer, engine *session.Engine) {
	tool := mcp.NewTool("lease_start",
		mcp.WithDescription("Start (or restart) a leasing conversation. Returns the session id and the welcome message."),
		mcp.WithDestructiveHintAnnotation(true),
		mcp.WithString("session_id",
			mcp.Description("Session to (re)start. A new id is generated when empty."),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := strings.TrimSpace(req.GetString("session_id", ""))
		if id == "" {
			id = uuid.NewString()
		}
		msg, err := engine.Start(ctx, id)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("start failed: %v", err)), nil
		}
		return jsonResult(map[string]any{
			"session_id": id,
			"message":    msg.Content,
		})
	})
}

func registerSendTool(s *server.MCPServer, engine *session.Engine) {
	tool := mcp.NewTool("lease_send",
		mcp.WithDescription("Send a prospective tenant's message. Extracts lead details, returns the assistant reply and the updated qualification status. Unknown sessions are created on the fly."),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Conversation session id"),
		),
		mcp.WithString("message",
			mcp.Required(),
			mcp.Description("Raw message text from the prospect"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("session_id")
		if err != nil || strings.TrimSpace(id) == "" {
			return mcp.NewToolResultError("session_id is required"), nil
		}
		text, err := req.RequireString("message")
		if err != nil {
			return mcp.NewToolResultError("message is required"), nil
		}

		reply, err := engine.Send(ctx, id, text)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("send failed: %v", err)), nil
		}
		p, err := engine.Profile(ctx, id)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("reading profile: %v", err)), nil
		}

		out := map[string]any{
			"session_id": id,
			"reply":      reply.Content,
			"status":     p.Status,
		}
		if f := reply.Metadata[session.MetaExtracted]; f != "" {
			out["extracted"] = strings.Split(f, ",")
		}
		return jsonResult(out)
	})
}

func registerProfileTool(s *server.MCPServer, engine *session.Engine) {
	tool := mcp.NewTool("lease_profile",
		mcp.WithDescription("Get the extracted lead profile for a session, optionally with the full conversation history."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Conversation session id"),
		),
		mcp.WithBoolean("history",
			mcp.Description("Include conversation history (default: false)"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("session_id")
		if err != nil {
			return mcp.NewToolResultError("session_id is required"), nil
		}
		p, err := engine.Profile(ctx, id)
		if errors.Is(err, session.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("session %q not found", id)), nil
		}
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("reading profile: %v", err)), nil
		}
		if !req.GetBool("history", false) {
			p.History = nil
		}
		return jsonResult(p)
	})
}

func registerClearTool(s *server.MCPServer, engine *session.Engine) {
	tool := mcp.NewTool("lease_clear",
		mcp.WithDescription("Delete a session and its extracted profile. Persisted leads are not affected."),
		mcp.WithDestructiveHintAnnotation(true),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Conversation session id"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("session_id")
		if err != nil {
			return mcp.NewToolResultError("session_id is required"), nil
		}
		if err := engine.Clear(ctx, id); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("clear failed: %v", err)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Cleared session %s", id)), nil
	})
}

func registerStatusTool(s *server.MCPServer, engine *session.Engine) {
	tool := mcp.NewTool("lease_status",
		mcp.WithDescription("Record an external status change for a lead (tour booked, application submitted, decision made)."),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Conversation session id"),
		),
		mcp.WithString("status",
			mcp.Required(),
			mcp.Description("New lead status"),
			mcp.Enum("NEW", "QUALIFIED", "TOURING", "APPLYING", "APPROVED", "DENIED", "CONVERTED"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("session_id")
		if err != nil {
			return mcp.NewToolResultError("session_id is required"), nil
		}
		raw, err := req.RequireString("status")
		if err != nil {
			return mcp.NewToolResultError("status is required"), nil
		}
		status, err := lead.ParseStatus(raw)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		p, err := engine.SetStatus(ctx, id, status)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("status change failed: %v", err)), nil
		}
		return jsonResult(map[string]any{"session_id": id, "status": p.Status})
	})
}

func registerSearchTool(s *server.MCPServer, searcher respond.Searcher) {
	tool := mcp.NewTool("lease_search",
		mcp.WithDescription("Search available units and rank them by match score. Falls back to sample units when no property source is reachable."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithNumber("bedrooms",
			mcp.Description("Number of bedrooms (0 = studio)"),
		),
		mcp.WithNumber("max_rent",
			mcp.Description("Maximum monthly rent in dollars"),
		),
		mcp.WithBoolean("pet_friendly",
			mcp.Description("Only pet-friendly units"),
		),
		mcp.WithString("amenities",
			mcp.Description("Comma-separated amenity preferences used for ranking (e.g. 'parking,gym')"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		p := lead.NewProfile("")
		if v, err := req.RequireFloat("bedrooms"); err == nil && v >= 0 {
			p.Bedrooms = lead.IntPtr(int(v))
		}
		if v, err := req.RequireFloat("max_rent"); err == nil && v > 0 {
			p.Budget = lead.IntPtr(int(v))
		}
		if req.GetBool("pet_friendly", false) {
			p.PetFriendly = lead.BoolPtr(true)
		}
		for _, a := range strings.Split(req.GetString("amenities", ""), ",") {
			if a = strings.ToLower(strings.TrimSpace(a)); a != "" && !p.HasPreference(a) {
				p.Preferences = append(p.Preferences, a)
			}
		}

		candidates := match.MockCandidates(p)
		source := "sample"
		if searcher != nil {
			found, err := searcher.Search(ctx, lead.CriteriaFor(p))
			if err == nil {
				candidates, source = found, "catalog"
			}
		}
		return jsonResult(map[string]any{
			"source":  source,
			"count":   len(candidates),
			"results": match.Rank(p, candidates),
		})
	})
}

func registerTourTool(s *server.MCPServer, engine *session.Engine, actions Actions) {
	tool := mcp.NewTool("lease_tour",
		mcp.WithDescription("Book a property tour for a saved lead and move it to TOURING."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Conversation session id")),
		mcp.WithString("property_id", mcp.Required(), mcp.Description("Property to tour")),
		mcp.WithString("date", mcp.Required(), mcp.Description("Preferred date, e.g. 2025-06-01")),
		mcp.WithString("time", mcp.Required(), mcp.Description("Preferred time, e.g. 10:00")),
		mcp.WithString("notes", mcp.Description("Anything the agent should know")),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, leadID, errResult := savedLead(ctx, engine, req)
		if errResult != nil {
			return errResult, nil
		}
		tr := backend.TourRequest{
			LeadID:        leadID,
			PropertyID:    req.GetString("property_id", ""),
			PreferredDate: req.GetString("date", ""),
			PreferredTime: req.GetString("time", ""),
			Notes:         req.GetString("notes", ""),
		}
		if tr.PropertyID == "" || tr.PreferredDate == "" || tr.PreferredTime == "" {
			return mcp.NewToolResultError("property_id, date and time are required"), nil
		}
		tourID, err := actions.ScheduleTour(ctx, tr)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("tour scheduling failed: %v", err)), nil
		}
		if _, err := engine.SetStatus(ctx, id, lead.StatusTouring); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("tour %s booked but status not updated: %v", tourID, err)), nil
		}
		return jsonResult(map[string]any{"tour_id": tourID, "status": lead.StatusTouring})
	})
}

func registerApplyTool(s *server.MCPServer, engine *session.Engine, actions Actions) {
	tool := mcp.NewTool("lease_apply",
		mcp.WithDescription("Submit a rental application for a saved lead and move it to APPLYING. Contact details default to what the lead shared in chat."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Conversation session id")),
		mcp.WithString("property_id", mcp.Required(), mcp.Description("Property applied for")),
		mcp.WithString("first_name", mcp.Description("Applicant first name")),
		mcp.WithString("last_name", mcp.Description("Applicant last name")),
		mcp.WithString("employer", mcp.Description("Current employer")),
		mcp.WithNumber("annual_income", mcp.Description("Gross annual income in dollars")),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, leadID, errResult := savedLead(ctx, engine, req)
		if errResult != nil {
			return errResult, nil
		}
		p, err := engine.Profile(ctx, id)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("reading profile: %v", err)), nil
		}
		first, last := splitName(p.Name)
		ar := backend.ApplicationRequest{
			LeadID:     leadID,
			PropertyID: req.GetString("property_id", ""),
			PersonalInfo: backend.Applicant{
				FirstName: req.GetString("first_name", first),
				LastName:  req.GetString("last_name", last),
				Email:     p.Email,
				Phone:     p.Phone,
			},
			EmploymentInfo: backend.Employment{
				Employer:     req.GetString("employer", ""),
				AnnualIncome: int(req.GetFloat("annual_income", 0)),
			},
		}
		if ar.PropertyID == "" {
			return mcp.NewToolResultError("property_id is required"), nil
		}
		appID, err := actions.SubmitApplication(ctx, ar)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("application failed: %v", err)), nil
		}
		if _, err := engine.SetStatus(ctx, id, lead.StatusApplying); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("application %s submitted but status not updated: %v", appID, err)), nil
		}
		return jsonResult(map[string]any{"application_id": appID, "status": lead.StatusApplying})
	})
}

func registerInquireTool(s *server.MCPServer, engine *session.Engine, actions Actions) {
	tool := mcp.NewTool("lease_inquire",
		mcp.WithDescription("Record a saved lead's interest in a specific property. Does not change the lead status."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Conversation session id")),
		mcp.WithString("property_id", mcp.Required(), mcp.Description("Property the lead asked about")),
		mcp.WithString("interest",
			mcp.Description("Interest level (default: MEDIUM)"),
			mcp.Enum(backend.InterestLow, backend.InterestMedium, backend.InterestHigh),
		),
		mcp.WithString("notes", mcp.Description("Free-form notes")),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		_, leadID, errResult := savedLead(ctx, engine, req)
		if errResult != nil {
			return errResult, nil
		}
		propertyID := req.GetString("property_id", "")
		if propertyID == "" {
			return mcp.NewToolResultError("property_id is required"), nil
		}
		interest := strings.ToUpper(req.GetString("interest", backend.InterestMedium))
		switch interest {
		case backend.InterestLow, backend.InterestMedium, backend.InterestHigh:
		default:
			return mcp.NewToolResultError(fmt.Sprintf("unknown interest %q", interest)), nil
		}
		if err := actions.RecordInquiry(ctx, leadID, propertyID, interest, req.GetString("notes", "")); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("recording inquiry failed: %v", err)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Recorded %s interest in %s for lead %s", interest, propertyID, leadID)), nil
	})
}

// savedLead resolves the session and its durable lead id.
func savedLead(ctx context.Context, engine *session.Engine, req mcp.CallToolRequest) (string, string, *mcp.CallToolResult) {
	id, err := req.RequireString("session_id")
	if err != nil {
		return "", "", mcp.NewToolResultError("session_id is required")
	}
	p, err := engine.Profile(ctx, id)
	if errors.Is(err, session.ErrNotFound) {
		return "", "", mcp.NewToolResultError(fmt.Sprintf("session %q not found", id))
	}
	if err != nil {
		return "", "", mcp.NewToolResultError(fmt.Sprintf("reading profile: %v", err))
	}
	if p.ID == "" {
		return "", "", mcp.NewToolResultError("lead has not been saved yet; send at least one message and retry")
	}
	return id, p.ID, nil
}

func splitName(full string) (string, string) {
	first, last, _ := strings.Cut(strings.TrimSpace(full), " ")
	return first, last
}

// --- Resources ---

func registerSessionResource(s *server.MCPServer, engine *session.Engine) {
	tmpl := mcp.NewResourceTemplate(
		sessionURIPrefix+"{id}",
		"Lead Session",
		mcp.WithTemplateDescription("Extracted lead profile, status and conversation history for one session."),
		mcp.WithTemplateMIMEType("application/json"),
	)

	s.AddResourceTemplate(tmpl, func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		id := strings.TrimPrefix(req.Params.URI, sessionURIPrefix)
		if id == "" || id == req.Params.URI {
			return nil, fmt.Errorf("invalid session uri %q", req.Params.URI)
		}
		p, err := engine.Profile(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("reading session %s: %w", id, err)
		}
		payload := map[string]any{
			"profile":   p,
			"qualified": p.Qualified(),
			"missing":   p.MissingCore(),
		}
		data, _ := json.MarshalIndent(payload, "", "  ")
		return []mcp.ResourceContents{
			mcp.TextResourceContents{URI: req.Params.URI, MIMEType: "application/json", Text: string(data)},
		}, nil
	})
}

func registerOutboxResource(s *server.MCPServer, ob *outbox.Outbox) {
	resource := mcp.NewResource(
		"leasebot://outbox/stats",
		"Outbox Stats",
		mcp.WithResourceDescription("Counts of persistence events enqueued, dropped, delivered and failed."),
		mcp.WithMIMEType("application/json"),
	)

	s.AddResource(resource, func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		data, _ := json.MarshalIndent(ob.Stats(), "", "  ")
		return []mcp.ResourceContents{
			mcp.TextResourceContents{URI: req.Params.URI, MIMEType: "application/json", Text: string(data)},
		}, nil
	})
}


func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encoding result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// Package mcp provides the stdio MCP server exposing the project context to coding agents.
package mcp

import (
	"context"
	"encoding/json"
	"math"
	"slices"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/yalp/jsonpath"

	"github.com/go-ports/contextmgr/internal/buildinfo"
	"github.com/go-ports/contextmgr/internal/models"
	"github.com/go-ports/contextmgr/internal/search"
	"github.com/go-ports/contextmgr/internal/service"
)

const contextDescription = `Get the project context: name, current phase, active and completed milestones. You MUST call this at session start so your work lines up with the milestones the team is tracking. Pass a JSONPath query (e.g. $.development.current_phase) to fetch a single value.` //nolint:lll

const addDescription = `Add a milestone to the project's active list. Use it when the user agrees on a new deliverable or when you start a multi-step piece of work worth tracking.`

const completeDescription = `Mark an active milestone completed. The name must match the milestone text exactly; call milestone_list first if unsure.`

const searchDescription = `Search the project history (milestones added and completed, phase changes, context updates, insights) by keyword and, when configured, semantic similarity.`

// NewServer creates and registers all context tools on a new MCP server.
// It is separate from Serve so that tests can obtain a fully configured
// server without committing to the stdio transport.
func NewServer(svc *service.Service) *mcpserver.MCPServer {
	s := mcpserver.NewMCPServer("contextmgr", buildinfo.ResolvedVersion())
	registerTools(s, svc)
	return s
}

// Serve runs the stdio MCP server, blocking until stdin closes.
func Serve(_ context.Context, svc *service.Service) error {
	return mcpserver.ServeStdio(NewServer(svc))
}

func registerTools(s *mcpserver.MCPServer, svc *service.Service) {
	s.AddTool(mcp.NewTool("context_get",
		mcp.WithDescription(contextDescription),
		mcp.WithString("query",
			mcp.Description("Optional JSONPath into the context document."),
		),
	), func(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleContextGet(svc, req)
	})

	s.AddTool(mcp.NewTool("milestone_add",
		mcp.WithDescription(addDescription),
		mcp.WithString("description",
			mcp.Description("Milestone text, e.g. \"Set up CI\"."),
			mcp.Required(),
		),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleMilestoneAdd(ctx, svc, req)
	})

	s.AddTool(mcp.NewTool("milestone_complete",
		mcp.WithDescription(completeDescription),
		mcp.WithString("name",
			mcp.Description("Exact text of the active milestone."),
			mcp.Required(),
		),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleMilestoneComplete(ctx, svc, req)
	})

	s.AddTool(mcp.NewTool("milestone_list",
		mcp.WithDescription("List milestone texts in the order they were added."),
		mcp.WithBoolean("completed",
			mcp.Description("List completed milestones instead of active ones."),
		),
	), func(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleMilestoneList(svc, req)
	})

	s.AddTool(mcp.NewTool("phase_update",
		mcp.WithDescription("Set the project's current development phase."),
		mcp.WithString("phase",
			mcp.Description("New phase, e.g. \"development\" or \"testing\"."),
			mcp.Required(),
		),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handlePhaseUpdate(ctx, svc, req)
	})

	s.AddTool(mcp.NewTool("history_search",
		mcp.WithDescription(searchDescription),
		mcp.WithString("query",
			mcp.Description("Search terms"),
			mcp.Required(),
		),
		mcp.WithNumber("limit",
			mcp.Description("Max results (default 5)"),
		),
		mcp.WithString("kind",
			mcp.Description("Restrict to one event kind."),
			mcp.Enum(eventKinds()...),
		),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleHistorySearch(ctx, svc, req)
	})
}

// ---------------------------------------------------------------------------
// Tool handlers
// ---------------------------------------------------------------------------

func handleContextGet(svc *service.Service, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	data, err := svc.ContextData()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	query := req.GetString("query", "")
	if query == "" {
		return jsonResult(data)
	}
	v, err := jsonpath.Read(data, query)
	if err != nil {
		return mcp.NewToolResultError("query " + query + ": " + err.Error()), nil
	}
	return jsonResult(v)
}

func handleMilestoneAdd(ctx context.Context, svc *service.Service, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	description := req.GetString("description", "")
	if err := svc.AddMilestone(ctx, description); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	active, err := svc.Milestones(false)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{
		"added":  description,
		"active": active,
	})
}

func handleMilestoneComplete(ctx context.Context, svc *service.Service, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := req.GetString("name", "")
	found, err := svc.CompleteMilestone(ctx, name)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out := map[string]any{
		"name":      name,
		"completed": found,
	}
	if !found {
		out["message"] = "No active milestone matches exactly. Call milestone_list to see the current names."
	}
	return jsonResult(out)
}

func handleMilestoneList(svc *service.Service, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	completed := req.GetBool("completed", false)
	labels, err := svc.Milestones(completed)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{
		"completed":  completed,
		"milestones": labels,
	})
}

func handlePhaseUpdate(ctx context.Context, svc *service.Service, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	phase := req.GetString("phase", "")
	if phase == "" {
		return mcp.NewToolResultError("phase must not be empty"), nil
	}
	if err := svc.UpdatePhase(ctx, phase); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{"current_phase": phase})
}

func handleHistorySearch(ctx context.Context, svc *service.Service, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := req.GetString("query", "")
	limit := req.GetInt("limit", 5)
	if limit <= 0 {
		limit = 5
	}
	kind := models.EventKind(req.GetString("kind", ""))
	if kind != "" && !slices.Contains(models.ValidEventKinds, kind) {
		return mcp.NewToolResultError("unknown event kind: " + string(kind)), nil
	}

	results, err := svc.Search(ctx, query, limit, kind)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	hits := make([]searchHit, len(results))
	for i := range results {
		hits[i] = newSearchHit(&results[i])
	}
	return jsonResult(hits)
}

// maxHitBody bounds the body characters returned per search hit.
const maxHitBody = 500

// searchHit is the agent-facing shape of a journal search result.
type searchHit struct {
	Kind  models.EventKind `json:"kind"`
	Title string           `json:"title"`
	Body  string           `json:"body"`
	Date  string           `json:"date"`
	Score float64          `json:"score"`
}

// newSearchHit shortens the body to maxHitBody runes, prints the date in UTC
// to the minute and rounds the score to two decimals.
func newSearchHit(r *search.Result) searchHit {
	h := searchHit{
		Kind:  r.Kind,
		Title: r.Title,
		Body:  r.Body,
		Score: math.Round(r.Score*100) / 100,
	}
	if runes := []rune(h.Body); len(runes) > maxHitBody {
		h.Body = string(runes[:maxHitBody])
	}
	if !r.CreatedAt.IsZero() {
		h.Date = r.CreatedAt.UTC().Format("2006-01-02 15:04")
	}
	return h
}

func eventKinds() []string {
	out := make([]string, len(models.ValidEventKinds))
	for i, k := range models.ValidEventKinds {
		out[i] = string(k)
	}
	return out
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(b)), nil
}

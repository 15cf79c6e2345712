package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/jobdesk/internal/action"
	"github.com/kalambet/jobdesk/internal/jobs"
	"github.com/kalambet/jobdesk/internal/notify"
)

// MCPJobs is the read side of the job collection.
type MCPJobs interface {
	List() []jobs.Job
	Get(id string) (jobs.Job, error)
}

// MCPEditor commits validated job edits. Implemented by assistant.Assistant,
// so edits made over MCP raise the same status_change notifications as chat.
type MCPEditor interface {
	ApplyEdits(directives []action.Directive) int
}

// MCPNotifications is the notification feed surface.
type MCPNotifications interface {
	Feed() []notify.Notification
	UnreadCount() int
	MarkAsRead(id string)
	MarkAllAsRead()
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Jobs          MCPJobs
	Editor        MCPEditor
	Notifications MCPNotifications
}

// NewMCPServer creates an MCP server with all jobdesk tools and resources registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"jobdesk",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("jobdesk: a local job-search tracker. Read tracked applications and offers, edit them, and check reminders."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("list_jobs",
			mcp.WithDescription("List tracked job applications and offers, newest first."),
			mcp.WithString("status", mcp.Description("Only return jobs in this status (Applied, Interview, Offer, Rejected, Accepted)")),
		),
		mcpListJobs(deps),
	)

	s.AddTool(
		mcp.NewTool("edit_job",
			mcp.WithDescription("Edit fields of one tracked job. Editable fields: status, salary, location, role, company, notes, followUpDate (YYYY-MM-DD), interviewDate (ISO 8601)."),
			mcp.WithString("id", mcp.Description("Job id"), mcp.Required()),
			mcp.WithString("updates", mcp.Description(`JSON object of field updates, e.g. {"status":"Interview"}`), mcp.Required()),
		),
		mcpEditJob(deps),
	)

	s.AddTool(
		mcp.NewTool("list_notifications",
			mcp.WithDescription("List reminders and alerts, newest first."),
			mcp.WithBoolean("unread_only", mcp.Description("Only return unread notifications")),
		),
		mcpListNotifications(deps),
	)

	s.AddTool(
		mcp.NewTool("mark_read",
			mcp.WithDescription(`Mark a notification as read. Pass "all" to mark every notification read.`),
			mcp.WithString("id", mcp.Description("Notification id, or all"), mcp.Required()),
		),
		mcpMarkRead(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"jobs://all",
			"Tracked Jobs",
			mcp.WithResourceDescription("All tracked jobs as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceJobs(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"jobs://summary",
			"Job Summary",
			mcp.WithResourceDescription("Compact plain-text summary of tracked jobs"),
			mcp.WithMIMEType("text/plain"),
		),
		mcpResourceSummary(deps),
	)

	return s
}

// jobListing is a job without its artifact payloads, which can be large.
type jobListing struct {
	jobs.Job
	Artifacts []string `json:"artifacts,omitempty"`
}

func listing(j jobs.Job) jobListing {
	out := jobListing{Job: j}
	for kind := range j.Artifacts {
		out.Artifacts = append(out.Artifacts, kind)
	}
	sort.Strings(out.Artifacts)
	out.Job.Artifacts = nil
	return out
}

func mcpListJobs(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		status := req.GetString("status", "")
		if status != "" && !jobs.Status(status).Valid() {
			return mcpError(fmt.Sprintf("unknown status %q", status)), nil
		}

		results := []jobListing{}
		for _, j := range deps.Jobs.List() {
			if status != "" && string(j.Status) != status {
				continue
			}
			results = append(results, listing(j))
		}

		b, err := json.Marshal(results)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal jobs: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpEditJob(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}
		updates, err := req.RequireString("updates")
		if err != nil {
			return mcpError("updates is required"), nil
		}
		if !json.Valid([]byte(updates)) {
			return mcpError("updates must be a JSON object"), nil
		}

		j, err := deps.Jobs.Get(id)
		if errors.Is(err, jobs.ErrNotFound) {
			return mcpError(fmt.Sprintf("no job with id %q", id)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("failed to load job: %v", err)), nil
		}

		payload, err := json.Marshal(map[string]json.RawMessage{
			"id":      mustJSON(id),
			"updates": json.RawMessage(updates),
		})
		if err != nil {
			return mcpError(fmt.Sprintf("invalid updates: %v", err)), nil
		}
		d, ok := action.Decode(string(payload))
		if !ok {
			return mcpError("no valid updates; check field names and value formats"), nil
		}

		if deps.Editor.ApplyEdits([]action.Directive{d}) == 0 {
			return mcpError("edit could not be saved"), nil
		}

		fields := make([]string, len(d.Updates))
		for i, u := range d.Updates {
			fields[i] = string(u.Field)
		}
		return mcpText(fmt.Sprintf("Updated %s at %s: %s", j.Role, j.Company, strings.Join(fields, ", "))), nil
	}
}

func mcpListNotifications(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		unreadOnly := req.GetBool("unread_only", false)

		results := []notify.Notification{}
		for _, n := range deps.Notifications.Feed() {
			if unreadOnly && n.Read {
				continue
			}
			results = append(results, n)
		}

		b, err := json.Marshal(results)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal notifications: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpMarkRead(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}
		if id == "all" {
			deps.Notifications.MarkAllAsRead()
		} else {
			deps.Notifications.MarkAsRead(id)
		}
		return mcpText(fmt.Sprintf("%d unread", deps.Notifications.UnreadCount())), nil
	}
}

func mcpResourceJobs(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		list := deps.Jobs.List()
		results := make([]jobListing, len(list))
		for i, j := range list {
			results[i] = listing(j)
		}

		b, err := json.Marshal(results)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal jobs: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpResourceSummary(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "text/plain",
				Text:     jobs.Summary(deps.Jobs.List()),
			},
		}, nil
	}
}

func mustJSON(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}

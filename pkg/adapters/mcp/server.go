package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hirokts/enikki/internal/logging"
	"github.com/hirokts/enikki/pkg/domain"
	"github.com/hirokts/enikki/pkg/ports"
	"github.com/hirokts/enikki/pkg/runner"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// RecentResourceURI lists the most recent diaries.
const RecentResourceURI = "enikki://diaries/recent"

// ReportResponse is returned when a diary run is accepted.
type ReportResponse struct {
	ID     string `json:"id" jsonschema_description:"Run id, used to fetch the diary later"`
	Status string `json:"status" jsonschema_description:"Initial status of the run (pending)"`
}

// Submitter starts runs in the background.
type Submitter interface {
	Submit(ctx context.Context, rec domain.ConversationRecord) (string, error)
}

// Server exposes diary generation as MCP tools.
type Server struct {
	runs      Submitter
	store     ports.DiaryStore
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

type Option func(*Server)

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// NewServer creates a new MCP Server instance.
func NewServer(runs Submitter, store ports.DiaryStore, version string, opts ...Option) *Server {
	s := &Server{
		runs:      runs,
		store:     store,
		logger:    logging.NewNop(),
		mcpServer: server.NewMCPServer("enikki-mcp", strings.TrimSpace(version)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying protocol server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves the SSE transport on addr until ctx is done.
func (s *Server) ServeSSE(ctx context.Context, addr, baseURL string) error {
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", sseServer.SSEHandler())
	mux.Handle("/message", sseServer.MessageHandler())

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP Server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func (s *Server) registerTools() {
	// TOOL: report_diary_event
	reportTool := mcp.NewTool("report_diary_event",
		mcp.WithDescription("Report the day's conversation so an illustrated diary entry can be written. Returns immediately with a run id."),
		mcp.WithString("date", mcp.Required(), mcp.Description("Diary date, e.g. 2024-08-01")),
		mcp.WithString("transcript", mcp.Description(`JSON array of {"role":"user"|"model","text":"...","timestamp":<ms>}`)),
		mcp.WithString("notification_target", mcp.Description("Discord webhook URL to notify when the diary is ready (optional)")),
		mcp.WithString("location", mcp.Description("Where it happened (legacy form)")),
		mcp.WithString("activity", mcp.Description("What was done (legacy form)")),
		mcp.WithString("feeling", mcp.Description("How it felt (legacy form)")),
		mcp.WithString("summary", mcp.Description("One-line summary (legacy form)")),
		mcp.WithString("joke_hint", mcp.Description("Something funny to slip in (legacy form)")),
		mcp.WithOutputSchema[ReportResponse](),
	)
	s.mcpServer.AddTool(reportTool, mcp.NewStructuredToolHandler(s.handleReport))

	// TOOL: get_diary
	getTool := mcp.NewTool("get_diary",
		mcp.WithDescription("Fetch a diary entry and its generation status."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Run id returned by report_diary_event")),
		mcp.WithOutputSchema[domain.Document](),
	)
	s.mcpServer.AddTool(getTool, mcp.NewStructuredToolHandler(s.handleGet))
}

// toPayload maps tool arguments onto the HTTP request shape.
func toPayload(args map[string]interface{}) map[string]any {
	payload := make(map[string]any, len(args))
	for k, v := range args {
		payload[k] = v
	}
	if t, ok := payload["transcript"].(string); ok {
		delete(payload, "transcript")
		payload["conversation_transcript"] = t
	}
	if target, ok := payload["notification_target"]; ok {
		delete(payload, "notification_target")
		payload["notificationTarget"] = target
	}
	return payload
}

func (s *Server) handleReport(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (ReportResponse, error) {
	rec, err := runner.DecodeRecord(toPayload(args))
	if err != nil {
		s.logger.WarnContext(ctx, "MCP report: record rejected", "error", err)
		return ReportResponse{}, err
	}

	id, err := s.runs.Submit(ctx, rec)
	if err != nil {
		return ReportResponse{}, fmt.Errorf("submit failed: %w", err)
	}
	return ReportResponse{ID: id, Status: string(domain.StatusPending)}, nil
}

func (s *Server) handleGet(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (domain.Document, error) {
	id, _ := args["id"].(string)
	if strings.TrimSpace(id) == "" {
		return domain.Document{}, errors.New("id is required")
	}

	doc, err := s.store.Load(ctx, id)
	if err != nil {
		return domain.Document{}, fmt.Errorf("get diary %s: %w", id, err)
	}
	return doc, nil
}

func (s *Server) registerResources() {
	// EXPOSE: enikki://diaries/recent
	s.mcpServer.AddResource(mcp.NewResource(RecentResourceURI, "Recent diaries",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		ids, err := s.store.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list diaries: %w", err)
		}
		if len(ids) > 20 {
			ids = ids[:20]
		}
		jsonBytes, _ := json.Marshal(map[string][]string{"ids": ids})

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      RecentResourceURI,
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		}, nil
	})
}

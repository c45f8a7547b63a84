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

	"github.com/aretw0/tally"
	"github.com/aretw0/tally/internal/logging"
	httpadapter "github.com/aretw0/tally/pkg/adapters/http"
	"github.com/aretw0/tally/pkg/domain"
	"github.com/aretw0/tally/pkg/ports"
	"github.com/aretw0/tally/pkg/registry"
	"github.com/aretw0/tally/pkg/runner"
	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"golang.org/x/sync/errgroup"
)

// ActionsURI is the resource listing the declared actions.
const ActionsURI = "tally://actions"

// Assistant is the part of *tally.Assistant the MCP surface needs.
type Assistant interface {
	Respond(ctx context.Context, req tally.Request, emitter ports.Emitter) (domain.Reply, error)
	Registry() *registry.Registry
}

// ChatArgs are the arguments of the chat tool.
type ChatArgs struct {
	Message        string               `json:"message"`
	ConversationID string               `json:"conversation_id,omitempty"`
	History        []domain.HistoryTurn `json:"history,omitempty"`
	Budget         int                  `json:"budget,omitempty"`
}

// ChatResult is the structured output of the chat tool.
type ChatResult struct {
	ConversationID string                `json:"conversation_id,omitempty" jsonschema_description:"Conversation to continue on the next call"`
	Status         domain.TurnStatus     `json:"status" jsonschema_description:"done, budget_exhausted, unavailable or cancelled"`
	Text           string                `json:"text" jsonschema_description:"The assistant's answer"`
	Steps          int                   `json:"steps" jsonschema_description:"Executed action rounds"`
	Results        []domain.ActionResult `json:"results,omitempty" jsonschema_description:"Outcome of every action requested during the turn"`
}

// Server exposes an Assistant as an MCP server: one tool per action, plus a
// chat tool running a full turn.
type Server struct {
	assistant Assistant
	identity  domain.Identity
	auth      *httpadapter.Authenticator
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// Option configures the Server.
type Option func(*Server)

// WithIdentity sets the identity used when the transport carries none (stdio).
func WithIdentity(id domain.Identity) Option {
	return func(s *Server) {
		s.identity = id
	}
}

// WithAuthenticator identifies SSE callers from their HTTP request.
func WithAuthenticator(a *httpadapter.Authenticator) Option {
	return func(s *Server) {
		s.auth = a
	}
}

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a new MCP Server instance.
func NewServer(assistant Assistant, opts ...Option) (*Server, error) {
	s := &Server{
		assistant: assistant,
		logger:    logging.NewNop(),
		mcpServer: server.NewMCPServer("tally-mcp", strings.TrimSpace(tally.Version),
			server.WithToolCapabilities(false),
			server.WithResourceCapabilities(false, false),
		),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.registerTools(); err != nil {
		return nil, err
	}
	s.registerResources()
	return s, nil
}

// MCPServer exposes the underlying server, mostly for tests.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves the SSE transport on addr until ctx is cancelled.
func (s *Server) ServeSSE(ctx context.Context, addr, baseURL string) error {
	opts := []server.SSEOption{server.WithBaseURL(baseURL)}
	if s.auth != nil {
		opts = append(opts, server.WithSSEContextFunc(func(ctx context.Context, r *http.Request) context.Context {
			if id, ok := s.auth.Identify(r); ok {
				return httpadapter.WithIdentity(ctx, id)
			}
			return ctx
		}))
	}
	sseServer := server.NewSSEServer(s.mcpServer, opts...)

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))
	httpServer := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("MCP Server listening (SSE)", "address", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	})
	return g.Wait()
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+httpadapter.DefaultIdentityHeader)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() error {
	for _, def := range s.assistant.Registry().Definitions() {
		raw, err := json.Marshal(def.Parameters)
		if err != nil {
			return fmt.Errorf("encode schema of %s: %w", def.Name, err)
		}
		s.mcpServer.AddTool(mcp.NewToolWithRawSchema(def.Name, def.Description, raw), s.actionHandler(def.Name))
	}

	chatTool := mcp.NewTool("chat",
		mcp.WithDescription("Send a message to the CRM assistant. It may create tasks, deals and expenses on your behalf before answering."),
		mcp.WithString("message", mcp.Required(), mcp.Description("What you want done")),
		mcp.WithString("conversation_id", mcp.Description("Continue a previous conversation (optional)")),
		mcp.WithArray("history", mcp.Description("Prior turns seeding a new conversation (optional)"),
			mcp.Items(map[string]any{
				"type": "object",
				"properties": map[string]any{
					"role": map[string]any{"type": "string", "enum": []string{string(domain.RoleUser), string(domain.RoleAssistant)}},
					"text": map[string]any{"type": "string"},
				},
				"required": []string{"role", "text"},
			})),
		mcp.WithNumber("budget", mcp.Description("Maximum number of action rounds (optional)")),
		mcp.WithOutputSchema[ChatResult](),
	)
	s.mcpServer.AddTool(chatTool, mcp.NewStructuredToolHandler(s.handleChat))
	return nil
}

// actionHandler runs one action directly, without the planner.
func (s *Server) actionHandler(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		identity, err := s.resolveIdentity(ctx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		call := domain.ActionCall{ID: "mcp_" + uuid.NewString(), Name: name, Args: request.GetArguments()}
		outcome := s.assistant.Registry().Dispatch(ctx, call, identity)
		s.logger.Debug("MCP action dispatched", "action", name, "call_id", call.ID, "user_id", identity.UserID, "ok", outcome.OK())
		if !outcome.OK() {
			return mcp.NewToolResultError(outcome.Reason()), nil
		}
		return mcp.NewToolResultText(outcome.Summary()), nil
	}
}

func (s *Server) handleChat(ctx context.Context, _ mcp.CallToolRequest, args ChatArgs) (ChatResult, error) {
	identity, err := s.resolveIdentity(ctx)
	if err != nil {
		return ChatResult{}, err
	}
	message, err := runner.SanitizeInput(args.Message)
	if err != nil {
		s.logger.Warn("MCP chat: Input rejected", "err", err, "size", len(args.Message))
		return ChatResult{}, fmt.Errorf("input rejected: %w", err)
	}
	history, err := runner.SanitizeHistory(args.History)
	if err != nil {
		s.logger.Warn("MCP chat: History rejected", "err", err, "turns", len(args.History))
		return ChatResult{}, fmt.Errorf("input rejected: %w", err)
	}

	reply, err := s.assistant.Respond(ctx, tally.Request{
		ConversationID: args.ConversationID,
		History:        history,
		Message:        message,
		Identity:       identity,
		Budget:         args.Budget,
	}, nil)
	if err != nil {
		return ChatResult{}, err
	}
	return ChatResult{
		ConversationID: reply.ConversationID,
		Status:         reply.Status,
		Text:           reply.Text,
		Steps:          reply.Steps,
		Results:        reply.Results,
	}, nil
}

func (s *Server) resolveIdentity(ctx context.Context) (domain.Identity, error) {
	if id, ok := httpadapter.IdentityFrom(ctx); ok {
		return id, nil
	}
	if err := s.identity.Validate(); err != nil {
		return domain.Identity{}, err
	}
	return s.identity, nil
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(ActionsURI, "Declared actions",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		data, err := json.Marshal(s.assistant.Registry().Definitions())
		if err != nil {
			return nil, fmt.Errorf("failed to encode actions: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      ActionsURI,
				MIMEType: "application/json",
				Text:     string(data),
			},
		}, nil
	})
}

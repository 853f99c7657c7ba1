// Package mcp exposes the built-in memory and draft tools to external
// assistants over the Model Context Protocol (streamable HTTP at /mcp).
// Calls run as the authenticated user; a client cannot act for another user.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/CogitoSoftwareOrg/hackseeker/internal/agent/tools"
	"github.com/CogitoSoftwareOrg/hackseeker/internal/assembler"
	"github.com/CogitoSoftwareOrg/hackseeker/internal/chat"
	"github.com/CogitoSoftwareOrg/hackseeker/internal/memory"
	hsotel "github.com/CogitoSoftwareOrg/hackseeker/internal/otel"
	"github.com/CogitoSoftwareOrg/hackseeker/internal/requestctx"
)

var tracer = hsotel.Tracer("github.com/CogitoSoftwareOrg/hackseeker/internal/mcp")

// ServerName is announced to MCP clients.
const ServerName = "hackseeker"

// ChatOwner creates a chat for userID on first use and rejects chats owned
// by someone else.
type ChatOwner interface {
	Ensure(ctx context.Context, userID, chatID string) (*chat.Chat, error)
}

// Server wraps an MCP server over a tool registry.
type Server struct {
	mcp      *server.MCPServer
	registry *tools.Registry
	chats    ChatOwner
}

// NewServer registers every definition in reg as an MCP tool. Each tool
// schema gains an optional chat_id argument.
func NewServer(version string, reg *tools.Registry, chats ChatOwner) (*Server, error) {
	s := &Server{
		mcp: server.NewMCPServer(ServerName, version,
			server.WithToolCapabilities(false),
			server.WithRecovery(),
		),
		registry: reg,
		chats:    chats,
	}
	for _, def := range reg.Definitions() {
		schema, err := json.Marshal(withChatID(def.Parameters))
		if err != nil {
			return nil, fmt.Errorf("encoding schema of %s: %w", def.Name, err)
		}
		s.mcp.AddTool(mcp.NewToolWithRawSchema(def.Name, def.Description, schema), s.handle(def.Name))
	}
	return s, nil
}

// Handler returns the streamable HTTP transport. The request's user id is
// carried into tool calls.
func (s *Server) Handler() http.Handler {
	return server.NewStreamableHTTPServer(s.mcp,
		server.WithHTTPContextFunc(func(ctx context.Context, r *http.Request) context.Context {
			return requestctx.SetUserID(ctx, requestctx.UserID(r.Context()))
		}),
	)
}

// HandleMessage processes one JSON-RPC message. ctx must carry the user id.
func (s *Server) HandleMessage(ctx context.Context, msg json.RawMessage) mcp.JSONRPCMessage {
	return s.mcp.HandleMessage(ctx, msg)
}

func (s *Server) handle(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ctx, span := tracer.Start(ctx, "mcp.tools.call", trace.WithAttributes(hsotel.ToolName.String(name)))
		defer span.End()

		userID := requestctx.UserID(ctx)
		if userID == "" {
			return mcp.NewToolResultError("unauthenticated"), nil
		}

		args := maps.Clone(req.GetArguments())
		if args == nil {
			args = map[string]any{}
		}
		chatID := tools.String(args, tools.ArgChatID)
		delete(args, tools.ArgUserID)
		delete(args, tools.ArgChatID)
		dynamic := map[string]any{tools.ArgUserID: userID}
		if chatID != "" {
			if s.chats != nil {
				if _, err := s.chats.Ensure(ctx, userID, chatID); err != nil {
					return mcp.NewToolResultError(fmt.Sprintf("chat %s: %v", chatID, err)), nil
				}
			}
			dynamic[tools.ArgChatID] = chatID
		}

		res, err := s.registry.Invoke(ctx, name, dynamic, args, memory.NewPool())
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "tool failed")
			log.Warn().Err(err).Str("tool", name).Str("user_id", userID).Msg("mcp_tool_failed")
			if errors.Is(err, tools.ErrInvalidArguments) {
				return mcp.NewToolResultError(err.Error()), nil
			}
			return mcp.NewToolResultError(fmt.Sprintf("%s failed: %v", name, err)), nil
		}

		text := res.Content
		if res.Pool.Len() > 0 {
			text += "\n\n" + assembler.Knowledge(res.Pool)
		}
		log.Info().Func(hsotel.LogTraceFields(ctx)).Str("tool", name).Str("user_id", userID).Msg("mcp_tool_executed")
		return mcp.NewToolResultText(text), nil
	}
}

// withChatID returns a copy of schema with an optional chat_id property.
func withChatID(schema map[string]any) map[string]any {
	out := maps.Clone(schema)
	if out == nil {
		out = map[string]any{"type": "object"}
	}
	props := map[string]any{}
	if p, ok := out["properties"].(map[string]any); ok {
		props = maps.Clone(p)
	}
	if _, ok := props[tools.ArgChatID]; !ok {
		props[tools.ArgChatID] = map[string]any{"type": "string", "description": "Chat the call belongs to"}
	}
	out["properties"] = props
	return out
}

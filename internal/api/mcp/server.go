// Package mcp exposes the tool dispatcher as a Model Context Protocol server
// speaking JSON-RPC 2.0.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/scrypster/luna-history/internal/dispatch"
)

const instructions = "Read-only access to the user's past conversations with the assistant, " +
	"plus a long-term memory the assistant can write to. " +
	"Use search_conversations to find earlier discussions and get_conversation to read one in full. " +
	"Use store_memory for durable facts about the user and search_memory to recall them."

// Server implements the Model Context Protocol on top of a dispatch.Dispatcher.
type Server struct {
	dispatcher *dispatch.Dispatcher
	log        *zap.Logger
	info       MCPServerInfo
	sessionID  string // generated once per server lifetime
}

// ServerOption is a functional option for configuring a Server.
type ServerOption func(*Server)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// WithServerInfo overrides the name and version reported by initialize.
func WithServerInfo(name, version string) ServerOption {
	return func(s *Server) {
		s.info = MCPServerInfo{Name: name, Version: version}
	}
}

// NewServer creates a new MCP server instance.
func NewServer(d *dispatch.Dispatcher, opts ...ServerOption) *Server {
	s := &Server{
		dispatcher: d,
		log:        zap.NewNop(),
		info:       MCPServerInfo{Name: "luna-history", Version: "1.0.0"},
		sessionID:  uuid.New().String(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(zap.String("session_id", s.sessionID))
	return s
}

// SessionID returns the id generated for this server instance.
func (s *Server) SessionID() string {
	return s.sessionID
}

// HandleRequest processes one JSON-RPC 2.0 frame. It returns a nil slice
// for notifications, which must not be answered.
func (s *Server) HandleRequest(ctx context.Context, requestJSON []byte) ([]byte, error) {
	var req JSONRPCRequest
	if err := json.Unmarshal(requestJSON, &req); err != nil {
		return s.errorResponse(nil, ErrCodeParseError, "Parse error", err.Error())
	}

	if req.JSONRPC != "2.0" {
		return s.errorResponse(req.ID, ErrCodeInvalidRequest, "Invalid JSON-RPC version", nil)
	}

	var result interface{}
	var rpcErr *JSONRPCError

	switch req.Method {
	case "initialize":
		result, rpcErr = s.handleInitialize(req.Params)
	case "notifications/initialized", "initialized":
		s.log.Debug("client initialized")
		result = map[string]interface{}{}
	case "ping":
		result = map[string]interface{}{}
	case "tools/list":
		result = s.handleToolsList()
	case "tools/call":
		result, rpcErr = s.handleToolsCall(ctx, req.Params)
	default:
		rpcErr = &JSONRPCError{Code: ErrCodeMethodNotFound, Message: fmt.Sprintf("Method not found: %s", req.Method)}
	}

	if req.IsNotification() {
		return nil, nil
	}
	if rpcErr != nil {
		return s.errorResponse(req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
	}
	return s.successResponse(req.ID, result)
}

// handleInitialize handles the MCP initialize handshake.
func (s *Server) handleInitialize(params json.RawMessage) (interface{}, *JSONRPCError) {
	var p MCPInitializeParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, &JSONRPCError{Code: ErrCodeInvalidParams, Message: "Invalid initialize params", Data: err.Error()}
		}
	}
	s.log.Info("initialize",
		zap.String("client", p.ClientInfo.Name),
		zap.String("client_version", p.ClientInfo.Version),
		zap.String("protocol", p.ProtocolVersion))

	return MCPInitializeResult{
		ProtocolVersion: ProtocolVersion,
		Capabilities: MCPServerCapabilities{
			Tools: &MCPToolsCapability{},
		},
		ServerInfo:   s.info,
		Instructions: instructions,
	}, nil
}

func (s *Server) handleToolsList() MCPToolsListResult {
	tools := dispatch.Tools()
	out := make([]MCPTool, len(tools))
	for i, t := range tools {
		out[i] = MCPTool{Name: t.Name, Description: t.Description, InputSchema: t.InputSchema}
	}
	return MCPToolsListResult{Tools: out}
}

// handleToolsCall runs one tool and wraps the dispatcher Result in the MCP
// content envelope. Tool failures are reported inside the envelope, never
// as JSON-RPC errors.
func (s *Server) handleToolsCall(ctx context.Context, params json.RawMessage) (interface{}, *JSONRPCError) {
	var p MCPToolCallParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &JSONRPCError{Code: ErrCodeInvalidParams, Message: "Invalid tools/call params", Data: err.Error()}
	}

	res := s.dispatcher.Call(ctx, p.Name, p.Arguments)
	text, err := json.Marshal(res)
	if err != nil {
		return nil, &JSONRPCError{Code: ErrCodeInternalError, Message: fmt.Sprintf("encode %s result: %v", p.Name, err)}
	}
	return MCPToolCallResult{
		Content: []MCPToolCallContent{{Type: "text", Text: string(text)}},
		IsError: res.IsError(),
	}, nil
}

func (s *Server) successResponse(id json.RawMessage, result interface{}) ([]byte, error) {
	return json.Marshal(JSONRPCResponse{JSONRPC: "2.0", Result: result, ID: id})
}

// errorResponse creates a JSON-RPC error response.
func (s *Server) errorResponse(id json.RawMessage, code int, message string, data interface{}) ([]byte, error) {
	resp := JSONRPCResponse{
		JSONRPC: "2.0",
		Error: &JSONRPCError{
			Code:    code,
			Message: message,
			Data:    data,
		},
		ID: id,
	}
	return json.Marshal(resp)
}

// errorFrame builds an error response for a raw frame that could not be
// handled, recovering the request id when possible.
func errorFrame(rawRequest []byte, code int, message string) []byte {
	var partial struct {
		ID json.RawMessage `json:"id"`
	}
	_ = json.Unmarshal(rawRequest, &partial)

	data, err := json.Marshal(JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      partial.ID,
		Error:   &JSONRPCError{Code: code, Message: message},
	})
	if err != nil {
		return []byte(`{"jsonrpc":"2.0","id":null,"error":{"code":-32603,"message":"internal error"}}`)
	}
	return data
}

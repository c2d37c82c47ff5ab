// Package types defines the core data structures exposed by luna-history:
// conversations and messages read from the chat application's database, and
// the long-term memory entries owned by this server.
package types

import "strings"

// Role identifies the author of a message.
type Role string

// Message role constants. The set is closed; rows carrying any other value are
// passed through verbatim so that the history remains readable.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
	RoleSystem    Role = "system"
)

// Valid reports whether r is one of the known message roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleTool, RoleSystem:
		return true
	}
	return false
}

// ParseRole normalises a stored role value. Unknown roles are returned
// lowercased and trimmed; callers can check Valid.
func ParseRole(s string) Role {
	return Role(strings.ToLower(strings.TrimSpace(s)))
}

// Conversation is a chat session owned by the external application.
// It is never modified by this server.
type Conversation struct {
	ID             string  `json:"id"`
	Title          string  `json:"title"`
	CreatedAt      int64   `json:"created_at"` // unix seconds, as written by the owning app
	TitleGenerated bool    `json:"title_generated"`
	ProfileName    *string `json:"profile_name,omitempty"`
}

// ConversationSummary is a Conversation plus its message count, returned by
// listing and title search.
type ConversationSummary struct {
	Conversation
	MessageCount int64 `json:"message_count"`
}

// Message is a single turn within a conversation.
//
// Position is the 1-based sequence position of the message inside its
// conversation. It is derived when a thread is assembled and is zero for
// messages fetched on their own.
type Message struct {
	ID             int64  `json:"id"`
	ConversationID string `json:"conversation_id"`
	Role           Role   `json:"role"`
	Content        string `json:"content"`
	CreatedAt      int64  `json:"created_at"`
	Position       int    `json:"position,omitempty"`

	// Structured tool-call payload; all optional.
	ToolCalls        *string `json:"tool_calls,omitempty"`
	ToolCallID       *string `json:"tool_call_id,omitempty"`
	ToolName         *string `json:"tool_name,omitempty"`
	ToolStatus       *string `json:"tool_status,omitempty"`
	ToolParamsJSON   *string `json:"tool_params_json,omitempty"`
	ToolResultJSON   *string `json:"tool_result_json,omitempty"`
	ReasoningContent *string `json:"reasoning_content,omitempty"`
}

// ConversationThread is a conversation with its complete, ordered message
// sequence. It is a read-only view assembled on demand.
type ConversationThread struct {
	Conversation
	Messages []Message `json:"messages"`
}

// MessageHit is a ranked full-text match against a message.
type MessageHit struct {
	MessageID         int64   `json:"message_id"`
	ConversationID    string  `json:"conversation_id"`
	ConversationTitle string  `json:"conversation_title"`
	Role              Role    `json:"role"`
	ContentPreview    string  `json:"content_preview"`
	Snippet           string  `json:"snippet"`
	CreatedAt         int64   `json:"created_at"`
	Score             float64 `json:"score"` // higher is better
}

// ContentPreviewLength is the number of characters kept in
// MessageHit.ContentPreview.
const ContentPreviewLength = 200

// Preview truncates s to at most ContentPreviewLength runes.
func Preview(s string) string {
	runes := []rune(s)
	if len(runes) <= ContentPreviewLength {
		return s
	}
	return string(runes[:ContentPreviewLength])
}

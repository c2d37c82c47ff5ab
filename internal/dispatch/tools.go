package dispatch

// Tool names.
const (
	ToolSearchConversations      = "search_conversations"
	ToolGetConversation          = "get_conversation"
	ToolSearchConversationTitles = "search_conversation_titles"
	ToolListConversations        = "list_conversations"
	ToolGetMessage               = "get_message"
	ToolStoreMemory              = "store_memory"
	ToolSearchMemory             = "search_memory"
	ToolSearchMemoryByCategory   = "search_memory_by_category"
	ToolDeleteMemory             = "delete_memory"
)

// Tool describes one callable tool for discovery.
type Tool struct {
	Name        string
	Description string
	InputSchema map[string]interface{}
}

func keywordsSchema(what string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "array",
		"items":       map[string]interface{}{"type": "string"},
		"minItems":    1,
		"description": "Keywords to search " + what + " for. A result matches when it contains any keyword; multi-word keywords match as phrases.",
	}
}

// Tools returns the descriptors of every tool, in a stable order.
func Tools() []Tool {
	return []Tool{
		{
			Name:        ToolSearchConversations,
			Description: "Full-text search across all past conversation messages. Returns ranked hits with the conversation title, a highlighted snippet and a content preview.",
			InputSchema: map[string]interface{}{
				"type":     "object",
				"required": []string{"keywords"},
				"properties": map[string]interface{}{
					"keywords": keywordsSchema("messages"),
					"query":    map[string]interface{}{"type": "string", "description": "Deprecated: space-separated keywords. Use keywords instead."},
					"limit":    map[string]interface{}{"type": "integer", "minimum": 1, "description": "Max results (default 50, max 200)"},
				},
			},
		},
		{
			Name:        ToolGetConversation,
			Description: "Retrieve a full conversation thread with every message in chronological order, including tool calls and results.",
			InputSchema: map[string]interface{}{
				"type":     "object",
				"required": []string{"conversation_id"},
				"properties": map[string]interface{}{
					"conversation_id": map[string]interface{}{"type": "string", "description": "Conversation ID"},
				},
			},
		},
		{
			Name:        ToolSearchConversationTitles,
			Description: "Find conversations whose title contains the query (case-insensitive). Most recent first.",
			InputSchema: map[string]interface{}{
				"type":     "object",
				"required": []string{"query"},
				"properties": map[string]interface{}{
					"query": map[string]interface{}{"type": "string", "description": "Text to look for in titles"},
				},
			},
		},
		{
			Name:        ToolListConversations,
			Description: "List conversations, most recent first, with message counts.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"limit":  map[string]interface{}{"type": "integer", "minimum": 1, "description": "Page size (default 50, max 200)"},
					"offset": map[string]interface{}{"type": "integer", "minimum": 0, "description": "Number of conversations to skip (default 0)"},
				},
			},
		},
		{
			Name:        ToolGetMessage,
			Description: "Retrieve a single message by ID.",
			InputSchema: map[string]interface{}{
				"type":     "object",
				"required": []string{"message_id"},
				"properties": map[string]interface{}{
					"message_id": map[string]interface{}{"type": "integer", "description": "Message ID"},
				},
			},
		},
		{
			Name:        ToolStoreMemory,
			Description: "Store a fact in long-term memory for later recall.",
			InputSchema: map[string]interface{}{
				"type":     "object",
				"required": []string{"content"},
				"properties": map[string]interface{}{
					"content":    map[string]interface{}{"type": "string", "description": "The fact to remember"},
					"category":   map[string]interface{}{"type": "string", "description": "Optional tag such as preferences or projects"},
					"importance": map[string]interface{}{"type": "integer", "minimum": 1, "maximum": 10, "description": "1 (trivial) to 10 (critical), default 5"},
				},
			},
		},
		{
			Name:        ToolSearchMemory,
			Description: "Full-text search over long-term memory content and categories. Ranked by relevance, then importance.",
			InputSchema: map[string]interface{}{
				"type":     "object",
				"required": []string{"keywords"},
				"properties": map[string]interface{}{
					"keywords": keywordsSchema("memory"),
					"limit":    map[string]interface{}{"type": "integer", "minimum": 1, "description": "Max results (default 50, max 200)"},
				},
			},
		},
		{
			Name:        ToolSearchMemoryByCategory,
			Description: "List memories with exactly this category, most important first, then most recent.",
			InputSchema: map[string]interface{}{
				"type":     "object",
				"required": []string{"category"},
				"properties": map[string]interface{}{
					"category": map[string]interface{}{"type": "string", "description": "Category to list"},
				},
			},
		},
		{
			Name:        ToolDeleteMemory,
			Description: "Delete a memory by ID.",
			InputSchema: map[string]interface{}{
				"type":     "object",
				"required": []string{"memory_id"},
				"properties": map[string]interface{}{
					"memory_id": map[string]interface{}{"type": "integer", "description": "Memory ID"},
				},
			},
		},
	}
}

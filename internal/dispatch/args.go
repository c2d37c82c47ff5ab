package dispatch

import (
	"encoding/json"
	"reflect"
	"strings"
)

var stringListType = reflect.TypeOf(StringList(nil))

// StringList decodes a JSON array of strings. Some MCP clients send arrays
// as a JSON-encoded string ("[\"a\",\"b\"]") or as a comma-separated string;
// both are accepted.
type StringList []string

// UnmarshalJSON implements json.Unmarshaler.
func (l *StringList) UnmarshalJSON(data []byte) error {
	var items []string
	if err := json.Unmarshal(data, &items); err == nil {
		*l = items
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return &json.UnmarshalTypeError{Value: string(data), Type: stringListType}
	}
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "[") {
		if err := json.Unmarshal([]byte(s), &items); err != nil {
			return &json.UnmarshalTypeError{Value: "string", Type: stringListType}
		}
		*l = items
		return nil
	}
	items = nil
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			items = append(items, part)
		}
	}
	*l = items
	return nil
}

// SearchConversationsArgs are the arguments of search_conversations.
// Query is the deprecated free-text form, split on whitespace when Keywords
// is empty.
type SearchConversationsArgs struct {
	Keywords StringList `json:"keywords"`
	Query    *string    `json:"query"`
	Limit    *int       `json:"limit"`
}

// GetConversationArgs are the arguments of get_conversation.
type GetConversationArgs struct {
	ConversationID string `json:"conversation_id"`
}

// SearchConversationTitlesArgs are the arguments of search_conversation_titles.
type SearchConversationTitlesArgs struct {
	Query string `json:"query"`
}

// ListConversationsArgs are the arguments of list_conversations.
type ListConversationsArgs struct {
	Limit  *int `json:"limit"`
	Offset *int `json:"offset"`
}

// GetMessageArgs are the arguments of get_message.
type GetMessageArgs struct {
	MessageID *int64 `json:"message_id"`
}

// StoreMemoryArgs are the arguments of store_memory.
type StoreMemoryArgs struct {
	Content    string  `json:"content"`
	Category   *string `json:"category"`
	Importance *int    `json:"importance"`
}

// SearchMemoryArgs are the arguments of search_memory.
type SearchMemoryArgs struct {
	Keywords StringList `json:"keywords"`
	Limit    *int       `json:"limit"`
}

// SearchMemoryByCategoryArgs are the arguments of search_memory_by_category.
type SearchMemoryByCategoryArgs struct {
	Category string `json:"category"`
}

// DeleteMemoryArgs are the arguments of delete_memory.
type DeleteMemoryArgs struct {
	MemoryID *int64 `json:"memory_id"`
}

// StoreMemoryResult is the data of a successful store_memory call.
type StoreMemoryResult struct {
	ID int64 `json:"id"`
}

// DeleteMemoryResult is the data of a successful delete_memory call.
type DeleteMemoryResult struct {
	MemoryID int64 `json:"memory_id"`
	Deleted  bool  `json:"deleted"`
}

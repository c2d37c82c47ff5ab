// Package fixture builds conversation databases from YAML descriptions.
//
// The conversation schema belongs to the chat application, so this server
// never creates it in production. Tests and the luna-history-seed tool need
// a realistic copy, though, and this package owns that copy of the DDL.
package fixture

import (
	"bytes"
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/scrypster/luna-history/pkg/types"
)

// Schema mirrors the tables the chat application creates, including the
// external-content FTS5 index over message content and its sync triggers.
const Schema = `
CREATE TABLE IF NOT EXISTS conversations (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL,
    title_generated INTEGER NOT NULL DEFAULT 0,
    profile_name TEXT
);

CREATE TABLE IF NOT EXISTS messages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
    role TEXT NOT NULL,
    content TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL,
    tool_calls TEXT,
    tool_call_id TEXT,
    tool_name TEXT,
    tool_status TEXT,
    tool_params_json TEXT,
    tool_result_json TEXT,
    reasoning_content TEXT
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at);

CREATE VIRTUAL TABLE IF NOT EXISTS messages_fts USING fts5(
    content,
    content='messages',
    content_rowid='id'
);

CREATE TRIGGER IF NOT EXISTS messages_ai AFTER INSERT ON messages BEGIN
    INSERT INTO messages_fts(rowid, content) VALUES (new.id, new.content);
END;

CREATE TRIGGER IF NOT EXISTS messages_ad AFTER DELETE ON messages BEGIN
    INSERT INTO messages_fts(messages_fts, rowid, content) VALUES ('delete', old.id, old.content);
END;

CREATE TRIGGER IF NOT EXISTS messages_au AFTER UPDATE ON messages BEGIN
    INSERT INTO messages_fts(messages_fts, rowid, content) VALUES ('delete', old.id, old.content);
    INSERT INTO messages_fts(rowid, content) VALUES (new.id, new.content);
END;
`

// Fixture is the YAML document root.
type Fixture struct {
	Conversations []Conversation `yaml:"conversations"`
}

// Conversation is one conversation and its messages.
type Conversation struct {
	ID             string    `yaml:"id"`
	Title          string    `yaml:"title"`
	CreatedAt      int64     `yaml:"created_at"`
	TitleGenerated bool      `yaml:"title_generated"`
	ProfileName    *string   `yaml:"profile_name"`
	Messages       []Message `yaml:"messages"`
}

// Message is one message row. A zero ID lets the database assign one.
type Message struct {
	ID               int64   `yaml:"id"`
	Role             string  `yaml:"role"`
	Content          string  `yaml:"content"`
	CreatedAt        int64   `yaml:"created_at"`
	ToolCalls        *string `yaml:"tool_calls"`
	ToolCallID       *string `yaml:"tool_call_id"`
	ToolName         *string `yaml:"tool_name"`
	ToolStatus       *string `yaml:"tool_status"`
	ToolParamsJSON   *string `yaml:"tool_params_json"`
	ToolResultJSON   *string `yaml:"tool_result_json"`
	ReasoningContent *string `yaml:"reasoning_content"`
}

//go:embed sample.yaml
var sampleYAML []byte

// Sample returns the bundled example history.
func Sample() *Fixture {
	f, err := Parse(bytes.NewReader(sampleYAML))
	if err != nil {
		panic(err)
	}
	return f
}

// Parse decodes a fixture and checks that every conversation has an id and
// every message a role.
func Parse(r io.Reader) (*Fixture, error) {
	var f Fixture
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && err != io.EOF {
		return nil, fmt.Errorf("fixture: decode: %w", err)
	}
	seen := make(map[string]bool, len(f.Conversations))
	for i, c := range f.Conversations {
		if c.ID == "" {
			return nil, fmt.Errorf("fixture: conversation %d has no id", i)
		}
		if seen[c.ID] {
			return nil, fmt.Errorf("fixture: duplicate conversation id %q", c.ID)
		}
		seen[c.ID] = true
		for j, m := range c.Messages {
			if m.Role == "" {
				return nil, fmt.Errorf("fixture: conversation %q message %d has no role", c.ID, j)
			}
		}
	}
	return &f, nil
}

// Load reads and parses a fixture file.
func Load(path string) (*Fixture, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("fixture: %w", err)
	}
	defer fh.Close()
	return Parse(fh)
}

// CreateSchema creates the conversation tables if they are missing.
func CreateSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("fixture: create schema: %w", err)
	}
	return nil
}

// Seed creates the schema and inserts every conversation and message of f
// in one transaction.
func Seed(ctx context.Context, db *sql.DB, f *Fixture) error {
	if err := CreateSchema(ctx, db); err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("fixture: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, c := range f.Conversations {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO conversations (id, title, created_at, title_generated, profile_name) VALUES (?, ?, ?, ?, ?)`,
			c.ID, c.Title, c.CreatedAt, boolInt(c.TitleGenerated), c.ProfileName)
		if err != nil {
			return fmt.Errorf("fixture: insert conversation %q: %w", c.ID, err)
		}
		for _, m := range c.Messages {
			var id any
			if m.ID != 0 {
				id = m.ID
			}
			_, err := tx.ExecContext(ctx,
				`INSERT INTO messages (id, conversation_id, role, content, created_at,
					tool_calls, tool_call_id, tool_name, tool_status,
					tool_params_json, tool_result_json, reasoning_content)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				id, c.ID, m.Role, m.Content, m.CreatedAt,
				m.ToolCalls, m.ToolCallID, m.ToolName, m.ToolStatus,
				m.ToolParamsJSON, m.ToolResultJSON, m.ReasoningContent)
			if err != nil {
				return fmt.Errorf("fixture: insert message in %q: %w", c.ID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("fixture: commit: %w", err)
	}
	return nil
}

// Domain converts the fixture into domain conversations and messages.
// Messages without an id get the largest id seen so far plus one, which is
// what SQLite assigns when Seed inserts them in document order.
func (f *Fixture) Domain() ([]types.Conversation, []types.Message) {
	var next int64
	convs := make([]types.Conversation, 0, len(f.Conversations))
	var msgs []types.Message
	for _, c := range f.Conversations {
		convs = append(convs, types.Conversation{
			ID:             c.ID,
			Title:          c.Title,
			CreatedAt:      c.CreatedAt,
			TitleGenerated: c.TitleGenerated,
			ProfileName:    c.ProfileName,
		})
		for _, m := range c.Messages {
			id := m.ID
			if id == 0 {
				next++
				id = next
			}
			next = max(next, id)
			msgs = append(msgs, types.Message{
				ID:               id,
				ConversationID:   c.ID,
				Role:             types.ParseRole(m.Role),
				Content:          m.Content,
				CreatedAt:        m.CreatedAt,
				ToolCalls:        m.ToolCalls,
				ToolCallID:       m.ToolCallID,
				ToolName:         m.ToolName,
				ToolStatus:       m.ToolStatus,
				ToolParamsJSON:   m.ToolParamsJSON,
				ToolResultJSON:   m.ToolResultJSON,
				ReasoningContent: m.ReasoningContent,
			})
		}
	}
	return convs, msgs
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

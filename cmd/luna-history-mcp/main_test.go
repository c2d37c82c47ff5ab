package main

import (
	"bufio"
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/scrypster/luna-history/internal/config"
	"github.com/scrypster/luna-history/internal/fixture"
	_ "modernc.org/sqlite"
)

func seededConfig(t *testing.T) *config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "history.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	require.NoError(t, fixture.Seed(context.Background(), db, fixture.Sample()))
	require.NoError(t, db.Close())

	t.Setenv("LUNA_HISTORY_DATABASE_PATH", path)
	t.Setenv("LUNA_HISTORY_CONFIG", "")
	t.Setenv("LUNA_HISTORY_MEMORY_ENGINE", "")
	t.Setenv("LUNA_HISTORY_CONVERSATION_SOURCE", "")
	t.Setenv("LUNA_HISTORY_CONVERSATION_FIXTURE", "")
	t.Setenv("LUNA_HISTORY_SERVER_WEBSOCKET_ADDR", "")
	cfg, err := config.LoadConfig("")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	return cfg
}

type envelope struct {
	ID     int `json:"id"`
	Result struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
		IsError bool `json:"isError"`
	} `json:"result"`
}

func serve(t *testing.T, cfg *config.Config, frames ...string) []envelope {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var out bytes.Buffer
	require.NoError(t, run(ctx, cfg, zap.NewNop(), strings.NewReader(strings.Join(frames, "\n")+"\n"), &out))

	var resps []envelope
	sc := bufio.NewScanner(&out)
	for sc.Scan() {
		var e envelope
		require.NoError(t, json.Unmarshal(sc.Bytes(), &e), sc.Text())
		resps = append(resps, e)
	}
	return resps
}

func call(id int, tool, args string) string {
	return `{"jsonrpc":"2.0","id":` + strconv.Itoa(id) + `,"method":"tools/call","params":{"name":"` + tool + `","arguments":` + args + `}}`
}

func TestRun_EndToEnd(t *testing.T) {
	cfg := seededConfig(t)
	resps := serve(t, cfg,
		`{"jsonrpc":"2.0","id":0,"method":"initialize","params":{}}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		call(1, "search_conversations", `{"keywords":["ownership"]}`),
		call(2, "store_memory", `{"content":"Lives in Lisbon","category":"personal"}`),
		call(3, "search_memory_by_category", `{"category":"personal"}`),
		call(4, "get_conversation", `{"conversation_id":"missing"}`),
	)
	require.Len(t, resps, 5)

	assert.Contains(t, resps[1].Result.Content[0].Text, "Learning Rust ownership")
	assert.Contains(t, resps[2].Result.Content[0].Text, `"status":"ok"`)
	assert.Contains(t, resps[3].Result.Content[0].Text, "Lives in Lisbon")
	assert.Contains(t, resps[4].Result.Content[0].Text, `"status":"not_found"`)
	assert.False(t, resps[4].Result.IsError)
}

func TestRun_MemoryPersistsAcrossRestarts(t *testing.T) {
	cfg := seededConfig(t)
	serve(t, cfg, call(1, "store_memory", `{"content":"Allergic to peanuts","importance":9}`))

	resps := serve(t, cfg, call(1, "search_memory", `{"keywords":["peanuts"]}`))
	require.Len(t, resps, 1)
	assert.Contains(t, resps[0].Result.Content[0].Text, "Allergic to peanuts")
}

func TestRun_MissingDatabase(t *testing.T) {
	cfg := seededConfig(t)
	cfg.Database.Path = filepath.Join(t.TempDir(), "absent.db")
	err := run(context.Background(), cfg, zap.NewNop(), strings.NewReader(""), &bytes.Buffer{})
	assert.Error(t, err)
}

func TestRun_Cancelled(t *testing.T) {
	cfg := seededConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var out bytes.Buffer
	_ = run(ctx, cfg, zap.NewNop(), strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"ping"}`+"\n"), &out)
	assert.Empty(t, out.String())
}

// fixtureConfig serves conversations from a fixture and keeps memory in
// process, with no database path set.
func fixtureConfig(t *testing.T, fixturePath string) *config.Config {
	t.Helper()
	t.Setenv("LUNA_HISTORY_DATABASE_PATH", "")
	t.Setenv(config.LegacyDBPathEnv, "")
	t.Setenv("LUNA_HISTORY_CONFIG", "")
	t.Setenv("LUNA_HISTORY_SERVER_WEBSOCKET_ADDR", "")
	t.Setenv("LUNA_HISTORY_CONVERSATION_SOURCE", "fixture")
	t.Setenv("LUNA_HISTORY_CONVERSATION_FIXTURE", fixturePath)
	t.Setenv("LUNA_HISTORY_MEMORY_ENGINE", "memory")
	cfg, err := config.LoadConfig("")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	require.False(t, cfg.NeedsDatabase())
	return cfg
}

func TestRun_FixtureSourceWithoutDatabase(t *testing.T) {
	cfg := fixtureConfig(t, "")
	resps := serve(t, cfg,
		call(1, "search_conversations", `{"keywords":["ownership"]}`),
		call(2, "store_memory", `{"content":"Lives in Lisbon","category":"personal"}`),
		call(3, "search_memory", `{"keywords":["lisbon"]}`),
		call(4, "get_message", `{"message_id":4}`),
	)
	require.Len(t, resps, 4)

	assert.Contains(t, resps[0].Result.Content[0].Text, "Learning Rust ownership")
	assert.Contains(t, resps[1].Result.Content[0].Text, `"status":"ok"`)
	assert.Contains(t, resps[2].Result.Content[0].Text, "Lives in Lisbon")
	assert.Contains(t, resps[3].Result.Content[0].Text, "alpha release notes")

	// Memory kept in process does not survive a restart.
	resps = serve(t, cfg, call(1, "search_memory", `{"keywords":["lisbon"]}`))
	require.Len(t, resps, 1)
	assert.NotContains(t, resps[0].Result.Content[0].Text, "Lives in Lisbon")
}

func TestRun_FixtureFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
conversations:
  - id: c-bikes
    title: Fixing a bicycle chain
    created_at: 1700000000
    messages:
      - id: 1
        role: user
        content: The derailleur keeps skipping gears.
        created_at: 1700000000
`), 0o600))

	resps := serve(t, fixtureConfig(t, path),
		call(1, "search_conversation_titles", `{"query":"bicycle"}`),
		call(2, "get_conversation", `{"conversation_id":"c-rust"}`),
	)
	require.Len(t, resps, 2)
	assert.Contains(t, resps[0].Result.Content[0].Text, "c-bikes")
	assert.Contains(t, resps[1].Result.Content[0].Text, `"status":"not_found"`)
}

func TestRun_FixtureFileInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("conversations:\n  - title: no id\n"), 0o600))

	err := run(context.Background(), fixtureConfig(t, path), zap.NewNop(), strings.NewReader(""), &bytes.Buffer{})
	assert.ErrorContains(t, err, "has no id")
}

package fixture

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/scrypster/luna-history/pkg/types"
)

func TestSample_Parses(t *testing.T) {
	f := Sample()
	require.Len(t, f.Conversations, 4)
	assert.Equal(t, "c-rust", f.Conversations[0].ID)
	assert.Empty(t, f.Conversations[3].Messages)
}

func TestParse_RejectsUnknownFields(t *testing.T) {
	_, err := Parse(strings.NewReader("conversations:\n  - id: a\n    colour: red\n"))
	assert.Error(t, err)
}

func TestParse_RequiresIDsAndRoles(t *testing.T) {
	_, err := Parse(strings.NewReader("conversations:\n  - title: no id\n"))
	assert.ErrorContains(t, err, "has no id")

	_, err = Parse(strings.NewReader("conversations:\n  - id: a\n  - id: a\n"))
	assert.ErrorContains(t, err, "duplicate")

	_, err = Parse(strings.NewReader("conversations:\n  - id: a\n    messages:\n      - content: hi\n"))
	assert.ErrorContains(t, err, "has no role")
}

func TestParse_Empty(t *testing.T) {
	f, err := Parse(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, f.Conversations)
}

func TestDomain_AssignsMissingIDs(t *testing.T) {
	f, err := Parse(strings.NewReader(`
conversations:
  - id: a
    messages:
      - {role: user, content: one}
      - {id: 10, role: assistant, content: two}
      - {role: user, content: three}
`))
	require.NoError(t, err)
	_, msgs := f.Domain()
	require.Len(t, msgs, 3)
	assert.Equal(t, []int64{1, 10, 11}, []int64{msgs[0].ID, msgs[1].ID, msgs[2].ID})
	assert.Equal(t, types.RoleAssistant, msgs[1].Role)
}

func TestSeed_MatchesDomainIDs(t *testing.T) {
	ctx := context.Background()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	f := Sample()
	require.NoError(t, Seed(ctx, db, f))

	var convs, msgs int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM conversations`).Scan(&convs))
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&msgs))
	assert.Equal(t, 4, convs)
	assert.Equal(t, 7, msgs)

	// the triggers keep messages_fts in sync
	var hits int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages_fts WHERE messages_fts MATCH '"ownership"'`).Scan(&hits))
	assert.Equal(t, 2, hits)

	_, domain := f.Domain()
	for _, m := range domain {
		var content string
		require.NoError(t, db.QueryRowContext(ctx, `SELECT content FROM messages WHERE id = ?`, m.ID).Scan(&content))
		assert.Equal(t, m.Content, content)
	}
}

package memory

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/GoMudEngine/palaver/internal/conversations"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), `data`, `memory.db`))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestMemories(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	require.NoError(t, s.AddMemory(ctx, `Guard`, `Alice asked about the gate.`, 3))
	require.NoError(t, s.AddMemory(ctx, `guard`, `Bob bribed me.`, 9))
	require.NoError(t, s.AddMemory(ctx, `Smith`, `Sold a sword.`, 0))
	require.Error(t, s.AddMemory(ctx, ``, `nothing`, 1))
	require.Error(t, s.AddMemory(ctx, `Guard`, `  `, 1))

	all, err := s.Memories(ctx, `GUARD`, 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, `Alice asked about the gate.`, all[0].Content)
	assert.Equal(t, MaxSignificance, all[1].Significance)
	assert.False(t, all[0].CreatedAt.IsZero())

	last, err := s.Memories(ctx, `Guard`, 1)
	require.NoError(t, err)
	require.Len(t, last, 1)
	assert.Equal(t, `Bob bribed me.`, last[0].Content)

	smith, err := s.Memories(ctx, `Smith`, 0)
	require.NoError(t, err)
	require.Len(t, smith, 1)
	assert.Equal(t, MinSignificance, smith[0].Significance)
}

func TestSessions(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	require.NoError(t, s.FeedSession(ctx, "Conversation at Village\nAlice: hi\n"))
	require.NoError(t, s.FeedSession(ctx, "   "))
	require.NoError(t, s.FeedSession(ctx, "second"))

	sessions, err := s.Sessions(ctx, 0)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "Conversation at Village\nAlice: hi", sessions[0].Content)
	assert.Equal(t, `second`, sessions[1].Content)
}

func TestProcessInformation(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	source := conversations.InformationSource{
		Messages: []conversations.Message{
			conversations.NewMessage(conversations.RoleUser, `Alice: hello`),
			conversations.NewMessage(conversations.RoleAssistant, `Guard: halt`),
		},
		NPCNames:     []string{`Guard`},
		PlayerNames:  []string{`Alice`, `Bob`},
		LocationName: `Village`,
		Significance: 2,
	}
	require.NoError(t, s.ProcessInformation(ctx, source))

	info, err := s.Information(ctx, `village`)
	require.NoError(t, err)
	require.Len(t, info, 1)
	assert.Equal(t, []string{`Guard`}, info[0].NPCNames)
	assert.Equal(t, []string{`Alice`, `Bob`}, info[0].PlayerNames)
	assert.Equal(t, []string{`Alice: hello`, `Guard: halt`}, info[0].Lines)
	assert.Equal(t, 2, info[0].Significance)

	none, err := s.Information(ctx, `Castle`)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), `memory.db`)
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.AddMemory(ctx, `Guard`, `remember me`, 2))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	all, err := s.Memories(ctx, `Guard`, 0)
	require.NoError(t, err)
	require.Len(t, all, 1)
}

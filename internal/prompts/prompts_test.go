package prompts

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsCoverEveryKey(t *testing.T) {
	p := New()
	for _, key := range []string{NPCResponse, SpeakerSelection, BehavioralDirective, NPCGreeting,
		NPCGoodbye, NPCMemoryGeneration, ConversationSummary, ActionIntent, QuestGivingIntent} {
		assert.NotEmpty(t, p.Get(key, nil), key)
	}
}

func TestGetFillsVariables(t *testing.T) {
	p := New()
	p.Set(`greet`, `{npc_name} greets {target}. {npc_name} smiles.`)

	assert.Equal(t, `Guard greets Alice. Guard smiles.`, p.Get(`greet`, map[string]string{
		`npc_name`: `Guard`,
		`target`:   `Alice`,
	}))
	assert.Equal(t, ``, p.Get(`missing`, nil))
	assert.Equal(t, `{unknown}`, Fill(`{unknown}`, map[string]string{`x`: `y`}))
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), `prompts.yaml`)
	require.NoError(t, os.WriteFile(path, []byte("Prompts:\n  npc_goodbye: Bye from {npc_name}\n"), 0644))

	p, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, `Bye from Guard`, p.Get(NPCGoodbye, map[string]string{`npc_name`: `Guard`}))
	assert.NotEmpty(t, p.Get(NPCGreeting, nil))
	assert.Contains(t, p.Keys(), NPCGoodbye)
}

func TestLoadMissingFileKeepsDefaults(t *testing.T) {
	p, err := Load(filepath.Join(t.TempDir(), `prompts.yaml`))
	require.NoError(t, err)
	assert.Equal(t, New().Get(NPCGoodbye, nil), p.Get(NPCGoodbye, nil))
}

func TestLoadRejectsEmptyPrompt(t *testing.T) {
	path := filepath.Join(t.TempDir(), `prompts.yaml`)
	require.NoError(t, os.WriteFile(path, []byte("Prompts:\n  npc_goodbye: \"\"\n"), 0644))

	_, err := Load(path)
	require.Error(t, err)
}

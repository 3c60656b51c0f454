package usercommands

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/GoMudEngine/palaver/internal/characters"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDescribe(t *testing.T) {
	h := newHarness(t, false)
	dir := t.TempDir()

	book, err := characters.Load(dir)
	require.NoError(t, err)
	require.NoError(t, book.Save(characters.Profile{Name: `Old Smith`, Appearance: `sooty`, Greeting: `Hm?`}))
	h.env.Characters = book

	admin := h.player(`Admin`, 0)
	admin.SetAdmin(true)
	alice := h.player(`Alice`, 0)
	h.npc(`Guard`, 2)

	last := func() string {
		msgs := admin.Messages()
		require.NotEmpty(t, msgs)
		return msgs[len(msgs)-1]
	}

	t.Run("admins only", func(t *testing.T) {
		assert.False(t, h.run(alice, `describe Guard a tall man`))
		_, ok := book.Profile(`Guard`)
		assert.False(t, ok)
	})

	t.Run("existing profile keeps its other fields", func(t *testing.T) {
		require.True(t, h.run(admin, `describe old smith a stooped man with singed brows`))
		assert.Contains(t, last(), `now appears as: a stooped man with singed brows`)

		again, err := characters.Load(dir)
		require.NoError(t, err)
		assert.Equal(t, `a stooped man with singed brows`, again.Appearance(`Old Smith`))
		assert.Equal(t, `Hm?`, again.Greeting(`Old Smith`))
	})

	t.Run("npc without a profile gets one", func(t *testing.T) {
		require.True(t, h.run(admin, `describe guard a tall man in mail`))

		_, err := os.Stat(filepath.Join(dir, `guard.yaml`))
		require.NoError(t, err)
		assert.Equal(t, `a tall man in mail`, book.Appearance(`Guard`))
	})

	t.Run("bad input", func(t *testing.T) {
		h.run(admin, `describe Guard`)
		assert.Contains(t, last(), describeUsage)

		h.run(admin, `describe Nobody at all`)
		assert.Contains(t, last(), `no character called "Nobody"`)
	})

	t.Run("book not on disk", func(t *testing.T) {
		h.env.Characters = characters.NewBook()
		defer func() { h.env.Characters = book }()

		h.run(admin, `describe Guard a short man`)
		assert.Contains(t, last(), `could not save Guard`)
	})
}

package mobinterfaces

import (
	"testing"

	"github.com/GoMudEngine/palaver/internal/world"
	"github.com/stretchr/testify/require"
)

func TestMob(t *testing.T) {
	var npc NPC = NewMob("Guard", world.Position{World: "w", X: 1})

	require.Equal(t, "Guard", npc.GetName())
	require.NotEmpty(t, npc.UniqueId())
	require.True(t, npc.Spawned())

	m := npc.(*Mob)
	m.SetSpawned(false)
	_, ok := m.Position()
	require.False(t, ok)

	other := NewMob("Guard", world.Position{})
	require.NotEqual(t, m.UniqueId(), other.UniqueId())
}

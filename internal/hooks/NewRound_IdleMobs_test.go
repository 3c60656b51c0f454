package hooks

import (
	"context"
	"testing"
	"time"

	"github.com/GoMudEngine/palaver/internal/configs"
	"github.com/GoMudEngine/palaver/internal/conversations"
	"github.com/GoMudEngine/palaver/internal/language"
	"github.com/GoMudEngine/palaver/internal/mobcommands"
	"github.com/GoMudEngine/palaver/internal/mobinterfaces"
	"github.com/GoMudEngine/palaver/internal/realm"
	"github.com/GoMudEngine/palaver/internal/scheduler"
	"github.com/GoMudEngine/palaver/internal/world"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type silentGenerator struct{}

func (silentGenerator) NextSpeaker(context.Context, conversations.Snapshot) (string, error) {
	return ``, nil
}

func (silentGenerator) BehavioralDirective(context.Context, conversations.Snapshot, string) (string, error) {
	return ``, nil
}

func (silentGenerator) NPCResponse(context.Context, string, []string, bool) (string, error) {
	return ``, nil
}

func (silentGenerator) SummarizeConversation(context.Context, conversations.Snapshot) error {
	return nil
}

func (silentGenerator) SummarizeForNPC(context.Context, []conversations.Message, string) error {
	return nil
}

func (silentGenerator) Goodbye(context.Context, string, []conversations.Message) (string, error) {
	return ``, nil
}

func setup(t *testing.T, adjust func(cfg *configs.Conversations)) (*scheduler.Loop, *realm.Realm, *IdleMobs) {
	t.Helper()

	cfg := configs.Default().Conversations
	cfg.ChatEnabled = false
	cfg.ProximityCheckInterval = 3600
	cfg.RadiantChance = 1
	cfg.RadiantTimeout = 0.05
	if adjust != nil {
		adjust(&cfg)
	}

	loop := scheduler.NewLoop(time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	go loop.Run(ctx)
	t.Cleanup(cancel)

	r := realm.New()
	m, err := conversations.NewManager(conversations.Options{
		Loop:      loop,
		Directory: r,
		Generator: silentGenerator{},
		Notices:   language.NewNotices(`en`),
		Config:    &cfg,
	})
	require.NoError(t, err)

	return loop, r, NewIdleMobs(&mobcommands.Env{Manager: m, Realm: r})
}

func addNPC(r *realm.Realm, name string, x float64) *mobinterfaces.Mob {
	m := mobinterfaces.NewMob(name, world.Position{World: `overworld`, X: x})
	r.AddNPC(m)
	return m
}

func TestIdleMobsStartRadiantExchanges(t *testing.T) {
	loop, r, hook := setup(t, nil)
	guard := addNPC(r, `Guard`, 0)
	smith := addNPC(r, `Smith`, 2)
	hermit := addNPC(r, `Hermit`, 500)

	var c *conversations.Conversation
	var radiant bool
	loop.Call(func() {
		hook.OnRound(1)
		if c = hook.env.Manager.ConversationOfNPC(guard); c != nil {
			radiant = c.Radiant
		}
	})
	require.NotNil(t, c)
	assert.True(t, radiant)

	assert.True(t, hook.CoolingDown(guard.UniqueId()))
	assert.True(t, hook.CoolingDown(smith.UniqueId()))
	// it rolled and tried, but nobody was around
	assert.True(t, hook.CoolingDown(hermit.UniqueId()))

	require.Eventually(t, func() bool {
		var busy bool
		loop.Call(func() { busy = hook.env.Manager.NPCInConversation(guard) })
		return !busy
	}, time.Second, 5*time.Millisecond)

	// cooling down, so nothing new starts
	var busy bool
	loop.Call(func() {
		hook.OnRound(2)
		busy = hook.env.Manager.NPCInConversation(guard)
	})
	assert.False(t, busy)
}

func TestIdleMobsHonoursConfig(t *testing.T) {
	t.Run("radiant disabled", func(t *testing.T) {
		loop, r, hook := setup(t, func(cfg *configs.Conversations) { cfg.RadiantEnabled = false })
		guard := addNPC(r, `Guard`, 0)
		addNPC(r, `Smith`, 2)

		loop.Call(func() { hook.OnRound(1) })
		assert.False(t, hook.CoolingDown(guard.UniqueId()))
	})

	t.Run("disabled npcs are left alone", func(t *testing.T) {
		loop, r, hook := setup(t, nil)
		guard := addNPC(r, `Guard`, 0)
		smith := addNPC(r, `Smith`, 2)
		guard.SetDisabled(true)
		smith.SetDisabled(true)

		loop.Call(func() { hook.OnRound(1) })
		assert.False(t, hook.CoolingDown(guard.UniqueId()))
		assert.False(t, hook.CoolingDown(smith.UniqueId()))
	})
}

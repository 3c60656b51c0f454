package mobcommands

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/GoMudEngine/palaver/internal/configs"
	"github.com/GoMudEngine/palaver/internal/conversations"
	"github.com/GoMudEngine/palaver/internal/language"
	"github.com/GoMudEngine/palaver/internal/mobinterfaces"
	"github.com/GoMudEngine/palaver/internal/realm"
	"github.com/GoMudEngine/palaver/internal/scheduler"
	"github.com/GoMudEngine/palaver/internal/users"
	"github.com/GoMudEngine/palaver/internal/world"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type quietGenerator struct{}

func (quietGenerator) NextSpeaker(ctx context.Context, conv conversations.Snapshot) (string, error) {
	return ``, nil
}

func (quietGenerator) BehavioralDirective(ctx context.Context, conv conversations.Snapshot, npcName string) (string, error) {
	return ``, nil
}

func (quietGenerator) NPCResponse(ctx context.Context, npcName string, lines []string, streaming bool) (string, error) {
	return ``, nil
}

func (quietGenerator) SummarizeConversation(ctx context.Context, conv conversations.Snapshot) error {
	return nil
}

func (quietGenerator) SummarizeForNPC(ctx context.Context, history []conversations.Message, npcName string) error {
	return nil
}

func (quietGenerator) Goodbye(ctx context.Context, npcName string, history []conversations.Message) (string, error) {
	return ``, nil
}

type greeter struct {
	err error
}

func (g greeter) Greeting(ctx context.Context, npcName string, target string) (string, error) {
	if g.err != nil {
		return ``, g.err
	}
	return `Well met, ` + target + `.`, nil
}

type harness struct {
	loop  *scheduler.Loop
	realm *realm.Realm
	env   *Env
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	cfg := configs.Default().Conversations
	cfg.ChatEnabled = false
	cfg.ProximityCheckInterval = 3600
	cfg.RadiantTimeout = 0.2

	loop := scheduler.NewLoop(time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	go loop.Run(ctx)
	t.Cleanup(cancel)

	r := realm.New()
	m, err := conversations.NewManager(conversations.Options{
		Loop:      loop,
		Directory: r,
		Generator: quietGenerator{},
		Notices:   language.NewNotices(`en`),
		Config:    &cfg,
	})
	require.NoError(t, err)

	return &harness{
		loop:  loop,
		realm: r,
		env:   &Env{Manager: m, Realm: r, Greeter: greeter{}},
	}
}

func at(x float64) world.Position {
	return world.Position{World: `overworld`, X: x}
}

func (h *harness) npc(name string, x float64) *mobinterfaces.Mob {
	m := mobinterfaces.NewMob(name, at(x))
	h.realm.AddNPC(m)
	return m
}

func (h *harness) player(name string, x float64) *users.UserRecord {
	u := users.NewUserRecord(name, at(x))
	h.realm.AddPlayer(u)
	return u
}

func (h *harness) converse(t *testing.T, mob *mobinterfaces.Mob, rest string) {
	t.Helper()
	var handled bool
	var err error
	h.loop.Call(func() { handled, err = Run(`converse `+rest, mob, h.env) })
	require.NoError(t, err)
	require.True(t, handled)
}

func (h *harness) conversationOf(npc mobinterfaces.NPC) *conversations.Conversation {
	var c *conversations.Conversation
	h.loop.Call(func() { c = h.env.Manager.ConversationOfNPC(npc) })
	return c
}

func TestRunUnknownCommand(t *testing.T) {
	h := newHarness(t)
	handled, err := Run(`dance`, h.npc(`Guard`, 0), h.env)
	require.NoError(t, err)
	assert.False(t, handled)
}

func TestConverseStartsRadiantExchange(t *testing.T) {
	h := newHarness(t)
	guard := h.npc(`Guard`, 0)
	smith := h.npc(`Smith`, 3)

	h.converse(t, guard, ``)

	c := h.conversationOf(guard)
	require.NotNil(t, c)
	assert.Same(t, c, h.conversationOf(smith))

	var radiant bool
	h.loop.Call(func() { radiant = c.Radiant })
	assert.True(t, radiant)

	require.Eventually(t, func() bool { return h.conversationOf(guard) == nil }, time.Second, 5*time.Millisecond)
}

func TestConversePicksNamedPartner(t *testing.T) {
	h := newHarness(t)
	guard := h.npc(`Guard`, 0)
	smith := h.npc(`Smith`, 2)
	baker := h.npc(`Baker`, 4)

	h.converse(t, guard, `baker`)

	assert.Nil(t, h.conversationOf(smith))
	assert.Same(t, h.conversationOf(guard), h.conversationOf(baker))
}

func TestConverseSkipsBusyAndDistantNPCs(t *testing.T) {
	h := newHarness(t)
	guard := h.npc(`Guard`, 0)
	smith := h.npc(`Smith`, 2)
	baker := h.npc(`Baker`, 3)
	h.npc(`Hermit`, 50)

	h.loop.Call(func() {
		cfg := h.env.Manager.Config()
		cfg.RadiantTimeout = 60
		h.env.Manager.SetConfig(cfg)
	})

	h.converse(t, smith, `baker`)
	require.NotNil(t, h.conversationOf(baker))

	h.converse(t, guard, ``)
	assert.Nil(t, h.conversationOf(guard))
}

func TestConverseJoinsPlayersConversation(t *testing.T) {
	h := newHarness(t)
	alice := h.player(`Alice`, 0)
	guard := h.npc(`Guard`, 1)
	smith := h.npc(`Smith`, 30)

	var c *conversations.Conversation
	h.loop.Call(func() { c, _ = h.env.Manager.Start(alice, guard) })

	smith.MoveTo(at(5))
	h.converse(t, smith, ``)

	require.Eventually(t, func() bool { return h.conversationOf(smith) == c }, time.Second, 5*time.Millisecond)

	var lines []string
	h.loop.Call(func() { lines = c.Snapshot().Lines() })
	assert.Contains(t, lines, `Smith: Well met, Alice.`)

	found := false
	for _, msg := range alice.Messages() {
		found = found || strings.Contains(msg, `Well met, Alice.`)
	}
	assert.True(t, found)
}

func TestConverseJoinsWithoutGreetingOnError(t *testing.T) {
	h := newHarness(t)
	h.env.Greeter = greeter{err: errors.New(`backend down`)}
	alice := h.player(`Alice`, 0)
	guard := h.npc(`Guard`, 1)

	var c *conversations.Conversation
	h.loop.Call(func() { c, _ = h.env.Manager.Start(alice, guard) })

	// Guard is busy, so Smith has no NPC to talk to
	smith := h.npc(`Smith`, 4)
	h.converse(t, smith, ``)

	require.Eventually(t, func() bool { return h.conversationOf(smith) == c }, time.Second, 5*time.Millisecond)

	var npcLines int
	h.loop.Call(func() {
		for _, msg := range c.History() {
			if msg.Role == conversations.RoleAssistant {
				npcLines++
			}
		}
	})
	assert.Zero(t, npcLines)
}

func TestDisabledNPCDoesNothing(t *testing.T) {
	h := newHarness(t)
	guard := h.npc(`Guard`, 0)
	h.npc(`Smith`, 2)
	guard.SetDisabled(true)

	h.converse(t, guard, ``)
	assert.Nil(t, h.conversationOf(guard))
}

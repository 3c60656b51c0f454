package mobcommands

import (
	"context"
	"strings"

	"github.com/GoMudEngine/palaver/internal/conversations"
	"github.com/GoMudEngine/palaver/internal/mobinterfaces"
	"github.com/GoMudEngine/palaver/internal/mudlog"
	"github.com/GoMudEngine/palaver/internal/scheduler"
	"github.com/GoMudEngine/palaver/internal/world"
)

// Converse has an idle NPC strike up a conversation. It prefers another idle
// NPC nearby, which makes a radiant exchange. Failing that it wanders into a
// conversation a nearby player is having and greets them.
//
// rest optionally names who to talk to.
func Converse(rest string, mob *mobinterfaces.Mob, env *Env) (bool, error) {
	m := env.Manager

	if mob.Disabled() || m.NPCInConversation(mob) {
		return true, nil
	}

	pos, ok := mob.Position()
	if !ok {
		return true, nil
	}

	cfg := m.Config()
	target := strings.TrimSpace(rest)

	for _, other := range env.Realm.NPCsNear(pos, float64(cfg.RadiantRadius)) {
		if other.UniqueId() == mob.UniqueId() { // no conversing with self
			continue
		}
		if target != `` && !strings.EqualFold(other.GetName(), target) {
			continue
		}
		// Not allowed to start another conversation until this one concludes
		if m.NPCInConversation(other) {
			continue
		}

		if _, ok := m.StartRadiant(mob, other); ok {
			mudlog.Debug("Converse", "npc", mob.GetName(), "partner", other.GetName())
		}
		return true, nil
	}

	// If no mob conversation partner found, try with players
	for _, p := range env.Realm.PlayersNear(pos, float64(cfg.ChatRadius)) {
		if target != `` && !strings.EqualFold(p.Name(), target) && !strings.EqualFold(env.Realm.Nickname(p.Id()), target) {
			continue
		}
		c := m.ConversationOf(p.Id())
		if c == nil || c.HasNPC(mob) {
			continue
		}

		join(mob, p, c, env)
		return true, nil
	}

	return true, nil
}

// join greets the player once the greeting is written, then joins.
func join(mob *mobinterfaces.Mob, p world.Player, c *conversations.Conversation, env *Env) {
	m := env.Manager

	if env.Greeter == nil {
		m.JoinNPC(mob, c, ``)
		return
	}

	name := mob.GetName()
	nick := env.Realm.Nickname(p.Id())
	timeout := m.Config().GenerationTimeoutDuration()

	scheduler.Async(m.Loop(), func() (string, error) {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return env.Greeter.Greeting(ctx, name, nick)
	}, func(greeting string, err error) {
		if err != nil {
			mudlog.Warn("Converse", "npc", name, "call", "Greeting", "error", err)
			greeting = ``
		}
		// things may have moved on while the greeting was written
		if m.NPCInConversation(mob) {
			return
		}
		m.JoinNPC(mob, c, strings.TrimSpace(greeting))
	})
}

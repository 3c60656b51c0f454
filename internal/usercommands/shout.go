package usercommands

import (
	"fmt"
	"strings"

	"github.com/GoMudEngine/palaver/internal/mobinterfaces"
	"github.com/GoMudEngine/palaver/internal/mudlog"
	"github.com/GoMudEngine/palaver/internal/users"
	"github.com/GoMudEngine/palaver/internal/world"
)

// Shout carries twice as far as Say. Every idle NPC that hears it is drawn
// into the shouter's conversation.
func Shout(rest string, user *users.UserRecord, env *Env) (bool, error) {
	if rest == `` {
		user.SendText(`Shout what?`)
		return true, nil
	}

	pos, ok := user.Position()
	if !ok {
		return true, errNowhere
	}

	rest = strings.ToUpper(rest)
	radius := 2 * float64(env.Manager.Config().ChatRadius)

	user.SendText(fmt.Sprintf(`You shout, "<ansi fg="yellow">%s</ansi>"`, rest))
	env.broadcast(user, pos, radius, fmt.Sprintf(`<ansi fg="username">%s</ansi> shouts, "<ansi fg="yellow">%s</ansi>"`, user.Nickname(), rest))

	m := env.Manager
	c := converse(rest, user, pos, radius, env)
	listeners := idleNPCsNear(env, pos, radius)

	mudlog.Debug("Shout", "user", user.Name(), "idleListeners", len(listeners))

	if c == nil {
		if len(listeners) == 0 {
			return true, nil
		}
		started, ok := m.Start(user, listeners...)
		if !ok {
			return true, nil
		}
		m.AddPlayerMessage(user, started, rest)
		return true, nil
	}

	for _, npc := range listeners {
		m.JoinNPC(npc, c, ``)
	}

	return true, nil
}

// idleNPCsNear are the NPCs within radius that are not in a conversation.
func idleNPCsNear(env *Env, pos world.Position, radius float64) []mobinterfaces.NPC {
	out := []mobinterfaces.NPC{}
	for _, mob := range env.Realm.NPCsNear(pos, radius) {
		if !env.Manager.NPCInConversation(mob) {
			out = append(out, mob)
		}
	}
	return out
}

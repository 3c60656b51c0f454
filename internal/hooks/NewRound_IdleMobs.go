// Round ticks for NPCs
package hooks

import (
	"time"

	"github.com/GoMudEngine/palaver/internal/mobcommands"
	"github.com/GoMudEngine/palaver/internal/mudlog"
	"github.com/GoMudEngine/palaver/internal/util"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	maxCooldowns  = 4096
	slowRoundWarn = 50 * time.Millisecond
)

//
// Handle mobs that are bored
//

// IdleMobs gives every idle NPC a chance each round to strike up a
// conversation. An NPC that tries waits out the radiant cooldown before it
// tries again, and so does everyone it ended up talking to.
type IdleMobs struct {
	env      *mobcommands.Env
	cooldown *expirable.LRU[string, struct{}]
}

func NewIdleMobs(env *mobcommands.Env) *IdleMobs {
	ttl := env.Manager.Config().RadiantCooldownDuration()
	return &IdleMobs{
		env:      env,
		cooldown: expirable.NewLRU[string, struct{}](maxCooldowns, nil, ttl),
	}
}

// OnRound runs on the world loop once per round.
func (h *IdleMobs) OnRound(round uint64) {
	m := h.env.Manager

	cfg := m.Config()
	if !cfg.RadiantEnabled {
		return
	}

	tStart := time.Now()
	for _, mob := range h.env.Realm.NPCs() {

		if !mob.Spawned() || mob.Disabled() {
			continue
		}

		// Already talking, nothing to do
		if m.NPCInConversation(mob) {
			continue
		}

		if h.CoolingDown(mob.UniqueId()) {
			continue
		}

		if util.Rand(int(cfg.RadiantChance)) != 0 {
			continue
		}

		h.cooldown.Add(mob.UniqueId(), struct{}{})

		if _, err := mobcommands.Run(`converse`, mob, h.env); err != nil {
			mudlog.Error("IdleMobs", "npc", mob.GetName(), "error", err)
			continue
		}

		if c := m.ConversationOfNPC(mob); c != nil {
			for _, npc := range c.NPCs() {
				h.cooldown.Add(npc.UniqueId(), struct{}{})
			}
		}
	}

	if took := time.Since(tStart); took > slowRoundWarn {
		mudlog.Warn("IdleMobs", "round", round, "took", took.String())
	}
}

func (h *IdleMobs) CoolingDown(npcUniqueId string) bool {
	return h.cooldown.Contains(npcUniqueId)
}

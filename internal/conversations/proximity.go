package conversations

import (
	"github.com/GoMudEngine/palaver/internal/language"
	"github.com/GoMudEngine/palaver/internal/mudlog"
	"github.com/GoMudEngine/palaver/internal/world"
)

func (m *Manager) scheduleProximity(c *Conversation) {
	if t, ok := m.proximity[c]; ok {
		t.Cancel()
	}
	m.proximity[c] = m.loop.Every(m.cfg.ProximityInterval(), func() {
		m.checkProximity(c)
	})
}

// checkProximity drops NPCs that despawned and players that wandered off or
// went offline. A conversation left without players ends here unless it is
// radiant, which ends on its own timer.
func (m *Manager) checkProximity(c *Conversation) {
	if !c.Active() {
		return
	}

	for _, npc := range c.NPCs() {
		if npc.Spawned() {
			continue
		}
		mudlog.Info("Conversation", "id", c.Id, "despawned", npc.GetName())
		m.RemoveNPC(npc, c)
		if !c.Active() {
			return
		}
	}

	if c.PlayerCount() == 0 {
		if !c.Radiant {
			mudlog.Info("Conversation", "id", c.Id, "info", "no players left")
			m.End(c, false)
		}
		return
	}

	radius := float64(m.cfg.ChatRadius)

	for _, id := range c.Players() {
		p, ok := m.dir.Player(id)
		if !ok {
			mudlog.Info("Conversation", "id", c.Id, "offline", string(id))
			m.removePlayer(id, c)
			if !c.Active() {
				return
			}
			continue
		}

		pos, ok := p.Position()
		if ok && m.isNear(c, id, pos, radius) {
			continue
		}

		mudlog.Info("Conversation", "id", c.Id, "movedAway", p.Name())
		p.SendText(m.notices.Text(language.MovedAway, nil))
		m.removePlayer(id, c)
		if !c.Active() {
			return
		}
	}
}

// isNear checks the player against the NPCs, or against the other players
// when there are no NPCs.
func (m *Manager) isNear(c *Conversation, self world.PlayerId, pos world.Position, radius float64) bool {
	if c.NPCCount() > 0 {
		for _, npc := range c.NPCs() {
			if npcPos, ok := m.dir.PresentationEntity(npc).Position(); ok && npcPos.Within(pos, radius) {
				return true
			}
		}
		return false
	}

	for _, other := range c.Players() {
		if other == self {
			continue
		}
		op, ok := m.dir.Player(other)
		if !ok {
			continue
		}
		if otherPos, ok := op.Position(); ok && otherPos.Within(pos, radius) {
			return true
		}
	}
	return false
}

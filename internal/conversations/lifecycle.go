package conversations

import (
	"context"
	"fmt"

	"github.com/GoMudEngine/palaver/internal/language"
	"github.com/GoMudEngine/palaver/internal/mobinterfaces"
	"github.com/GoMudEngine/palaver/internal/mudlog"
	"github.com/GoMudEngine/palaver/internal/world"
)

// Start begins a conversation between a player and some NPCs. A player is
// only ever in one conversation, so any conversation they are already in is
// ended first.
//
// If a policy vetoes the start, the conversation has already been registered
// and is ended again. It is still returned, along with false.
func (m *Manager) Start(initiator world.Player, npcs ...mobinterfaces.NPC) (*Conversation, bool) {
	return m.start([]world.Player{initiator}, npcs)
}

// StartNPCOnly begins a conversation with no players in it.
func (m *Manager) StartNPCOnly(npcs ...mobinterfaces.NPC) (*Conversation, bool) {
	return m.start(nil, npcs)
}

// StartRadiant begins an ambient NPC only conversation that is ended after
// the radiant timeout no matter what is happening in it.
func (m *Manager) StartRadiant(npcs ...mobinterfaces.NPC) (*Conversation, bool) {
	c, ok := m.start(nil, npcs)
	if !ok {
		return c, false
	}

	c.Radiant = true
	m.timeouts[c.Id] = m.loop.After(m.cfg.RadiantTimeoutDuration(), func() {
		delete(m.timeouts, c.Id)
		mudlog.Debug("Conversation", "id", c.Id, "info", "radiant conversation timed out")
		m.End(c, false)
	})

	return c, true
}

// StartPlayerToPlayer begins a conversation between players only.
// Targets already in a conversation leave it.
func (m *Manager) StartPlayerToPlayer(initiator world.Player, targets ...world.Player) (*Conversation, bool) {
	return m.start(append([]world.Player{initiator}, targets...), nil)
}

func (m *Manager) start(players []world.Player, npcs []mobinterfaces.NPC) (*Conversation, bool) {

	for i, p := range players {
		existing := m.repo.FindByPlayer(p.Id())
		if existing == nil {
			continue
		}
		if i == 0 {
			mudlog.Info("Conversation", "id", existing.Id, "info", fmt.Sprintf("%s started a new conversation, ending this one", p.Name()))
			m.End(existing, false)
			continue
		}
		m.removePlayer(p.Id(), existing)
	}

	c := NewConversation(m.dir)
	if !m.cfg.ChatEnabled {
		c.ChatEnabled = false
	}
	for _, p := range players {
		c.AddPlayer(p.Id())
	}
	for _, npc := range npcs {
		c.AddNPC(npc)
	}

	m.repo.Register(c)
	m.scheduleProximity(c)

	mudlog.Info("Conversation", "id", c.Id, "started", "true", "players", c.PlayerNames(), "npcs", c.NPCNames())

	for _, p := range players {
		p.SendText(m.notices.Text(language.ConversationStarted, map[string]any{
			"Participants": language.ListNames(m.othersThan(c, m.dir.Nickname(p.Id()))),
		}))
	}

	subject := ``
	if len(players) > 0 {
		subject = m.dir.Nickname(players[0].Id())
	}

	if !m.allow(newEvent(EventStart, c, subject)) {
		if len(players) > 0 {
			players[0].SendText(m.notices.Text(language.StartVetoed, nil))
		}
		m.End(c, false)
		return c, false
	}

	m.refreshCues(c)

	return c, true
}

// othersThan lists every participant name except name.
func (m *Manager) othersThan(c *Conversation, name string) []string {
	out := []string{}
	for _, n := range append(c.NPCNames(), c.PlayerNames()...) {
		if n != name {
			out = append(out, n)
		}
	}
	return out
}

// JoinPlayer adds a player to a conversation, moving them out of any other
// one. A non empty greeting becomes their first line.
func (m *Manager) JoinPlayer(p world.Player, c *Conversation, greeting string) bool {
	if c == nil || !c.Active() || c.HasPlayer(p.Id()) {
		return false
	}

	nick := m.dir.Nickname(p.Id())

	if !m.allow(newEvent(EventPlayerJoin, c, nick)) {
		p.SendText(m.notices.Text(language.JoinVetoed, nil))
		return false
	}

	if old := m.repo.FindByPlayer(p.Id()); old != nil && old != c {
		m.removePlayer(p.Id(), old)
	}

	c.AddPlayer(p.Id())
	if greeting != `` {
		c.AddPlayerMessage(p.Id(), greeting)
	}

	m.announceJoin(c, p.Id(), nick)
	c.AddSystemMessage(fmt.Sprintf("%s joined the conversation.", nick))

	mudlog.Info("Conversation", "id", c.Id, "joined", nick)

	return true
}

// JoinNPC adds an NPC to a conversation. A non empty greeting is spoken
// straight away.
func (m *Manager) JoinNPC(npc mobinterfaces.NPC, c *Conversation, greeting string) bool {
	if npc == nil || c == nil || !c.Active() || c.HasNPC(npc) {
		return false
	}

	name := npc.GetName()

	if !m.allow(newEvent(EventNPCJoin, c, name)) {
		return false
	}

	c.AddNPC(npc)
	if greeting != `` {
		c.AddNPCMessage(npc, greeting)
		m.voice.Speak(npc, greeting, m.online(c.Players()))
	}

	m.announceJoin(c, ``, name)
	c.AddSystemMessage(fmt.Sprintf("%s joined the conversation.", name))
	m.presenter.ShowListening(npc)

	mudlog.Info("Conversation", "id", c.Id, "joined", name)

	return true
}

func (m *Manager) announceJoin(c *Conversation, joiner world.PlayerId, name string) {
	for _, p := range m.online(c.Players()) {
		if p.Id() == joiner {
			p.SendText(m.notices.Text(language.ConversationJoined, map[string]any{
				"Participants": language.ListNames(m.othersThan(c, name)),
			}))
			continue
		}
		p.SendText(m.notices.Text(language.ParticipantJoined, map[string]any{"Name": name}))
	}
}

// RemoveNPC takes an NPC out of a conversation. The conversation ends when
// its last NPC leaves, otherwise the NPC remembers what it heard.
func (m *Manager) RemoveNPC(npc mobinterfaces.NPC, c *Conversation) bool {
	if c == nil || !c.RemoveNPC(npc) {
		return false
	}

	name := npc.GetName()

	m.presenter.Cleanup(npc)
	m.tell(c.Players(), language.ParticipantLeft, map[string]any{"Name": name})
	c.AddSystemMessage(fmt.Sprintf("%s left the conversation.", name))

	mudlog.Info("Conversation", "id", c.Id, "left", name)

	if c.NPCCount() == 0 {
		m.End(c, false)
		return true
	}

	history := c.History()
	m.async(c, "SummarizeForNPC", func(ctx context.Context) error {
		return m.gen.SummarizeForNPC(ctx, history, name)
	})

	m.refreshCues(c)

	return true
}

// RemovePlayer takes a player out of a conversation, ending it when they
// were the last player. The departing player is still told it ended.
func (m *Manager) RemovePlayer(p world.Player, c *Conversation) bool {
	return m.removePlayer(p.Id(), c)
}

func (m *Manager) removePlayer(id world.PlayerId, c *Conversation) bool {
	if c == nil || !c.RemovePlayer(id) {
		return false
	}

	nick := m.dir.Nickname(id)

	m.tell(c.Players(), language.ParticipantLeft, map[string]any{"Name": nick})
	c.AddSystemMessage(fmt.Sprintf("%s left the conversation.", nick))

	mudlog.Info("Conversation", "id", c.Id, "left", nick)

	if c.PlayerCount() == 0 {
		m.end(c, false, []world.PlayerId{id})
		return true
	}

	m.refreshCues(c)

	return true
}

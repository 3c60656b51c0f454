package conversations

import (
	"context"
	"fmt"
	"strings"

	"github.com/GoMudEngine/palaver/internal/language"
	"github.com/GoMudEngine/palaver/internal/mobinterfaces"
	"github.com/GoMudEngine/palaver/internal/mudlog"
	"github.com/GoMudEngine/palaver/internal/scheduler"
	"github.com/GoMudEngine/palaver/internal/world"
)

// TypingEndMarker tells streaming clients to close any open dialogue for the NPC.
func TypingEndMarker(npc mobinterfaces.NPC) string {
	return fmt.Sprintf("<npc_typing_end>id:%s", npc.UniqueId())
}

// End finishes a conversation. Conversations with more than two non system
// lines are remembered first unless skipMemory is set. The returned future
// resolves to true once the conversation is gone, or straight away to false
// if it was already ending.
func (m *Manager) End(c *Conversation, skipMemory bool) *scheduler.Future[bool] {
	return m.end(c, skipMemory, nil)
}

// end also tells extra players about the ending, for players who just left.
func (m *Manager) end(c *Conversation, skipMemory bool, extra []world.PlayerId) *scheduler.Future[bool] {
	if c == nil {
		return scheduler.Completed(false)
	}

	if c.Id < 0 {
		c.state = StateEnded
		return scheduler.Completed(false)
	}

	if _, already := m.ending.LoadOrStore(c.Id, struct{}{}); already {
		mudlog.Debug("Conversation", "id", c.Id, "info", "already ending")
		return scheduler.Completed(false)
	}

	c.state = StateEnding
	m.cancelTasks(c)

	recipients := func() []world.PlayerId {
		return append(c.Players(), extra...)
	}

	if m.cfg.Streaming && c.lastSpeaking != nil {
		marker := TypingEndMarker(c.lastSpeaking)
		for _, p := range m.online(recipients()) {
			p.SendText(marker)
		}
	}

	done := scheduler.NewFuture[bool]()

	if skipMemory || c.NonSystemCount() <= 2 {
		mudlog.Info("Conversation", "id", c.Id, "ending", "true", "remembered", "false")
		m.cleanup(c, recipients())
		done.Resolve(true, nil)
		return done
	}

	mudlog.Info("Conversation", "id", c.Id, "ending", "true", "remembered", "true")

	ending := m.notices.Text(language.ConversationEnding, nil)
	for _, p := range m.online(recipients()) {
		p.SendText(ending)
		m.observe(newEvent(EventEnd, c, m.dir.Nickname(p.Id())))
	}

	location := ``
	if npcs := c.NPCs(); len(npcs) > 0 {
		location = m.dir.LocationName(npcs[0])
	}
	if location == `` {
		location = string(m.cfg.DefaultLocation)
	}

	snap := c.Snapshot()

	source := InformationSource{
		Messages:     spokenLines(snap.History),
		NPCNames:     snap.NPCNames,
		PlayerNames:  snap.PlayerNames,
		LocationName: location,
		Significance: Significance(len(snap.History), len(snap.NPCNames)),
	}
	m.async(c, "ProcessInformation", func(ctx context.Context) error {
		return m.memory.ProcessInformation(ctx, source)
	})

	digest := sessionDigest(snap, location)
	m.async(c, "FeedSession", func(ctx context.Context) error {
		return m.sessions.FeedSession(ctx, digest)
	})

	scheduler.Async(m.loop, func() (struct{}, error) {
		ctx, cancel := m.callContext()
		defer cancel()
		return struct{}{}, m.gen.SummarizeConversation(ctx, snap)
	}, func(_ struct{}, err error) {
		if err != nil {
			mudlog.Error("Conversation", "id", c.Id, "call", "SummarizeConversation", "error", err)
		}
		m.cleanup(c, recipients())
		done.Resolve(true, nil)
	})

	return done
}

func (m *Manager) cleanup(c *Conversation, recipients []world.PlayerId) {
	m.tell(recipients, language.ConversationEnded, nil)
	m.releaseCues(c)
	m.repo.Remove(c)
	c.state = StateEnded

	mudlog.Info("Conversation", "id", c.Id, "ended", "true")
}

// cancelTasks stops every schedule belonging to the conversation. A response
// already being generated is left to finish on its own.
func (m *Manager) cancelTasks(c *Conversation) {
	if t, ok := m.proximity[c]; ok {
		t.Cancel()
		delete(m.proximity, c)
	}
	if t, ok := m.timeouts[c.Id]; ok {
		t.Cancel()
		delete(m.timeouts, c.Id)
	}
	if t, ok := m.debounce[c.Id]; ok {
		t.Cancel()
		delete(m.debounce, c.Id)
	}
	for _, g := range m.queued[c.Id] {
		g.done.Resolve(struct{}{}, nil)
	}
	delete(m.queued, c.Id)
}

// EndGracefully lets the last NPC to speak say goodbye before ending.
func (m *Manager) EndGracefully(c *Conversation) *scheduler.Future[bool] {
	if c == nil || !c.Active() {
		return scheduler.Completed(false)
	}

	speaker := c.LastSpeakingNPC()
	if speaker == nil && c.NPCCount() > 0 {
		speaker = c.NPCs()[0]
	}
	if speaker == nil {
		return m.End(c, false)
	}

	done := scheduler.NewFuture[bool]()
	name := speaker.GetName()
	history := c.History()

	scheduler.Async(m.loop, func() (string, error) {
		ctx, cancel := m.callContext()
		defer cancel()
		return m.gen.Goodbye(ctx, name, history)
	}, func(line string, err error) {
		line = strings.TrimSpace(line)
		switch {
		case err != nil:
			mudlog.Error("Conversation", "id", c.Id, "call", "Goodbye", "error", err)
		case line != `` && c.Active() && c.HasNPC(speaker):
			c.AddNPCMessage(speaker, line)
			m.voice.Speak(speaker, line, m.online(c.Players()))
		}
		m.End(c, false).Then(m.loop, func(ended bool, err error) {
			done.Resolve(ended, err)
		})
	})

	return done
}

// EndAll ends every active conversation.
func (m *Manager) EndAll(skipMemory bool) []*scheduler.Future[bool] {
	futures := []*scheduler.Future[bool]{}
	for _, c := range m.repo.ListActive() {
		futures = append(futures, m.End(c, skipMemory))
	}
	return futures
}

// Shutdown ends everything without remembering it, abandons calls in flight
// and clears all tracking. The manager can be used again afterwards.
func (m *Manager) Shutdown() {
	m.cancel()

	for _, c := range m.repo.All() {
		m.cancelTasks(c)
		if c.Active() {
			m.End(c, true)
		}
	}
	for _, c := range m.repo.All() {
		m.releaseCues(c)
		c.state = StateEnded
	}
	m.repo.Reset()

	m.resetState()

	mudlog.Info("Conversation", "info", "shutdown complete")
}

// spokenLines drops system lines and placeholders.
func spokenLines(history []Message) []Message {
	out := make([]Message, 0, len(history))
	for _, msg := range history {
		if msg.IsSystem() || msg.IsPlaceholder() {
			continue
		}
		out = append(out, msg)
	}
	return out
}

// lastSpoken returns up to n of the most recent spoken lines, oldest first.
func lastSpoken(history []Message, n int) []Message {
	out := []Message{}
	for i := len(history) - 1; i >= 0 && len(out) < n; i-- {
		if history[i].IsSystem() || history[i].IsPlaceholder() {
			continue
		}
		out = append([]Message{history[i]}, out...)
	}
	return out
}

func sessionDigest(s Snapshot, location string) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Conversation at %s\n", location))
	if len(s.PlayerNames) > 0 {
		sb.WriteString(fmt.Sprintf("Players: %s\n", strings.Join(s.PlayerNames, ", ")))
	}
	if len(s.NPCNames) > 0 {
		sb.WriteString(fmt.Sprintf("NPCs: %s\n", strings.Join(s.NPCNames, ", ")))
	}
	for _, msg := range spokenLines(s.History) {
		sb.WriteString(msg.Content)
		sb.WriteString("\n")
	}

	return sb.String()
}

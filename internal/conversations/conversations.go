package conversations

import (
	"fmt"
	"strings"
	"time"

	"github.com/GoMudEngine/palaver/internal/mobinterfaces"
	"github.com/GoMudEngine/palaver/internal/world"
)

type State int

const (
	StateActive State = iota
	StateEnding
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateEnding:
		return "ending"
	case StateEnded:
		return "ended"
	}
	return "unknown"
}

// Nicknamer resolves the name a player is shown as.
type Nicknamer interface {
	Nickname(id world.PlayerId) string
}

// Conversation is a dialogue between players and NPCs. It is owned by the
// world loop and is not safe for use from other goroutines.
type Conversation struct {
	Id          int // -1 until registered
	ChatEnabled bool
	Radiant     bool
	StartedAt   time.Time

	players  []world.PlayerId
	npcs     []mobinterfaces.NPC
	npcNames []string
	muted    map[string]struct{}
	history  []Message
	state    State

	lastSpeaking mobinterfaces.NPC
	nicknames    Nicknamer
}

// NewConversation makes an unregistered conversation with chat enabled.
func NewConversation(nicknames Nicknamer) *Conversation {
	return &Conversation{
		Id:          -1,
		ChatEnabled: true,
		StartedAt:   time.Now(),
		muted:       map[string]struct{}{},
		nicknames:   nicknames,
	}
}

// State is where the conversation is in its lifecycle.
func (c *Conversation) State() State {
	return c.state
}

// Active is true until the conversation starts ending.
func (c *Conversation) Active() bool {
	return c.state == StateActive
}

func (c *Conversation) nickname(id world.PlayerId) string {
	if c.nicknames == nil {
		return string(id)
	}
	if nick := c.nicknames.Nickname(id); nick != `` {
		return nick
	}
	return string(id)
}

//
// Players
//

// AddPlayer returns false if the player was already a member.
func (c *Conversation) AddPlayer(id world.PlayerId) bool {
	if c.HasPlayer(id) {
		return false
	}
	c.players = append(c.players, id)
	return true
}

// RemovePlayer returns false if the player was not a member.
func (c *Conversation) RemovePlayer(id world.PlayerId) bool {
	for i, p := range c.players {
		if p == id {
			c.players = append(c.players[:i:i], c.players[i+1:]...)
			return true
		}
	}
	return false
}

// HasPlayer reports whether the player is a member.
func (c *Conversation) HasPlayer(id world.PlayerId) bool {
	for _, p := range c.players {
		if p == id {
			return true
		}
	}
	return false
}

// Players returns a copy of the member ids in join order.
func (c *Conversation) Players() []world.PlayerId {
	return append([]world.PlayerId(nil), c.players...)
}

func (c *Conversation) PlayerCount() int {
	return len(c.players)
}

// PlayerNames returns player nicknames in join order.
func (c *Conversation) PlayerNames() []string {
	names := make([]string, len(c.players))
	for i, p := range c.players {
		names[i] = c.nickname(p)
	}
	return names
}

//
// NPCs
//

// AddNPC returns false if the NPC was already a member.
func (c *Conversation) AddNPC(npc mobinterfaces.NPC) bool {
	if npc == nil || c.HasNPC(npc) {
		return false
	}
	c.npcs = append(c.npcs, npc)
	c.npcNames = append(c.npcNames, npc.GetName())
	return true
}

// RemoveNPC also unmutes the NPC and forgets it as the last speaker.
func (c *Conversation) RemoveNPC(npc mobinterfaces.NPC) bool {
	if npc == nil {
		return false
	}
	for i, n := range c.npcs {
		if n.UniqueId() != npc.UniqueId() {
			continue
		}
		c.npcs = append(c.npcs[:i:i], c.npcs[i+1:]...)
		c.npcNames = append(c.npcNames[:i:i], c.npcNames[i+1:]...)
		delete(c.muted, npc.UniqueId())
		if c.lastSpeaking != nil && c.lastSpeaking.UniqueId() == npc.UniqueId() {
			c.lastSpeaking = nil
		}
		return true
	}
	return false
}

// HasNPC matches on the unique id.
func (c *Conversation) HasNPC(npc mobinterfaces.NPC) bool {
	if npc == nil {
		return false
	}
	for _, n := range c.npcs {
		if n.UniqueId() == npc.UniqueId() {
			return true
		}
	}
	return false
}

// NPCByName is case insensitive.
func (c *Conversation) NPCByName(name string) mobinterfaces.NPC {
	name = strings.TrimSpace(name)
	for i, n := range c.npcNames {
		if strings.EqualFold(n, name) {
			return c.npcs[i]
		}
	}
	return nil
}

// NPCs returns a copy of the NPC members in join order.
func (c *Conversation) NPCs() []mobinterfaces.NPC {
	return append([]mobinterfaces.NPC(nil), c.npcs...)
}

// NPCNames are the names the NPCs had when they joined.
func (c *Conversation) NPCNames() []string {
	return append([]string(nil), c.npcNames...)
}

func (c *Conversation) NPCCount() int {
	return len(c.npcs)
}

// Mute returns false if the NPC is not a member.
func (c *Conversation) Mute(npc mobinterfaces.NPC) bool {
	if !c.HasNPC(npc) {
		return false
	}
	c.muted[npc.UniqueId()] = struct{}{}
	return true
}

// Unmute returns false if the NPC was not muted.
func (c *Conversation) Unmute(npc mobinterfaces.NPC) bool {
	if !c.IsMuted(npc) {
		return false
	}
	delete(c.muted, npc.UniqueId())
	return true
}

func (c *Conversation) IsMuted(npc mobinterfaces.NPC) bool {
	if npc == nil {
		return false
	}
	_, ok := c.muted[npc.UniqueId()]
	return ok
}

// MutedNames lists muted NPCs in join order.
func (c *Conversation) MutedNames() []string {
	names := []string{}
	for i, n := range c.npcs {
		if _, ok := c.muted[n.UniqueId()]; ok {
			names = append(names, c.npcNames[i])
		}
	}
	return names
}

// LastSpeakingNPC is nil until an NPC has spoken.
func (c *Conversation) LastSpeakingNPC() mobinterfaces.NPC {
	return c.lastSpeaking
}

func (c *Conversation) SetLastSpeakingNPC(npc mobinterfaces.NPC) {
	c.lastSpeaking = npc
}

//
// History
//

// AddMessage appends to the history as is.
func (c *Conversation) AddMessage(m Message) {
	c.history = append(c.history, m)
}

// AddSystemMessage records narration every NPC sees.
func (c *Conversation) AddSystemMessage(text string) {
	c.AddMessage(NewMessage(RoleSystem, text))
}

// AddPlayerMessage records text as spoken by the player's nickname.
func (c *Conversation) AddPlayerMessage(id world.PlayerId, text string) {
	c.AddMessage(NewMessage(RoleUser, fmt.Sprintf("%s: %s", c.nickname(id), text)))
}

// AddNPCMessage records the NPC line followed by the placeholder user line.
func (c *Conversation) AddNPCMessage(npc mobinterfaces.NPC, text string) {
	c.AddMessage(NewMessage(RoleAssistant, fmt.Sprintf("%s: %s", npc.GetName(), text)))
	c.AddMessage(NewMessage(RoleUser, Placeholder))
}

// RemoveMessage returns false when idx is out of range.
func (c *Conversation) RemoveMessage(idx int) bool {
	if idx < 0 || idx >= len(c.history) {
		return false
	}
	c.history = append(c.history[:idx:idx], c.history[idx+1:]...)
	return true
}

// ClearHistory forgets every message.
func (c *Conversation) ClearHistory() {
	c.history = nil
}

// History returns a copy of every message, oldest first.
func (c *Conversation) History() []Message {
	return append([]Message(nil), c.history...)
}

func (c *Conversation) HistoryLen() int {
	return len(c.history)
}

// NonSystemCount counts spoken lines, placeholders included.
func (c *Conversation) NonSystemCount() int {
	ct := 0
	for _, m := range c.history {
		if !m.IsSystem() {
			ct++
		}
	}
	return ct
}

// RenameSpeaker rewrites lines attributed to oldName so they are attributed
// to newName, and refreshes the NPC name index. Returns the number of lines
// rewritten.
func (c *Conversation) RenameSpeaker(oldName string, newName string) int {
	if oldName == `` || newName == `` || oldName == newName {
		return 0
	}

	prefix := oldName + `: `
	ct := 0
	for i, m := range c.history {
		if m.IsSystem() || !strings.HasPrefix(m.Content, prefix) {
			continue
		}
		c.history[i] = Message{
			Role:      m.Role,
			Content:   newName + `: ` + strings.TrimPrefix(m.Content, prefix),
			Timestamp: m.Timestamp,
		}
		ct++
	}

	for i, n := range c.npcs {
		if c.npcNames[i] == oldName {
			c.npcNames[i] = n.GetName()
			if c.npcNames[i] == oldName {
				c.npcNames[i] = newName
			}
		}
	}

	return ct
}

// Snapshot is a copy of the conversation safe to hand to other goroutines.
type Snapshot struct {
	Id          int
	PlayerIds   []world.PlayerId
	PlayerNames []string
	NPCNames    []string
	MutedNames  []string
	LastSpeaker string
	History     []Message
	ChatEnabled bool
	Radiant     bool
	State       State
}

func (c *Conversation) Snapshot() Snapshot {
	s := Snapshot{
		Id:          c.Id,
		PlayerIds:   c.Players(),
		PlayerNames: c.PlayerNames(),
		NPCNames:    c.NPCNames(),
		MutedNames:  c.MutedNames(),
		History:     c.History(),
		ChatEnabled: c.ChatEnabled,
		Radiant:     c.Radiant,
		State:       c.state,
	}
	if c.lastSpeaking != nil {
		s.LastSpeaker = c.lastSpeaking.GetName()
	}
	return s
}

// Lines returns message contents in order, the way prompts consume them.
func (s Snapshot) Lines() []string {
	lines := make([]string, len(s.History))
	for i, m := range s.History {
		lines[i] = m.Content
	}
	return lines
}

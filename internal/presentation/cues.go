// Package presentation shows players what NPCs in a conversation are doing
// and carries their spoken lines to everyone in earshot.
package presentation

import (
	"fmt"
	"sync"

	"github.com/GoMudEngine/ansitags"
	"github.com/GoMudEngine/palaver/internal/mobinterfaces"
	"github.com/GoMudEngine/palaver/internal/world"
	"github.com/mattn/go-runewidth"
)

type Cue uint8

const (
	CueNone Cue = iota
	CueThinking
	CueListening
)

const maxNameWidth = 24

// Audience finds who can see an NPC.
type Audience interface {
	PresentationEntity(npc mobinterfaces.NPC) world.Positioned
	PlayersNear(pos world.Position, radius float64) []world.Player
}

// Cues is a text Presenter and Voice. A cue line goes out only when an NPC's
// cue changes.
type Cues struct {
	lock     sync.Mutex
	audience Audience
	radius   float64
	state    map[string]Cue
}

func NewCues(audience Audience, radius float64) *Cues {
	return &Cues{
		audience: audience,
		radius:   radius,
		state:    map[string]Cue{},
	}
}

func (c *Cues) ShowThinking(npc mobinterfaces.NPC) {
	if c.set(npc, CueThinking) {
		c.broadcast(npc, fmt.Sprintf(`<ansi fg="black-bold">[%s is thinking...]</ansi>`, displayName(npc)))
	}
}

func (c *Cues) ShowListening(npc mobinterfaces.NPC) {
	if c.set(npc, CueListening) {
		c.broadcast(npc, fmt.Sprintf(`<ansi fg="black-bold">[%s is listening]</ansi>`, displayName(npc)))
	}
}

func (c *Cues) Cleanup(npc mobinterfaces.NPC) {
	c.lock.Lock()
	delete(c.state, npc.UniqueId())
	c.lock.Unlock()
}

func (c *Cues) Current(npc mobinterfaces.NPC) Cue {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.state[npc.UniqueId()]
}

// Speak sends the line to the conversation's players and anyone else
// standing near the NPC.
func (c *Cues) Speak(npc mobinterfaces.NPC, text string, listeners []world.Player) {
	line := SayLine(npc.GetName(), text)

	sent := map[world.PlayerId]bool{}
	for _, p := range listeners {
		if !sent[p.Id()] {
			sent[p.Id()] = true
			p.SendText(line)
		}
	}
	for _, p := range c.nearby(npc) {
		if !sent[p.Id()] {
			sent[p.Id()] = true
			p.SendText(line)
		}
	}
}

// SayLine is the markup for a spoken line.
func SayLine(name string, text string) string {
	return fmt.Sprintf(`<ansi fg="mobname">%s</ansi> says, "<ansi fg="saytext">%s</ansi>"`, name, text)
}

func (c *Cues) set(npc mobinterfaces.NPC, cue Cue) bool {
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.state[npc.UniqueId()] == cue {
		return false
	}
	c.state[npc.UniqueId()] = cue
	return true
}

func (c *Cues) broadcast(npc mobinterfaces.NPC, line string) {
	for _, p := range c.nearby(npc) {
		p.SendText(line)
	}
}

func (c *Cues) nearby(npc mobinterfaces.NPC) []world.Player {
	if c.audience == nil {
		return nil
	}
	pos, ok := c.audience.PresentationEntity(npc).Position()
	if !ok {
		return nil
	}
	return c.audience.PlayersNear(pos, c.radius)
}

// displayName strips markup from the name and keeps it to a sensible width.
func displayName(npc mobinterfaces.NPC) string {
	name := ansitags.Parse(npc.GetName(), ansitags.StripTags)
	return runewidth.Truncate(name, maxNameWidth, "...")
}

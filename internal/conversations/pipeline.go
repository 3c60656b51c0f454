package conversations

import (
	"context"
	"fmt"
	"strings"

	"github.com/GoMudEngine/palaver/internal/language"
	"github.com/GoMudEngine/palaver/internal/mobinterfaces"
	"github.com/GoMudEngine/palaver/internal/mudlog"
	"github.com/GoMudEngine/palaver/internal/scheduler"
	"github.com/pkg/errors"
)

const (
	relationshipsHeader = `===RELATIONSHIPS===`
	appearancesHeader   = `===APPEARANCES===`
	conversationHeader  = `===CURRENT CONVERSATION===`

	reducedContextSize = 4
)

type generation struct {
	forced string
	done   *scheduler.Future[struct{}]
}

// GenerateResponses has one NPC answer. forcedSpeaker picks the NPC by name,
// otherwise the generator chooses. Runs for the same conversation are queued
// and happen one after another. The future always resolves without error:
// failed generation leaves the conversation as it was.
func (m *Manager) GenerateResponses(c *Conversation, forcedSpeaker string) *scheduler.Future[struct{}] {
	g := &generation{
		forced: forcedSpeaker,
		done:   scheduler.NewFuture[struct{}](),
	}

	if c == nil || !c.Active() {
		g.done.Resolve(struct{}{}, nil)
		return g.done
	}

	if m.generating[c.Id] {
		m.queued[c.Id] = append(m.queued[c.Id], g)
		return g.done
	}

	m.runGeneration(c, g)
	return g.done
}

func (m *Manager) runGeneration(c *Conversation, g *generation) {
	m.generating[c.Id] = true

	p := &responsePipeline{
		m:      m,
		conv:   c,
		forced: g.forced,
	}
	p.finish = func() {
		g.done.Resolve(struct{}{}, nil)
		m.nextGeneration(c)
	}
	p.start()
}

func (m *Manager) nextGeneration(c *Conversation) {
	queue := m.queued[c.Id]

	if len(queue) == 0 || !c.Active() {
		delete(m.generating, c.Id)
		delete(m.queued, c.Id)
		for _, g := range queue {
			g.done.Resolve(struct{}{}, nil)
		}
		return
	}

	if len(queue) == 1 {
		delete(m.queued, c.Id)
	} else {
		m.queued[c.Id] = queue[1:]
	}
	m.runGeneration(c, queue[0])
}

// responsePipeline is one run of speaker selection, directive and response.
// Every stage runs on the loop and hands blocking calls to scheduler.Async.
type responsePipeline struct {
	m       *Manager
	conv    *Conversation
	forced  string
	speaker mobinterfaces.NPC
	finish  func()
}

func (p *responsePipeline) start() {
	if p.forced != `` {
		p.resolveSpeaker(p.forced)
		return
	}

	snap := p.conv.Snapshot()
	scheduler.Async(p.m.loop, func() (string, error) {
		ctx, cancel := p.m.callContext()
		defer cancel()
		return p.m.gen.NextSpeaker(ctx, snap)
	}, func(name string, err error) {
		if err != nil {
			mudlog.Error("Conversation", "id", p.conv.Id, "call", "NextSpeaker", "error", err)
			p.finish()
			return
		}
		p.resolveSpeaker(name)
	})
}

func (p *responsePipeline) resolveSpeaker(name string) {
	if name == `` || !p.conv.Active() {
		p.finish()
		return
	}

	npc := p.conv.NPCByName(name)
	if npc == nil {
		mudlog.Debug("Conversation", "id", p.conv.Id, "info", fmt.Sprintf("next speaker %q is not in the conversation", name))
		p.finish()
		return
	}

	p.speaker = npc
	p.conv.SetLastSpeakingNPC(npc)

	p.m.presenter.ShowThinking(npc)
	for _, other := range p.conv.NPCs() {
		if other.UniqueId() != npc.UniqueId() {
			p.m.presenter.ShowListening(other)
		}
	}

	if !p.m.cfg.BehavioralDirectives {
		p.respond(p.fullContext())
		return
	}

	snap := p.conv.Snapshot()
	speakerName := npc.GetName()
	scheduler.Async(p.m.loop, func() (string, error) {
		ctx, cancel := p.m.callContext()
		defer cancel()
		return p.m.gen.BehavioralDirective(ctx, snap, speakerName)
	}, func(directive string, err error) {
		if !p.conv.Active() {
			p.release()
			p.finish()
			return
		}
		if err != nil {
			mudlog.Warn("Conversation", "id", p.conv.Id, "call", "BehavioralDirective", "error", err)
			p.respond(p.reducedContext())
			return
		}
		if directive = strings.TrimSpace(directive); directive != `` {
			p.conv.AddSystemMessage(directive)
		}
		p.respond(p.fullContext())
	})
}

func (p *responsePipeline) respond(lines []string) {
	name := p.speaker.GetName()
	streaming := bool(p.m.cfg.Streaming)

	scheduler.Async(p.m.loop, func() (string, error) {
		ctx, cancel := p.m.callContext()
		defer cancel()
		return p.m.gen.NPCResponse(ctx, name, lines, streaming)
	}, func(text string, err error) {
		defer p.finish()

		p.release()

		text = strings.TrimSpace(text)
		if err == nil && text == `` {
			err = errors.New("empty response")
		}
		if err != nil {
			mudlog.Error("Conversation", "id", p.conv.Id, "call", "NPCResponse", "npc", name, "error", err)
			return
		}

		if !p.conv.Active() || !p.conv.HasNPC(p.speaker) {
			mudlog.Debug("Conversation", "id", p.conv.Id, "info", "discarding response for a conversation that moved on")
			return
		}

		p.conv.AddNPCMessage(p.speaker, text)
		p.m.voice.Speak(p.speaker, text, p.m.online(p.conv.Players()))

		p.recognizeIntents()
	})
}

func (p *responsePipeline) release() {
	p.m.releaseCues(p.conv)
}

func (p *responsePipeline) recognizeIntents() {
	players := p.conv.Players()
	if len(players) == 0 {
		return
	}

	lastTwo := lastSpoken(p.conv.History(), 2)
	if len(lastTwo) == 0 {
		return
	}

	npcName := p.speaker.GetName()
	playerName := p.m.dir.Nickname(players[0])

	p.m.async(p.conv, "RecognizeQuestGivingIntent", func(ctx context.Context) error {
		return p.m.intents.RecognizeQuestGivingIntent(ctx, npcName, lastTwo, playerName)
	})
	p.m.async(p.conv, "RecognizeActionIntents", func(ctx context.Context) error {
		return p.m.intents.RecognizeActionIntents(ctx, npcName, lastTwo, playerName)
	})
}

// fullContext is the relationships block (if any), appearances, the whole
// conversation and the instruction naming who speaks next.
func (p *responsePipeline) fullContext() []string {
	name := p.speaker.GetName()
	lines := []string{}

	if rel := p.m.relationships.Relationships(name); len(rel) > 0 {
		lines = append(lines, relationshipsHeader)
		lines = append(lines, rel...)
	}

	lines = append(lines, appearancesHeader)
	for _, n := range p.conv.NPCNames() {
		lines = append(lines, p.appearanceLine(n))
	}
	for _, n := range p.conv.PlayerNames() {
		lines = append(lines, p.appearanceLine(n))
	}

	lines = append(lines, conversationHeader)
	for _, msg := range p.conv.History() {
		lines = append(lines, msg.Content)
	}
	lines = append(lines, p.instruction())

	return lines
}

// reducedContext is used when the directive could not be generated.
func (p *responsePipeline) reducedContext() []string {
	lines := []string{}
	history := p.conv.History()
	for i := len(history) - 1; i >= 0 && len(lines) < reducedContextSize; i-- {
		if history[i].IsSystem() {
			continue
		}
		lines = append([]string{history[i].Content}, lines...)
	}
	return lines
}

func (p *responsePipeline) appearanceLine(name string) string {
	desc := strings.TrimSpace(p.m.appearances.Appearance(name))
	if desc == `` {
		desc = `nothing remarkable about their appearance`
	}
	return fmt.Sprintf("%s: %s", name, desc)
}

func (p *responsePipeline) instruction() string {
	name := p.speaker.GetName()
	others := p.m.othersThan(p.conv, name)

	if len(others) == 0 {
		return fmt.Sprintf("Speak as %s. Write only what %s says next.", name, name)
	}
	if p.conv.PlayerCount() == 0 {
		return fmt.Sprintf("Continue the conversation as %s, chatting with %s. Write only what %s says next.", name, language.ListNames(others), name)
	}
	return fmt.Sprintf("Reply as %s to %s. Write only what %s says next.", name, language.ListNames(others), name)
}

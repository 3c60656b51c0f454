package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/GoMudEngine/palaver/internal/conversations"
	"github.com/GoMudEngine/palaver/internal/mudlog"
	"github.com/GoMudEngine/palaver/internal/prompts"
)

// minimum history before anyone bothers remembering a conversation
const minSummaryHistory = 3

// NextSpeaker asks the low cost model who talks next. Muted NPCs are never
// picked. A single candidate is returned without a request, and any failure
// or unrecognized answer falls back to the first candidate.
func (c *Client) NextSpeaker(ctx context.Context, conv conversations.Snapshot) (string, error) {
	eligible := eligibleSpeakers(conv)
	if len(eligible) == 0 {
		return ``, nil
	}
	if len(eligible) == 1 {
		return eligible[0], nil
	}

	messages := []chatMessage{
		{Role: `system`, Content: c.prompts.Get(prompts.SpeakerSelection, map[string]string{
			`available_characters`: strings.Join(eligible, `, `),
		})},
		{Role: `user`, Content: strings.Join(c.recent(conv.History), "\n")},
	}

	answer, err := c.complete(ctx, `speaker-selection`, string(c.cfg.LowCostModel), messages, false)
	if err != nil {
		mudlog.Warn("LLM", "call", "NextSpeaker", "error", err, "fallback", eligible[0])
		return eligible[0], nil
	}

	if name, ok := matchName(answer, eligible); ok {
		return name, nil
	}

	mudlog.Debug("LLM", "call", "NextSpeaker", "unmatched", answer, "fallback", eligible[0])
	return eligible[0], nil
}

func (c *Client) BehavioralDirective(ctx context.Context, conv conversations.Snapshot, npcName string) (string, error) {
	relationships := ``
	if rel := c.characters.Relationships(npcName); len(rel) > 0 {
		relationships = "Relationships:\n" + strings.Join(rel, "\n")
	}

	messages := []chatMessage{
		{Role: `system`, Content: c.prompts.Get(prompts.BehavioralDirective, map[string]string{
			`npc_name`:             npcName,
			`relationship_context`: relationships,
			`recent_messages`:      strings.Join(c.recent(conv.History), "\n"),
		})},
	}

	return c.complete(ctx, npcName, ``, messages, false)
}

// NPCResponse speaks as npcName given the context lines built by the manager.
func (c *Client) NPCResponse(ctx context.Context, npcName string, lines []string, streaming bool) (string, error) {
	messages := []chatMessage{
		{Role: `system`, Content: c.prompts.Get(prompts.NPCResponse, map[string]string{
			`npc_name`:    npcName,
			`personality`: c.characters.Personality(npcName),
		})},
		{Role: `user`, Content: strings.Join(lines, "\n")},
	}

	text, err := c.complete(ctx, npcName, ``, messages, streaming)
	if err != nil {
		return ``, err
	}
	return stripSpeaker(text, npcName), nil
}

// SummarizeConversation writes a memory for every NPC that keeps memories and
// for every player, all at once.
func (c *Client) SummarizeConversation(ctx context.Context, conv conversations.Snapshot) error {
	if len(conv.History) < minSummaryHistory || len(conv.NPCNames) == 0 {
		return nil
	}

	owners := []string{}
	for _, name := range conv.NPCNames {
		if !c.characters.IsGeneric(name) {
			owners = append(owners, name)
		}
	}
	owners = append(owners, conv.PlayerNames...)

	significance := conversations.Significance(len(conv.History), len(conv.NPCNames))
	text := transcript(conv.History)

	var (
		wg     sync.WaitGroup
		lock   sync.Mutex
		failed []error
	)
	for _, owner := range owners {
		wg.Add(1)
		go func(owner string) {
			defer wg.Done()
			if err := c.remember(ctx, owner, text, significance); err != nil {
				lock.Lock()
				failed = append(failed, fmt.Errorf("%s: %w", owner, err))
				lock.Unlock()
			}
		}(owner)
	}
	wg.Wait()

	return errors.Join(failed...)
}

// SummarizeForNPC is the memory pass for one NPC leaving a conversation.
func (c *Client) SummarizeForNPC(ctx context.Context, history []conversations.Message, npcName string) error {
	if len(history) < minSummaryHistory || c.characters.IsGeneric(npcName) {
		return nil
	}
	return c.remember(ctx, npcName, transcript(history), conversations.Significance(len(history), 1))
}

func (c *Client) remember(ctx context.Context, owner string, transcript string, significance int) error {
	messages := []chatMessage{
		{Role: `system`, Content: c.prompts.Get(prompts.NPCMemoryGeneration, map[string]string{`npc_name`: owner})},
		{Role: `user`, Content: transcript},
	}

	text, err := c.complete(ctx, owner, string(c.cfg.LowCostModel), messages, false)
	if err != nil {
		return err
	}
	if text == `` {
		return nil
	}

	if c.memory == nil {
		mudlog.Info("LLM", "memory", owner, "text", text)
		return nil
	}
	return c.memory.AddMemory(ctx, owner, text, significance)
}

// Goodbye falls back to the character's farewell when the model is unavailable.
func (c *Client) Goodbye(ctx context.Context, npcName string, history []conversations.Message) (string, error) {
	messages := []chatMessage{
		{Role: `system`, Content: c.prompts.Get(prompts.NPCGoodbye, map[string]string{`npc_name`: npcName})},
		{Role: `user`, Content: strings.Join(c.recent(history), "\n")},
	}

	text, err := c.complete(ctx, npcName, ``, messages, false)
	if err != nil {
		if farewell := c.characters.Farewell(npcName); farewell != `` {
			mudlog.Warn("LLM", "call", "Goodbye", "error", err)
			return farewell, nil
		}
		return ``, err
	}
	return stripSpeaker(text, npcName), nil
}

// Greeting is what npcName says walking up to target.
func (c *Client) Greeting(ctx context.Context, npcName string, target string) (string, error) {
	messages := []chatMessage{
		{Role: `system`, Content: c.prompts.Get(prompts.NPCGreeting, map[string]string{
			`npc_name`: npcName,
			`target`:   target,
		})},
	}

	text, err := c.complete(ctx, npcName, ``, messages, false)
	if err != nil {
		if greeting := c.characters.Greeting(npcName); greeting != `` {
			mudlog.Warn("LLM", "call", "Greeting", "error", err)
			return greeting, nil
		}
		return ``, err
	}
	return stripSpeaker(text, npcName), nil
}

func eligibleSpeakers(conv conversations.Snapshot) []string {
	muted := map[string]bool{}
	for _, n := range conv.MutedNames {
		muted[strings.ToLower(n)] = true
	}
	out := []string{}
	for _, n := range conv.NPCNames {
		if !muted[strings.ToLower(n)] {
			out = append(out, n)
		}
	}
	return out
}

// matchName finds which candidate the model meant. Exact matches win over a
// candidate merely mentioned in the answer.
func matchName(answer string, candidates []string) (string, bool) {
	cleaned := strings.ToLower(strings.Trim(strings.TrimSpace(answer), ".!\"'*`:"))
	for _, n := range candidates {
		if strings.ToLower(n) == cleaned {
			return n, true
		}
	}
	for _, n := range candidates {
		if strings.Contains(cleaned, strings.ToLower(n)) {
			return n, true
		}
	}
	return ``, false
}

// recent is the tail of the spoken history, at most MaxContextLength lines.
func (c *Client) recent(history []conversations.Message) []string {
	lines := spoken(history)
	if limit := int(c.cfg.MaxContextLength); limit > 0 && len(lines) > limit {
		lines = lines[len(lines)-limit:]
	}
	return lines
}

func spoken(history []conversations.Message) []string {
	lines := make([]string, 0, len(history))
	for _, m := range history {
		if m.IsSystem() || m.IsPlaceholder() {
			continue
		}
		lines = append(lines, m.Content)
	}
	return lines
}

func transcript(history []conversations.Message) string {
	return strings.Join(spoken(history), "\n")
}

// stripSpeaker removes a "Name:" prefix the model sometimes adds.
func stripSpeaker(text string, name string) string {
	text = strings.TrimSpace(text)
	prefix := name + `:`
	if len(text) >= len(prefix) && strings.EqualFold(text[:len(prefix)], prefix) {
		text = strings.TrimSpace(text[len(prefix):])
	}
	return strings.Trim(text, `"`)
}

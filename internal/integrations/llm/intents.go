package llm

import (
	"context"
	"strings"

	"github.com/GoMudEngine/palaver/internal/conversations"
	"github.com/GoMudEngine/palaver/internal/mudlog"
	"github.com/GoMudEngine/palaver/internal/prompts"
)

const IntentNone = `NONE`

// Intent is something an NPC committed to doing for a player.
type Intent struct {
	NPC    string
	Player string
	Kind   string // FOLLOW, ATTACK, QUEST, ...
	Action string
}

func (c *Client) RecognizeActionIntents(ctx context.Context, npcName string, lastTwo []conversations.Message, playerName string) error {
	return c.recognize(ctx, prompts.ActionIntent, npcName, lastTwo, playerName)
}

func (c *Client) RecognizeQuestGivingIntent(ctx context.Context, npcName string, lastTwo []conversations.Message, playerName string) error {
	return c.recognize(ctx, prompts.QuestGivingIntent, npcName, lastTwo, playerName)
}

func (c *Client) recognize(ctx context.Context, promptKey string, npcName string, lastTwo []conversations.Message, playerName string) error {
	if len(lastTwo) == 0 {
		return nil
	}

	messages := []chatMessage{
		{Role: `system`, Content: c.prompts.Get(promptKey, map[string]string{
			`npc_name`:    npcName,
			`player_name`: playerName,
		})},
		{Role: `user`, Content: transcript(lastTwo)},
	}

	answer, err := c.complete(ctx, npcName, string(c.cfg.LowCostModel), messages, false)
	if err != nil {
		return err
	}

	kind, action, ok := ParseIntent(answer)
	if !ok {
		mudlog.Debug("LLM", "intent", "unparsed", "npc", npcName, "answer", answer)
		return nil
	}
	if kind == IntentNone {
		return nil
	}

	intent := Intent{NPC: npcName, Player: playerName, Kind: kind, Action: action}
	mudlog.Info("LLM", "intent", kind, "npc", npcName, "player", playerName, "action", action)

	if c.onIntent != nil {
		c.onIntent(intent)
	}
	return nil
}

// ParseIntent reads the first "INTENT: X | ACTION: Y" line of an answer.
func ParseIntent(answer string) (kind string, action string, ok bool) {
	for _, line := range strings.Split(answer, "\n") {
		line = strings.TrimSpace(line)
		upper := strings.ToUpper(line)

		i := strings.Index(upper, `INTENT:`)
		if i < 0 {
			continue
		}

		rest := line[i+len(`INTENT:`):]
		if j := strings.Index(strings.ToUpper(rest), `ACTION:`); j >= 0 {
			action = strings.TrimSpace(rest[j+len(`ACTION:`):])
			rest = rest[:j]
		}

		kind = strings.ToUpper(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(rest), `|`)))
		if kind == `` {
			return ``, ``, false
		}
		if strings.EqualFold(action, IntentNone) {
			action = ``
		}
		return kind, action, true
	}
	return ``, ``, false
}

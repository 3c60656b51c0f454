package usercommands

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/GoMudEngine/palaver/internal/conversations"
	"github.com/GoMudEngine/palaver/internal/language"
	"github.com/GoMudEngine/palaver/internal/mobinterfaces"
	"github.com/GoMudEngine/palaver/internal/mudlog"
	"github.com/GoMudEngine/palaver/internal/users"
	"github.com/GoMudEngine/palaver/internal/world"
	"github.com/pkg/errors"
)

var errNowhere = errors.New(`you are not anywhere right now`)

func Say(rest string, user *users.UserRecord, env *Env) (bool, error) {
	if rest == `` {
		user.SendText(`Say what?`)
		return true, nil
	}

	pos, ok := user.Position()
	if !ok {
		return true, errNowhere
	}

	radius := float64(env.Manager.Config().ChatRadius)

	user.SendText(fmt.Sprintf(`You say, "<ansi fg="saytext">%s</ansi>"`, rest))
	env.broadcast(user, pos, radius, fmt.Sprintf(`<ansi fg="username">%s</ansi> says, "<ansi fg="saytext">%s</ansi>"`, user.Nickname(), rest))

	converse(rest, user, pos, radius, env)

	return true, nil
}

// converse puts what the player said into their conversation. A player not
// in one joins the conversation of an NPC they named, or starts a new one
// with the NPCs they named.
func converse(text string, user *users.UserRecord, pos world.Position, radius float64, env *Env) *conversations.Conversation {
	m := env.Manager

	if c := m.ConversationOf(user.Id()); c != nil {
		if err := m.AddPlayerMessage(user, c, text); err != nil {
			mudlog.Warn("Say", "user", user.Name(), "conversation", c.Id, "error", err)
		}
		return c
	}

	named := mentionedNPCs(env, text, pos, radius)
	if len(named) == 0 {
		return nil
	}

	for _, npc := range named {
		c := m.ConversationOfNPC(npc)
		if c == nil {
			continue
		}
		if !m.JoinPlayer(user, c, ``) {
			return nil
		}
		m.AddPlayerMessage(user, c, text)
		return c
	}

	c, ok := m.Start(user, named...)
	if !ok {
		return nil
	}
	m.AddPlayerMessage(user, c, text)
	return c
}

// mentionedNPCs finds the NPCs within radius that text names, by full name
// first and then by nickname. A nickname that fits more than one NPC is
// ignored.
func mentionedNPCs(env *Env, text string, pos world.Position, radius float64) []mobinterfaces.NPC {
	nearby := env.Realm.NPCsNear(pos, radius)
	if len(nearby) == 0 {
		return nil
	}

	said := ` ` + strings.Join(words(text), ` `) + ` `

	var matches []mobinterfaces.NPC
	seen := map[string]bool{}
	for _, mob := range nearby {
		name := strings.ToLower(mob.GetName())
		if seen[name] {
			continue
		}
		if strings.Contains(said, ` `+strings.Join(words(name), ` `)+` `) {
			seen[name] = true
			matches = append(matches, mob)
		}
	}
	if len(matches) > 0 {
		return matches
	}

	// Extract potential names from the message
	var potentialNames []string
	for _, word := range words(text) {
		if len(word) < 3 || isCommonWord(word) || isPlayerName(env, pos, radius, word) {
			continue
		}
		potentialNames = append(potentialNames, word)
	}

	for _, name := range potentialNames {
		found := findPotentialMatches(env, nearby, name)
		if len(found) == 1 {
			if !seen[found[0].UniqueId()] {
				seen[found[0].UniqueId()] = true
				matches = append(matches, found[0])
			}
		} else if len(found) > 1 {
			mudlog.Debug("Say", "info", fmt.Sprintf("Multiple matches found for name %v", name), "count", len(found))
		}
	}

	return matches
}

// findPotentialMatches returns the NPCs that go by the given nickname, said
// once or addressed as a group.
func findPotentialMatches(env *Env, nearby []*mobinterfaces.Mob, name string) []mobinterfaces.NPC {
	single := language.Singularize(name)

	var matches []mobinterfaces.NPC
	for _, mob := range nearby {
		for _, nickname := range env.nicknames(mob.GetName()) {
			if nickname == name || nickname == single {
				matches = append(matches, mob)
				break
			}
		}
	}
	return matches
}

// isPlayerName checks if the given name matches a player standing nearby
func isPlayerName(env *Env, pos world.Position, radius float64, name string) bool {
	for _, p := range env.Realm.PlayersNear(pos, radius) {
		if strings.EqualFold(p.Name(), name) || strings.EqualFold(env.Realm.Nickname(p.Id()), name) {
			return true
		}
	}
	return false
}

// isCommonWord checks if a word is too common to be a name
func isCommonWord(word string) bool {
	commonWords := map[string]bool{
		"the": true, "and": true, "but": true, "for": true, "not": true,
		"you": true, "that": true, "this": true, "with": true, "from": true,
		"hey": true, "hi": true, "hello": true, "greetings": true,
		"please": true, "thank": true, "thanks": true, "sorry": true,
		"excuse": true, "pardon": true, "yes": true, "no": true,
	}
	return commonWords[word]
}

// words lower cases s and splits it on anything that can't be part of a name.
func words(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}

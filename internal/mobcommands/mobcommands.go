// Package mobcommands holds the commands NPCs run on their own. Every handler
// runs on the world loop.
package mobcommands

import (
	"context"
	"strings"

	"github.com/GoMudEngine/palaver/internal/conversations"
	"github.com/GoMudEngine/palaver/internal/mobinterfaces"
	"github.com/GoMudEngine/palaver/internal/realm"
)

// Greeter writes the line an NPC opens with when it joins a conversation.
type Greeter interface {
	Greeting(ctx context.Context, npcName string, target string) (string, error)
}

type Env struct {
	Manager *conversations.Manager
	Realm   *realm.Realm
	Greeter Greeter // optional
}

type MobCommand func(rest string, mob *mobinterfaces.Mob, env *Env) (bool, error)

var mobCommands = map[string]MobCommand{
	`converse`: Converse,
}

// Run has the NPC run a command line. It returns false when there is no
// such command.
func Run(input string, mob *mobinterfaces.Mob, env *Env) (bool, error) {
	cmd, rest, _ := strings.Cut(strings.TrimSpace(input), ` `)

	handler, ok := mobCommands[strings.ToLower(cmd)]
	if !ok {
		return false, nil
	}
	return handler(strings.TrimSpace(rest), mob, env)
}

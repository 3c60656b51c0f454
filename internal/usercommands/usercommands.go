// Package usercommands holds the commands players type. Every handler runs
// on the world loop.
package usercommands

import (
	"fmt"
	"sort"
	"strings"

	"github.com/GoMudEngine/palaver/internal/characters"
	"github.com/GoMudEngine/palaver/internal/conversations"
	"github.com/GoMudEngine/palaver/internal/language"
	"github.com/GoMudEngine/palaver/internal/mudlog"
	"github.com/GoMudEngine/palaver/internal/realm"
	"github.com/GoMudEngine/palaver/internal/users"
	"github.com/GoMudEngine/palaver/internal/world"
)

// Nicknames lists the other names an NPC answers to, lower cased.
type Nicknames interface {
	Nicknames(name string) []string
}

// Characters looks up and persists character profiles.
type Characters interface {
	Profile(name string) (characters.Profile, bool)
	Save(p characters.Profile) error
}

// Env is everything a command can act on.
type Env struct {
	Manager    *conversations.Manager
	Realm      *realm.Realm
	Notices    *language.Notices
	Nicknames  Nicknames  // optional
	Characters Characters // optional
}

type CommandFunc func(rest string, user *users.UserRecord, env *Env) (bool, error)

type CommandAccess struct {
	Func      CommandFunc
	AdminOnly bool
}

var userCommands map[string]CommandAccess

func init() {
	userCommands = map[string]CommandAccess{
		`say`:      {Say, false},
		`'`:        {Say, false},
		`shout`:    {Shout, false},
		`ai`:       {AI, false},
		`conv`:     {Conv, true},
		`describe`: {Describe, true},
		`help`:     {Help, false},
	}
}

// Run splits input into a command and its arguments and runs it. It returns
// false when there is no such command.
func Run(input string, user *users.UserRecord, env *Env) (bool, error) {
	input = strings.TrimSpace(input)
	if input == `` {
		return false, nil
	}

	cmd, rest := input, ``
	if strings.HasPrefix(input, `'`) {
		cmd, rest = `'`, input[1:]
	} else if i := strings.IndexByte(input, ' '); i > -1 {
		cmd, rest = input[:i], input[i+1:]
	}
	cmd = strings.ToLower(cmd)
	rest = strings.TrimSpace(rest)

	access, ok := userCommands[cmd]
	if !ok {
		return false, nil
	}
	if access.AdminOnly && !user.IsAdmin() {
		return false, nil
	}

	handled, err := access.Func(rest, user, env)
	if err != nil {
		mudlog.Debug("Command", "user", user.Name(), "cmd", cmd, "error", err)
		user.SendText(fmt.Sprintf(`<ansi fg="red">%s</ansi>`, err))
	}
	return handled, err
}

// Help lists the commands the player can use.
func Help(rest string, user *users.UserRecord, env *Env) (bool, error) {
	names := []string{}
	for name, access := range userCommands {
		if name == `'` || (access.AdminOnly && !user.IsAdmin()) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	user.SendText(`Commands: <ansi fg="command">` + strings.Join(names, `</ansi>, <ansi fg="command">`) + `</ansi>`)
	return true, nil
}

// broadcast sends text to every player within radius except the speaker.
func (e *Env) broadcast(speaker world.Player, pos world.Position, radius float64, text string) {
	for _, p := range e.Realm.PlayersNear(pos, radius) {
		if p.Id() != speaker.Id() {
			p.SendText(text)
		}
	}
}

func (e *Env) nicknames(name string) []string {
	if e.Nicknames == nil {
		return nil
	}
	return e.Nicknames.Nicknames(name)
}

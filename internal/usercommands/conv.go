package usercommands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/GoMudEngine/palaver/internal/conversations"
	"github.com/GoMudEngine/palaver/internal/language"
	"github.com/GoMudEngine/palaver/internal/mudlog"
	"github.com/GoMudEngine/palaver/internal/users"
	"github.com/mattn/go-runewidth"
	"github.com/pkg/errors"
)

const (
	convNameWidth = 28
	convShowLines = 20
)

// finalLineInstruction is fed to a conversation that an admin ends with "conv end".
const finalLineInstruction = `Each NPC should now deliver a final line or action that reflects their current feelings and intentions. Let them exit the scene naturally without stating that the conversation is ending.`

const convUsage = `Usage: conv <ansi fg="command">list</ansi> | <ansi fg="command">show</ansi> <id> | <ansi fg="command">end</ansi> <id> | <ansi fg="command">fend</ansi> <id> [nomemory] | <ansi fg="command">bye</ansi> <id> | <ansi fg="command">endall</ansi> | <ansi fg="command">feed</ansi> <id> <text> | <ansi fg="command">toggle</ansi> <id> | <ansi fg="command">mute</ansi> <id> <npc> | <ansi fg="command">lock</ansi> <id> | <ansi fg="command">continue</ansi> <id> [npc] | <ansi fg="command">add</ansi> <id> <npc> | <ansi fg="command">remove</ansi> <id> <name>`

type convCommand func(c *conversations.Conversation, args string, user *users.UserRecord, env *Env) error

var convCommands = map[string]convCommand{
	`show`:     convShow,
	`end`:      convEnd,
	`fend`:     convForceEnd,
	`bye`:      convBye,
	`feed`:     convFeed,
	`toggle`:   convToggle,
	`mute`:     convMute,
	`lock`:     convLock,
	`continue`: convContinue,
	`add`:      convAdd,
	`remove`:   convRemove,
}

// Conv is the admin tool for inspecting and steering live conversations.
func Conv(rest string, user *users.UserRecord, env *Env) (bool, error) {
	sub, args := cut(rest)
	sub = strings.ToLower(sub)

	switch sub {
	case ``, `list`:
		convList(user, env)
		return true, nil
	case `endall`:
		ended := env.Manager.EndAll(false)
		user.SendText(fmt.Sprintf(`Ending %d conversation(s).`, len(ended)))
		return true, nil
	}

	cmd, ok := convCommands[sub]
	if !ok {
		user.SendText(convUsage)
		return true, nil
	}

	idArg, args := cut(args)
	id, err := strconv.Atoi(idArg)
	if err != nil {
		return true, errors.Errorf(`"%s" is not a conversation id`, idArg)
	}
	c := env.Manager.ById(id)
	if c == nil || !c.Active() {
		return true, errors.Errorf(`there is no conversation %d`, id)
	}

	return true, cmd(c, args, user, env)
}

func convList(user *users.UserRecord, env *Env) {
	active := env.Manager.Active()
	if len(active) == 0 {
		user.SendText(`No active conversations.`)
		return
	}

	var sb strings.Builder
	sb.WriteString(`<ansi fg="yellow">==== Active Conversations ====</ansi>`)
	for _, c := range active {
		npcs := runewidth.Truncate(strings.Join(c.NPCNames(), `, `), convNameWidth, `...`)

		flags := []string{}
		if env.Manager.IsLocked(c) {
			flags = append(flags, `locked`)
		}
		if !c.ChatEnabled {
			flags = append(flags, `chat off`)
		}
		if c.Radiant {
			flags = append(flags, `radiant`)
		}
		if muted := c.MutedNames(); len(muted) > 0 {
			flags = append(flags, `muted: `+strings.Join(muted, `, `))
		}

		count, unit := c.NonSystemCount(), `line`
		if count != 1 {
			unit = language.Pluralize(unit)
		}

		sb.WriteString(fmt.Sprintf("\n[<ansi fg=\"green\">%3d</ansi>] <ansi fg=\"mobname\">%s</ansi> <ansi fg=\"username\">%s</ansi> %d %s",
			c.Id,
			runewidth.FillRight(npcs, convNameWidth),
			runewidth.FillRight(strings.Join(c.PlayerNames(), `, `), convNameWidth),
			count,
			unit,
		))
		if len(flags) > 0 {
			sb.WriteString(` (` + strings.Join(flags, `; `) + `)`)
		}
	}

	user.SendText(sb.String())
}

func convShow(c *conversations.Conversation, args string, user *users.UserRecord, env *Env) error {
	history := c.History()
	if len(history) > convShowLines {
		history = history[len(history)-convShowLines:]
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf(`Conversation %d (%s):`, c.Id, c.State()))
	for _, msg := range history {
		if msg.IsPlaceholder() {
			continue
		}
		sb.WriteString(fmt.Sprintf("\n<ansi fg=\"black-bold\">%-9s</ansi> %s", msg.Role, msg.Content))
	}
	user.SendText(sb.String())
	return nil
}

// convEnd asks every NPC for a parting line, then ends the conversation.
func convEnd(c *conversations.Conversation, args string, user *users.UserRecord, env *Env) error {
	m := env.Manager
	loop := m.Loop()

	if err := m.FeedSystemMessage(c, finalLineInstruction); err != nil {
		return err
	}

	user.SendText(fmt.Sprintf(`Ending conversation %d...`, c.Id))
	m.GenerateResponses(c, ``).Then(loop, func(struct{}, error) {
		m.End(c, false).Then(loop, func(ended bool, err error) {
			if ended {
				user.SendText(fmt.Sprintf(`<ansi fg="green">Conversation %d ended.</ansi>`, c.Id))
			}
		})
	})
	return nil
}

func convForceEnd(c *conversations.Conversation, args string, user *users.UserRecord, env *Env) error {
	skipMemory := strings.EqualFold(strings.TrimSpace(args), `nomemory`)
	env.Manager.End(c, skipMemory)
	user.SendText(fmt.Sprintf(`<ansi fg="green">Conversation %d ended.</ansi>`, c.Id))
	return nil
}

func convBye(c *conversations.Conversation, args string, user *users.UserRecord, env *Env) error {
	user.SendText(fmt.Sprintf(`Saying goodbye in conversation %d...`, c.Id))
	env.Manager.EndGracefully(c).Then(env.Manager.Loop(), func(ended bool, err error) {
		if ended {
			user.SendText(fmt.Sprintf(`<ansi fg="green">Conversation %d ended.</ansi>`, c.Id))
		}
	})
	return nil
}

func convFeed(c *conversations.Conversation, args string, user *users.UserRecord, env *Env) error {
	if args == `` {
		return errors.New(`feed what?`)
	}
	if err := env.Manager.FeedSystemMessage(c, args); err != nil {
		return err
	}
	user.SendText(fmt.Sprintf(`Fed conversation %d.`, c.Id))
	return nil
}

func convToggle(c *conversations.Conversation, args string, user *users.UserRecord, env *Env) error {
	enabled := env.Manager.ToggleChat(c)
	user.SendText(fmt.Sprintf(`Conversation %d chat enabled: %t`, c.Id, enabled))
	return nil
}

func convMute(c *conversations.Conversation, args string, user *users.UserRecord, env *Env) error {
	npc := c.NPCByName(args)
	if npc == nil {
		return errors.Errorf(`%s is not in conversation %d`, args, c.Id)
	}

	if c.IsMuted(npc) {
		if err := env.Manager.UnmuteNPC(npc, c); err != nil {
			return err
		}
		user.SendText(fmt.Sprintf(`%s may speak again.`, npc.GetName()))
		return nil
	}

	if err := env.Manager.MuteNPC(npc, c); err != nil {
		return err
	}
	user.SendText(fmt.Sprintf(`%s is muted.`, npc.GetName()))
	return nil
}

func convLock(c *conversations.Conversation, args string, user *users.UserRecord, env *Env) error {
	m := env.Manager
	if m.IsLocked(c) {
		m.Unlock(c)
		user.SendText(fmt.Sprintf(`Conversation %d unlocked.`, c.Id))
	} else {
		m.Lock(c)
		user.SendText(fmt.Sprintf(`Conversation %d locked.`, c.Id))
	}
	return nil
}

func convContinue(c *conversations.Conversation, args string, user *users.UserRecord, env *Env) error {
	speaker := ``
	if args != `` {
		npc := c.NPCByName(args)
		if npc == nil {
			return errors.Errorf(`%s is not in conversation %d`, args, c.Id)
		}
		speaker = npc.GetName()
	}

	user.SendText(fmt.Sprintf(`Continuing conversation %d...`, c.Id))
	env.Manager.GenerateResponses(c, speaker)
	return nil
}

func convAdd(c *conversations.Conversation, args string, user *users.UserRecord, env *Env) error {
	npc, ok := env.Realm.NPCByName(args)
	if !ok {
		return errors.Errorf(`no NPC is called %s`, args)
	}
	if other := env.Manager.ConversationOfNPC(npc); other != nil && other != c {
		env.Manager.RemoveNPC(npc, other)
	}
	if !env.Manager.JoinNPC(npc, c, ``) {
		return errors.Errorf(`%s could not join conversation %d`, npc.GetName(), c.Id)
	}
	user.SendText(fmt.Sprintf(`%s joined conversation %d.`, npc.GetName(), c.Id))
	return nil
}

func convRemove(c *conversations.Conversation, args string, user *users.UserRecord, env *Env) error {
	if npc := c.NPCByName(args); npc != nil {
		env.Manager.RemoveNPC(npc, c)
		user.SendText(fmt.Sprintf(`%s removed from conversation %d.`, npc.GetName(), c.Id))
		return nil
	}

	if p, ok := env.Realm.UserByName(args); ok && c.HasPlayer(p.Id()) {
		env.Manager.RemovePlayer(p, c)
		user.SendText(fmt.Sprintf(`%s removed from conversation %d.`, p.Name(), c.Id))
		return nil
	}

	mudlog.Debug("conv", "remove", args, "conversation", c.Id)
	return errors.Errorf(`%s is not in conversation %d`, args, c.Id)
}

// cut splits off the first word.
func cut(s string) (string, string) {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, ' '); i > -1 {
		return s[:i], strings.TrimSpace(s[i+1:])
	}
	return s, ``
}

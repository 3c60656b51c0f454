package usercommands

import (
	"github.com/GoMudEngine/palaver/internal/language"
	"github.com/GoMudEngine/palaver/internal/mudlog"
	"github.com/GoMudEngine/palaver/internal/users"
)

// AI toggles whether the NPCs in the player's conversation answer on their own.
func AI(rest string, user *users.UserRecord, env *Env) (bool, error) {
	c := env.Manager.ConversationOf(user.Id())
	if c == nil {
		user.SendText(env.Notices.Text(language.NotInConversation, nil))
		return true, nil
	}

	enabled := env.Manager.ToggleChat(c)
	mudlog.Info("ai-command", "user", user.Name(), "conversation", c.Id, "chatEnabled", enabled)

	return true, nil
}

package usercommands

import (
	"fmt"
	"strings"

	"github.com/GoMudEngine/palaver/internal/characters"
	"github.com/GoMudEngine/palaver/internal/mudlog"
	"github.com/GoMudEngine/palaver/internal/users"
	"github.com/pkg/errors"
)

const describeUsage = `usage: describe <character> <appearance>`

// Describe rewrites a character's appearance line and saves the profile.
// NPCs without a profile get one.
func Describe(rest string, user *users.UserRecord, env *Env) (bool, error) {
	if env.Characters == nil {
		return true, errors.New(`character profiles are not available`)
	}

	fields := strings.Fields(rest)
	if len(fields) < 2 {
		return true, errors.New(describeUsage)
	}

	profile, appearance, ok := findProfile(fields, env)
	if !ok {
		return true, errors.Errorf(`no character called "%s"`, fields[0])
	}

	profile.Appearance = appearance
	if err := env.Characters.Save(profile); err != nil {
		return true, errors.Wrap(err, `could not save `+profile.Name)
	}

	mudlog.Info("describe", "admin", user.Name(), "character", profile.Name)
	user.SendText(fmt.Sprintf(`<ansi fg="mobname">%s</ansi> now appears as: %s`, profile.Name, appearance))

	return true, nil
}

// findProfile takes the longest run of leading words that names a character,
// leaving at least one word for the appearance.
func findProfile(fields []string, env *Env) (characters.Profile, string, bool) {
	for i := len(fields) - 1; i > 0; i-- {
		name := strings.Join(fields[:i], ` `)
		appearance := strings.Join(fields[i:], ` `)

		if p, ok := env.Characters.Profile(name); ok {
			return p, appearance, true
		}
		if mob, ok := env.Realm.NPCByName(name); ok {
			return characters.Profile{Name: mob.GetName()}, appearance, true
		}
	}
	return characters.Profile{}, ``, false
}

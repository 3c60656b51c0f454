package users

import (
	"sync"

	"github.com/GoMudEngine/palaver/internal/world"
)

const outboxSize = 200

// UserRecord is a connected (or recently connected) player.
type UserRecord struct {
	lock     sync.RWMutex
	id       world.PlayerId
	name     string
	nickname string
	pos      world.Position
	online   bool
	admin    bool

	connection func(text string)
	outbox     []string
}

func NewUserRecord(name string, pos world.Position) *UserRecord {
	return &UserRecord{
		id:     world.PlayerId(name),
		name:   name,
		pos:    pos,
		online: true,
	}
}

func (u *UserRecord) Id() world.PlayerId {
	return u.id
}

func (u *UserRecord) Name() string {
	return u.name
}

// Nickname is the name other characters know this player by.
func (u *UserRecord) Nickname() string {
	u.lock.RLock()
	defer u.lock.RUnlock()
	if u.nickname == `` {
		return u.name
	}
	return u.nickname
}

func (u *UserRecord) SetNickname(nick string) {
	u.lock.Lock()
	u.nickname = nick
	u.lock.Unlock()
}

func (u *UserRecord) Position() (world.Position, bool) {
	u.lock.RLock()
	defer u.lock.RUnlock()
	return u.pos, u.online
}

func (u *UserRecord) MoveTo(pos world.Position) {
	u.lock.Lock()
	u.pos = pos
	u.lock.Unlock()
}

func (u *UserRecord) Online() bool {
	u.lock.RLock()
	defer u.lock.RUnlock()
	return u.online
}

func (u *UserRecord) SetOnline(online bool) {
	u.lock.Lock()
	u.online = online
	u.lock.Unlock()
}

// IsAdmin players may run the conv commands.
func (u *UserRecord) IsAdmin() bool {
	u.lock.RLock()
	defer u.lock.RUnlock()
	return u.admin
}

func (u *UserRecord) SetAdmin(admin bool) {
	u.lock.Lock()
	u.admin = admin
	u.lock.Unlock()
}

// SetConnection routes text to a live client. nil detaches it.
func (u *UserRecord) SetConnection(send func(text string)) {
	u.lock.Lock()
	u.connection = send
	u.lock.Unlock()
}

// SendText delivers to the connection if there is one and always keeps
// a copy in the outbox.
func (u *UserRecord) SendText(text string) {
	u.lock.Lock()
	u.outbox = append(u.outbox, text)
	if len(u.outbox) > outboxSize {
		u.outbox = u.outbox[len(u.outbox)-outboxSize:]
	}
	send := u.connection
	u.lock.Unlock()

	if send != nil {
		send(text)
	}
}

// Messages returns a copy of the most recent text sent to the player.
func (u *UserRecord) Messages() []string {
	u.lock.RLock()
	defer u.lock.RUnlock()
	return append([]string(nil), u.outbox...)
}

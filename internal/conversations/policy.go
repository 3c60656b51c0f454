package conversations

import "github.com/pkg/errors"

var (
	ErrNotMember = errors.New("not a member of the conversation")
	ErrEnded     = errors.New("conversation has ended")
)

type EventKind int

const (
	EventStart EventKind = iota
	EventPlayerJoin
	EventNPCJoin
	EventEnd
)

func (k EventKind) String() string {
	switch k {
	case EventStart:
		return "start"
	case EventPlayerJoin:
		return "playerjoin"
	case EventNPCJoin:
		return "npcjoin"
	case EventEnd:
		return "end"
	}
	return "unknown"
}

// Event describes a lifecycle change. Subject is the joining participant, or
// for end events the player being told.
type Event struct {
	Kind           EventKind
	ConversationId int
	Players        []string
	NPCs           []string
	Subject        string
}

// Policy can veto a start or join by returning false.
// The result is ignored for end events.
type Policy interface {
	Allow(ev Event) bool
}

type PolicyFunc func(ev Event) bool

func (f PolicyFunc) Allow(ev Event) bool {
	return f(ev)
}

func newEvent(kind EventKind, c *Conversation, subject string) Event {
	return Event{
		Kind:           kind,
		ConversationId: c.Id,
		Players:        c.PlayerNames(),
		NPCs:           c.NPCNames(),
		Subject:        subject,
	}
}

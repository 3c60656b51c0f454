package conversations

import (
	"strings"
	"sync"
	"sync/atomic"

	"github.com/GoMudEngine/palaver/internal/mobinterfaces"
	"github.com/GoMudEngine/palaver/internal/world"
)

// Repository holds the live conversations. Lookups skip conversations that
// are ending so a player can be in a new one while the old one is summarized.
type Repository struct {
	lock   sync.RWMutex
	nextId atomic.Int64
	live   []*Conversation
	locked map[int]struct{}
}

// NewRepository starts ids at 1.
func NewRepository() *Repository {
	return &Repository{
		locked: map[int]struct{}{},
	}
}

// Register assigns the conversation its id and stores it.
// Already registered conversations keep their id.
func (r *Repository) Register(c *Conversation) int {
	r.lock.Lock()
	defer r.lock.Unlock()

	for _, existing := range r.live {
		if existing == c {
			return c.Id
		}
	}

	if c.Id < 0 {
		c.Id = int(r.nextId.Add(1))
	}
	r.live = append(r.live, c)
	return c.Id
}

// Remove returns false if the conversation was not stored.
func (r *Repository) Remove(c *Conversation) bool {
	r.lock.Lock()
	defer r.lock.Unlock()

	for i, existing := range r.live {
		if existing == c {
			r.live = append(r.live[:i:i], r.live[i+1:]...)
			return true
		}
	}
	return false
}

// FindByPlayer returns the active conversation the player is in, or nil.
func (r *Repository) FindByPlayer(id world.PlayerId) *Conversation {
	r.lock.RLock()
	defer r.lock.RUnlock()

	for _, c := range r.live {
		if c.Active() && c.HasPlayer(id) {
			return c
		}
	}
	return nil
}

// FindByNPC returns the active conversation the NPC is in, or nil.
func (r *Repository) FindByNPC(npc mobinterfaces.NPC) *Conversation {
	r.lock.RLock()
	defer r.lock.RUnlock()

	for _, c := range r.live {
		if c.Active() && c.HasNPC(npc) {
			return c
		}
	}
	return nil
}

// FindByNPCName is case insensitive.
func (r *Repository) FindByNPCName(name string) *Conversation {
	r.lock.RLock()
	defer r.lock.RUnlock()

	for _, c := range r.live {
		if !c.Active() {
			continue
		}
		for _, n := range c.npcNames {
			if strings.EqualFold(n, name) {
				return c
			}
		}
	}
	return nil
}

// FindById returns nil for unknown or ending conversations.
func (r *Repository) FindById(id int) *Conversation {
	r.lock.RLock()
	defer r.lock.RUnlock()

	for _, c := range r.live {
		if c.Active() && c.Id == id {
			return c
		}
	}
	return nil
}

// ListActive returns the conversations that are not ending.
func (r *Repository) ListActive() []*Conversation {
	r.lock.RLock()
	defer r.lock.RUnlock()

	out := make([]*Conversation, 0, len(r.live))
	for _, c := range r.live {
		if c.Active() {
			out = append(out, c)
		}
	}
	return out
}

// All includes conversations that are still ending.
func (r *Repository) All() []*Conversation {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return append([]*Conversation(nil), r.live...)
}

func (r *Repository) Len() int {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return len(r.live)
}

// Lock is advisory. Nothing in the repository honors it.
func (r *Repository) Lock(id int) {
	r.lock.Lock()
	r.locked[id] = struct{}{}
	r.lock.Unlock()
}

// Unlock clears the advisory lock.
func (r *Repository) Unlock(id int) {
	r.lock.Lock()
	delete(r.locked, id)
	r.lock.Unlock()
}

func (r *Repository) IsLocked(id int) bool {
	r.lock.RLock()
	defer r.lock.RUnlock()
	_, ok := r.locked[id]
	return ok
}

// Reset drops every conversation and lock. Ids keep counting up.
func (r *Repository) Reset() {
	r.lock.Lock()
	r.live = nil
	r.locked = map[int]struct{}{}
	r.lock.Unlock()
}

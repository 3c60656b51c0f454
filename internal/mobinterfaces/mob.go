package mobinterfaces

import (
	"sync"

	"github.com/GoMudEngine/palaver/internal/world"
	"github.com/google/uuid"
)

// NPC defines the minimal interface needed by the conversations package
type NPC interface {
	world.Positioned
	// UniqueId is stable for the life of the NPC and is what clients see
	UniqueId() string
	// GetName returns the display name of the NPC
	GetName() string
	// Spawned is false while the NPC has no body in the world
	Spawned() bool
}

// Mob is the in-memory NPC used by the realm.
type Mob struct {
	lock     sync.RWMutex
	uniqueId string
	name     string
	pos      world.Position
	spawned  bool
	disabled bool
}

func NewMob(name string, pos world.Position) *Mob {
	return &Mob{
		uniqueId: uuid.NewString(),
		name:     name,
		pos:      pos,
		spawned:  true,
	}
}

func (m *Mob) UniqueId() string {
	return m.uniqueId
}

func (m *Mob) GetName() string {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.name
}

func (m *Mob) SetName(name string) {
	m.lock.Lock()
	m.name = name
	m.lock.Unlock()
}

func (m *Mob) Position() (world.Position, bool) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.pos, m.spawned
}

func (m *Mob) MoveTo(pos world.Position) {
	m.lock.Lock()
	m.pos = pos
	m.lock.Unlock()
}

func (m *Mob) Spawned() bool {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.spawned
}

func (m *Mob) SetSpawned(spawned bool) {
	m.lock.Lock()
	m.spawned = spawned
	m.lock.Unlock()
}

// Disabled NPCs never start or join conversations on their own.
func (m *Mob) Disabled() bool {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.disabled
}

func (m *Mob) SetDisabled(disabled bool) {
	m.lock.Lock()
	m.disabled = disabled
	m.lock.Unlock()
}

// Package realm is the in-memory host world: who is online, where NPCs
// stand and what the named regions are called.
package realm

import (
	"sort"
	"strings"
	"sync"

	"github.com/GoMudEngine/palaver/internal/mobinterfaces"
	"github.com/GoMudEngine/palaver/internal/users"
	"github.com/GoMudEngine/palaver/internal/world"
)

// Region labels an axis aligned box of a world.
type Region struct {
	Name  string         `yaml:"Name"`
	World string         `yaml:"World"`
	Min   world.Position `yaml:"Min"`
	Max   world.Position `yaml:"Max"`
}

func (r Region) Contains(p world.Position) bool {
	if !strings.EqualFold(r.World, p.World) {
		return false
	}
	return p.X >= r.Min.X && p.X <= r.Max.X &&
		p.Y >= r.Min.Y && p.Y <= r.Max.Y &&
		p.Z >= r.Min.Z && p.Z <= r.Max.Z
}

type Realm struct {
	lock    sync.RWMutex
	players map[world.PlayerId]*users.UserRecord
	npcs    map[string]*mobinterfaces.Mob
	regions []Region
	// npc unique id -> player presenting as that npc
	standIns map[string]world.PlayerId
}

func New() *Realm {
	return &Realm{
		players:  map[world.PlayerId]*users.UserRecord{},
		npcs:     map[string]*mobinterfaces.Mob{},
		standIns: map[string]world.PlayerId{},
	}
}

func (r *Realm) AddPlayer(u *users.UserRecord) {
	r.lock.Lock()
	r.players[u.Id()] = u
	r.lock.Unlock()
}

func (r *Realm) RemovePlayer(id world.PlayerId) {
	r.lock.Lock()
	delete(r.players, id)
	for npcId, pid := range r.standIns {
		if pid == id {
			delete(r.standIns, npcId)
		}
	}
	r.lock.Unlock()
}

// Player only returns players that are online.
func (r *Realm) Player(id world.PlayerId) (world.Player, bool) {
	u, ok := r.User(id)
	if !ok || !u.Online() {
		return nil, false
	}
	return u, true
}

func (r *Realm) User(id world.PlayerId) (*users.UserRecord, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	u, ok := r.players[id]
	return u, ok
}

// UserByName matches the login name or nickname, case insensitive.
func (r *Realm) UserByName(name string) (*users.UserRecord, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	for _, u := range r.players {
		if strings.EqualFold(u.Name(), name) || strings.EqualFold(u.Nickname(), name) {
			return u, true
		}
	}
	return nil, false
}

func (r *Realm) Users() []*users.UserRecord {
	r.lock.RLock()
	out := make([]*users.UserRecord, 0, len(r.players))
	for _, u := range r.players {
		out = append(out, u)
	}
	r.lock.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

func (r *Realm) Nickname(id world.PlayerId) string {
	if u, ok := r.User(id); ok {
		return u.Nickname()
	}
	return string(id)
}

func (r *Realm) AddNPC(m *mobinterfaces.Mob) {
	r.lock.Lock()
	r.npcs[m.UniqueId()] = m
	r.lock.Unlock()
}

func (r *Realm) RemoveNPC(uniqueId string) {
	r.lock.Lock()
	delete(r.npcs, uniqueId)
	delete(r.standIns, uniqueId)
	r.lock.Unlock()
}

func (r *Realm) NPC(uniqueId string) (*mobinterfaces.Mob, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	m, ok := r.npcs[uniqueId]
	return m, ok
}

func (r *Realm) NPCByName(name string) (*mobinterfaces.Mob, bool) {
	for _, m := range r.NPCs() {
		if strings.EqualFold(m.GetName(), name) {
			return m, true
		}
	}
	return nil, false
}

// NPCs returns every NPC ordered by name.
func (r *Realm) NPCs() []*mobinterfaces.Mob {
	r.lock.RLock()
	out := make([]*mobinterfaces.Mob, 0, len(r.npcs))
	for _, m := range r.npcs {
		out = append(out, m)
	}
	r.lock.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].GetName() == out[j].GetName() {
			return out[i].UniqueId() < out[j].UniqueId()
		}
		return out[i].GetName() < out[j].GetName()
	})
	return out
}

func (r *Realm) AddRegion(reg Region) {
	r.lock.Lock()
	r.regions = append(r.regions, reg)
	r.lock.Unlock()
}

// RegionName returns the first region containing pos, or "".
func (r *Realm) RegionName(pos world.Position) string {
	r.lock.RLock()
	defer r.lock.RUnlock()
	for _, reg := range r.regions {
		if reg.Contains(pos) {
			return reg.Name
		}
	}
	return ``
}

// LocationName is the region the NPC is presented in.
func (r *Realm) LocationName(npc mobinterfaces.NPC) string {
	pos, ok := r.PresentationEntity(npc).Position()
	if !ok {
		return ``
	}
	return r.RegionName(pos)
}

// StandIn makes a player present in the world as the NPC.
func (r *Realm) StandIn(npcUniqueId string, player world.PlayerId) {
	r.lock.Lock()
	r.standIns[npcUniqueId] = player
	r.lock.Unlock()
}

func (r *Realm) ClearStandIn(npcUniqueId string) {
	r.lock.Lock()
	delete(r.standIns, npcUniqueId)
	r.lock.Unlock()
}

// PresentationEntity is whatever visibly represents the NPC: the NPC itself
// or an online player standing in for it.
func (r *Realm) PresentationEntity(npc mobinterfaces.NPC) world.Positioned {
	r.lock.RLock()
	pid, ok := r.standIns[npc.UniqueId()]
	r.lock.RUnlock()

	if ok {
		if p, online := r.Player(pid); online {
			return p
		}
	}
	return npc
}

// PlayersNear returns online players within radius of pos.
func (r *Realm) PlayersNear(pos world.Position, radius float64) []world.Player {
	out := []world.Player{}
	for _, u := range r.Users() {
		if p, ok := u.Position(); ok && p.Within(pos, radius) {
			out = append(out, u)
		}
	}
	return out
}

// NPCsNear returns spawned NPCs within radius of pos, nearest first.
func (r *Realm) NPCsNear(pos world.Position, radius float64) []*mobinterfaces.Mob {
	type hit struct {
		mob  *mobinterfaces.Mob
		dist float64
	}
	hits := []hit{}
	for _, m := range r.NPCs() {
		if !m.Spawned() || m.Disabled() {
			continue
		}
		p, ok := r.PresentationEntity(m).Position()
		if !ok {
			continue
		}
		if d := p.Distance(pos); d <= radius {
			hits = append(hits, hit{m, d})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].dist < hits[j].dist })

	out := make([]*mobinterfaces.Mob, len(hits))
	for i, h := range hits {
		out[i] = h.mob
	}
	return out
}

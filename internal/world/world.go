// Package world holds the presence primitives supplied by the host world.
package world

import (
	"math"
	"strings"
)

type PlayerId string

type Position struct {
	World string
	X     float64
	Y     float64
	Z     float64
}

// Distance returns +Inf for positions in different worlds.
func (p Position) Distance(o Position) float64 {
	if !strings.EqualFold(p.World, o.World) {
		return math.Inf(1)
	}
	dx, dy, dz := p.X-o.X, p.Y-o.Y, p.Z-o.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

func (p Position) Within(o Position, radius float64) bool {
	return p.Distance(o) <= radius
}

// Positioned is anything that can currently be found in the world.
// ok is false for despawned or offline entities.
type Positioned interface {
	Position() (pos Position, ok bool)
}

type Player interface {
	Positioned
	Id() PlayerId
	Name() string
	SendText(text string)
}

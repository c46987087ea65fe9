package main

import (
	"math"
	"math/rand"
)

const (
	WorldWidth  = 4000.0
	WorldHeight = 4000.0

	AntSpeed       = 60.0 // pixels/s
	AntWanderDrift = 2.0  // max radians/s the heading changes
	AntReach       = 12.0 // harvest distance

	ResourceAmount       = 50
	ResourceHarvestRate  = 5   // units removed per harvest tick
	ResourceRespawnDelay = 3.0 // seconds before a depleted node relocates

	TypeAnt      = "ant"
	TypeResource = "resource"
	TypeBuilding = "building"
)

// Ant is a wandering agent. Movement here is only the thin driver that keeps
// the spatial index under a live, mutating population — task/brain logic
// lives in the AI layer, not in this server.
type Ant struct {
	ID      string
	X, Y    float64
	Heading float64
}

// NewAnt spawns an ant at a random world position with a random heading
func NewAnt() *Ant {
	return &Ant{
		ID:      GenerateID(4),
		X:       randFloat() * WorldWidth,
		Y:       randFloat() * WorldHeight,
		Heading: randFloat() * 2 * math.Pi,
	}
}

// Update drifts the heading and moves the ant, bouncing off world edges
func (a *Ant) Update(dt float64) {
	a.Heading += (rand.Float64()*2 - 1) * AntWanderDrift * dt
	a.X += math.Cos(a.Heading) * AntSpeed * dt
	a.Y += math.Sin(a.Heading) * AntSpeed * dt

	if a.X < 0 || a.X > WorldWidth {
		a.Heading = math.Pi - a.Heading
		a.X = Clamp(a.X, 0, WorldWidth)
	}
	if a.Y < 0 || a.Y > WorldHeight {
		a.Heading = -a.Heading
		a.Y = Clamp(a.Y, 0, WorldHeight)
	}
}

// Position implements spatial.Positioned
func (a *Ant) Position() (float64, float64) { return a.X, a.Y }

// EntityType implements spatial.Typed
func (a *Ant) EntityType() string { return TypeAnt }

// Resource is a static harvestable node. When depleted it waits
// ResourceRespawnDelay seconds and relocates.
type Resource struct {
	ID       string
	X, Y     float64
	Amount   int
	RespawnT float64 // remaining delay once depleted
}

// NewResource spawns a full resource node at a random position
func NewResource() *Resource {
	return &Resource{
		ID:     GenerateID(4),
		X:      randFloat() * WorldWidth,
		Y:      randFloat() * WorldHeight,
		Amount: ResourceAmount,
	}
}

// Harvest removes up to ResourceHarvestRate units and reports whether the
// node just became depleted
func (r *Resource) Harvest() bool {
	if r.Amount <= 0 {
		return false
	}
	r.Amount -= ResourceHarvestRate
	if r.Amount <= 0 {
		r.Amount = 0
		r.RespawnT = ResourceRespawnDelay
		return true
	}
	return false
}

// TickRespawn counts down the respawn delay; when it expires the node
// relocates and refills. Returns true if the node moved this tick.
func (r *Resource) TickRespawn(dt float64) bool {
	if r.Amount > 0 || r.RespawnT <= 0 {
		return false
	}
	r.RespawnT -= dt
	if r.RespawnT > 0 {
		return false
	}
	r.X = randFloat() * WorldWidth
	r.Y = randFloat() * WorldHeight
	r.Amount = ResourceAmount
	r.RespawnT = 0
	return true
}

// Position implements spatial.Positioned
func (r *Resource) Position() (float64, float64) { return r.X, r.Y }

// EntityType implements spatial.Typed
func (r *Resource) EntityType() string { return TypeResource }

// Building is a static structure (nest, storage)
type Building struct {
	ID   string
	Kind string
	X, Y float64
}

// NewBuilding places a building of the given kind
func NewBuilding(kind string, x, y float64) *Building {
	return &Building{ID: GenerateID(4), Kind: kind, X: x, Y: y}
}

// Position implements spatial.Positioned
func (b *Building) Position() (float64, float64) { return b.X, b.Y }

// EntityType implements spatial.Typed
func (b *Building) EntityType() string { return TypeBuilding }

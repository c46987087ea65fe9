package main

import (
	"log"
	"math"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"colony-server/spatial"
)

const (
	TickRate       = 30 // simulation ticks per second
	BroadcastRate  = 10 // snapshot broadcasts per second
	TickDuration   = time.Second / TickRate
	BroadcastEvery = TickRate / BroadcastRate
	SampleEvery    = TickRate * 5 // metrics sample every 5s

	CellSize          = 64.0
	DefaultViewRadius = 600.0
	MaxViewRadius     = 2000.0

	DefaultAnts      = 200
	DefaultResources = 40
)

// Broadcaster interface for sending messages to observers
type Broadcaster interface {
	SendJSON(msg interface{})
	SendBinary(data []byte)
}

// observer is one connected viewer with a camera position
type observer struct {
	client Broadcaster
	x, y   float64
	radius float64
}

// World owns the simulation state and the spatial index. All index access is
// serialized behind the world mutex — the index itself is not thread-safe.
type World struct {
	mu        sync.Mutex
	index     *spatial.Index
	ants      []*Ant
	resources []*Resource
	buildings []*Building
	observers map[string]*observer
	metrics   *Metrics // may be nil
	tick      uint64
	running   bool
	stop      chan struct{}
}

// NewWorld creates an empty world over a fresh spatial index
func NewWorld(metrics *Metrics) *World {
	return &World{
		index:     spatial.NewIndex(CellSize),
		observers: make(map[string]*observer),
		metrics:   metrics,
		stop:      make(chan struct{}),
	}
}

// Populate spawns a random population through the normal insertion path
func (w *World) Populate(ants, resources int) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for i := 0; i < ants; i++ {
		a := NewAnt()
		w.ants = append(w.ants, a)
		w.index.AddEntity(a)
	}
	for i := 0; i < resources; i++ {
		r := NewResource()
		w.resources = append(w.resources, r)
		w.index.AddEntity(r)
	}
	nest := NewBuilding("nest", WorldWidth/2, WorldHeight/2)
	w.buildings = append(w.buildings, nest)
	w.index.AddEntity(nest)
}

// LoadEntities restores a persisted world from seed rows
func (w *World) LoadEntities(rows []WorldEntityRow) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, row := range rows {
		switch row.Kind {
		case TypeAnt:
			a := &Ant{ID: row.ID, X: row.X, Y: row.Y, Heading: randFloat() * 2 * math.Pi}
			w.ants = append(w.ants, a)
			w.index.AddEntity(a)
		case TypeResource:
			r := &Resource{ID: row.ID, X: row.X, Y: row.Y, Amount: row.Amount}
			w.resources = append(w.resources, r)
			w.index.AddEntity(r)
		case TypeBuilding:
			b := &Building{ID: row.ID, Kind: "nest", X: row.X, Y: row.Y}
			w.buildings = append(w.buildings, b)
			w.index.AddEntity(b)
		default:
			log.Printf("world: skipping seed row with unknown kind %q", row.Kind)
		}
	}
}

// SeedRows snapshots the current population for persistence
func (w *World) SeedRows() []WorldEntityRow {
	w.mu.Lock()
	defer w.mu.Unlock()

	rows := make([]WorldEntityRow, 0, len(w.ants)+len(w.resources)+len(w.buildings))
	for _, a := range w.ants {
		rows = append(rows, WorldEntityRow{ID: a.ID, Kind: TypeAnt, X: a.X, Y: a.Y})
	}
	for _, r := range w.resources {
		rows = append(rows, WorldEntityRow{ID: r.ID, Kind: TypeResource, X: r.X, Y: r.Y, Amount: r.Amount})
	}
	for _, b := range w.buildings {
		rows = append(rows, WorldEntityRow{ID: b.ID, Kind: TypeBuilding, X: b.X, Y: b.Y})
	}
	return rows
}

// Run starts the simulation loop
func (w *World) Run() {
	w.mu.Lock()
	w.running = true
	w.mu.Unlock()

	ticker := time.NewTicker(TickDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.update()
		case <-w.stop:
			return
		}
	}
}

// Stop terminates the simulation loop
func (w *World) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		w.running = false
		close(w.stop)
	}
}

// AddObserver registers a viewer with a default camera
func (w *World) AddObserver(id string, client Broadcaster) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.observers[id] = &observer{
		client: client,
		x:      WorldWidth / 2,
		y:      WorldHeight / 2,
		radius: DefaultViewRadius,
	}
	if w.metrics != nil {
		w.metrics.SetObservers(len(w.observers))
	}
}

// RemoveObserver drops a viewer
func (w *World) RemoveObserver(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.observers, id)
	if w.metrics != nil {
		w.metrics.SetObservers(len(w.observers))
	}
}

// SetCamera moves an observer's camera. Radius 0 keeps the current value.
func (w *World) SetCamera(id string, x, y, radius float64) (float64, float64, float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	obs, ok := w.observers[id]
	if !ok {
		return 0, 0, 0
	}
	obs.x = Clamp(x, 0, WorldWidth)
	obs.y = Clamp(y, 0, WorldHeight)
	if radius > 0 {
		obs.radius = Clamp(radius, CellSize, MaxViewRadius)
	}
	return obs.x, obs.y, obs.radius
}

// ObserverCount returns the number of registered viewers
func (w *World) ObserverCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.observers)
}

// update runs one simulation tick
func (w *World) update() {
	w.mu.Lock()
	defer w.mu.Unlock()

	dt := 1.0 / float64(TickRate)
	w.tick++

	// Move ants; every position change goes through the index
	for _, a := range w.ants {
		a.Update(dt)
		w.index.UpdateEntity(a)
	}

	// Harvest: an ant standing on a live resource drains it
	for _, a := range w.ants {
		near := w.index.NearestEntity(a.X, a.Y, AntReach, spatial.QueryOptions{
			Type:   TypeResource,
			Filter: func(e any) bool { return e.(*Resource).Amount > 0 },
		})
		if near != nil {
			near.(*Resource).Harvest()
		}
	}

	// Depleted resources relocate after their delay
	for _, r := range w.resources {
		if r.TickRespawn(dt) {
			w.index.UpdateEntity(r)
		}
	}

	if w.tick%BroadcastEvery == 0 {
		w.broadcastSnapshots()
	}
	if w.metrics != nil && w.tick%SampleEvery == 0 {
		w.metrics.Record(w.index.Stats())
	}
}

// broadcastSnapshots streams each observer the entities near its camera
func (w *World) broadcastSnapshots() {
	for _, obs := range w.observers {
		ents := w.index.NearbyEntities(obs.x, obs.y, obs.radius, spatial.QueryOptions{})
		snap := SnapshotMsg{
			Tick:     w.tick,
			Entities: make([]EntityState, 0, len(ents)),
		}
		for _, e := range ents {
			snap.Entities = append(snap.Entities, entityState(e))
		}
		data, err := msgpack.Marshal(snap)
		if err != nil {
			log.Printf("world: snapshot marshal: %v", err)
			continue
		}
		obs.client.SendBinary(data)
	}
}

// entityState converts an indexed entity to its wire form
func entityState(e spatial.Positioned) EntityState {
	switch v := e.(type) {
	case *Ant:
		return EntityState{ID: v.ID, Type: TypeAnt, X: v.X, Y: v.Y}
	case *Resource:
		return EntityState{ID: v.ID, Type: TypeResource, X: v.X, Y: v.Y, Amount: v.Amount}
	case *Building:
		return EntityState{ID: v.ID, Type: TypeBuilding, X: v.X, Y: v.Y}
	default:
		x, y := e.Position()
		return EntityState{Type: spatial.TypeUnknown, X: x, Y: y}
	}
}

// QueryNearby answers a one-shot radius query
func (w *World) QueryNearby(x, y, radius float64, typeTag string) []EntityState {
	w.mu.Lock()
	defer w.mu.Unlock()
	ents := w.index.NearbyEntities(x, y, radius, spatial.QueryOptions{Type: typeTag})
	return toStates(ents)
}

// QueryRect answers a one-shot rectangle query (selection box)
func (w *World) QueryRect(left, top, right, bottom float64, typeTag string) []EntityState {
	w.mu.Lock()
	defer w.mu.Unlock()
	ents := w.index.EntitiesInRect(left, top, right, bottom, spatial.QueryOptions{Type: typeTag})
	return toStates(ents)
}

// QueryNearest answers a one-shot nearest query. maxRadius 0 means uncapped.
func (w *World) QueryNearest(x, y, maxRadius float64, typeTag string) (EntityState, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if maxRadius <= 0 {
		maxRadius = math.Inf(1)
	}
	e := w.index.NearestEntity(x, y, maxRadius, spatial.QueryOptions{Type: typeTag})
	if e == nil {
		return EntityState{}, false
	}
	return entityState(e), true
}

func toStates(ents []spatial.Positioned) []EntityState {
	out := make([]EntityState, 0, len(ents))
	for _, e := range ents {
		out = append(out, entityState(e))
	}
	return out
}

// Stats returns the index statistics snapshot
func (w *World) Stats() spatial.IndexStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.index.Stats()
}

// Scatter teleports every ant to a random position without going through
// UpdateEntity, then rebuilds the grid — the bulk-rebuild maintenance path.
// Returns the number of entities rebuilt.
func (w *World) Scatter() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, a := range w.ants {
		a.X = randFloat() * WorldWidth
		a.Y = randFloat() * WorldHeight
	}
	w.index.RebuildGrid()
	return w.index.EntityCount()
}

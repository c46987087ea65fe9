package spatial

// TypeUnknown buckets entities that do not report a type tag.
const TypeUnknown = "unknown"

// QueryOptions narrows a query. Both fields are optional and compose with
// logical AND: Type requires an exact tag match, Filter is an arbitrary
// caller predicate.
type QueryOptions struct {
	Type   string
	Filter func(e any) bool
}

// OpCounters are lifetime operation totals. Clear does not reset them.
type OpCounters struct {
	Adds    uint64 `json:"adds"`
	Removes uint64 `json:"removes"`
	Updates uint64 `json:"updates"`
	Queries uint64 `json:"queries"`
}

// IndexStats is a diagnostics snapshot, not a stable wire format.
type IndexStats struct {
	TotalEntities int            `json:"totalEntities" msgpack:"te"`
	EntityTypes   map[string]int `json:"entityTypes" msgpack:"et"`
	Operations    OpCounters     `json:"operations" msgpack:"op"`
	CellSize      float64        `json:"cellSize" msgpack:"cs"`
	CellCount     int            `json:"cellCount" msgpack:"cc"`
}

// Index is the spatial registry: it owns the authoritative entity list (an
// ordered multiset — the same reference may be tracked more than once), a
// secondary type-tag index, and delegates geometry to a Grid. Entities are
// caller-owned; the index only holds references. Not safe for concurrent
// use — the owner of the frame loop serializes access.
type Index struct {
	grid     *Grid
	entities []any
	byType   map[string][]any
	ops      OpCounters
}

// NewIndex creates an Index over an empty grid with the given cell size.
func NewIndex(cellSize float64) *Index {
	return &Index{
		grid:   NewGrid(cellSize),
		byType: make(map[string][]any),
	}
}

// typeTag returns the entity's tag, or TypeUnknown when it has none.
func typeTag(e any) string {
	if t, ok := e.(Typed); ok {
		return t.EntityType()
	}
	return TypeUnknown
}

// AddEntity starts tracking an entity: registry, type bucket, grid cell.
// Entities without a position accessor are tracked in the registry and type
// index but skip grid placement. Returns false only for nil.
func (ix *Index) AddEntity(e any) bool {
	if e == nil {
		return false
	}
	ix.entities = append(ix.entities, e)
	tag := typeTag(e)
	ix.byType[tag] = append(ix.byType[tag], e)
	if p, ok := e.(Positioned); ok {
		x, y := p.Position()
		ix.grid.Insert(p, x, y)
	}
	ix.ops.Adds++
	return true
}

// RemoveEntity stops tracking the first matching occurrence of an entity.
// Returns whether a removal occurred.
func (ix *Index) RemoveEntity(e any) bool {
	if e == nil {
		return false
	}
	found := false
	for i := range ix.entities {
		if ix.entities[i] == e {
			ix.entities = append(ix.entities[:i], ix.entities[i+1:]...)
			found = true
			break
		}
	}
	if !found {
		return false
	}
	tag := typeTag(e)
	bucket := ix.byType[tag]
	for i := range bucket {
		if bucket[i] == e {
			bucket = append(bucket[:i], bucket[i+1:]...)
			break
		}
	}
	if len(bucket) == 0 {
		delete(ix.byType, tag)
	} else {
		ix.byType[tag] = bucket
	}
	if p, ok := e.(Positioned); ok {
		ix.grid.Remove(p)
	}
	ix.ops.Removes++
	return true
}

// UpdateEntity re-reads the entity's current position and relocates it in
// the grid. Registry and type membership are unaffected.
func (ix *Index) UpdateEntity(e any) bool {
	if e == nil {
		return false
	}
	ix.ops.Updates++
	p, ok := e.(Positioned)
	if !ok {
		return false
	}
	x, y := p.Position()
	return ix.grid.Relocate(p, x, y)
}

// composed builds the grid predicate from the option bag.
func composed(opts QueryOptions) func(Positioned) bool {
	if opts.Type == "" && opts.Filter == nil {
		return nil
	}
	return func(e Positioned) bool {
		if opts.Type != "" && typeTag(e) != opts.Type {
			return false
		}
		if opts.Filter != nil && !opts.Filter(e) {
			return false
		}
		return true
	}
}

// NearbyEntities returns all tracked entities within radius of (x, y) that
// pass the options.
func (ix *Index) NearbyEntities(x, y, radius float64, opts QueryOptions) []Positioned {
	ix.ops.Queries++
	return ix.grid.QueryRadius(x, y, radius, composed(opts))
}

// EntitiesInRect returns all tracked entities inside the rectangle
// (bounds inclusive) that pass the options.
func (ix *Index) EntitiesInRect(left, top, right, bottom float64, opts QueryOptions) []Positioned {
	ix.ops.Queries++
	return ix.grid.QueryRect(left, top, right, bottom, composed(opts))
}

// NearestEntity returns the closest entity to (x, y) within maxRadius that
// passes the options, or nil. Pass math.Inf(1) for an uncapped search.
func (ix *Index) NearestEntity(x, y, maxRadius float64, opts QueryOptions) Positioned {
	ix.ops.Queries++
	return ix.grid.FindNearest(x, y, maxRadius, composed(opts))
}

// AllEntities returns a copy of the registry in insertion order.
func (ix *Index) AllEntities() []any {
	out := make([]any, len(ix.entities))
	copy(out, ix.entities)
	return out
}

// EntitiesByType returns a copy of the entities carrying the given tag.
// Unknown tags yield an empty slice.
func (ix *Index) EntitiesByType(tag string) []any {
	bucket := ix.byType[tag]
	out := make([]any, len(bucket))
	copy(out, bucket)
	return out
}

// EntityCount returns the number of tracked entries (duplicates counted).
func (ix *Index) EntityCount() int {
	return len(ix.entities)
}

// EntityCountByType returns the tracked entry count for one tag.
func (ix *Index) EntityCountByType(tag string) int {
	return len(ix.byType[tag])
}

// HasEntity reports whether at least one occurrence of e is tracked.
func (ix *Index) HasEntity(e any) bool {
	for i := range ix.entities {
		if ix.entities[i] == e {
			return true
		}
	}
	return false
}

// Clear empties the registry, type index, and grid. Operation counters are
// lifetime statistics and survive.
func (ix *Index) Clear() {
	ix.entities = nil
	ix.byType = make(map[string][]any)
	ix.grid.Reset()
}

// RebuildGrid re-derives every grid placement from the registry's current
// positions. Used after bulk position changes that bypassed UpdateEntity, or
// after the registry was populated outside the normal insertion path.
func (ix *Index) RebuildGrid() {
	ix.grid.Reset()
	for _, e := range ix.entities {
		if p, ok := e.(Positioned); ok {
			x, y := p.Position()
			ix.grid.Insert(p, x, y)
		}
	}
}

// Stats returns a diagnostics snapshot of the registry and grid.
func (ix *Index) Stats() IndexStats {
	types := make(map[string]int, len(ix.byType))
	for tag, bucket := range ix.byType {
		types[tag] = len(bucket)
	}
	return IndexStats{
		TotalEntities: len(ix.entities),
		EntityTypes:   types,
		Operations:    ix.ops,
		CellSize:      ix.grid.CellSize(),
		CellCount:     ix.grid.CellCount(),
	}
}

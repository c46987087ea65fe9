package spatial

import "math"

// DefaultCellSize matches the terrain tile size used by the simulation.
const DefaultCellSize = 64.0

// Positioned is the minimal contract an entity must satisfy for grid
// placement: a readable current position in world coordinates.
type Positioned interface {
	Position() (x, y float64)
}

// Typed is implemented by entities that carry a classification tag
// ("ant", "resource", ...). Entities without it fall under TypeUnknown.
type Typed interface {
	EntityType() string
}

// cellKey identifies one grid cell by integer cell coordinates
type cellKey struct {
	cx, cy int
}

// Grid is an unbounded uniform hash grid over 2D world space. It knows
// nothing about entity types or the registry — only positions and buckets.
// Not safe for concurrent use.
type Grid struct {
	cellSize float64
	cells    map[cellKey][]Positioned
	where    map[Positioned]cellKey // entity -> last recorded cell
}

// NewGrid creates an empty grid. cellSize must be positive; non-positive
// values fall back to DefaultCellSize.
func NewGrid(cellSize float64) *Grid {
	if cellSize <= 0 {
		cellSize = DefaultCellSize
	}
	return &Grid{
		cellSize: cellSize,
		cells:    make(map[cellKey][]Positioned),
		where:    make(map[Positioned]cellKey),
	}
}

// keyFor maps a world position to its cell. Floor division, not truncation,
// so negative coordinates land in the correct negative cell.
func (g *Grid) keyFor(x, y float64) cellKey {
	return cellKey{
		cx: int(math.Floor(x / g.cellSize)),
		cy: int(math.Floor(y / g.cellSize)),
	}
}

// Insert places an entity into the cell covering (x, y) and records the
// association. Duplicate inserts create independent bucket entries.
func (g *Grid) Insert(e Positioned, x, y float64) {
	k := g.keyFor(x, y)
	g.cells[k] = append(g.cells[k], e)
	g.where[e] = k
}

// Remove deletes the first matching reference from the entity's recorded
// cell and drops the association. Returns false if the entity has no
// recorded cell.
func (g *Grid) Remove(e Positioned) bool {
	k, ok := g.where[e]
	if !ok {
		return false
	}
	bucket := g.cells[k]
	for i := range bucket {
		if bucket[i] == e {
			bucket = append(bucket[:i], bucket[i+1:]...)
			break
		}
	}
	if len(bucket) == 0 {
		delete(g.cells, k)
	} else {
		g.cells[k] = bucket
	}
	delete(g.where, e)
	return true
}

// Relocate moves an entity to the cell covering (x, y). Entities that have
// not crossed a cell boundary are left untouched. An entity with no recorded
// cell is inserted fresh.
func (g *Grid) Relocate(e Positioned, x, y float64) bool {
	k := g.keyFor(x, y)
	old, ok := g.where[e]
	if !ok {
		g.Insert(e, x, y)
		return true
	}
	if old == k {
		return true
	}
	g.Remove(e)
	g.Insert(e, x, y)
	return true
}

// QueryRadius returns all entities within radius r of (x, y) that satisfy
// pred (nil matches everything). Cell membership is only a conservative
// superset of the circle, so every candidate gets an exact distance test.
func (g *Grid) QueryRadius(x, y, r float64, pred func(Positioned) bool) []Positioned {
	var result []Positioned
	if r < 0 {
		return result
	}
	center := g.keyFor(x, y)
	reach := int(math.Ceil(r / g.cellSize))
	r2 := r * r
	for cy := center.cy - reach; cy <= center.cy+reach; cy++ {
		for cx := center.cx - reach; cx <= center.cx+reach; cx++ {
			for _, e := range g.cells[cellKey{cx, cy}] {
				ex, ey := e.Position()
				dx := ex - x
				dy := ey - y
				if dx*dx+dy*dy <= r2 && (pred == nil || pred(e)) {
					result = append(result, e)
				}
			}
		}
	}
	return result
}

// QueryRect returns all entities whose exact position falls inside the
// rectangle (bounds inclusive) and satisfies pred.
func (g *Grid) QueryRect(left, top, right, bottom float64, pred func(Positioned) bool) []Positioned {
	var result []Positioned
	if right < left || bottom < top {
		return result
	}
	min := g.keyFor(left, top)
	max := g.keyFor(right, bottom)
	for cy := min.cy; cy <= max.cy; cy++ {
		for cx := min.cx; cx <= max.cx; cx++ {
			for _, e := range g.cells[cellKey{cx, cy}] {
				ex, ey := e.Position()
				if ex >= left && ex <= right && ey >= top && ey <= bottom && (pred == nil || pred(e)) {
					result = append(result, e)
				}
			}
		}
	}
	return result
}

// FindNearest returns the entity closest to (x, y) within maxRadius that
// satisfies pred, or nil. Expanding-ring search: query one cell's worth of
// radius, double until a match appears or the radius passes maxRadius.
// Any match found at search radius r rules out closer entities in
// uninspected cells, because the covered cell range fully contains the
// circle of radius r. Ties keep the earliest-encountered entity (strict <).
func (g *Grid) FindNearest(x, y, maxRadius float64, pred func(Positioned) bool) Positioned {
	if len(g.cells) == 0 || maxRadius <= 0 {
		return nil
	}
	limit := maxRadius
	if extent := g.maxExtent(x, y); extent < limit {
		limit = extent
	}
	searchR := g.cellSize
	for {
		r := searchR
		capped := r >= limit
		if capped {
			r = limit
		}
		if best := g.nearestWithin(x, y, r, pred); best != nil {
			return best
		}
		if capped {
			return nil
		}
		searchR *= 2
	}
}

// nearestWithin scans the covered cell range in coordinate order so that
// repeated identical queries break distance ties the same way.
func (g *Grid) nearestWithin(x, y, r float64, pred func(Positioned) bool) Positioned {
	center := g.keyFor(x, y)
	reach := int(math.Ceil(r / g.cellSize))
	r2 := r * r
	var best Positioned
	bestD2 := math.Inf(1)
	for cy := center.cy - reach; cy <= center.cy+reach; cy++ {
		for cx := center.cx - reach; cx <= center.cx+reach; cx++ {
			for _, e := range g.cells[cellKey{cx, cy}] {
				ex, ey := e.Position()
				dx := ex - x
				dy := ey - y
				d2 := dx*dx + dy*dy
				if d2 <= r2 && d2 < bestD2 && (pred == nil || pred(e)) {
					best = e
					bestD2 = d2
				}
			}
		}
	}
	return best
}

// maxExtent returns a radius from (x, y) guaranteed to cover every occupied
// cell, bounding the ring expansion when the caller passed +Inf.
func (g *Grid) maxExtent(x, y float64) float64 {
	extent := 0.0
	for k := range g.cells {
		// Far corner of the cell
		fx := float64(k.cx) * g.cellSize
		fy := float64(k.cy) * g.cellSize
		if dx := math.Abs(fx-x) + g.cellSize; dx > extent {
			extent = dx
		}
		if dy := math.Abs(fy-y) + g.cellSize; dy > extent {
			extent = dy
		}
	}
	return extent * math.Sqrt2
}

// Reset drops all buckets and associations.
func (g *Grid) Reset() {
	g.cells = make(map[cellKey][]Positioned)
	g.where = make(map[Positioned]cellKey)
}

// CellSize returns the configured cell edge length.
func (g *Grid) CellSize() float64 {
	return g.cellSize
}

// CellCount returns the number of live (non-empty) cells.
func (g *Grid) CellCount() int {
	return len(g.cells)
}

// Len returns the number of distinct entities with a recorded cell.
func (g *Grid) Len() int {
	return len(g.where)
}

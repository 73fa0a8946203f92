package claims

import (
	"math"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/simplify"
)

// Cell is one block column in the X/Z plane.
type Cell struct {
	X int `json:"x"`
	Z int `json:"z"`
}

// CellSet is a set of claimed cells.
type CellSet map[Cell]struct{}

// Rasterize returns the cells whose centres fall inside the polygon.
func Rasterize(poly orb.Polygon) CellSet {
	cells := make(CellSet)
	if len(poly) == 0 || len(poly[0]) < 4 {
		return cells
	}

	b := poly.Bound()
	minX, minZ := int(math.Floor(b.Min[0])), int(math.Floor(b.Min[1]))
	maxX, maxZ := int(math.Ceil(b.Max[0])), int(math.Ceil(b.Max[1]))

	for z := minZ; z < maxZ; z++ {
		for x := minX; x < maxX; x++ {
			center := orb.Point{float64(x) + 0.5, float64(z) + 0.5}
			if planar.PolygonContains(poly, center) {
				cells[Cell{x, z}] = struct{}{}
			}
		}
	}
	return cells
}

// Add inserts every cell of o into s.
func (s CellSet) Add(o CellSet) {
	for c := range o {
		s[c] = struct{}{}
	}
}

// Intersects reports whether the two sets share at least one cell.
func (s CellSet) Intersects(o CellSet) bool {
	small, large := s, o
	if len(small) > len(large) {
		small, large = large, small
	}
	for c := range small {
		if _, ok := large[c]; ok {
			return true
		}
	}
	return false
}

// Contains reports whether c is in the set.
func (s CellSet) Contains(c Cell) bool {
	_, ok := s[c]
	return ok
}

// bounds returns the inclusive cell range covered by the set.
func (s CellSet) bounds() (minX, minZ, maxX, maxZ int) {
	minX, minZ = math.MaxInt, math.MaxInt
	maxX, maxZ = math.MinInt, math.MinInt
	for c := range s {
		if c.X < minX {
			minX = c.X
		}
		if c.Z < minZ {
			minZ = c.Z
		}
		if c.X > maxX {
			maxX = c.X
		}
		if c.Z > maxZ {
			maxZ = c.Z
		}
	}
	return minX, minZ, maxX, maxZ
}

// cellGrid is a dense boolean view of a CellSet with a one-cell empty border,
// so a flood fill from index 0 always starts outside the claim.
type cellGrid struct {
	set           []bool
	originX       int
	originZ       int
	width, height int
}

func newCellGrid(s CellSet) *cellGrid {
	if len(s) == 0 {
		return &cellGrid{}
	}
	minX, minZ, maxX, maxZ := s.bounds()

	const pad = 1
	g := &cellGrid{
		originX: minX - pad,
		originZ: minZ - pad,
		width:   maxX - minX + 1 + 2*pad,
		height:  maxZ - minZ + 1 + 2*pad,
	}
	g.set = make([]bool, g.width*g.height)
	for c := range s {
		g.set[g.index(c.X-g.originX, c.Z-g.originZ)] = true
	}
	return g
}

func (g *cellGrid) index(x, z int) int { return z*g.width + x }

func (g *cellGrid) inside(x, z int) bool {
	return x >= 0 && x < g.width && z >= 0 && z < g.height
}

var neighbors4 = [4][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}

// Holes returns the empty cells that cannot reach the outside of the set
// through 4-connected empty cells. A pocket closed only at a diagonal corner
// still counts as a hole, since the claim boundary would touch itself there.
func Holes(s CellSet) []Cell {
	g := newCellGrid(s)
	if len(g.set) == 0 {
		return nil
	}

	outside := make([]bool, len(g.set))
	queue := [][2]int{{0, 0}}
	outside[0] = true
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]
		for _, n := range neighbors4 {
			nx, nz := p[0]+n[0], p[1]+n[1]
			if !g.inside(nx, nz) {
				continue
			}
			i := g.index(nx, nz)
			if g.set[i] || outside[i] {
				continue
			}
			outside[i] = true
			queue = append(queue, [2]int{nx, nz})
		}
	}

	var holes []Cell
	for z := 0; z < g.height; z++ {
		for x := 0; x < g.width; x++ {
			i := g.index(x, z)
			if !g.set[i] && !outside[i] {
				holes = append(holes, Cell{x + g.originX, z + g.originZ})
			}
		}
	}
	return holes
}

// Connected reports whether all cells form one 4-connected component.
func Connected(s CellSet) bool {
	if len(s) == 0 {
		return false
	}
	var start Cell
	for c := range s {
		start = c
		break
	}

	seen := map[Cell]struct{}{start: {}}
	queue := []Cell{start}
	for len(queue) > 0 {
		c := queue[0]
		queue = queue[1:]
		for _, n := range neighbors4 {
			next := Cell{c.X + n[0], c.Z + n[1]}
			if _, ok := s[next]; !ok {
				continue
			}
			if _, ok := seen[next]; ok {
				continue
			}
			seen[next] = struct{}{}
			queue = append(queue, next)
		}
	}
	return len(seen) == len(s)
}

type corner struct{ x, z int }

// Outline traces the boundary of a connected, hole-free cell set into a
// single counter-clockwise polygon with collinear vertices removed.
func Outline(s CellSet) (orb.Polygon, error) {
	if !Connected(s) {
		return nil, ErrDisjointGeometry
	}
	if len(Holes(s)) > 0 {
		return nil, ErrDisjointGeometry
	}

	// Each boundary edge is directed so the claimed cell lies on its left.
	next := make(map[corner]corner)
	for c := range s {
		x, z := c.X, c.Z
		if !s.Contains(Cell{x, z - 1}) {
			next[corner{x, z}] = corner{x + 1, z}
		}
		if !s.Contains(Cell{x + 1, z}) {
			next[corner{x + 1, z}] = corner{x + 1, z + 1}
		}
		if !s.Contains(Cell{x, z + 1}) {
			next[corner{x + 1, z + 1}] = corner{x, z + 1}
		}
		if !s.Contains(Cell{x - 1, z}) {
			next[corner{x, z + 1}] = corner{x, z}
		}
	}

	// Lowest row, leftmost corner is always a true vertex of the outline.
	starts := make([]corner, 0, len(next))
	for k := range next {
		starts = append(starts, k)
	}
	sort.Slice(starts, func(i, j int) bool {
		if starts[i].z != starts[j].z {
			return starts[i].z < starts[j].z
		}
		return starts[i].x < starts[j].x
	})
	start := starts[0]

	ring := orb.Ring{{float64(start.x), float64(start.z)}}
	cur := start
	for steps := 0; ; steps++ {
		n, ok := next[cur]
		if !ok || steps > len(next) {
			return nil, ErrDisjointGeometry
		}
		ring = append(ring, orb.Point{float64(n.x), float64(n.z)})
		cur = n
		if cur == start {
			break
		}
	}
	if len(ring)-1 != len(next) {
		// More than one boundary loop.
		return nil, ErrDisjointGeometry
	}

	simplified, ok := simplify.DouglasPeucker(0).Simplify(ring).(orb.Ring)
	if !ok || len(simplified) < 4 {
		simplified = ring
	}
	return orb.Polygon{simplified}, nil
}

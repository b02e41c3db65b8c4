package maze

import "sync"

// Vec3 is a world-space point. y is up.
type Vec3 struct {
	X, Y, Z float64
}

// wallThickness offsets walls so neighbouring wall meshes don't z-fight.
const wallThickness = 0.005

// WallPlacement tells a renderer where one wall goes.
type WallPlacement struct {
	X, Z     int
	Side     Side
	Position Vec3
}

// Orientation is the axis a wall mesh spans.
type Orientation int

const (
	// Horizontal walls run along x (top and bottom sides).
	Horizontal Orientation = iota
	// Vertical walls run along z (left and right sides).
	Vertical
)

// Orientation returns the mesh orientation needed for p.
func (p WallPlacement) Orientation() Orientation {
	if p.Side == Top || p.Side == Bottom {
		return Horizontal
	}
	return Vertical
}

// RenderPolicy selects which standing walls are emitted.
type RenderPolicy struct {
	// DedupeShared emits each interior edge once: left walls only on the
	// first column and top walls only on the last row.
	DedupeShared bool
	// ForceBoundary emits the outer wall of edge cells even if it was carved.
	ForceBoundary bool
}

// Surface receives wall placements. It is the rendering collaborator.
type Surface interface {
	PlaceWall(p WallPlacement)
}

// Render walks g and hands every wall selected by policy to s.
// The maze is centred on the origin, one world unit per cell.
func Render(g *WallGraph, s Surface, policy RenderPolicy) int {
	n := 0
	for x := 0; x < g.size; x++ {
		for z := 0; z < g.size; z++ {
			for _, side := range Sides() {
				if !g.wallVisible(x, z, side, policy) {
					continue
				}
				s.PlaceWall(WallPlacement{X: x, Z: z, Side: side, Position: g.wallPosition(x, z, side)})
				n++
			}
		}
	}
	return n
}

func (g *WallGraph) onBoundary(x, z int, side Side) bool {
	dx, dz := side.Offset()
	return !g.inBounds(x+dx, z+dz)
}

func (g *WallGraph) wallVisible(x, z int, side Side, policy RenderPolicy) bool {
	standing := g.cells[g.index(x, z)].Walls[side]
	if policy.ForceBoundary && g.onBoundary(x, z, side) {
		standing = true
	}
	if !standing {
		return false
	}
	if !policy.DedupeShared {
		return true
	}
	switch side {
	case Left:
		return x == 0
	case Top:
		return z == g.size-1
	}
	return true
}

func (g *WallGraph) wallPosition(x, z int, side Side) Vec3 {
	half := float64(g.size) / 2
	fx, fz := float64(x), float64(z)
	switch side {
	case Top, Bottom:
		off := 0.0
		if side == Top {
			off = 1
		}
		return Vec3{X: fx + 0.5 - half, Y: 0.5, Z: fz - wallThickness + off - half}
	default:
		off := 0.0
		if side == Right {
			off = 1
		}
		return Vec3{X: fx - wallThickness + off - half, Y: 0.5, Z: fz + 0.5 - half}
	}
}

// TemplatePool builds one template mesh per orientation on first use and
// hands out clones. The templates themselves are never returned.
//
// The caller creates the pool once and passes it to whatever places walls.
type TemplatePool[T any] struct {
	build func(Orientation) T
	clone func(T) T

	mu        sync.Mutex
	templates map[Orientation]T
}

// NewTemplatePool returns a pool using build to create templates and clone
// to copy them.
func NewTemplatePool[T any](build func(Orientation) T, clone func(T) T) *TemplatePool[T] {
	return &TemplatePool[T]{build: build, clone: clone, templates: make(map[Orientation]T)}
}

// Instance returns a fresh clone of the template for o.
func (p *TemplatePool[T]) Instance(o Orientation) T {
	p.mu.Lock()
	t, ok := p.templates[o]
	if !ok {
		t = p.build(o)
		p.templates[o] = t
	}
	p.mu.Unlock()
	return p.clone(t)
}

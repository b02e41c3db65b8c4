package maze

import (
	"errors"
	"fmt"
	"strings"
)

// Maze errors.
var (
	ErrInvalidSize  = errors.New("maze size must be positive")
	ErrInvalidStart = errors.New("start cell is outside the maze")
	ErrOutOfBounds  = errors.New("cell is outside the maze")
	ErrBoundaryWall = errors.New("boundary wall has no neighbour")
	ErrNilSource    = errors.New("random source is nil")
)

// Source is the randomness the generator needs. *math/rand.Rand satisfies it.
type Source interface {
	Intn(n int) int
}

// WallGraph is an N×N grid of cells whose removed walls are the passages.
type WallGraph struct {
	size  int
	cells []Cell
}

// New returns a fully walled size×size graph.
func New(size int) (*WallGraph, error) {
	if size <= 0 {
		return nil, ErrInvalidSize
	}
	g := &WallGraph{size: size, cells: make([]Cell, size*size)}
	for z := 0; z < size; z++ {
		for x := 0; x < size; x++ {
			g.cells[g.index(x, z)] = newCell(x, z)
		}
	}
	return g, nil
}

func (g *WallGraph) index(x, z int) int { return z*g.size + x }

func (g *WallGraph) inBounds(x, z int) bool {
	return x >= 0 && z >= 0 && x < g.size && z < g.size
}

// Size is the number of cells along one edge.
func (g *WallGraph) Size() int { return g.size }

// Cell returns a copy of the cell at (x, z).
func (g *WallGraph) Cell(x, z int) (Cell, bool) {
	if !g.inBounds(x, z) {
		return Cell{}, false
	}
	return g.cells[g.index(x, z)], true
}

// HasWall reports whether the wall on side s of (x, z) stands.
// Out-of-range cells are treated as solid.
func (g *WallGraph) HasWall(x, z int, s Side) bool {
	if !g.inBounds(x, z) {
		return true
	}
	return g.cells[g.index(x, z)].Walls[s]
}

// Carve removes the wall between (x, z) and its neighbour on side s, on both cells.
func (g *WallGraph) Carve(x, z int, s Side) error {
	if !g.inBounds(x, z) {
		return fmt.Errorf("carve (%d,%d): %w", x, z, ErrOutOfBounds)
	}
	dx, dz := s.Offset()
	nx, nz := x+dx, z+dz
	if !g.inBounds(nx, nz) {
		return fmt.Errorf("carve (%d,%d) %s: %w", x, z, s, ErrBoundaryWall)
	}
	g.cells[g.index(x, z)].Walls[s] = false
	g.cells[g.index(nx, nz)].Walls[s.Opposite()] = false
	return nil
}

// Edge is an open passage between two adjacent cells.
type Edge struct {
	X, Z   int
	NX, NZ int
}

// Passages lists every removed interior wall once, scanning right and top walls.
func (g *WallGraph) Passages() []Edge {
	var out []Edge
	for z := 0; z < g.size; z++ {
		for x := 0; x < g.size; x++ {
			c := g.cells[g.index(x, z)]
			if x+1 < g.size && !c.Walls[Right] {
				out = append(out, Edge{X: x, Z: z, NX: x + 1, NZ: z})
			}
			if z+1 < g.size && !c.Walls[Top] {
				out = append(out, Edge{X: x, Z: z, NX: x, NZ: z + 1})
			}
		}
	}
	return out
}

// Symmetric reports whether every interior edge agrees from both sides.
func (g *WallGraph) Symmetric() bool {
	for z := 0; z < g.size; z++ {
		for x := 0; x < g.size; x++ {
			c := g.cells[g.index(x, z)]
			if x+1 < g.size && c.Walls[Right] != g.cells[g.index(x+1, z)].Walls[Left] {
				return false
			}
			if z+1 < g.size && c.Walls[Top] != g.cells[g.index(x, z+1)].Walls[Bottom] {
				return false
			}
		}
	}
	return true
}

// IsPerfect reports whether the passages form a spanning tree over all cells.
func (g *WallGraph) IsPerfect() bool {
	if !g.Symmetric() {
		return false
	}
	n := g.size * g.size
	edges := g.Passages()
	if len(edges) != n-1 {
		return false
	}
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}
	for _, e := range edges {
		a, b := find(g.index(e.X, e.Z)), find(g.index(e.NX, e.NZ))
		if a == b {
			return false
		}
		parent[a] = b
	}
	return true
}

// Equal reports whether both graphs have the same size and walls.
func (g *WallGraph) Equal(o *WallGraph) bool {
	if g == nil || o == nil {
		return g == o
	}
	if g.size != o.size {
		return false
	}
	for i := range g.cells {
		if g.cells[i].Walls != o.cells[i].Walls {
			return false
		}
	}
	return true
}

// String draws the maze with +, -, | characters. The top row is the highest z.
func (g *WallGraph) String() string {
	var b strings.Builder
	for z := g.size - 1; z >= 0; z-- {
		for x := 0; x < g.size; x++ {
			b.WriteString("+")
			if g.HasWall(x, z, Top) {
				b.WriteString("---")
			} else {
				b.WriteString("   ")
			}
		}
		b.WriteString("+\n")
		for x := 0; x < g.size; x++ {
			if g.HasWall(x, z, Left) {
				b.WriteString("|")
			} else {
				b.WriteString(" ")
			}
			b.WriteString("   ")
		}
		if g.HasWall(g.size-1, z, Right) {
			b.WriteString("|")
		}
		b.WriteString("\n")
	}
	for x := 0; x < g.size; x++ {
		b.WriteString("+")
		if g.HasWall(x, 0, Bottom) {
			b.WriteString("---")
		} else {
			b.WriteString("   ")
		}
	}
	b.WriteString("+\n")
	return b.String()
}

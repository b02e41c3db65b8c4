package protocol

import (
	"fmt"

	"mazeplay/maze"
)

// WallFlags mirrors maze.Cell walls on the wire; true means standing.
type WallFlags struct {
	Top    bool `json:"top"`
	Right  bool `json:"right"`
	Left   bool `json:"left"`
	Bottom bool `json:"bottom"`
}

// MazeCell is one cell of a MazeLayout.
type MazeCell struct {
	X     int       `json:"x"`
	Z     int       `json:"z"`
	Walls WallFlags `json:"walls"`
}

// MazeLayout is the room's maze as sent to clients, cells in row order
// (z outer, x inner).
type MazeLayout struct {
	Size  int        `json:"size"`
	Seed  int64      `json:"seed"`
	Cells []MazeCell `json:"cells"`
}

// LayoutOf flattens g for the wire.
func LayoutOf(g *maze.WallGraph, seed int64) MazeLayout {
	n := g.Size()
	l := MazeLayout{Size: n, Seed: seed, Cells: make([]MazeCell, 0, n*n)}
	for z := 0; z < n; z++ {
		for x := 0; x < n; x++ {
			c, _ := g.Cell(x, z)
			l.Cells = append(l.Cells, MazeCell{
				X: x,
				Z: z,
				Walls: WallFlags{
					Top:    c.Has(maze.Top),
					Right:  c.Has(maze.Right),
					Left:   c.Has(maze.Left),
					Bottom: c.Has(maze.Bottom),
				},
			})
		}
	}
	return l
}

// WallGraph rebuilds the maze. Layouts whose shared walls disagree between
// neighbours, or that open the outer boundary, are rejected.
func (l MazeLayout) WallGraph() (*maze.WallGraph, error) {
	g, err := maze.New(l.Size)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(l.Cells) != l.Size*l.Size {
		return nil, fmt.Errorf("%w: %d cells for size %d", ErrMalformed, len(l.Cells), l.Size)
	}
	flags := make(map[[2]int]WallFlags, len(l.Cells))
	for _, c := range l.Cells {
		if _, ok := g.Cell(c.X, c.Z); !ok {
			return nil, fmt.Errorf("%w: cell (%d,%d) out of range", ErrMalformed, c.X, c.Z)
		}
		flags[[2]int{c.X, c.Z}] = c.Walls
	}
	if len(flags) != len(l.Cells) {
		return nil, fmt.Errorf("%w: duplicate cells", ErrMalformed)
	}
	for key, f := range flags {
		x, z := key[0], key[1]
		if (x == 0 && !f.Left) || (z == 0 && !f.Bottom) ||
			(x == l.Size-1 && !f.Right) || (z == l.Size-1 && !f.Top) {
			return nil, fmt.Errorf("%w: open boundary at (%d,%d)", ErrMalformed, x, z)
		}
		if x+1 < l.Size && f.Right != flags[[2]int{x + 1, z}].Left {
			return nil, fmt.Errorf("%w: asymmetric wall right of (%d,%d)", ErrMalformed, x, z)
		}
		if z+1 < l.Size && f.Top != flags[[2]int{x, z + 1}].Bottom {
			return nil, fmt.Errorf("%w: asymmetric wall above (%d,%d)", ErrMalformed, x, z)
		}
		if x+1 < l.Size && !f.Right {
			if err := g.Carve(x, z, maze.Right); err != nil {
				return nil, err
			}
		}
		if z+1 < l.Size && !f.Top {
			if err := g.Carve(x, z, maze.Top); err != nil {
				return nil, err
			}
		}
	}
	return g, nil
}

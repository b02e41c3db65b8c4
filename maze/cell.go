package maze

import "fmt"

// Side names one of the four walls of a cell.
type Side int

const (
	Top Side = iota
	Right
	Left
	Bottom
)

// sideCount is the number of walls a cell has.
const sideCount = 4

var sideNames = [sideCount]string{"top", "right", "left", "bottom"}

func (s Side) String() string {
	if s < 0 || s >= sideCount {
		return fmt.Sprintf("Side(%d)", int(s))
	}
	return sideNames[s]
}

// Opposite returns the side the neighbour sees for the same edge.
func (s Side) Opposite() Side {
	switch s {
	case Top:
		return Bottom
	case Bottom:
		return Top
	case Left:
		return Right
	default:
		return Left
	}
}

// Offset returns the grid step (dx, dz) towards the neighbour on side s.
// Top is +z, Right is +x.
func (s Side) Offset() (dx, dz int) {
	switch s {
	case Top:
		return 0, 1
	case Bottom:
		return 0, -1
	case Right:
		return 1, 0
	default:
		return -1, 0
	}
}

// Sides lists all sides in declaration order.
func Sides() [sideCount]Side {
	return [sideCount]Side{Top, Right, Left, Bottom}
}

// Cell is one grid square. A true flag means the wall is standing.
type Cell struct {
	X, Z  int
	Walls [sideCount]bool
}

func newCell(x, z int) Cell {
	return Cell{X: x, Z: z, Walls: [sideCount]bool{true, true, true, true}}
}

// Has reports whether the wall on side s is standing.
func (c Cell) Has(s Side) bool {
	return c.Walls[s]
}

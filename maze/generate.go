package maze

import "fmt"

type options struct {
	startSet bool
	startX   int
	startZ   int
}

// Option tweaks Generate.
type Option func(*options)

// WithStart fixes the cell carving begins from. Without it the start is
// drawn uniformly from the Source. The Source is still needed to shuffle
// directions.
func WithStart(x, z int) Option {
	return func(o *options) {
		o.startSet = true
		o.startX = x
		o.startZ = z
	}
}

// frame is one level of the backtracker: a cell, its shuffled sides and how
// many of them have been tried.
type frame struct {
	x, z  int
	sides [sideCount]Side
	next  int
}

// Generate carves a perfect maze with a randomized backtracker.
//
// The walk keeps its own stack so a single long corridor of size² cells does
// not grow the goroutine stack.
func Generate(size int, rng Source, opts ...Option) (*WallGraph, error) {
	if rng == nil {
		return nil, ErrNilSource
	}
	g, err := New(size)
	if err != nil {
		return nil, err
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	var sx, sz int
	if o.startSet {
		if !g.inBounds(o.startX, o.startZ) {
			return nil, fmt.Errorf("start (%d,%d) in %dx%d: %w", o.startX, o.startZ, size, size, ErrInvalidStart)
		}
		sx, sz = o.startX, o.startZ
	} else {
		sx, sz = rng.Intn(size), rng.Intn(size)
	}

	visited := make([]bool, size*size)
	visited[g.index(sx, sz)] = true
	stack := make([]frame, 0, size)
	stack = append(stack, frame{x: sx, z: sz, sides: shuffledSides(rng)})

	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if top.next == sideCount {
			stack = stack[:len(stack)-1]
			continue
		}
		s := top.sides[top.next]
		top.next++

		dx, dz := s.Offset()
		nx, nz := top.x+dx, top.z+dz
		if !g.inBounds(nx, nz) || visited[g.index(nx, nz)] {
			continue
		}
		g.cells[g.index(top.x, top.z)].Walls[s] = false
		g.cells[g.index(nx, nz)].Walls[s.Opposite()] = false
		visited[g.index(nx, nz)] = true
		stack = append(stack, frame{x: nx, z: nz, sides: shuffledSides(rng)})
	}
	return g, nil
}

// shuffledSides is a Fisher-Yates shuffle of the four sides.
func shuffledSides(rng Source) [sideCount]Side {
	s := [sideCount]Side{Left, Right, Bottom, Top}
	for i := sideCount - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		s[i], s[j] = s[j], s[i]
	}
	return s
}

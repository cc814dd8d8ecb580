package main

import "math/rand"

// CellType classifies the static content of a grid cell
type CellType int

const (
	CellEmpty CellType = iota
	CellWall           // indestructible
	CellBlock          // destructible
)

// Cell is a grid coordinate
type Cell struct {
	X int `json:"x" msgpack:"x"`
	Y int `json:"y" msgpack:"y"`
}

// Grid is the destructible-block layout for one match. The fixed-wall
// pattern (border plus every cell where both coordinates are even) is
// permanent and independent of the cells slice, which only tracks blocks
// and hand-placed walls.
type Grid struct {
	W, H  int
	cells [][]CellType
}

// NewEmptyGrid returns a grid with only the fixed-wall pattern
func NewEmptyGrid(w, h int) *Grid {
	cells := make([][]CellType, h)
	for y := range cells {
		cells[y] = make([]CellType, w)
	}
	return &Grid{W: w, H: h, cells: cells}
}

// NewGrid generates a match grid: random destructible fill at the given
// density, spawn corners and their adjacent cells kept clear. The same
// seed always produces the same layout, so clients can rebuild it from
// the mapSeed in the start payload.
func NewGrid(w, h int, density float64, seed int64) *Grid {
	g := NewEmptyGrid(w, h)
	rng := rand.New(rand.NewSource(seed))

	safe := spawnSafeZone(w, h)
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			if g.IsFixedWall(x, y) || safe[Cell{x, y}] {
				continue
			}
			if rng.Float64() < density {
				g.cells[y][x] = CellBlock
			}
		}
	}
	return g
}

// SpawnCorners returns the four player spawn cells, indexed by slot
func SpawnCorners(w, h int) [4]Cell {
	return [4]Cell{
		{1, 1},
		{w - 2, 1},
		{1, h - 2},
		{w - 2, h - 2},
	}
}

// spawnSafeZone marks each spawn corner and its orthogonal neighbors as
// block-free so players are not boxed in at match start.
func spawnSafeZone(w, h int) map[Cell]bool {
	safe := make(map[Cell]bool)
	for _, sp := range SpawnCorners(w, h) {
		safe[sp] = true
		safe[Cell{sp.X + 1, sp.Y}] = true
		safe[Cell{sp.X - 1, sp.Y}] = true
		safe[Cell{sp.X, sp.Y + 1}] = true
		safe[Cell{sp.X, sp.Y - 1}] = true
	}
	return safe
}

// InBounds reports whether the cell is on the grid
func (g *Grid) InBounds(x, y int) bool {
	return x >= 0 && x < g.W && y >= 0 && y < g.H
}

// IsFixedWall reports whether the cell is part of the permanent wall
// pattern: the border, or both coordinates even (the pillar grid).
func (g *Grid) IsFixedWall(x, y int) bool {
	if !g.InBounds(x, y) {
		return true
	}
	if x == 0 || y == 0 || x == g.W-1 || y == g.H-1 {
		return true
	}
	return x%2 == 0 && y%2 == 0
}

// At returns the cell content, treating out-of-bounds and the fixed
// pattern as walls. This is the single collision/blocking authority.
func (g *Grid) At(x, y int) CellType {
	if g.IsFixedWall(x, y) {
		return CellWall
	}
	return g.cells[y][x]
}

// SetWall places an indestructible wall (used by tests and custom maps)
func (g *Grid) SetWall(x, y int) {
	if g.InBounds(x, y) {
		g.cells[y][x] = CellWall
	}
}

// SetBlock places a destructible block
func (g *Grid) SetBlock(x, y int) {
	if g.InBounds(x, y) {
		g.cells[y][x] = CellBlock
	}
}

// DestroyBlock clears a destructible block. Returns false if the cell
// held no block (already destroyed, or never a block); callers treat
// that as a no-op.
func (g *Grid) DestroyBlock(x, y int) bool {
	if !g.InBounds(x, y) || g.cells[y][x] != CellBlock {
		return false
	}
	g.cells[y][x] = CellEmpty
	return true
}

// Blocks returns all remaining destructible block cells
func (g *Grid) Blocks() []Cell {
	var out []Cell
	for y := 0; y < g.H; y++ {
		for x := 0; x < g.W; x++ {
			if g.cells[y][x] == CellBlock {
				out = append(out, Cell{x, y})
			}
		}
	}
	return out
}

// Walkable reports whether a player can occupy the cell
func (g *Grid) Walkable(x, y int) bool {
	return g.At(x, y) == CellEmpty
}

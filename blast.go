package main

// Blast is the computed footprint of one detonation. It is derived state:
// the server applies its side effects and discards it, clients recompute
// it locally for rendering from the same inputs.
type Blast struct {
	Origin          Cell
	Cells           []Cell // every affected cell, origin first
	DestroyedBlocks []Cell // blocks consumed by this blast
}

var blastDirs = [4]Cell{
	{0, -1}, // up
	{0, 1},  // down
	{-1, 0}, // left
	{1, 0},  // right
}

// ComputeBlast walks outward from the origin in the four cardinal
// directions, up to rng cells each. A wall (fixed pattern or placed)
// halts a direction before the cell; a destructible block is included,
// recorded as destroyed, and halts the direction after itself. The
// origin is always included regardless of terrain. Pure function of
// grid + origin + range: it never mutates the grid.
func ComputeBlast(g *Grid, origin Cell, rng int) Blast {
	b := Blast{
		Origin: origin,
		Cells:  []Cell{origin},
	}

	for _, d := range blastDirs {
	walk:
		for dist := 1; dist <= rng; dist++ {
			c := Cell{origin.X + d.X*dist, origin.Y + d.Y*dist}
			switch g.At(c.X, c.Y) {
			case CellWall:
				break walk
			case CellBlock:
				b.Cells = append(b.Cells, c)
				b.DestroyedBlocks = append(b.DestroyedBlocks, c)
				break walk
			default:
				b.Cells = append(b.Cells, c)
			}
		}
	}
	return b
}

// Contains reports whether the blast footprint covers the cell
func (b *Blast) Contains(c Cell) bool {
	for _, bc := range b.Cells {
		if bc == c {
			return true
		}
	}
	return false
}

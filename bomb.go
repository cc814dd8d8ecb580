package main

import (
	"time"
)

// Bomb is a placed, unexploded bomb. The fuse timer handle lives on the
// record so that cancellation (owner leaving, chain detonation) is a
// first-class operation instead of an ambient side effect.
type Bomb struct {
	ID             string
	OwnerID        string
	X, Y           int
	ExplosionRange int
	PlacedAt       time.Time

	fuse     *time.Timer
	exploded bool
}

// NewBomb creates a bomb record at a grid cell
func NewBomb(ownerID string, x, y, rng int) *Bomb {
	return &Bomb{
		ID:             GenerateID(4),
		OwnerID:        ownerID,
		X:              x,
		Y:              y,
		ExplosionRange: rng,
		PlacedAt:       time.Now(),
	}
}

// Cell returns the bomb's grid cell
func (b *Bomb) Cell() Cell {
	return Cell{b.X, b.Y}
}

// armFuse schedules the automatic detonation. fn runs on a timer
// goroutine; it must take the game lock itself.
func (b *Bomb) armFuse(d time.Duration, fn func()) {
	b.fuse = time.AfterFunc(d, fn)
}

// CancelFuse stops the pending fuse. Safe to call multiple times and
// safe to call on a bomb whose fuse already fired.
func (b *Bomb) CancelFuse() {
	if b.fuse != nil {
		b.fuse.Stop()
	}
}

// Info converts to the protocol representation
func (b *Bomb) Info() BombInfo {
	return BombInfo{
		ID:             b.ID,
		OwnerID:        b.OwnerID,
		X:              b.X,
		Y:              b.Y,
		ExplosionRange: b.ExplosionRange,
	}
}

package main

import "math/rand"

// Power-up types
const (
	PowerupBombCapacity   = "bomb-capacity"
	PowerupExplosionRange = "explosion-range"
	PowerupSpeed          = "speed"
	PowerupExtraLife      = "extra-life"
)

var powerupTypes = []string{
	PowerupBombCapacity,
	PowerupExplosionRange,
	PowerupSpeed,
	PowerupExtraLife,
}

const (
	maxBombCapacity   = 6
	maxExplosionRange = 8
	maxSpeed          = 6.0
	maxLives          = 5
)

// Powerup sits on a grid cell until collected or destroyed by a blast
type Powerup struct {
	ID   string
	Type string
	X, Y int
}

// NewPowerup spawns a power-up of a random type at the given cell
func NewPowerup(x, y int, rng *rand.Rand) *Powerup {
	return &Powerup{
		ID:   GenerateID(4),
		Type: powerupTypes[rng.Intn(len(powerupTypes))],
		X:    x,
		Y:    y,
	}
}

// Cell returns the power-up's grid cell
func (pu *Powerup) Cell() Cell {
	return Cell{pu.X, pu.Y}
}

// Info converts to the protocol representation
func (pu *Powerup) Info() PowerupInfo {
	return PowerupInfo{ID: pu.ID, Type: pu.Type, X: pu.X, Y: pu.Y}
}

// Apply grants the power-up's stat effect, clamped so stacking stays sane
func (pu *Powerup) Apply(p *Player) {
	switch pu.Type {
	case PowerupBombCapacity:
		p.BombCapacity = ClampI(p.BombCapacity+1, 1, maxBombCapacity)
	case PowerupExplosionRange:
		p.ExplosionRange = ClampI(p.ExplosionRange+1, 1, maxExplosionRange)
	case PowerupSpeed:
		p.Speed = ClampF(p.Speed+0.5, 1, maxSpeed)
	case PowerupExtraLife:
		p.Lives = ClampI(p.Lives+1, 1, maxLives)
	}
}

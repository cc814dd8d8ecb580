package main

import (
	"math"
	"time"
)

const (
	DefaultLives          = 3
	DefaultSpeed          = 3.0
	DefaultBombCapacity   = 1
	DefaultExplosionRange = 1
)

// PlayerColors is the fixed palette, indexed by slot (playerNumber - 1)
var PlayerColors = [4]string{"#e94f37", "#3a86ff", "#2dc653", "#ffbe0b"}

// Player is one participant's in-match state. Position is continuous
// during movement and snapped to the grid for collision, bomb placement
// and power-up collection.
type Player struct {
	ID       string
	Nickname string
	Number   int // 1..4, assigns spawn corner and color
	Color    string

	X, Y      float64
	Direction string

	Lives          int
	Alive          bool
	Invulnerable   bool
	Speed          float64
	BombCapacity   int
	ExplosionRange int
	ActiveBombs    int

	EliminatedBy string // attacker id, set once at elimination
	elimOrder    int    // 1 = first out, used for final rankings

	invulnTimer *time.Timer

	// Per-match counters, flushed to the database on match end
	Eliminations      int
	BombsPlaced       int
	BlocksDestroyed   int
	PowerupsCollected int

	AuthPlayerID int64 // 0 = guest, no persistent stats
}

// NewPlayer creates a player at the spawn corner for its slot
func NewPlayer(id, nickname string, number int, spawn Cell) *Player {
	return &Player{
		ID:             id,
		Nickname:       nickname,
		Number:         number,
		Color:          PlayerColors[(number-1)%len(PlayerColors)],
		X:              float64(spawn.X),
		Y:              float64(spawn.Y),
		Lives:          DefaultLives,
		Alive:          true,
		Speed:          DefaultSpeed,
		BombCapacity:   DefaultBombCapacity,
		ExplosionRange: DefaultExplosionRange,
	}
}

// GridCell returns the player's position snapped to the grid
func (p *Player) GridCell() Cell {
	return Cell{int(math.Round(p.X)), int(math.Round(p.Y))}
}

// startInvulnerability opens the post-hit damage window. fn runs on a
// timer goroutine when it closes; it must take the game lock itself.
func (p *Player) startInvulnerability(d time.Duration, fn func()) {
	p.CancelInvulnerability()
	p.Invulnerable = true
	p.invulnTimer = time.AfterFunc(d, fn)
}

// CancelInvulnerability stops the pending window timer. Safe to call
// multiple times; the flag itself is cleared by the caller under lock.
func (p *Player) CancelInvulnerability() {
	if p.invulnTimer != nil {
		p.invulnTimer.Stop()
	}
}

// Info converts to the protocol representation
func (p *Player) Info() PlayerInfo {
	return PlayerInfo{
		ID:             p.ID,
		Nickname:       p.Nickname,
		Number:         p.Number,
		Color:          p.Color,
		X:              p.X,
		Y:              p.Y,
		Direction:      p.Direction,
		Lives:          p.Lives,
		Speed:          p.Speed,
		BombCapacity:   p.BombCapacity,
		ExplosionRange: p.ExplosionRange,
		Alive:          p.Alive,
	}
}

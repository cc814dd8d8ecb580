package main

import (
	"encoding/json"
	"time"
)

// LocalView is the client-side replica of match state. The local player
// is applied optimistically on input and overwritten by the server echo;
// remote players, bombs and explosions are applied verbatim. All apply
// paths are idempotent so duplicated or re-delivered events are no-ops.
type LocalView struct {
	LocalID string

	Grid     *Grid
	Players  map[string]*PlayerInfo
	Bombs    map[string]*BombInfo
	Powerups map[string]*PowerupInfo

	Phase       Phase
	Countdown   int
	LastTick    uint64
	Result      *GameEndedMsg
	explodedIDs map[string]bool
}

// NewLocalView creates an empty view for the given local player id
func NewLocalView(localID string) *LocalView {
	return &LocalView{
		LocalID:     localID,
		Players:     make(map[string]*PlayerInfo),
		Bombs:       make(map[string]*BombInfo),
		Powerups:    make(map[string]*PowerupInfo),
		Phase:       PhaseWaiting,
		explodedIDs: make(map[string]bool),
	}
}

// LocalMove applies the local player's input immediately. The server's
// echo of the same move arrives later and overwrites this state; since
// movement is unvalidated the echo carries the same values and the
// overwrite is just convergence, not correction.
func (v *LocalView) LocalMove(x, y float64, direction string) {
	p, ok := v.Players[v.LocalID]
	if !ok || !p.Alive {
		return
	}
	p.X = x
	p.Y = y
	p.Direction = direction
}

// Apply dispatches one relay message into the view. Unknown types are
// ignored so the view tolerates protocol additions.
func (v *LocalView) Apply(msgType string, data json.RawMessage) {
	switch msgType {
	case MsgCountdown:
		var m CountdownMsg
		if json.Unmarshal(data, &m) == nil {
			v.Phase = PhaseCountdown
			v.Countdown = m.SecondsRemaining
		}
	case MsgGameStarted:
		var m GameStartedMsg
		if json.Unmarshal(data, &m) == nil {
			v.applyGameStarted(m)
		}
	case MsgMove:
		var m MoveMsg
		if json.Unmarshal(data, &m) == nil {
			v.applyMove(m)
		}
	case MsgDropBomb:
		var m DropBombMsg
		if json.Unmarshal(data, &m) == nil {
			v.applyBomb(m)
		}
	case MsgBombExplode:
		var m BombExplodeMsg
		if json.Unmarshal(data, &m) == nil {
			v.applyExplosion(m)
		}
	case MsgBlockDestroyed:
		var m BlockDestroyedMsg
		if json.Unmarshal(data, &m) == nil {
			v.Grid.DestroyBlock(m.X, m.Y)
		}
	case MsgPowerupSpawned:
		var m PowerupInfo
		if json.Unmarshal(data, &m) == nil {
			pu := m
			v.Powerups[m.ID] = &pu
		}
	case MsgPowerupCollected:
		var m PowerupCollectedMsg
		if json.Unmarshal(data, &m) == nil {
			delete(v.Powerups, m.ID)
		}
	case MsgPlayerHit:
		var m PlayerHitMsg
		if json.Unmarshal(data, &m) == nil {
			if p, ok := v.Players[m.VictimID]; ok {
				p.Lives = m.Lives
			}
		}
	case MsgPlayerEliminated:
		var m PlayerEliminatedMsg
		if json.Unmarshal(data, &m) == nil {
			if p, ok := v.Players[m.VictimID]; ok {
				p.Alive = false
				p.Lives = 0
			}
		}
	case MsgPlayerLeft:
		var m PlayerLeftMsg
		if json.Unmarshal(data, &m) == nil {
			delete(v.Players, m.ID)
		}
	case MsgGameEnded:
		var m GameEndedMsg
		if json.Unmarshal(data, &m) == nil {
			v.Phase = PhaseEnded
			v.Result = &m
		}
	}
}

// applyGameStarted rebuilds the grid from the broadcast map seed so the
// replica is cell-identical to the server's authoritative grid.
func (v *LocalView) applyGameStarted(m GameStartedMsg) {
	cfg := DefaultConfig()
	v.Grid = NewGrid(cfg.GridWidth, cfg.GridHeight, cfg.BlockDensity, m.MapSeed)
	v.Players = make(map[string]*PlayerInfo, len(m.Players))
	v.Bombs = make(map[string]*BombInfo)
	v.Powerups = make(map[string]*PowerupInfo, len(m.Powerups))
	v.explodedIDs = make(map[string]bool)
	v.Result = nil
	for i := range m.Players {
		p := m.Players[i]
		v.Players[p.ID] = &p
	}
	for i := range m.Powerups {
		pu := m.Powerups[i]
		v.Powerups[pu.ID] = &pu
	}
	v.Phase = PhasePlaying
}

// applyMove overwrites a player's position verbatim, local player
// included: the server echo is authoritative.
func (v *LocalView) applyMove(m MoveMsg) {
	p, ok := v.Players[m.ID]
	if !ok {
		return
	}
	p.X = m.X
	p.Y = m.Y
	p.Direction = m.Direction
}

func (v *LocalView) applyBomb(m DropBombMsg) {
	if _, ok := v.Bombs[m.BombID]; ok {
		return
	}
	if v.explodedIDs[m.BombID] {
		return
	}
	v.Bombs[m.BombID] = &BombInfo{
		ID:             m.BombID,
		OwnerID:        m.OwnerID,
		X:              m.X,
		Y:              m.Y,
		ExplosionRange: m.ExplosionRange,
	}
}

// applyExplosion applies a detonation verbatim. Blast cells come from
// the message when present; otherwise they are recomputed from the
// replicated grid, which yields the same set the server computed.
// Re-delivery of the same bomb id is a no-op.
func (v *LocalView) applyExplosion(m BombExplodeMsg) {
	if v.explodedIDs[m.BombID] {
		return
	}
	v.explodedIDs[m.BombID] = true
	delete(v.Bombs, m.BombID)

	cells := m.Cells
	if len(cells) == 0 && v.Grid != nil {
		cells = ComputeBlast(v.Grid, Cell{m.X, m.Y}, m.ExplosionRange).Cells
	}
	for _, c := range cells {
		if v.Grid != nil {
			v.Grid.DestroyBlock(c.X, c.Y)
		}
		for id, pu := range v.Powerups {
			if pu.X == c.X && pu.Y == c.Y {
				delete(v.Powerups, id)
			}
		}
	}
}

// ApplySnapshot reconciles the view against a binary state snapshot.
// Stale snapshots (tick not advancing) are dropped so late frames never
// roll the view backwards.
func (v *LocalView) ApplySnapshot(s Snapshot) {
	if s.Tick <= v.LastTick && v.LastTick != 0 {
		return
	}
	v.LastTick = s.Tick

	seen := make(map[string]bool, len(s.Players))
	for i := range s.Players {
		sp := s.Players[i]
		seen[sp.ID] = true
		p, ok := v.Players[sp.ID]
		if !ok {
			cp := sp
			v.Players[sp.ID] = &cp
			continue
		}
		*p = sp
	}
	for id := range v.Players {
		if !seen[id] {
			delete(v.Players, id)
		}
	}

	v.Bombs = make(map[string]*BombInfo, len(s.Bombs))
	for i := range s.Bombs {
		b := s.Bombs[i]
		if !v.explodedIDs[b.ID] {
			v.Bombs[b.ID] = &b
		}
	}
	v.Powerups = make(map[string]*PowerupInfo, len(s.Powerups))
	for i := range s.Powerups {
		pu := s.Powerups[i]
		v.Powerups[pu.ID] = &pu
	}
}

// ReconnectPolicy gives the retry schedule after a connection drop:
// bounded attempts with increasing backoff, then give up.
type ReconnectPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultReconnectPolicy matches the client's retry behavior
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		MaxAttempts: 5,
		BaseDelay:   time.Second,
		MaxDelay:    15 * time.Second,
	}
}

// Delay returns the wait before the given attempt (0-based), or false
// when attempts are exhausted and the client should report
// itself offline.
func (p ReconnectPolicy) Delay(attempt int) (time.Duration, bool) {
	if attempt >= p.MaxAttempts {
		return 0, false
	}
	d := p.BaseDelay << uint(attempt)
	if d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d, true
}

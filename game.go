package main

import (
	"fmt"
	"log"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// GameConfig holds the tunables for a match. Tests shorten the timer
// durations; production uses DefaultConfig.
type GameConfig struct {
	GridWidth         int
	GridHeight        int
	BlockDensity      float64
	FuseDuration      time.Duration
	InvulnDuration    time.Duration
	GraceDuration     time.Duration
	CountdownDuration time.Duration
	SnapshotInterval  time.Duration
	PowerupChance     float64 // spawn roll per destroyed block
	SeedPowerups      int     // power-ups placed at match start
	MinPlayers        int
	MaxPlayers        int
}

// DefaultConfig returns the standard arena settings
func DefaultConfig() GameConfig {
	return GameConfig{
		GridWidth:         15,
		GridHeight:        13,
		BlockDensity:      0.45,
		FuseDuration:      2500 * time.Millisecond,
		InvulnDuration:    2 * time.Second,
		GraceDuration:     20 * time.Second,
		CountdownDuration: 10 * time.Second,
		SnapshotInterval:  250 * time.Millisecond,
		PowerupChance:     0.08,
		SeedPowerups:      3,
		MinPlayers:        2,
		MaxPlayers:        4,
	}
}

// Broadcaster sends messages to one client
type Broadcaster interface {
	SendJSON(msg interface{})
	SendBinary(data []byte)
}

// Game is the authoritative state of one running match: players, bombs,
// power-ups and the block grid. All mutation goes through its methods;
// fuse and invulnerability callbacks re-enter through Detonate and
// clearInvuln, which take the lock themselves.
type Game struct {
	mu       sync.Mutex
	cfg      GameConfig
	grid     *Grid
	seed     int64
	players  map[string]*Player
	bombs    map[string]*Bomb
	powerups map[string]*Powerup
	clients  map[string]Broadcaster
	rng      *rand.Rand

	tick        uint64
	elimCounter int
	over        bool
	result      *GameEndedMsg
	startedAt   time.Time
	stopSnap    chan struct{}

	// onEnd runs once, off the game lock, after game:ended is broadcast.
	// The lobby uses it to persist results and reset to waiting.
	onEnd func(result *GameEndedMsg, players []*Player, duration time.Duration)

	// track forwards gameplay events for authenticated players (may be nil)
	track func(evtType string, playerID int64, data string)
}

// detonationResult tracks eliminations within one chain resolution so
// the win evaluation can apply the tie-break to "same detonation" deaths.
type detonationResult struct {
	elims map[string]string // victim id -> attacker id
}

// NewGame builds the match state from the lobby roster. The map seed is
// broadcast in game:started so clients can rebuild the identical grid.
func NewGame(cfg GameConfig, seed int64, roster []*Player, clients map[string]Broadcaster) *Game {
	g := &Game{
		cfg:      cfg,
		grid:     NewGrid(cfg.GridWidth, cfg.GridHeight, cfg.BlockDensity, seed),
		seed:     seed,
		players:  make(map[string]*Player, len(roster)),
		bombs:    make(map[string]*Bomb),
		powerups: make(map[string]*Powerup),
		clients:  clients,
		rng:      rand.New(rand.NewSource(seed)),
		stopSnap: make(chan struct{}),
	}
	for _, p := range roster {
		g.players[p.ID] = p
	}
	g.seedPowerups()
	return g
}

// seedPowerups places the initial power-ups on free cells
func (g *Game) seedPowerups() {
	free := make([]Cell, 0)
	spawnSafe := spawnSafeZone(g.grid.W, g.grid.H)
	for y := 1; y < g.grid.H-1; y++ {
		for x := 1; x < g.grid.W-1; x++ {
			c := Cell{x, y}
			if g.grid.At(x, y) == CellEmpty && !spawnSafe[c] {
				free = append(free, c)
			}
		}
	}
	g.rng.Shuffle(len(free), func(i, j int) { free[i], free[j] = free[j], free[i] })
	for i := 0; i < g.cfg.SeedPowerups && i < len(free); i++ {
		pu := NewPowerup(free[i].X, free[i].Y, g.rng)
		g.powerups[pu.ID] = pu
	}
}

// Start stamps the match start time and launches the snapshot loop
func (g *Game) Start() {
	g.mu.Lock()
	g.startedAt = time.Now()
	g.mu.Unlock()
	go g.snapshotLoop()
}

// StartPayload builds the game:started message
func (g *Game) StartPayload() GameStartedMsg {
	g.mu.Lock()
	defer g.mu.Unlock()
	msg := GameStartedMsg{MapSeed: g.seed}
	for _, p := range g.sortedPlayers() {
		msg.Players = append(msg.Players, p.Info())
	}
	for _, pu := range g.powerups {
		msg.Powerups = append(msg.Powerups, pu.Info())
	}
	return msg
}

// sortedPlayers returns players ordered by slot number, for stable payloads
func (g *Game) sortedPlayers() []*Player {
	out := make([]*Player, 0, len(g.players))
	for _, p := range g.players {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

// HandleMove applies a movement update. Positions are trusted as sent
// and echoed to everyone including the mover, so every client converges
// on the same authoritative echo.
func (g *Game) HandleMove(playerID string, msg MoveMsg) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.over {
		return
	}
	p, ok := g.players[playerID]
	if !ok || !p.Alive {
		return
	}
	p.X = msg.X
	p.Y = msg.Y
	p.Direction = msg.Direction
	msg.ID = playerID
	g.broadcast(Envelope{T: MsgMove, Data: msg})

	g.collectPowerupAt(p)
}

// collectPowerupAt picks up a power-up whose cell matches the player's
// snapped position. Deleting the record makes double collection a no-op.
func (g *Game) collectPowerupAt(p *Player) {
	cell := p.GridCell()
	for id, pu := range g.powerups {
		if pu.Cell() != cell {
			continue
		}
		delete(g.powerups, id)
		pu.Apply(p)
		p.PowerupsCollected++
		g.broadcast(Envelope{T: MsgPowerupCollected, Data: PowerupCollectedMsg{
			ID:       pu.ID,
			Type:     pu.Type,
			PlayerID: p.ID,
		}})
		if g.track != nil && p.AuthPlayerID > 0 {
			g.track(EvtPowerup, p.AuthPlayerID, fmt.Sprintf(`{"type":%q}`, pu.Type))
		}
		return
	}
}

// HandleDropBomb validates and places a bomb. Placement is refused as a
// silent no-op when the cell already holds a bomb or the owner is at
// capacity; capacity frees when the bomb detonates.
func (g *Game) HandleDropBomb(playerID string, msg DropBombMsg) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.over {
		return
	}
	p, ok := g.players[playerID]
	if !ok || !p.Alive {
		return
	}
	cell := Cell{msg.X, msg.Y}
	if !g.grid.InBounds(cell.X, cell.Y) {
		return
	}
	for _, b := range g.bombs {
		if b.Cell() == cell {
			return
		}
	}
	if p.ActiveBombs >= p.BombCapacity {
		return
	}

	b := NewBomb(p.ID, cell.X, cell.Y, p.ExplosionRange)
	g.bombs[b.ID] = b
	p.ActiveBombs++
	p.BombsPlaced++

	g.broadcast(Envelope{T: MsgDropBomb, Data: DropBombMsg{
		BombID:         b.ID,
		OwnerID:        p.ID,
		X:              b.X,
		Y:              b.Y,
		ExplosionRange: b.ExplosionRange,
	}})

	b.armFuse(g.cfg.FuseDuration, func() { g.Detonate(b.ID) })
}

// Detonate explodes a bomb and resolves the full chain reaction, then
// re-evaluates the win condition once for the whole resolution. Called
// from fuse timers; exploding an already-exploded bomb is a no-op.
func (g *Game) Detonate(bombID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.over {
		return
	}
	b, ok := g.bombs[bombID]
	if !ok || b.exploded {
		return
	}
	res := &detonationResult{elims: make(map[string]string)}
	g.detonateLocked(b, res)
	g.evaluateWinLocked(res)
}

// detonateLocked applies one bomb's blast and recurses into chained bombs
func (g *Game) detonateLocked(b *Bomb, res *detonationResult) {
	if b.exploded {
		return
	}
	b.exploded = true
	b.CancelFuse()
	delete(g.bombs, b.ID)
	if owner, ok := g.players[b.OwnerID]; ok && owner.ActiveBombs > 0 {
		owner.ActiveBombs--
	}

	blast := ComputeBlast(g.grid, b.Cell(), b.ExplosionRange)

	g.broadcast(Envelope{T: MsgBombExplode, Data: BombExplodeMsg{
		BombID:         b.ID,
		OwnerID:        b.OwnerID,
		X:              b.X,
		Y:              b.Y,
		ExplosionRange: b.ExplosionRange,
		Cells:          blast.Cells,
	}})

	for _, c := range blast.DestroyedBlocks {
		if !g.grid.DestroyBlock(c.X, c.Y) {
			continue
		}
		if owner, ok := g.players[b.OwnerID]; ok {
			owner.BlocksDestroyed++
		}
		g.broadcast(Envelope{T: MsgBlockDestroyed, Data: BlockDestroyedMsg{X: c.X, Y: c.Y, Type: "block"}})
		g.rollPowerupLocked(c)
	}

	for _, c := range blast.Cells {
		// Power-ups caught in the blast are destroyed, never collected.
		// Clients replicate the blast footprint and drop them locally.
		for id, pu := range g.powerups {
			if pu.Cell() == c {
				delete(g.powerups, id)
			}
		}

		for _, p := range g.players {
			if p.Alive && p.GridCell() == c {
				g.applyHitLocked(p, b.OwnerID, res)
			}
		}

		// Chain reaction: forced immediate detonation
		for _, other := range g.bombs {
			if !other.exploded && other.Cell() == c {
				g.detonateLocked(other, res)
			}
		}
	}
}

// rollPowerupLocked runs the spawn roll for a destroyed block
func (g *Game) rollPowerupLocked(c Cell) {
	if g.rng.Float64() >= g.cfg.PowerupChance {
		return
	}
	pu := NewPowerup(c.X, c.Y, g.rng)
	g.powerups[pu.ID] = pu
	g.broadcast(Envelope{T: MsgPowerupSpawned, Data: pu.Info()})
}

// applyHitLocked damages a player. Hits during the invulnerability
// window are ignored; lives reaching zero eliminates the player.
func (g *Game) applyHitLocked(victim *Player, attackerID string, res *detonationResult) {
	if !victim.Alive || victim.Invulnerable {
		return
	}
	victim.Lives--
	g.broadcast(Envelope{T: MsgPlayerHit, Data: PlayerHitMsg{
		VictimID:   victim.ID,
		AttackerID: attackerID,
		Lives:      victim.Lives,
	}})

	if victim.Lives > 0 {
		id := victim.ID
		victim.startInvulnerability(g.cfg.InvulnDuration, func() { g.clearInvuln(id) })
		return
	}

	victim.Alive = false
	victim.EliminatedBy = attackerID
	g.elimCounter++
	victim.elimOrder = g.elimCounter
	victim.CancelInvulnerability()
	if attacker, ok := g.players[attackerID]; ok && attackerID != victim.ID {
		attacker.Eliminations++
	}
	res.elims[victim.ID] = attackerID
	g.broadcast(Envelope{T: MsgPlayerEliminated, Data: PlayerEliminatedMsg{
		VictimID:   victim.ID,
		AttackerID: attackerID,
	}})
	if g.track != nil {
		if attacker, ok := g.players[attackerID]; ok && attackerID != victim.ID && attacker.AuthPlayerID > 0 {
			g.track(EvtElimination, attacker.AuthPlayerID, "")
		}
	}
}

// clearInvuln closes a player's invulnerability window (timer callback)
func (g *Game) clearInvuln(playerID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if p, ok := g.players[playerID]; ok {
		p.Invulnerable = false
	}
}

// HandleBlockDestroyed handles a client-reported block destruction.
// Destroying an already-clear cell is a no-op; a real destruction is
// broadcast and gets a power-up spawn roll like any other.
func (g *Game) HandleBlockDestroyed(playerID string, msg BlockDestroyedMsg) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.over {
		return
	}
	if !g.grid.DestroyBlock(msg.X, msg.Y) {
		return
	}
	if p, ok := g.players[playerID]; ok {
		p.BlocksDestroyed++
	}
	g.broadcast(Envelope{T: MsgBlockDestroyed, Data: BlockDestroyedMsg{X: msg.X, Y: msg.Y, Type: "block"}})
	g.rollPowerupLocked(Cell{msg.X, msg.Y})
}

// RemovePlayer handles a leave or disconnect mid-match: the player's
// pending fuses are canceled, their bombs removed, and the remaining
// players re-evaluated for the win condition.
func (g *Game) RemovePlayer(playerID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.players[playerID]
	if !ok {
		return
	}
	for id, b := range g.bombs {
		if b.OwnerID == playerID {
			b.CancelFuse()
			delete(g.bombs, id)
		}
	}
	p.CancelInvulnerability()
	delete(g.players, playerID)
	delete(g.clients, playerID)
	g.broadcast(Envelope{T: MsgPlayerLeft, Data: PlayerLeftMsg{ID: p.ID, Nickname: p.Nickname}})

	if !g.over {
		g.evaluateWinLocked(&detonationResult{elims: map[string]string{}})
	}
}

// evaluateWinLocked ends the match when at most one player remains
// alive. When the last players fall in the same detonation resolution,
// the winner is the attacker that caused the other's elimination while
// not falling to that other's bomb; mutual elimination is an explicit
// draw.
func (g *Game) evaluateWinLocked(res *detonationResult) {
	if g.over {
		return
	}
	var alive []*Player
	for _, p := range g.players {
		if p.Alive {
			alive = append(alive, p)
		}
	}
	if len(alive) > 1 {
		return
	}

	result := &GameEndedMsg{Players: g.rankingsLocked()}
	switch len(alive) {
	case 1:
		result.Winner = &WinnerInfo{ID: alive[0].ID, Nickname: alive[0].Nickname}
	case 0:
		if w := g.tieBreakLocked(res); w != nil {
			result.Winner = &WinnerInfo{ID: w.ID, Nickname: w.Nickname}
		} else {
			result.Draw = true
		}
	}
	g.finishLocked(result)
}

// tieBreakLocked resolves simultaneous elimination of the last players.
// A candidate must have fallen in this same resolution, have eliminated
// another player in it, and not owe its own elimination to anyone but
// itself. Zero or multiple candidates means no unambiguous attacker.
func (g *Game) tieBreakLocked(res *detonationResult) *Player {
	var winner *Player
	for victim, attacker := range res.elims {
		if attacker == "" || attacker == victim {
			continue
		}
		attackerKiller, fellHere := res.elims[attacker]
		if !fellHere || (attackerKiller != attacker && attackerKiller != "") {
			continue
		}
		p, ok := g.players[attacker]
		if !ok {
			continue
		}
		if winner != nil && winner.ID != p.ID {
			return nil // two attackers eliminated each other's eliminator
		}
		winner = p
	}
	return winner
}

// rankingsLocked orders players for the final standings: survivors
// first, then by elimination order, last out ranked highest.
func (g *Game) rankingsLocked() []RankingEntry {
	players := make([]*Player, 0, len(g.players))
	for _, p := range g.players {
		players = append(players, p)
	}
	sort.Slice(players, func(i, j int) bool {
		if players[i].Alive != players[j].Alive {
			return players[i].Alive
		}
		return players[i].elimOrder > players[j].elimOrder
	})
	out := make([]RankingEntry, 0, len(players))
	for i, p := range players {
		out = append(out, RankingEntry{
			ID:           p.ID,
			Nickname:     p.Nickname,
			Rank:         i + 1,
			Eliminations: p.Eliminations,
		})
	}
	return out
}

// EndMatch handles an explicit end_game request: the match closes with
// the current standings and no winner is declared unless one player is
// the sole survivor.
func (g *Game) EndMatch() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.over {
		return
	}
	result := &GameEndedMsg{Players: g.rankingsLocked()}
	var alive []*Player
	for _, p := range g.players {
		if p.Alive {
			alive = append(alive, p)
		}
	}
	if len(alive) == 1 {
		result.Winner = &WinnerInfo{ID: alive[0].ID, Nickname: alive[0].Nickname}
	} else {
		result.Draw = true
	}
	g.finishLocked(result)
}

// finishLocked closes the match: cancels every pending fuse and window,
// broadcasts game:ended and hands off to the onEnd callback.
func (g *Game) finishLocked(result *GameEndedMsg) {
	g.over = true
	g.result = result
	for _, b := range g.bombs {
		b.CancelFuse()
	}
	for _, p := range g.players {
		p.CancelInvulnerability()
	}
	close(g.stopSnap)
	g.broadcast(Envelope{T: MsgGameEnded, Data: result})

	if g.onEnd != nil {
		players := g.sortedPlayers()
		duration := time.Since(g.startedAt)
		go g.onEnd(result, players, duration)
	}
}

// Over reports whether the match has ended
func (g *Game) Over() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.over
}

// Result returns the final result, or nil while the match runs
func (g *Game) Result() *GameEndedMsg {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.result
}

// PlayerCount returns the number of players still in the match state
func (g *Game) PlayerCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.players)
}

// broadcast sends a JSON event to every client in the match
func (g *Game) broadcast(env Envelope) {
	for _, c := range g.clients {
		c.SendJSON(env)
	}
}

// snapshotLoop broadcasts the msgpack state snapshot until the match
// ends. Clients use snapshots to resync after reconnects; the discrete
// JSON events remain the primary protocol.
func (g *Game) snapshotLoop() {
	ticker := time.NewTicker(g.cfg.SnapshotInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			g.broadcastSnapshot()
		case <-g.stopSnap:
			return
		}
	}
}

// broadcastSnapshot encodes and sends the current full state
func (g *Game) broadcastSnapshot() {
	g.mu.Lock()
	g.tick++
	snap := Snapshot{Tick: g.tick, Blocks: g.grid.Blocks()}
	for _, p := range g.sortedPlayers() {
		snap.Players = append(snap.Players, p.Info())
	}
	for _, b := range g.bombs {
		snap.Bombs = append(snap.Bombs, b.Info())
	}
	for _, pu := range g.powerups {
		snap.Powerups = append(snap.Powerups, pu.Info())
	}
	clients := make([]Broadcaster, 0, len(g.clients))
	for _, c := range g.clients {
		clients = append(clients, c)
	}
	g.mu.Unlock()

	data, err := msgpack.Marshal(&snap)
	if err != nil {
		log.Printf("snapshot marshal error: %v", err)
		return
	}
	for _, c := range clients {
		c.SendBinary(data)
	}
}

// BuildSnapshot returns the current state snapshot (used for late
// joiners and by tests)
func (g *Game) BuildSnapshot() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	snap := Snapshot{Tick: g.tick, Blocks: g.grid.Blocks()}
	for _, p := range g.sortedPlayers() {
		snap.Players = append(snap.Players, p.Info())
	}
	for _, b := range g.bombs {
		snap.Bombs = append(snap.Bombs, b.Info())
	}
	for _, pu := range g.powerups {
		snap.Powerups = append(snap.Powerups, pu.Info())
	}
	return snap
}

package main

import (
	"fmt"
	"sync"
	"time"
)

// Phase is the lobby/match lifecycle. Clients additionally show a
// "login" screen before joining; the server's state starts at waiting.
type Phase int

const (
	PhaseWaiting Phase = iota
	PhaseCountdown
	PhasePlaying
	PhaseEnded
)

// lobbyPlayer is one roster slot between matches
type lobbyPlayer struct {
	ID           string
	Nickname     string
	Number       int // 1..4
	Ready        bool
	AuthPlayerID int64
	client       Broadcaster
}

// Lobby is the single waiting room and match holder for this server.
// The grace timer (waiting for more joins) and the countdown timer are
// independently restartable: any threshold crossing cancels the current
// timer and either starts the other or reverts to waiting. Generation
// counters make stale timer fires harmless.
type Lobby struct {
	mu      sync.Mutex
	cfg     GameConfig
	phase   Phase
	players map[string]*lobbyPlayer
	game    *Game

	graceTimer     *time.Timer
	countdownTimer *time.Timer
	graceGen       int
	countdownGen   int

	// broadcast reaches every connected client, joined or not
	broadcast func(Envelope)
	// onMatchEnd receives final results for persistence (may be nil)
	onMatchEnd func(result *GameEndedMsg, players []*Player, duration time.Duration)
	// track forwards gameplay events for authenticated players (may be nil)
	track func(evtType string, playerID int64, data string)
}

// NewLobby creates an empty lobby
func NewLobby(cfg GameConfig, broadcast func(Envelope)) *Lobby {
	return &Lobby{
		cfg:       cfg,
		phase:     PhaseWaiting,
		players:   make(map[string]*lobbyPlayer),
		broadcast: broadcast,
	}
}

// Join admits a player into the lobby. It fails when the lobby is full
// or a match is in progress; otherwise the lowest free slot number is
// assigned and the updated roster broadcast to everyone.
func (l *Lobby) Join(client Broadcaster, nickname string, authID int64) (*WelcomeMsg, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.phase == PhasePlaying {
		return nil, fmt.Errorf("game in progress")
	}
	if len(l.players) >= l.cfg.MaxPlayers {
		return nil, fmt.Errorf("lobby is full")
	}

	number := l.nextSlotLocked()
	lp := &lobbyPlayer{
		ID:           GenerateID(4),
		Nickname:     nickname,
		Number:       number,
		AuthPlayerID: authID,
		client:       client,
	}
	l.players[lp.ID] = lp

	welcome := &WelcomeMsg{
		ID:       lp.ID,
		Number:   lp.Number,
		Color:    PlayerColors[(lp.Number-1)%len(PlayerColors)],
		Nickname: lp.Nickname,
	}

	l.broadcastRosterLocked()
	l.reactToCountLocked()
	return welcome, nil
}

// nextSlotLocked returns the lowest unoccupied slot number
func (l *Lobby) nextSlotLocked() int {
	for n := 1; n <= l.cfg.MaxPlayers; n++ {
		taken := false
		for _, p := range l.players {
			if p.Number == n {
				taken = true
				break
			}
		}
		if !taken {
			return n
		}
	}
	return len(l.players) + 1
}

// Leave removes a player from the roster (and the active match, if
// any), broadcasts the change and re-evaluates the phase thresholds.
func (l *Lobby) Leave(playerID string) {
	l.mu.Lock()
	if _, ok := l.players[playerID]; !ok {
		l.mu.Unlock()
		return
	}
	delete(l.players, playerID)
	game := l.game
	l.broadcastRosterLocked()
	l.reactToCountLocked()
	l.mu.Unlock()

	// Mid-match leave: the game cancels pending fuses and re-checks wins
	if game != nil {
		game.RemovePlayer(playerID)
	}
}

// SetReady updates a ready flag. When every player in a big-enough
// lobby is ready, the grace timer is skipped and the countdown starts.
func (l *Lobby) SetReady(playerID string, ready bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lp, ok := l.players[playerID]
	if !ok {
		return
	}
	lp.Ready = ready
	l.broadcastRosterLocked()

	if l.phase != PhaseWaiting || len(l.players) < l.cfg.MinPlayers {
		return
	}
	for _, p := range l.players {
		if !p.Ready {
			return
		}
	}
	l.startCountdownLocked()
}

// RequestStart handles an explicit start_game. Starting with fewer than
// MinPlayers is refused (reported to the requester only) unless the
// single-player debug flag is set.
func (l *Lobby) RequestStart(playerID string, singlePlayer bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.players[playerID]; !ok {
		return fmt.Errorf("join the lobby first")
	}
	if l.phase == PhasePlaying {
		return fmt.Errorf("game in progress")
	}
	if singlePlayer && len(l.players) == 1 {
		l.startMatchLocked()
		return nil
	}
	if len(l.players) < l.cfg.MinPlayers {
		return fmt.Errorf("need at least %d players to start", l.cfg.MinPlayers)
	}
	l.startCountdownLocked()
	return nil
}

// reactToCountLocked applies the player-count thresholds: a full lobby
// goes straight to countdown, reaching MinPlayers arms the grace timer,
// and dropping below MinPlayers reverts to waiting.
func (l *Lobby) reactToCountLocked() {
	n := len(l.players)
	switch l.phase {
	case PhaseWaiting:
		if n >= l.cfg.MaxPlayers {
			l.startCountdownLocked()
		} else if n >= l.cfg.MinPlayers {
			l.startGraceLocked()
		} else {
			l.stopGraceLocked()
		}
	case PhaseCountdown:
		if n < l.cfg.MinPlayers {
			l.abortCountdownLocked()
		} else if n >= l.cfg.MaxPlayers {
			// countdown already running; nothing to restart
		}
	}
}

// startGraceLocked arms the join-grace timer if it is not running
func (l *Lobby) startGraceLocked() {
	if l.graceTimer != nil {
		return
	}
	l.graceGen++
	gen := l.graceGen
	l.graceTimer = time.AfterFunc(l.cfg.GraceDuration, func() { l.graceExpired(gen) })
}

// stopGraceLocked cancels a pending grace timer; safe when none runs
func (l *Lobby) stopGraceLocked() {
	if l.graceTimer != nil {
		l.graceTimer.Stop()
		l.graceTimer = nil
	}
	l.graceGen++
}

func (l *Lobby) graceExpired(gen int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if gen != l.graceGen || l.phase != PhaseWaiting {
		return
	}
	l.graceTimer = nil
	if len(l.players) >= l.cfg.MinPlayers {
		l.startCountdownLocked()
	}
}

// startCountdownLocked moves to the countdown phase and begins the
// per-second countdown broadcast. Restart-safe: a running countdown is
// replaced.
func (l *Lobby) startCountdownLocked() {
	if l.phase == PhasePlaying {
		return
	}
	l.stopGraceLocked()
	l.stopCountdownLocked()
	l.phase = PhaseCountdown

	seconds := int(l.cfg.CountdownDuration / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	l.countdownGen++
	gen := l.countdownGen
	l.broadcast(Envelope{T: MsgCountdown, Data: CountdownMsg{SecondsRemaining: seconds}})
	l.countdownTimer = time.AfterFunc(time.Second, func() { l.countdownTick(gen, seconds-1) })
}

// stopCountdownLocked cancels the pending countdown step
func (l *Lobby) stopCountdownLocked() {
	if l.countdownTimer != nil {
		l.countdownTimer.Stop()
		l.countdownTimer = nil
	}
	l.countdownGen++
}

// abortCountdownLocked reverts to waiting (player count dropped)
func (l *Lobby) abortCountdownLocked() {
	l.stopCountdownLocked()
	l.phase = PhaseWaiting
	l.broadcastRosterLocked()
	// Re-arm the grace timer if the lobby still qualifies
	if len(l.players) >= l.cfg.MinPlayers {
		l.startGraceLocked()
	}
}

func (l *Lobby) countdownTick(gen, remaining int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if gen != l.countdownGen || l.phase != PhaseCountdown {
		return
	}
	if remaining <= 0 {
		l.startMatchLocked()
		return
	}
	l.broadcast(Envelope{T: MsgCountdown, Data: CountdownMsg{SecondsRemaining: remaining}})
	l.countdownTimer = time.AfterFunc(time.Second, func() { l.countdownTick(gen, remaining-1) })
}

// startMatchLocked transitions to playing: builds the authoritative
// game from the roster and broadcasts the start payload.
func (l *Lobby) startMatchLocked() {
	l.stopGraceLocked()
	l.stopCountdownLocked()
	l.phase = PhasePlaying

	corners := SpawnCorners(l.cfg.GridWidth, l.cfg.GridHeight)
	roster := make([]*Player, 0, len(l.players))
	clients := make(map[string]Broadcaster, len(l.players))
	for _, lp := range l.players {
		spawn := corners[(lp.Number-1)%len(corners)]
		p := NewPlayer(lp.ID, lp.Nickname, lp.Number, spawn)
		p.AuthPlayerID = lp.AuthPlayerID
		roster = append(roster, p)
		clients[lp.ID] = lp.client
	}

	seed := time.Now().UnixNano()
	g := NewGame(l.cfg, seed, roster, clients)
	g.onEnd = l.matchEnded
	g.track = l.track
	l.game = g

	l.broadcast(Envelope{T: MsgGameStarted, Data: g.StartPayload()})
	g.Start()

	if l.track != nil {
		for _, p := range roster {
			if p.AuthPlayerID > 0 {
				l.track(EvtMatchStart, p.AuthPlayerID, "")
			}
		}
	}
}

// matchEnded runs off the game lock after game:ended is broadcast: the
// results are handed to the persistence hook and the lobby reverts to
// waiting with ready flags cleared.
func (l *Lobby) matchEnded(result *GameEndedMsg, players []*Player, duration time.Duration) {
	if l.onMatchEnd != nil {
		l.onMatchEnd(result, players, duration)
	}

	l.mu.Lock()
	l.game = nil
	l.phase = PhaseWaiting
	for _, lp := range l.players {
		lp.Ready = false
	}
	l.broadcastRosterLocked()
	l.reactToCountLocked()
	l.mu.Unlock()
}

// EndMatch handles an administrative end_game request
func (l *Lobby) EndMatch() {
	l.mu.Lock()
	game := l.game
	l.mu.Unlock()
	if game != nil {
		game.EndMatch()
	}
}

// Game returns the active match, or nil outside the playing phase
func (l *Lobby) Game() *Game {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.game
}

// Phase returns the current lifecycle phase
func (l *Lobby) Phase() Phase {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.phase
}

// PlayerCount returns the roster size
func (l *Lobby) PlayerCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.players)
}

// Nickname returns a roster player's nickname
func (l *Lobby) Nickname(playerID string) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if lp, ok := l.players[playerID]; ok {
		return lp.Nickname
	}
	return ""
}

// broadcastRosterLocked sends lobby_update to every connection
func (l *Lobby) broadcastRosterLocked() {
	msg := LobbyUpdateMsg{
		MaxPlayers:     l.cfg.MaxPlayers,
		GameInProgress: l.phase == PhasePlaying,
		Players:        make([]LobbyPlayerInfo, 0, len(l.players)),
	}
	for n := 1; n <= l.cfg.MaxPlayers; n++ {
		for _, lp := range l.players {
			if lp.Number != n {
				continue
			}
			msg.Players = append(msg.Players, LobbyPlayerInfo{
				ID:       lp.ID,
				Nickname: lp.Nickname,
				Number:   lp.Number,
				Color:    PlayerColors[(lp.Number-1)%len(PlayerColors)],
				Ready:    lp.Ready,
			})
		}
	}
	l.broadcast(Envelope{T: MsgLobbyUpdate, Data: msg})
}

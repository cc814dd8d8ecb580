package main

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"
)

const (
	maxConnsPerIP = 5
	maxTotalConns = 200
)

// Hub manages all connected clients and owns the single lobby
type Hub struct {
	mu         sync.RWMutex
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	lobby      *Lobby

	// Connection limiting (mutex-protected, accessed from HTTP handlers)
	connMu     sync.Mutex
	ipConns    map[string]int
	totalConns int

	// Auth & persistence
	db        *DB
	auth      *Auth
	analytics *Analytics
}

// NewHub creates a Hub. db may be nil (stats and auth disabled).
func NewHub(cfg GameConfig, db *DB) *Hub {
	h := &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		ipConns:    make(map[string]int),
		db:         db,
	}
	if db != nil {
		h.auth = NewAuth(db)
		h.analytics = NewAnalytics(db)
	}
	h.lobby = NewLobby(cfg, h.BroadcastJSON)
	h.lobby.onMatchEnd = h.recordMatch
	if h.analytics != nil {
		h.lobby.track = func(evtType string, playerID int64, data string) {
			h.analytics.Track(evtType, playerID, "", data)
		}
	}
	return h
}

func (h *Hub) CanAccept(ip string) bool {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	if h.totalConns >= maxTotalConns {
		return false
	}
	if h.ipConns[ip] >= maxConnsPerIP {
		return false
	}
	return true
}

func (h *Hub) TrackConnect(ip string) {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	h.ipConns[ip]++
	h.totalConns++
}

func (h *Hub) TrackDisconnect(ip string) {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	h.ipConns[ip]--
	if h.ipConns[ip] <= 0 {
		delete(h.ipConns, ip)
	}
	h.totalConns--
}

// Run processes register/unregister events. Connection loss is an
// implicit leave: the lobby removes the player and the game (if any)
// cancels their fuses and re-evaluates win conditions.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			if client.playerID != "" {
				h.lobby.Leave(client.playerID)
			}
			if h.analytics != nil {
				h.analytics.Track(EvtSessionEnd, client.authPlayerID, client.sessionID, "")
			}
		}
	}
}

// BroadcastJSON sends a message to every connected client
func (h *Hub) BroadcastJSON(env Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		log.Printf("marshal error: %v", err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		client.SendRaw(data)
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// TotalConns returns the tracked connection count
func (h *Hub) TotalConns() int {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	return h.totalConns
}

// recordMatch persists results and lifetime stats after a match ends.
// Guests (authPlayerID 0) accrue nothing.
func (h *Hub) recordMatch(result *GameEndedMsg, players []*Player, duration time.Duration) {
	if h.db == nil {
		return
	}
	winnerID := ""
	if result.Winner != nil {
		winnerID = result.Winner.ID
	}
	matchID, err := h.db.RecordMatch(duration.Seconds(), winnerID != "", len(players))
	if err != nil {
		log.Printf("record match error: %v", err)
		return
	}

	for _, p := range players {
		won := p.ID == winnerID
		if p.AuthPlayerID == 0 {
			continue
		}
		deaths := DefaultLives - p.Lives
		if deaths < 0 {
			deaths = 0
		}
		xp := MatchXP(p.Eliminations, p.BlocksDestroyed, won)
		if err := h.db.RecordMatchPlayer(matchID, p.AuthPlayerID, p.Eliminations, deaths, p.BombsPlaced, p.BlocksDestroyed, p.PowerupsCollected, won, xp); err != nil {
			log.Printf("record match player error: %v", err)
		}
		totalXP, level, err := h.db.UpdateStatsAfterMatch(p.AuthPlayerID, p.Eliminations, deaths, p.BombsPlaced, p.BlocksDestroyed, p.PowerupsCollected, won, duration.Seconds(), xp)
		if err != nil {
			log.Printf("update stats error: %v", err)
			continue
		}
		for _, a := range CheckAchievements(h.db, p.AuthPlayerID, p.Eliminations, won, p.Lives == DefaultLives) {
			if h.analytics != nil {
				h.analytics.Track(EvtAchievement, p.AuthPlayerID, "", fmt.Sprintf(`{"id":%q}`, a.ID))
			}
		}
		if h.analytics != nil {
			h.analytics.Track(EvtMatchEnd, p.AuthPlayerID, "", fmt.Sprintf(
				`{"won":%t,"eliminations":%d,"duration":%.1f,"xp":%d,"level":%d,"total_xp":%d}`,
				won, p.Eliminations, duration.Seconds(), xp, level, totalXP))
		}
	}
}

// MatchXP returns the experience earned for one match
func MatchXP(eliminations, blocksDestroyed int, won bool) int {
	xp := 20 + eliminations*15 + blocksDestroyed
	if won {
		xp += 50
	}
	return xp
}

package main

import "encoding/json"

// Client -> Server message types
const (
	MsgJoin        = "join"
	MsgPlayerReady = "player_ready"
	MsgStartGame   = "start_game"
	MsgMove        = "move"
	MsgDropBomb    = "drop_bomb"
	MsgChat        = "chat"
	MsgEndGame     = "end_game"
	MsgLeaveLobby  = "leave_lobby"
	MsgRegister    = "register"
	MsgLogin       = "login"
	MsgAuth        = "auth" // resume with token
	MsgProfile     = "profile"
)

// Server -> Client message types
const (
	MsgWelcome          = "welcome"
	MsgLobbyUpdate      = "lobby_update"
	MsgCountdown        = "game:countdown"
	MsgGameStarted      = "game:started"
	MsgBombExplode      = "bomb:explode"
	MsgBlockDestroyed   = "block:destroyed" // also accepted client->server, idempotent
	MsgPowerupSpawned   = "powerup:spawned"
	MsgPowerupCollected = "powerup:collected"
	MsgPlayerHit        = "player:hit"
	MsgPlayerEliminated = "player:eliminated"
	MsgPlayerLeft       = "player:left"
	MsgGameEnded        = "game:ended"
	MsgState            = "state" // msgpack snapshot, sent as binary
	MsgError            = "error"
	MsgAuthOK           = "auth_ok"
	MsgProfileData      = "profile_data"
)

// Envelope wraps all outgoing messages with a type field
type Envelope struct {
	T    string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// InEnvelope is used for incoming messages; json.RawMessage avoids double-unmarshal.
type InEnvelope struct {
	T string          `json:"type"`
	D json.RawMessage `json:"data,omitempty"`
}

// JoinMsg is sent when a player wants to enter the lobby
type JoinMsg struct {
	Nickname string `json:"nickname"`
}

// WelcomeMsg is the reply to a successful join
type WelcomeMsg struct {
	ID       string `json:"id"`
	Number   int    `json:"playerNumber"`
	Color    string `json:"color"`
	Nickname string `json:"nickname"`
}

// ReadyMsg toggles the sender's ready flag in the lobby
type ReadyMsg struct {
	IsReady bool `json:"isReady"`
}

// StartGameMsg requests an immediate match start
type StartGameMsg struct {
	SinglePlayer bool `json:"singlePlayer,omitempty"`
}

// LobbyPlayerInfo is one roster entry in a lobby update
type LobbyPlayerInfo struct {
	ID       string `json:"id"`
	Nickname string `json:"nickname"`
	Number   int    `json:"playerNumber"`
	Color    string `json:"color"`
	Ready    bool   `json:"isReady"`
}

// LobbyUpdateMsg is broadcast after every roster change
type LobbyUpdateMsg struct {
	Players        []LobbyPlayerInfo `json:"players"`
	MaxPlayers     int               `json:"maxPlayers"`
	GameInProgress bool              `json:"gameInProgress"`
}

// CountdownMsg is broadcast once per second during the countdown
type CountdownMsg struct {
	SecondsRemaining int `json:"secondsRemaining"`
}

// GameStartedMsg carries the initial match payload
type GameStartedMsg struct {
	Players  []PlayerInfo  `json:"players"`
	Powerups []PowerupInfo `json:"powerups"`
	MapSeed  int64         `json:"mapSeed"`
}

// PlayerInfo describes a player's in-match state
type PlayerInfo struct {
	ID             string  `json:"id"`
	Nickname       string  `json:"nickname"`
	Number         int     `json:"playerNumber"`
	Color          string  `json:"color"`
	X              float64 `json:"x"`
	Y              float64 `json:"y"`
	Direction      string  `json:"direction,omitempty"`
	Lives          int     `json:"lives"`
	Speed          float64 `json:"speed"`
	BombCapacity   int     `json:"bombCapacity"`
	ExplosionRange int     `json:"explosionRange"`
	Alive          bool    `json:"isAlive"`
}

// MoveMsg is echoed verbatim to everyone including the sender
type MoveMsg struct {
	ID        string  `json:"id,omitempty"` // filled in by the server
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Direction string  `json:"direction"`
}

// DropBombMsg places a bomb; the server assigns the bomb id on echo
type DropBombMsg struct {
	BombID         string `json:"bombId,omitempty"` // filled in by the server
	OwnerID        string `json:"ownerId,omitempty"`
	X              int    `json:"x"`
	Y              int    `json:"y"`
	ExplosionRange int    `json:"explosionRange"`
}

// BombExplodeMsg is broadcast when a fuse expires or a chain fires
type BombExplodeMsg struct {
	BombID         string `json:"bombId"`
	OwnerID        string `json:"ownerId"`
	X              int    `json:"x"`
	Y              int    `json:"y"`
	ExplosionRange int    `json:"explosionRange"`
	Cells          []Cell `json:"cells"`
}

// BlockDestroyedMsg reports a destructible block removal
type BlockDestroyedMsg struct {
	X    int    `json:"x"`
	Y    int    `json:"y"`
	Type string `json:"type,omitempty"`
}

// PowerupInfo describes a power-up on the grid
type PowerupInfo struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	X    int    `json:"x"`
	Y    int    `json:"y"`
}

// PowerupCollectedMsg is broadcast when a player picks up a power-up
type PowerupCollectedMsg struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	PlayerID string `json:"playerId"`
}

// PlayerHitMsg is broadcast when a blast damages a player
type PlayerHitMsg struct {
	VictimID   string `json:"victimId"`
	AttackerID string `json:"attackerId"`
	Lives      int    `json:"lives"`
}

// PlayerEliminatedMsg is broadcast when a player's lives reach zero
type PlayerEliminatedMsg struct {
	VictimID   string `json:"victimId"`
	AttackerID string `json:"attackerId"`
}

// PlayerLeftMsg is broadcast when a player disconnects or leaves
type PlayerLeftMsg struct {
	ID       string `json:"id"`
	Nickname string `json:"nickname"`
}

// RankingEntry is one row of the final standings
type RankingEntry struct {
	ID           string `json:"id"`
	Nickname     string `json:"nickname"`
	Rank         int    `json:"rank"`
	Eliminations int    `json:"eliminations"`
}

// WinnerInfo names the match winner
type WinnerInfo struct {
	ID       string `json:"id"`
	Nickname string `json:"nickname"`
}

// GameEndedMsg closes a match. Winner is nil on a draw.
type GameEndedMsg struct {
	Winner  *WinnerInfo    `json:"winner,omitempty"`
	Draw    bool           `json:"draw,omitempty"`
	Players []RankingEntry `json:"players"`
}

// ChatMsg is relayed to everyone including the sender
type ChatMsg struct {
	Nickname  string `json:"nickname,omitempty"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// ErrorMsg sends an error to the requesting client only
type ErrorMsg struct {
	Msg string `json:"message"`
}

// RegisterMsg creates an account
type RegisterMsg struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginMsg authenticates with credentials
type LoginMsg struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AuthMsg resumes a session with a stored token
type AuthMsg struct {
	Token string `json:"token"`
}

// AuthOKMsg confirms authentication
type AuthOKMsg struct {
	Token    string `json:"token"`
	Username string `json:"username"`
	PlayerID int64  `json:"playerId"`
}

// ProfileDataMsg returns lifetime stats for the authenticated account
type ProfileDataMsg struct {
	Username          string `json:"username"`
	Level             int    `json:"level"`
	XP                int    `json:"xp"`
	Wins              int    `json:"wins"`
	Losses            int    `json:"losses"`
	Eliminations      int    `json:"eliminations"`
	Deaths            int    `json:"deaths"`
	BombsPlaced       int    `json:"bombsPlaced"`
	BlocksDestroyed   int    `json:"blocksDestroyed"`
	PowerupsCollected int    `json:"powerupsCollected"`
	Playtime          float64 `json:"playtime"`
}

// Snapshot is the full match state, msgpack-encoded and sent as a binary
// frame. Late joiners and reconnecting clients resync from it; clients in
// a healthy session only apply the discrete JSON events.
type Snapshot struct {
	Players  []PlayerInfo  `msgpack:"p"`
	Bombs    []BombInfo    `msgpack:"b"`
	Powerups []PowerupInfo `msgpack:"pu"`
	Blocks   []Cell        `msgpack:"bl"` // remaining destructible blocks
	Tick     uint64        `msgpack:"t"`
}

// BombInfo describes a live bomb in a snapshot
type BombInfo struct {
	ID             string `msgpack:"id" json:"bombId"`
	OwnerID        string `msgpack:"o" json:"ownerId"`
	X              int    `msgpack:"x" json:"x"`
	Y              int    `msgpack:"y" json:"y"`
	ExplosionRange int    `msgpack:"r" json:"explosionRange"`
}

package main

import (
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = (pongWait * 9) / 10
	maxMessageSize    = 4096
	sendBufSize       = 256
	maxMessagesPerSec = 60
	maxNicknameLen    = 16
	maxChatLen        = 200
)

// Client represents a WebSocket connection
type Client struct {
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	sessionID  string // stable across the connection, used for analytics
	playerID   string
	nickname   string
	remoteAddr string
	msgCount   int
	msgResetAt time.Time

	// Auth state
	authPlayerID int64  // 0 = unauthenticated/guest
	authUsername string // "" = unauthenticated
}

// NewClient creates a new Client
func NewClient(hub *Hub, conn *websocket.Conn, remoteAddr string) *Client {
	return &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, sendBufSize),
		sessionID:  GenerateUUID(),
		remoteAddr: remoteAddr,
	}
}

// ReadPump reads messages from the WebSocket connection
func (c *Client) ReadPump() {
	defer func() {
		c.hub.TrackDisconnect(c.remoteAddr)
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("ws error: %v", err)
			}
			break
		}

		// Rate limiting
		now := time.Now()
		if now.After(c.msgResetAt) {
			c.msgCount = 0
			c.msgResetAt = now.Add(time.Second)
		}
		c.msgCount++
		if c.msgCount > maxMessagesPerSec {
			log.Printf("rate limit exceeded for %s, disconnecting", c.remoteAddr)
			break
		}

		c.handleMessage(message)
	}
}

// WritePump writes messages to the WebSocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			// 0xFF prefix marks binary frames queued by SendBinary
			var err error
			if len(message) > 0 && message[0] == 0xFF {
				err = c.conn.WriteMessage(websocket.BinaryMessage, message[1:])
			} else {
				err = c.conn.WriteMessage(websocket.TextMessage, message)
			}
			if err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendJSON sends a JSON message to the client
func (c *Client) SendJSON(msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("marshal error: %v", err)
		return
	}
	c.SendRaw(data)
}

// SendRaw sends pre-marshaled bytes as a text message to the client
func (c *Client) SendRaw(data []byte) {
	defer func() { recover() }()
	select {
	case c.send <- data:
	default:
		// Client too slow, drop message
	}
}

// SendBinary sends pre-marshaled bytes as a binary WebSocket message.
// Prefixed with a 0xFF marker so WritePump can distinguish it from text.
func (c *Client) SendBinary(data []byte) {
	defer func() { recover() }()
	msg := make([]byte, len(data)+1)
	msg[0] = 0xFF
	copy(msg[1:], data)
	select {
	case c.send <- msg:
	default:
	}
}

// sendError reports an error to this client only, never broadcast.
func (c *Client) sendError(msg string) {
	c.SendJSON(Envelope{T: MsgError, Data: ErrorMsg{Msg: msg}})
}

// handleMessage routes incoming messages (single-pass decode via
// InEnvelope). Handlers are isolated: a panic in one aborts that
// message only, never the connection or the shared state.
func (c *Client) handleMessage(raw []byte) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("handler panic: %v", r)
		}
	}()

	var env InEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		log.Printf("unmarshal error: %v", err)
		return
	}

	switch env.T {
	case MsgJoin:
		c.handleJoin(env.D)
	case MsgPlayerReady:
		c.handleReady(env.D)
	case MsgStartGame:
		c.handleStartGame(env.D)
	case MsgMove:
		c.handleMove(env.D)
	case MsgDropBomb:
		c.handleDropBomb(env.D)
	case MsgBlockDestroyed:
		c.handleBlockDestroyed(env.D)
	case MsgChat:
		c.handleChat(env.D)
	case MsgEndGame:
		c.handleEndGame()
	case MsgLeaveLobby:
		c.handleLeaveLobby()
	case MsgRegister:
		c.handleRegister(env.D)
	case MsgLogin:
		c.handleLogin(env.D)
	case MsgAuth:
		c.handleAuth(env.D)
	case MsgProfile:
		c.handleProfile()
	}
}

func (c *Client) handleJoin(data json.RawMessage) {
	// Re-joining while already holding a slot is a no-op
	if c.playerID != "" {
		return
	}

	var msg JoinMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	nickname := msg.Nickname
	if nickname == "" {
		nickname = c.authUsername
	}
	if nickname == "" {
		nickname = GenerateGuestName()
	}
	if len(nickname) > maxNicknameLen {
		nickname = nickname[:maxNicknameLen]
	}

	welcome, err := c.hub.lobby.Join(c, nickname, c.authPlayerID)
	if err != nil {
		c.sendError(err.Error())
		return
	}
	c.playerID = welcome.ID
	c.nickname = nickname
	c.SendJSON(Envelope{T: MsgWelcome, Data: welcome})

	if c.hub.analytics != nil {
		c.hub.analytics.Track(EvtSessionStart, c.authPlayerID, c.sessionID, "")
	}
}

func (c *Client) handleReady(data json.RawMessage) {
	if c.playerID == "" {
		return
	}
	var msg ReadyMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	c.hub.lobby.SetReady(c.playerID, msg.IsReady)
}

func (c *Client) handleStartGame(data json.RawMessage) {
	if c.playerID == "" {
		c.sendError("join the lobby first")
		return
	}
	var msg StartGameMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	if err := c.hub.lobby.RequestStart(c.playerID, msg.SinglePlayer); err != nil {
		// Refusals go to the requester only, no broadcast
		c.sendError(err.Error())
	}
}

func (c *Client) handleMove(data json.RawMessage) {
	if c.playerID == "" {
		return
	}
	game := c.hub.lobby.Game()
	if game == nil {
		return
	}
	var msg MoveMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	game.HandleMove(c.playerID, msg)
}

func (c *Client) handleDropBomb(data json.RawMessage) {
	if c.playerID == "" {
		return
	}
	game := c.hub.lobby.Game()
	if game == nil {
		return
	}
	var msg DropBombMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	game.HandleDropBomb(c.playerID, msg)
}

func (c *Client) handleBlockDestroyed(data json.RawMessage) {
	if c.playerID == "" {
		return
	}
	game := c.hub.lobby.Game()
	if game == nil {
		return
	}
	var msg BlockDestroyedMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	game.HandleBlockDestroyed(c.playerID, msg)
}

func (c *Client) handleChat(data json.RawMessage) {
	if c.playerID == "" {
		return
	}
	var msg ChatMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	if msg.Message == "" {
		return
	}
	if len(msg.Message) > maxChatLen {
		msg.Message = msg.Message[:maxChatLen]
	}
	// Sender identity and timestamp are server-assigned
	msg.Nickname = c.nickname
	msg.Timestamp = time.Now().UnixMilli()
	c.hub.BroadcastJSON(Envelope{T: MsgChat, Data: msg})
}

func (c *Client) handleEndGame() {
	if c.playerID == "" {
		return
	}
	c.hub.lobby.EndMatch()
}

func (c *Client) handleLeaveLobby() {
	if c.playerID == "" {
		return
	}
	c.hub.lobby.Leave(c.playerID)
	c.playerID = ""
	c.nickname = ""
}

func (c *Client) handleRegister(data json.RawMessage) {
	if c.hub.auth == nil {
		return
	}
	var msg RegisterMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	id, token, err := c.hub.auth.Register(msg.Username, msg.Password)
	if err != nil {
		c.sendError(err.Error())
		return
	}
	c.authPlayerID = id
	c.authUsername = msg.Username
	c.SendJSON(Envelope{T: MsgAuthOK, Data: AuthOKMsg{
		Token:    token,
		Username: msg.Username,
		PlayerID: id,
	}})
}

func (c *Client) handleLogin(data json.RawMessage) {
	if c.hub.auth == nil {
		return
	}
	var msg LoginMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	id, token, err := c.hub.auth.Login(msg.Username, msg.Password, c.remoteAddr)
	if err != nil {
		c.sendError(err.Error())
		return
	}
	c.authPlayerID = id
	c.authUsername = msg.Username
	c.SendJSON(Envelope{T: MsgAuthOK, Data: AuthOKMsg{
		Token:    token,
		Username: msg.Username,
		PlayerID: id,
	}})
}

func (c *Client) handleAuth(data json.RawMessage) {
	if c.hub.auth == nil {
		return
	}
	var msg AuthMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	id, username, err := c.hub.auth.ValidateToken(msg.Token)
	if err != nil {
		c.sendError("invalid token")
		return
	}
	c.authPlayerID = id
	c.authUsername = username
	c.SendJSON(Envelope{T: MsgAuthOK, Data: AuthOKMsg{
		Token:    msg.Token,
		Username: username,
		PlayerID: id,
	}})
}

func (c *Client) handleProfile() {
	if c.hub.db == nil || c.authPlayerID == 0 {
		c.sendError("not authenticated")
		return
	}
	stats, err := c.hub.db.GetStats(c.authPlayerID)
	if err != nil || stats == nil {
		c.sendError("profile not found")
		return
	}
	c.SendJSON(Envelope{T: MsgProfileData, Data: ProfileDataMsg{
		Username:          c.authUsername,
		Level:             stats.Level,
		XP:                stats.XP,
		Wins:              stats.Wins,
		Losses:            stats.Losses,
		Eliminations:      stats.Eliminations,
		Deaths:            stats.Deaths,
		BombsPlaced:       stats.BombsPlaced,
		BlocksDestroyed:   stats.BlocksDestroyed,
		PowerupsCollected: stats.PowerupsCollected,
		Playtime:          stats.Playtime,
	}})
}

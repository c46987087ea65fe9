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
	maxMessagesPerSec = 50
)

// Client represents a WebSocket connection
type Client struct {
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	observerID string
	remoteAddr string
	watching   bool
	msgCount   int
	msgResetAt time.Time
	// Auth state
	isAdmin bool
}

// NewClient creates a new Client
func NewClient(hub *Hub, conn *websocket.Conn, remoteAddr string) *Client {
	return &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, sendBufSize),
		observerID: GenerateID(4),
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
			// Check for binary marker (0xFF prefix from SendBinary)
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
// Prefixes with 0xFF marker byte so WritePump can distinguish from text.
func (c *Client) SendBinary(data []byte) {
	defer func() { recover() }()
	msg := make([]byte, len(data)+1)
	msg[0] = 0xFF // binary marker
	copy(msg[1:], data)
	select {
	case c.send <- msg:
	default:
	}
}

// handleMessage routes incoming messages (single-pass decode via InEnvelope)
func (c *Client) handleMessage(raw []byte) {
	var env InEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		log.Printf("unmarshal error: %v", err)
		return
	}

	switch env.T {
	case MsgWatch:
		c.handleWatch(env.D)
	case MsgQuery:
		c.handleQuery(env.D)
	case MsgStats:
		c.handleStats()
	case MsgLogin:
		c.handleLogin(env.D)
	case MsgScatter:
		c.handleScatter(env.D)
	}
}

func (c *Client) handleWatch(data json.RawMessage) {
	var msg WatchMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	if !c.watching {
		c.hub.world.AddObserver(c.observerID, c)
		c.watching = true
	}
	x, y, r := c.hub.world.SetCamera(c.observerID, msg.X, msg.Y, msg.Radius)
	c.SendJSON(Envelope{T: MsgWatching, Data: WatchingMsg{X: x, Y: y, Radius: r}})
}

func (c *Client) handleQuery(data json.RawMessage) {
	var msg QueryMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}

	switch msg.Kind {
	case QueryNearby:
		ents := c.hub.world.QueryNearby(msg.X, msg.Y, msg.Radius, msg.Type)
		c.SendJSON(Envelope{T: MsgResult, Data: ResultMsg{Kind: msg.Kind, Count: len(ents), Entities: ents}})
	case QueryRect:
		ents := c.hub.world.QueryRect(msg.Left, msg.Top, msg.Right, msg.Bottom, msg.Type)
		c.SendJSON(Envelope{T: MsgResult, Data: ResultMsg{Kind: msg.Kind, Count: len(ents), Entities: ents}})
	case QueryNearest:
		res := ResultMsg{Kind: msg.Kind}
		if e, ok := c.hub.world.QueryNearest(msg.X, msg.Y, msg.Radius, msg.Type); ok {
			res.Count = 1
			res.Entities = []EntityState{e}
		} else {
			res.Entities = []EntityState{}
		}
		c.SendJSON(Envelope{T: MsgResult, Data: res})
	default:
		c.SendJSON(Envelope{T: MsgError, Data: ErrorMsg{Msg: "unknown query kind"}})
	}
}

func (c *Client) handleStats() {
	c.SendJSON(Envelope{T: MsgStatsData, Data: StatsMsg{Stats: c.hub.world.Stats()}})
}

func (c *Client) handleLogin(data json.RawMessage) {
	if c.hub.auth == nil {
		c.SendJSON(Envelope{T: MsgError, Data: ErrorMsg{Msg: "auth disabled"}})
		return
	}
	var msg LoginMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	token, err := c.hub.auth.Login(msg.Password, c.remoteAddr)
	if err != nil {
		c.SendJSON(Envelope{T: MsgError, Data: ErrorMsg{Msg: err.Error()}})
		return
	}
	c.isAdmin = true
	c.SendJSON(Envelope{T: MsgLoginOK, Data: LoginOKMsg{Token: token}})
}

func (c *Client) handleScatter(data json.RawMessage) {
	authed := c.isAdmin
	if !authed && c.hub.auth != nil {
		var msg ScatterMsg
		if err := json.Unmarshal(data, &msg); err == nil && msg.Token != "" {
			authed = c.hub.auth.ValidateToken(msg.Token) == nil
		}
	}
	if !authed {
		c.SendJSON(Envelope{T: MsgError, Data: ErrorMsg{Msg: "not authorized"}})
		return
	}
	n := c.hub.world.Scatter()
	c.SendJSON(Envelope{T: MsgScattered, Data: map[string]int{"entities": n}})
}

// Package hub fans turn progress out to websocket subscribers of a
// conversation.
package hub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Options tunes connection keepalive.
type Options struct {
	SendBuffer     int
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	ReadTimeout    time.Duration
	MaxMessageSize int64
}

// DefaultOptions pings every 30s and drops a peer silent for a minute.
func DefaultOptions() Options {
	return Options{
		SendBuffer:     64,
		PingInterval:   30 * time.Second,
		WriteTimeout:   10 * time.Second,
		ReadTimeout:    60 * time.Second,
		MaxMessageSize: 4096,
	}
}

// Connection is a single subscriber bound to one conversation.
type Connection struct {
	ID             string
	ConversationID string
	Conn           *websocket.Conn
	Send           chan []byte
	mu             sync.Mutex
}

// Hub manages all subscriber connections.
type Hub struct {
	opts   Options
	logger zerolog.Logger

	// Connections indexed by connection ID
	connections map[string]*Connection

	// conversations maps conversation_id to set of connection IDs
	conversations map[string]map[string]bool

	register   chan *Connection
	unregister chan *Connection
	broadcast  chan *conversationMessage
	done       chan struct{}

	mu sync.RWMutex
}

type conversationMessage struct {
	ConversationID string
	Data           []byte
}

// New creates a Hub. Run must be started before connections are attached.
func New(opts Options, logger zerolog.Logger) *Hub {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = DefaultOptions().SendBuffer
	}
	return &Hub{
		opts:          opts,
		logger:        logger.With().Str("component", "hub").Logger(),
		connections:   make(map[string]*Connection),
		conversations: make(map[string]map[string]bool),
		register:      make(chan *Connection),
		unregister:    make(chan *Connection),
		broadcast:     make(chan *conversationMessage, 256),
		done:          make(chan struct{}),
	}
}

// Run is the hub's main loop. It returns when ctx is done, closing every
// connection's send channel.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		h.mu.Lock()
		for id, conn := range h.connections {
			close(conn.Send)
			delete(h.connections, id)
		}
		h.conversations = make(map[string]map[string]bool)
		h.mu.Unlock()
	}()
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			return

		case conn := <-h.register:
			h.mu.Lock()
			h.connections[conn.ID] = conn
			if h.conversations[conn.ConversationID] == nil {
				h.conversations[conn.ConversationID] = make(map[string]bool)
			}
			h.conversations[conn.ConversationID][conn.ID] = true
			h.mu.Unlock()
			h.logger.Debug().Str("connection_id", conn.ID).Str("conversation_id", conn.ConversationID).Msg("connection registered")

		case conn := <-h.unregister:
			h.remove(conn)

		case msg := <-h.broadcast:
			h.mu.RLock()
			var slow []*Connection
			for connID := range h.conversations[msg.ConversationID] {
				conn, ok := h.connections[connID]
				if !ok {
					continue
				}
				select {
				case conn.Send <- msg.Data:
				default:
					slow = append(slow, conn)
				}
			}
			h.mu.RUnlock()
			for _, conn := range slow {
				h.logger.Warn().Str("connection_id", conn.ID).Msg("send buffer full, dropping connection")
				h.remove(conn)
			}
		}
	}
}

func (h *Hub) remove(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.connections[conn.ID]; !ok {
		return
	}
	delete(h.connections, conn.ID)
	if ids := h.conversations[conn.ConversationID]; ids != nil {
		delete(ids, conn.ID)
		if len(ids) == 0 {
			delete(h.conversations, conn.ConversationID)
		}
	}
	close(conn.Send)
	h.logger.Debug().Str("connection_id", conn.ID).Msg("connection unregistered")
}

// Register adds a connection. It is a no-op once the hub has stopped.
func (h *Hub) Register(conn *Connection) {
	select {
	case h.register <- conn:
	case <-h.done:
	}
}

// Unregister removes a connection. It is a no-op once the hub has stopped.
func (h *Hub) Unregister(conn *Connection) {
	select {
	case h.unregister <- conn:
	case <-h.done:
	}
}

// Publish sends v as JSON to every subscriber of the conversation. It never
// blocks on a subscriber.
func (h *Hub) Publish(conversationID string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- &conversationMessage{ConversationID: conversationID, Data: data}:
	case <-h.done:
	default:
		h.logger.Warn().Str("conversation_id", conversationID).Msg("broadcast queue full, message dropped")
	}
	return nil
}

// ConnectionCount returns the number of active connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// HasSubscribers reports whether anyone is listening to the conversation.
func (h *Hub) HasSubscribers(conversationID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conversations[conversationID]) > 0
}

// Attach registers an upgraded websocket for the conversation and starts its
// pumps. Inbound frames are read only to serve pongs and closes.
func (h *Hub) Attach(ws *websocket.Conn, conversationID string) *Connection {
	conn := &Connection{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		Conn:           ws,
		Send:           make(chan []byte, h.opts.SendBuffer),
	}
	h.Register(conn)

	if h.opts.MaxMessageSize > 0 {
		ws.SetReadLimit(h.opts.MaxMessageSize)
	}
	go h.writePump(conn)
	go h.readPump(conn)
	return conn
}

func (h *Hub) readPump(conn *Connection) {
	defer func() {
		h.Unregister(conn)
		conn.Close()
	}()

	conn.setReadDeadline(h.opts.ReadTimeout)
	conn.Conn.SetPongHandler(func(string) error {
		conn.setReadDeadline(h.opts.ReadTimeout)
		return nil
	})

	for {
		if _, _, err := conn.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Debug().Err(err).Str("connection_id", conn.ID).Msg("websocket read failed")
			}
			return
		}
	}
}

func (h *Hub) writePump(conn *Connection) {
	interval := h.opts.PingInterval
	if interval <= 0 {
		interval = DefaultOptions().PingInterval
	}
	ticker := time.NewTicker(interval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			conn.setWriteDeadline(h.opts.WriteTimeout)
			if !ok {
				// Hub closed the channel
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				h.logger.Debug().Err(err).Str("connection_id", conn.ID).Msg("websocket write failed")
				return
			}

		case <-ticker.C:
			conn.setWriteDeadline(h.opts.WriteTimeout)
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// WriteMessage writes a message to the connection with proper locking.
func (c *Connection) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteMessage(messageType, data)
}

func (c *Connection) setWriteDeadline(d time.Duration) {
	if d > 0 {
		_ = c.Conn.SetWriteDeadline(time.Now().Add(d))
	}
}

func (c *Connection) setReadDeadline(d time.Duration) {
	if d > 0 {
		_ = c.Conn.SetReadDeadline(time.Now().Add(d))
	}
}

// Close closes the connection.
func (c *Connection) Close() error {
	return c.Conn.Close()
}

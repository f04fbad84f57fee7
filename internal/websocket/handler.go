package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ammar1510/huddle/internal/apperr"
	"github.com/ammar1510/huddle/internal/auth"
	"github.com/ammar1510/huddle/internal/logger"
	"github.com/ammar1510/huddle/internal/session"
)

const (
	writeWait            = 10 * time.Second
	pongWait             = 60 * time.Second
	pingPeriod           = 54 * time.Second
	maxMessageSize       = 64 * 1024
	sendBuffer           = 256
	maxMessagesPerMinute = 120
)

var log = logger.New("websocket")

// Client is one connected socket and the session behind it
type Client struct {
	ID      uuid.UUID
	Socket  *websocket.Conn
	Send    chan []byte
	Session *session.Session

	mu     sync.Mutex
	closed bool
}

func newClient(id uuid.UUID, conn *websocket.Conn) *Client {
	return &Client{ID: id, Socket: conn, Send: make(chan []byte, sendBuffer)}
}

// Emit queues frame for the client without blocking. Frames are dropped
// when the client cannot keep up.
func (c *Client) Emit(frame session.Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		log.Error("Failed to encode %s frame: %v", frame.Type, err)
		return
	}
	if !c.enqueue(data) {
		log.Warn("Dropped %s frame for client %s", frame.Type, c.ID)
	}
}

func (c *Client) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}

// Manager maintains the set of active clients, one per user
type Manager struct {
	clients    map[uuid.UUID]*Client
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mutex      sync.Mutex

	deps     session.Deps
	upgrader websocket.Upgrader
}

// NewManager creates a manager that builds sessions from deps. Only the
// listed origins may open a socket; an empty list allows any origin.
func NewManager(deps session.Deps, allowedOrigins []string) *Manager {
	m := &Manager{
		clients:    make(map[uuid.UUID]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
	deps.Relay = m.SendFrame
	m.deps = deps

	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	m.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return len(allowed) == 0 || origin == "" || allowed[origin]
		},
	}
	return m
}

// Run processes registrations until Shutdown is called
func (m *Manager) Run() {
	for {
		select {
		case client := <-m.register:
			m.mutex.Lock()
			if old, ok := m.clients[client.ID]; ok && old != client {
				// a newer connection replaces the old one
				old.close()
				log.Info("Replacing connection of %s", client.ID)
			}
			m.clients[client.ID] = client
			m.mutex.Unlock()
			log.Info("Client connected: %s", client.ID)
		case client := <-m.unregister:
			m.mutex.Lock()
			if cur, ok := m.clients[client.ID]; ok && cur == client {
				delete(m.clients, client.ID)
				log.Info("Client disconnected: %s", client.ID)
			}
			m.mutex.Unlock()
			client.close()
		case <-m.done:
			return
		}
	}
}

// Shutdown closes every client and stops Run
func (m *Manager) Shutdown() {
	m.mutex.Lock()
	for id, client := range m.clients {
		client.close()
		delete(m.clients, id)
	}
	m.mutex.Unlock()
	close(m.done)
}

// Connected reports whether userID has a live socket
func (m *Manager) Connected(userID uuid.UUID) bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	_, ok := m.clients[userID]
	return ok
}

// SendFrame delivers frame to userID if connected
func (m *Manager) SendFrame(userID uuid.UUID, frame session.Frame) {
	m.mutex.Lock()
	client, ok := m.clients[userID]
	m.mutex.Unlock()

	if !ok {
		log.Debug("User %s not connected", userID)
		return
	}
	client.Emit(frame)
}

// HandleWebSocket upgrades an authenticated request and starts a session
func (m *Manager) HandleWebSocket(c *gin.Context) {
	userID, exists := c.Get("userID")
	if !exists {
		log.Warn("No userID in context, rejecting connection from %s", c.Request.RemoteAddr)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	userUUID, ok := userID.(uuid.UUID)
	if !ok {
		log.Error("Invalid UUID in context from %s", c.Request.RemoteAddr)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Invalid user identification"})
		return
	}
	identity := auth.Identity{UserID: userUUID, Username: c.GetString("username"), Email: c.GetString("email")}

	conn, err := m.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("Failed to upgrade connection: %v", err)
		return
	}

	client := newClient(userUUID, conn)
	go client.writePump()

	sess, err := session.New(c.Request.Context(), m.deps, identity, client.Emit)
	if err != nil {
		log.Error("Failed to start session for %s: %v", userUUID, err)
		client.Emit(session.ErrorFrame("", err))
		client.close()
		return
	}
	client.Session = sess

	select {
	case m.register <- client:
	case <-m.done:
		sess.Close()
		client.close()
		return
	}
	go client.readPump(m)
}

// readPump feeds commands from the socket into the session
func (c *Client) readPump(m *Manager) {
	defer func() {
		c.Session.Close()
		select {
		case m.unregister <- c:
		case <-m.done:
			c.close()
		}
		c.Socket.Close()
	}()

	c.Socket.SetReadLimit(maxMessageSize)
	c.Socket.SetReadDeadline(time.Now().Add(pongWait))
	c.Socket.SetPongHandler(func(string) error {
		c.Socket.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	messageCount := 0
	lastResetTime := time.Now()

	for {
		_, message, err := c.Socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error("Error reading from client %s: %v", c.ID, err)
			} else {
				log.Info("Client %s closed connection: %v", c.ID, err)
			}
			return
		}

		if time.Since(lastResetTime) >= time.Minute {
			messageCount = 0
			lastResetTime = time.Now()
		}
		messageCount++
		if messageCount > maxMessagesPerMinute {
			log.Warn("Rate limit exceeded for client %s", c.ID)
			c.Emit(session.ErrorFrame("", apperr.Validation("too many requests, slow down")))
			continue
		}

		var cmd session.Command
		if err := json.Unmarshal(message, &cmd); err != nil {
			log.Debug("Error unmarshaling command from %s: %v", c.ID, err)
			c.Emit(session.ErrorFrame("", apperr.Validation("Invalid message format")))
			continue
		}

		log.Debug("Received command '%s' from client %s", cmd.Type, c.ID)
		if err := c.Session.Handle(context.Background(), cmd); err != nil {
			if apperr.CodeOf(err) == apperr.CodeInternal {
				log.Error("Command %s from %s failed: %v", cmd.Type, c.ID, err)
			}
			c.Emit(session.ErrorFrame(cmd.RequestID, err))
		}
	}
}

// writePump pumps frames from the send queue to the socket
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Socket.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Socket.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Socket.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Socket.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.Socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

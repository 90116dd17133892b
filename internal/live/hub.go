package live

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	sendBuffer = 256
)

// Hub tracks the websocket clients of every lobby served by this instance.
type Hub struct {
	client *redis.Client
	logger *logrus.Logger

	mu    sync.Mutex
	rooms map[string]*Room
}

// Room holds the clients watching one lobby and the Redis subscription that
// feeds them. sub, cancel and err are set once before ready is closed.
type Room struct {
	ID      string
	clients map[string]*Client
	mu      sync.RWMutex
	ready   chan struct{}
	err     error
	sub     *redis.PubSub
	cancel  context.CancelFunc
}

// Client is one websocket connection.
type Client struct {
	ID      string
	ActorID string
	LobbyID string
	Conn    *websocket.Conn
	Send    chan []byte
}

func NewHub(client *redis.Client, logger *logrus.Logger) *Hub {
	return &Hub{
		client: client,
		logger: logger,
		rooms:  make(map[string]*Room),
	}
}

// Attach registers conn as a subscriber of lobbyID and starts its pumps. It
// returns once the lobby's channel subscription is confirmed, so events
// published after Attach returns are delivered.
func (h *Hub) Attach(ctx context.Context, conn *websocket.Conn, lobbyID, actorID string) error {
	c := &Client{
		ID:      uuid.New().String(),
		ActorID: actorID,
		LobbyID: lobbyID,
		Conn:    conn,
		Send:    make(chan []byte, sendBuffer),
	}

	room, err := h.join(ctx, c)
	if err != nil {
		return err
	}

	h.logger.WithFields(logrus.Fields{
		"lobby":  lobbyID,
		"actor":  actorID,
		"client": c.ID,
	}).Info("live: client subscribed")

	go c.writePump()
	go c.readPump(h, room)
	return nil
}

// RoomSize reports how many clients watch lobbyID on this instance.
func (h *Hub) RoomSize(lobbyID string) int {
	h.mu.Lock()
	room, ok := h.rooms[lobbyID]
	h.mu.Unlock()
	if !ok {
		return 0
	}
	room.mu.RLock()
	defer room.mu.RUnlock()
	return len(room.clients)
}

// room returns the open room of lobbyID, subscribing on first use. The
// subscription round trip happens outside h.mu; concurrent callers for the
// same lobby wait on the room's ready channel.
func (h *Hub) room(ctx context.Context, lobbyID string) (*Room, error) {
	h.mu.Lock()
	room, ok := h.rooms[lobbyID]
	if !ok {
		room = &Room{
			ID:      lobbyID,
			clients: make(map[string]*Client),
			ready:   make(chan struct{}),
		}
		h.rooms[lobbyID] = room
	}
	h.mu.Unlock()

	if !ok {
		if err := room.open(ctx, h.client, h.logger); err != nil {
			h.mu.Lock()
			if h.rooms[lobbyID] == room {
				delete(h.rooms, lobbyID)
			}
			h.mu.Unlock()
			return nil, err
		}
		return room, nil
	}

	select {
	case <-room.ready:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if room.err != nil {
		return nil, room.err
	}
	return room, nil
}

func (h *Hub) join(ctx context.Context, c *Client) (*Room, error) {
	for {
		room, err := h.room(ctx, c.LobbyID)
		if err != nil {
			return nil, err
		}

		h.mu.Lock()
		// The room may have closed between opening and registering.
		if h.rooms[c.LobbyID] == room {
			room.mu.Lock()
			room.clients[c.ID] = c
			room.mu.Unlock()
			h.mu.Unlock()
			return room, nil
		}
		h.mu.Unlock()
	}
}

func (h *Hub) leave(room *Room, c *Client) {
	h.mu.Lock()
	room.mu.Lock()
	if _, ok := room.clients[c.ID]; ok {
		delete(room.clients, c.ID)
		close(c.Send)
	}
	empty := len(room.clients) == 0
	room.mu.Unlock()

	closing := empty && h.rooms[room.ID] == room
	if closing {
		delete(h.rooms, room.ID)
	}
	h.mu.Unlock()

	if closing {
		room.close()
		h.logger.WithField("lobby", room.ID).Debug("live: room closed")
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	rooms := make([]*Room, 0, len(h.rooms))
	for _, r := range h.rooms {
		rooms = append(rooms, r)
	}
	h.mu.Unlock()

	for _, r := range rooms {
		r.mu.RLock()
		for _, c := range r.clients {
			c.Conn.Close()
		}
		r.mu.RUnlock()
	}
}

// open subscribes to the lobby channel and starts the relay. Waiters are
// released whether or not it succeeds.
func (r *Room) open(ctx context.Context, client *redis.Client, logger *logrus.Logger) error {
	defer close(r.ready)

	sub := client.Subscribe(ctx, Channel(r.ID))
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		r.err = err
		return err
	}
	relayCtx, cancel := context.WithCancel(context.Background())
	r.sub = sub
	r.cancel = cancel
	go r.relay(relayCtx, logger)
	logger.WithField("lobby", r.ID).Debug("live: room opened")
	return nil
}

func (r *Room) close() {
	r.cancel()
	r.sub.Close()
}

// relay forwards every message on the lobby channel to the room's clients.
func (r *Room) relay(ctx context.Context, logger *logrus.Logger) {
	ch := r.sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			r.broadcast([]byte(msg.Payload), logger)
		}
	}
}

func (r *Room) broadcast(data []byte, logger *logrus.Logger) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for id, c := range r.clients {
		select {
		case c.Send <- data:
		default:
			logger.WithFields(logrus.Fields{
				"lobby":  r.ID,
				"client": id,
			}).Warn("live: send buffer full, dropping event")
		}
	}
}

func (c *Client) readPump(h *Hub, room *Room) {
	defer func() {
		h.leave(room, c)
		c.Conn.Close()
		h.logger.WithFields(logrus.Fields{
			"lobby":  c.LobbyID,
			"client": c.ID,
		}).Info("live: client unsubscribed")
	}()

	c.Conn.SetReadLimit(4096)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	// Clients only listen; anything they send is read and dropped so
	// control frames keep flowing.
	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.WithError(err).Debug("live: websocket error")
			}
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

package live

import (
	"context"
	"log/slog"
	"sync"

	"github.com/holidaypuzzle/puzzle/backend-go/internal/session"
)

const eventBuffer = 256

type Room struct {
	sessionID string
	clients   map[string]*Client // clientID -> client
}

func NewRoom(sessionID string) *Room {
	return &Room{
		sessionID: sessionID,
		clients:   make(map[string]*Client),
	}
}

// Hub fans session events out to the sockets watching each session. It
// implements session.Publisher.
type Hub struct {
	mu         sync.RWMutex
	rooms      map[string]*Room // sessionID -> room
	register   chan *Client
	unregister chan *Client
	events     chan session.Event
	done       chan struct{}
	logger     *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		rooms:      make(map[string]*Room),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		events:     make(chan session.Event, eventBuffer),
		done:       make(chan struct{}),
		logger:     logger.With("component", "live"),
	}
}

// Run processes registrations and events until ctx is cancelled, then closes
// every connected client.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		close(h.done)
		h.closeAll()
	}()

	for {
		select {
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case e := <-h.events:
			h.handleEvent(e)
		case <-ctx.Done():
			return
		}
	}
}

func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		client.closeSend()
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Publish queues an event for delivery. It never blocks the caller; when the
// queue is full the event is dropped.
func (h *Hub) Publish(e session.Event) {
	select {
	case h.events <- e:
	default:
		h.logger.Warn("live event queue full, dropping event", "type", e.Type, "session", e.SessionID)
	}
}

// Clients reports how many sockets are watching a session.
func (h *Hub) Clients(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if room, ok := h.rooms[sessionID]; ok {
		return len(room.clients)
	}
	return 0
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	room, ok := h.rooms[client.SessionID]
	if !ok {
		room = NewRoom(client.SessionID)
		h.rooms[client.SessionID] = room
	}
	room.clients[client.ClientID] = client
	h.mu.Unlock()

	h.logger.Info("client joined", "client", client.ClientID, "session", client.SessionID, "user", client.UserID)
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[client.SessionID]
	if !ok {
		return
	}
	if _, ok := room.clients[client.ClientID]; !ok {
		return
	}

	delete(room.clients, client.ClientID)
	client.closeSend()
	if len(room.clients) == 0 {
		delete(h.rooms, client.SessionID)
	}

	h.logger.Info("client left", "client", client.ClientID, "session", client.SessionID)
}

func (h *Hub) handleEvent(e session.Event) {
	msg, err := messageFor(e)
	if err != nil {
		h.logger.Error("encode live event", "type", e.Type, "error", err)
		return
	}
	h.broadcastToRoom(e.SessionID, msg)

	// A discarded session has no further updates; end its feeds.
	if e.Type == session.EventSessionDiscarded {
		h.closeRoom(e.SessionID)
	}
}

func (h *Hub) broadcastToRoom(sessionID string, msg *Message) {
	h.mu.RLock()
	room, ok := h.rooms[sessionID]
	if !ok {
		h.mu.RUnlock()
		return
	}

	clients := make([]*Client, 0, len(room.clients))
	for _, c := range room.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.Send(msg)
	}
}

func (h *Hub) closeRoom(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[sessionID]
	if !ok {
		return
	}
	for _, c := range room.clients {
		c.closeSend()
	}
	delete(h.rooms, sessionID)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, room := range h.rooms {
		for _, c := range room.clients {
			c.closeSend()
		}
		delete(h.rooms, id)
	}
}

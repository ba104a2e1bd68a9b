package ws

import (
	"encoding/json"
	"log/slog"
	"sync"

	"StayDesk/entity"
	"StayDesk/internal/lib/sl"
)

// Event is one websocket frame, inbound or outbound.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Session is the per-connection context handed to the chat layer: a stable
// session id plus the identity fixed at authentication time.
type Session interface {
	SessionID() string
	Identity() entity.Identity
}

// SessionHandler is implemented by the chat layer. OnConnect runs after the
// session's pumps are started, OnDisconnect after its channels are already
// torn down (it receives the rooms the session had joined).
type SessionHandler interface {
	OnConnect(s Session)
	OnDisconnect(s Session, rooms []string)
	OnEvent(s Session, eventType string, data json.RawMessage)
}

// Relay re-delivers room- and identity-scoped events on other instances.
type Relay interface {
	RelayToRoom(roomID string, event *Event)
	RelayToIdentity(identityID string, event *Event)
}

// Hub is the session registry and delivery fan-out. It maps live sessions
// to logical channels (one per joined room, one private per identity) and
// delivers events best-effort, at most once per live session. Sessions not
// connected simply miss the event; durability for offline users comes from
// read receipts and history refetch, not queuing.
type Hub struct {
	sessions   map[string]*Client         // session id → client
	channels   map[string]map[string]bool // room id → joined session ids
	identities map[string]map[string]bool // identity id → its session ids
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
	handler    SessionHandler
	relay      Relay
	log        *slog.Logger
}

func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		sessions:   make(map[string]*Client),
		channels:   make(map[string]map[string]bool),
		identities: make(map[string]map[string]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		log:        log.With(sl.Module("ws.hub")),
	}
}

// SetHandler sets the handler for session lifecycle and inbound events.
func (h *Hub) SetHandler(handler SessionHandler) {
	h.handler = handler
}

// SetRelay plugs in the cross-instance bridge.
func (h *Hub) SetRelay(relay Relay) {
	h.relay = relay
}

// Run starts the hub's registration loop. Should be called in a goroutine.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.sessions[client.sessionID] = client
			if h.identities[client.identity.ID] == nil {
				h.identities[client.identity.ID] = make(map[string]bool)
			}
			h.identities[client.identity.ID][client.sessionID] = true
			h.mu.Unlock()

			if h.handler != nil {
				go h.handler.OnConnect(client)
			}

		case client := <-h.unregister:
			h.mu.Lock()
			rooms, dropped := h.dropLocked(client)
			h.mu.Unlock()

			if dropped && h.handler != nil {
				go h.handler.OnDisconnect(client, rooms)
			}
		}
	}
}

// dropLocked removes a client from every index and returns the rooms it
// had joined. Caller holds h.mu.
func (h *Hub) dropLocked(client *Client) ([]string, bool) {
	if _, ok := h.sessions[client.sessionID]; !ok {
		return nil, false
	}
	delete(h.sessions, client.sessionID)

	if ids, ok := h.identities[client.identity.ID]; ok {
		delete(ids, client.sessionID)
		if len(ids) == 0 {
			delete(h.identities, client.identity.ID)
		}
	}

	rooms := make([]string, 0, len(client.rooms))
	for roomID := range client.rooms {
		rooms = append(rooms, roomID)
		if members, ok := h.channels[roomID]; ok {
			delete(members, client.sessionID)
			if len(members) == 0 {
				delete(h.channels, roomID)
			}
		}
	}

	close(client.send)
	return rooms, true
}

// JoinRoom subscribes a session to a room's logical channel. Joining twice
// is a no-op, as is joining with a dead session id.
func (h *Hub) JoinRoom(sessionID, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	client, ok := h.sessions[sessionID]
	if !ok {
		return
	}
	if h.channels[roomID] == nil {
		h.channels[roomID] = make(map[string]bool)
	}
	h.channels[roomID][sessionID] = true
	client.rooms[roomID] = true
}

// LeaveRoom unsubscribes a session from a room's channel.
func (h *Hub) LeaveRoom(sessionID, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if client, ok := h.sessions[sessionID]; ok {
		delete(client.rooms, roomID)
	}
	if members, ok := h.channels[roomID]; ok {
		delete(members, sessionID)
		if len(members) == 0 {
			delete(h.channels, roomID)
		}
	}
}

// RoomsOf returns the rooms a session has joined.
func (h *Hub) RoomsOf(sessionID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	client, ok := h.sessions[sessionID]
	if !ok {
		return nil
	}
	rooms := make([]string, 0, len(client.rooms))
	for roomID := range client.rooms {
		rooms = append(rooms, roomID)
	}
	return rooms
}

// IdentityHasSessions reports whether the identity still has a live
// session on this instance.
func (h *Hub) IdentityHasSessions(identityID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.identities[identityID]) > 0
}

// PublishToRoom delivers an event to every live session joined to the room,
// here and, through the relay, on every other instance.
func (h *Hub) PublishToRoom(roomID string, event *Event) {
	h.DeliverToRoom(roomID, event)
	if h.relay != nil {
		h.relay.RelayToRoom(roomID, event)
	}
}

// PublishToIdentity delivers an event to every live session of an identity
// regardless of joined rooms. Used for notifications that must reach a user
// before they have joined a room, such as ticket-assignment alerts.
func (h *Hub) PublishToIdentity(identityID string, event *Event) {
	h.DeliverToIdentity(identityID, event)
	if h.relay != nil {
		h.relay.RelayToIdentity(identityID, event)
	}
}

// PublishToSessions delivers an event to an already-resolved set of session
// ids. Fan-out only ever depends on resolved sessions; callers resolve
// membership themselves.
func (h *Hub) PublishToSessions(sessionIDs []string, event *Event) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, id := range sessionIDs {
		if client, ok := h.sessions[id]; ok {
			h.push(client, data)
		}
	}
}

// DeliverToRoom fans out to local sessions only. The relay calls this for
// events originating on other instances.
func (h *Hub) DeliverToRoom(roomID string, event *Event) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sessionID := range h.channels[roomID] {
		if client, ok := h.sessions[sessionID]; ok {
			h.push(client, data)
		}
	}
}

// DeliverToIdentity fans out to the identity's local sessions only.
func (h *Hub) DeliverToIdentity(identityID string, event *Event) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sessionID := range h.identities[identityID] {
		if client, ok := h.sessions[sessionID]; ok {
			h.push(client, data)
		}
	}
}

// SendToSession delivers an event to one session.
func (h *Hub) SendToSession(sessionID string, event *Event) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if client, ok := h.sessions[sessionID]; ok {
		h.push(client, data)
	}
}

// push is a non-blocking send; a session that cannot keep up loses the
// event rather than stalling the fan-out. Caller holds h.mu (read).
func (h *Hub) push(client *Client, data []byte) {
	select {
	case client.send <- data:
	default:
		h.log.Warn("dropping event for slow session",
			slog.String("session_id", client.sessionID),
			slog.String("identity", client.identity.ID),
		)
	}
}

// clientEvent is one parsed inbound frame.
type clientEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// handleInbound parses and dispatches one raw frame from a session.
func (h *Hub) handleInbound(client *Client, raw []byte) {
	if h.handler == nil {
		return
	}

	var event clientEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		h.log.Warn("failed to parse client ws message", sl.Err(err))
		return
	}
	if event.Type == "" {
		return
	}

	h.handler.OnEvent(client, event.Type, event.Data)
}

package relay

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mirrorwell/exhibit/backend/internal/service/session"
)

// Peer is one websocket connection attached to at most one room. Writes are
// serialized per connection because gorilla allows a single writer.
type Peer struct {
	conn *websocket.Conn

	writeMu sync.Mutex
	mu      sync.Mutex
	room    string
	role    string
}

// NewPeer wraps an upgraded connection.
func NewPeer(conn *websocket.Conn) *Peer {
	return &Peer{conn: conn}
}

// Room returns the room the peer joined, empty before join.
func (p *Peer) Room() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.room
}

// Role returns the role announced in the join message.
func (p *Peer) Role() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.role
}

func (p *Peer) setIdentity(room, role string) {
	p.mu.Lock()
	p.room = room
	p.role = role
	p.mu.Unlock()
}

func (p *Peer) send(data []byte) {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if err := p.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Printf("[relay] write to peer failed: %v", err)
	}
}

func (p *Peer) sendJSON(payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[relay] marshal payload failed: %v", err)
		return
	}
	p.send(data)
}

// Envelope is the minimal parseable shape every relayed message must have.
// Unknown fields pass through untouched because passthrough forwards the raw
// bytes, not a re-encoding.
type Envelope struct {
	Type    string `json:"type"`
	Room    string `json:"room"`
	Session string `json:"session,omitempty"`
	Role    string `json:"role,omitempty"`
}

// Hub fans messages out per room and owns the control-message semantics:
// join, session_start, session_end plus the delayed session_autoreset.
type Hub struct {
	registry   *session.Registry
	resetDelay time.Duration

	// OnSessionEnd, when set, runs after a room's session is unbound so the
	// orchestrator can drop pending state tied to it.
	OnSessionEnd func(room, sessionID string)

	mu    sync.Mutex
	rooms map[string]map[*Peer]struct{}
}

// NewHub wires the hub to the session registry.
func NewHub(registry *session.Registry, resetDelay time.Duration) *Hub {
	return &Hub{
		registry:   registry,
		resetDelay: resetDelay,
		rooms:      make(map[string]map[*Peer]struct{}),
	}
}

// HandleMessage routes one inbound frame. Malformed payloads are silently
// dropped; anything that is not a control message is relayed verbatim to
// every other peer in the sender's room.
func (h *Hub) HandleMessage(p *Peer, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return
	}

	switch env.Type {
	case "join":
		h.handleJoin(p, env)
	case "session_start":
		h.handleSessionStart(p, env)
	case "session_end":
		h.handleSessionEnd(p, env)
	default:
		h.relay(p, raw)
	}
}

func (h *Hub) handleJoin(p *Peer, env Envelope) {
	if env.Room == "" {
		return
	}

	h.Remove(p)
	p.setIdentity(env.Room, env.Role)

	h.mu.Lock()
	peers, ok := h.rooms[env.Room]
	if !ok {
		peers = make(map[*Peer]struct{})
		h.rooms[env.Room] = peers
	}
	peers[p] = struct{}{}
	h.mu.Unlock()

	log.Printf("[relay] peer joined room=%s role=%s", env.Room, env.Role)

	// Late joiners converge on the canonical session without re-requesting.
	if entry, ok := h.registry.Lookup(env.Room); ok {
		p.sendJSON(Envelope{Type: "session_start", Room: env.Room, Session: entry.SessionID})
	}
}

func (h *Hub) handleSessionStart(p *Peer, env Envelope) {
	room := env.Room
	if room == "" {
		room = p.Room()
	}
	if room == "" {
		return
	}

	id := h.registry.Coerce(room, env.Session)
	h.Broadcast(room, Envelope{Type: "session_start", Room: room, Session: id})
}

func (h *Hub) handleSessionEnd(p *Peer, env Envelope) {
	room := env.Room
	if room == "" {
		room = p.Room()
	}
	if room == "" {
		return
	}

	var ended string
	if entry, ok := h.registry.Lookup(room); ok {
		ended = entry.SessionID
	}
	h.registry.End(room)

	if h.OnSessionEnd != nil && ended != "" {
		h.OnSessionEnd(room, ended)
	}

	h.Broadcast(room, Envelope{Type: "session_end", Room: room, Session: ended})

	// Grace window for slow clients to finish in-flight writes before the
	// room is considered free again.
	time.AfterFunc(h.resetDelay, func() {
		h.Broadcast(room, Envelope{Type: "session_autoreset", Room: room})
	})
}

func (h *Hub) relay(sender *Peer, raw []byte) {
	room := sender.Room()
	if room == "" {
		return
	}
	for _, peer := range h.peersIn(room) {
		if peer == sender {
			continue
		}
		peer.send(raw)
	}
}

// Broadcast sends a payload to every peer in the room, including any sender.
func (h *Hub) Broadcast(room string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[relay] marshal broadcast failed: %v", err)
		return
	}
	for _, peer := range h.peersIn(room) {
		peer.send(data)
	}
}

// BroadcastEvent is the server-push entry point for orchestrator events such
// as photo_captured and face_duplicate.
func (h *Hub) BroadcastEvent(room, eventType string, extra map[string]interface{}) {
	payload := map[string]interface{}{"type": eventType, "room": room}
	for k, v := range extra {
		payload[k] = v
	}
	h.Broadcast(room, payload)
}

// Remove detaches a peer from its room; empty rooms are deleted. Pure
// cleanup, not a semantic room-closed signal.
func (h *Hub) Remove(p *Peer) {
	room := p.Room()
	if room == "" {
		return
	}

	h.mu.Lock()
	if peers, ok := h.rooms[room]; ok {
		delete(peers, p)
		if len(peers) == 0 {
			delete(h.rooms, room)
		}
	}
	h.mu.Unlock()
}

// PeerCount reports how many peers are attached to a room.
func (h *Hub) PeerCount(room string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[room])
}

func (h *Hub) peersIn(room string) []*Peer {
	h.mu.Lock()
	defer h.mu.Unlock()

	peers := make([]*Peer, 0, len(h.rooms[room]))
	for peer := range h.rooms[room] {
		peers = append(peers, peer)
	}
	return peers
}

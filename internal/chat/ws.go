package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/ritachen3656251-design/Danlink/internal/store"
)

// Event is one server-push frame on a user's realtime feed.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Hub maintains one websocket fan-out per signed-in profile. Unlike a
// per-conversation room, the feed is keyed by receiver so a client gets
// message_new events for every conversation it participates in: the
// subscribe-to-inserts-matching-receiver primitive.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*websocket.Conn]bool

	tasks store.Tasks
	convs store.Conversations
}

func NewHub(tasks store.Tasks, convs store.Conversations) *Hub {
	return &Hub{
		clients: make(map[string]map[*websocket.Conn]bool),
		tasks:   tasks,
		convs:   convs,
	}
}

func (h *Hub) register(profileID string, c *websocket.Conn) {
	h.mu.Lock()
	if h.clients[profileID] == nil {
		h.clients[profileID] = make(map[*websocket.Conn]bool)
	}
	h.clients[profileID][c] = true
	h.mu.Unlock()
}

func (h *Hub) unregister(profileID string, c *websocket.Conn) {
	h.mu.Lock()
	if conns, ok := h.clients[profileID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.clients, profileID)
		}
	}
	h.mu.Unlock()
}

// Push delivers an event to every open socket of one profile.
func (h *Hub) Push(profileID string, evt Event) {
	payload, _ := json.Marshal(evt)
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients[profileID] {
		_ = c.WriteMessage(websocket.TextMessage, payload)
	}
}

// OnMessage implements MessageObserver: pushes message_new to the receiver's
// feed with the display text rendered from the receiver's perspective.
func (h *Hub) OnMessage(m store.Message) {
	role := RoleAcceptor
	if conv, err := h.convs.Get(context.Background(), m.ConversationID); err == nil {
		if task, err := h.tasks.Get(context.Background(), conv.TaskID); err == nil {
			role = ViewerRole(task, m.ReceiverID)
		}
	}
	h.Push(m.ReceiverID, Event{Type: "message_new", Data: echo.Map{
		"id":              m.ID,
		"conversation_id": m.ConversationID,
		"sender_id":       m.SenderID,
		"receiver_id":     m.ReceiverID,
		"display_text":    DisplayText(m, role),
		"message_type":    m.Type,
		"created_at":      m.CreatedAt.UTC().Format(time.RFC3339),
	}})
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Serve - websocket feed for the signed-in user
func (h *Hub) Serve(c echo.Context) error {
	profileID, ok := c.Get("profile_id").(string)
	if !ok || profileID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	h.register(profileID, ws)

	// Read loop (discard client frames; protocol is server push)
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			h.unregister(profileID, ws)
			_ = ws.Close()
			break
		}
	}
	return nil
}

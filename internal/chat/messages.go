package chat

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ritachen3656251-design/Danlink/internal/store"
)

// MessageObserver consumes every newly appended message. The websocket hub,
// the unread tracker and the conversation list projector all observe the same
// insert feed.
type MessageObserver interface {
	OnMessage(m store.Message)
}

// Handler serves the conversation and message endpoints.
type Handler struct {
	Convs     store.Conversations
	Msgs      store.Messages
	Tasks     store.Tasks
	Resolver  *Resolver
	Observers []MessageObserver
}

type messageView struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	SenderID       string `json:"sender_id"`
	ReceiverID     string `json:"receiver_id"`
	DisplayText    string `json:"display_text"`
	Type           string `json:"message_type"`
	IsRead         bool   `json:"is_read"`
	CreatedAt      string `json:"created_at"`
}

func toView(m store.Message, viewerRole string) messageView {
	return messageView{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		ReceiverID:     m.ReceiverID,
		DisplayText:    DisplayText(m, viewerRole),
		Type:           m.Type,
		IsRead:         m.IsRead,
		CreatedAt:      m.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// ViewerRole reports the role a profile holds inside a conversation's task.
func ViewerRole(task *store.Task, profileID string) string {
	if task != nil && task.PublisherID == profileID {
		return RolePublisher
	}
	return RoleAcceptor
}

// ResolveConversation - compute/retrieve the unique conversation id for
// (task, participant pair). The only conversation-identity contract other
// screens need.
func (h *Handler) ResolveConversation(c echo.Context) error {
	profileID, ok := c.Get("profile_id").(string)
	if !ok || profileID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	var req struct {
		TaskID      string  `json:"task_id"`
		PublisherID string  `json:"publisher_id"`
		AcceptorID  *string `json:"acceptor_id"`
	}
	if err := c.Bind(&req); err != nil || req.TaskID == "" || req.PublisherID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid payload"})
	}

	convID, err := h.Resolver.Resolve(c.Request().Context(), req.TaskID, req.PublisherID, req.AcceptorID)
	if err != nil {
		// Message sending stays disabled client-side until a retry succeeds.
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "conversation unavailable"})
	}
	return c.JSON(http.StatusOK, echo.Map{"conversation_id": convID})
}

// SendMessage - participant appends a user message to a conversation
func (h *Handler) SendMessage(c echo.Context) error {
	profileID, ok := c.Get("profile_id").(string)
	if !ok || profileID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	convID := c.Param("id")
	var body struct {
		Content string `json:"content"`
	}
	if err := c.Bind(&body); err != nil || body.Content == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid payload"})
	}

	ctx := c.Request().Context()
	conv, err := h.Convs.Get(ctx, convID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "conversation not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to fetch conversation"})
	}

	receiverID, err := counterpart(conv, profileID)
	if err != nil {
		return c.JSON(http.StatusForbidden, echo.Map{"error": err.Error()})
	}

	msg := store.Message{
		ID:             uuid.New().String(),
		ConversationID: convID,
		SenderID:       profileID,
		ReceiverID:     receiverID,
		Content:        body.Content,
		Type:           "user",
	}
	if err := h.Msgs.Insert(ctx, &msg); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to send message"})
	}
	_ = h.Convs.TouchLastMessage(ctx, convID, msg.CreatedAt)

	h.Publish(msg)

	task, _ := h.Tasks.Get(ctx, conv.TaskID)
	return c.JSON(http.StatusOK, toView(msg, ViewerRole(task, profileID)))
}

// Publish fans a freshly inserted message out to all observers.
func (h *Handler) Publish(m store.Message) {
	for _, o := range h.Observers {
		o.OnMessage(m)
	}
}

// counterpart derives the intended receiver for a message sent by senderID.
func counterpart(conv *store.Conversation, senderID string) (string, error) {
	if conv.AcceptorID != nil {
		switch senderID {
		case conv.PublisherID:
			return *conv.AcceptorID, nil
		case *conv.AcceptorID:
			return conv.PublisherID, nil
		default:
			return "", errors.New("not a participant in this conversation")
		}
	}
	// Open inquiry: the stored participant is the task publisher; any asker
	// may write to them, but the publisher has no counterpart yet.
	if senderID == conv.PublisherID {
		return "", errors.New("conversation has no committed counterpart yet")
	}
	return conv.PublisherID, nil
}

// ListMessages - ordered conversation history rendered for the caller
func (h *Handler) ListMessages(c echo.Context) error {
	profileID, ok := c.Get("profile_id").(string)
	if !ok || profileID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	convID := c.Param("id")
	ctx := c.Request().Context()

	conv, err := h.Convs.Get(ctx, convID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "conversation not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to fetch conversation"})
	}
	if !isParticipant(conv, profileID) {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "not a participant in this conversation"})
	}

	// Optional since filter for incremental polling fetches
	var msgs []store.Message
	if sinceStr := c.QueryParam("since"); sinceStr != "" {
		sinceTime, perr := time.Parse(time.RFC3339, sinceStr)
		if perr != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid since timestamp, use RFC3339"})
		}
		msgs, err = h.Msgs.ListSince(ctx, convID, sinceTime)
	} else {
		msgs, err = h.Msgs.List(ctx, convID)
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to list messages"})
	}

	task, terr := h.Tasks.Get(ctx, conv.TaskID)
	if terr != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to fetch task"})
	}
	role := ViewerRole(task, profileID)

	views := make([]messageView, 0, len(msgs))
	for _, m := range msgs {
		views = append(views, toView(m, role))
	}
	return c.JSON(http.StatusOK, echo.Map{"messages": views})
}

// GetConversation - fetch one conversation row (participants, task binding)
func (h *Handler) GetConversation(c echo.Context) error {
	profileID, ok := c.Get("profile_id").(string)
	if !ok || profileID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	conv, err := h.Convs.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "conversation not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to fetch conversation"})
	}
	if !isParticipant(conv, profileID) {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "not a participant in this conversation"})
	}
	return c.JSON(http.StatusOK, conv)
}

func isParticipant(conv *store.Conversation, profileID string) bool {
	if conv.PublisherID == profileID {
		return true
	}
	if conv.AcceptorID != nil && *conv.AcceptorID == profileID {
		return true
	}
	// Inquiry threads are readable by the asker side too; with no acceptor
	// recorded we cannot distinguish askers, so any non-publisher reader is
	// treated as the inquiring side.
	return conv.AcceptorID == nil
}

// AppendSystem inserts a structured system announcement into a conversation
// and fans it out. Used by the transaction state machine.
func (h *Handler) AppendSystem(ctx context.Context, conv *store.Conversation, senderID, receiverID, template, actorRole string) (*store.Message, error) {
	msg := store.Message{
		ID:             uuid.New().String(),
		ConversationID: conv.ID,
		SenderID:       senderID,
		ReceiverID:     receiverID,
		Type:           "system",
		SysTemplate:    template,
		SysActorRole:   actorRole,
	}
	if err := h.Msgs.Insert(ctx, &msg); err != nil {
		return nil, err
	}
	_ = h.Convs.TouchLastMessage(ctx, conv.ID, msg.CreatedAt)
	h.Publish(msg)
	return &msg, nil
}

package task

import (
	"errors"
	"log"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ritachen3656251-design/Danlink/internal/chat"
	"github.com/ritachen3656251-design/Danlink/internal/store"
)

// Handler serves the errand listing endpoints.
type Handler struct {
	Tasks    store.Tasks
	Accs     store.Acceptances
	Profiles store.Profiles
	Resolver *chat.Resolver
	Chat     *chat.Handler
}

var taskTypes = map[string]bool{"delivery": true, "study": true, "tutor": true}

// Create - publish a new errand listing
func (h *Handler) Create(c echo.Context) error {
	profileID, ok := c.Get("profile_id").(string)
	if !ok || profileID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	var req struct {
		Type        string `json:"type"`
		Title       string `json:"title"`
		Price       string `json:"price"`
		Description string `json:"description"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if req.Title == "" || req.Price == "" || !taskTypes[req.Type] {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "type, title and price are required"})
	}

	t := store.Task{
		ID:          uuid.New().String(),
		Type:        req.Type,
		Title:       req.Title,
		Price:       req.Price,
		Description: req.Description,
		PublisherID: profileID,
		Status:      "active",
	}
	if err := h.Tasks.Insert(c.Request().Context(), &t); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not create task"})
	}
	return c.JSON(http.StatusCreated, echo.Map{"task_id": t.ID, "message": "task published"})
}

// ListOpen - all listings still visible on the hall, newest first. Completed
// tasks are excluded at the store level via the completion marker.
func (h *Handler) ListOpen(c echo.Context) error {
	tasks, err := h.Tasks.ListOpen(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not fetch tasks"})
	}
	return c.JSON(http.StatusOK, echo.Map{"tasks": tasks})
}

// Get - one listing with its publisher's display identity
func (h *Handler) Get(c echo.Context) error {
	ctx := c.Request().Context()
	t, err := h.Tasks.Get(ctx, c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "task not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not fetch task"})
	}

	publisherName := "已实名同学"
	var publisherAvatar string
	if p, err := h.Profiles.Get(ctx, t.PublisherID); err == nil {
		publisherName = p.Name
		publisherAvatar = p.AvatarURL
	}
	return c.JSON(http.StatusOK, echo.Map{
		"task":             t,
		"publisher_name":   publisherName,
		"publisher_avatar": publisherAvatar,
	})
}

// Accept - commit to a task. Re-accepting a task the caller already holds is
// idempotent; the stored acceptance is returned unchanged. On first accept the
// committed conversation is resolved (reusing any open inquiry thread) and an
// acceptance announcement lands in it.
func (h *Handler) Accept(c echo.Context) error {
	profileID, ok := c.Get("profile_id").(string)
	if !ok || profileID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	ctx := c.Request().Context()
	taskID := c.Param("id")

	t, err := h.Tasks.Get(ctx, taskID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "task not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not fetch task"})
	}
	if t.PublisherID == profileID {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "cannot accept your own task"})
	}

	acc := store.Acceptance{
		ID:         uuid.New().String(),
		TaskID:     taskID,
		AcceptorID: profileID,
		Status:     "active",
	}
	if err := h.Accs.Insert(ctx, &acc); err != nil {
		if errors.Is(err, store.ErrConflict) {
			existing, ferr := h.Accs.Find(ctx, taskID, profileID)
			if ferr != nil {
				return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not fetch acceptance"})
			}
			convID, rerr := h.Resolver.Resolve(ctx, taskID, t.PublisherID, &profileID)
			if rerr != nil {
				return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "conversation unavailable"})
			}
			return c.JSON(http.StatusOK, echo.Map{
				"acceptance":       existing,
				"conversation_id":  convID,
				"already_accepted": true,
			})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not accept task"})
	}

	if t.Status == "active" {
		if err := h.Tasks.UpdateStatus(ctx, taskID, "accepted"); err != nil {
			log.Printf("[task] status flip failed for %s: %v", taskID, err)
		}
	}

	convID, err := h.Resolver.Resolve(ctx, taskID, t.PublisherID, &profileID)
	if err != nil {
		// The acceptance stands; the conversation resolves on next contact.
		return c.JSON(http.StatusOK, echo.Map{"acceptance": acc, "conversation_id": nil})
	}
	if conv, err := h.Chat.Convs.Get(ctx, convID); err == nil {
		if _, err := h.Chat.AppendSystem(ctx, conv, profileID, t.PublisherID, chat.TplAccepted, chat.RoleAcceptor); err != nil {
			log.Printf("[task] acceptance announcement failed for %s: %v", taskID, err)
		}
	}

	return c.JSON(http.StatusOK, echo.Map{"acceptance": acc, "conversation_id": convID})
}

// Mine - tasks the caller published
func (h *Handler) Mine(c echo.Context) error {
	profileID, ok := c.Get("profile_id").(string)
	if !ok || profileID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	tasks, err := h.Tasks.ListByPublisher(c.Request().Context(), profileID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not fetch tasks"})
	}
	return c.JSON(http.StatusOK, echo.Map{"tasks": tasks})
}

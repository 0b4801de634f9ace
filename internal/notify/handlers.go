package notify

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Handler exposes the tracker's projection and mutations.
type Handler struct {
	Tracker *Tracker
}

// GetUnread - current user's unread projection. Lightweight badge surfaces
// poll this as their fallback to the push channel (tab regains visibility,
// fixed interval).
func (h *Handler) GetUnread(c echo.Context) error {
	profileID, ok := c.Get("profile_id").(string)
	if !ok || profileID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	// First sight of this user initializes the projection from durable rows.
	if !h.Tracker.Registered(profileID) {
		if err := h.Tracker.Refresh(c.Request().Context(), profileID); err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to compute unread"})
		}
	}

	total, counts := h.Tracker.Snapshot(profileID)
	ids := make([]string, 0, len(counts))
	for id := range counts {
		ids = append(ids, id)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"total_unread":            total,
		"has_unread":              total > 0,
		"conversations":           counts,
		"unread_conversation_ids": ids,
	})
}

// MarkConversationRead - flip the read flag for messages addressed to the
// caller in this conversation and roll the projection forward.
func (h *Handler) MarkConversationRead(c echo.Context) error {
	profileID, ok := c.Get("profile_id").(string)
	if !ok || profileID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	convID := c.Param("id")
	if convID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing conversation id"})
	}
	if err := h.Tracker.MarkConversationAsRead(c.Request().Context(), profileID, convID); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to mark read"})
	}
	total, _ := h.Tracker.Snapshot(profileID)
	return c.JSON(http.StatusOK, echo.Map{"total_unread": total, "has_unread": total > 0})
}

// Focus - mark a conversation as open in the caller's UI
func (h *Handler) Focus(c echo.Context) error {
	profileID, ok := c.Get("profile_id").(string)
	if !ok || profileID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	convID := c.Param("id")
	if convID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing conversation id"})
	}
	h.Tracker.SetFocused(profileID, convID)
	return c.JSON(http.StatusOK, echo.Map{"focused": convID})
}

// Unfocus - the conversation is no longer open
func (h *Handler) Unfocus(c echo.Context) error {
	profileID, ok := c.Get("profile_id").(string)
	if !ok || profileID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	convID := c.Param("id")
	if convID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing conversation id"})
	}
	h.Tracker.ClearFocused(profileID, convID)
	return c.JSON(http.StatusOK, echo.Map{"focused": nil})
}

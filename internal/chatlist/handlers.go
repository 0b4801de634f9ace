package chatlist

import (
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Handler serves the conversation list projection.
type Handler struct {
	Projector *Projector
}

// List - GET /conversations. Entry to the message screen is authoritative:
// the projection is rebuilt from durable rows on every call. When the rebuild
// fails and a cached projection exists, that is served instead so the screen
// degrades rather than blanks.
func (h *Handler) List(c echo.Context) error {
	profileID, ok := c.Get("profile_id").(string)
	if !ok || profileID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	entries, err := h.Projector.Rebuild(c.Request().Context(), profileID)
	if err != nil {
		log.Printf("[chatlist] rebuild failed for %s: %v", profileID, err)
		if cached, ok := h.Projector.Cached(profileID); ok {
			return c.JSON(http.StatusOK, echo.Map{"conversations": cached, "stale": true})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not fetch conversations"})
	}

	return c.JSON(http.StatusOK, echo.Map{"conversations": entries})
}

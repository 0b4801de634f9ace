package transaction

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ritachen3656251-design/Danlink/internal/store"
)

// Handler exposes the state machine over HTTP. Action buttons client-side
// stay disabled for the duration of each call; on failure they re-enable
// with the error toast, and on a partial transition the client must not
// render the next state until a retry confirms both halves.
type Handler struct {
	Machine *Machine
}

func (h *Handler) Deliver(c echo.Context) error {
	return h.run(c, h.Machine.Deliver)
}

func (h *Handler) ConfirmAndPay(c echo.Context) error {
	return h.run(c, h.Machine.ConfirmAndPay)
}

func (h *Handler) ConfirmReceipt(c echo.Context) error {
	return h.run(c, h.Machine.ConfirmReceipt)
}

func (h *Handler) run(c echo.Context, fn func(ctx context.Context, taskID, actorID string) error) error {
	profileID, ok := c.Get("profile_id").(string)
	if !ok || profileID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	taskID := c.Param("id")
	if taskID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing task id"})
	}

	err := fn(c.Request().Context(), taskID, profileID)
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, echo.Map{"message": "transition applied"})
	case errors.Is(err, ErrWrongActor):
		return c.JSON(http.StatusForbidden, echo.Map{"error": err.Error()})
	case errors.Is(err, ErrInvalidTransition):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	case errors.Is(err, ErrNoAcceptance):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	case errors.Is(err, ErrPartialTransition):
		return c.JSON(http.StatusBadGateway, echo.Map{"error": err.Error(), "retryable": true})
	case errors.Is(err, store.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "task not found"})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "transition failed"})
	}
}

// Status - durable transaction state for interval polling clients
func (h *Handler) Status(c echo.Context) error {
	profileID, ok := c.Get("profile_id").(string)
	if !ok || profileID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	taskID := c.Param("id")
	if taskID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing task id"})
	}

	task, acc, err := h.Machine.Status(c.Request().Context(), taskID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "task not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to fetch status"})
	}

	resp := echo.Map{
		"task_id":     task.ID,
		"task_status": task.Status,
		"fetched_at":  time.Now().UTC().Format(time.RFC3339),
	}
	if acc != nil {
		resp["transaction_status"] = acc.Status
		resp["acceptor_id"] = acc.AcceptorID
		resp["is_publisher"] = profileID == task.PublisherID
		resp["is_acceptor"] = profileID == acc.AcceptorID
	}
	return c.JSON(http.StatusOK, resp)
}

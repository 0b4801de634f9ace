package profile

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/labstack/echo/v4"

	"github.com/ritachen3656251-design/Danlink/internal/db"
)

// GET /profiles/:id
// Campus-verified identity card shown to other signed-in students. The
// student id itself is never exposed here.
func GetPublicProfile(c echo.Context) error {
	profileID := c.Param("id")
	if profileID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing profile id"})
	}

	var (
		id        string
		name      string
		college   string
		major     string
		gradYear  string
		avatarURL string
		createdAt time.Time
	)

	query := `
		SELECT id, name, COALESCE(college, ''), COALESCE(major, ''),
		       COALESCE(graduation_year, ''), COALESCE(avatar_url, ''), created_at
		FROM profiles
		WHERE id = $1
	`

	err := db.Conn.QueryRow(context.Background(), query, profileID).Scan(
		&id,
		&name,
		&college,
		&major,
		&gradYear,
		&avatarURL,
		&createdAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "profile not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to fetch profile"})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"id":              id,
		"name":            name,
		"college":         college,
		"major":           major,
		"graduation_year": gradYear,
		"avatar_url":      avatarURL,
		"created_at":      createdAt.Format(time.RFC3339),
	})
}

package auth

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ritachen3656251-design/Danlink/internal/db"
)

// Me returns the currently authenticated user's profile
func Me(c echo.Context) error {
	profileID, ok := c.Get("profile_id").(string)
	if !ok || profileID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	var id, studentID, name, college, major, gradYear, avatarURL string
	err := db.Conn.QueryRow(context.Background(), `
        SELECT id, student_id, name, COALESCE(college, ''), COALESCE(major, ''),
               COALESCE(graduation_year, ''), COALESCE(avatar_url, '')
        FROM profiles WHERE id = $1
    `, profileID).Scan(&id, &studentID, &name, &college, &major, &gradYear, &avatarURL)
	if err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "profile not found"})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"id":              id,
		"student_id":      studentID,
		"name":            name,
		"college":         college,
		"major":           major,
		"graduation_year": gradYear,
		"avatar_url":      avatarURL,
	})
}

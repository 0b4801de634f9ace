package auth

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/ritachen3656251-design/Danlink/internal/db"
)

type LoginRequest struct {
	StudentID string `json:"student_id" validate:"required"`
	Password  string `json:"password" validate:"required"`
}

type LoginResponse struct {
	Token     string `json:"token"`
	ProfileID string `json:"profile_id"`
}

// ===== Login =====
func Login(c echo.Context) error {
	req := new(LoginRequest)
	if err := c.Bind(req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	conn := db.Conn
	ctx := context.Background()

	var (
		profileID    string
		passwordHash string
	)
	err := conn.QueryRow(ctx, `
        SELECT p.id, u.password_hash
        FROM users u
        JOIN profiles p ON p.student_id = u.student_id
        WHERE u.student_id = $1
    `, req.StudentID).Scan(&profileID, &passwordHash)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}
	if err := bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(req.Password)); err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}

	signed, err := issueToken(profileID, req.StudentID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "token generation failed"})
	}
	return c.JSON(http.StatusOK, LoginResponse{Token: signed, ProfileID: profileID})
}

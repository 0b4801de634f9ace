package auth

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/ritachen3656251-design/Danlink/internal/db"
)

type SignupRequest struct {
	StudentID string `json:"student_id" validate:"required"`
	Name      string `json:"name" validate:"required"`
	Password  string `json:"password" validate:"required,min=6"`
}

type SignupResponse struct {
	Token     string `json:"token"`
	ProfileID string `json:"profile_id"`
}

// ===== Signup =====
// Registration is by campus student id; the verified profile row is created
// in the same transaction as the credentials.
func Signup(c echo.Context) error {
	req := new(SignupRequest)
	if err := c.Bind(req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if req.StudentID == "" || req.Name == "" || len(req.Password) < 6 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "student_id, name and a password of 6+ characters are required"})
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "server error"})
	}

	conn := db.Conn
	ctx := context.Background()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "db transaction error"})
	}
	defer tx.Rollback(ctx)

	var profileID string
	err = tx.QueryRow(ctx, `
		INSERT INTO profiles (id, student_id, name)
		VALUES ($1, $2, $3)
		RETURNING id
	`, uuid.New().String(), req.StudentID, req.Name).Scan(&profileID)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "student id already registered"})
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO users (student_id, password_hash)
		VALUES ($1, $2)
	`, req.StudentID, string(hashed))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "credential creation failed"})
	}

	if err := tx.Commit(ctx); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "transaction failed"})
	}

	signed, err := issueToken(profileID, req.StudentID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "token generation failed"})
	}
	return c.JSON(http.StatusOK, SignupResponse{Token: signed, ProfileID: profileID})
}

func issueToken(profileID, studentID string) (string, error) {
	claims := jwt.MapClaims{
		"profile_id": profileID,
		"student_id": studentID,
		"exp":        time.Now().Add(72 * time.Hour).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(os.Getenv("JWT_SECRET")))
}

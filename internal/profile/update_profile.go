package profile

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ritachen3656251-design/Danlink/internal/db"
)

type UpdateProfileRequest struct {
	Name           string `json:"name"`
	College        string `json:"college"`
	Major          string `json:"major"`
	GraduationYear string `json:"graduation_year"`
	AvatarURL      string `json:"avatar_url"`
}

// PATCH /profiles/me
func UpdateProfile(c echo.Context) error {
	profileID, ok := c.Get("profile_id").(string)
	if !ok || profileID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid or missing token"})
	}

	var req UpdateProfileRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	query := `
		UPDATE profiles
		SET name = COALESCE(NULLIF($1, ''), name),
		    college = COALESCE(NULLIF($2, ''), college),
		    major = COALESCE(NULLIF($3, ''), major),
		    graduation_year = COALESCE(NULLIF($4, ''), graduation_year),
		    avatar_url = COALESCE(NULLIF($5, ''), avatar_url),
		    updated_at = NOW()
		WHERE id = $6
	`
	_, err := db.Conn.Exec(c.Request().Context(), query,
		req.Name, req.College, req.Major, req.GraduationYear, req.AvatarURL, profileID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to update profile"})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"message": "profile updated successfully",
	})
}

package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthRoutesAreRateLimited(t *testing.T) {
	e := echo.New()
	registerAuthRoutes(e)

	var allowed, limited int
	// Well past the limiter's burst allowance from a single client IP.
	for i := 0; i < 40; i++ {
		req := httptest.NewRequest(http.MethodPost, "/signup", strings.NewReader(""))
		req.RemoteAddr = "203.0.113.7:4242"
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		switch rec.Code {
		case http.StatusTooManyRequests:
			limited++
		default:
			allowed++
		}
	}

	assert.Greater(t, allowed, 0, "requests under the burst must reach the handler")
	require.Greater(t, limited, 0, "sustained bursts from one IP must be throttled")
}

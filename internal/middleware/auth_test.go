package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
)

const testSecret = "test-secret"

func newAuthApp(enabled bool) (*fiber.App, *AuthMiddleware) {
	m := NewAuthMiddleware(testSecret, enabled)
	app := fiber.New()
	app.Get("/ws", m.Authenticate(), func(c *fiber.Ctx) error {
		return c.SendString("user=" + GetUserID(c))
	})
	return app, m
}

func TestAuthenticate(t *testing.T) {
	app, m := newAuthApp(true)
	token, err := m.GenerateToken("user-1", "u@example.com")
	if err != nil {
		t.Fatal(err)
	}
	other, err := NewAuthMiddleware("other-secret", true).GenerateToken("user-2", "")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{"bearer header", "/ws", "Bearer " + token, http.StatusOK},
		{"query token", "/ws?token=" + token, "", http.StatusOK},
		{"missing", "/ws", "", http.StatusUnauthorized},
		{"bad scheme", "/ws", "Basic abc", http.StatusUnauthorized},
		{"wrong key", "/ws", "Bearer " + other, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := app.Test(req, -1)
			if err != nil {
				t.Fatal(err)
			}
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestAuthenticate_Disabled(t *testing.T) {
	app, _ := newAuthApp(false)
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/ws", nil), -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

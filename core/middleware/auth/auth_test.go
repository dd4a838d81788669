package auth

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuth(t *testing.T) {
	app := fiber.New()
	app.Use(New(Config{ApiKey: "secret", Public: []string{"/health"}}))
	app.Get("/health", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })
	app.Get("/private", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	tests := []struct {
		name   string
		path   string
		header string
		value  string
		want   int
	}{
		{"Public", "/health", "", "", fiber.StatusOK},
		{"MissingKey", "/private", "", "", fiber.StatusUnauthorized},
		{"WrongKey", "/private", Header, "nope", fiber.StatusUnauthorized},
		{"HeaderKey", "/private", Header, "secret", fiber.StatusOK},
		{"Bearer", "/private", fiber.HeaderAuthorization, "Bearer secret", fiber.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", tt.path, nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestAuth_Disabled(t *testing.T) {
	app := fiber.New()
	app.Use(New(Config{}))
	app.Get("/private", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	resp, err := app.Test(httptest.NewRequest("GET", "/private", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

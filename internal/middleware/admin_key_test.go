package middleware

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func adminKeyApp(key string, isProduction bool) *fiber.App {
	app := fiber.New()
	app.Use(AdminKey(key, isProduction))
	app.Get("/ping", func(c *fiber.Ctx) error {
		return c.SendString("pong")
	})
	return app
}

func TestAdminKey_AllowsMatchingKey(t *testing.T) {
	app := adminKeyApp("secret", true)
	req := httptest.NewRequest("GET", "/ping", nil)
	req.Header.Set("X-Admin-Key", "secret")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
}

func TestAdminKey_RejectsWrongKey(t *testing.T) {
	app := adminKeyApp("secret", true)
	req := httptest.NewRequest("GET", "/ping", nil)
	req.Header.Set("X-Admin-Key", "wrong")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 401, resp.StatusCode)
}

func TestAdminKey_RejectsMissingHeader(t *testing.T) {
	app := adminKeyApp("secret", true)
	req := httptest.NewRequest("GET", "/ping", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 401, resp.StatusCode)
}

func TestAdminKey_EmptyKeyOnlyPassesInDev(t *testing.T) {
	resp, err := adminKeyApp("", false).Test(httptest.NewRequest("GET", "/ping", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	resp, err = adminKeyApp("", true).Test(httptest.NewRequest("GET", "/ping", nil))
	require.NoError(t, err)
	assert.Equal(t, 401, resp.StatusCode)
}

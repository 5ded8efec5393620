package controllers

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorHandler(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantErr  string
	}{
		{"fiber not found", fiber.ErrNotFound, fiber.StatusNotFound, "not_found"},
		{"fiber too large", fiber.ErrRequestEntityTooLarge, fiber.StatusRequestEntityTooLarge, "file_too_large"},
		{"plain error hides details", errors.New("db exploded"), fiber.StatusInternalServerError, "internal_server_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
			app.Get("/", func(c *fiber.Ctx) error { return tt.err })

			resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/", nil))
			require.NoError(t, err)
			assert.Equal(t, tt.wantCode, resp.StatusCode)

			var body map[string]string
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, tt.wantErr, body["error"])
			assert.NotContains(t, body["message"], "db exploded")
		})
	}
}

func TestParamID(t *testing.T) {
	app := fiber.New()
	app.Get("/photos/:id", func(c *fiber.Ctx) error {
		id, err := paramID(c)
		if err != nil {
			return c.SendStatus(fiber.StatusBadRequest)
		}
		return c.JSON(fiber.Map{"id": id})
	})

	for path, want := range map[string]int{"/photos/12": 200, "/photos/0": 400, "/photos/abc": 400} {
		resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, path, nil))
		require.NoError(t, err)
		assert.Equal(t, want, resp.StatusCode, path)
	}
}

func TestStatusURL(t *testing.T) {
	assert.Equal(t, "/api/v1/photos/42/status", StatusURL(42))
}

package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"cinema_booking/apperror"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorHandler(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		status  int
		message string
		details []string
	}{
		{"seat conflict", apperror.SeatConflict([]string{"A1", "A2"}), http.StatusConflict, "Some requested seats are unavailable", []string{"A1", "A2"}},
		{"not found", apperror.NotFound("Booking not found"), http.StatusNotFound, "Booking not found", nil},
		{"database cause is hidden", apperror.Database("lock seats", errors.New("pq: deadlock detected")), http.StatusInternalServerError, "Internal server error", nil},
		{"gateway outage", apperror.Unavailable("open payment session", errors.New("dial tcp: timeout")), http.StatusServiceUnavailable, "Payment service is temporarily unavailable", nil},
		{"fiber error", fiber.ErrUpgradeRequired, http.StatusUpgradeRequired, "Upgrade Required", nil},
		{"plain error", errors.New("boom"), http.StatusInternalServerError, "Internal server error", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
			app.Get("/", func(c *fiber.Ctx) error { return tc.err })

			resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil), -1)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tc.status, resp.StatusCode)

			var body struct {
				Status  string   `json:"status"`
				Message string   `json:"message"`
				Details []string `json:"details"`
			}
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, "error", body.Status)
			assert.Equal(t, tc.message, body.Message)
			assert.Equal(t, tc.details, body.Details)
			assert.NotContains(t, body.Message, "pq:")
		})
	}
}

package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindStatus(t *testing.T) {
	cases := map[Kind]int{
		KindValidation:         http.StatusBadRequest,
		KindNotFound:           http.StatusNotFound,
		KindConflict:           http.StatusConflict,
		KindServiceUnavailable: http.StatusServiceUnavailable,
		KindDatabase:           http.StatusInternalServerError,
		KindInternal:           http.StatusInternalServerError,
		KindForbidden:          http.StatusForbidden,
	}
	for kind, status := range cases {
		assert.Equal(t, status, kind.Status(), kind.String())
	}
}

func TestKindOf_UnwrapsWrappedErrors(t *testing.T) {
	err := fmt.Errorf("reserve: %w", SeatConflict([]string{"A1", "B2"}))

	assert.Equal(t, KindConflict, KindOf(err))
	assert.Equal(t, http.StatusConflict, StatusOf(err))
	assert.Equal(t, []string{"A1", "B2"}, DetailsOf(err))
	assert.True(t, Is(err, KindConflict))
}

func TestKindOf_PlainError(t *testing.T) {
	err := errors.New("boom")
	assert.Equal(t, KindInternal, KindOf(err))
	assert.False(t, Is(nil, KindInternal))
}

func TestMessageOf_HidesInfrastructureCauses(t *testing.T) {
	dbErr := Database("save booking", errors.New("pq: connection refused"))
	assert.Equal(t, "Internal server error", MessageOf(dbErr))
	assert.Contains(t, dbErr.Error(), "connection refused")

	gwErr := Unavailable("create refund", errors.New("dial tcp: timeout"))
	assert.Equal(t, "Payment service is temporarily unavailable", MessageOf(gwErr))

	assert.Equal(t, "Booking not found", MessageOf(NotFound("Booking not found")))
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("cause")
	err := Database("op", cause)
	assert.ErrorIs(t, err, cause)
}

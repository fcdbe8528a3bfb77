package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewLogger(t *testing.T) {
	for _, env := range []string{"development", "production"} {
		l := NewLogger(env)
		require.NotNil(t, l)
		l.Info("booking reserved", zap.Uint("bookingId", 1))
	}
}

func TestNewLogger_InvalidLevelFallsBack(t *testing.T) {
	t.Setenv("LOG_LEVEL", "not-a-level")
	assert.NotNil(t, NewLogger("development"))
}

func TestSetAndGet(t *testing.T) {
	original := Get()
	defer Set(original)

	nop := zap.NewNop()
	Set(nop)
	assert.Same(t, nop, Get())
	Info("hidden")
}

package diag

import (
	"bytes"
	"testing"
	"time"

	"github.com/joeycumines/logiface"
	"github.com/stretchr/testify/require"

	"github.com/olocore/concore/colog"
)

func TestLimiter_AllowsThenSuppressesBurst(t *testing.T) {
	var buf bytes.Buffer
	lg := colog.NewDefault(&buf, logiface.LevelTrace)
	l := NewLimiter(lg, "parkinglot-grow-retry", time.Minute, 2)

	require.True(t, l.Allow("retrying growth"))
	require.True(t, l.Allow("retrying growth"))
	require.False(t, l.Allow("retrying growth"))
}

func TestLimiter_NilLoggerIsSafe(t *testing.T) {
	l := NewLimiter(nil, "cat", time.Minute, 1)
	require.True(t, l.Allow("msg"))
}

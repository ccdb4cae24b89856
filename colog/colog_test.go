package colog

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/joeycumines/logiface"
	"github.com/stretchr/testify/require"
)

func TestLogger_WritesStructuredJSON(t *testing.T) {
	var buf bytes.Buffer
	lg := NewDefault(&buf, logiface.LevelTrace)
	lg.Info("scheduler started", "workers", "4")

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Equal(t, "scheduler started", decoded["msg"])
	require.Equal(t, "4", decoded["workers"])
}

func TestNoOp_NeverWrites(t *testing.T) {
	lg := NoOp()
	lg.Error("should not appear")
}

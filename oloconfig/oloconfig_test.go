package oloconfig

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnvBool_DefaultsWhenUnset(t *testing.T) {
	require.True(t, envBool("OLOCONFIG_TEST_UNSET_BOOL", true))
	require.False(t, envBool("OLOCONFIG_TEST_UNSET_BOOL", false))
}

func TestEnvBool_ParsesSetValue(t *testing.T) {
	t.Setenv("OLOCONFIG_TEST_BOOL", "true")
	require.True(t, envBool("OLOCONFIG_TEST_BOOL", false))
}

func TestEnvFloat_ParsesSetValue(t *testing.T) {
	t.Setenv("OLOCONFIG_TEST_FLOAT", "3.5")
	require.Equal(t, 3.5, envFloat("OLOCONFIG_TEST_FLOAT", 1.0))
}

func TestEnvInt_FallsBackOnGarbage(t *testing.T) {
	t.Setenv("OLOCONFIG_TEST_INT", "not-a-number")
	require.Equal(t, 7, envInt("OLOCONFIG_TEST_INT", 7))
}

func TestFromEnv_IsCachedAcrossCalls(t *testing.T) {
	a := FromEnv()
	b := FromEnv()
	require.Equal(t, a, b)
}

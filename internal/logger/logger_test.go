package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDefaultIsSilentUntilSet(t *testing.T) {
	prev := Get()
	defer Set(prev)

	require.NotNil(t, Get())
	assert.False(t, Get().Core().Enabled(zap.InfoLevel), "default must be a no-op before Set")

	l := New("dev")
	Set(l)
	assert.Same(t, l, Get())
}

func TestNewBuildsPerEnvironment(t *testing.T) {
	require.NotNil(t, New("prod"))
	require.NotNil(t, New("dev"))
	require.NotNil(t, New(""))
}

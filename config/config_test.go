package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("VOTE_VALIDATION", "")
	t.Setenv("REQUIRE_HOST_AUTH", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, VoteValidationPermissive, cfg.Realtime.VoteValidation)
	assert.True(t, cfg.Realtime.RequireHostAuth)
	assert.Equal(t, 256, cfg.Realtime.SendBuffer)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("VOTE_VALIDATION", "STRICT")
	t.Setenv("REQUIRE_HOST_AUTH", "false")
	t.Setenv("WS_SEND_BUFFER", "8")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, VoteValidationStrict, cfg.Realtime.VoteValidation)
	assert.False(t, cfg.Realtime.RequireHostAuth)
	assert.Equal(t, 8, cfg.Realtime.SendBuffer)
}

func TestLoadRejectsUnknownMode(t *testing.T) {
	t.Setenv("VOTE_VALIDATION", "lenient")
	_, err := Load()
	assert.Error(t, err)
}

package main

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitLoggingBuildsCLILogger(t *testing.T) {
	defer func() {
		verbose = false
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	}()

	verbose = false
	require.NoError(t, initLogging(nil, nil))
	assert.Equal(t, zerolog.WarnLevel, log.GetLevel())
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())

	verbose = true
	require.NoError(t, initLogging(nil, nil))
	assert.Equal(t, zerolog.DebugLevel, log.GetLevel())
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())
}

//go:build !integration

package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zamong25/AIS2025-sub001/internal/config"
)

func TestServeCmd_RunE_FailsOnValidation(t *testing.T) {
	// Config validation should fail fast before the server starts.
	oldCfg := cfg
	cfg = &config.Config{}
	defer func() { cfg = oldCfg }()

	serveCmd.SetContext(context.Background())
	defer serveCmd.SetContext(nil)

	err := serveCmd.RunE(serveCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: invalid configuration")
	assert.Contains(t, err.Error(), "server.port must be between 1 and 65535")
}

package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/vsm/pkg/mcp"
)

func TestRun_Version(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), &out, []string{"version"}))
	assert.Contains(t, out.String(), "vsm "+version)
	assert.Equal(t, version, mcp.Version)
}

func TestRun_Help(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), &out, []string{"--help"}))
	for cmd := range canvasCommands {
		assert.Contains(t, out.String(), "  "+cmd)
	}
}

func TestRun_UnknownCommand(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	err := run(context.Background(), &bytes.Buffer{}, []string{"frobnicate"})
	assert.ErrorContains(t, err, `unknown command "frobnicate"`)
}

func TestRun_InvalidSettings(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("VSM_LOG_LEVEL", "loud")
	err := run(context.Background(), &bytes.Buffer{}, []string{"metrics"})
	assert.ErrorContains(t, err, "log_level")
}

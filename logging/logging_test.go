package logging

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsoleLevels(t *testing.T) {
	var console bytes.Buffer
	logger, closer := New(Options{Console: &console})
	defer closer()

	logger.Info("Connected to ElectrumX", "address", "127.0.0.1:50001")
	logger.V(1).Info("Call completed", "method", "server.version")
	logger.Error(errors.New("boom"), "Call failed")

	output := console.String()
	assert.Contains(t, output, "Connected to ElectrumX")
	assert.Contains(t, output, "127.0.0.1:50001")
	assert.NotContains(t, output, "Call completed")
	assert.Contains(t, output, "boom")
}

func TestDebugEnablesVerbose(t *testing.T) {
	var console bytes.Buffer
	logger, closer := New(Options{Console: &console, Debug: true})
	defer closer()

	logger.V(1).Info("Call completed", "method", "server.version")
	assert.Contains(t, console.String(), "Call completed")
}

func TestFileReceivesJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proxy.log")
	var console bytes.Buffer
	logger, closer := New(Options{Console: &console, File: path})

	logger.V(1).Info("Call completed", "method", "blockchain.headers.subscribe")
	require.NoError(t, closer())

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(contents), `"msg":"Call completed"`)
	assert.Contains(t, string(contents), `"method":"blockchain.headers.subscribe"`)
	assert.NotContains(t, console.String(), "Call completed")
}

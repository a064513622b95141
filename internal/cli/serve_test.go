package cli

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServe_InvalidConfig(t *testing.T) {
	path := writeFile(t, t.TempDir(), "lunadb.yaml", "storage:\n  backend: mongo\n")

	_, err := execute(t, "serve", "--config", path)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to load configuration")
}

func TestServe_StopsOnCancel(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "lunadb.yaml",
		"storage:\n  backend: leveldb\n  dsn: "+filepath.Join(dir, "data")+"\n")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	var out string
	go func() {
		var err error
		out, err = executeContext(t, ctx, "serve", "--config", path, "--addr", "127.0.0.1:0")
		done <- err
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
		assert.Contains(t, out, "Serving on 127.0.0.1:0")
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop")
	}
}

package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// execute runs the root command with args and returns its stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return executeContext(t, context.Background(), args...)
}

func executeContext(t *testing.T, ctx context.Context, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const notesScenario = `name: notes
steps:
  - call: putKind
    token: app.A.1
    params: { id: com.example.notes, owner: app.A }
    expect: { returnValue: true }
  - call: put
    token: app.A.1
    params:
      objects: [ { _kind: com.example.notes, text: hi } ]
    expect:
      results: [ { id: X1, rev: 1 } ]
assertions:
  - type: revision
    count: 1
`

const failingScenario = `name: failing
steps:
  - call: put
    token: app.A.1
    params:
      objects: [ { _kind: com.example.missing } ]
    expect: { returnValue: true }
`

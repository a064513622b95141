package service

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lunadb/internal/db"
	"github.com/roach88/lunadb/internal/doc"
	"github.com/roach88/lunadb/internal/ids"
	"github.com/roach88/lunadb/internal/kv"
)

const (
	notes  = "com.example.notes"
	tokenA = "app.A.1"
	tokenB = "app.B.1"
)

func createTestService(t *testing.T) *Service {
	t.Helper()
	backend, err := kv.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := db.Open(context.Background(), kv.NewTree(backend, "", kv.WithLogger(logger)),
		db.WithIDGenerator(ids.NewSequence("X")),
		db.WithLogger(logger),
	)
	require.NoError(t, err)
	return New(store, WithLogger(logger))
}

// invoke runs method with params as token and returns the response.
func invoke(t *testing.T, s *Service, token, method, params string) Response {
	t.Helper()
	return s.Call(context.Background(), &Request{Method: method, Params: []byte(params), Token: token})
}

// assertResponse compares resp to the expected JSON document.
func assertResponse(t *testing.T, want string, resp Response) {
	t.Helper()
	got, err := doc.Marshal(resp)
	require.NoError(t, err)
	assert.JSONEq(t, want, string(got))
}

func mustSucceed(t *testing.T, resp Response) Response {
	t.Helper()
	if !ReturnValue(resp) {
		got, _ := doc.Marshal(resp)
		require.Failf(t, "call failed", "response: %s", got)
	}
	return resp
}

// createNotes registers the notes kind owned by app.A.
func createNotes(t *testing.T, s *Service) {
	t.Helper()
	mustSucceed(t, invoke(t, s, tokenA, "putKind", `{"id":"com.example.notes","owner":"app.A","private":false}`))
}

// recorder collects notifications.
type recorder struct {
	got []Response
}

func (r *recorder) Notify(payload doc.Object) {
	r.got = append(r.got, payload)
}

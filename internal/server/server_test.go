package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lunadb/internal/db"
	"github.com/roach88/lunadb/internal/ids"
	"github.com/roach88/lunadb/internal/kv"
	"github.com/roach88/lunadb/internal/service"
)

type testEnv struct {
	loop *service.Loop
	http *httptest.Server
}

func createTestServer(t *testing.T) *testEnv {
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

	loop := service.NewLoop(service.New(store, service.WithLogger(logger)))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	srv := New(loop, WithLogger(logger), WithTokenGenerator(ids.NewSequence("sub-")))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		cancel()
		<-done
	})
	return &testEnv{loop: loop, http: ts}
}

func (e *testEnv) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.http.URL, "http") + "/ws"
	if token != "" {
		url += "?token=" + token
	}
	ws, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { ws.Close() })
	return ws
}

// pending reads the number of pending watches on the loop goroutine.
func (e *testEnv) pending() int {
	out := make(chan int, 1)
	if !e.loop.Do(func(_ context.Context, s *service.Service) {
		out <- s.Store().PendingWatches()
	}) {
		return -1
	}
	return <-out
}

type frame struct {
	ID           json.RawMessage `json:"id"`
	Subscription bool            `json:"subscription"`
	Response     json.RawMessage `json:"response"`
}

func send(t *testing.T, ws *websocket.Conn, raw string) {
	t.Helper()
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(raw)))
}

func receive(t *testing.T, ws *websocket.Conn) frame {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := ws.ReadMessage()
	require.NoError(t, err)
	var f frame
	require.NoError(t, json.Unmarshal(msg, &f))
	return f
}

// roundTrip sends raw and returns the response of the next frame.
func roundTrip(t *testing.T, ws *websocket.Conn, raw string) string {
	t.Helper()
	send(t, ws, raw)
	return string(receive(t, ws).Response)
}

func TestHealthz(t *testing.T) {
	env := createTestServer(t)

	resp, err := http.Get(env.http.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))
}

func TestServer_Calls(t *testing.T) {
	env := createTestServer(t)
	ws := env.dial(t, "app.A.1")

	assert.JSONEq(t, `{"returnValue":true}`, roundTrip(t, ws,
		`{"id":1,"uri":"luna://com.webos.service.db/putKind","params":{"id":"com.example.notes","owner":"app.A"}}`))
	assert.JSONEq(t, `{"returnValue":true,"results":[{"id":"X1","rev":1}]}`, roundTrip(t, ws,
		`{"id":2,"method":"put","params":"{\"objects\":[{\"_kind\":\"com.example.notes\",\"text\":\"hi\"}]}"}`))

	send(t, ws, `{"id":"get-1","uri":"luna://com.webos.service.db/get","params":{"ids":["X1"]}}`)
	f := receive(t, ws)
	assert.JSONEq(t, `"get-1"`, string(f.ID))
	assert.False(t, f.Subscription)
	assert.JSONEq(t, `{"returnValue":true,"results":[{"_id":"X1","_rev":1,"_kind":"com.example.notes","text":"hi"}]}`, string(f.Response))

	// A frame token overrides the connection token
	assert.JSONEq(t, `{"returnValue":false,"errorCode":-3963,"errorText":"db: permission denied"}`, roundTrip(t, ws,
		`{"id":3,"method":"put","token":"app.B.1","params":{"objects":[{"_kind":"com.example.notes"}]}}`))
}

func TestServer_BadFrames(t *testing.T) {
	env := createTestServer(t)
	ws := env.dial(t, "app.A.1")

	assert.JSONEq(t, `{"returnValue":false,"errorCode":"ERROR_99","errorText":"JSON format error."}`,
		roundTrip(t, ws, `not json`))
	assert.JSONEq(t, `{"returnValue":false,"errorCode":"ERROR_99","errorText":"JSON format error."}`,
		roundTrip(t, ws, `{"id":1,"method":"get","params":"{broken"}`))
	assert.JSONEq(t, `{"returnValue":false,"errorCode":-1,"errorText":"Service does not exist: com.other.service."}`,
		roundTrip(t, ws, `{"id":2,"uri":"luna://com.other.service/get","params":{}}`))
	assert.JSONEq(t, `{"returnValue":false,"errorCode":-1,"errorText":"Unknown method \"drop\" for category \"/\""}`,
		roundTrip(t, ws, `{"id":3,"uri":"luna://com.webos.service.db/drop","params":{}}`))
}

func TestServer_WatchNotification(t *testing.T) {
	env := createTestServer(t)
	watcher := env.dial(t, "app.A.1")
	writer := env.dial(t, "app.A.2")

	assert.JSONEq(t, `{"returnValue":true}`, roundTrip(t, writer,
		`{"id":1,"method":"putKind","params":{"id":"com.example.notes","owner":"app.A"}}`))
	assert.JSONEq(t, `{"returnValue":true}`, roundTrip(t, watcher,
		`{"id":7,"method":"watch","params":{"subscribe":true,"query":{"from":"com.example.notes"}}}`))
	assert.Equal(t, 1, env.pending())

	assert.JSONEq(t, `{"returnValue":true,"results":[{"id":"X1","rev":1}]}`, roundTrip(t, writer,
		`{"id":2,"method":"put","params":{"objects":[{"_kind":"com.example.notes"}]}}`))

	f := receive(t, watcher)
	assert.JSONEq(t, `7`, string(f.ID))
	assert.True(t, f.Subscription)
	assert.JSONEq(t, `{"returnValue":true,"subscribe":true,"fired":true}`, string(f.Response))
	assert.Equal(t, 0, env.pending())
}

func TestServer_CancelByFrameID(t *testing.T) {
	env := createTestServer(t)
	ws := env.dial(t, "app.A.1")

	roundTrip(t, ws, `{"id":1,"method":"putKind","params":{"id":"com.example.notes","owner":"app.A"}}`)
	roundTrip(t, ws, `{"id":7,"method":"watch","params":{"subscribe":true,"query":{"from":"com.example.notes"}}}`)
	assert.Equal(t, 1, env.pending())

	assert.JSONEq(t, `{"returnValue":true}`, roundTrip(t, ws, `{"id":7,"cancel":true}`))
	assert.Equal(t, 0, env.pending())

	assert.JSONEq(t, `{"returnValue":true}`, roundTrip(t, ws, `{"id":99,"cancel":true}`))
}

func TestServer_CloseCancelsSubscriptions(t *testing.T) {
	env := createTestServer(t)
	ws := env.dial(t, "app.A.1")

	roundTrip(t, ws, `{"id":1,"method":"putKind","params":{"id":"com.example.notes","owner":"app.A"}}`)
	roundTrip(t, ws, `{"id":2,"method":"watch","params":{"subscribe":true,"query":{"from":"com.example.notes"}}}`)
	roundTrip(t, ws, `{"id":3,"method":"watch","params":{"subscribe":true,"query":{"from":"com.example.notes","where":[{"prop":"x","op":"=","val":1}]}}}`)
	assert.Equal(t, 2, env.pending())

	require.NoError(t, ws.Close())
	assert.Eventually(t, func() bool { return env.pending() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestServer_BatchWatchesShareFrame(t *testing.T) {
	env := createTestServer(t)
	ws := env.dial(t, "app.A.1")

	roundTrip(t, ws, `{"id":1,"method":"putKind","params":{"id":"com.example.notes","owner":"app.A"}}`)
	assert.JSONEq(t, `{"returnValue":true,"responses":[{"returnValue":true},{"returnValue":true}]}`, roundTrip(t, ws,
		`{"id":5,"method":"batch","params":{"operations":[
			{"method":"watch","params":{"subscribe":true,"query":{"from":"com.example.notes","where":[{"prop":"text","op":"=","val":"a"}]}}},
			{"method":"watch","params":{"subscribe":true,"query":{"from":"com.example.notes","where":[{"prop":"text","op":"=","val":"b"}]}}}
		]}}`))
	assert.Equal(t, 2, env.pending())

	send(t, ws, `{"id":2,"method":"put","params":{"objects":[{"_kind":"com.example.notes","text":"a"}]}}`)
	put := receive(t, ws)
	assert.JSONEq(t, `2`, string(put.ID))
	notify := receive(t, ws)
	assert.JSONEq(t, `5`, string(notify.ID))
	assert.True(t, notify.Subscription)
	assert.Equal(t, 1, env.pending())

	assert.JSONEq(t, `{"returnValue":true}`, roundTrip(t, ws, `{"id":5,"cancel":true}`))
	assert.Equal(t, 0, env.pending())
}

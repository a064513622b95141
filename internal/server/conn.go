package server

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roach88/lunadb/internal/doc"
	"github.com/roach88/lunadb/internal/service"
)

// conn is one websocket client.
//
// The read loop runs on the HTTP handler goroutine and owns subs. Replies
// and notifications are pushed from the service loop and written by
// writeLoop.
type conn struct {
	srv   *Server
	ws    *websocket.Conn
	token string

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	// subs maps a frame id to the subscription token issued for it.
	subs map[string]string
}

func newConn(srv *Server, ws *websocket.Conn, token string) *conn {
	return &conn{
		srv:   srv,
		ws:    ws,
		token: token,
		send:  make(chan []byte, sendBuffer),
		done:  make(chan struct{}),
		subs:  make(map[string]string),
	}
}

func (c *conn) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *conn) readLoop() {
	defer c.cancelSubscriptions()
	defer c.close()

	c.ws.SetReadLimit(maxFrameSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.srv.logger.Debug("read failed", "error", err)
			}
			return
		}
		c.handle(msg)
	}
}

func (c *conn) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer c.ws.Close()

	for {
		select {
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		case <-c.done:
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

// push queues a frame for writing. A client too slow to drain its buffer
// is disconnected.
func (c *conn) push(f outFrame) {
	msg, err := json.Marshal(f)
	if err != nil {
		c.srv.logger.Error("encode frame", "error", err)
		return
	}
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.send <- msg:
	case <-c.done:
	default:
		c.srv.logger.Warn("send buffer full, closing connection")
		c.close()
	}
}

func (c *conn) reply(id json.RawMessage, resp service.Response) {
	c.push(outFrame{ID: id, Response: resp})
}

// notifier delivers watch notifications for one frame.
type notifier struct {
	c  *conn
	id json.RawMessage
}

func (n *notifier) Notify(payload doc.Object) {
	n.c.push(outFrame{ID: n.id, Subscription: true, Response: payload})
}

// opensSubscription reports whether method can register a watch.
func opensSubscription(method string) bool {
	return method == service.MethodWatch.String() || method == service.MethodBatch.String()
}

func (c *conn) handle(msg []byte) {
	var f inFrame
	if err := json.Unmarshal(msg, &f); err != nil {
		c.reply(nil, service.JSONFormatError())
		return
	}

	category, method := f.Category, f.Method
	if f.URI != "" {
		t, err := SplitURI(f.URI)
		if err != nil || t.Service != c.srv.serviceName {
			svc := t.Service
			if err != nil {
				svc = f.URI
			}
			c.reply(f.ID, (&service.Error{
				Code: service.CodeUnknownMethod,
				Text: fmt.Sprintf("Service does not exist: %s.", svc),
			}).Response())
			return
		}
		category, method = t.Category, t.Method
	}

	params, err := f.params()
	if err != nil {
		c.reply(f.ID, service.JSONFormatError())
		return
	}

	token := f.Token
	if token == "" {
		token = c.token
	}
	req := &service.Request{
		Category: category,
		Method:   method,
		Params:   params,
		Token:    token,
	}

	key := f.frameKey()
	switch {
	case f.Cancel:
		req.Cancel = true
		req.Subscription = f.Subscription
		if tok, ok := c.subs[key]; ok {
			req.Subscription = tok
			delete(c.subs, key)
		}
		if req.Subscription == "" {
			// The app token may key another connection's watch
			c.reply(f.ID, service.Response{"returnValue": doc.Bool(true)})
			return
		}
	case opensSubscription(method):
		sub := f.Subscription
		if sub == "" {
			sub = c.srv.tokens.Generate()
		}
		c.subs[key] = sub
		req.Subscription = sub
		req.Subscriber = &notifier{c: c, id: f.ID}
	}

	id := f.ID
	if !c.srv.loop.Submit(req, func(resp service.Response) { c.reply(id, resp) }) {
		c.srv.logger.Warn("service loop closed, dropping connection")
		c.close()
	}
}

// cancelSubscriptions ends every watch opened on the connection.
func (c *conn) cancelSubscriptions() {
	if len(c.subs) == 0 {
		return
	}
	tokens := make([]string, 0, len(c.subs))
	for _, tok := range c.subs {
		tokens = append(tokens, tok)
	}
	c.subs = nil

	c.srv.loop.Do(func(_ context.Context, s *service.Service) {
		for _, tok := range tokens {
			s.Cancel(tok)
		}
	})
}

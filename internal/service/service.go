package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/roach88/lunadb/internal/db"
	"github.com/roach88/lunadb/internal/doc"
	"github.com/roach88/lunadb/internal/identity"
)

// Response is a call result. It always carries returnValue; failures add
// errorCode and errorText.
type Response = doc.Object

// Request is one call as delivered by a transport.
type Request struct {
	// Category is the path between the service name and the method.
	// Every method lives in the root category.
	Category string
	Method   string
	// Params is the raw JSON params object.
	Params []byte
	// Token identifies the calling application.
	Token string
	// Subscription keys the watches registered by this call, and the
	// watches a cancel applies to. Token is used when it is empty.
	Subscription string
	// Cancel ends the subscription instead of running Method.
	Cancel bool
	// Subscriber receives the notification of a watch that fires later.
	Subscriber db.Subscriber
}

func (r *Request) subscriptionToken() string {
	if r.Subscription != "" {
		return r.Subscription
	}
	return r.Token
}

// call is a request being dispatched.
type call struct {
	req    *Request
	method Method
	params doc.Object
	caller string
}

// Service dispatches calls to a db.Store.
type Service struct {
	store    *db.Store
	identity identity.Extractor
	logger   *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithIdentity sets how request tokens map to application ids.
// The default is identity.DottedToken.
func WithIdentity(x identity.Extractor) Option {
	return func(s *Service) {
		s.identity = x
	}
}

// WithLogger sets the logger used for infrastructure failures.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

// New creates a Service over store.
func New(store *db.Store, opts ...Option) *Service {
	s := &Service{
		store:    store,
		identity: identity.DottedToken{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store returns the underlying store.
func (s *Service) Store() *db.Store {
	return s.store
}

// Handle runs one request and returns its response. Notifications of
// watches fired by the request stay queued until Flush.
func (s *Service) Handle(ctx context.Context, req *Request) Response {
	params, err := doc.ParseObject(req.Params)
	if err != nil {
		return errJSON.Response()
	}

	if req.Cancel {
		s.Cancel(req.subscriptionToken())
		return success(nil)
	}

	if strings.Trim(req.Category, "/") != "" {
		return errUnknownMethod(req.Category, req.Method).Response()
	}
	m, ok := ParseMethod(req.Method)
	if !ok {
		return errUnknownMethod(req.Category, req.Method).Response()
	}
	return s.dispatch(ctx, &call{req: req, method: m, params: params})
}

func (s *Service) dispatch(ctx context.Context, c *call) Response {
	info := methods[c.method]
	if !info.anonymous {
		appID, err := s.identity.AppID(c.req.Token)
		if err != nil {
			s.logger.Debug("token rejected", "method", info.name, "error", err)
			return errPermissionDenied.Response()
		}
		c.caller = appID
	}
	return info.handle(s, ctx, c)
}

// Cancel ends the pending watches registered under token. Unknown and
// already fired tokens are ignored.
func (s *Service) Cancel(token string) bool {
	if !s.store.CancelWatch(token) {
		return false
	}
	s.logger.Debug("watch cancelled", "token", token)
	return true
}

// Call runs req and then delivers pending notifications.
func (s *Service) Call(ctx context.Context, req *Request) Response {
	resp := s.Handle(ctx, req)
	s.Flush()
	return resp
}

// Flush delivers a notification to the subscriber of every watch fired
// since the last Flush, in firing order. It returns how many fired.
func (s *Service) Flush() int {
	fired := s.store.DrainFired()
	for _, e := range fired {
		if e.Subscriber == nil {
			continue
		}
		e.Subscriber.Notify(Response{
			"returnValue": doc.Bool(true),
			"subscribe":   doc.Bool(true),
			"fired":       doc.Bool(true),
		})
	}
	return len(fired)
}

// RemoveCaller deletes the private kinds owned by appID together with
// their documents and cancels its pending watches.
func (s *Service) RemoveCaller(ctx context.Context, appID string) ([]string, error) {
	removed, err := s.store.RemoveCaller(ctx, appID)
	if err != nil {
		s.logger.Error("remove caller failed", "caller", appID, "error", err)
		return removed, err
	}
	s.logger.Info("caller removed", "caller", appID, "kinds", removed)
	return removed, nil
}

// success marks payload as a successful response.
func success(payload doc.Object) Response {
	if payload == nil {
		payload = doc.Object{}
	}
	payload["returnValue"] = doc.Bool(true)
	return payload
}

// failure logs an infrastructure error and hides it behind the
// unknown-error response.
func (s *Service) failure(c *call, err error) Response {
	s.logger.Error("call failed", "method", c.method.String(), "caller", c.caller, "error", err)
	return errUnknown.Response()
}

// ReturnValue reports whether resp is a successful response.
func ReturnValue(resp Response) bool {
	b, _ := resp["returnValue"].(doc.Bool)
	return bool(b)
}

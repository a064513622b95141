package server

import (
	"fmt"
	"strings"
)

// DefaultServiceName is the service the server answers for.
const DefaultServiceName = "com.webos.service.db"

// Target is a parsed luna:// address.
type Target struct {
	Service  string
	Category string
	Method   string
}

// SplitURI splits "luna://<service>/<category>/<method>" into its parts.
// A single segment after the service is the method of the root category.
// Segments past the method are ignored.
func SplitURI(uri string) (Target, error) {
	rest, ok := strings.CutPrefix(uri, "luna://")
	if !ok {
		if strings.Contains(uri, "://") {
			return Target{}, fmt.Errorf("unsupported scheme in %q", uri)
		}
		rest = strings.TrimPrefix(uri, "/")
	}

	svc, path, _ := strings.Cut(rest, "/")
	if svc == "" {
		return Target{}, fmt.Errorf("no service in %q", uri)
	}

	segments := strings.Split(path, "/")
	var t Target
	t.Service = svc
	switch {
	case len(segments) == 1:
		t.Method = segments[0]
	default:
		t.Category, t.Method = segments[0], segments[1]
		if t.Method == "" {
			t.Category, t.Method = "", t.Category
		}
	}
	return t, nil
}

package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitURI(t *testing.T) {
	tests := []struct {
		uri  string
		want Target
	}{
		{"luna://com.webos.service.db/put", Target{Service: "com.webos.service.db", Method: "put"}},
		{"luna://com.webos.service.db/internal/put", Target{Service: "com.webos.service.db", Category: "internal", Method: "put"}},
		{"luna://com.webos.service.db/put/", Target{Service: "com.webos.service.db", Method: "put"}},
		{"luna://com.webos.service.db", Target{Service: "com.webos.service.db"}},
		{"luna://com.webos.service.db/a/b/c", Target{Service: "com.webos.service.db", Category: "a", Method: "b"}},
		{"com.webos.service.db/find", Target{Service: "com.webos.service.db", Method: "find"}},
	}
	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			got, err := SplitURI(tt.uri)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := SplitURI("http://com.webos.service.db/put")
	assert.Error(t, err)
	_, err = SplitURI("luna:///put")
	assert.Error(t, err)
}

func TestFrameParams(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"object", `{"ids":["X1"]}`, `{"ids":["X1"]}`},
		{"string", `"{\"ids\":[\"X1\"]}"`, `{"ids":["X1"]}`},
		{"absent", ``, `{}`},
		{"null", `null`, `{}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := inFrame{Params: []byte(tt.raw)}
			got, err := f.params()
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}

	f := inFrame{Params: []byte(`"unterminated`)}
	_, err := f.params()
	assert.Error(t, err)
}

package identity

import (
	"testing"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDottedToken(t *testing.T) {
	tests := []struct {
		token string
		want  string
	}{
		{"com.example.app.1234", "com.example.app"},
		{"app.A", "app"},
		{"noDots", "noDots"},
		{"trailing.", "trailing"},
	}

	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			got, err := DottedToken{}.AppID(tt.token)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := DottedToken{}.AppID("")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWT_RoundTrip(t *testing.T) {
	j := NewJWT("s3cret")

	token, err := j.Sign("com.example.notes", time.Minute)
	require.NoError(t, err)

	app, err := j.AppID(token)
	require.NoError(t, err)
	assert.Equal(t, "com.example.notes", app)
}

func TestJWT_SubjectFallback(t *testing.T) {
	secret := []byte("s3cret")
	token, err := gojwt.NewWithClaims(gojwt.SigningMethodHS256, gojwt.MapClaims{
		"sub": "app.B",
		"exp": time.Now().Add(time.Minute).Unix(),
	}).SignedString(secret)
	require.NoError(t, err)

	app, err := NewJWT(string(secret)).AppID(token)
	require.NoError(t, err)
	assert.Equal(t, "app.B", app)
}

func TestJWT_Rejects(t *testing.T) {
	j := NewJWT("s3cret")

	expired, err := j.Sign("app.A", -time.Minute)
	require.NoError(t, err)

	wrongKey, err := NewJWT("other").Sign("app.A", time.Minute)
	require.NoError(t, err)

	noExp, err := gojwt.NewWithClaims(gojwt.SigningMethodHS256, gojwt.MapClaims{
		"app_id": "app.A",
	}).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	noApp, err := gojwt.NewWithClaims(gojwt.SigningMethodHS256, gojwt.MapClaims{
		"exp": time.Now().Add(time.Minute).Unix(),
	}).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	for name, token := range map[string]string{
		"expired":   expired,
		"wrong key": wrongKey,
		"no exp":    noExp,
		"no app id": noApp,
		"garbage":   "not.a.jwt",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := j.AppID(token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

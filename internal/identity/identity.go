// Package identity maps an opaque request token to the id of the calling
// application.
package identity

import (
	"errors"
	"fmt"
	"strings"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned when a token cannot be attributed to a caller.
var ErrInvalidToken = errors.New("invalid token")

// Extractor resolves the application id behind a request token.
type Extractor interface {
	AppID(token string) (string, error)
}

// DottedToken treats a token as "<appId>.<suffix>": the app id is
// everything before the last dot. A token without a dot is the app id.
type DottedToken struct{}

// AppID implements Extractor.
func (DottedToken) AppID(token string) (string, error) {
	if token == "" {
		return "", fmt.Errorf("%w: empty token", ErrInvalidToken)
	}
	i := strings.LastIndexByte(token, '.')
	if i < 0 {
		return token, nil
	}
	return token[:i], nil
}

// Claim names read by JWT.
const (
	ClaimAppID   = "app_id"
	ClaimSubject = "sub"
)

// JWT verifies HS256 tokens and reads the app id from the app_id claim,
// falling back to sub.
type JWT struct {
	secret []byte
	parser *gojwt.Parser
}

// NewJWT returns a JWT extractor that verifies with secret.
func NewJWT(secret string) *JWT {
	return &JWT{
		secret: []byte(secret),
		parser: gojwt.NewParser(
			gojwt.WithValidMethods([]string{gojwt.SigningMethodHS256.Alg()}),
			gojwt.WithExpirationRequired(),
		),
	}
}

// AppID implements Extractor.
func (j *JWT) AppID(token string) (string, error) {
	parsed, err := j.parser.Parse(token, func(*gojwt.Token) (any, error) {
		return j.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(gojwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("%w: unexpected claims type", ErrInvalidToken)
	}
	for _, name := range []string{ClaimAppID, ClaimSubject} {
		if s, ok := claims[name].(string); ok && s != "" {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: no %s or %s claim", ErrInvalidToken, ClaimAppID, ClaimSubject)
}

// Sign issues an HS256 token for appID valid for ttl.
func (j *JWT) Sign(appID string, ttl time.Duration) (string, error) {
	now := time.Now()
	token := gojwt.NewWithClaims(gojwt.SigningMethodHS256, gojwt.MapClaims{
		ClaimAppID: appID,
		"iat":      now.Unix(),
		"exp":      now.Add(ttl).Unix(),
	})
	signed, err := token.SignedString(j.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

package relay

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrUnauthorized is returned when a token is required but missing or invalid.
var ErrUnauthorized = errors.New("unauthorized")

// Identifier resolves the participant id of an incoming connection.
type Identifier struct {
	secret []byte
}

// NewIdentifier returns an identifier. With an empty secret tokens are not
// checked and the userId query parameter is trusted.
func NewIdentifier(secret string) *Identifier {
	return &Identifier{secret: []byte(secret)}
}

// Identify returns the participant id for r: the token subject when a secret
// is configured, otherwise the userId query parameter or a fresh uuid.
func (i *Identifier) Identify(r *http.Request) (string, error) {
	if len(i.secret) == 0 {
		if id := r.URL.Query().Get("userId"); id != "" {
			return id, nil
		}
		return uuid.NewString(), nil
	}

	raw := bearerToken(r)
	if raw == "" {
		return "", fmt.Errorf("%w: missing token", ErrUnauthorized)
	}
	token, err := jwt.Parse(raw, func(*jwt.Token) (interface{}, error) {
		return i.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", fmt.Errorf("%w: token has no subject", ErrUnauthorized)
	}
	return sub, nil
}

// RequireToken rejects requests without a valid token with 401. Without a
// secret every request passes.
func (i *Identifier) RequireToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		if len(i.secret) == 0 {
			c.Next()
			return
		}
		sub, err := i.Identify(c.Request)
		if err != nil {
			writeError(c, http.StatusUnauthorized, err)
			return
		}
		c.Set(subjectKey, sub)
		c.Next()
	}
}

const subjectKey = "subject"

// bearerToken reads the Authorization header, falling back to the token
// query parameter for clients that cannot set headers on upgrade.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return r.URL.Query().Get("token")
}

// SignToken issues an HS256 token for subject. Used by the CLI and tests.
func SignToken(secret, subject string) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: subject}).SignedString([]byte(secret))
}

// Package session carries the signed-in user's identity and credentials.
// A Session is created once and injected into the snapshot client and the
// engine; nothing reads identity from ambient storage.
package session

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Session identifies the local user.
type Session struct {
	UserID      int64
	DisplayName string
	Token       string
}

// New builds a session from a known user id and optional bearer token.
func New(userID int64, token string) *Session {
	return &Session{UserID: userID, Token: strings.TrimSpace(token)}
}

// FromToken derives the user id from the token's claims. The signature is not
// verified here; the backend does that on every request.
func FromToken(token string) (*Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("empty token")
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	var id int64
	var err error
	switch {
	case claims["user_id"] != nil:
		id, err = claimInt(claims["user_id"])
	case claims["sub"] != nil:
		id, err = claimInt(claims["sub"])
	default:
		return nil, fmt.Errorf("token has no user_id or sub claim")
	}
	if err != nil {
		return nil, err
	}

	s := &Session{UserID: id, Token: token}
	if name, ok := claims["name"].(string); ok {
		s.DisplayName = name
	}
	return s, nil
}

func claimInt(v interface{}) (int64, error) {
	switch t := v.(type) {
	case float64:
		return int64(t), nil
	case string:
		id, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("user claim %q is not numeric", t)
		}
		return id, nil
	}
	return 0, fmt.Errorf("unsupported user claim type %T", v)
}

// Known reports whether a user id is available; the directory loop only runs then.
func (s *Session) Known() bool {
	return s != nil && s.UserID != 0
}

// Authorize attaches the bearer token to an outgoing request.
func (s *Session) Authorize(req *http.Request) {
	if s == nil || s.Token == "" {
		return
	}
	req.Header.Set("Authorization", "Bearer "+s.Token)
}

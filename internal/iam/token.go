package iam

import (
	"sync"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// sharedTokenSource caches a bearer token for all goroutines using the client.
// Reads of a valid token never block each other; when the token expires
// exactly one refresh is in flight and concurrent callers wait for its result.
type sharedTokenSource struct {
	fetch func() (*oauth2.Token, error)

	mu  sync.RWMutex
	tok *oauth2.Token

	sf singleflight.Group
}

var _ oauth2.TokenSource = (*sharedTokenSource)(nil)

func newSharedTokenSource(fetch func() (*oauth2.Token, error)) *sharedTokenSource {
	return &sharedTokenSource{fetch: fetch}
}

func (s *sharedTokenSource) current() *oauth2.Token {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tok
}

func (s *sharedTokenSource) Token() (*oauth2.Token, error) {
	if tok := s.current(); tok.Valid() {
		return tok, nil
	}

	v, err, _ := s.sf.Do("token", func() (interface{}, error) {
		if tok := s.current(); tok.Valid() {
			return tok, nil
		}

		tok, err := s.fetch()
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		s.tok = tok
		s.mu.Unlock()
		return tok, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*oauth2.Token), nil
}

// tokenFields describes an access token for debug logging without exposing it.
// Tokens that are not JWTs only report their expiry.
func tokenFields(tok *oauth2.Token) []zap.Field {
	fields := []zap.Field{zap.Time("expiry", tok.Expiry)}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tok.AccessToken, claims); err != nil {
		return fields
	}

	if sub, err := claims.GetSubject(); err == nil && sub != "" {
		fields = append(fields, zap.String("subject", sub))
	}
	if iss, err := claims.GetIssuer(); err == nil && iss != "" {
		fields = append(fields, zap.String("issuer", iss))
	}
	return fields
}

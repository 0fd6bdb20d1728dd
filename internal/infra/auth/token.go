package auth

import (
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"quizpack/internal/app"
)

var _ app.Authenticator = (*TokenProvider)(nil)

// TokenProvider holds the bearer token used against the remote pack endpoint.
//
// The token is never verified locally; the remote endpoint does that. When it parses as a
// JWT its exp claim is honoured so an expired login stops exposing api packs without a
// round trip. Opaque tokens count as authenticated until cleared.
type TokenProvider struct {
	mu     sync.RWMutex
	token  string
	now    func() time.Time
	parser *jwt.Parser
}

func NewTokenProvider(token string) *TokenProvider {
	return NewTokenProviderWithClock(token, time.Now)
}

// NewTokenProviderWithClock is used by tests to pin the expiry check.
func NewTokenProviderWithClock(token string, now func() time.Time) *TokenProvider {
	return &TokenProvider{
		token:  strings.TrimSpace(token),
		now:    now,
		parser: jwt.NewParser(),
	}
}

func (p *TokenProvider) IsAuthenticated() bool {
	p.mu.RLock()
	token := p.token
	p.mu.RUnlock()

	if token == "" {
		return false
	}
	if strings.Count(token, ".") != 2 {
		return true
	}
	claims := jwt.MapClaims{}
	if _, _, err := p.parser.ParseUnverified(token, claims); err != nil {
		return true
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return true
	}
	return p.now().Before(exp.Time)
}

func (p *TokenProvider) Credential() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.token
}

func (p *TokenProvider) SetToken(token string) {
	p.mu.Lock()
	p.token = strings.TrimSpace(token)
	p.mu.Unlock()
}

// Clear logs out. Cached api packs stay in storage and are deferred until the next login.
func (p *TokenProvider) Clear() {
	p.SetToken("")
}

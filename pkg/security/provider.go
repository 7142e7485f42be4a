package security

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"
)

// TokenUser is the identity behind a bearer token.
type TokenUser struct {
	UserID int
	Roles  string
}

// StaticTokens authenticates bearer tokens against a fixed table. Tokens that
// carry a JWT payload are also rejected once their exp claim has passed.
type StaticTokens struct {
	mu     sync.RWMutex
	tokens map[string]TokenUser
	now    func() time.Time
}

func NewStaticTokens(tokens map[string]TokenUser) *StaticTokens {
	s := &StaticTokens{tokens: make(map[string]TokenUser, len(tokens)), now: time.Now}
	for token, user := range tokens {
		s.tokens[token] = user
	}
	return s
}

func (s *StaticTokens) Add(token string, user TokenUser) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token] = user
}

func (s *StaticTokens) Revoke(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, token)
}

// Replace swaps the whole token table, e.g. after a config reload.
func (s *StaticTokens) Replace(tokens map[string]TokenUser) {
	table := make(map[string]TokenUser, len(tokens))
	for token, user := range tokens {
		table[token] = user
	}
	s.mu.Lock()
	s.tokens = table
	s.mu.Unlock()
}

// Authenticate is an AuthenticateFunc.
func (s *StaticTokens) Authenticate(r *http.Request) (int, string, error) {
	token, err := BearerToken(r)
	if err != nil {
		return 0, "", err
	}

	s.mu.RLock()
	user, ok := s.tokens[token]
	s.mu.RUnlock()
	if !ok {
		return 0, "", fmt.Errorf("unknown token")
	}
	if strings.Count(token, ".") == 2 && TokenExpired(token, s.now()) {
		return 0, "", fmt.Errorf("token expired")
	}
	return user.UserID, user.Roles, nil
}

// TokenExpired reports whether the exp claim of a JWT is before now. Tokens
// whose payload cannot be decoded count as expired.
func TokenExpired(token string, now time.Time) bool {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return true
	}
	payload, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(parts[1], "="))
	if err != nil || !gjson.ValidBytes(payload) {
		return true
	}
	exp := gjson.GetBytes(payload, "exp")
	if !exp.Exists() {
		return true
	}
	return exp.Int() < now.Unix()
}

// maskString keeps the first keepStart and the last keepEnd characters and stars the rest.
func maskString(value string, keepStart, keepEnd int) string {
	runes := []rune(value)
	if keepStart+keepEnd >= len(runes) {
		return strings.Repeat("*", len(runes))
	}
	masked := make([]rune, len(runes))
	for i, r := range runes {
		if i < keepStart || i >= len(runes)-keepEnd {
			masked[i] = r
			continue
		}
		masked[i] = '*'
	}
	return string(masked)
}

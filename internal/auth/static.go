package auth

import (
	"context"
	"crypto/subtle"
	"strings"
)

// StaticTokens accepts a fixed set of bearer tokens. Used for demo mode and
// local development where no Supabase project is available.
type StaticTokens struct {
	users map[string]string
}

// ParseStaticTokens reads "token=user_id" pairs; malformed entries are
// skipped.
func ParseStaticTokens(pairs []string) *StaticTokens {
	st := &StaticTokens{users: make(map[string]string, len(pairs))}
	for _, pair := range pairs {
		token, user, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || token == "" || user == "" {
			continue
		}
		st.users[token] = user
	}
	return st
}

func (s *StaticTokens) VerifyAccessToken(_ context.Context, accessToken string) (User, error) {
	for token, user := range s.users {
		if subtle.ConstantTimeCompare([]byte(token), []byte(accessToken)) == 1 {
			return User{ID: user}, nil
		}
	}
	return User{}, ErrInvalidToken
}

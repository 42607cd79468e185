package web

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// authorizeRequest checks the shared access token. A server started without
// a token accepts every request; otherwise the token may arrive as a Bearer
// header or, for EventSource clients that cannot set headers, as a ?token
// query parameter. Comparison is constant time either way.
func (s *Server) authorizeRequest(r *http.Request) bool {
	want := s.cfg.Token
	if want == "" {
		return true
	}
	for _, got := range presentedTokens(r) {
		if subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1 {
			return true
		}
	}
	return false
}

// presentedTokens collects the credential candidates a request carries, in
// query-then-header order.
func presentedTokens(r *http.Request) []string {
	var tokens []string
	if q := strings.TrimSpace(r.URL.Query().Get("token")); q != "" {
		tokens = append(tokens, q)
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if rest, ok := strings.CutPrefix(header, "Bearer "); ok {
		if tok := strings.TrimSpace(rest); tok != "" {
			tokens = append(tokens, tok)
		}
	}
	return tokens
}

package http

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"

	"ledger/internal/ledger"
)

// filterFromQuery reads search, category and type from the query string.
func filterFromQuery(r *http.Request) ledger.Filter {
	q := r.URL.Query()
	return ledger.Filter{
		Search:   sanitizeInput(q.Get("search")),
		Category: sanitizeInput(q.Get("category")),
		Type:     strings.ToLower(sanitizeInput(q.Get("type"))),
	}
}

// wantsHTML reports whether the caller is a browser form rather than an API client.
func wantsHTML(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// generateRequestID creates a unique request ID for tracing.
func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

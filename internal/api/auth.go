package api

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-rules/internal/auth"
)

const (
	// ticketTTL is how long a WebSocket ticket may wait to be redeemed.
	ticketTTL = 60 * time.Second

	// maxTicketsPerSubject bounds unredeemed tickets held for one caller.
	maxTicketsPerSubject = 16
)

type ticketEntry struct {
	subject   string
	role      auth.Role
	expiresAt time.Time
}

// ticketStore exchanges a bearer token for a short-lived, single-use
// WebSocket ticket so the JWT never appears in a URL.
type ticketStore struct {
	mu      sync.Mutex
	now     func() time.Time
	tickets map[string]ticketEntry
}

func newTicketStore() *ticketStore {
	return &ticketStore{now: time.Now, tickets: make(map[string]ticketEntry)}
}

// issue mints a ticket for the caller. When the caller already holds the
// maximum, the ticket closest to expiry is evicted.
func (t *ticketStore) issue(subject string, role auth.Role) (string, time.Time) {
	raw := make([]byte, 32)
	//nolint:errcheck // crypto/rand.Read never fails on supported platforms
	rand.Read(raw)
	ticket := base64.RawURLEncoding.EncodeToString(raw)

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	var (
		held   int
		oldest string
	)
	for k, e := range t.tickets {
		if e.subject != subject {
			continue
		}
		held++
		if oldest == "" || e.expiresAt.Before(t.tickets[oldest].expiresAt) {
			oldest = k
		}
	}
	if held >= maxTicketsPerSubject {
		delete(t.tickets, oldest)
	}

	expires := now.Add(ticketTTL)
	t.tickets[ticket] = ticketEntry{subject: subject, role: role, expiresAt: expires}
	return ticket, expires
}

// redeem consumes ticket. An expired ticket is consumed too but reported
// invalid.
func (t *ticketStore) redeem(ticket string) (ticketEntry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.tickets[ticket]
	if !ok {
		return ticketEntry{}, false
	}
	delete(t.tickets, ticket)
	return entry, t.now().Before(entry.expiresAt)
}

// sweep drops expired tickets and returns how many it removed.
func (t *ticketStore) sweep() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	removed := 0
	for k, e := range t.tickets {
		if !now.Before(e.expiresAt) {
			delete(t.tickets, k)
			removed++
		}
	}
	return removed
}

func (s *Server) handleWSTicket(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeUnauthorized(w, "bearer token required")
		return
	}

	ticket, expires := s.tickets.issue(claims.Subject, claims.Role)
	writeJSON(w, http.StatusOK, map[string]any{
		"ticket":     ticket,
		"expires_at": expires.UTC().Format(time.RFC3339),
		"expires_in": int(ticketTTL.Seconds()),
	})
}

func (s *Server) validateTicket(ticket string) (ticketEntry, bool) {
	return s.tickets.redeem(ticket)
}

// cleanTicketsLoop sweeps expired tickets until ctx is cancelled.
func (s *Server) cleanTicketsLoop(ctx context.Context) {
	ticker := time.NewTicker(ticketTTL)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.tickets.sweep(); n > 0 {
				s.logger.Debug("expired websocket tickets removed", "count", n)
			}
		}
	}
}

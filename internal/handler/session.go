package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/gorilla/sessions"
)

const (
	// SessionName is the cookie that identifies a visitor's cart.
	SessionName = "food-cart"
	cartIDKey   = "cart_id"
)

// SessionConfig configures the cart session cookie.
type SessionConfig struct {
	// Key authenticates the cookie. At least 32 bytes.
	Key []byte
	// Secure restricts the cookie to HTTPS.
	Secure bool
	// MaxAge is the cookie lifetime in seconds.
	MaxAge int
}

// Sessions issues and reads the cart id cookie.
type Sessions struct {
	store *sessions.CookieStore
}

// NewSessions creates a cookie-backed session store.
func NewSessions(cfg SessionConfig) *Sessions {
	store := sessions.NewCookieStore(cfg.Key)
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   cfg.MaxAge,
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	return &Sessions{store: store}
}

// CartID returns the caller's cart id, issuing a new one (and the cookie
// carrying it) when the request has none or its cookie no longer verifies.
// It must run before anything is written to w.
func (s *Sessions) CartID(w http.ResponseWriter, r *http.Request) (string, error) {
	// A tampered or rotated-key cookie yields an error and a fresh session;
	// the visitor just starts a new cart.
	sess, _ := s.store.Get(r, SessionName)

	if id, ok := sess.Values[cartIDKey].(string); ok {
		if _, err := uuid.Parse(id); err == nil {
			return id, nil
		}
	}

	id := uuid.NewString()
	sess.Values[cartIDKey] = id
	if err := sess.Save(r, w); err != nil {
		return "", errors.Wrap(err, "save session")
	}
	return id, nil
}

// VerifiedCartID returns the cart id of an authentic session cookie without
// issuing one. It fails for missing, forged or expired cookies.
func (s *Sessions) VerifiedCartID(r *http.Request) (string, bool) {
	sess, err := s.store.New(r, SessionName)
	if err != nil || sess.IsNew {
		return "", false
	}
	id, ok := sess.Values[cartIDKey].(string)
	if !ok {
		return "", false
	}
	if _, err := uuid.Parse(id); err != nil {
		return "", false
	}
	return id, true
}

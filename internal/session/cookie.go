// Package session moves the session token between client and server in the
// auth_token cookie.
package session

import (
	"net/http"
	"time"
)

const (
	CookieName = "auth_token"

	// DefaultMaxAge is the session lifetime: 86,400,000 ms.
	DefaultMaxAge = 24 * time.Hour
)

// Cookies builds session cookies. Secure is set in production so the cookie
// only travels over HTTPS. MaxAge should equal the token lifetime; zero means
// DefaultMaxAge.
type Cookies struct {
	Secure bool
	MaxAge time.Duration
}

func (c Cookies) maxAge() time.Duration {
	if c.MaxAge <= 0 {
		return DefaultMaxAge
	}
	return c.MaxAge
}

// Issue returns the cookie carrying token.
func (c Cookies) Issue(token string) *http.Cookie {
	maxAge := c.maxAge()
	return &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		Expires:  time.Now().Add(maxAge),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// Clear returns an already-expired empty cookie that makes the browser drop
// the session. The token itself stays valid until it expires.
func (c Cookies) Clear() *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// Token returns the session token sent with r, or "" when there is none.
func Token(r *http.Request) string {
	c, err := r.Cookie(CookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

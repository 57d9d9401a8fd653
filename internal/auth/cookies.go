package auth

import (
	"net/http"
	"time"
)

// SessionCookieName is the cookie carrying the session bearer token for
// browser clients. Non-cookie clients use the token from the response
// body instead.
const SessionCookieName = "session_token"

// CookieConfig holds cookie configuration settings
type CookieConfig struct {
	Domain string // Empty string = current host only
	Secure bool   // HTTPS only; off only in development
	MaxAge time.Duration
}

// SetSessionCookie sets the session token in an httpOnly cookie.
// SameSite is always Strict for the session cookie.
func SetSessionCookie(w http.ResponseWriter, token string, config CookieConfig) {
	cookie := &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		Domain:   config.Domain,
		Expires:  time.Now().Add(config.MaxAge),
		MaxAge:   int(config.MaxAge.Seconds()),
		HttpOnly: true, // prevents JavaScript access
		Secure:   config.Secure,
		SameSite: http.SameSiteStrictMode,
	}
	http.SetCookie(w, cookie)
}

// ClearSessionCookie clears the session cookie
func ClearSessionCookie(w http.ResponseWriter, config CookieConfig) {
	cookie := &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   config.Domain,
		MaxAge:   -1, // Negative MaxAge deletes the cookie
		HttpOnly: true,
		Secure:   config.Secure,
		SameSite: http.SameSiteStrictMode,
	}
	http.SetCookie(w, cookie)
}

// GetSessionCookie retrieves the session token from cookies
func GetSessionCookie(r *http.Request) (string, error) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return "", err
	}
	return cookie.Value, nil
}

package httpapi

import (
	"context"
	"net/http"
	"strings"

	"twoway-sms/internal/apperr"
	"twoway-sms/internal/models"
)

// sessionResolver is the part of auth.Service the middleware needs.
type sessionResolver interface {
	Resolve(ctx context.Context, token string) (*models.User, error)
}

// sessionToken reads the bearer token, falling back to the session cookie.
func sessionToken(r *http.Request, cookieName string) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	if c, err := r.Cookie(cookieName); err == nil {
		return c.Value
	}
	return ""
}

func RequireUser(auth sessionResolver, cookieName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := sessionToken(r, cookieName)
			if token == "" {
				writeError(w, r, apperr.Unauthorized("Unauthorized"))
				return
			}
			u, err := auth.Resolve(r.Context(), token)
			if err != nil {
				writeError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey, u)))
		})
	}
}

// RequireAdmin must run after RequireUser.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !UserFrom(r.Context()).IsAdmin() {
			writeError(w, r, apperr.Forbidden("Forbidden"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func UserFrom(ctx context.Context) *models.User {
	u, _ := ctx.Value(userKey).(*models.User)
	return u
}

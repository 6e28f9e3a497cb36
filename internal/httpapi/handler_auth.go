package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"twoway-sms/internal/apperr"
	"twoway-sms/internal/auth"
	"twoway-sms/internal/config"
	"twoway-sms/internal/store"
)

type loginRequest struct {
	Login    string `json:"login"`
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password" validate:"required"`
}

type signupRequest struct {
	Email    string `json:"email" validate:"required_without=Username"`
	Username string `json:"username" validate:"required_without=Email"`
	Password string `json:"password" validate:"required"`
	Name     string `json:"name" validate:"required"`
}

func setSessionCookie(w http.ResponseWriter, cfg *config.Config, token string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     cfg.SessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   strings.HasPrefix(cfg.PublicBaseURL, "https://"),
		SameSite: http.SameSiteLaxMode,
	})
}

func LoginHandler(cfg *config.Config, a *auth.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := decodeJSON(r, &req, "Invalid credentials"); err != nil {
			writeError(w, r, apperr.Unauthorized("Invalid credentials"))
			return
		}
		login := req.Login
		for _, alt := range []string{req.Email, req.Username} {
			if login == "" {
				login = alt
			}
		}

		sess, err := a.Login(r.Context(), login, req.Password)
		if err != nil {
			writeError(w, r, err)
			return
		}
		setSessionCookie(w, cfg, sess.Token, cfg.SessionTTL)
		writeJSON(w, http.StatusOK, sess)
	}
}

func SignupHandler(cfg *config.Config, a *auth.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req signupRequest
		if err := decodeJSON(r, &req, "Missing required fields"); err != nil {
			writeError(w, r, err)
			return
		}
		sess, err := a.Signup(r.Context(), auth.NewUser{
			Email:    req.Email,
			Username: req.Username,
			Password: req.Password,
			Name:     req.Name,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		setSessionCookie(w, cfg, sess.Token, cfg.SessionTTL)
		writeJSON(w, http.StatusCreated, sess)
	}
}

func LogoutHandler(cfg *config.Config, a *auth.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := a.Logout(r.Context(), sessionToken(r, cfg.SessionCookie)); err != nil {
			writeError(w, r, err)
			return
		}
		setSessionCookie(w, cfg, "", -time.Second)
		writeJSON(w, http.StatusOK, okResponse{Success: true})
	}
}

// MeHandler returns the caller with credits and owned numbers.
func MeHandler(users store.Users) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, err := users.GetUserDetail(r.Context(), UserFrom(r.Context()).ID)
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, r, apperr.Unauthorized("Unauthorized"))
			return
		}
		if err != nil {
			writeError(w, r, apperr.Internal(err))
			return
		}
		writeJSON(w, http.StatusOK, d)
	}
}

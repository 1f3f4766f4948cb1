package server

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	adminCookieName = "admin-auth"
	adminSessionTTL = 24 * time.Hour
)

// signAdmin returns the cookie value for a session expiring at exp:
// "<unix expiry>.<HMAC-SHA256 of the expiry keyed by the admin password>".
// Changing the password invalidates every outstanding cookie.
func signAdmin(password string, exp time.Time) string {
	ts := strconv.FormatInt(exp.Unix(), 10)

	return ts + "." + adminMAC(password, ts)
}

func adminMAC(password, ts string) string {
	mac := hmac.New(sha256.New, []byte(password))
	mac.Write([]byte(ts))

	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// verifyAdmin reports whether value is an unexpired cookie signed with
// password.
func verifyAdmin(password, value string, now time.Time) bool {
	if password == "" {
		return false
	}

	ts, sig, ok := strings.Cut(value, ".")
	if !ok {
		return false
	}

	exp, err := strconv.ParseInt(ts, 10, 64)
	if err != nil || now.Unix() >= exp {
		return false
	}

	return hmac.Equal([]byte(sig), []byte(adminMAC(password, ts)))
}

// requireAdmin rejects requests without a valid admin cookie.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		st, err := s.settings()
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		c, err := r.Cookie(adminCookieName)
		if err != nil || !verifyAdmin(st.adminPassword, c.Value, s.nowFunc()) {
			s.writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		next.ServeHTTP(w, r)
	})
}

type loginRequest struct {
	Password string `json:"password"`
}

type successResponse struct {
	Success bool `json:"success"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	st, err := s.settings()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if st.adminPassword == "" ||
		subtle.ConstantTimeCompare([]byte(req.Password), []byte(st.adminPassword)) != 1 {
		s.logger.Warn("admin login rejected", slog.String("remote", r.RemoteAddr))
		s.writeError(w, http.StatusUnauthorized, "wrong password")

		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     adminCookieName,
		Value:    signAdmin(st.adminPassword, s.nowFunc().Add(adminSessionTTL)),
		Path:     "/",
		MaxAge:   int(adminSessionTTL / time.Second),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	})

	s.writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func (s *Server) handleLogout(w http.ResponseWriter, _ *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     adminCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})

	s.writeJSON(w, http.StatusOK, successResponse{Success: true})
}

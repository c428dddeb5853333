package httpapi

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/rs/zerolog/hlog"

	"github.com/roniherschmann/trendboard/internal/eventlog"
	"github.com/roniherschmann/trendboard/internal/session"
)

const sessionCookie = "trendboard_session"

type ctxKey struct{}

// withSession resolves the session cookie, if any, into the request
// context. Stale or forged cookies are cleared.
func (rt *Router) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie(sessionCookie)
		if err != nil || c.Value == "" {
			next.ServeHTTP(w, r)
			return
		}
		sess, err := rt.sessions.Resolve(c.Value)
		if err != nil {
			clearSessionCookie(w)
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, &sess)))
	})
}

func sessionFrom(r *http.Request) *session.Session {
	s, _ := r.Context().Value(ctxKey{}).(*session.Session)
	return s
}

// requireRole allows only sessions with one of the given roles.
func requireRole(roles ...session.Role) func(http.Handler) http.Handler {
	allowed := make(map[session.Role]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := sessionFrom(r)
			if sess == nil {
				writeError(w, "login required", http.StatusUnauthorized)
				return
			}
			if _, ok := allowed[sess.Role]; !ok {
				writeError(w, "insufficient permissions", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (rt *Router) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !rt.limiter.Allow(clientIP(r)) {
		http.Error(w, "too many login attempts", http.StatusTooManyRequests)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	res, err := rt.svc.Login(sessionFrom(r), r.PostForm.Get("name"), r.PostForm.Get("password"))
	if errors.Is(err, session.ErrInvalidCredentials) {
		redirectHome(w, r, "login_failed")
		return
	}
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("login")
		http.Error(w, "login unavailable", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    res.Token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   r.TLS != nil,
	})
	if res.Session.IsAdmin() {
		http.Redirect(w, r, "/admin", http.StatusSeeOther)
		return
	}
	redirectHome(w, r, "")
}

func (rt *Router) handleLogout(w http.ResponseWriter, r *http.Request) {
	err := rt.svc.Logout(sessionFrom(r))
	clearSessionCookie(w)
	if err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("finalize visit")
		redirectHome(w, r, "log_failed")
		return
	}
	redirectHome(w, r, "")
}

func clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func redirectHome(w http.ResponseWriter, r *http.Request, notice string) {
	target := "/"
	if notice != "" {
		target += "?notice=" + url.QueryEscape(notice)
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func isLogWrite(err error) bool {
	var lwe *eventlog.LogWriteError
	return errors.As(err, &lwe)
}

package httpapi

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"

	"github.com/roniherschmann/trendboard/internal/config"
	"github.com/roniherschmann/trendboard/internal/core"
	"github.com/roniherschmann/trendboard/internal/feed"
	"github.com/roniherschmann/trendboard/internal/metrics"
	"github.com/roniherschmann/trendboard/internal/session"
	"github.com/roniherschmann/trendboard/internal/youtube"
)

type Router struct {
	cfg      config.Config
	svc      *core.Service
	sessions *session.Manager
	limiter  *rateLimiter
}

func NewRouter(cfg config.Config, svc *core.Service, sessions *session.Manager) http.Handler {
	r := chi.NewRouter()
	// Logging middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(hlog.NewHandler(log.Logger))
	r.Use(hlog.RequestIDHandler("req_id", "Request-Id"))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, dur time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", dur).
			Msg("request")
	}))
	r.Use(middleware.Recoverer)

	api := &Router{
		cfg:      cfg,
		svc:      svc,
		sessions: sessions,
		limiter:  newRateLimiter(cfg.LoginRateRPS, cfg.LoginRateBurst),
	}
	r.Use(api.withSession)

	r.MethodFunc(http.MethodGet, "/healthz", api.handleHealth)
	r.MethodFunc(http.MethodGet, "/readyz", api.handleReady)

	// Metrics
	r.MethodFunc(http.MethodGet, "/metrics", metrics.Handler)

	// Pages
	r.MethodFunc(http.MethodGet, "/", api.handleDashboard)
	r.MethodFunc(http.MethodPost, "/login", api.handleLogin)
	r.MethodFunc(http.MethodPost, "/logout", api.handleLogout)
	r.MethodFunc(http.MethodPost, "/click", api.handleClickForm)
	r.MethodFunc(http.MethodGet, "/feed/{region}", api.handleFeed)

	r.Route("/api/v1", func(r chi.Router) {
		r.MethodFunc(http.MethodGet, "/videos", api.handleVideos)
		r.MethodFunc(http.MethodPost, "/refresh", api.handleRefresh)
		r.With(requireRole(session.RoleGeneral)).MethodFunc(http.MethodPost, "/clicks", api.handleClick)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(requireRole(session.RoleAdmin))
		r.MethodFunc(http.MethodGet, "/", api.handleAdminPage)
		r.MethodFunc(http.MethodGet, "/summary", api.handleSummary)
	})

	return r
}

func (rt *Router) handleVideos(w http.ResponseWriter, r *http.Request) {
	region := r.URL.Query().Get("region")
	if region == "" {
		region = rt.cfg.DefaultRegion()
	}
	listing, err := rt.svc.PopularVideos(r.Context(), region)
	if err != nil {
		status, msg := classify(err)
		hlog.FromRequest(r).Warn().Err(err).Str("region", region).Msg("popular videos")
		writeError(w, msg, status)
		return
	}
	writeJSON(w, listing, http.StatusOK)
}

func (rt *Router) handleRefresh(w http.ResponseWriter, r *http.Request) {
	rt.svc.Refresh()
	w.WriteHeader(http.StatusNoContent)
}

type clickResp struct {
	Warning string `json:"warning,omitempty"`
}

func (rt *Router) handleClick(w http.ResponseWriter, r *http.Request) {
	var req core.Click
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid json", http.StatusBadRequest)
		return
	}
	err := rt.svc.RecordClick(sessionFrom(r), req)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case isLogWrite(err):
		writeJSON(w, clickResp{Warning: "click could not be logged"}, http.StatusOK)
	default:
		status, msg := classify(err)
		writeError(w, msg, status)
	}
}

// handleClickForm records a click from the dashboard and sends the browser
// on to the video. When the click cannot be logged the user is sent back to
// the dashboard with a warning and a link to the video instead.
func (rt *Router) handleClickForm(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	c := core.Click{
		VideoID:      strings.TrimSpace(r.PostForm.Get("video_id")),
		Title:        r.PostForm.Get("title"),
		ChannelTitle: r.PostForm.Get("channel_title"),
	}
	if c.VideoID == "" {
		http.Error(w, core.ErrInvalidClick.Error(), http.StatusBadRequest)
		return
	}
	c.URL = youtube.WatchURL(c.VideoID)
	if sess := sessionFrom(r); sess != nil && sess.IsGeneral() {
		if err := rt.svc.RecordClick(sess, c); err != nil {
			hlog.FromRequest(r).Warn().Err(err).Str("video_id", c.VideoID).Msg("record click")
			if isLogWrite(err) {
				q := url.Values{"notice": {"click_log_failed"}, "video": {c.VideoID}}
				http.Redirect(w, r, "/?"+q.Encode(), http.StatusSeeOther)
				return
			}
		}
	}
	http.Redirect(w, r, c.URL, http.StatusSeeOther)
}

func (rt *Router) handleSummary(w http.ResponseWriter, r *http.Request) {
	report, err := rt.svc.Summary(sessionFrom(r))
	if err != nil {
		status, msg := classify(err)
		if status == http.StatusBadGateway {
			status, msg = http.StatusInternalServerError, "event log unavailable"
		}
		hlog.FromRequest(r).Error().Err(err).Msg("summary")
		writeError(w, msg, status)
		return
	}
	writeJSON(w, report, http.StatusOK)
}

func (rt *Router) handleFeed(w http.ResponseWriter, r *http.Request) {
	region := strings.ToUpper(chi.URLParam(r, "region"))
	listing, err := rt.svc.PopularVideos(r.Context(), region)
	if err != nil {
		status, msg := classify(err)
		http.Error(w, msg, status)
		return
	}
	atom, err := feed.Render(requestBaseURL(r), listing.Region, listing.Videos, time.Now())
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("render feed")
		http.Error(w, "feed unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/atom+xml; charset=utf-8")
	_, _ = w.Write([]byte(atom))
}

func (rt *Router) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (rt *Router) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := rt.cfg.Validate(); err != nil {
		http.Error(w, "not ready: "+err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ready"))
}

// classify maps service errors to a status and a user-facing message.
func classify(err error) (int, string) {
	var cfgErr *config.ConfigError
	var upErr *youtube.UpstreamError
	switch {
	case errors.As(err, &cfgErr):
		return http.StatusServiceUnavailable, cfgErr.Error()
	case errors.As(err, &upErr):
		return http.StatusBadGateway, upErr.Error()
	case errors.Is(err, core.ErrUnknownRegion):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, core.ErrInvalidClick):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, core.ErrNotLoggedIn), errors.Is(err, session.ErrInvalidCredentials):
		return http.StatusUnauthorized, err.Error()
	case errors.Is(err, core.ErrForbidden):
		return http.StatusForbidden, err.Error()
	default:
		return http.StatusBadGateway, "upstream unavailable: " + err.Error()
	}
}

type errorResp struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, msg string, status int) {
	writeJSON(w, errorResp{Error: msg}, status)
}

func writeJSON(w http.ResponseWriter, v any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func requestBaseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

func clientIP(r *http.Request) string {
	// Try X-Forwarded-For or Real-IP first
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	if rip := r.Header.Get("X-Real-Ip"); rip != "" {
		return rip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

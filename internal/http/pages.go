package httpapi

import (
	"html/template"
	"net/http"
	"strings"

	"github.com/rs/zerolog/hlog"

	"github.com/roniherschmann/trendboard/internal/analytics"
	"github.com/roniherschmann/trendboard/internal/feed"
	"github.com/roniherschmann/trendboard/internal/session"
	"github.com/roniherschmann/trendboard/internal/youtube"
)

var notices = map[string]string{
	"login_failed":     "Login failed. General users log in with a name and a 4-digit code.",
	"log_failed":       "Logged out, but the visit could not be recorded.",
	"click_log_failed": "Your click could not be recorded.",
}

type dashboardPage struct {
	Session      *session.Session
	Regions      []string
	Region       string
	Videos       []youtube.Video
	Error        string
	ConfigHelp   string
	Notice       string
	NoticeLink   string
	Degraded     bool
	ShowNoVideos bool
}

func (rt *Router) handleDashboard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	region := strings.ToUpper(q.Get("region"))
	if !rt.cfg.HasRegion(region) {
		region = rt.cfg.DefaultRegion()
	}
	if q.Get("refresh") == "1" {
		rt.svc.Refresh()
	}

	page := dashboardPage{
		Session: sessionFrom(r),
		Regions: rt.cfg.Regions,
		Region:  region,
		Notice:  notices[q.Get("notice")],
	}
	if id := strings.TrimSpace(q.Get("video")); id != "" && q.Get("notice") == "click_log_failed" {
		page.NoticeLink = youtube.WatchURL(id)
	}

	listing, err := rt.svc.PopularVideos(r.Context(), region)
	if err != nil {
		status, msg := classify(err)
		hlog.FromRequest(r).Warn().Err(err).Str("region", region).Msg("popular videos")
		if status == http.StatusServiceUnavailable {
			page.ConfigHelp = msg
		} else {
			page.Error = msg
		}
		render(w, r, dashboardTmpl, page, status)
		return
	}
	page.Videos = listing.Videos
	page.Degraded = listing.SubscribersDegraded
	page.ShowNoVideos = len(listing.Videos) == 0
	render(w, r, dashboardTmpl, page, http.StatusOK)
}

type adminPage struct {
	Session *session.Session
	Report  analytics.Report
	Error   string
}

func (rt *Router) handleAdminPage(w http.ResponseWriter, r *http.Request) {
	page := adminPage{Session: sessionFrom(r)}
	report, err := rt.svc.Summary(page.Session)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("summary")
		page.Error = "Usage analytics are unavailable."
		render(w, r, adminTmpl, page, http.StatusInternalServerError)
		return
	}
	page.Report = report
	render(w, r, adminTmpl, page, http.StatusOK)
}

func render(w http.ResponseWriter, r *http.Request, t *template.Template, data any, status int) {
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		hlog.FromRequest(r).Error().Err(err).Str("template", t.Name()).Msg("render")
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(b.String()))
}

var funcs = template.FuncMap{
	"count": feed.FormatCount,
	"inc":   func(i int) int { return i + 1 },
}

const layoutHead = `<!doctype html>
<html lang="en"><head><meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{block "title" .}}Popular videos{{end}}</title>
<style>
body{font-family:-apple-system,BlinkMacSystemFont,"Segoe UI",Roboto,sans-serif;margin:0 auto;max-width:960px;padding:16px;line-height:1.5}
.video{display:flex;gap:16px;padding:12px 0;border-bottom:1px solid #e5e5e5}
.video img{width:200px;border-radius:6px}
.notice{padding:8px;background:#fff7e0;border-left:4px solid #f0a000}
.error{padding:8px;background:#fdecea;border-left:4px solid #d93025}
.meta{color:#666}
</style></head><body>`

var dashboardTmpl = template.Must(template.New("dashboard").Funcs(funcs).Parse(layoutHead + `
<header>
  <h1>Popular videos</h1>
  <form method="get" action="/" id="region">
    <label>Region <select name="region">{{range .Regions}}<option value="{{.}}"{{if eq . $.Region}} selected{{end}}>{{.}}</option>{{end}}</select></label>
    <button type="submit">Show</button>
    <button type="submit" name="refresh" value="1">Refresh</button>
  </form>
  {{if .Session}}
  <form method="post" action="/logout" id="logout">
    <span class="user">{{.Session.UserName}}</span>
    {{if .Session.IsAdmin}}<a href="/admin">Analytics</a>{{end}}
    <button type="submit">Log out</button>
  </form>
  {{else}}
  <form method="post" action="/login" id="login">
    <input name="name" placeholder="Name" required>
    <input name="password" type="password" placeholder="Code" required>
    <button type="submit">Log in</button>
  </form>
  {{end}}
</header>
{{if .Notice}}<p class="notice" id="notice">{{.Notice}}{{if .NoticeLink}} <a href="{{.NoticeLink}}">Open the video</a>{{end}}</p>{{end}}
{{if .ConfigHelp}}<div class="error" id="config-error"><p>{{.ConfigHelp}}</p></div>{{end}}
{{if .Error}}<p class="error" id="fetch-error">Could not load videos: {{.Error}}</p>{{end}}
{{if .Degraded}}<p class="notice" id="subs-degraded">Subscriber counts are unavailable right now.</p>{{end}}
{{if .ShowNoVideos}}<p class="notice">No videos to show.</p>{{end}}
<ol class="videos">
{{range $i, $v := .Videos}}
  <li class="video" data-id="{{$v.ID}}">
    {{if $v.ThumbnailURL}}<img src="{{$v.ThumbnailURL}}" alt="" loading="lazy">{{else}}<span class="meta">No preview</span>{{end}}
    <div>
      <strong>{{inc $i}}. {{if $v.URL}}<a href="{{$v.URL}}">{{$v.Title}}</a>{{else}}{{$v.Title}}{{end}}</strong>
      <div class="meta">Channel: {{$v.ChannelTitle}}</div>
      <div class="meta stats">Views: {{count $v.ViewCount}} · Likes: {{count $v.LikeCount}} · Subscribers: <span class="subs">{{count $v.SubscriberCount}}</span></div>
      {{if and $.Session $.Session.IsGeneral $v.ID}}
      <form method="post" action="/click" class="click">
        <input type="hidden" name="video_id" value="{{$v.ID}}">
        <input type="hidden" name="title" value="{{$v.Title}}">
        <input type="hidden" name="channel_title" value="{{$v.ChannelTitle}}">
        <button type="submit">Watch</button>
      </form>
      {{end}}
    </div>
  </li>
{{end}}
</ol>
<footer class="meta"><a href="/feed/{{.Region}}">Atom feed</a></footer>
</body></html>`))

var adminTmpl = template.Must(template.New("admin").Funcs(funcs).Parse(layoutHead + `
<header>
  <h1>Usage analytics</h1>
  <a href="/">Back to videos</a>
  <form method="post" action="/logout" id="logout"><button type="submit">Log out</button></form>
</header>
{{if .Error}}<p class="error">{{.Error}}</p>{{else}}
<dl class="metrics">
  <dt>Total visits</dt><dd id="total-visits">{{.Report.Metrics.TotalVisits}}</dd>
  <dt>Unique users</dt><dd id="unique-users">{{.Report.Metrics.UniqueUsers}}</dd>
  <dt>Total clicks</dt><dd id="total-clicks">{{.Report.Metrics.TotalClicks}}</dd>
  <dt>Average visit (s)</dt><dd id="avg-duration">{{.Report.Metrics.AvgDurationSeconds}}</dd>
</dl>
<h2>Most clicked</h2>
<ol class="top-videos">
{{range .Report.TopVideos}}<li><a href="{{.URL}}">{{.Title}}</a> <span class="meta">{{.ChannelTitle}} · {{.Clicks}} clicks</span></li>{{end}}
</ol>
{{end}}
</body></html>`))

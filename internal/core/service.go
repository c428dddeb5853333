package core

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/roniherschmann/trendboard/internal/analytics"
	"github.com/roniherschmann/trendboard/internal/cache"
	"github.com/roniherschmann/trendboard/internal/config"
	"github.com/roniherschmann/trendboard/internal/eventlog"
	"github.com/roniherschmann/trendboard/internal/metrics"
	"github.com/roniherschmann/trendboard/internal/session"
	"github.com/roniherschmann/trendboard/internal/youtube"
)

var (
	ErrUnknownRegion = errors.New("unknown region")
	ErrNotLoggedIn   = errors.New("not logged in")
	ErrForbidden     = errors.New("forbidden")
	ErrInvalidClick  = errors.New("click requires a video id")
)

// TopVideosShown is how many clicked videos the admin report lists.
const TopVideosShown = 10

// Fetcher is the upstream API as the service uses it.
type Fetcher interface {
	FetchPopularVideos(ctx context.Context, apiKey, region string, maxResults int) ([]youtube.Video, error)
	FetchSubscriberCounts(ctx context.Context, apiKey string, channelIDs []string) youtube.SubscriberResult
}

type Service struct {
	cfg      config.Config
	yt       Fetcher
	videos   *cache.Cache[[]youtube.Video]
	channels *cache.Cache[youtube.SubscriberResult]
	events   eventlog.Store
	sessions *session.Manager
	now      func() time.Time
}

type Option func(*Service)

// WithClock replaces time.Now for event timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(cfg config.Config, yt Fetcher, events eventlog.Store, sessions *session.Manager, opts ...Option) *Service {
	s := &Service{
		cfg:      cfg,
		yt:       yt,
		videos:   cache.New[[]youtube.Video]("popular_videos", cfg.CacheTTL, cache.WithMaxEntries(cfg.CacheMaxEntries)),
		channels: cache.New[youtube.SubscriberResult]("channel_subscribers", cfg.CacheTTL, cache.WithMaxEntries(cfg.CacheMaxEntries)),
		events:   events,
		sessions: sessions,
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) Config() config.Config { return s.cfg }

// Listing is one rendered ranking.
type Listing struct {
	Region              string          `json:"region"`
	Videos              []youtube.Video `json:"videos"`
	SubscribersDegraded bool            `json:"subscribers_degraded"`
}

// PopularVideos returns the region's ranking joined with subscriber counts.
// A missing API key fails with *config.ConfigError before any network call.
// Channel stats failures degrade the listing instead of failing it.
func (s *Service) PopularVideos(ctx context.Context, region string) (Listing, error) {
	if err := s.cfg.Validate(); err != nil {
		return Listing{}, err
	}
	region = strings.ToUpper(strings.TrimSpace(region))
	if !s.cfg.HasRegion(region) {
		return Listing{}, ErrUnknownRegion
	}

	key := cache.Key(s.cfg.APIKey, region, strconv.Itoa(s.cfg.MaxResults))
	cached, err := s.videos.GetOrCompute(key, func() ([]youtube.Video, error) {
		return s.yt.FetchPopularVideos(ctx, s.cfg.APIKey, region, s.cfg.MaxResults)
	})
	if err != nil {
		return Listing{}, err
	}

	// The cached slice is shared; the join works on a copy.
	videos := append([]youtube.Video(nil), cached...)
	out := Listing{Region: region, Videos: videos}

	ids := ChannelIDs(videos)
	if len(ids) == 0 {
		return out, nil
	}
	subs := s.subscriberCounts(ctx, ids)
	out.SubscribersDegraded = subs.Degraded
	for i := range videos {
		if c, ok := subs.Count(videos[i].ChannelID); ok {
			videos[i].SubscriberCount = c
		}
	}
	return out, nil
}

var errDegraded = errors.New("channel stats degraded")

// subscriberCounts consults the channel cache. Degraded lookups are
// returned but not cached, so the next render tries again.
func (s *Service) subscriberCounts(ctx context.Context, ids []string) youtube.SubscriberResult {
	var fresh youtube.SubscriberResult
	res, err := s.channels.GetOrCompute(cache.Key(append([]string{s.cfg.APIKey}, ids...)...), func() (youtube.SubscriberResult, error) {
		fresh = s.yt.FetchSubscriberCounts(ctx, s.cfg.APIKey, ids)
		if fresh.Degraded {
			return fresh, errDegraded
		}
		return fresh, nil
	})
	if err != nil {
		return fresh
	}
	return res
}

// ChannelIDs returns the sorted distinct non-empty channel ids of videos.
func ChannelIDs(videos []youtube.Video) []string {
	seen := make(map[string]bool, len(videos))
	var ids []string
	for _, v := range videos {
		if v.ChannelID == "" || seen[v.ChannelID] {
			continue
		}
		seen[v.ChannelID] = true
		ids = append(ids, v.ChannelID)
	}
	sort.Strings(ids)
	return ids
}

// Refresh invalidates both caches.
func (s *Service) Refresh() {
	s.videos.Clear()
	s.channels.Clear()
	log.Info().Msg("caches cleared")
}

// LoginResult reports the session a login ended up in. Resumed is true
// when the caller was already logged in and nothing changed.
type LoginResult struct {
	Session session.Session
	Token   string
	Resumed bool
}

// Login moves a logged-out caller to an active session. A caller that
// already has an active session keeps it; no second visit is started.
func (s *Service) Login(current *session.Session, name, password string) (LoginResult, error) {
	if current != nil {
		if active, ok := s.sessions.Active(current.VisitID); ok {
			tok, err := s.sessions.Token(active)
			if err != nil {
				return LoginResult{}, err
			}
			return LoginResult{Session: active, Token: tok, Resumed: true}, nil
		}
	}

	sess, err := s.sessions.Start(name, password)
	if err != nil {
		metrics.Logins.WithLabelValues("unknown", "rejected").Inc()
		return LoginResult{}, err
	}
	tok, err := s.sessions.Token(sess)
	if err != nil {
		s.sessions.End(sess.VisitID)
		return LoginResult{}, err
	}
	metrics.Logins.WithLabelValues(string(sess.Role), "ok").Inc()
	log.Info().Str("user", sess.UserName).Str("role", string(sess.Role)).Str("visit_id", sess.VisitID).Msg("login")
	return LoginResult{Session: sess, Token: tok}, nil
}

// Logout ends the session. For a general user the finished visit is
// appended exactly once; a second logout for the same visit is a no-op.
// The returned error is a *eventlog.LogWriteError warning at most: the
// session is ended either way.
func (s *Service) Logout(current *session.Session) error {
	if current == nil {
		return nil
	}
	sess, ok := s.sessions.End(current.VisitID)
	if !ok {
		return nil
	}
	log.Info().Str("user", sess.UserName).Str("visit_id", sess.VisitID).Msg("logout")
	if !sess.IsGeneral() {
		return nil
	}
	return s.events.AppendVisit(eventlog.NewVisit(sess.VisitID, sess.UserName, sess.StartTime, s.now()))
}

// Click is a general user's expressed interest in one video.
type Click struct {
	VideoID      string `json:"video_id"`
	Title        string `json:"title"`
	ChannelTitle string `json:"channel_title"`
	URL          string `json:"url"`
}

// RecordClick appends a click row for the session's visit.
func (s *Service) RecordClick(current *session.Session, c Click) error {
	if current == nil {
		return ErrNotLoggedIn
	}
	if !current.IsGeneral() {
		return ErrForbidden
	}
	c.VideoID = strings.TrimSpace(c.VideoID)
	if c.VideoID == "" {
		return ErrInvalidClick
	}
	if c.URL == "" {
		c.URL = youtube.WatchURL(c.VideoID)
	}
	return s.events.AppendClick(eventlog.ClickEvent{
		VisitID:      current.VisitID,
		UserName:     current.UserName,
		Timestamp:    s.now().UTC().Truncate(time.Second),
		VideoID:      c.VideoID,
		Title:        c.Title,
		ChannelTitle: c.ChannelTitle,
		URL:          c.URL,
	})
}

// Summary builds the admin report from the event log.
func (s *Service) Summary(current *session.Session) (analytics.Report, error) {
	if current == nil {
		return analytics.Report{}, ErrNotLoggedIn
	}
	if !current.IsAdmin() {
		return analytics.Report{}, ErrForbidden
	}
	return analytics.Build(s.events, TopVideosShown)
}

package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roniherschmann/trendboard/internal/config"
	"github.com/roniherschmann/trendboard/internal/eventlog"
	"github.com/roniherschmann/trendboard/internal/session"
	"github.com/roniherschmann/trendboard/internal/youtube"
)

type fakeFetcher struct {
	videos      []youtube.Video
	videosErr   error
	subs        youtube.SubscriberResult
	videoCalls  int
	subCalls    int
	lastSubsIDs []string
}

func (f *fakeFetcher) FetchPopularVideos(ctx context.Context, apiKey, region string, maxResults int) ([]youtube.Video, error) {
	f.videoCalls++
	if f.videosErr != nil {
		return nil, f.videosErr
	}
	return append([]youtube.Video(nil), f.videos...), nil
}

func (f *fakeFetcher) FetchSubscriberCounts(ctx context.Context, apiKey string, channelIDs []string) youtube.SubscriberResult {
	f.subCalls++
	f.lastSubsIDs = channelIDs
	return f.subs
}

func testConfig() config.Config {
	return config.Config{
		APIKey:     "key",
		Regions:    config.DefaultRegions,
		MaxResults: 30,
		CacheTTL:   300 * time.Second,
	}
}

var testCreds = session.Credentials{AdminUser: "admin", AdminPassword: "pw", PassMin: 1000, PassMax: 9999}

type fixture struct {
	svc     *Service
	fetcher *fakeFetcher
	events  *eventlog.CSV
	clock   *time.Time
}

func newFixture(t *testing.T, cfg config.Config) *fixture {
	t.Helper()
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	f := &fakeFetcher{
		videos: []youtube.Video{
			{ID: "v1", Title: "One", ChannelTitle: "A", ChannelID: "chB"},
			{ID: "v2", Title: "Two", ChannelTitle: "B", ChannelID: "chA"},
			{ID: "v3", Title: "Three", ChannelTitle: "A", ChannelID: "chB"},
			{ID: "v4", Title: "Four", ChannelTitle: "C"},
		},
		subs: youtube.SubscriberResult{Counts: map[string]string{"chA": "10", "chB": "20"}},
	}
	events := eventlog.NewCSV(filepath.Join(t.TempDir(), "logs"))
	sessions := session.NewManager("secret", testCreds, session.WithClock(clock))
	return &fixture{
		svc:     NewService(cfg, f, events, sessions, WithClock(clock)),
		fetcher: f,
		events:  events,
		clock:   &now,
	}
}

func TestPopularVideosJoinsSubscriberCounts(t *testing.T) {
	fx := newFixture(t, testConfig())

	l, err := fx.svc.PopularVideos(context.Background(), "kr")

	require.NoError(t, err)
	assert.Equal(t, "KR", l.Region)
	assert.False(t, l.SubscribersDegraded)
	assert.Equal(t, []string{"chA", "chB"}, fx.fetcher.lastSubsIDs)
	require.Len(t, l.Videos, 4)
	assert.Equal(t, "20", l.Videos[0].SubscriberCount)
	assert.Equal(t, "10", l.Videos[1].SubscriberCount)
	assert.Empty(t, l.Videos[3].SubscriberCount)
}

func TestPopularVideosUsesCache(t *testing.T) {
	fx := newFixture(t, testConfig())

	_, err := fx.svc.PopularVideos(context.Background(), "KR")
	require.NoError(t, err)
	l, err := fx.svc.PopularVideos(context.Background(), "KR")
	require.NoError(t, err)

	assert.Equal(t, 1, fx.fetcher.videoCalls)
	assert.Equal(t, 1, fx.fetcher.subCalls)
	assert.Equal(t, "20", l.Videos[0].SubscriberCount)

	fx.svc.Refresh()
	_, err = fx.svc.PopularVideos(context.Background(), "KR")
	require.NoError(t, err)
	assert.Equal(t, 2, fx.fetcher.videoCalls)
	assert.Equal(t, 2, fx.fetcher.subCalls)
}

func TestPopularVideosDoesNotMutateCachedSlice(t *testing.T) {
	fx := newFixture(t, testConfig())

	_, err := fx.svc.PopularVideos(context.Background(), "KR")
	require.NoError(t, err)
	fx.fetcher.subs = youtube.SubscriberResult{Counts: map[string]string{}, Degraded: true}
	fx.svc.channels.Clear()

	l, err := fx.svc.PopularVideos(context.Background(), "KR")
	require.NoError(t, err)
	assert.True(t, l.SubscribersDegraded)
	for _, v := range l.Videos {
		assert.Empty(t, v.SubscriberCount)
	}
}

func TestPopularVideosDegradedIsNotCached(t *testing.T) {
	fx := newFixture(t, testConfig())
	fx.fetcher.subs = youtube.SubscriberResult{Counts: map[string]string{}, Degraded: true, Err: errors.New("503")}

	l, err := fx.svc.PopularVideos(context.Background(), "KR")
	require.NoError(t, err)
	assert.True(t, l.SubscribersDegraded)

	_, err = fx.svc.PopularVideos(context.Background(), "KR")
	require.NoError(t, err)
	assert.Equal(t, 2, fx.fetcher.subCalls)
	assert.Equal(t, 1, fx.fetcher.videoCalls)
}

func TestPopularVideosErrors(t *testing.T) {
	t.Run("missing api key", func(t *testing.T) {
		cfg := testConfig()
		cfg.APIKey = ""
		fx := newFixture(t, cfg)

		_, err := fx.svc.PopularVideos(context.Background(), "KR")

		var cfgErr *config.ConfigError
		require.True(t, errors.As(err, &cfgErr))
		assert.Zero(t, fx.fetcher.videoCalls)
	})

	t.Run("unknown region", func(t *testing.T) {
		fx := newFixture(t, testConfig())

		_, err := fx.svc.PopularVideos(context.Background(), "ZZ")

		assert.ErrorIs(t, err, ErrUnknownRegion)
		assert.Zero(t, fx.fetcher.videoCalls)
	})

	t.Run("upstream error is not cached", func(t *testing.T) {
		fx := newFixture(t, testConfig())
		fx.fetcher.videosErr = &youtube.UpstreamError{StatusCode: 403, Message: "quota"}

		_, err := fx.svc.PopularVideos(context.Background(), "KR")
		require.True(t, youtube.IsUpstream(err))
		_, _ = fx.svc.PopularVideos(context.Background(), "KR")

		assert.Equal(t, 2, fx.fetcher.videoCalls)
		assert.Zero(t, fx.fetcher.subCalls)
	})
}

func TestPopularVideosEndToEnd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/videos":
			assert.Equal(t, "KR", r.URL.Query().Get("regionCode"))
			fmt.Fprint(w, `{"items":[{"id":"abc","snippet":{"title":"Hello","channelTitle":"Chan","channelId":"ch1"},"statistics":{}}]}`)
		case "/channels":
			assert.Equal(t, "ch1", r.URL.Query().Get("id"))
			fmt.Fprint(w, `{"items":[{"id":"ch1","statistics":{"subscriberCount":"1000"}}]}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	svc := NewService(testConfig(), youtube.NewClient(youtube.WithBaseURL(srv.URL)),
		eventlog.NewCSV(t.TempDir()), session.NewManager("s", testCreds))

	l, err := svc.PopularVideos(context.Background(), "KR")

	require.NoError(t, err)
	require.Len(t, l.Videos, 1)
	v := l.Videos[0]
	assert.Equal(t, "abc", v.ID)
	assert.Equal(t, "Hello", v.Title)
	assert.Equal(t, "ch1", v.ChannelID)
	assert.Equal(t, "1000", v.SubscriberCount)
	assert.Equal(t, "https://www.youtube.com/watch?v=abc", v.URL)
}

func TestChannelIDs(t *testing.T) {
	ids := ChannelIDs([]youtube.Video{{ChannelID: "b"}, {}, {ChannelID: "a"}, {ChannelID: "b"}})
	assert.Equal(t, []string{"a", "b"}, ids)
	assert.Empty(t, ChannelIDs(nil))
}

func TestSessionLifecycleLogsVisitOnce(t *testing.T) {
	fx := newFixture(t, testConfig())

	res, err := fx.svc.Login(nil, "alice", "1234")
	require.NoError(t, err)
	require.False(t, res.Resumed)
	sess := res.Session

	again, err := fx.svc.Login(&sess, "alice", "1234")
	require.NoError(t, err)
	assert.True(t, again.Resumed)
	assert.Equal(t, sess.VisitID, again.Session.VisitID)

	*fx.clock = fx.clock.Add(42 * time.Second)
	require.NoError(t, fx.svc.Logout(&sess))
	require.NoError(t, fx.svc.Logout(&sess))

	visits, err := fx.events.ReadVisits()
	require.NoError(t, err)
	require.Len(t, visits, 1)
	assert.Equal(t, sess.VisitID, visits[0].VisitID)
	assert.Equal(t, "alice", visits[0].UserName)
	assert.Equal(t, int64(42), visits[0].DurationSec.Int64)
}

func TestLoginRejected(t *testing.T) {
	fx := newFixture(t, testConfig())

	_, err := fx.svc.Login(nil, "alice", "12")

	assert.ErrorIs(t, err, session.ErrInvalidCredentials)
}

func TestAdminLogoutWritesNothing(t *testing.T) {
	fx := newFixture(t, testConfig())
	res, err := fx.svc.Login(nil, "admin", "pw")
	require.NoError(t, err)

	require.NoError(t, fx.svc.Logout(&res.Session))

	_, statErr := os.Stat(fx.events.VisitsPath())
	assert.True(t, os.IsNotExist(statErr))
}

func TestRecordClick(t *testing.T) {
	fx := newFixture(t, testConfig())
	res, err := fx.svc.Login(nil, "alice", "1234")
	require.NoError(t, err)
	sess := res.Session

	require.NoError(t, fx.svc.RecordClick(&sess, Click{VideoID: "abc", Title: "Hello", ChannelTitle: "Chan"}))

	clicks, err := fx.events.ReadClicks()
	require.NoError(t, err)
	require.Len(t, clicks, 1)
	assert.Equal(t, eventlog.ClickEvent{
		VisitID:      sess.VisitID,
		UserName:     "alice",
		Timestamp:    *fx.clock,
		VideoID:      "abc",
		Title:        "Hello",
		ChannelTitle: "Chan",
		URL:          "https://www.youtube.com/watch?v=abc",
	}, clicks[0])

	t.Run("rejections", func(t *testing.T) {
		admin := session.Session{VisitID: "x", UserName: "admin", Role: session.RoleAdmin}
		assert.ErrorIs(t, fx.svc.RecordClick(nil, Click{VideoID: "abc"}), ErrNotLoggedIn)
		assert.ErrorIs(t, fx.svc.RecordClick(&admin, Click{VideoID: "abc"}), ErrForbidden)
		assert.ErrorIs(t, fx.svc.RecordClick(&sess, Click{VideoID: " "}), ErrInvalidClick)
	})
}

func TestSummary(t *testing.T) {
	fx := newFixture(t, testConfig())
	user, err := fx.svc.Login(nil, "alice", "1234")
	require.NoError(t, err)
	require.NoError(t, fx.svc.RecordClick(&user.Session, Click{VideoID: "abc"}))
	*fx.clock = fx.clock.Add(10 * time.Second)
	require.NoError(t, fx.svc.Logout(&user.Session))

	admin, err := fx.svc.Login(nil, "admin", "pw")
	require.NoError(t, err)

	r, err := fx.svc.Summary(&admin.Session)
	require.NoError(t, err)
	assert.Equal(t, 1, r.Metrics.TotalVisits)
	assert.Equal(t, 1, r.Metrics.TotalClicks)
	assert.Equal(t, int64(10), r.Metrics.AvgDurationSeconds)

	_, err = fx.svc.Summary(&user.Session)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = fx.svc.Summary(nil)
	assert.ErrorIs(t, err, ErrNotLoggedIn)
}

func TestLogoutWriteFailureIsWarning(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))
	fx := newFixture(t, testConfig())
	fx.svc.events = eventlog.NewCSV(filepath.Join(blocker, "logs"))

	res, err := fx.svc.Login(nil, "alice", "1234")
	require.NoError(t, err)

	err = fx.svc.Logout(&res.Session)
	var lwe *eventlog.LogWriteError
	require.True(t, errors.As(err, &lwe))

	_, ok := fx.svc.sessions.Active(res.Session.VisitID)
	assert.False(t, ok)
}

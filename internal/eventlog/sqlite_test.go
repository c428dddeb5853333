package eventlog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	s, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteRoundTrip(t *testing.T) {
	s := openTestSQLite(t)

	for i := 0; i < 3; i++ {
		ev := sampleVisit(i)
		require.NoError(t, s.AppendVisit(ev))
		got, err := s.ReadVisits()
		require.NoError(t, err)
		require.Len(t, got, i+1)
		assert.Equal(t, ev, got[i])
	}

	click := ClickEvent{
		VisitID:      "v1",
		UserName:     "alice",
		Timestamp:    time.Date(2024, 5, 1, 9, 0, 1, 0, time.UTC),
		VideoID:      "abc",
		Title:        "Hello",
		ChannelTitle: "Chan",
		URL:          "https://www.youtube.com/watch?v=abc",
	}
	require.NoError(t, s.AppendClick(click))
	clicks, err := s.ReadClicks()
	require.NoError(t, err)
	require.Len(t, clicks, 1)
	assert.Equal(t, click, clicks[0])
}

func TestSQLiteEmpty(t *testing.T) {
	s := openTestSQLite(t)

	visits, err := s.ReadVisits()
	require.NoError(t, err)
	assert.Empty(t, visits)
}

func TestSQLiteMalformedDuration(t *testing.T) {
	s := openTestSQLite(t)
	_, err := s.db.Exec(`INSERT INTO visits(visit_id, user_name, start_time, end_time, duration_sec) VALUES('x', 'bob', '2024-05-01T09:00:00Z', '2024-05-01T09:00:10Z', 'bad')`)
	require.NoError(t, err)

	got, err := s.ReadVisits()
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.False(t, got[0].DurationSec.Valid)
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := openTestSQLite(t)
	require.NoError(t, Migrate(s.db))
}

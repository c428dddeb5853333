// Package analytics derives usage metrics from the event log.
package analytics

import (
	"sort"
	"time"

	"github.com/roniherschmann/trendboard/internal/eventlog"
)

type Metrics struct {
	TotalVisits        int   `json:"total_visits"`
	UniqueUsers        int   `json:"unique_users"`
	TotalClicks        int   `json:"total_clicks"`
	AvgDurationSeconds int64 `json:"avg_duration_seconds"`
}

// Summarize counts visits, distinct user names (exact match), clicks, and
// the mean visit duration truncated toward zero. Rows with a missing,
// malformed or negative duration are left out of the mean entirely.
func Summarize(visits []eventlog.VisitEvent, clicks []eventlog.ClickEvent) Metrics {
	users := make(map[string]struct{}, len(visits))
	var sum, n int64
	for _, v := range visits {
		users[v.UserName] = struct{}{}
		if v.DurationSec.Valid && v.DurationSec.Int64 >= 0 {
			sum += v.DurationSec.Int64
			n++
		}
	}

	m := Metrics{
		TotalVisits: len(visits),
		UniqueUsers: len(users),
		TotalClicks: len(clicks),
	}
	if n > 0 {
		m.AvgDurationSeconds = sum / n
	}
	return m
}

type VideoClicks struct {
	VideoID      string    `json:"video_id"`
	Title        string    `json:"title"`
	ChannelTitle string    `json:"channel_title"`
	URL          string    `json:"url"`
	Clicks       int       `json:"clicks"`
	LastClicked  time.Time `json:"last_clicked"`
	firstClicked time.Time
}

// TopVideos ranks clicked videos by click count. Ties go to the video
// clicked first, then to the smaller id. Title and channel come from the
// latest click. n <= 0 returns every video.
func TopVideos(clicks []eventlog.ClickEvent, n int) []VideoClicks {
	byID := make(map[string]*VideoClicks)
	for _, c := range clicks {
		if c.VideoID == "" {
			continue
		}
		vc, ok := byID[c.VideoID]
		if !ok {
			vc = &VideoClicks{VideoID: c.VideoID, firstClicked: c.Timestamp}
			byID[c.VideoID] = vc
		}
		vc.Clicks++
		if c.Timestamp.Before(vc.firstClicked) {
			vc.firstClicked = c.Timestamp
		}
		if !c.Timestamp.Before(vc.LastClicked) {
			vc.LastClicked = c.Timestamp
			vc.Title = c.Title
			vc.ChannelTitle = c.ChannelTitle
			vc.URL = c.URL
		}
	}

	out := make([]VideoClicks, 0, len(byID))
	for _, vc := range byID {
		out = append(out, *vc)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Clicks != b.Clicks {
			return a.Clicks > b.Clicks
		}
		if !a.firstClicked.Equal(b.firstClicked) {
			return a.firstClicked.Before(b.firstClicked)
		}
		return a.VideoID < b.VideoID
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// Report is what the admin view shows.
type Report struct {
	Metrics   Metrics       `json:"metrics"`
	TopVideos []VideoClicks `json:"top_videos"`
}

// Build reads both streams from store and summarizes them.
func Build(store eventlog.Store, topN int) (Report, error) {
	visits, err := store.ReadVisits()
	if err != nil {
		return Report{}, err
	}
	clicks, err := store.ReadClicks()
	if err != nil {
		return Report{}, err
	}
	return Report{
		Metrics:   Summarize(visits, clicks),
		TopVideos: TopVideos(clicks, topN),
	}, nil
}

package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/roniherschmann/trendboard/internal/metrics"
)

const (
	DefaultBaseURL = "https://www.googleapis.com/youtube/v3"
	DefaultTimeout = 15 * time.Second

	// MaxChannelBatch is the API's hard limit on ids per channels request.
	MaxChannelBatch = 50

	DefaultTitle        = "(no title)"
	DefaultChannelTitle = "(no channel)"

	watchURLPrefix = "https://www.youtube.com/watch?v="
)

// thumbnailPreference lists thumbnail variants from best to worst.
var thumbnailPreference = []string{"maxres", "standard", "high", "medium", "default"}

// UpstreamError is a non-success response from the video API.
type UpstreamError struct {
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("youtube api error: %d - %s", e.StatusCode, e.Message)
}

// Client talks to the YouTube Data API v3. It never retries.
type Client struct {
	baseURL string
	http    *http.Client
}

type Option func(*Client)

// WithBaseURL points the client at another API root, e.g. a test server.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		http:    &http.Client{Timeout: DefaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// FetchPopularVideos returns the region's most popular videos in ranking
// order. Any non-success response is returned as *UpstreamError.
func (c *Client) FetchPopularVideos(ctx context.Context, apiKey, region string, maxResults int) ([]Video, error) {
	params := url.Values{}
	params.Set("part", "snippet,statistics")
	params.Set("chart", "mostPopular")
	params.Set("regionCode", region)
	params.Set("maxResults", strconv.Itoa(maxResults))
	params.Set("key", apiKey)

	var body videoListResponse
	if err := c.get(ctx, "videos", params, &body); err != nil {
		return nil, err
	}

	videos := make([]Video, 0, len(body.Items))
	for _, it := range body.Items {
		videos = append(videos, toVideo(it))
	}
	log.Debug().Str("region", region).Int("count", len(videos)).Msg("fetched popular videos")
	return videos, nil
}

// FetchSubscriberCounts resolves subscriber counts for up to the first 50
// unique non-empty channel ids, in input order; the rest are dropped. A
// failed lookup degrades to an empty mapping instead of an error.
func (c *Client) FetchSubscriberCounts(ctx context.Context, apiKey string, channelIDs []string) SubscriberResult {
	ids := batchIDs(channelIDs, MaxChannelBatch)
	if len(ids) == 0 {
		return SubscriberResult{Counts: map[string]string{}}
	}

	params := url.Values{}
	params.Set("part", "statistics")
	params.Set("id", strings.Join(ids, ","))
	params.Set("key", apiKey)

	var body channelListResponse
	if err := c.get(ctx, "channels", params, &body); err != nil {
		log.Warn().Err(err).Int("channels", len(ids)).Msg("channel stats unavailable")
		return SubscriberResult{Counts: map[string]string{}, Degraded: true, Err: err}
	}

	counts := make(map[string]string, len(body.Items))
	for _, it := range body.Items {
		if it.ID == "" {
			continue
		}
		counts[it.ID] = it.Statistics.SubscriberCount
	}
	return SubscriberResult{Counts: counts}
}

func (c *Client) get(ctx context.Context, endpoint string, params url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("build %s request: %w", endpoint, err)
	}

	res, err := c.http.Do(req)
	if err != nil {
		metrics.UpstreamRequests.WithLabelValues(endpoint, "transport_error").Inc()
		return fmt.Errorf("%s request: %w", endpoint, err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		metrics.UpstreamRequests.WithLabelValues(endpoint, "http_error").Inc()
		return &UpstreamError{StatusCode: res.StatusCode, Message: errorMessage(res.Body)}
	}

	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		metrics.UpstreamRequests.WithLabelValues(endpoint, "decode_error").Inc()
		return fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	metrics.UpstreamRequests.WithLabelValues(endpoint, "ok").Inc()
	return nil
}

// errorMessage prefers the API's error.message and falls back to the raw
// body text.
func errorMessage(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, 64<<10))
	if err != nil {
		return err.Error()
	}
	var env errorResponse
	if err := json.Unmarshal(raw, &env); err == nil && env.Error.Message != "" {
		return env.Error.Message
	}
	return strings.TrimSpace(string(raw))
}

func toVideo(it videoItem) Video {
	v := Video{
		ID:           it.ID,
		Title:        it.Snippet.Title,
		ChannelTitle: it.Snippet.ChannelTitle,
		ChannelID:    it.Snippet.ChannelID,
		ViewCount:    it.Statistics.ViewCount,
		LikeCount:    it.Statistics.LikeCount,
		ThumbnailURL: pickThumbnail(it.Snippet.Thumbnails),
	}
	if v.Title == "" {
		v.Title = DefaultTitle
	}
	if v.ChannelTitle == "" {
		v.ChannelTitle = DefaultChannelTitle
	}
	if v.ID != "" {
		v.URL = WatchURL(v.ID)
	}
	return v
}

func pickThumbnail(thumbs map[string]*thumbnail) string {
	for _, name := range thumbnailPreference {
		if t := thumbs[name]; t != nil && t.URL != "" {
			return t.URL
		}
	}
	return ""
}

// WatchURL is the canonical watch page for a video id.
func WatchURL(videoID string) string {
	return watchURLPrefix + url.QueryEscape(videoID)
}

func batchIDs(ids []string, limit int) []string {
	out := make([]string, 0, min(len(ids), limit))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if len(out) == limit {
			break
		}
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// IsUpstream reports whether err came from a non-success API response.
func IsUpstream(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue)
}

package youtube

// Video is one normalized entry of a region's popular-videos ranking.
// Count fields keep the API's integer-like strings and are empty when the
// upstream omitted them.
type Video struct {
	ID              string `json:"id,omitempty"`
	Title           string `json:"title"`
	ChannelTitle    string `json:"channel_title"`
	ChannelID       string `json:"channel_id,omitempty"`
	ViewCount       string `json:"view_count,omitempty"`
	LikeCount       string `json:"like_count,omitempty"`
	SubscriberCount string `json:"subscriber_count,omitempty"`
	ThumbnailURL    string `json:"thumbnail_url,omitempty"`
	URL             string `json:"url,omitempty"`
}

// SubscriberResult is the outcome of a channel statistics lookup. A
// degraded result always carries an empty Counts map and the cause in Err.
type SubscriberResult struct {
	Counts   map[string]string
	Degraded bool
	Err      error
}

// Count returns the subscriber count for a channel, if resolved.
func (r SubscriberResult) Count(channelID string) (string, bool) {
	v, ok := r.Counts[channelID]
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// videoListResponse mirrors GET /videos.
type videoListResponse struct {
	Items []videoItem `json:"items"`
}

type videoItem struct {
	ID         string          `json:"id"`
	Snippet    videoSnippet    `json:"snippet"`
	Statistics videoStatistics `json:"statistics"`
}

type videoSnippet struct {
	Title        string                `json:"title"`
	ChannelTitle string                `json:"channelTitle"`
	ChannelID    string                `json:"channelId"`
	Thumbnails   map[string]*thumbnail `json:"thumbnails"`
}

type thumbnail struct {
	URL string `json:"url"`
}

type videoStatistics struct {
	ViewCount string `json:"viewCount"`
	LikeCount string `json:"likeCount"`
}

// channelListResponse mirrors GET /channels.
type channelListResponse struct {
	Items []struct {
		ID         string `json:"id"`
		Statistics struct {
			SubscriberCount string `json:"subscriberCount"`
		} `json:"statistics"`
	} `json:"items"`
}

// errorResponse is the API's error envelope.
type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

package feed

import (
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/feeds"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/roniherschmann/trendboard/internal/youtube"
)

// Render builds an Atom feed of a region's ranking. Videos without an id
// have no watch page and are skipped.
func Render(baseURL, region string, videos []youtube.Video, now time.Time) (string, error) {
	self := strings.TrimRight(baseURL, "/") + "/feed/" + region
	f := &feeds.Feed{
		Title:       fmt.Sprintf("Popular videos (%s)", region),
		Description: "Most popular videos for " + region + ", refreshed at most every few minutes",
		Link:        &feeds.Link{Href: self, Rel: "self", Type: "application/atom+xml"},
		Id:          "tag:trendboard," + now.UTC().Format("2006") + ":feed:" + region,
		Created:     now,
		Updated:     now,
	}

	for rank, v := range videos {
		if v.ID == "" {
			continue
		}
		f.Items = append(f.Items, &feeds.Item{
			Title:       fmt.Sprintf("%d. %s", rank+1, v.Title),
			Link:        &feeds.Link{Href: v.URL, Rel: "alternate", Type: "text/html"},
			Id:          v.URL,
			Author:      &feeds.Author{Name: v.ChannelTitle},
			Description: describe(v),
			Created:     now,
		})
	}

	return f.ToAtom()
}

func describe(v youtube.Video) string {
	var b strings.Builder
	if v.ThumbnailURL != "" {
		fmt.Fprintf(&b, `<p><img src="%s" alt="" loading="lazy"></p>`, html.EscapeString(v.ThumbnailURL))
	}
	fmt.Fprintf(&b, "<p>Views: %s · Likes: %s · Subscribers: %s</p>",
		FormatCount(v.ViewCount), FormatCount(v.LikeCount), FormatCount(v.SubscriberCount))
	return b.String()
}

var printer = message.NewPrinter(language.English)

// FormatCount renders an integer-like string with thousands separators,
// or "—" when it is missing or not a number.
func FormatCount(s string) string {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return "—"
	}
	return printer.Sprintf("%d", n)
}

package eventlog

import (
	"database/sql"
	"fmt"
	"time"
)

// TimeLayout is the on-disk timestamp format: ISO 8601, seconds, UTC.
const TimeLayout = time.RFC3339

const (
	StreamVisits = "visits"
	StreamClicks = "clicks"
)

// VisitEvent is one finished general-user session. DurationSec is invalid
// only for rows read back from a store holding a malformed value.
type VisitEvent struct {
	VisitID     string
	UserName    string
	StartTime   time.Time
	EndTime     time.Time
	DurationSec sql.NullInt64
}

// NewVisit builds a completed visit row. Times are truncated to whole
// seconds and a clock that went backwards yields a zero duration.
func NewVisit(visitID, user string, start, end time.Time) VisitEvent {
	start = start.UTC().Truncate(time.Second)
	end = end.UTC().Truncate(time.Second)
	if end.Before(start) {
		end = start
	}
	return VisitEvent{
		VisitID:     visitID,
		UserName:    user,
		StartTime:   start,
		EndTime:     end,
		DurationSec: sql.NullInt64{Int64: int64(end.Sub(start) / time.Second), Valid: true},
	}
}

type ClickEvent struct {
	VisitID      string
	UserName     string
	Timestamp    time.Time
	VideoID      string
	Title        string
	ChannelTitle string
	URL          string
}

// Store is an append-only log of visits and clicks. Rows are never
// updated or deleted.
type Store interface {
	AppendVisit(ev VisitEvent) error
	AppendClick(ev ClickEvent) error
	ReadVisits() ([]VisitEvent, error)
	ReadClicks() ([]ClickEvent, error)
	Close() error
}

// LogWriteError wraps a failed append.
type LogWriteError struct {
	Stream string
	Err    error
}

func (e *LogWriteError) Error() string {
	return fmt.Sprintf("append %s: %v", e.Stream, e.Err)
}

func (e *LogWriteError) Unwrap() error { return e.Err }

func validateVisit(ev VisitEvent) error {
	if ev.StartTime.IsZero() || ev.EndTime.IsZero() {
		return fmt.Errorf("visit %s: start and end time are required", ev.VisitID)
	}
	if !ev.DurationSec.Valid || ev.DurationSec.Int64 < 0 {
		return fmt.Errorf("visit %s: duration must be a non-negative number of seconds", ev.VisitID)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(TimeLayout)
}

// parseTime returns the zero time for malformed values so one bad row
// does not hide the rest of the log.
func parseTime(s string) time.Time {
	t, err := time.Parse(TimeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

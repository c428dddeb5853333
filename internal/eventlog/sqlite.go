package eventlog

import (
	"database/sql"
	"fmt"
	"strconv"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roniherschmann/trendboard/internal/metrics"
)

// SQLite stores both streams as tables. Durations are kept as text so a
// malformed value survives a round trip the same way it would in CSV.
type SQLite struct {
	db *sql.DB
}

func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{db: db}
}

// OpenSQLite opens dsn with the sqlite3 driver and migrates the schema.
func OpenSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer keeps appends ordered and avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if err := Migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return NewSQLite(db), nil
}

func (s *SQLite) AppendVisit(ev VisitEvent) error {
	if err := validateVisit(ev); err != nil {
		return s.fail(StreamVisits, err)
	}
	_, err := s.db.Exec(`INSERT INTO visits(visit_id, user_name, start_time, end_time, duration_sec) VALUES(?, ?, ?, ?, ?)`,
		ev.VisitID, ev.UserName, formatTime(ev.StartTime), formatTime(ev.EndTime), strconv.FormatInt(ev.DurationSec.Int64, 10))
	if err != nil {
		return s.fail(StreamVisits, err)
	}
	metrics.EventsAppended.WithLabelValues(StreamVisits).Inc()
	return nil
}

func (s *SQLite) AppendClick(ev ClickEvent) error {
	_, err := s.db.Exec(`INSERT INTO clicks(visit_id, user_name, ts, video_id, title, channel_title, url) VALUES(?, ?, ?, ?, ?, ?, ?)`,
		ev.VisitID, ev.UserName, formatTime(ev.Timestamp), ev.VideoID, ev.Title, ev.ChannelTitle, ev.URL)
	if err != nil {
		return s.fail(StreamClicks, err)
	}
	metrics.EventsAppended.WithLabelValues(StreamClicks).Inc()
	return nil
}

func (s *SQLite) fail(stream string, err error) error {
	metrics.EventWriteErrors.WithLabelValues(stream).Inc()
	return &LogWriteError{Stream: stream, Err: err}
}

func (s *SQLite) ReadVisits() ([]VisitEvent, error) {
	rows, err := s.db.Query(`SELECT visit_id, user_name, start_time, end_time, duration_sec FROM visits ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []VisitEvent
	for rows.Next() {
		var ev VisitEvent
		var start, end, dur string
		if err := rows.Scan(&ev.VisitID, &ev.UserName, &start, &end, &dur); err != nil {
			return nil, err
		}
		ev.StartTime = parseTime(start)
		ev.EndTime = parseTime(end)
		ev.DurationSec = parseDuration(dur)
		res = append(res, ev)
	}
	return res, rows.Err()
}

func (s *SQLite) ReadClicks() ([]ClickEvent, error) {
	rows, err := s.db.Query(`SELECT visit_id, user_name, ts, video_id, title, channel_title, url FROM clicks ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []ClickEvent
	for rows.Next() {
		var ev ClickEvent
		var ts string
		if err := rows.Scan(&ev.VisitID, &ev.UserName, &ts, &ev.VideoID, &ev.Title, &ev.ChannelTitle, &ev.URL); err != nil {
			return nil, err
		}
		ev.Timestamp = parseTime(ts)
		res = append(res, ev)
	}
	return res, rows.Err()
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

// Migrate ensures schema exists
func Migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS visits (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			visit_id TEXT NOT NULL,
			user_name TEXT NOT NULL,
			start_time TEXT NOT NULL,
			end_time TEXT NOT NULL,
			duration_sec TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_visits_user ON visits(user_name);`,
		`CREATE TABLE IF NOT EXISTS clicks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			visit_id TEXT NOT NULL,
			user_name TEXT NOT NULL,
			ts TEXT NOT NULL,
			video_id TEXT,
			title TEXT,
			channel_title TEXT,
			url TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_clicks_video_ts ON clicks(video_id, ts);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

package eventlog

import (
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/roniherschmann/trendboard/internal/metrics"
)

var (
	VisitColumns = []string{"visit_id", "user_name", "start_time", "end_time", "duration_sec"}
	ClickColumns = []string{"visit_id", "user_name", "timestamp", "video_id", "title", "channel_title", "url"}
)

// CSV keeps each stream in its own comma-separated file under dir. Writes
// are serialized within the process only.
type CSV struct {
	dir string
	mu  sync.Mutex
}

func NewCSV(dir string) *CSV {
	return &CSV{dir: dir}
}

func (s *CSV) VisitsPath() string { return filepath.Join(s.dir, StreamVisits+".csv") }
func (s *CSV) ClicksPath() string { return filepath.Join(s.dir, StreamClicks+".csv") }

func (s *CSV) AppendVisit(ev VisitEvent) error {
	if err := validateVisit(ev); err != nil {
		return s.fail(StreamVisits, err)
	}
	row := []string{
		ev.VisitID,
		ev.UserName,
		formatTime(ev.StartTime),
		formatTime(ev.EndTime),
		strconv.FormatInt(ev.DurationSec.Int64, 10),
	}
	if err := s.appendRow(s.VisitsPath(), VisitColumns, row); err != nil {
		return s.fail(StreamVisits, err)
	}
	metrics.EventsAppended.WithLabelValues(StreamVisits).Inc()
	return nil
}

func (s *CSV) AppendClick(ev ClickEvent) error {
	row := []string{
		ev.VisitID,
		ev.UserName,
		formatTime(ev.Timestamp),
		ev.VideoID,
		ev.Title,
		ev.ChannelTitle,
		ev.URL,
	}
	if err := s.appendRow(s.ClicksPath(), ClickColumns, row); err != nil {
		return s.fail(StreamClicks, err)
	}
	metrics.EventsAppended.WithLabelValues(StreamClicks).Inc()
	return nil
}

func (s *CSV) fail(stream string, err error) error {
	metrics.EventWriteErrors.WithLabelValues(stream).Inc()
	log.Error().Err(err).Str("stream", stream).Msg("append event")
	return &LogWriteError{Stream: stream, Err: err}
}

// appendRow writes the header first when the file is new or empty, then
// exactly one data row, and syncs before returning.
func (s *CSV) appendRow(path string, header, row []string) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	// A torn last row must not swallow the new one.
	if info.Size() > 0 {
		last := make([]byte, 1)
		if _, err := f.ReadAt(last, info.Size()-1); err != nil {
			return err
		}
		if last[0] != '\n' {
			log.Warn().Str("path", path).Msg("event log did not end in a newline")
			if _, err := f.Write([]byte{'\n'}); err != nil {
				return err
			}
		}
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(header); err != nil {
			return err
		}
	}
	if err := w.Write(row); err != nil {
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Sync()
}

func (s *CSV) ReadVisits() ([]VisitEvent, error) {
	records, err := s.readAll(s.VisitsPath(), len(VisitColumns))
	if err != nil {
		return nil, err
	}
	out := make([]VisitEvent, 0, len(records))
	for _, r := range records {
		out = append(out, VisitEvent{
			VisitID:     r[0],
			UserName:    r[1],
			StartTime:   parseTime(r[2]),
			EndTime:     parseTime(r[3]),
			DurationSec: parseDuration(r[4]),
		})
	}
	return out, nil
}

func (s *CSV) ReadClicks() ([]ClickEvent, error) {
	records, err := s.readAll(s.ClicksPath(), len(ClickColumns))
	if err != nil {
		return nil, err
	}
	out := make([]ClickEvent, 0, len(records))
	for _, r := range records {
		out = append(out, ClickEvent{
			VisitID:      r[0],
			UserName:     r[1],
			Timestamp:    parseTime(r[2]),
			VideoID:      r[3],
			Title:        r[4],
			ChannelTitle: r[5],
			URL:          r[6],
		})
	}
	return out, nil
}

// readAll loads every data row of path, padded to width columns. A
// missing file is an empty log. Stray quotes are read literally and rows
// that still fail to parse are skipped.
func (s *CSV) readAll(path string, width int) ([][]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var rows [][]string
	first := true
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			log.Warn().Err(err).Str("path", path).Int("line", perr.Line).Msg("skipping malformed event row")
			first = false
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
		}
		if first {
			first = false
			continue
		}
		if len(rec) < width {
			rec = append(rec, make([]string, width-len(rec))...)
		}
		rows = append(rows, rec)
	}
	return rows, nil
}

func (s *CSV) Close() error { return nil }

func parseDuration(v string) sql.NullInt64 {
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: n, Valid: true}
}

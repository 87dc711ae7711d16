// Package history is the append-only learning event log. Events go to one
// JSONL file per calendar day (history/YYYY-MM-DD.jsonl) and are only ever
// appended; retention removes whole day files, optionally keeping a zstd
// compressed copy under history/archive.
package history

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"github.com/steveyegge/llkb/internal/storage"
	"github.com/steveyegge/llkb/internal/types"
)

const (
	dateLayout = "2006-01-02"
	fileExt    = ".jsonl"
	archiveExt = ".jsonl.zst"
	// ArchiveDir holds compressed copies of pruned days.
	ArchiveDir = "archive"
)

// Log appends and reads history events.
type Log struct {
	dir    string
	now    func() time.Time
	logger *slog.Logger
	mu     sync.Mutex
}

// Option configures a Log.
type Option func(*Log)

// WithClock sets the clock used for timestamps and retention.
func WithClock(now func() time.Time) Option {
	return func(l *Log) { l.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Log) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// New returns a log writing under dir.
func New(dir string, opts ...Option) *Log {
	l := &Log{dir: dir, now: time.Now, logger: slog.Default()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Dir returns the history directory.
func (l *Log) Dir() string { return l.dir }

// PathFor returns the file holding events of the given day (UTC).
func (l *Log) PathFor(day time.Time) string {
	return filepath.Join(l.dir, day.UTC().Format(dateLayout)+fileExt)
}

// Append writes one event as a single line. Missing id and timestamp are
// filled in. The file is opened in append mode; nothing is read back.
func (l *Log) Append(e types.HistoryEvent) (types.HistoryEvent, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = l.now().UTC()
	}
	if err := e.Validate(); err != nil {
		return e, fmt.Errorf("invalid history event: %w", err)
	}

	line, err := json.Marshal(e)
	if err != nil {
		return e, fmt.Errorf("failed to marshal history event: %w", err)
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(l.dir, 0755); err != nil {
		return e, fmt.Errorf("failed to create history directory: %w", err)
	}
	path := l.PathFor(e.Timestamp)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return e, fmt.Errorf("failed to open %s: %w", path, err)
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return e, fmt.Errorf("failed to append to %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return e, fmt.Errorf("failed to close %s: %w", path, err)
	}
	return e, nil
}

// Days lists the days that have a history file, oldest first.
func (l *Log) Days() ([]time.Time, error) {
	entries, err := os.ReadDir(l.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	var days []time.Time
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, fileExt) {
			continue
		}
		day, err := time.Parse(dateLayout, strings.TrimSuffix(name, fileExt))
		if err != nil {
			continue
		}
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	return days, nil
}

// Read returns the events of one day. Lines that fail to decode are skipped
// and logged.
func (l *Log) Read(day time.Time) ([]types.HistoryEvent, error) {
	f, err := os.Open(l.PathFor(day))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open history: %w", err)
	}
	defer f.Close()
	return l.decode(f, f.Name())
}

// ReadRange returns events from every day in [from, to], in file order.
func (l *Log) ReadRange(from, to time.Time) ([]types.HistoryEvent, error) {
	days, err := l.Days()
	if err != nil {
		return nil, err
	}
	start := truncateDay(from)
	end := truncateDay(to)
	var out []types.HistoryEvent
	for _, day := range days {
		if day.Before(start) || day.After(end) {
			continue
		}
		events, err := l.Read(day)
		if err != nil {
			return out, err
		}
		out = append(out, events...)
	}
	return out, nil
}

func (l *Log) decode(r io.Reader, name string) ([]types.HistoryEvent, error) {
	var out []types.HistoryEvent
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var e types.HistoryEvent
		if err := json.Unmarshal(line, &e); err != nil {
			l.logger.Debug("skipping malformed history line", "file", name, "line", lineNo, "error", err)
			continue
		}
		out = append(out, e)
	}
	if err := scanner.Err(); err != nil {
		return out, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return out, nil
}

// PruneResult reports what Prune removed.
type PruneResult struct {
	Removed  []string `json:"removed"`
	Archived []string `json:"archived"`
	Kept     int      `json:"kept"`
}

// Prune deletes day files older than retentionDays. With archive set each
// file is first compressed to archive/YYYY-MM-DD.jsonl.zst; a file that
// fails to archive is kept.
func (l *Log) Prune(retentionDays int, archive bool) (*PruneResult, error) {
	if retentionDays <= 0 {
		return nil, fmt.Errorf("retention days must be positive (got %d)", retentionDays)
	}
	days, err := l.Days()
	if err != nil {
		return nil, err
	}
	cutoff := truncateDay(l.now()).AddDate(0, 0, -retentionDays)

	l.mu.Lock()
	defer l.mu.Unlock()

	result := &PruneResult{}
	for _, day := range days {
		if !day.Before(cutoff) {
			result.Kept++
			continue
		}
		path := l.PathFor(day)
		if archive {
			dst, err := l.archiveFile(path, day)
			if err != nil {
				l.logger.Warn("failed to archive history day, keeping it", "path", path, "error", err)
				result.Kept++
				continue
			}
			result.Archived = append(result.Archived, dst)
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return result, fmt.Errorf("failed to remove %s: %w", path, err)
		}
		result.Removed = append(result.Removed, path)
	}
	return result, nil
}

func (l *Log) archiveFile(path string, day time.Time) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	dst := filepath.Join(l.dir, ArchiveDir, day.UTC().Format(dateLayout)+archiveExt)

	var compressed bytes.Buffer
	encoder, err := zstd.NewWriter(&compressed)
	if err != nil {
		return "", fmt.Errorf("creating zstd encoder: %w", err)
	}
	if _, err := encoder.Write(data); err != nil {
		encoder.Close()
		return "", fmt.Errorf("compressing: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return "", fmt.Errorf("closing encoder: %w", err)
	}

	if err := storage.WriteFileAtomic(dst, compressed.Bytes(), 0644); err != nil {
		return "", err
	}
	return dst, nil
}

// ReadArchive decodes the events of a compressed day file.
func (l *Log) ReadArchive(path string) ([]types.HistoryEvent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	decoder, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}
	defer decoder.Close()
	return l.decode(decoder, path)
}

// Oldest returns the oldest day with a history file, or the zero time.
func (l *Log) Oldest() (time.Time, error) {
	days, err := l.Days()
	if err != nil || len(days) == 0 {
		return time.Time{}, err
	}
	return days[0], nil
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

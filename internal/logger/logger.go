// Package logger writes the append-only JSONL audit trail of command
// decisions.
package logger

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/remote-claude/rcguard/internal/redact"
)

// ErrAuditWrite is returned when a record could not be persisted after all
// retries. The decision it describes stands.
var ErrAuditWrite = errors.New("audit write failed")

// AuditRecord is one line of the audit log.
type AuditRecord struct {
	ID                 string `json:"id"`
	Timestamp          string `json:"timestamp"`
	SessionID          string `json:"session_id"`
	ToolName           string `json:"tool_name"`
	WorkingDirectory   string `json:"working_directory"`
	Command            string `json:"command"`
	Decision           string `json:"decision"`
	Category           string `json:"category"`
	RuleID             string `json:"rule_id"`
	Reason             string `json:"reason"`
	Segment            int    `json:"segment"`
	CatalogVersion     string `json:"catalog_version"`
	CatalogFingerprint string `json:"catalog_fingerprint"`
	EngineVersion      string `json:"engine_version"`
	PID                int    `json:"pid"`
	Hostname           string `json:"hostname"`
	DurationUS         int64  `json:"duration_us"`
}

// Config controls where and how records are written.
type Config struct {
	Path          string
	MaxSizeMB     int
	MaxBackups    int
	Fsync         bool
	Redact        bool
	RetryAttempts int
	RetryBackoff  time.Duration
}

const (
	defaultMaxSizeMB  = 10
	defaultMaxBackups = 5
	maxLineBytes      = 4 << 20
)

// AuditLogger appends records under an in-process mutex and an advisory
// lock on a sidecar file, so concurrent hook processes never interleave
// partial lines and rotation never races a writer.
type AuditLogger struct {
	cfg      Config
	log      *slog.Logger
	lockPath string
	maxBytes int64

	mu     sync.Mutex
	closed bool
}

// New prepares the audit directory (0700) and file (0600).
func New(cfg Config, log *slog.Logger) (*AuditLogger, error) {
	if cfg.Path == "" {
		return nil, errors.New("audit log path is required")
	}
	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = defaultMaxSizeMB
	}
	if cfg.MaxBackups < 0 {
		cfg.MaxBackups = defaultMaxBackups
	}
	if cfg.RetryAttempts < 0 {
		cfg.RetryAttempts = 0
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0700); err != nil {
		return nil, fmt.Errorf("create audit directory: %w", err)
	}
	f, err := os.OpenFile(cfg.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	_ = f.Close()

	return &AuditLogger{
		cfg:      cfg,
		log:      log,
		lockPath: cfg.Path + ".lock",
		maxBytes: int64(cfg.MaxSizeMB) << 20,
	}, nil
}

// Path is the active audit file.
func (l *AuditLogger) Path() string { return l.cfg.Path }

// Append writes one record. ID and Timestamp are filled in when empty.
// The command and reason are redacted first when redaction is enabled.
func (l *AuditLogger) Append(rec AuditRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp == "" {
		rec.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if l.cfg.Redact {
		rec.Command = redact.Redact(rec.Command)
		rec.Reason = redact.Redact(rec.Reason)
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("%w: encode record: %v", ErrAuditWrite, err)
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return fmt.Errorf("%w: logger is closed", ErrAuditWrite)
	}

	var lastErr error
	for attempt := 0; attempt <= l.cfg.RetryAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(l.cfg.RetryBackoff * time.Duration(attempt))
		}
		if lastErr = l.write(data); lastErr == nil {
			return nil
		}
		l.log.Warn("audit write failed", "attempt", attempt+1, "path", l.cfg.Path, "error", lastErr)
	}
	return fmt.Errorf("%w: %s: %v", ErrAuditWrite, l.cfg.Path, lastErr)
}

// fileWrite writes one encoded record.
var fileWrite = (*os.File).Write

func (l *AuditLogger) write(data []byte) error {
	unlock, err := lockFile(l.lockPath)
	if err != nil {
		return fmt.Errorf("lock: %w", err)
	}
	defer unlock()

	if err := l.rotateIfNeeded(int64(len(data))); err != nil {
		return fmt.Errorf("rotate: %w", err)
	}

	f, err := os.OpenFile(l.cfg.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	start, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		_ = f.Close()
		return err
	}
	n, err := fileWrite(f, data)
	if err == nil && n < len(data) {
		err = io.ErrShortWrite
	}
	if err == nil && l.cfg.Fsync {
		err = f.Sync()
	}
	if err != nil {
		// Cut any partial line so a retry appends onto a whole record.
		if terr := f.Truncate(start); terr != nil {
			l.log.Warn("audit truncate failed", "path", l.cfg.Path, "size", start, "error", terr)
		}
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return err
}

// rotateIfNeeded shifts audit.jsonl to audit.jsonl.1, .1 to .2 and so on,
// dropping the oldest beyond MaxBackups. Called with the file lock held.
func (l *AuditLogger) rotateIfNeeded(incoming int64) error {
	info, err := os.Stat(l.cfg.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if info.Size() == 0 || info.Size()+incoming <= l.maxBytes {
		return nil
	}

	if l.cfg.MaxBackups == 0 {
		return os.Remove(l.cfg.Path)
	}
	oldest := backupName(l.cfg.Path, l.cfg.MaxBackups)
	if err := os.Remove(oldest); err != nil && !os.IsNotExist(err) {
		return err
	}
	for i := l.cfg.MaxBackups - 1; i >= 1; i-- {
		err := os.Rename(backupName(l.cfg.Path, i), backupName(l.cfg.Path, i+1))
		if err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	if err := os.Rename(l.cfg.Path, backupName(l.cfg.Path, 1)); err != nil {
		return err
	}
	l.log.Debug("audit log rotated", "path", l.cfg.Path, "size", info.Size())
	return nil
}

func backupName(path string, n int) string {
	return path + "." + strconv.Itoa(n)
}

// Close stops further appends. Records are already on disk.
func (l *AuditLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

// ReadRecords returns the records of path and its rotated backups, oldest
// first. Lines that are not valid records are skipped.
func ReadRecords(path string) ([]AuditRecord, error) {
	files := append(backups(path), path)

	var out []AuditRecord
	for _, name := range files {
		recs, err := readFile(name)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		out = append(out, recs...)
	}
	return out, nil
}

// backups lists rotated files from oldest (highest suffix) to newest.
func backups(path string) []string {
	matches, _ := filepath.Glob(path + ".*")
	type numbered struct {
		name string
		n    int
	}
	var found []numbered
	for _, m := range matches {
		n, err := strconv.Atoi(strings.TrimPrefix(m, path+"."))
		if err != nil || n < 1 {
			continue
		}
		found = append(found, numbered{m, n})
	}
	sort.Slice(found, func(i, j int) bool { return found[i].n > found[j].n })
	out := make([]string, 0, len(found))
	for _, f := range found {
		out = append(out, f.name)
	}
	return out
}

func readFile(name string) ([]AuditRecord, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []AuditRecord
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec AuditRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out, sc.Err()
}

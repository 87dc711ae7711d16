package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// LockInfo is the content of a <document>.lock file.
type LockInfo struct {
	Holder     string    `json:"holder"`
	PID        int       `json:"pid"`
	Hostname   string    `json:"hostname"`
	Token      string    `json:"token"`
	AcquiredAt time.Time `json:"acquiredAt"`
}

// LockOptions tune lock acquisition.
type LockOptions struct {
	StaleAfter    time.Duration
	RetryInterval time.Duration
	MaxWait       time.Duration
	Holder        string
	Logger        *slog.Logger
	Now           func() time.Time
}

func (o LockOptions) withDefaults() LockOptions {
	if o.StaleAfter <= 0 {
		o.StaleAfter = 30 * time.Second
	}
	if o.RetryInterval <= 0 {
		o.RetryInterval = 50 * time.Millisecond
	}
	if o.MaxWait <= 0 {
		o.MaxWait = 5 * time.Second
	}
	if o.Holder == "" {
		o.Holder = "llkb"
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Lock is a held advisory lock. Release it with defer.
type Lock struct {
	path  string
	token string
	// Waited is how long acquisition took.
	Waited time.Duration
}

// LockPath returns the lock file path guarding a document.
func LockPath(docPath string) string {
	return docPath + ".lock"
}

// AcquireLock creates the lock file next to docPath exclusively. A lock
// older than StaleAfter, or held by a dead process on this host, is treated
// as abandoned and seized. Acquisition retries every RetryInterval until
// MaxWait elapses, then fails with ErrLockTimeout.
func AcquireLock(ctx context.Context, docPath string, opts LockOptions) (*Lock, error) {
	opts = opts.withDefaults()
	lockPath := LockPath(docPath)

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	info := LockInfo{
		Holder:   opts.Holder,
		PID:      os.Getpid(),
		Hostname: hostname,
		Token:    uuid.NewString(),
	}

	ctx, cancel := context.WithTimeout(ctx, opts.MaxWait)
	defer cancel()
	limiter := rate.NewLimiter(rate.Every(opts.RetryInterval), 1)
	start := time.Now()

	for {
		info.AcquiredAt = opts.Now()
		err := createLockFile(lockPath, info)
		if err == nil {
			return &Lock{path: lockPath, token: info.Token, Waited: time.Since(start)}, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, newError(CodeWriteFailed, "lock", lockPath, err)
		}

		if reason, observed := abandoned(lockPath, opts); reason != "" {
			opts.Logger.Warn("reclaiming abandoned lock", "path", lockPath, "reason", reason)
			if err := reclaim(lockPath, observed, opts.Logger); err != nil {
				return nil, newError(CodeWriteFailed, "lock", lockPath, err)
			}
			continue
		}

		if err := limiter.Wait(ctx); err != nil {
			holder := describeHolder(lockPath)
			return nil, errorf(CodeLockTimeout, "lock", lockPath,
				"not acquired within %v (held by %s)", opts.MaxWait, holder)
		}
	}
}

// Release removes the lock file if this process still owns it.
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}
	data, err := os.ReadFile(l.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read lock %s: %w", l.path, err)
	}
	var info LockInfo
	if json.Unmarshal(data, &info) == nil && info.Token != l.token {
		// seized by another process after we went stale
		return nil
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock %s: %w", l.path, err)
	}
	return nil
}

func createLockFile(path string, info LockInfo) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		f.Close()
		_ = os.Remove(path)
		return fmt.Errorf("failed to marshal lock: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		_ = os.Remove(path)
		return fmt.Errorf("failed to write lock: %w", err)
	}
	return f.Close()
}

// abandoned returns a non-empty reason when the lock at path may be seized,
// along with the file it judged.
func abandoned(path string, opts LockOptions) (string, fs.FileInfo) {
	st, err := os.Stat(path)
	if err != nil {
		// vanished between create and stat; the next attempt decides
		return "", nil
	}
	if age := opts.Now().Sub(st.ModTime()); age > opts.StaleAfter {
		return fmt.Sprintf("stale (age %v)", age.Round(time.Millisecond)), st
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil
	}
	var info LockInfo
	if json.Unmarshal(data, &info) != nil {
		return "", nil
	}
	if info.PID > 0 && !isProcessAlive(info.PID, info.Hostname) {
		return fmt.Sprintf("holder process %d is gone", info.PID), st
	}
	return "", nil
}

// reclaim removes the abandoned lock file observed at path. The file is
// renamed aside first so that a lock created by another process after the
// observation is never deleted; such a lock is linked back into place.
func reclaim(path string, observed fs.FileInfo, logger *slog.Logger) error {
	aside := fmt.Sprintf("%s.%s.stale", path, uuid.NewString())
	if err := os.Rename(path, aside); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer func() { _ = os.Remove(aside) }()

	st, err := os.Stat(aside)
	if err != nil || (os.SameFile(observed, st) && st.ModTime().Equal(observed.ModTime())) {
		return nil
	}
	// another process reclaimed first and now holds a fresh lock
	if err := os.Link(aside, path); err != nil {
		logger.Warn("failed to restore lock moved aside", "path", path, "error", err)
	}
	return nil
}

func describeHolder(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return "unknown"
	}
	var info LockInfo
	if json.Unmarshal(data, &info) != nil {
		return "unknown"
	}
	return fmt.Sprintf("%s pid %d on %s since %s", info.Holder, info.PID, info.Hostname,
		info.AcquiredAt.Format(time.RFC3339))
}

// isProcessAlive checks if a process with the given PID exists on the given hostname.
// Locks from other hosts are assumed alive.
func isProcessAlive(pid int, hostname string) bool {
	currentHost, err := os.Hostname()
	if err != nil {
		return true
	}
	if !strings.EqualFold(hostname, currentHost) {
		return true
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// Signal 0 probes for existence
	err = process.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	// EPERM: exists, owned by someone else
	if errors.Is(err, syscall.EPERM) {
		return true
	}
	return false
}

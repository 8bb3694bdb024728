package jsonfile

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	ps "github.com/mitchellh/go-ps"

	"github.com/julianstephens/tipje/internal/constants"
	"github.com/julianstephens/tipje/internal/logger"
	"github.com/julianstephens/tipje/internal/storage"
)

var (
	findProcessFunc = ps.FindProcess
	nowFunc         = time.Now
)

var errMalformedLock = errors.New("lockfile is malformed")

// lockfile is an exclusive cross-process lock: a file created with O_EXCL
// holding "pid|unix-nanos" of its owner.
type lockfile struct {
	path string
}

func parseLock(content string) (pid int, acquired time.Time, err error) {
	parts := strings.Split(strings.TrimSpace(content), "|")
	if len(parts) != 2 {
		return 0, time.Time{}, errMalformedLock
	}
	pid, err = strconv.Atoi(parts[0])
	if err != nil || pid <= 0 {
		return 0, time.Time{}, fmt.Errorf("%w: invalid process ID", errMalformedLock)
	}
	nanos, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("%w: invalid timestamp", errMalformedLock)
	}
	return pid, time.Unix(0, nanos), nil
}

// isStale reports whether the lock at l.path may be broken
func (l *lockfile) isStale() (bool, string) {
	content, err := os.ReadFile(l.path)
	if err != nil {
		// vanished between the create attempt and now
		return false, ""
	}
	pid, acquired, err := parseLock(string(content))
	if err != nil {
		// the owner may not have written its pid yet
		info, serr := os.Stat(l.path)
		if serr != nil {
			return false, ""
		}
		if age := nowFunc().Sub(info.ModTime()); age > constants.MalformedLockGrace {
			return true, fmt.Sprintf("%v for %s", err, age.Round(time.Millisecond))
		}
		return false, ""
	}
	if pid == os.Getpid() {
		// this process serializes through a mutex, so a lock with our pid is left over
		return true, "left over by this process"
	}
	process, err := findProcessFunc(pid)
	if err != nil || process == nil {
		return true, fmt.Sprintf("owner %d is not running", pid)
	}
	if nowFunc().Sub(acquired) > constants.StaleLockMaxAge {
		return true, fmt.Sprintf("held by %s (%d) since %s", process.Executable(), pid, acquired.Format(time.RFC3339))
	}
	return false, ""
}

func (l *lockfile) acquire() error {
	for attempt := 0; attempt < constants.LockRetries; attempt++ {
		f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
		if err == nil {
			_, werr := fmt.Fprintf(f, "%d|%d", os.Getpid(), nowFunc().UnixNano())
			cerr := f.Close()
			if werr != nil || cerr != nil {
				_ = os.Remove(l.path)
				return fmt.Errorf("%w: failed to write lockfile: %v", storage.ErrUnavailable, errors.Join(werr, cerr))
			}
			return nil
		}
		if !os.IsExist(err) {
			return fmt.Errorf("%w: %v", storage.ErrUnavailable, err)
		}

		if stale, reason := l.isStale(); stale {
			logger.Warn("Breaking stale lock", "path", l.path, "reason", reason)
			if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("%w: failed to remove stale lock: %v", storage.ErrUnavailable, err)
			}
			continue
		}
		time.Sleep(constants.LockRetryDelay)
	}
	return fmt.Errorf("%w: %s is locked by another process", storage.ErrUnavailable, l.path)
}

func (l *lockfile) release() {
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		logger.Warn("Failed to release lock", "path", l.path, "error", err)
	}
}

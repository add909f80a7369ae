package store

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// StaleLockThreshold is the age after which a leftover writer lock is ignored.
const StaleLockThreshold = 10 * time.Minute

var ErrLockExists = errors.New("LCK_BUSY: another dxm operation holds the manifest lock")

// Lock serialises manifest and lockfile writers across processes.
type Lock struct {
	path  string
	token string
	file  *os.File
}

// AcquireLock takes the writer lock for the manifest directory root.
func AcquireLock(root string) (*Lock, error) {
	dir := StateRoot(root)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("LCK_DIR: %w", err)
	}
	path := filepath.Join(dir, "lock")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o600)
	if err != nil {
		if !os.IsExist(err) {
			return nil, fmt.Errorf("LCK_CREATE: %w", err)
		}
		if !isLockStale(path) {
			return nil, ErrLockExists
		}
		_ = os.Remove(path)
		file, err = os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o600)
		if err != nil {
			return nil, ErrLockExists
		}
	}
	token := uuid.NewString()
	if _, err := fmt.Fprintf(file, "pid=%d\ntoken=%s\ntimestamp=%s\n", os.Getpid(), token, time.Now().UTC().Format(time.RFC3339)); err != nil {
		file.Close()
		_ = os.Remove(path)
		return nil, fmt.Errorf("LCK_WRITE: %w", err)
	}
	return &Lock{path: path, token: token, file: file}, nil
}

// Release drops the lock. It is safe to call more than once.
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}
	if l.path != "" {
		path := l.path
		l.path = ""
		// A lock taken over as stale belongs to another writer now.
		if !l.owns(path) {
			return nil
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("LCK_RELEASE: %w", err)
		}
	}
	return nil
}

func (l *Lock) owns(path string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	return bytes.Contains(data, []byte("token="+l.token+"\n"))
}

func isLockStale(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return time.Since(info.ModTime()) > StaleLockThreshold
}

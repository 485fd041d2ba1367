// Package guard serializes load-mutate-save cycles on the shared document across
// goroutines and processes.
package guard

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/relaybots/relay/backend/go-services/internal/store"
	"github.com/relaybots/relay/backend/go-services/pkg/logger"
	"github.com/relaybots/relay/backend/go-services/pkg/metrics"
)

const (
	DefaultTimeout    = 5 * time.Second
	defaultRetryDelay = 10 * time.Millisecond
)

// LockTimeoutError reports that the exclusive store lock was not obtained in time.
type LockTimeoutError struct {
	Path    string
	Timeout time.Duration
	Err     error
}

func (e *LockTimeoutError) Error() string {
	return fmt.Sprintf("store lock %s not acquired within %s", e.Path, e.Timeout)
}

func (e *LockTimeoutError) Unwrap() error { return e.Err }

// Mutator edits the document in place. Returning an error aborts the cycle and
// nothing is written.
type Mutator func(doc *store.Document) error

// Guard owns the lock protocol for one backing file.
type Guard struct {
	store      *store.FileStore
	lockPath   string
	timeout    time.Duration
	retryDelay time.Duration
}

// New returns a guard for s. The lock lives in a sidecar "<path>.lock" file
// because Save replaces the data file's inode on every write.
func New(s *store.FileStore, timeout time.Duration) *Guard {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Guard{
		store:      s,
		lockPath:   s.Path() + ".lock",
		timeout:    timeout,
		retryDelay: defaultRetryDelay,
	}
}

// Store exposes the underlying document store.
func (g *Guard) Store() *store.FileStore { return g.store }

// Timeout is the configured lock acquisition bound.
func (g *Guard) Timeout() time.Duration { return g.timeout }

// LockPath is the sidecar lock file location.
func (g *Guard) LockPath() string { return g.lockPath }

// Snapshot loads the document without locking. The result may already be stale
// when the caller renders it.
func (g *Guard) Snapshot() (*store.Document, error) {
	return g.store.Load()
}

// WithDocument runs one exclusive mutation cycle: lock, load, fn, save, unlock.
func (g *Guard) WithDocument(ctx context.Context, fn Mutator) error {
	if err := os.MkdirAll(filepath.Dir(g.lockPath), 0o755); err != nil {
		return fmt.Errorf("create lock dir: %w", err)
	}

	// one handle per cycle: flock conflicts between open files, so goroutines in
	// this process exclude each other the same way separate processes do
	lock := flock.New(g.lockPath)
	lctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	ok, err := lock.TryLockContext(lctx, g.retryDelay)
	metrics.LockWait.Observe(time.Since(start).Seconds())
	if !ok {
		if err == nil || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			metrics.MutationCycles.WithLabelValues("lock_timeout").Inc()
			logger.Warnf("store lock %s not acquired after %s", g.lockPath, time.Since(start))
			return &LockTimeoutError{Path: g.lockPath, Timeout: g.timeout, Err: err}
		}
		metrics.MutationCycles.WithLabelValues("error").Inc()
		return fmt.Errorf("acquire store lock: %w", err)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			logger.Errorf("release store lock %s: %v", g.lockPath, err)
		}
	}()

	doc, err := g.store.Load()
	if err != nil {
		metrics.MutationCycles.WithLabelValues("load_failed").Inc()
		return err
	}
	if err := fn(doc); err != nil {
		metrics.MutationCycles.WithLabelValues("aborted").Inc()
		return err
	}
	if err := g.store.Save(doc); err != nil {
		metrics.MutationCycles.WithLabelValues("error").Inc()
		return err
	}
	metrics.MutationCycles.WithLabelValues("ok").Inc()
	logger.Debugf("mutation cycle on %s done in %s", g.store.Path(), time.Since(start))
	return nil
}

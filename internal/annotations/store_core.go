package annotations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"

	"github.com/HaozheZhao/cua-annotation-tool/internal/logging"
	"github.com/HaozheZhao/cua-annotation-tool/internal/services"
)

const (
	DatabaseFile = "annotations.db"
	LockFile     = "annotations.lock"
)

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// Options configures Open.
type Options struct {
	StateDir string
	// Catalog validates task and step ids on every call. Nil disables the check.
	Catalog Catalog
	// Now overrides the clock used for updated_at stamps.
	Now func() time.Time
}

// Store manages annotation persistence backed by SQLite.
type Store struct {
	db      *sql.DB
	path    string
	lock    *flock.Flock
	catalog Catalog
	now     func() time.Time
	logger  *slog.Logger

	// mu serializes every write path.
	mu sync.Mutex
}

// Open initializes or connects to the annotation database and takes the
// state directory lock. A second Open on the same directory fails with a
// persistence error until the first Store is closed.
func Open(opts Options, logger *slog.Logger) (*Store, error) {
	dir := strings.TrimSpace(opts.StateDir)
	if dir == "" {
		return nil, services.Wrap(services.ErrConfiguration, "annotations", "open", "state directory not configured", nil)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, persistenceError("create state dir", err)
	}

	lockPath := filepath.Join(dir, LockFile)
	lock := flock.New(lockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, persistenceError("acquire state lock", err)
	}
	if !ok {
		return nil, services.Wrap(services.ErrPersistence, "annotations", "acquire state lock",
			fmt.Sprintf("%s is held by another annotator session", lockPath), nil)
	}

	dbPath := filepath.Join(dir, DatabaseFile)
	db, err := sql.Open("sqlite", sqliteDSN(dbPath))
	if err != nil {
		_ = lock.Unlock()
		return nil, persistenceError("open sqlite db", err)
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}
	store := &Store{
		db:      db,
		path:    dbPath,
		lock:    lock,
		catalog: opts.Catalog,
		now:     now,
		logger:  logging.NewComponentLogger(logger, "annotations"),
	}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		_ = lock.Unlock()
		return nil, persistenceError("init schema", err)
	}
	store.logger.Debug("annotation store opened", logging.String("db_path", dbPath))
	return store, nil
}

// sqliteDSN applies the pragmas on every pooled connection rather than only
// the first one.
func sqliteDSN(path string) string {
	q := url.Values{}
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "synchronous(FULL)")
	q.Add("_pragma", "busy_timeout(5000)")
	return path + "?" + q.Encode()
}

// Path returns the database file location.
func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// Close closes the database and releases the state directory lock.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	if err := s.db.Close(); err != nil {
		errs = append(errs, persistenceError("close sqlite db", err))
	}
	if s.lock != nil {
		if err := s.lock.Unlock(); err != nil {
			errs = append(errs, persistenceError("release state lock", err))
		}
	}
	return errors.Join(errs...)
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code()&0xff == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

// write runs fn inside one transaction under the write mutex, retrying the
// whole transaction when SQLite reports the database busy.
func (s *Store) write(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	ctx = ensureContext(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()
	err := retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if err := fn(tx); err != nil {
			_ = tx.Rollback()
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return persistenceError(op, err)
	}
	return nil
}

func (s *Store) timestamp() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}

func persistenceError(op string, err error) error {
	if errors.Is(err, services.ErrPersistence) {
		return err
	}
	return services.Wrap(services.ErrPersistence, "annotations", op, "", err)
}

func (s *Store) checkTask(taskID int, op string) error {
	if s.catalog == nil || s.catalog.Contains(taskID) {
		return nil
	}
	return &services.StepError{Marker: services.ErrUnknownTask, TaskID: taskID, Step: services.NoStep, Op: op}
}

func (s *Store) checkStep(ctx context.Context, taskID, step int, op string) error {
	if err := s.checkTask(taskID, op); err != nil {
		return err
	}
	if step < 0 {
		return &services.StepError{Marker: services.ErrUnknownStep, TaskID: taskID, Step: step, Op: op}
	}
	if s.catalog == nil {
		return nil
	}
	count, err := s.catalog.StepCount(ctx, taskID)
	if err != nil {
		return err
	}
	if step >= count {
		return &services.StepError{
			Marker: services.ErrUnknownStep,
			TaskID: taskID,
			Step:   step,
			Op:     op,
			Err:    fmt.Errorf("task has %d steps", count),
		}
	}
	return nil
}

func parseTimestamp(raw sql.NullString) time.Time {
	if !raw.Valid || raw.String == "" {
		return time.Time{}
	}
	ts, err := time.Parse(time.RFC3339Nano, raw.String)
	if err != nil {
		return time.Time{}
	}
	return ts
}

func nullableInt(v *int) any {
	if v == nil || *v == 0 {
		return nil
	}
	return *v
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

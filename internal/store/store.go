package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// BaseVersion is the version a fresh database is brought to on first open.
const BaseVersion = 1

// Signaling selects how a schema version change is applied.
type Signaling string

const (
	// SignalUpgradeEvent closes the live handle and reopens at the new
	// version, running the upgrade during open.
	SignalUpgradeEvent Signaling = "upgrade-event"

	// SignalSetVersion bumps the version on the live handle inside a
	// transaction that also runs the upgrade.
	SignalSetVersion Signaling = "set-version"
)

// ParseSignaling validates a signaling name. Empty selects the default.
func ParseSignaling(s string) (Signaling, error) {
	switch Signaling(s) {
	case "":
		return SignalUpgradeEvent, nil
	case SignalUpgradeEvent, SignalSetVersion:
		return Signaling(s), nil
	default:
		return "", fmt.Errorf("unknown signaling %q (want %s or %s)", s, SignalUpgradeEvent, SignalSetVersion)
	}
}

// UpgradeFunc applies a schema change from oldVersion to newVersion inside tx.
type UpgradeFunc func(ctx context.Context, tx *sql.Tx, oldVersion, newVersion int) error

// Handle is an open connection at a known schema version.
//
// In set-version mode the live handle's version moves forward in place, so it
// is read atomically.
type Handle struct {
	db      *sql.DB
	version atomic.Int64
}

// DB returns the underlying connection pool (limited to one connection).
func (h *Handle) DB() *sql.DB {
	return h.db
}

// Version returns the schema version the handle was opened at.
func (h *Handle) Version() int {
	return int(h.version.Load())
}

// BeginTx starts a transaction on the handle.
func (h *Handle) BeginTx(ctx context.Context) (*sql.Tx, error) {
	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, TransactionFailure(err)
	}
	return tx, nil
}

// Manager owns the process-wide handle for one database file.
//
// Thread-safety: Open, Mutate, Invalidate, and Close serialize on the
// manager. A Handle returned by Open may be closed by a later Mutate or
// Invalidate; callers re-acquire it through Open for each operation.
type Manager struct {
	mu        sync.Mutex
	path      string
	signaling Signaling
	handle    *Handle
	logger    *slog.Logger
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithSignaling selects the version signaling variant.
//
// Default: SignalUpgradeEvent
func WithSignaling(s Signaling) ManagerOption {
	return func(m *Manager) {
		m.signaling = s
	}
}

// WithLogger sets the logger for lifecycle events.
func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = l
	}
}

// NewManager creates a manager for the database at path. Nothing is opened
// until the first Open or Mutate.
func NewManager(path string, opts ...ManagerOption) *Manager {
	m := &Manager{
		path:      path,
		signaling: SignalUpgradeEvent,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Path returns the database file path.
func (m *Manager) Path() string {
	return m.path
}

// Signaling returns the configured signaling variant.
func (m *Manager) Signaling() Signaling {
	return m.signaling
}

// Open returns the live handle, opening the database if there is none.
//
// If the stored version no longer matches the live handle's version, another
// connection changed the schema: the live handle is invalidated and a new one
// is opened at the stored version.
func (m *Manager) Open(ctx context.Context) (*Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.liveLocked(ctx)
}

// Mutate applies upgrade as version+1 and returns the resulting handle.
//
// On failure nothing is committed and the stored version is unchanged.
func (m *Manager) Mutate(ctx context.Context, upgrade UpgradeFunc) (*Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, err := m.liveLocked(ctx)
	if err != nil {
		return nil, err
	}
	next := h.Version() + 1

	m.logger.Info("schema mutation",
		"path", m.path,
		"signaling", string(m.signaling),
		"from", h.Version(),
		"to", next,
	)

	switch m.signaling {
	case SignalSetVersion:
		if err := m.setVersionLocked(ctx, h, next, upgrade); err != nil {
			return nil, err
		}
		return h, nil
	default:
		m.invalidateLocked()
		return m.openLocked(ctx, next, upgrade)
	}
}

// Invalidate closes and drops the live handle. The next Open reopens.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invalidateLocked()
}

// Close releases the live handle.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.handle == nil {
		return nil
	}
	err := m.handle.db.Close()
	m.handle = nil
	return err
}

func (m *Manager) liveLocked(ctx context.Context) (*Handle, error) {
	if m.handle != nil {
		stored, err := userVersion(ctx, m.handle.db)
		if err != nil {
			return nil, TransactionFailure(fmt.Errorf("read schema version: %w", err))
		}
		if stored == m.handle.Version() {
			return m.handle, nil
		}
		m.logger.Info("external version change",
			"path", m.path,
			"live", m.handle.Version(),
			"stored", stored,
		)
		m.invalidateLocked()
	}
	return m.openLocked(ctx, 0, nil)
}

func (m *Manager) invalidateLocked() {
	if m.handle == nil {
		return
	}
	m.logger.Debug("handle invalidated", "path", m.path, "version", m.handle.Version())
	if err := m.handle.db.Close(); err != nil {
		m.logger.Warn("close handle", "path", m.path, "error", err)
	}
	m.handle = nil
}

// openLocked opens the database. A requested version of 0 means "whatever is
// stored", with a fresh database brought to BaseVersion.
func (m *Manager) openLocked(ctx context.Context, requested int, upgrade UpgradeFunc) (*Handle, error) {
	db, err := sql.Open("sqlite3", m.path)
	if err != nil {
		return nil, TransactionFailure(fmt.Errorf("open database: %w", err))
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, TransactionFailure(fmt.Errorf("connect database: %w", err))
	}
	if err := applyPragmas(ctx, db); err != nil {
		db.Close()
		return nil, TransactionFailure(fmt.Errorf("apply pragmas: %w", err))
	}

	stored, err := userVersion(ctx, db)
	if err != nil {
		db.Close()
		return nil, TransactionFailure(fmt.Errorf("read schema version: %w", err))
	}

	if requested == 0 {
		requested = max(stored, BaseVersion)
	}

	if stored > requested {
		db.Close()
		return nil, &Error{
			Code:    ErrCodeSchemaMutation,
			Message: fmt.Sprintf("requested version %d is less than stored version %d", requested, stored),
		}
	}

	if stored < requested {
		if err := upgradeTx(ctx, db, stored, requested, upgrade); err != nil {
			db.Close()
			return nil, schemaMutationFailure(err)
		}
		m.logger.Info("schema upgraded", "path", m.path, "from", stored, "to", requested)
	}

	m.handle = &Handle{db: db}
	m.handle.version.Store(int64(requested))
	m.logger.Debug("handle opened", "path", m.path, "version", requested)
	return m.handle, nil
}

func (m *Manager) setVersionLocked(ctx context.Context, h *Handle, next int, upgrade UpgradeFunc) error {
	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return schemaMutationFailure(fmt.Errorf("begin version change: %w", err))
	}
	defer tx.Rollback()

	if err := setUserVersion(ctx, tx, next); err != nil {
		return schemaMutationFailure(err)
	}
	prev := h.Version()
	if upgrade != nil {
		if err := upgrade(ctx, tx, prev, next); err != nil {
			return schemaMutationFailure(fmt.Errorf("upgrade %d -> %d: %w", prev, next, err))
		}
	}
	if err := ensureBase(ctx, tx); err != nil {
		return schemaMutationFailure(err)
	}
	if err := tx.Commit(); err != nil {
		return schemaMutationFailure(fmt.Errorf("commit version change: %w", err))
	}

	h.version.Store(int64(next))
	return nil
}

// upgradeTx runs the upgrade, the base layout, and the version bump in one
// transaction.
func upgradeTx(ctx context.Context, db *sql.DB, from, to int, upgrade UpgradeFunc) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upgrade: %w", err)
	}
	defer tx.Rollback()

	if upgrade != nil {
		if err := upgrade(ctx, tx, from, to); err != nil {
			return fmt.Errorf("upgrade %d -> %d: %w", from, to, err)
		}
	}
	if err := ensureBase(ctx, tx); err != nil {
		return err
	}
	if err := setUserVersion(ctx, tx, to); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upgrade: %w", err)
	}
	return nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

func ensureBase(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply base schema: %w", err)
	}
	return nil
}

func userVersion(ctx context.Context, q DBTX) (int, error) {
	var v int
	if err := q.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v); err != nil {
		return 0, err
	}
	return v, nil
}

func setUserVersion(ctx context.Context, tx *sql.Tx, v int) error {
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", v)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

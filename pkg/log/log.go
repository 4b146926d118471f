// Package log is the process logger: zerolog events written to the console
// or, once Init has been called, as JSON rows into an SQLite database that the
// CLI can query back.
package log

import (
	"database/sql"
	"errors"
	"fmt"
	stdlog "log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"spacenet/pkg/appdir"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

var (
	writeSinceStart        atomic.Int64
	pkgLogger              atomic.Pointer[zerolog.Logger]
	dbWriterInstance       *sqliteWriter
	dbHandle               *sql.DB
	mu                     sync.RWMutex // guards dbHandle and dbWriterInstance
	zerologTimeFieldFormat = time.RFC3339Nano

	ErrNotInitialized     = errors.New("log: logger not initialized, call log.Init() first")
	ErrAlreadyInitialized = errors.New("log: logger already initialized")
)

func init() {
	setLogger(zerolog.Nop())
}

func setLogger(l zerolog.Logger) { pkgLogger.Store(&l) }

func logger() *zerolog.Logger { return pkgLogger.Load() }

type sqliteWriter struct {
	db   *sql.DB
	stmt *sql.Stmt
	mu   sync.Mutex
}

func newSQLiteWriter(dbPath string) (*sqliteWriter, *sql.DB, error) {
	dsn := fmt.Sprintf("%s?_pragma=journal_mode=wal&_pragma=busy_timeout=5000", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open sqlite db %s: %w", dbPath, err)
	}
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to ping sqlite db %s: %w", dbPath, err)
	}

	createTableSQL := `
    CREATE TABLE IF NOT EXISTS logs (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        inserted_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP NOT NULL,
        log_data TEXT NOT NULL
    );`
	if _, err = db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to create logs table: %w", err)
	}

	for _, idx := range []string{
		`CREATE INDEX IF NOT EXISTS idx_logs_json_time ON logs (json_extract(log_data, '$.time'));`,
		`CREATE INDEX IF NOT EXISTS idx_logs_json_component ON logs (json_extract(log_data, '$.component'));`,
	} {
		if _, err = db.Exec(idx); err != nil {
			stdlog.Printf("Warning: failed to create log index: %v", err)
		}
	}

	stmt, err := db.Prepare(`INSERT INTO logs (log_data) VALUES (?)`)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to prepare insert statement: %w", err)
	}
	return &sqliteWriter{db: db, stmt: stmt}, db, nil
}

func (w *sqliteWriter) Write(p []byte) (n int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err = w.stmt.Exec(string(p)); err != nil {
		stdlog.Printf("ERROR writing log to SQLite: %v", err)
		return 0, err
	}
	writeSinceStart.Add(1)
	return len(p), nil
}

func (w *sqliteWriter) close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	var errs []error
	if w.stmt != nil {
		errs = append(errs, w.stmt.Close())
		w.stmt = nil
	}
	if w.db != nil {
		errs = append(errs, w.db.Close())
		w.db = nil
	}
	return errors.Join(errs...)
}

// SetStd routes the logger to a human readable console writer on stderr.
func SetStd() {
	setLogger(zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger())
}

// SetLevel sets the global minimum level ("debug", "info", "warn", ...).
func SetLevel(level string) error {
	l, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("log: %w", err)
	}
	zerolog.SetGlobalLevel(l)
	return nil
}

// Init starts writing logs into dbFile. A relative dbFile is placed in the
// state directory.
func Init(dbFile string) error {
	if dbFile == "" {
		return errors.New("log: Init needs an explicit dbFile")
	}
	dbPath, err := appdir.Path(dbFile)
	if err != nil {
		return err
	}

	mu.Lock()
	defer mu.Unlock()

	if dbWriterInstance != nil {
		return ErrAlreadyInitialized
	}
	writer, db, err := newSQLiteWriter(dbPath)
	if err != nil {
		return fmt.Errorf("failed to create SQLite writer: %w", err)
	}
	dbWriterInstance = writer
	dbHandle = db
	writeSinceStart.Store(0)

	zerolog.TimeFieldFormat = zerologTimeFieldFormat
	setLogger(zerolog.New(writer).With().Timestamp().Logger())
	return nil
}

// MustInit initializes the SQLite sink as <app>.db or exits.
func MustInit(app string) {
	if err := Init(app + ".db"); err != nil {
		stdlog.Fatalf("FATAL: failed to initialize logger: %v", err)
	}
}

// Close flushes and closes the SQLite sink; the logger becomes a no-op.
func Close() error {
	mu.Lock()
	defer mu.Unlock()

	if dbWriterInstance == nil {
		return nil
	}
	w := dbWriterInstance
	dbWriterInstance = nil
	dbHandle = nil
	setLogger(zerolog.Nop())

	if err := w.close(); err != nil {
		return fmt.Errorf("error closing SQLite logger: %w", err)
	}
	return nil
}

func Debug() *zerolog.Event { return logger().Debug() }
func Info() *zerolog.Event  { return logger().Info() }
func Warn() *zerolog.Event  { return logger().Warn() }
func Error() *zerolog.Event { return logger().Error() }
func Fatal() *zerolog.Event { return logger().Fatal() }
func Log() *zerolog.Event   { return logger().Log() }

// Printf sends an info event with no extra field.
func Printf(format string, v ...any) {
	logger().Info().CallerSkipFrame(1).Msgf(format, v...)
}

func Fatalf(format string, v ...any) {
	logger().Fatal().Msgf(format, v...)
}

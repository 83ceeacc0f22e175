// Package warehouse reads fact and dimension tables through database/sql.
// One Service serves snowflake, mysql, postgres (pgx) and sqlite sources.
package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/snowflakedb/gosnowflake"
	_ "modernc.org/sqlite"

	"flakereport/pkg/errors"
)

// Supported database/sql driver names
const (
	DriverSnowflake = "snowflake"
	DriverMySQL     = "mysql"
	DriverPostgres  = "pgx"
	DriverSQLite    = "sqlite"
)

// Service provides read access to the warehouse
type Service struct {
	db             *sql.DB
	config         Config
	connected      bool
	circuitBreaker *errors.CircuitBreaker
}

// Config holds warehouse connection configuration. When Driver is snowflake
// and DSN is empty the DSN is assembled from the account fields.
type Config struct {
	Driver    string
	DSN       string
	Account   string
	Username  string
	Password  string
	Database  string
	Schema    string
	Warehouse string
	Role      string
	Timeout   time.Duration
	MaxConns  int
}

// NewService creates a new warehouse service
func NewService(config Config) *Service {
	if config.Driver == "" {
		config.Driver = DriverSnowflake
	}
	return &Service{
		config:         config,
		circuitBreaker: errors.NewCircuitBreaker("warehouse", 5, 30*time.Second),
	}
}

// NewServiceWithDB wraps an already open handle
func NewServiceWithDB(db *sql.DB, config Config) *Service {
	s := NewService(config)
	s.db = db
	s.connected = true
	return s
}

// Connect opens and pings the connection, retrying recoverable failures
func (s *Service) Connect(ctx context.Context) error {
	if s.connected {
		return nil
	}

	return s.circuitBreaker.Execute(ctx, func() error {
		return errors.RetryWithBackoff(ctx, func(ctx context.Context) error {
			db, err := sql.Open(s.config.Driver, s.dsn())
			if err != nil {
				return errors.ConnectionError("Failed to open warehouse connection", err).
					WithContext("driver", s.config.Driver)
			}

			maxConns := s.config.MaxConns
			if maxConns <= 0 {
				maxConns = 10
			}
			db.SetMaxOpenConns(maxConns)
			db.SetMaxIdleConns(maxConns / 2)
			db.SetConnMaxLifetime(10 * time.Minute)

			pingCtx, cancel := s.withTimeout(ctx)
			defer cancel()

			if err := db.PingContext(pingCtx); err != nil {
				_ = db.Close()

				if strings.Contains(strings.ToLower(err.Error()), "authentication") {
					return errors.New(errors.ErrCodeAuthenticationFailed, "Authentication failed").
						WithContext("user", s.config.Username).
						WithSuggestions(
							"Verify the warehouse credentials",
							"Check if the account is locked",
						)
				}

				return errors.ConnectionError("Failed to connect to warehouse", err).
					WithContext("driver", s.config.Driver).
					AsRecoverable()
			}

			s.db = db
			s.connected = true
			return nil
		})
	})
}

// Close closes the database connection
func (s *Service) Close() error {
	if !s.connected {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close connection: %w", err)
	}
	s.connected = false
	return nil
}

// DB returns the underlying database handle
func (s *Service) DB() *sql.DB {
	return s.db
}

// Driver returns the configured driver name
func (s *Service) Driver() string {
	return s.config.Driver
}

// Snapshot runs fn inside one transaction so every table it reads sees the
// same state. The transaction is always rolled back; reads never commit.
func (s *Service) Snapshot(ctx context.Context, fn func(*Snapshot) error) error {
	if !s.connected {
		return errors.New(errors.ErrCodeConnectionFailed, "Not connected to warehouse").
			WithSuggestions("Call Connect() before reading")
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, snapshotOptions(s.config.Driver))
	if err != nil {
		return errors.ConnectionError("Failed to begin snapshot", err)
	}
	defer func() { _ = tx.Rollback() }()

	return fn(&Snapshot{ctx: ctx, tx: tx, driver: s.config.Driver})
}

// snapshotOptions marks snapshots read-only where the driver supports it.
// gosnowflake rejects read-only transactions and sqlite snapshots stay
// deferred; both still roll back.
func snapshotOptions(driver string) *sql.TxOptions {
	switch driver {
	case DriverMySQL, DriverPostgres:
		return &sql.TxOptions{ReadOnly: true}
	}
	return nil
}

// Write runs fn inside a transaction and commits when it succeeds
func (s *Service) Write(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) error {
	if !s.connected {
		return errors.New(errors.ErrCodeConnectionFailed, "Not connected to warehouse")
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSinkWriteFailed, "Failed to begin transaction")
	}

	if err := fn(ctx, tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, errors.ErrCodeSinkWriteFailed, "Failed to commit transaction")
	}
	return nil
}

// Snapshot is a read-only view of the warehouse for one run
type Snapshot struct {
	ctx     context.Context
	tx      *sql.Tx
	driver  string
	queries int
}

// Context returns the snapshot's deadline-bound context
func (sn *Snapshot) Context() context.Context {
	return sn.ctx
}

// Queries returns how many queries ran on the snapshot
func (sn *Snapshot) Queries() int {
	return sn.queries
}

// Each runs query and calls fn once per row. Query and iteration failures
// become source errors; an error returned by fn stops iteration unchanged.
func (sn *Snapshot) Each(query string, args []any, fn func(*sql.Rows) error) error {
	query = Rebind(sn.driver, query)
	sn.queries++

	rows, err := sn.tx.QueryContext(sn.ctx, query, args...)
	if err != nil {
		return errors.SourceError("Failed to read source table", query, err)
	}
	defer rows.Close()

	for rows.Next() {
		if err := fn(rows); err != nil {
			return err
		}
	}

	if err := rows.Err(); err != nil {
		return errors.SourceError("Failed while reading source rows", query, err)
	}
	return nil
}

// Rebind rewrites ? placeholders into the driver's positional form
func Rebind(driver, query string) string {
	if driver != DriverPostgres {
		return query
	}

	var b strings.Builder
	n := 0
	inString := false
	for _, char := range query {
		switch {
		case char == '\'':
			inString = !inString
		case char == '?' && !inString:
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(char)
	}
	return b.String()
}

// ParseDate converts a scanned DATE or TIMESTAMP value into a time. Strings
// without a zone are read as UTC.
func ParseDate(v any) (time.Time, bool) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		return t, !t.IsZero()
	case []byte:
		return ParseDate(string(t))
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range dateLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed, true
			}
		}
	}
	return time.Time{}, false
}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999-07:00",
}

// ValidateConfig validates the warehouse configuration
func ValidateConfig(config Config) error {
	switch config.Driver {
	case "", DriverSnowflake:
		if config.DSN != "" {
			return nil
		}
		if config.Account == "" {
			return fmt.Errorf("account is required")
		}
		if config.Username == "" {
			return fmt.Errorf("username is required")
		}
		if config.Password == "" {
			return fmt.Errorf("password is required")
		}
		if config.Warehouse == "" {
			return fmt.Errorf("warehouse is required")
		}
		if config.Role == "" {
			return fmt.Errorf("role is required")
		}
	case DriverMySQL, DriverPostgres, DriverSQLite:
		if config.DSN == "" {
			return fmt.Errorf("dsn is required for driver %s", config.Driver)
		}
	default:
		return fmt.Errorf("unsupported driver %q", config.Driver)
	}
	return nil
}

func (s *Service) dsn() string {
	if s.config.DSN != "" || s.config.Driver != DriverSnowflake {
		return s.config.DSN
	}
	return fmt.Sprintf("%s:%s@%s/%s/%s?warehouse=%s&role=%s",
		s.config.Username,
		s.config.Password,
		s.config.Account,
		s.config.Database,
		s.config.Schema,
		s.config.Warehouse,
		s.config.Role,
	)
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := s.config.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return context.WithTimeout(ctx, timeout)
}

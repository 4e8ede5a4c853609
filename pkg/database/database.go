package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"entgo.io/ent/dialect/sql/schema"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Client holds the database driver and the query builder for its dialect
type Client struct {
	driver  *entsql.Driver
	db      *sql.DB // Underlying database for pool stats
	dialect string
}

// PoolConfig holds connection pool configuration
type PoolConfig struct {
	MaxOpenConns    int           // Maximum number of open connections
	MaxIdleConns    int           // Maximum number of idle connections
	ConnMaxLifetime time.Duration // Maximum amount of time a connection may be reused
	ConnMaxIdleTime time.Duration // Maximum amount of time a connection may be idle
}

// SSLConfig holds SSL/TLS configuration for database connections
type SSLConfig struct {
	Mode         string // disable, require, verify-ca, verify-full
	CertPath     string // Path to client certificate
	KeyPath      string // Path to client key
	RootCertPath string // Path to root CA certificate
}

// Options describes how to open a Client
type Options struct {
	Driver      string // dialect.Postgres or dialect.SQLite
	URL         string
	Pool        PoolConfig
	SSL         *SSLConfig
	AutoMigrate bool
}

// DefaultPoolConfig returns sensible defaults for connection pooling
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 10 * time.Minute,
	}
}

// BuildConnectionString builds a PostgreSQL connection string with SSL parameters
func BuildConnectionString(baseURL string, sslCfg *SSLConfig) (string, error) {
	if sslCfg == nil {
		return baseURL, nil
	}

	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse database URL: %w", err)
	}

	query := parsedURL.Query()

	// SSL mode overrides any existing sslmode in URL
	if sslCfg.Mode != "" {
		query.Set("sslmode", sslCfg.Mode)
	}
	if sslCfg.CertPath != "" {
		query.Set("sslcert", sslCfg.CertPath)
	}
	if sslCfg.KeyPath != "" {
		query.Set("sslkey", sslCfg.KeyPath)
	}
	if sslCfg.RootCertPath != "" {
		query.Set("sslrootcert", sslCfg.RootCertPath)
	}

	parsedURL.RawQuery = query.Encode()

	return parsedURL.String(), nil
}

// SQLiteDSN makes sure a sqlite DSN enforces foreign keys and takes the
// write lock when a transaction begins.
func SQLiteDSN(dsn string) string {
	params := []string{"_fk=1", "_txlock=immediate", "_busy_timeout=5000"}
	for _, p := range params {
		key := p[:strings.Index(p, "=")+1]
		if strings.Contains(dsn, key) {
			continue
		}
		if strings.Contains(dsn, "?") {
			dsn += "&" + p
		} else {
			dsn += "?" + p
		}
	}
	return dsn
}

// NewClient creates a PostgreSQL client with default pooling and applies migrations
func NewClient(databaseURL string) (*Client, error) {
	return Open(Options{
		Driver:      dialect.Postgres,
		URL:         databaseURL,
		Pool:        DefaultPoolConfig(),
		AutoMigrate: true,
	})
}

// Open creates a database client for the configured driver
func Open(opts Options) (*Client, error) {
	var (
		connStr = opts.URL
		pool    = opts.Pool
		err     error
	)

	switch opts.Driver {
	case dialect.Postgres, "":
		opts.Driver = dialect.Postgres
		connStr, err = BuildConnectionString(opts.URL, opts.SSL)
		if err != nil {
			return nil, fmt.Errorf("failed building connection string: %w", err)
		}
		if opts.SSL != nil && opts.SSL.Mode != "" && opts.SSL.Mode != "disable" {
			log.Printf("🔒 Database SSL enabled (mode: %s)", opts.SSL.Mode)
			if opts.SSL.RootCertPath != "" {
				log.Printf("   Root CA certificate: %s", opts.SSL.RootCertPath)
			}
		}
	case dialect.SQLite:
		connStr = SQLiteDSN(opts.URL)
		// sqlite has a single writer; one shared connection also keeps
		// in-memory databases alive between queries.
		pool = PoolConfig{MaxOpenConns: 1, MaxIdleConns: 1}
	default:
		return nil, fmt.Errorf("unsupported database driver %q", opts.Driver)
	}

	db, err := sql.Open(opts.Driver, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed opening connection to %s: %w", opts.Driver, err)
	}

	db.SetMaxOpenConns(pool.MaxOpenConns)
	db.SetMaxIdleConns(pool.MaxIdleConns)
	db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	db.SetConnMaxIdleTime(pool.ConnMaxIdleTime)

	log.Printf("✅ Database connection pool configured (driver: %s, max_open: %d, max_idle: %d, max_lifetime: %s)",
		opts.Driver, pool.MaxOpenConns, pool.MaxIdleConns, pool.ConnMaxLifetime)

	client := &Client{
		driver:  entsql.OpenDB(opts.Driver, db),
		db:      db,
		dialect: opts.Driver,
	}

	if opts.AutoMigrate {
		if err := client.Migrate(context.Background()); err != nil {
			_ = db.Close()
			return nil, err
		}
		log.Println("✅ Database connected and migrations applied")
	}

	return client, nil
}

// Migrate creates or updates the tables backing the assignment service
func (c *Client) Migrate(ctx context.Context) error {
	m, err := schema.NewMigrate(c.driver)
	if err != nil {
		return fmt.Errorf("failed creating migrator: %w", err)
	}
	if err := m.Create(ctx, Tables...); err != nil {
		return fmt.Errorf("failed creating schema resources: %w", err)
	}
	return nil
}

// Driver returns the driver for queries outside a transaction
func (c *Client) Driver() dialect.ExecQuerier {
	return c.driver
}

// Dialect returns the SQL dialect name
func (c *Client) Dialect() string {
	return c.dialect
}

// SQL returns a statement builder bound to the client dialect
func (c *Client) SQL() *entsql.DialectBuilder {
	return entsql.Dialect(c.dialect)
}

// SupportsRowLock reports whether SELECT ... FOR UPDATE is available.
// sqlite serializes writers at BEGIN IMMEDIATE instead.
func (c *Client) SupportsRowLock() bool {
	return c.dialect == dialect.Postgres || c.dialect == dialect.MySQL
}

// WithTx runs fn in a transaction. The transaction commits when fn returns
// nil and rolls back on error or panic.
func (c *Client) WithTx(ctx context.Context, fn func(tx dialect.Tx) error) error {
	tx, err := c.driver.Tx(ctx)
	if err != nil {
		return fmt.Errorf("failed starting transaction: %w", err)
	}
	defer func() {
		if v := recover(); v != nil {
			_ = tx.Rollback()
			panic(v)
		}
	}()

	if err := fn(tx); err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			err = fmt.Errorf("%w: rolling back transaction: %v", err, rerr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed committing transaction: %w", err)
	}
	return nil
}

// WithSnapshot runs fn in a read-only transaction so every query in fn sees
// the same state. Postgres reads at repeatable read; sqlite already holds the
// write lock for the whole transaction.
func (c *Client) WithSnapshot(ctx context.Context, fn func(q dialect.ExecQuerier) error) error {
	var opts *sql.TxOptions
	if c.dialect == dialect.Postgres {
		opts = &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
	}
	tx, err := c.driver.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed starting read transaction: %w", err)
	}
	defer func() {
		if v := recover(); v != nil {
			_ = tx.Rollback()
			panic(v)
		}
	}()

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed committing read transaction: %w", err)
	}
	return nil
}

// InsertID runs an insert and returns the generated id
func (c *Client) InsertID(ctx context.Context, q dialect.ExecQuerier, insert *entsql.InsertBuilder) (int, error) {
	if c.dialect == dialect.Postgres {
		insert.Returning("id")
		query, args := insert.Query()
		var id int
		err := Query(ctx, q, query, args, func(rows *entsql.Rows) error {
			return rows.Scan(&id)
		})
		return id, err
	}

	query, args := insert.Query()
	var res entsql.Result
	if err := q.Exec(ctx, query, args, &res); err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return int(id), nil
}

// Query runs a statement and calls scan once per returned row
func Query(ctx context.Context, q dialect.ExecQuerier, query string, args []any, scan func(rows *entsql.Rows) error) error {
	rows := &entsql.Rows{}
	if err := q.Query(ctx, query, args, rows); err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		if err := scan(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Exec runs a statement and returns the number of affected rows
func Exec(ctx context.Context, q dialect.ExecQuerier, query string, args []any) (int64, error) {
	var res entsql.Result
	if err := q.Exec(ctx, query, args, &res); err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Close closes the database connection
func (c *Client) Close() error {
	return c.driver.Close()
}

// Ping checks if the database is reachable
func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Stats returns database connection pool statistics
func (c *Client) Stats() sql.DBStats {
	return c.db.Stats()
}

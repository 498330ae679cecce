package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	logx "gatebot/pkg/logx"
)

type Dialect int

const (
	DialectSQLite Dialect = iota
	DialectPostgres
)

func (d Dialect) String() string {
	if d == DialectPostgres {
		return "postgres"
	}
	return "sqlite"
}

// DB is the persistence handle: execute, fetch-one and fetch-all over bound
// parameters. Values are never interpolated into SQL text.
type DB struct {
	sql     *sql.DB
	dialect Dialect
	log     logx.Logger
}

// Open connects to the configured database and applies pending migrations.
func Open(ctx context.Context, cfg Config, log logx.Logger) (*DB, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	var (
		db  *DB
		err error
	)
	switch driver := strings.ToLower(strings.TrimSpace(cfg.Driver)); driver {
	case "", "sqlite", "sqlite3":
		db, err = openSQLite(ctx, cfg, log)
	case "postgres", "postgresql", "pgx":
		db, err = openPostgres(ctx, cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
	if err != nil {
		return nil, err
	}
	if err := db.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Info("storage ready", logx.String("dialect", db.dialect.String()))
	return db, nil
}

func (db *DB) Dialect() Dialect { return db.dialect }

func (db *DB) Close() error {
	if db == nil || db.sql == nil {
		return nil
	}
	return db.sql.Close()
}

// Ping checks connectivity; used by the health endpoint.
func (db *DB) Ping(ctx context.Context) error {
	return wrapErr(db.sql.PingContext(ctx))
}

// Exec runs a statement and returns the number of affected rows.
func (db *DB) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := db.sql.ExecContext(ctx, db.rebind(query), args...)
	if err != nil {
		return 0, wrapErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, wrapErr(err)
	}
	return n, nil
}

// FetchOne scans the first row into dest. It returns ErrNotFound when the
// query yields no rows.
func (db *DB) FetchOne(ctx context.Context, query string, args []any, dest ...any) error {
	err := db.sql.QueryRowContext(ctx, db.rebind(query), args...).Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return wrapErr(err)
}

// FetchAll calls scan once per row. scan receives the row scanner.
func (db *DB) FetchAll(ctx context.Context, query string, args []any, scan func(rows *sql.Rows) error) error {
	rows, err := db.sql.QueryContext(ctx, db.rebind(query), args...)
	if err != nil {
		return wrapErr(err)
	}
	defer rows.Close()
	for rows.Next() {
		if err := scan(rows); err != nil {
			return err
		}
	}
	return wrapErr(rows.Err())
}

func (db *DB) rebind(query string) string {
	if db.dialect != DialectPostgres {
		return query
	}
	return Rebind(query)
}

// Rebind rewrites "?" placeholders to PostgreSQL's "$n" form, leaving
// question marks inside quoted literals untouched.
func Rebind(query string) string {
	if !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	var quote rune
	for _, r := range query {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"':
			quote = r
		case r == '?':
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// wrapErr tags connectivity failures with ErrUnavailable.
func wrapErr(err error) error {
	if err == nil {
		return nil
	}
	if isUnavailable(err) {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return err
}

func isUnavailable(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	var oe *net.OpError
	if errors.As(err, &oe) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is closed") ||
		strings.Contains(msg, "unable to open database") ||
		strings.Contains(msg, "failed to connect") ||
		strings.Contains(msg, "connection refused")
}

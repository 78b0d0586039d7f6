package store

import (
	"context"
	"database/sql"
	"regexp"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// Supported database/sql drivers.
const (
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite3"
)

// DB wraps sql.DB for Postgres (pgx) or SQLite.
type DB struct {
	Client *sql.DB
	Driver string
}

// NewDB opens a connection pool with sane defaults and pings it.
func NewDB(driver, connString string) (*DB, error) {
	if driver == "" {
		driver = DriverPostgres
	}
	db, err := sql.Open(driver, connString)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", driver)
	}
	if driver == DriverSQLite {
		// one connection so in-memory databases are shared and writes serialize
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
	}
	db.SetConnMaxLifetime(time.Hour)
	d := &DB{Client: db, Driver: driver}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return d, errors.Wrap(err, "ping database")
	}
	return d, nil
}

var placeholder = regexp.MustCompile(`\$\d+`)

// Rebind rewrites $N placeholders for drivers that expect "?". Queries must
// use each placeholder once, in order.
func (d *DB) Rebind(query string) string {
	if d == nil || d.Driver != DriverSQLite {
		return query
	}
	return placeholder.ReplaceAllString(query, "?")
}

// Healthy pings the database.
func (d *DB) Healthy(ctx context.Context) bool {
	if d == nil || d.Client == nil {
		return false
	}
	return d.Client.PingContext(ctx) == nil
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	if d == nil || d.Client == nil {
		return nil
	}
	return d.Client.Close()
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS professors (
		course_id       TEXT NOT NULL,
		professor_id    TEXT NOT NULL,
		professor_name  TEXT,
		professor_email TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (course_id, professor_id)
	)`,
	`CREATE TABLE IF NOT EXISTS students (
		student_email TEXT PRIMARY KEY,
		student_id    TEXT,
		student_name  TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS enrollments (
		course_id     TEXT NOT NULL,
		student_email TEXT NOT NULL,
		PRIMARY KEY (course_id, student_email)
	)`,
	`CREATE TABLE IF NOT EXISTS attendance (
		id             TEXT PRIMARY KEY,
		course_id      TEXT NOT NULL,
		student_email  TEXT NOT NULL,
		student_id     TEXT NOT NULL DEFAULT '',
		student_name   TEXT NOT NULL DEFAULT '',
		professor_id   TEXT NOT NULL,
		professor_name TEXT NOT NULL,
		local_time     TEXT NOT NULL,
		recorded_at    TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_attendance_course ON attendance (course_id, recorded_at)`,
	`CREATE INDEX IF NOT EXISTS idx_attendance_student ON attendance (student_email, recorded_at)`,
}

// Migrate creates the tables used by the attendance repository.
func (d *DB) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := d.Client.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "migrate")
		}
	}
	return nil
}

package database

import (
	"database/sql"
	"fmt"
	"regexp"

	"github.com/rs/zerolog/log"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Supported SQL drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Open connects to the database and checks the connection
func Open(driver, dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("%s connection string is required", driver)
	}

	switch driver {
	case DriverPostgres:
	case DriverSQLite:
		if dsn != ":memory:" {
			dsn = "file:" + dsn + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
		}
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if driver == DriverSQLite {
		// one writer; also keeps an in-memory database on a single connection
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Str("driver", driver).Msg("Successfully connected to database")
	return db, nil
}

// CreateTables creates the observation table and its index if they don't exist
func CreateTables(db *sql.DB, driver string) error {
	id := "id BIGSERIAL PRIMARY KEY"
	ts := "TIMESTAMPTZ"
	if driver == DriverSQLite {
		id = "id INTEGER PRIMARY KEY AUTOINCREMENT"
		ts = "TIMESTAMP"
	}

	queries := []string{
		`CREATE TABLE IF NOT EXISTS observations (
			` + id + `,
			run_id TEXT NOT NULL DEFAULT '',
			site TEXT NOT NULL,
			item TEXT NOT NULL,
			region VARCHAR(2) NOT NULL,
			device VARCHAR(10) NOT NULL,
			logged_in BOOLEAN NOT NULL DEFAULT FALSE,
			cart_populated BOOLEAN NOT NULL DEFAULT FALSE,
			cookies_cleared BOOLEAN NOT NULL DEFAULT FALSE,
			price NUMERIC(14,2),
			currency VARCHAR(3),
			raw_text TEXT NOT NULL DEFAULT '',
			strategy VARCHAR(20) NOT NULL,
			url TEXT NOT NULL,
			meta TEXT NOT NULL DEFAULT '{}',
			collected_at ` + ts + ` NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_observations_site_item ON observations (site, item, collected_at)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}

var placeholder = regexp.MustCompile(`\$(\d+)`)

// Rebind rewrites $N placeholders into the numbered form of the driver
func Rebind(driver, query string) string {
	if driver == DriverSQLite {
		return placeholder.ReplaceAllString(query, "?$1")
	}
	return query
}

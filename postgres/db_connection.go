package postgres

import (
	"database/sql"
	"fmt"
	"net/url"

	_ "github.com/lib/pq"
)

type DBConnectionOptions struct {
	Host     string
	Port     string
	User     string
	Pass     string
	Database string
	SSLMode  string
}

func (options *DBConnectionOptions) ConnectionString() string {
	port := options.Port
	if port == "" {
		port = "5432"
	}
	sslMode := options.SSLMode
	if sslMode == "" {
		sslMode = "require"
	}

	pass := url.QueryEscape(options.Pass)

	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", options.User, pass, options.Host, port, options.Database, sslMode)
}

func NewDBConnection(options *DBConnectionOptions) (*sql.DB, error) {
	db, err := sql.Open("postgres", options.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}

	return db, nil
}

// Package migrations embeds SQL migration files and provides a function to apply them.
package migrations

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

// FS contains the embedded SQL migration files.
//
//go:embed *.sql
var FS embed.FS

// Dialect maps a store driver name to its goose dialect
func Dialect(driver string) string {
	if driver == "postgres" {
		return "postgres"
	}
	return "sqlite3"
}

// Run applies all pending migrations to the given database.
func Run(db *sql.DB, driver string) error {
	goose.SetBaseFS(FS)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect(Dialect(driver)); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.Up(db, "."); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// Status prints the applied and pending migrations.
func Status(db *sql.DB, driver string) error {
	goose.SetBaseFS(FS)
	if err := goose.SetDialect(Dialect(driver)); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}
	return goose.Status(db, ".")
}

// Down rolls back the latest migration.
func Down(db *sql.DB, driver string) error {
	goose.SetBaseFS(FS)
	if err := goose.SetDialect(Dialect(driver)); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}
	return goose.Down(db, ".")
}

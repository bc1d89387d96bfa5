package main

import (
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

func main() {
	var storagePath, migrationsPath, migrationsTable string
	var down bool

	flag.StringVar(&storagePath, "storage-path", "", "postgres connection url, DATABASE_URL when empty")
	flag.StringVar(&migrationsPath, "migrations-path", "./migrations", "path to a directory containing migration files")
	flag.StringVar(&migrationsTable, "migrations-table", "migrations", "name of migrations table")
	flag.BoolVar(&down, "down", false, "roll every migration back")
	flag.Parse()

	if storagePath == "" {
		storagePath = os.Getenv("DATABASE_URL")
	}
	if storagePath == "" {
		panic("storage-path or DATABASE_URL is required")
	}
	dsn, err := withMigrationsTable(storagePath, migrationsTable)
	if err != nil {
		panic(err)
	}

	m, err := migrate.New("file://"+migrationsPath, dsn)
	if err != nil {
		panic(err)
	}
	defer m.Close()

	if down {
		err = m.Down()
	} else {
		err = m.Up()
	}
	if err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			fmt.Println("no migrations to apply")
			return
		}
		panic(err)
	}
	fmt.Println("migrations completed successfully")
}

// withMigrationsTable adds x-migrations-table to the connection url
func withMigrationsTable(dsn string, table string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("invalid storage path: %w", err)
	}
	q := u.Query()
	q.Set("x-migrations-table", table)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

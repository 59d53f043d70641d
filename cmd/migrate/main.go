package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/ManuelReschke/ListingHub/internal/pkg/env"
)

const usage = `Usage: migrate <command>
  up        apply all pending migrations
  down      roll back the last migration
  goto N    migrate to version N
  force N   mark version N as clean after a failed run
  status    print the current version`

// migrator is the part of *migrate.Migrate the commands drive.
type migrator interface {
	Up() error
	Steps(n int) error
	Migrate(version uint) error
	Force(version int) error
	Version() (uint, bool, error)
}

func main() {
	env.SetupEnvFile()
	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	user, host, port, name := env.GetEnv("DB_USER", "listinghub"), env.GetEnv("DB_HOST", "db"), env.GetEnv("DB_PORT", "3306"), env.GetEnv("DB_NAME", "listinghub")
	log.Printf("Connecting to database: %s@%s:%s/%s", user, host, port, name)
	dsn := fmt.Sprintf("mysql://%s:%s@tcp(%s:%s)/%s?multiStatements=true", user, env.GetEnv("DB_PASSWORD", "listinghub"), host, port, name)

	m, err := migrate.New(env.GetEnv("MIGRATIONS_SOURCE", "file://migrations"), dsn)
	if err != nil {
		log.Fatalf("init migrations: %v", err)
	}
	msg, err := run(m, os.Args[1:])
	if sourceErr, dbErr := m.Close(); sourceErr != nil || dbErr != nil {
		log.Printf("close migrations: source=%v db=%v", sourceErr, dbErr)
	}
	if err != nil {
		log.Fatal(err)
	}
	log.Println(msg)
}

func run(m migrator, args []string) (string, error) {
	version := func() (uint, error) {
		if len(args) < 2 {
			return 0, fmt.Errorf("%s needs a version number", args[0])
		}
		v, err := strconv.ParseUint(args[1], 10, 32)
		if err != nil {
			return 0, fmt.Errorf("invalid version %q", args[1])
		}
		return uint(v), nil
	}

	switch args[0] {
	case "up":
		return settle(m.Up(), "Migrations applied", "No change: database is up to date")
	case "down":
		return settle(m.Steps(-1), "Rolled back one migration", "No change: nothing to roll back")
	case "goto":
		v, err := version()
		if err != nil {
			return "", err
		}
		return settle(m.Migrate(v), fmt.Sprintf("Migrated to version %d", v), fmt.Sprintf("No change: database is at version %d", v))
	case "force":
		v, err := version()
		if err != nil {
			return "", err
		}
		if err := m.Force(int(v)); err != nil {
			return "", fmt.Errorf("force %d: %w", v, err)
		}
		return fmt.Sprintf("Forced version %d", v), nil
	case "status":
		v, dirty, err := m.Version()
		switch {
		case errors.Is(err, migrate.ErrNilVersion):
			return "No migrations applied yet", nil
		case err != nil:
			return "", fmt.Errorf("read version: %w", err)
		case dirty:
			return fmt.Sprintf("Current version: %d (dirty)", v), nil
		}
		return fmt.Sprintf("Current version: %d", v), nil
	}
	return "", fmt.Errorf("unknown command %q\n%s", args[0], usage)
}

func settle(err error, done, unchanged string) (string, error) {
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		return unchanged, nil
	case err != nil:
		return "", err
	}
	return done, nil
}

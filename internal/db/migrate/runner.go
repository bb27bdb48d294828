// Package migrate applies the embedded session store schema with golang-migrate.
package migrate

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/IFs1991/seikotsuin-no-saas-sub003/internal/db"
)

// ErrNoChange is returned when there is nothing to apply.
var ErrNoChange = migrate.ErrNoChange

// Commands accepted by Run.
const (
	Up      = "up"
	Down    = "down"
	Version = "version"
)

// Status is the schema version recorded in the database.
type Status struct {
	Version uint
	Dirty   bool
	// Empty is set when no migration has been applied yet.
	Empty bool
}

func (s Status) String() string {
	switch {
	case s.Empty:
		return "no migrations applied"
	case s.Dirty:
		return fmt.Sprintf("version %d (dirty)", s.Version)
	default:
		return fmt.Sprintf("version %d", s.Version)
	}
}

// Run executes command ("up", "down", or "version") against dsn and returns the resulting status.
// "up" and "down" return ErrNoChange (with the current status) when already at the target.
func Run(dsn, command string) (Status, error) {
	if dsn == "" {
		return Status{}, errors.New("DATABASE_URL is not set; set DATABASE_URL or use STORE_DRIVER=memory")
	}
	if command != Up && command != Down && command != Version {
		return Status{}, fmt.Errorf("command must be up, down, or version, got %q", command)
	}

	m, err := open(dsn)
	if err != nil {
		return Status{}, err
	}
	defer func() { _, _ = m.Close() }()

	var runErr error
	switch command {
	case Up:
		runErr = m.Up()
	case Down:
		runErr = m.Down()
	}
	if runErr != nil && !errors.Is(runErr, migrate.ErrNoChange) {
		return Status{}, runErr
	}

	st, err := status(m)
	if err != nil {
		return Status{}, err
	}
	return st, runErr
}

func open(dsn string) (*migrate.Migrate, error) {
	src, err := iofs.New(db.MigrationFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("migrate source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return m, nil
}

func status(m *migrate.Migrate) (Status, error) {
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return Status{Empty: true}, nil
	}
	if err != nil {
		return Status{}, fmt.Errorf("migrate version: %w", err)
	}
	return Status{Version: v, Dirty: dirty}, nil
}

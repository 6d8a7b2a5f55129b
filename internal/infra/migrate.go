package infra

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"

	"github.com/Alturino/makelocal/internal/log"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// RunMigrations applies the embedded migrations over a short lived lib/pq
// connection, separate from the pgx pool.
func RunMigrations(c context.Context, postgresURL string) error {
	logger := zerolog.Ctx(c).With().Str(log.KeyTag, "main RunMigrations").Logger()

	db, err := sql.Open("postgres", postgresURL)
	if err != nil {
		return fmt.Errorf("failed opening db for migrations with error=%w", err)
	}
	defer db.Close()
	if err = db.PingContext(c); err != nil {
		return fmt.Errorf("failed ping db for migrations with error=%w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed creating migration source with error=%w", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed creating migration driver with error=%w", err)
	}
	migration, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed creating migration with error=%w", err)
	}

	if err = migration.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed migration up with error=%w", err)
	}
	version, dirty, _ := migration.Version()
	logger.Info().Uint("version", version).Bool("dirty", dirty).Msg("migrations applied")
	return nil
}

// Package audit is a supplementary, append-only record of every
// replication-surface mutation a replica applies locally. It is strictly
// secondary to the JSON Db file — replay and correctness depend only on the
// Db, not on this trail — and exists so an operator can inspect replication
// history without parsing the Db snapshot directly.
package audit

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
	gormsqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	// modernc pure-Go SQLite driver, registers itself as "sqlite".
	_ "modernc.org/sqlite"

	"github.com/replichat/replichat/internal/config"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Trail appends audit rows to a local SQLite file. It implements
// replica.AuditSink.
type Trail struct {
	db          *gorm.DB
	replicaAddr string
	logger      *zap.Logger
}

// Open opens (creating if necessary) the SQLite file at path, applies
// pending migrations, and returns a ready-to-use Trail scoped to addr.
func Open(path string, addr config.Addr, logger *zap.Logger) (*Trail, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("audit: failed to open sqlite at %q: %w", path, err)
	}
	// SQLite supports only one writer at a time.
	sqlDB.SetMaxOpenConns(1)

	gormDB, err := gorm.Open(gormsqlite.Dialector{Conn: sqlDB}, &gorm.Config{
		Logger: newZapGORMLogger(logger, gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("audit: failed to initialize gorm: %w", err)
	}

	if err := runMigrations(sqlDB, logger); err != nil {
		return nil, fmt.Errorf("audit: migrations failed: %w", err)
	}

	return &Trail{db: gormDB, replicaAddr: addr.String(), logger: logger.Named("audit")}, nil
}

// RecordMutation appends one audit row. Failures are logged, not returned —
// the audit trail is best-effort and must never block or fail a replicated
// write whose correctness depends only on the Db file.
func (t *Trail) RecordMutation(op string, detail string) {
	event := Event{
		ReplicaAddr: t.replicaAddr,
		Operation:   op,
		Detail:      detail,
		CreatedAt:   time.Now().UTC(),
	}
	if err := t.db.WithContext(context.Background()).Create(&event).Error; err != nil {
		t.logger.Warn("failed to record audit event", zap.String("operation", op), zap.Error(err))
	}
}

// Close releases the underlying SQLite connection.
func (t *Trail) Close() error {
	sqlDB, err := t.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func runMigrations(sqlDB *sql.DB, logger *zap.Logger) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	drv, err := migratesqlite.WithInstance(sqlDB, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create sqlite migrate driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", drv)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	logger.Info("audit trail migrations applied")
	return nil
}

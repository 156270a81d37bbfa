package db

import (
	"fmt"

	"github.com/learnbuddy/questbuddy/config"
	dbmysql "github.com/learnbuddy/questbuddy/db/mysql"
	dbpostgres "github.com/learnbuddy/questbuddy/db/postgres"
	dbsqlite "github.com/learnbuddy/questbuddy/db/sqlite"
	"gorm.io/gorm"
)

const (
	ModeMemory   = "memory"
	ModeSQLite   = "sqlite"
	ModeMySQL    = "mysql"
	ModePostgres = "postgres"
)

// Open returns a *gorm.DB for the configured database mode.
// Networked modes get the configured connection pool.
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	switch cfg.Mode {
	case ModeMemory:
		return dbsqlite.OpenMemory()
	case ModeSQLite:
		return dbsqlite.Open(cfg.SQLitePath)
	case ModeMySQL:
		db, err := dbmysql.Open(cfg.MySQLDSN)
		return applyPool(db, err, cfg)
	case ModePostgres:
		db, err := dbpostgres.Open(cfg.PostgresDSN)
		return applyPool(db, err, cfg)
	default:
		return nil, fmt.Errorf("db: unknown mode %q", cfg.Mode)
	}
}

func applyPool(db *gorm.DB, err error, cfg config.DatabaseConfig) (*gorm.DB, error) {
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLife)
	return db, nil
}

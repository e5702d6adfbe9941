package db

import (
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DSN builds a SQLite DSN for the given database file with WAL journaling
// and foreign key enforcement enabled.
func DSN(path string) string {
	return fmt.Sprintf("file:%s?_fk=1&_journal=WAL", path)
}

// Open opens a GORM connection to the SQLite database file, creating the
// parent directory if needed.
func Open(path string) (*gorm.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("db: create dir %s: %w", dir, err)
		}
	}

	gormDB, err := gorm.Open(sqlite.Open(DSN(path)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("db: open %s: %w", path, err)
	}
	if err := pinConnection(gormDB); err != nil {
		return nil, err
	}
	return gormDB, nil
}

// pinConnection limits the pool to one connection. SQLite allows a single
// writer; concurrent transactions on separate connections would surface as
// SQLITE_BUSY instead of queueing.
func pinConnection(gormDB *gorm.DB) error {
	sqlDB, err := gormDB.DB()
	if err != nil {
		return fmt.Errorf("db: pool handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	return nil
}

// OpenMemory opens an isolated in-memory database, used by tests.
func OpenMemory() (*gorm.DB, error) {
	gormDB, err := gorm.Open(sqlite.Open("file::memory:?_fk=1"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("db: open in-memory: %w", err)
	}
	if err := pinConnection(gormDB); err != nil {
		return nil, err
	}
	return gormDB, nil
}

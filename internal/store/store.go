// Package store provides persistent prescription.Repository implementations.
package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/hengadev/rxseal/internal/prescription"
)

// Supported drivers.
const (
	DriverSQLite  = "sqlite"
	DriverLevelDB = "leveldb"
	DriverMemory  = "memory"
)

// Open returns the repository for driver. path is a SQLite file or a LevelDB
// directory and is ignored for the memory driver.
func Open(ctx context.Context, driver, path string) (prescription.Repository, error) {
	switch strings.ToLower(driver) {
	case DriverSQLite, "sqlite3":
		return OpenSQLite(ctx, path)
	case DriverLevelDB:
		if path == "" {
			return nil, fmt.Errorf("leveldb path cannot be empty")
		}
		return OpenLevelDB(path)
	case DriverMemory, "":
		return prescription.NewMemoryRepository(), nil
	default:
		return nil, fmt.Errorf("unsupported store driver '%s'", driver)
	}
}

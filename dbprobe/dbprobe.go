// Package dbprobe opens the resolved dataset's relational extract read-only
// and reports identity facts for status output. Querying the dataset proper
// is the app's query engine's job, not ours.
package dbprobe

import (
	"fmt"

	logutil "github.com/starforge-mobile/datasync/utils/log"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Info summarizes one dataset database file.
type Info struct {
	Tables        int64  `json:"tables"`
	SchemaVersion string `json:"schema_version,omitempty"`
}

// Probe opens the sqlite file at path read-only and counts its tables. The
// optional schema_info table, when present, contributes a schema version.
func Probe(path string) (*Info, error) {
	db, err := gorm.Open(sqlite.Open("file:"+path+"?mode=ro&immutable=1"), &gorm.Config{
		Logger: logger.Default.LogMode(logutil.GormLogLevel()),
	})
	if err != nil {
		return nil, fmt.Errorf("open dataset db %s: %w", path, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	defer sqlDB.Close()

	info := &Info{}
	if err := db.Raw(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table'`).Scan(&info.Tables).Error; err != nil {
		return nil, fmt.Errorf("inspect dataset db %s: %w", path, err)
	}

	var version string
	err = db.Raw(`SELECT value FROM schema_info WHERE key = 'version' LIMIT 1`).Scan(&version).Error
	if err == nil {
		info.SchemaVersion = version
	}
	return info, nil
}

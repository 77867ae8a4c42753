package log

import (
	"log/slog"
	"os"
	"sync"

	gormlogger "gorm.io/gorm/logger"
)

var (
	mu           sync.RWMutex
	gormLogLevel = gormlogger.Silent
)

// SetupGlobalLogger installs a text slog handler as the process default.
func SetupGlobalLogger(level slog.Level) {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

// SetGormLogLevel controls how chatty gorm is when probing dataset databases.
func SetGormLogLevel(level gormlogger.LogLevel) {
	mu.Lock()
	defer mu.Unlock()
	gormLogLevel = level
}

func GormLogLevel() gormlogger.LogLevel {
	mu.RLock()
	defer mu.RUnlock()
	return gormLogLevel
}

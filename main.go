package main

import (
	"log"
	"log/slog"

	"github.com/starforge-mobile/datasync/cmd"
	"github.com/starforge-mobile/datasync/utils"
	logutil "github.com/starforge-mobile/datasync/utils/log"
	gormlogger "gorm.io/gorm/logger"
)

func main() {
	if utils.VersionHash == "unknown" {
		logutil.SetupGlobalLogger(slog.LevelDebug)
		logutil.SetGormLogLevel(gormlogger.Info)
	} else {
		logutil.SetupGlobalLogger(slog.LevelInfo)
		logutil.SetGormLogLevel(gormlogger.Silent)
	}

	log.Printf("datasync %s (hash: %s)", utils.ClientVersion, utils.VersionHash)

	cmd.Execute()
}

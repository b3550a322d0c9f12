package logging

import (
	"log/slog"
	"time"

	"github.com/forgeapps/licensing-backend/internal/models"
	"gorm.io/gorm"
)

// systemLogRetention bounds how long persisted error records are kept.
// Webhook and activation failures older than this have been acted on or
// never will be.
const systemLogRetention = 30 * 24 * time.Hour

// StartCleanup prunes system_logs on a daily cadence so error records don't
// accumulate unbounded. Closing done stops the loop.
func StartCleanup(db *gorm.DB, done chan struct{}) {
	go func() {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				pruneSystemLogs(db)
			case <-done:
				return
			}
		}
	}()
}

func pruneSystemLogs(db *gorm.DB) {
	cutoff := time.Now().Add(-systemLogRetention)
	result := db.Where("timestamp < ?", cutoff).Delete(&models.SystemLog{})
	if result.Error != nil {
		slog.Error("system log pruning failed", "error", result.Error)
		return
	}
	if result.RowsAffected > 0 {
		slog.Info("system logs pruned", "deleted", result.RowsAffected)
	}
}

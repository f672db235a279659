package handlers

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"galleria/internal/database"
	"galleria/pkg/logger"
	"galleria/pkg/utils"
)

// BackupHandler streams a point-in-time snapshot of the SQLite database.
// Stored image files are not part of it.
// GET /api/admin/backup
func (s *Server) BackupHandler(w http.ResponseWriter, r *http.Request) {
	// One backup at a time
	if !s.backupMutex.TryLock() {
		utils.WriteError(w, http.StatusTooManyRequests, utils.ErrBackupConcurrencyLimit, "Another backup is currently in progress.")
		return
	}
	defer s.backupMutex.Unlock()

	filename := fmt.Sprintf("galleria_backup_%s.db", time.Now().Format("2006-01-02_15-04-05"))
	tempPath := filepath.Join(os.TempDir(), filename)

	ctx, cancel := context.WithTimeout(r.Context(), 60*time.Second)
	defer cancel()

	if err := database.Snapshot(ctx, s.DB, tempPath); err != nil {
		logger.LogError("Backup: %v", err)
		utils.WriteError(w, http.StatusInternalServerError, utils.ErrServerInternal, "Internal database snapshot failed.")
		return
	}
	defer func() {
		if err := os.Remove(tempPath); err != nil {
			logger.LogWarn("Backup: could not remove %s: %v", tempPath, err)
		}
	}()

	info, err := os.Stat(tempPath)
	if err != nil {
		utils.WriteError(w, http.StatusInternalServerError, utils.ErrServerInternal, "Failed to verify backup integrity.")
		return
	}

	// Security headers against sniffing and caching
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.Header().Set("Content-Type", "application/x-sqlite3")
	w.Header().Set("Content-Length", fmt.Sprintf("%d", info.Size()))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, private")

	http.ServeFile(w, r, tempPath)
}

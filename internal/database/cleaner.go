package database

import (
	"context"
	"fmt"
	"os"
	"time"

	"gorm.io/gorm"

	"galleria/pkg/logger"
	"galleria/pkg/utils"
)

/*
Storage maintenance

Freed pages are not returned to the OS right away: SQLite reuses them for new
rows, which is cheaper than growing the file again. The worker only rebuilds
the file when it is both large (above the configured threshold, WAL
included) and mostly empty (more than half of its pages on the freelist),
which typically follows a bulk delete.

Photos are never pruned; originals live in asset storage and the rows are
small.
*/

// BloatRatio is the freelist share above which VACUUM runs.
const BloatRatio = 0.50

type Maintainer struct {
	DB        *gorm.DB
	Path      string
	Threshold int64
	Interval  time.Duration
}

// Start runs the worker until ctx is cancelled, checking once immediately.
func (m *Maintainer) Start(ctx context.Context) {
	if m.Interval <= 0 {
		m.Interval = 30 * time.Minute
	}
	logger.LogInfo("Storage maintenance started. Threshold: %s, Interval: %s", utils.FormatBytes(m.Threshold), m.Interval)

	ticker := time.NewTicker(m.Interval)
	defer ticker.Stop()

	m.check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.check(ctx)
		}
	}
}

func (m *Maintainer) check(ctx context.Context) {
	vacuumed, err := m.RunOnce(ctx)
	if err != nil {
		logger.LogError("Maintenance failed: %v", err)
		return
	}
	if vacuumed {
		logger.LogSuccess("VACUUM completed. Disk space reclaimed.")
	}
}

// PageStats is a snapshot of SQLite page usage.
type PageStats struct {
	PageSize  int64
	PageCount int64
	FreePages int64
}

// FreeRatio is the share of pages on the freelist.
func (p PageStats) FreeRatio() float64 {
	if p.PageCount == 0 {
		return 0
	}
	return float64(p.FreePages) / float64(p.PageCount)
}

func ReadPageStats(ctx context.Context, db *gorm.DB) (PageStats, error) {
	var s PageStats
	for pragma, dst := range map[string]*int64{
		"page_size":      &s.PageSize,
		"page_count":     &s.PageCount,
		"freelist_count": &s.FreePages,
	} {
		if err := db.WithContext(ctx).Raw("PRAGMA " + pragma).Row().Scan(dst); err != nil {
			return s, fmt.Errorf("read %s: %w", pragma, err)
		}
	}
	return s, nil
}

// RunOnce performs one maintenance pass and reports whether it vacuumed.
func (m *Maintainer) RunOnce(ctx context.Context) (bool, error) {
	physicalSize, err := fileSize(m.Path)
	if err != nil {
		return false, fmt.Errorf("stat database: %w", err)
	}

	// If below the threshold, do nothing. We keep the allocated space for future writes.
	if physicalSize < m.Threshold {
		return false, nil
	}

	stats, err := ReadPageStats(ctx, m.DB)
	if err != nil {
		return false, err
	}

	logger.LogInfo("Storage Analysis - Phys: %s | Pages: %d | Free: %d (%.0f%%)",
		utils.FormatBytes(physicalSize), stats.PageCount, stats.FreePages, stats.FreeRatio()*100)

	if stats.FreeRatio() <= BloatRatio {
		return false, nil
	}

	logger.LogWarn("DB is bloated (>50%% empty). Starting VACUUM to reclaim space...")

	// Commit WAL to the main file before rebuilding it.
	if err := m.DB.WithContext(ctx).Exec("PRAGMA wal_checkpoint(TRUNCATE);").Error; err != nil {
		return false, fmt.Errorf("wal checkpoint: %w", err)
	}

	startTime := time.Now()
	if err := m.DB.WithContext(ctx).Exec("VACUUM;").Error; err != nil {
		return false, fmt.Errorf("vacuum: %w", err)
	}
	logger.LogInfo("VACUUM finished in %v", time.Since(startTime))
	return true, nil
}

// fileSize includes the WAL file, which also consumes disk space.
func fileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	size := info.Size()
	if walInfo, err := os.Stat(path + "-wal"); err == nil {
		size += walInfo.Size()
	}
	return size, nil
}

// Snapshot writes a consistent copy of the live database to dst with
// VACUUM INTO, without blocking readers.
func Snapshot(ctx context.Context, db *gorm.DB, dst string) error {
	if err := db.WithContext(ctx).Exec("VACUUM INTO ?", dst).Error; err != nil {
		return fmt.Errorf("vacuum into: %w", err)
	}
	return nil
}

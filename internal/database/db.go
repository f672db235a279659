package database

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"galleria/internal/appinfo"
	"galleria/internal/config"
	"galleria/pkg/logger"
)

var DB *gorm.DB

// DriverName is go-sqlite3 with FOLD(text) registered on every connection.
// FOLD lowercases with Unicode rules, unlike the built-in ASCII-only LOWER.
const DriverName = "sqlite3_galleria"

func init() {
	sql.Register(DriverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc("fold", strings.ToLower, true)
		},
	})
}

// InitDB opens the configured database into DB and loads the initial stats.
// The application terminates if the database cannot be opened.
func InitDB() {
	db, err := Open(config.AppConfig.Database.Path)
	if err != nil {
		log.Fatalf("[FATAL] Database initialization failed: %v", err)
	}
	DB = db

	loadInitialStats(DB)
	logger.LogInfo("Database initialized successfully")
}

// Open connects to SQLite with WAL tuning and runs migrations. A path
// starting with "file:" is used as a raw DSN (tests use in-memory DSNs).
func Open(path string) (*gorm.DB, error) {
	dsn := path
	if !strings.HasPrefix(path, "file:") {
		if err := ensureDir(path); err != nil {
			return nil, fmt.Errorf("ensure database directory: %w", err)
		}

		// WAL mode enables concurrent readers and a single writer without locking the entire file.
		// busy_timeout ensures the driver waits for the lock instead of failing immediately.
		dsn = fmt.Sprintf(
			"%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_cache_size=-20000&_foreign_keys=on",
			path,
		)
	}

	gormConfig := &gorm.Config{
		Logger:                 gormLogger.Default.LogMode(gormLogger.Silent),
		PrepareStmt:            true,
		SkipDefaultTransaction: true,
	}

	db, err := gorm.Open(sqlite.New(sqlite.Config{DriverName: DriverName, DSN: dsn}), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	if err := configurePool(db); err != nil {
		return nil, err
	}
	if err := runMigrations(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return os.MkdirAll(dir, 0750) // 0750: Restricted access for security
	}
	return nil
}

func configurePool(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("retrieve generic database interface: %w", err)
	}

	// Limit concurrency to prevent disk I/O throttling on the single SQLite file.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(1 * time.Hour)
	return nil
}

func runMigrations(db *gorm.DB) error {
	if err := db.AutoMigrate(&User{}, &Category{}, &Tag{}, &Image{}); err != nil {
		return fmt.Errorf("schema migration failed: %w", err)
	}

	// Raw SQL is used here to ensure idempotent index creation
	indices := []string{
		"CREATE INDEX IF NOT EXISTS idx_images_upload_time ON images(upload_time DESC);",
		"CREATE INDEX IF NOT EXISTS idx_images_shoot_time ON images(shoot_time);",
		"CREATE INDEX IF NOT EXISTS idx_images_visibility ON images(is_public, user_id);",
		"CREATE INDEX IF NOT EXISTS idx_image_tags_tag_id ON image_tags(tag_id);",
	}

	for _, idx := range indices {
		if err := db.Exec(idx).Error; err != nil {
			logger.LogWarn("Failed to create index: %v", err)
		}
	}
	return nil
}

func loadInitialStats(db *gorm.DB) {
	var count int64
	var totalKB int64

	// IFNULL is required to handle the case where the table is empty (returns 0 instead of NULL)
	row := db.Model(&Image{}).Select("count(*), IFNULL(SUM(file_size), 0)").Row()

	if err := row.Scan(&count, &totalKB); err != nil {
		logger.LogWarn("Failed to load initial stats: %v", err)
		return
	}

	appinfo.SetInitialStats(count, totalKB*1024)
}

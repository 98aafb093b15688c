package database

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// LocalDB manages the station's local SQLite database: the persistent
// device identity and the local print log.
type LocalDB struct {
	db     *gorm.DB
	dbPath string
}

var localDB *LocalDB

// InitializeLocalDB opens (and migrates) the local SQLite database.
func InitializeLocalDB(dbPath string) error {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}

	// CGO-free driver
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return fmt.Errorf("failed to connect to local database: %w", err)
	}

	localDB = &LocalDB{db: db, dbPath: dbPath}

	if err := localDB.runMigrations(); err != nil {
		return fmt.Errorf("failed to run local migrations: %w", err)
	}

	return nil
}

// GetLocalDB returns the local database instance
func GetLocalDB() *LocalDB {
	if localDB == nil {
		InitializeLocalDB("./data/local.db")
	}
	return localDB
}

func (l *LocalDB) runMigrations() error {
	return l.db.AutoMigrate(
		&DeviceIdentity{},
		&PrintLogEntry{},
	)
}

// DeviceIdentity is the stable identifier this station reports on every
// job it resolves. Generated once and kept across restarts.
type DeviceIdentity struct {
	ID        uint      `gorm:"primaryKey"`
	DeviceID  string    `gorm:"unique"`
	CreatedAt time.Time `json:"created_at"`
}

// PrintLogEntry records one local print attempt for troubleshooting.
type PrintLogEntry struct {
	ID          uint      `gorm:"primaryKey"`
	JobID       uint      `gorm:"index" json:"job_id"`
	PrintType   string    `json:"print_type"`
	PrinterName string    `json:"printer_name"`
	Success     bool      `json:"success"`
	Fallback    bool      `json:"fallback"`
	ErrorDetail string    `json:"error_detail"`
	CreatedAt   time.Time `gorm:"index" json:"created_at"`
}

// GetOrCreateDeviceID returns the station's device identifier, creating
// and persisting one on first run.
func (l *LocalDB) GetOrCreateDeviceID() (string, error) {
	var identity DeviceIdentity
	err := l.db.First(&identity).Error
	if err == nil {
		return identity.DeviceID, nil
	}
	if err != gorm.ErrRecordNotFound {
		return "", fmt.Errorf("failed to read device identity: %w", err)
	}

	raw := make([]byte, 8)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate device id: %w", err)
	}
	identity = DeviceIdentity{DeviceID: "station-" + hex.EncodeToString(raw)}

	if err := l.db.Create(&identity).Error; err != nil {
		return "", fmt.Errorf("failed to persist device identity: %w", err)
	}
	return identity.DeviceID, nil
}

// RecordPrint appends one entry to the local print log.
func (l *LocalDB) RecordPrint(entry PrintLogEntry) error {
	return l.db.Create(&entry).Error
}

// RecentPrints returns the newest print log entries, most recent first.
func (l *LocalDB) RecentPrints(limit int) ([]PrintLogEntry, error) {
	var entries []PrintLogEntry
	err := l.db.Order("created_at DESC").Limit(limit).Find(&entries).Error
	return entries, err
}

// CleanOldEntries removes print log entries older than the given age.
func (l *LocalDB) CleanOldEntries(maxAge time.Duration) error {
	cutoff := time.Now().UTC().Add(-maxAge)
	return l.db.Where("created_at < ?", cutoff).Delete(&PrintLogEntry{}).Error
}

// Close closes the local database.
func (l *LocalDB) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	sqlDB, err := l.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

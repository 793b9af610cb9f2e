// Package mysqlstore persists authorization records in MySQL so they
// survive gateway restarts.
package mysqlstore

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	authsync "github.com/zhangweimingit/AuthSyncServer"
)

// authRecord is the persisted row shape. A record is identified by its
// group and MAC address; republishing replaces the previous row.
type authRecord struct {
	GroupID  uint32 `gorm:"column:group_id;primaryKey"`
	MAC      string `gorm:"column:mac;primaryKey;size:17"`
	Attr     uint16 `gorm:"column:attr"`
	AuthTime int64  `gorm:"column:auth_time"`
	Duration uint32 `gorm:"column:duration"`
}

func (authRecord) TableName() string {
	return "auth_records"
}

// Store is a RecordStore backed by MySQL.
type Store struct {
	db *gorm.DB
}

// Option configures a Store.
type Option func(*options)

type options struct {
	logLevel logger.LogLevel
}

// WithQueryLogging enables gorm's own query logging. Off by default; the
// gateway logs store failures itself.
func WithQueryLogging() Option {
	return func(o *options) {
		o.logLevel = logger.Info
	}
}

// Open connects to MySQL and migrates the record table.
func Open(dsn string, opts ...Option) (*Store, error) {
	o := &options{logLevel: logger.Silent}
	for _, opt := range opts {
		opt(o)
	}

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(o.logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open mysql store: %w", err)
	}

	if err := db.AutoMigrate(&authRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate record table: %w", err)
	}

	return &Store{db: db}, nil
}

// LoadAll returns every live persisted record. Rows already expired are
// pruned first so the table does not accumulate dead entries across
// restarts.
func (s *Store) LoadAll(ctx context.Context) ([]authsync.AuthRecord, error) {
	now := time.Now().Unix()

	if err := s.db.WithContext(ctx).
		Where("auth_time + duration <= ?", now).
		Delete(&authRecord{}).Error; err != nil {
		return nil, fmt.Errorf("failed to prune expired records: %w", err)
	}

	var rows []authRecord
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load records: %w", err)
	}

	records := make([]authsync.AuthRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, authsync.AuthRecord{
			MAC:      row.MAC,
			Attr:     row.Attr,
			GroupID:  row.GroupID,
			AuthTime: row.AuthTime,
			Duration: row.Duration,
		})
	}
	return records, nil
}

// Upsert writes one record, replacing any previous row for the same group
// and MAC.
func (s *Store) Upsert(ctx context.Context, rec authsync.AuthRecord) error {
	row := authRecord{
		GroupID:  rec.GroupID,
		MAC:      rec.MAC,
		Attr:     rec.Attr,
		AuthTime: rec.AuthTime,
		Duration: rec.Duration,
	}

	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to upsert record for %s: %w", rec.MAC, err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

package store

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type snapshotRow struct {
	ID        uint `gorm:"primaryKey"`
	Data      []byte
	UpdatedAt time.Time
}

func (snapshotRow) TableName() string { return "lobby_snapshots" }

// GormStore keeps the snapshot as a single upserted row in postgres, for
// deployments where the service has no durable filesystem.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open snapshot db: %w", err)
	}
	if err := db.AutoMigrate(&snapshotRow{}); err != nil {
		return nil, fmt.Errorf("migrate snapshot db: %w", err)
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) Save(data []byte) error {
	row := snapshotRow{ID: 1, Data: data}
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("snapshot save: %w", err)
	}
	return nil
}

func (s *GormStore) Load() ([]byte, error) {
	var row snapshotRow
	err := s.db.First(&row, 1).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("snapshot load: %w", err)
	}
	return row.Data, nil
}

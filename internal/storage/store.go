package storage

import (
	"errors"
	"fmt"
	"time"

	"grid-trader-go/internal/models"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// Store owns the bot's on-disk state: the config snapshot, the discovered
// closed orders and the asset valuation curve.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewStore opens (or creates) the sqlite database at dsn and migrates the schema.
func NewStore(dsn string, logger *zap.Logger) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", dsn, err)
	}

	if err := db.AutoMigrate(&models.BotState{}, &models.ClosedOrder{}, &models.AssetPoint{}); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

// LoadOrInitState returns the persisted bot state, creating it on first run.
// If the stored config snapshot differs from the active one in any field, the
// stored history is stale grid semantics: everything is wiped and history
// restarts from now. The second return reports whether prior state survived.
func (s *Store) LoadOrInitState(configSnapshot string, now time.Time) (*models.BotState, bool, error) {
	var state models.BotState
	err := s.db.First(&state).Error

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		// First run.
	case err != nil:
		return nil, false, fmt.Errorf("load bot state: %w", err)
	case state.ConfigJSON == configSnapshot:
		return &state, true, nil
	default:
		s.logger.Warn("grid config changed since last run, discarding history")
		if err := s.wipe(); err != nil {
			return nil, false, err
		}
	}

	state = models.BotState{ConfigJSON: configSnapshot, StartTime: now}
	if err := s.db.Create(&state).Error; err != nil {
		return nil, false, fmt.Errorf("init bot state: %w", err)
	}
	return &state, false, nil
}

func (s *Store) wipe() error {
	for _, model := range []interface{}{
		&models.BotState{}, &models.ClosedOrder{}, &models.AssetPoint{},
	} {
		if err := s.db.Session(&gorm.Session{AllowGlobalUpdate: true}).Unscoped().Delete(model).Error; err != nil {
			return fmt.Errorf("wipe stale state: %w", err)
		}
	}
	return nil
}

// State returns the persisted bot state without creating one. Read-only
// consumers (the status server) use this instead of LoadOrInitState.
func (s *Store) State() (*models.BotState, error) {
	var state models.BotState
	if err := s.db.First(&state).Error; err != nil {
		return nil, err
	}
	return &state, nil
}

// RecordClosedOrders persists newly discovered closed orders. Replays of an
// already-recorded order id are ignored, keeping discovery idempotent across
// restarts.
func (s *Store) RecordClosedOrders(orders []models.ClosedOrder) error {
	if len(orders) == 0 {
		return nil
	}
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "order_id"}},
		DoNothing: true,
	}).Create(&orders).Error
	if err != nil {
		return fmt.Errorf("record closed orders: %w", err)
	}
	return nil
}

// ClosedOrders returns the whole recorded history, oldest first.
func (s *Store) ClosedOrders() ([]models.ClosedOrder, error) {
	var orders []models.ClosedOrder
	if err := s.db.Order("update_time asc").Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("load closed orders: %w", err)
	}
	return orders, nil
}

// RecentClosedOrders returns up to n orders, newest first.
func (s *Store) RecentClosedOrders(n int) ([]models.ClosedOrder, error) {
	var orders []models.ClosedOrder
	if err := s.db.Order("update_time desc").Limit(n).Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("load recent closed orders: %w", err)
	}
	return orders, nil
}

// SaveAssetPoint appends one sample to the valuation curve.
func (s *Store) SaveAssetPoint(p *models.AssetPoint) error {
	if err := s.db.Create(p).Error; err != nil {
		return fmt.Errorf("save asset point: %w", err)
	}
	return nil
}

// AssetCurve returns the valuation samples taken at or after since, oldest first.
func (s *Store) AssetCurve(since time.Time) ([]models.AssetPoint, error) {
	var points []models.AssetPoint
	if err := s.db.Where("sampled_at >= ?", since).Order("sampled_at asc").Find(&points).Error; err != nil {
		return nil, fmt.Errorf("load asset curve: %w", err)
	}
	return points, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	db, err := s.db.DB()
	if err != nil {
		return err
	}
	return db.Close()
}

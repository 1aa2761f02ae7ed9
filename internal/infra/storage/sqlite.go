// Package storage persists the settlement journal in SQLite.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"repricer_go/internal/domain"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Journal is an append-only SQLite store of fills and closed markets.
// It is never read back into the engine.
type Journal struct {
	db *gorm.DB
}

var _ domain.Journal = (*Journal)(nil)

// NewJournal opens (or creates) the journal database at path.
func NewJournal(path string) (*Journal, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create DB directory: %w", err)
		}
	}

	// Connect to SQLite (Pure Go)
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(&domain.FillRecord{}, &domain.ClosedMarketRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Journal{db: db}, nil
}

// Close releases the underlying connection.
func (j *Journal) Close() error {
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ======================================================================================
// Writes
// ======================================================================================

// SaveFill appends one fill.
func (j *Journal) SaveFill(ctx context.Context, rec *domain.FillRecord) error {
	return j.db.WithContext(ctx).Create(rec).Error
}

// SaveClosedMarket appends the final snapshot of an evicted market.
func (j *Journal) SaveClosedMarket(ctx context.Context, rec *domain.ClosedMarketRecord) error {
	return j.db.WithContext(ctx).Create(rec).Error
}

// ======================================================================================
// Reads (settlement and inspection only)
// ======================================================================================

// ListFills returns the fills of a market in fill order.
func (j *Journal) ListFills(ctx context.Context, marketID domain.MarketID) ([]domain.FillRecord, error) {
	var fills []domain.FillRecord
	err := j.db.WithContext(ctx).
		Where("market_id = ?", string(marketID)).
		Order("filled_at ASC").
		Find(&fills).Error
	return fills, err
}

// ListClosedMarkets returns the most recent closed markets, newest first.
func (j *Journal) ListClosedMarkets(ctx context.Context, limit int) ([]domain.ClosedMarketRecord, error) {
	var out []domain.ClosedMarketRecord
	err := j.db.WithContext(ctx).
		Order("closed_at DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

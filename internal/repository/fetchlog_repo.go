package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nsvirk/ocbridge/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// FetchLogRepository keeps a history of completed fetches
type FetchLogRepository struct {
	DB *gorm.DB
}

func NewFetchLogRepository(db *gorm.DB) *FetchLogRepository {
	return &FetchLogRepository{DB: db}
}

// Record stores the headline numbers of a snapshot
func (r *FetchLogRepository) Record(ctx context.Context, snap *models.OptionChainSnapshot, took time.Duration) error {
	summary, err := json.Marshal(struct {
		MarketData models.MarketData `json:"market_data"`
		Signals    models.Signals    `json:"signals"`
	}{snap.MarketData, snap.Signals})
	if err != nil {
		return err
	}

	row := models.FetchLogModel{
		FetchID:      snap.FetchID,
		Symbol:       snap.Symbol,
		OptionExpiry: snap.OptionExpiry,
		FutureExpiry: snap.FutureExpiry,
		ChainLength:  snap.ChainLength,
		DataSource:   snap.DataSource,
		Strikes:      len(snap.OptionChain),
		DurationMs:   took.Milliseconds(),
		Summary:      datatypes.JSON(summary),
	}
	return r.DB.WithContext(ctx).Create(&row).Error
}

// Recent returns the latest fetches, newest first
func (r *FetchLogRepository) Recent(ctx context.Context, limit int) ([]models.FetchLogModel, error) {
	var rows []models.FetchLogModel
	err := r.DB.WithContext(ctx).Order("created_at desc").Limit(limit).Find(&rows).Error
	return rows, err
}

package models

import (
	"time"

	"gorm.io/datatypes"
)

const FetchLogsTableName = "fetch_logs"

// FetchLogModel records one completed fetch without its strike rows
type FetchLogModel struct {
	FetchID      string         `gorm:"primaryKey" json:"fetch_id"`
	Symbol       string         `gorm:"index" json:"symbol"`
	OptionExpiry string         `json:"option_expiry"`
	FutureExpiry string         `json:"future_expiry"`
	ChainLength  int            `json:"chain_length"`
	DataSource   string         `gorm:"index" json:"data_source"`
	Strikes      int            `json:"strikes"`
	DurationMs   int64          `json:"duration_ms"`
	Summary      datatypes.JSON `gorm:"type:jsonb" json:"summary"`
	CreatedAt    time.Time      `gorm:"autoCreateTime;index" json:"created_at"`
}

func (FetchLogModel) TableName() string {
	return FetchLogsTableName
}

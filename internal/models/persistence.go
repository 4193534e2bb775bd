package models

import (
	"time"

	"gorm.io/gorm"
)

// BotState is the single persisted row describing the running bot: the config
// snapshot it was started with and when history began. A config change on
// restart invalidates the row and restarts history from zero.
type BotState struct {
	gorm.Model
	ConfigJSON string    `gorm:"not null"`
	StartTime  time.Time `gorm:"not null"`
}

// ClosedOrder is a filled, grid-matched order discovered from exchange history.
type ClosedOrder struct {
	gorm.Model
	OrderID    int64  `gorm:"uniqueIndex"`
	Symbol     string `gorm:"index"`
	Side       string
	Price      string // decimal, stored as text to avoid float drift
	OrigQty    string
	GridID     int
	Time       int64
	UpdateTime int64 `gorm:"index"`
}

// AssetPoint is one sample of the account valuation curve, recorded roughly
// once a minute while the bot runs.
type AssetPoint struct {
	gorm.Model
	SampledAt   time.Time `gorm:"index"`
	Price       string
	QuoteFree   string
	QuoteLocked string
	BaseTotal   string
	FiatTotal   string
}

package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// UsageRecord is an append-only ledger entry for one metered action.
type UsageRecord struct {
	ID               uint              `gorm:"primaryKey" json:"id"`
	UserID           uint              `gorm:"not null;index" json:"user_id"`
	BillingAccountID uint              `gorm:"not null;index:idx_usage_records_account_time,priority:1" json:"billing_account_id"`
	Metric           string            `gorm:"type:varchar(100);not null;index" json:"metric"`
	Amount           float64           `gorm:"not null" json:"amount"`
	Unit             string            `gorm:"type:varchar(30);not null" json:"unit"`
	Cost             decimal.Decimal   `gorm:"type:decimal(14,4);not null" json:"cost"`
	Metadata         datatypes.JSONMap `json:"metadata,omitempty"`
	Timestamp        time.Time         `gorm:"type:timestamp;not null;index:idx_usage_records_account_time,priority:2" json:"timestamp"`
	CreatedAt        time.Time         `gorm:"autoCreateTime" json:"created_at"`
}

// UsageSummary aggregates ledger entries of one metric.
type UsageSummary struct {
	Metric      string          `json:"metric"`
	TotalAmount float64         `json:"total_amount"`
	TotalCost   decimal.Decimal `json:"total_cost"`
	Count       int64           `json:"count"`
}

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// prices go over the wire as JSON numbers, the shape webhook producers send
	decimal.MarshalJSONWithoutQuotes = true
}

// SignalEvent is one stored trading signal. Rows are append-only.
type SignalEvent struct {
	ID             int64           `gorm:"column:id;primaryKey;autoIncrement;index:idx_trading_data_ts_id,priority:2" json:"id"`
	Symbol         string          `gorm:"column:symbol;type:varchar(32);not null" json:"symbol"`
	Price          decimal.Decimal `gorm:"column:price;type:decimal(24,8);not null" json:"price"`
	Signal         string          `gorm:"column:signal_;type:varchar(64);not null" json:"signal"`
	Timestamp      time.Time       `gorm:"column:timestamp;not null;index:idx_trading_data_ts_id,priority:1,sort:desc" json:"timestamp"`
	AdditionalInfo string          `gorm:"column:additional_info;type:text" json:"additionalInfo"`
}

func (SignalEvent) TableName() string {
	return "trading_data"
}

// Page is one window over the newest-first ordering.
type Page struct {
	Items       []SignalEvent
	Total       int64
	TotalPages  int
	CurrentPage int
	Limit       int
}

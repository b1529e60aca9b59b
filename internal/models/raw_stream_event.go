package models

import (
	"time"

	"gorm.io/datatypes"
)

// RawStreamEvent archives raw payloads received on the provider price feed,
// for replay and debugging.
type RawStreamEvent struct {
	ID           uint64         `gorm:"primaryKey;autoIncrement"`
	MarketTicker *string        `gorm:"type:varchar(100);index"`
	EventType    string         `gorm:"type:varchar(40);index"`
	ReceivedAt   time.Time      `gorm:"type:timestamptz;not null;index"`
	Payload      datatypes.JSON `gorm:"type:jsonb"`
}

func (RawStreamEvent) TableName() string {
	return "raw_stream_events"
}

package models

import "time"

// KVEntry backs the fallback visit store when it is kept in the database.
// Keys are namespaced by the caller, e.g. nomada_daily_visits_2024-05-02.
type KVEntry struct {
	Key       string    `gorm:"column:entry_key;size:191;primaryKey" json:"key"`
	Value     string    `gorm:"type:text" json:"value"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (KVEntry) TableName() string {
	return "kv_entries"
}

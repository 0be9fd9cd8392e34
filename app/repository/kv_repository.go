package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/nomadaapp/nomada/app/models"
)

// kvRepository implements the KeyValueRepository interface on the
// kv_entries table.
type kvRepository struct {
	db *gorm.DB
}

// NewKeyValueRepository creates a new key value repository instance
func NewKeyValueRepository(db *gorm.DB) KeyValueRepository {
	return &kvRepository{db: db}
}

func (r *kvRepository) Get(ctx context.Context, key string) (string, bool, error) {
	var entry models.KVEntry
	err := r.db.WithContext(ctx).Where("entry_key = ?", key).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return entry.Value, true, nil
}

// Set upserts the value.
func (r *kvRepository) Set(ctx context.Context, key, value string) error {
	entry := models.KVEntry{Key: key, Value: value}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "entry_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&entry).Error
}

func (r *kvRepository) Delete(ctx context.Context, key string) error {
	return r.db.WithContext(ctx).Where("entry_key = ?", key).Delete(&models.KVEntry{}).Error
}

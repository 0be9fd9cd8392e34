package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/nomadaapp/nomada/app/models"
)

// subscriberRepository implements the SubscriberRepository interface
type subscriberRepository struct {
	db *gorm.DB
}

// NewSubscriberRepository creates a new subscriber repository instance
func NewSubscriberRepository(db *gorm.DB) SubscriberRepository {
	return &subscriberRepository{db: db}
}

func (r *subscriberRepository) Create(ctx context.Context, subscriber *models.Subscriber) error {
	err := r.db.WithContext(ctx).Create(subscriber).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrSubscriberExists
	}
	if err != nil {
		return fmt.Errorf("create subscriber: %w", err)
	}
	return nil
}

func (r *subscriberRepository) GetByID(ctx context.Context, id string) (*models.Subscriber, error) {
	var subscriber models.Subscriber
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&subscriber).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSubscriberNotFound
	}
	if err != nil {
		return nil, err
	}
	return &subscriber, nil
}

func (r *subscriberRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Subscriber{}).
		Where("email = ?", models.NormalizeEmail(email)).
		Count(&count).Error
	return count > 0, err
}

func (r *subscriberRepository) UpdateStatus(ctx context.Context, id, status string) error {
	res := r.db.WithContext(ctx).Model(&models.Subscriber{}).Where("id = ?", id).Update("status", status)
	if res.Error != nil {
		return fmt.Errorf("update subscriber status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrSubscriberNotFound
	}
	return nil
}

func (r *subscriberRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Subscriber{})
	if res.Error != nil {
		return fmt.Errorf("delete subscriber: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrSubscriberNotFound
	}
	return nil
}

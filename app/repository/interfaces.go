package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/nomadaapp/nomada/app/models"
)

var (
	ErrSubscriberExists   = errors.New("subscriber already exists")
	ErrSubscriberNotFound = errors.New("subscriber not found")
)

// SubscriberRepository defines the interface for waitlist subscribers
type SubscriberRepository interface {
	// Create returns ErrSubscriberExists when the email is already listed.
	Create(ctx context.Context, subscriber *models.Subscriber) error
	GetByID(ctx context.Context, id string) (*models.Subscriber, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	UpdateStatus(ctx context.Context, id, status string) error
	// Delete returns ErrSubscriberNotFound when nothing was deleted.
	Delete(ctx context.Context, id string) error
}

// KeyValueRepository is the persistent storage behind the fallback visit
// store. It satisfies statistics.Storage.
type KeyValueRepository interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Repositories struct holds all repository instances
type Repositories struct {
	Subscriber SubscriberRepository
	KeyValue   KeyValueRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Subscriber: NewSubscriberRepository(db),
		KeyValue:   NewKeyValueRepository(db),
	}
}

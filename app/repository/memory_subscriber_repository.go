package repository

import (
	"context"
	"sync"
	"time"

	"github.com/nomadaapp/nomada/app/models"
)

// memorySubscriberRepository keeps subscribers in process. Used when no
// database is configured and in tests.
type memorySubscriberRepository struct {
	mu      sync.RWMutex
	byID    map[string]*models.Subscriber
	byEmail map[string]string
}

func NewMemorySubscriberRepository() SubscriberRepository {
	return &memorySubscriberRepository{
		byID:    map[string]*models.Subscriber{},
		byEmail: map[string]string{},
	}
}

func (r *memorySubscriberRepository) Create(_ context.Context, subscriber *models.Subscriber) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	email := models.NormalizeEmail(subscriber.Email)
	if _, ok := r.byEmail[email]; ok {
		return ErrSubscriberExists
	}
	if err := subscriber.BeforeCreate(nil); err != nil {
		return err
	}
	now := time.Now()
	subscriber.Email = email
	subscriber.CreatedAt = now
	subscriber.UpdatedAt = now

	cp := *subscriber
	r.byID[cp.ID] = &cp
	r.byEmail[email] = cp.ID
	return nil
}

func (r *memorySubscriberRepository) GetByID(_ context.Context, id string) (*models.Subscriber, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byID[id]
	if !ok {
		return nil, ErrSubscriberNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *memorySubscriberRepository) EmailExists(_ context.Context, email string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byEmail[models.NormalizeEmail(email)]
	return ok, nil
}

func (r *memorySubscriberRepository) UpdateStatus(_ context.Context, id, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[id]
	if !ok {
		return ErrSubscriberNotFound
	}
	s.Status = status
	s.UpdatedAt = time.Now()
	return nil
}

func (r *memorySubscriberRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[id]
	if !ok {
		return ErrSubscriberNotFound
	}
	delete(r.byEmail, s.Email)
	delete(r.byID, id)
	return nil
}

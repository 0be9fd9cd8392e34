package models

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	SUBSCRIBER_STATUS_PENDING = "pending"
	SUBSCRIBER_STATUS_ACTIVE  = "active"
)

// Subscriber is an address on the launch waitlist. Status moves from pending
// to active once the welcome email went out.
type Subscriber struct {
	ID        string    `gorm:"type:char(36);primaryKey" json:"id"`
	Email     string    `gorm:"uniqueIndex;type:varchar(200) CHARACTER SET utf8 COLLATE utf8_bin;not null" json:"email" validate:"required,email,max=200"`
	Status    string    `gorm:"type:varchar(20);default:'pending'" json:"status" validate:"oneof=pending active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// BeforeCreate assigns the uuid and default status.
func (s *Subscriber) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	if s.Status == "" {
		s.Status = SUBSCRIBER_STATUS_PENDING
	}
	return nil
}

func (s *Subscriber) Validate() error {
	v := validator.New()

	return v.Struct(s)
}

// NewSubscriber normalizes and validates the address.
func NewSubscriber(email string) (*Subscriber, error) {
	s := &Subscriber{
		Email:  NormalizeEmail(email),
		Status: SUBSCRIBER_STATUS_PENDING,
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// NormalizeEmail trims and lowercases so the unique index catches duplicates
// that differ only by case.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

package waitlist

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/badoux/checkmail"
	"github.com/rs/zerolog"

	"github.com/nomadaapp/nomada/app/models"
	"github.com/nomadaapp/nomada/app/repository"
	"github.com/nomadaapp/nomada/internal/pkg/mail"
)

const DefaultSendTimeout = 30 * time.Second

var ErrInvalidEmail = errors.New("invalid email address")

// Observer receives waitlist events, typically to feed metrics.
type Observer interface {
	SubscriberJoined(result string)
	WelcomeEmailSent(ok bool)
}

type nopObserver struct{}

func (nopObserver) SubscriberJoined(string) {}
func (nopObserver) WelcomeEmailSent(bool)   {}

type Config struct {
	Repository  repository.SubscriberRepository
	Mailer      mail.Mailer
	Logger      zerolog.Logger
	Observer    Observer
	SiteURL     string
	SendTimeout time.Duration
}

// Service manages waitlist subscribers. Every successful sign up triggers
// a welcome email in the background.
type Service struct {
	repo        repository.SubscriberRepository
	mailer      mail.Mailer
	log         zerolog.Logger
	observer    Observer
	siteURL     string
	sendTimeout time.Duration
	wg          sync.WaitGroup
}

func New(cfg Config) *Service {
	if cfg.Observer == nil {
		cfg.Observer = nopObserver{}
	}
	if cfg.Mailer == nil {
		cfg.Mailer = mail.NewNopMailer(cfg.Logger)
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = DefaultSendTimeout
	}
	return &Service{
		repo:        cfg.Repository,
		mailer:      cfg.Mailer,
		log:         cfg.Logger,
		observer:    cfg.Observer,
		siteURL:     cfg.SiteURL,
		sendTimeout: cfg.SendTimeout,
	}
}

// Join stores a pending subscriber and schedules the welcome email. It
// returns ErrInvalidEmail or repository.ErrSubscriberExists for bad input.
func (s *Service) Join(ctx context.Context, email string) (*models.Subscriber, error) {
	email = models.NormalizeEmail(email)
	if err := checkmail.ValidateFormat(email); err != nil {
		s.observer.SubscriberJoined("invalid")
		return nil, fmt.Errorf("%w: %v", ErrInvalidEmail, err)
	}
	subscriber, err := models.NewSubscriber(email)
	if err != nil {
		s.observer.SubscriberJoined("invalid")
		return nil, fmt.Errorf("%w: %v", ErrInvalidEmail, err)
	}

	exists, err := s.repo.EmailExists(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("check subscriber: %w", err)
	}
	if exists {
		s.observer.SubscriberJoined("duplicate")
		return nil, repository.ErrSubscriberExists
	}

	if err := s.repo.Create(ctx, subscriber); err != nil {
		if errors.Is(err, repository.ErrSubscriberExists) {
			s.observer.SubscriberJoined("duplicate")
		}
		return nil, err
	}
	s.observer.SubscriberJoined("created")
	s.log.Info().Str("subscriber", subscriber.ID).Msg("subscriber joined the waitlist")

	s.wg.Add(1)
	go func(id, email string) {
		defer s.wg.Done()
		s.sendWelcome(id, email)
	}(subscriber.ID, subscriber.Email)

	return subscriber, nil
}

func (s *Service) sendWelcome(id, email string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.sendTimeout)
	defer cancel()
	log := s.log.With().Str("subscriber", id).Logger()

	msg, err := mail.WelcomeMessage(email, s.siteURL)
	if err != nil {
		log.Error().Err(err).Msg("could not render welcome email")
		s.observer.WelcomeEmailSent(false)
		return
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		if !mail.IsNotConfigured(err) {
			log.Error().Err(err).Msg("could not send welcome email")
		}
		s.observer.WelcomeEmailSent(false)
		return
	}
	s.observer.WelcomeEmailSent(true)

	if err := s.repo.UpdateStatus(ctx, id, models.SUBSCRIBER_STATUS_ACTIVE); err != nil {
		// Removed while the email was in flight.
		log.Warn().Err(err).Msg("could not activate subscriber")
	}
}

// Remove deletes a subscriber. Unknown ids yield repository.ErrSubscriberNotFound.
func (s *Service) Remove(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrSubscriberNotFound) {
			return err
		}
		s.log.Error().Err(err).Str("subscriber", id).Msg("could not delete subscriber")
		return err
	}
	s.log.Info().Str("subscriber", id).Msg("subscriber removed")
	return nil
}

// Wait blocks until every scheduled welcome email finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"calendarshare/internal/domain"
	"calendarshare/internal/scheduling"
)

type eventService struct {
	eventRepo      domain.EventRepository
	validator      *scheduling.Validator
	queue          domain.NotificationQueue
	location       *time.Location
	now            func() time.Time
	contextTimeout time.Duration
}

// NewEventService creates an EventService. Share emails are formatted in loc and handed to queue.
func NewEventService(eventRepo domain.EventRepository,
	validator *scheduling.Validator,
	queue domain.NotificationQueue,
	loc *time.Location,
	timeout time.Duration,
) domain.EventService {
	return &eventService{
		eventRepo:      eventRepo,
		validator:      validator,
		queue:          queue,
		location:       loc,
		now:            time.Now,
		contextTimeout: timeout,
	}
}

func (s *eventService) CreateEvent(ctx context.Context, event *domain.Event) error {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	if event.OwnerID == "" {
		return fmt.Errorf("event owner is required")
	}
	event.Title = strings.TrimSpace(event.Title)
	event.Location = strings.TrimSpace(event.Location)
	event.Date = scheduling.Normalize(event.Date)

	if err := s.validator.ValidateCreate(ctx, event.OwnerID, event.Date); err != nil {
		return err
	}

	now := s.now()
	event.CreatedAt = now
	event.UpdatedAt = now
	if err := s.eventRepo.Create(ctx, event); err != nil {
		if errors.Is(err, domain.ErrDateConflict) {
			return domain.ErrDateConflict
		}
		return fmt.Errorf("create event: %w", err)
	}
	return nil
}

func (s *eventService) GetEvent(ctx context.Context, eventID, ownerID string) (*domain.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	event, err := s.ownedEvent(ctx, eventID, ownerID)
	if err != nil {
		return nil, err
	}
	return event, nil
}

func (s *eventService) ListEvents(ctx context.Context, ownerID string) ([]*domain.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	events, err := s.eventRepo.ListByOwnerID(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	if events == nil {
		events = []*domain.Event{}
	}
	return events, nil
}

func (s *eventService) UpdateEvent(ctx context.Context, eventID, ownerID string, changes domain.EventChanges) (*domain.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	event, err := s.getEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}

	proposed := event.Date
	if changes.Date != nil {
		proposed = scheduling.Normalize(*changes.Date)
	}
	if err := s.validator.ValidateUpdate(ctx, event, proposed, ownerID); err != nil {
		return nil, err
	}

	if changes.Title != nil {
		event.Title = strings.TrimSpace(*changes.Title)
	}
	if changes.Location != nil {
		event.Location = strings.TrimSpace(*changes.Location)
	}
	event.Date = proposed
	event.UpdatedAt = s.now()

	if err := s.eventRepo.Save(ctx, event); err != nil {
		switch {
		case errors.Is(err, domain.ErrDateConflict):
			return nil, domain.ErrDateConflict
		case errors.Is(err, domain.ErrNotFound):
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("save event: %w", err)
	}
	return event, nil
}

func (s *eventService) DeleteEvent(ctx context.Context, eventID, ownerID string) error {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	event, err := s.getEvent(ctx, eventID)
	if err != nil {
		return err
	}
	if err := s.validator.ValidateDelete(event, ownerID); err != nil {
		return err
	}
	if err := s.eventRepo.Delete(ctx, eventID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("delete event: %w", err)
	}
	return nil
}

func (s *eventService) ShareEvent(ctx context.Context, eventID string, sender *domain.User, recipientEmail string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	if sender == nil {
		return "", domain.ErrForbidden
	}
	event, err := s.ownedEvent(ctx, eventID, sender.ID)
	if err != nil {
		return "", err
	}

	job := domain.NewShareEventJob(event, sender, recipientEmail, s.location)
	jobID, err := s.queue.Enqueue(ctx, job)
	if err != nil {
		return "", fmt.Errorf("enqueue share email: %w", err)
	}
	return jobID, nil
}

func (s *eventService) getEvent(ctx context.Context, eventID string) (*domain.Event, error) {
	event, err := s.eventRepo.GetByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return event, nil
}

func (s *eventService) ownedEvent(ctx context.Context, eventID, ownerID string) (*domain.Event, error) {
	event, err := s.getEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if event.OwnerID != ownerID {
		return nil, domain.ErrForbidden
	}
	return event, nil
}

package domain

import (
	"context"
	"time"
)

// Event is a personal calendar entry owned by exactly one user.
// swagger:model Event
type Event struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"user_id"`
	Title     string    `json:"title"`
	Location  string    `json:"location"`
	Date      time.Time `json:"date"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewEvent returns a new Event with the given fields. ID is set by the repository on create.
func NewEvent(ownerID, title, location string, date time.Time, createdAt, updatedAt time.Time) *Event {
	return &Event{
		OwnerID:   ownerID,
		Title:     title,
		Location:  location,
		Date:      date,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}
}

// IsPast reports whether the event date has already elapsed at now.
func (e *Event) IsPast(now time.Time) bool {
	return !e.Date.After(now)
}

// EventChanges holds the optional fields of an event update. Nil fields are left unchanged.
type EventChanges struct {
	Title    *string
	Location *string
	Date     *time.Time
}

// EventRepository defines the interface for event storage.
type EventRepository interface {
	// Create inserts the event and sets its ID. It returns ErrDateConflict when the
	// owner already has an event at the same date.
	Create(ctx context.Context, event *Event) error
	GetByID(ctx context.Context, id string) (*Event, error)
	ListByOwnerID(ctx context.Context, ownerID string) ([]*Event, error)
	// CountByOwnerAndDate counts the owner's events at exactly date, ignoring excludeID when set.
	CountByOwnerAndDate(ctx context.Context, ownerID string, date time.Time, excludeID string) (int, error)
	Save(ctx context.Context, event *Event) error
	Delete(ctx context.Context, id string) error
}

// EventService defines the business logic for managing and sharing events.
type EventService interface {
	CreateEvent(ctx context.Context, event *Event) error
	GetEvent(ctx context.Context, eventID, ownerID string) (*Event, error)
	ListEvents(ctx context.Context, ownerID string) ([]*Event, error)
	UpdateEvent(ctx context.Context, eventID, ownerID string, changes EventChanges) (*Event, error)
	DeleteEvent(ctx context.Context, eventID, ownerID string) error
	// ShareEvent queues the share email and returns the job id without waiting for delivery.
	ShareEvent(ctx context.Context, eventID string, sender *User, recipientEmail string) (string, error)
}

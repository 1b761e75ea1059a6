// Package scheduling decides whether an event may be created, moved or removed.
//
// Events are instants, not ranges: a conflict is an exact match of (owner, date) at
// second precision. The store's UNIQUE (user_id, date) constraint stays authoritative;
// the Validator is the fast, user-facing pre-check.
package scheduling

import (
	"context"
	"fmt"
	"time"

	"calendarshare/internal/domain"
)

// EventLookup is the slice of the event store the validator needs.
type EventLookup interface {
	CountByOwnerAndDate(ctx context.Context, ownerID string, date time.Time, excludeID string) (int, error)
}

// Validator checks the temporal and ownership rules for event mutations.
type Validator struct {
	events EventLookup
	now    func() time.Time
}

// Option configures a Validator.
type Option func(*Validator)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(v *Validator) { v.now = now }
}

// NewValidator returns a Validator reading existing events from events.
func NewValidator(events EventLookup, opts ...Option) *Validator {
	v := &Validator{events: events, now: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Normalize truncates a date to the second, the precision events are stored with.
func Normalize(date time.Time) time.Time {
	return date.Truncate(time.Second)
}

// ValidateCreate fails with domain.ErrPastDate when proposed is not strictly in the
// future and with domain.ErrDateConflict when the owner already has an event at proposed.
func (v *Validator) ValidateCreate(ctx context.Context, ownerID string, proposed time.Time) error {
	if err := v.checkFuture(proposed); err != nil {
		return err
	}
	return v.checkConflict(ctx, ownerID, proposed, "")
}

// ValidateUpdate runs the guard chain for moving existing to proposed:
// ownership, frozen, future date, then conflict with the event itself excluded.
func (v *Validator) ValidateUpdate(ctx context.Context, existing *domain.Event, proposed time.Time, ownerID string) error {
	if err := v.checkMutable(existing, ownerID); err != nil {
		return err
	}
	if err := v.checkFuture(proposed); err != nil {
		return err
	}
	return v.checkConflict(ctx, ownerID, proposed, existing.ID)
}

// ValidateDelete fails with domain.ErrForbidden for non-owners and domain.ErrFrozenEvent
// once the event date has elapsed.
func (v *Validator) ValidateDelete(existing *domain.Event, ownerID string) error {
	return v.checkMutable(existing, ownerID)
}

func (v *Validator) checkMutable(existing *domain.Event, ownerID string) error {
	if existing.OwnerID != ownerID {
		return domain.ErrForbidden
	}
	if existing.IsPast(v.now()) {
		return domain.ErrFrozenEvent
	}
	return nil
}

func (v *Validator) checkFuture(proposed time.Time) error {
	if !Normalize(proposed).After(v.now()) {
		return domain.ErrPastDate
	}
	return nil
}

func (v *Validator) checkConflict(ctx context.Context, ownerID string, proposed time.Time, excludeID string) error {
	n, err := v.events.CountByOwnerAndDate(ctx, ownerID, Normalize(proposed), excludeID)
	if err != nil {
		return fmt.Errorf("count events by date: %w", err)
	}
	if n > 0 {
		return domain.ErrDateConflict
	}
	return nil
}

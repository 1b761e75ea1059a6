package domain

import "errors"

// Sentinel errors shared by services, repositories and controllers.
var (
	ErrNotFound               = errors.New("not found")
	ErrForbidden              = errors.New("permission denied")
	ErrPastDate               = errors.New("the date must be a future date")
	ErrDateConflict           = errors.New("there is already an event scheduled for this date/time")
	ErrFrozenEvent            = errors.New("past events cannot be modified")
	ErrTransientDelivery      = errors.New("transient delivery failure")
	ErrDuplicateEmail         = errors.New("email already in use")
	ErrInvalidCredentials     = errors.New("invalid credentials")
	ErrInvalidCurrentPassword = errors.New("the current password is invalid")
)

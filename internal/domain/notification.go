package domain

import (
	"context"
	"strings"
	"time"
)

// ShareEventAttempts is the delivery budget of a share email, first attempt included.
const ShareEventAttempts = 3

const (
	shareDateLayout = "02/01/2006"
	shareTimeLayout = "15:04:05"
)

// NotificationJob carries everything needed to render and send one share email.
// It is built at share time and never persisted.
type NotificationJob struct {
	RecipientEmail string `json:"recipient_email"`
	SenderName     string `json:"name"`
	SenderEmail    string `json:"email"`
	Title          string `json:"title"`
	Location       string `json:"location"`
	Date           string `json:"date"`
	Time           string `json:"time"`
	Attempts       int    `json:"attempts"`
}

// NewShareEventJob builds the notification for sharing event on behalf of sender.
// Date and time are formatted in loc; a nil loc means UTC.
func NewShareEventJob(event *Event, sender *User, recipientEmail string, loc *time.Location) *NotificationJob {
	if loc == nil {
		loc = time.UTC
	}
	at := event.Date.In(loc)
	return &NotificationJob{
		RecipientEmail: strings.TrimSpace(strings.ToLower(recipientEmail)),
		SenderName:     sender.Name,
		SenderEmail:    sender.Email,
		Title:          event.Title,
		Location:       event.Location,
		Date:           at.Format(shareDateLayout),
		Time:           at.Format(shareTimeLayout),
		Attempts:       ShareEventAttempts,
	}
}

// NotificationQueue hands share emails to background delivery.
type NotificationQueue interface {
	// Enqueue accepts job for asynchronous delivery and returns its job id.
	Enqueue(ctx context.Context, job *NotificationJob) (string, error)
}

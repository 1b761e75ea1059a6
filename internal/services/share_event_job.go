package services

import (
	"context"
	"fmt"

	"calendarshare/internal/dispatch"
	"calendarshare/internal/domain"
)

// ShareEventKind is the dispatcher kind that delivers share emails.
const ShareEventKind = "share-event-mail"

// ShareEventDefinition is the typed job definition for share emails.
type ShareEventDefinition = dispatch.Definition[*domain.NotificationJob]

// NewShareEventDefinition binds emailService to the share-event-mail kind. The name in
// kind is always replaced; zero Concurrency and Attempts default to 1 and
// domain.ShareEventAttempts.
func NewShareEventDefinition(emailService domain.EmailService, kind dispatch.Kind) *ShareEventDefinition {
	kind.Name = ShareEventKind
	if kind.Concurrency == 0 {
		kind.Concurrency = 1
	}
	if kind.Attempts == 0 {
		kind.Attempts = domain.ShareEventAttempts
	}
	return dispatch.NewDefinition(kind, emailService.SendShareEvent)
}

type shareEventQueue struct {
	dispatcher *dispatch.Dispatcher
	def        *ShareEventDefinition
}

// NewShareEventQueue returns a NotificationQueue submitting to def on d. def must already
// be registered on d.
func NewShareEventQueue(d *dispatch.Dispatcher, def *ShareEventDefinition) domain.NotificationQueue {
	return &shareEventQueue{dispatcher: d, def: def}
}

func (q *shareEventQueue) Enqueue(ctx context.Context, job *domain.NotificationJob) (string, error) {
	var opts []dispatch.SubmitOption
	if job.Attempts > 0 {
		opts = append(opts, dispatch.WithAttempts(job.Attempts))
	}
	id, err := dispatch.Submit(ctx, q.dispatcher, q.def, job, opts...)
	if err != nil {
		return "", fmt.Errorf("submit %s: %w", ShareEventKind, err)
	}
	return string(id), nil
}

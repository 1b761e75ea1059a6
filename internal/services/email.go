package services

import (
	"context"
	"fmt"
	"log/slog"

	"calendarshare/internal/dispatch"
	"calendarshare/internal/domain"
)

const shareEventTemplate = "share_event"

type emailService struct {
	mailer   domain.Mailer
	renderer domain.EmailTemplateRenderer
	logger   *slog.Logger
}

// NewEmailService returns an EmailService that uses the given Mailer and template renderer.
func NewEmailService(mailer domain.Mailer, renderer domain.EmailTemplateRenderer, logger *slog.Logger) domain.EmailService {
	return &emailService{mailer: mailer, renderer: renderer, logger: logger}
}

// SendShareEvent sends one share email using the "share_event" template. Mailer failures
// wrap domain.ErrTransientDelivery; anything else is permanent and not worth retrying.
func (s *emailService) SendShareEvent(ctx context.Context, job *domain.NotificationJob) error {
	if job == nil {
		return dispatch.Permanent(fmt.Errorf("share event job is nil"))
	}
	if job.RecipientEmail == "" {
		return dispatch.Permanent(fmt.Errorf("share event job has no recipient"))
	}
	subject, htmlBody, textBody, err := s.renderer.Render(shareEventTemplate, job)
	if err != nil {
		return dispatch.Permanent(fmt.Errorf("render %s template: %w", shareEventTemplate, err))
	}
	if err := s.mailer.Send(ctx, job.RecipientEmail, subject, htmlBody, textBody); err != nil {
		return fmt.Errorf("%w: send share email: %w", domain.ErrTransientDelivery, err)
	}
	s.logger.InfoContext(ctx, "share email sent",
		slog.String("to", job.RecipientEmail),
		slog.String("sender", job.SenderEmail),
	)
	return nil
}

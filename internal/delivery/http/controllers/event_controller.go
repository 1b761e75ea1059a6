package controllers

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"calendarshare/internal/adapters/ical"
	"calendarshare/internal/delivery/http/helpers"
	"calendarshare/internal/delivery/http/middleware"
	"calendarshare/internal/domain"
)

// User-facing messages for scheduling rule violations.
const (
	msgPastDate         = "The date must be a future date"
	msgDateConflict     = "There is already an event scheduled for this date/time"
	msgFrozenEdit       = "Past events cannot be edited"
	msgFrozenDelete     = "Past events cannot be deleted"
	msgPermissionDenied = "Permission denied"
	msgEventNotFound    = "event not found"
)

// CreateEventRequest is the request body for POST /events.
type CreateEventRequest struct {
	Title    string     `json:"title" validate:"required,max=255"`
	Location string     `json:"location" validate:"required,max=255"`
	Date     *time.Time `json:"date" validate:"required"`
}

// Validate implements Validator.
func (c CreateEventRequest) Validate() []string {
	return helpers.ValidateStruct(c)
}

// UpdateEventRequest is the request body for PUT and PATCH /events/{eventID}. All fields
// are optional; omitted fields are unchanged.
type UpdateEventRequest struct {
	Title    *string    `json:"title" validate:"omitnil,min=1,max=255"`
	Location *string    `json:"location" validate:"omitnil,min=1,max=255"`
	Date     *time.Time `json:"date"`
}

// Validate implements Validator.
func (u UpdateEventRequest) Validate() []string {
	return helpers.ValidateStruct(u)
}

// ShareEventRequest is the request body for POST /events/{eventID}/share.
type ShareEventRequest struct {
	RecipientEmail string `json:"recipient_email" validate:"required,email"`
}

// Validate implements Validator.
func (s ShareEventRequest) Validate() []string {
	return helpers.ValidateStruct(s)
}

// ShareEventResponse is the response body for POST /events/{eventID}/share. The job id
// identifies the queued email; delivery happens in the background.
type ShareEventResponse struct {
	JobID string `json:"job_id"`
}

// EventSuccessResponse is the success response envelope for endpoints returning one event.
type EventSuccessResponse struct {
	Data  *domain.Event     `json:"data"`
	Error *helpers.APIError `json:"error"`
}

// EventListSuccessResponse is the success response envelope for GET /events.
type EventListSuccessResponse struct {
	Data  []*domain.Event   `json:"data"`
	Error *helpers.APIError `json:"error"`
}

// ShareEventSuccessResponse is the success response envelope for POST /events/{eventID}/share (202).
type ShareEventSuccessResponse struct {
	Data  ShareEventResponse `json:"data"`
	Error *helpers.APIError  `json:"error"`
}

type EventController struct {
	Logger  *slog.Logger
	Service domain.EventService
	ICal    *ical.Encoder
}

func NewEventController(logger *slog.Logger, svc domain.EventService, enc *ical.Encoder) *EventController {
	return &EventController{
		Logger:  logger,
		Service: svc,
		ICal:    enc,
	}
}

// CreateEvent godoc
// @Summary Create an event
// @Description Creates an event for the authenticated user. The date must be in the future and the user must not already have an event at the same date and time (second precision).
// @Tags events
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param event body CreateEventRequest true "Event data"
// @Success 201 {object} controllers.EventSuccessResponse "data contains the created event"
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request, past_date or date_conflict"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /events [post]
func (c *EventController) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req CreateEventRequest
	if !helpers.DecodeAndValidate(w, r, &req) {
		return
	}
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		helpers.WriteJSONError(w, http.StatusUnauthorized, helpers.ErrCodeUnauthorized, "unauthorized")
		return
	}
	event := domain.NewEvent(userID, req.Title, req.Location, *req.Date, time.Time{}, time.Time{})
	if err := c.Service.CreateEvent(r.Context(), event); err != nil {
		c.writeError(w, r, err, "")
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusCreated, event)
}

// ListEvents godoc
// @Summary List my events
// @Description Returns the authenticated user's events, latest date first.
// @Tags events
// @Produce json
// @Security BearerAuth
// @Success 200 {object} controllers.EventListSuccessResponse "data contains the events"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /events [get]
func (c *EventController) ListEvents(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		helpers.WriteJSONError(w, http.StatusUnauthorized, helpers.ErrCodeUnauthorized, "unauthorized")
		return
	}
	events, err := c.Service.ListEvents(r.Context(), userID)
	if err != nil {
		c.writeError(w, r, err, "")
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, events)
}

// GetEvent godoc
// @Summary Get an event
// @Description Returns one of the authenticated user's events. Past events remain readable.
// @Tags events
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID"
// @Success 200 {object} controllers.EventSuccessResponse "data contains the event"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized or permission_denied"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /events/{eventID} [get]
func (c *EventController) GetEvent(w http.ResponseWriter, r *http.Request) {
	eventID, userID, ok := c.eventAndUser(w, r)
	if !ok {
		return
	}
	event, err := c.Service.GetEvent(r.Context(), eventID, userID)
	if err != nil {
		c.writeError(w, r, err, "")
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, event)
}

// UpdateEvent godoc
// @Summary Update an event
// @Description Updates title, location and/or date. Only the owner may update, past events are frozen, and the new date must be in the future and free.
// @Tags events
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID"
// @Param body body UpdateEventRequest true "Fields to update (all optional)"
// @Success 200 {object} controllers.EventSuccessResponse "data contains the updated event"
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request, past_date, date_conflict or frozen_event"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized or permission_denied"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /events/{eventID} [put]
// @Router /events/{eventID} [patch]
func (c *EventController) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	eventID, userID, ok := c.eventAndUser(w, r)
	if !ok {
		return
	}
	var req UpdateEventRequest
	if !helpers.DecodeAndValidate(w, r, &req) {
		return
	}
	changes := domain.EventChanges{Title: req.Title, Location: req.Location, Date: req.Date}
	event, err := c.Service.UpdateEvent(r.Context(), eventID, userID, changes)
	if err != nil {
		c.writeError(w, r, err, msgFrozenEdit)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, event)
}

// DeleteEvent godoc
// @Summary Delete an event
// @Description Deletes an event. Only the owner may delete and past events cannot be deleted.
// @Tags events
// @Security BearerAuth
// @Param eventID path string true "Event ID"
// @Success 204 "No Content"
// @Failure 400 {object} helpers.APIResponse "error.code: frozen_event"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized or permission_denied"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /events/{eventID} [delete]
func (c *EventController) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	eventID, userID, ok := c.eventAndUser(w, r)
	if !ok {
		return
	}
	if err := c.Service.DeleteEvent(r.Context(), eventID, userID); err != nil {
		c.writeError(w, r, err, msgFrozenDelete)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ShareEvent godoc
// @Summary Share an event by email
// @Description Queues an email telling the recipient about the event. The response returns as soon as the email is queued; delivery is retried in the background and its outcome is not reported.
// @Tags events
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID"
// @Param body body ShareEventRequest true "recipient_email: address the event is sent to"
// @Success 202 {object} controllers.ShareEventSuccessResponse "data contains the job id"
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized or permission_denied"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /events/{eventID}/share [post]
func (c *EventController) ShareEvent(w http.ResponseWriter, r *http.Request) {
	eventID := r.PathValue("eventID")
	if eventID == "" {
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "missing eventID")
		return
	}
	var req ShareEventRequest
	if !helpers.DecodeAndValidate(w, r, &req) {
		return
	}
	sender, ok := middleware.UserFromContext(r.Context())
	if !ok {
		helpers.WriteJSONError(w, http.StatusUnauthorized, helpers.ErrCodeUnauthorized, "unauthorized")
		return
	}
	jobID, err := c.Service.ShareEvent(r.Context(), eventID, sender, req.RecipientEmail)
	if err != nil {
		c.writeError(w, r, err, "")
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusAccepted, ShareEventResponse{JobID: jobID})
}

// ExportEvent godoc
// @Summary Export an event as iCalendar
// @Description Returns the event as a text/calendar document with a single VEVENT.
// @Tags events
// @Produce text/calendar
// @Security BearerAuth
// @Param eventID path string true "Event ID"
// @Success 200 {string} string "iCalendar document"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized or permission_denied"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /events/{eventID}/ics [get]
func (c *EventController) ExportEvent(w http.ResponseWriter, r *http.Request) {
	eventID, userID, ok := c.eventAndUser(w, r)
	if !ok {
		return
	}
	event, err := c.Service.GetEvent(r.Context(), eventID, userID)
	if err != nil {
		c.writeError(w, r, err, "")
		return
	}
	var buf bytes.Buffer
	if err := c.ICal.EncodeEvent(&buf, event); err != nil {
		c.writeError(w, r, err, "")
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="event-%s.ics"`, event.ID))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (c *EventController) eventAndUser(w http.ResponseWriter, r *http.Request) (eventID, userID string, ok bool) {
	eventID = r.PathValue("eventID")
	if eventID == "" {
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "missing eventID")
		return "", "", false
	}
	userID, ok = middleware.UserIDFromContext(r.Context())
	if !ok {
		helpers.WriteJSONError(w, http.StatusUnauthorized, helpers.ErrCodeUnauthorized, "unauthorized")
		return "", "", false
	}
	return eventID, userID, true
}

// writeError maps service errors to responses. frozenMsg is the message used for
// domain.ErrFrozenEvent, which differs between edit and delete.
func (c *EventController) writeError(w http.ResponseWriter, r *http.Request, err error, frozenMsg string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		helpers.WriteJSONError(w, http.StatusNotFound, helpers.ErrCodeNotFound, msgEventNotFound)
	case errors.Is(err, domain.ErrForbidden):
		helpers.WriteJSONError(w, http.StatusUnauthorized, helpers.ErrCodePermissionDenied, msgPermissionDenied)
	case errors.Is(err, domain.ErrPastDate):
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodePastDate, msgPastDate)
	case errors.Is(err, domain.ErrDateConflict):
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeDateConflict, msgDateConflict)
	case errors.Is(err, domain.ErrFrozenEvent):
		if frozenMsg == "" {
			frozenMsg = msgFrozenEdit
		}
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeFrozenEvent, frozenMsg)
	default:
		c.Logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "method", r.Method, "err", err)
		helpers.WriteJSONError(w, http.StatusInternalServerError, helpers.ErrCodeInternalError, "internal error")
	}
}

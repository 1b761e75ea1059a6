// Package ical renders events as iCalendar (RFC 5545) documents.
package ical

import (
	"fmt"
	"io"
	"time"

	goical "github.com/emersion/go-ical"

	"calendarshare/internal/domain"
)

// DefaultProductID identifies this service in the PRODID property.
const DefaultProductID = "-//calendarshare//Calendar App//EN"

// Encoder writes events as VCALENDAR documents.
type Encoder struct {
	prodID string
	domain string
	now    func() time.Time
}

// NewEncoder returns an Encoder. uidDomain is appended to event ids to build globally
// unique UIDs; an empty prodID means DefaultProductID.
func NewEncoder(prodID, uidDomain string) *Encoder {
	if prodID == "" {
		prodID = DefaultProductID
	}
	return &Encoder{prodID: prodID, domain: uidDomain, now: time.Now}
}

// EncodeEvent writes a calendar holding one VEVENT for e. Events are instants, so
// DTEND equals DTSTART.
func (enc *Encoder) EncodeEvent(w io.Writer, e *domain.Event) error {
	cal := goical.NewCalendar()
	cal.Props.SetText(goical.PropVersion, "2.0")
	cal.Props.SetText(goical.PropProductID, enc.prodID)

	event := goical.NewEvent()
	event.Props.SetText(goical.PropUID, enc.uid(e))
	event.Props.SetDateTime(goical.PropDateTimeStamp, enc.now().UTC())
	event.Props.SetDateTime(goical.PropDateTimeStart, e.Date.UTC())
	event.Props.SetDateTime(goical.PropDateTimeEnd, e.Date.UTC())
	event.Props.SetText(goical.PropSummary, e.Title)
	if e.Location != "" {
		event.Props.SetText(goical.PropLocation, e.Location)
	}
	if !e.UpdatedAt.IsZero() {
		event.Props.SetDateTime(goical.PropLastModified, e.UpdatedAt.UTC())
	}
	cal.Children = append(cal.Children, event.Component)

	if err := goical.NewEncoder(w).Encode(cal); err != nil {
		return fmt.Errorf("encode ical: %w", err)
	}
	return nil
}

func (enc *Encoder) uid(e *domain.Event) string {
	if enc.domain == "" {
		return e.ID
	}
	return e.ID + "@" + enc.domain
}

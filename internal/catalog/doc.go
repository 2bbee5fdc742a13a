package catalog

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind distinguishes the two bookable product families. Tours repeat on dates,
// events carry explicit schedule entries; everything else about them is shared.
type Kind string

const (
	KindTour  Kind = "tour"
	KindEvent Kind = "event"
)

// ParseKind validates a kind string coming off the URL path.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindTour, KindEvent:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("catalog: unknown booking kind %q", s)
	}
}

// Ref is a relationship field synced from the CMS. Depending on the depth the
// document was exported at, it is either a bare id string or an expanded object
// with an "id" field. All access goes through ID(); callers never inspect the
// raw shape.
type Ref struct {
	id       string
	expanded map[string]any
}

// NewRef builds a bare reference, used by tests and fixtures.
func NewRef(id string) Ref {
	return Ref{id: id}
}

// ID returns the normalized identifier, empty if the reference is absent.
func (r Ref) ID() string {
	return r.id
}

// Field reads a field off the expanded object, if one was synced.
func (r Ref) Field(name string) (any, bool) {
	if r.expanded == nil {
		return nil, false
	}
	v, ok := r.expanded[name]
	return v, ok
}

func (r *Ref) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		r.id = s
		r.expanded = nil
		return nil
	}
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("catalog: reference is neither id nor object: %w", err)
	}
	if id, ok := obj["id"].(string); ok {
		r.id = id
	}
	r.expanded = obj
	return nil
}

func (r Ref) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.id)
}

// PickupOption is one pickup location row in a schedule's price table.
type PickupOption struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Time            string `json:"time"` // HH:MM, interpreted in the schedule's ServiceAt location
	AdultPriceCents int64  `json:"adult_price_cents"`
	ChildPriceCents int64  `json:"child_price_cents"`
}

// Schedule is one occurrence of a tour or event. Tours are keyed by Date,
// events by ID; both carry their own pickup price table because pricing can
// vary per occurrence.
type Schedule struct {
	ID        string         `json:"id"`
	Date      string         `json:"date"`       // YYYY-MM-DD
	StartTime string         `json:"start_time"` // HH:MM, UTC
	Pickups   []PickupOption `json:"pickups"`
}

// ServiceAt derives the occurrence's date-time.
func (s Schedule) ServiceAt() (time.Time, error) {
	ts, err := time.Parse("2006-01-02 15:04", s.Date+" "+s.StartTime)
	if err != nil {
		return time.Time{}, fmt.Errorf("catalog: schedule %s has malformed date/time: %w", s.ID, err)
	}
	return ts.UTC(), nil
}

// Document is a CMS-synced tour or event, stored as a JSONB snapshot. CMS
// admins edit these independently of existing bookings, so schedule and pickup
// ids held by a booking may no longer resolve.
type Document struct {
	ID        string     `json:"id"`
	Kind      Kind       `json:"kind"`
	Title     string     `json:"title"`
	Slug      string     `json:"slug"`
	Currency  string     `json:"currency"`
	MinGuests int        `json:"min_guests"`
	Host      Ref        `json:"host"`
	Schedules []Schedule `json:"schedules"`
}

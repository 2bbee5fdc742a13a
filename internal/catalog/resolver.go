package catalog

import (
	"errors"
	"time"
)

var (
	// ErrScheduleNotFound means the booking's schedule key no longer matches
	// any occurrence on the parent document. Surfaced as a 400, never
	// silently defaulted.
	ErrScheduleNotFound = errors.New("catalog: schedule not found")
	// ErrPickupNotFound means the selected pickup is gone from the price table.
	ErrPickupNotFound = errors.New("catalog: pickup location not found")
)

// Resolved is the outcome of resolving one schedule occurrence against a
// pickup selection: the service date-time plus the applicable price pair.
type Resolved struct {
	ServiceAt       time.Time
	AdultPriceCents int64
	ChildPriceCents int64
	PickupTime      string
	PickupName      string
}

// ResolveSchedule locates one occurrence and its pickup pricing. Tours are
// keyed by date (YYYY-MM-DD), events by schedule id. Pure derivation, no I/O.
func (d *Document) ResolveSchedule(scheduleKey, pickupID string) (*Resolved, error) {
	var sched *Schedule
	for i := range d.Schedules {
		s := &d.Schedules[i]
		switch d.Kind {
		case KindTour:
			if s.Date == scheduleKey {
				sched = s
			}
		case KindEvent:
			if s.ID == scheduleKey {
				sched = s
			}
		}
		if sched != nil {
			break
		}
	}
	if sched == nil {
		return nil, ErrScheduleNotFound
	}

	var pickup *PickupOption
	for i := range sched.Pickups {
		if sched.Pickups[i].ID == pickupID {
			pickup = &sched.Pickups[i]
			break
		}
	}
	if pickup == nil {
		return nil, ErrPickupNotFound
	}

	serviceAt, err := sched.ServiceAt()
	if err != nil {
		return nil, err
	}

	return &Resolved{
		ServiceAt:       serviceAt,
		AdultPriceCents: pickup.AdultPriceCents,
		ChildPriceCents: pickup.ChildPriceCents,
		PickupTime:      pickup.Time,
		PickupName:      pickup.Name,
	}, nil
}

package obligation

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidTimestamp is returned for zero timestamps
var ErrInvalidTimestamp = errors.New("invalid timestamp")

const dateLayout = "2006-01-02"

// Slot is the (local date, window) a timestamp falls into for one definition.
// Window is empty when the timestamp lies outside every window.
type Slot struct {
	Date   string
	Window string
}

// InWindow reports whether the timestamp resolved to a window
func (s Slot) InWindow() bool {
	return s.Window != ""
}

// Occurrence is one concrete window on one local date
type Occurrence struct {
	Date     string
	Window   Window
	Start    time.Time
	End      time.Time
	Deadline time.Time
}

// Resolver maps instants to the deployment's fixed-offset local calendar
type Resolver struct {
	loc *time.Location
}

// NewResolver creates a resolver for a fixed UTC offset in hours
func NewResolver(offsetHours int) *Resolver {
	name := fmt.Sprintf("UTC%+d", offsetHours)
	return &Resolver{loc: time.FixedZone(name, offsetHours*3600)}
}

// Location returns the resolver's fixed zone
func (r *Resolver) Location() *time.Location {
	return r.loc
}

// LocalDate returns the local calendar date of t as YYYY-MM-DD
func (r *Resolver) LocalDate(t time.Time) (string, error) {
	if t.IsZero() {
		return "", ErrInvalidTimestamp
	}
	return t.In(r.loc).Format(dateLayout), nil
}

// Midnight returns the instant of local midnight starting date
func (r *Resolver) Midnight(date string) (time.Time, error) {
	d, err := time.ParseInLocation(dateLayout, date, r.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", date, err)
	}
	return d, nil
}

// Resolve returns the local date and the window containing t.
// A window that crosses midnight belongs to the date it started on.
func (r *Resolver) Resolve(def *Definition, t time.Time) (Slot, error) {
	if t.IsZero() {
		return Slot{}, ErrInvalidTimestamp
	}
	local := t.In(r.loc)
	tod := ClockTime(local.Hour()*60 + local.Minute())
	date := local.Format(dateLayout)

	for _, w := range def.Windows {
		if !w.Contains(tod) {
			continue
		}
		if w.CrossesMidnight() && tod < w.End {
			return Slot{Date: local.AddDate(0, 0, -1).Format(dateLayout), Window: w.Name}, nil
		}
		return Slot{Date: date, Window: w.Name}, nil
	}
	return Slot{Date: date}, nil
}

// Occurrence computes the start, end and deadline instants for window on date
func (r *Resolver) Occurrence(def *Definition, date string, w Window) (Occurrence, error) {
	midnight, err := r.Midnight(date)
	if err != nil {
		return Occurrence{}, err
	}
	start := midnight.Add(w.Start.Duration())
	end := midnight.Add(w.End.Duration())
	if w.CrossesMidnight() {
		end = end.AddDate(0, 0, 1)
	}
	return Occurrence{
		Date:     date,
		Window:   w,
		Start:    start,
		End:      end,
		Deadline: end.Add(def.DeadlineOffset),
	}, nil
}

// Deadline returns the deadline for the named window on date
func (r *Resolver) Deadline(def *Definition, date, window string) (time.Time, error) {
	w, ok := def.Window(window)
	if !ok {
		return time.Time{}, fmt.Errorf("%w: %s has no window %q", ErrInvalidDefinition, def.Kind, window)
	}
	occ, err := r.Occurrence(def, date, w)
	if err != nil {
		return time.Time{}, err
	}
	return occ.Deadline, nil
}

// Open returns every occurrence of def with start <= now < deadline, oldest date
// first. Earlier dates are included as far back as a window crossing midnight
// plus the deadline offset can still be open.
func (r *Resolver) Open(def *Definition, now time.Time) ([]Occurrence, error) {
	if now.IsZero() {
		return nil, ErrInvalidTimestamp
	}
	day := 24 * time.Hour
	lookback := 1 + int((def.DeadlineOffset+day-1)/day)

	local := now.In(r.loc)
	var open []Occurrence
	for back := lookback; back >= 0; back-- {
		occs, err := r.OpenOn(def, local.AddDate(0, 0, -back).Format(dateLayout), now)
		if err != nil {
			return nil, err
		}
		open = append(open, occs...)
	}
	return open, nil
}

// OpenOn is Open for an explicit local date
func (r *Resolver) OpenOn(def *Definition, date string, now time.Time) ([]Occurrence, error) {
	if now.IsZero() {
		return nil, ErrInvalidTimestamp
	}
	var open []Occurrence
	for _, w := range def.Windows {
		occ, err := r.Occurrence(def, date, w)
		if err != nil {
			return nil, err
		}
		if !now.Before(occ.Start) && now.Before(occ.Deadline) {
			open = append(open, occ)
		}
	}
	return open, nil
}

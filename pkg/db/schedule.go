package db

import (
	"fmt"
	"slices"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/ppamtools/shift-assigner/pkg/core/timeutil"
)

var rruleWeekdays = map[time.Weekday]rrule.Weekday{
	time.Monday:    rrule.MO,
	time.Tuesday:   rrule.TU,
	time.Wednesday: rrule.WE,
	time.Thursday:  rrule.TH,
	time.Friday:    rrule.FR,
	time.Saturday:  rrule.SA,
	time.Sunday:    rrule.SU,
}

// OpeningRule expands the point's weekly opening days over its validity range
func (p *PreachingPoint) OpeningRule(anchor time.Time) (*rrule.RRule, error) {
	days := make([]time.Weekday, 0, len(p.Windows))
	for wd := range p.Windows {
		days = append(days, wd)
	}
	slices.Sort(days)

	byWeekday := make([]rrule.Weekday, 0, len(days))
	for _, wd := range days {
		byWeekday = append(byWeekday, rruleWeekdays[wd])
	}

	opt := rrule.ROption{
		Freq:      rrule.DAILY,
		Dtstart:   timeutil.DateOnly(anchor),
		Byweekday: byWeekday,
	}
	if p.ValidFrom != nil {
		opt.Dtstart = timeutil.DateOnly(*p.ValidFrom)
	}
	if p.ValidTo != nil {
		opt.Until = timeutil.DateOnly(*p.ValidTo)
	}

	r, err := rrule.NewRRule(opt)
	if err != nil {
		return nil, fmt.Errorf("failed to build opening rule for point %d: %w", p.ID, err)
	}
	return r, nil
}

// OpenOn reports whether the point is valid and has an opening window on the date
func (p *PreachingPoint) OpenOn(date time.Time) (bool, error) {
	if len(p.Windows) == 0 {
		return false, nil
	}
	day := timeutil.DateOnly(date)
	r, err := p.OpeningRule(day)
	if err != nil {
		return false, err
	}
	return len(r.Between(day, day, true)) > 0, nil
}

// WindowOn returns the opening window for the date's weekday
func (p *PreachingPoint) WindowOn(date time.Time) (Window, bool) {
	w, ok := p.Windows[date.Weekday()]
	return w, ok
}

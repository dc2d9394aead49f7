package calendar

import (
	"fmt"
	"time"
)

// WorkWindow describes the working hours for one weekday, expressed as an
// hour-of-day in [0,24).
type WorkWindow struct {
	StartHour float64
	EndHour   float64
}

// BusinessCalendar maps wall-clock instants to working-minute offsets and
// back, honoring per-weekday working hours, a daily lunch window, and a set
// of holiday dates (spec.md §3, BusinessCalendar).
type BusinessCalendar struct {
	windows          map[time.Weekday]WorkWindow
	lunchStartHour   float64
	lunchDurationMin float64
	holidays         map[string]bool // "YYYY-MM-DD" -> true
	location         *time.Location
}

// Config configures a BusinessCalendar. WorkStartHour/WorkEndHour apply
// Monday-Friday unless overridden via Windows.
type Config struct {
	WorkStartHour       float64
	WorkEndHour         float64
	LunchStartHour      float64
	LunchDurationMinutes float64
	HolidayDates         []time.Time
	Location             *time.Location
	// Windows optionally overrides the default Mon-Fri window per weekday.
	// Weekdays absent from this map (and not defaulted) are non-working.
	Windows map[time.Weekday]WorkWindow
}

// New constructs a BusinessCalendar from cfg.
func New(cfg Config) (*BusinessCalendar, error) {
	if cfg.WorkEndHour <= cfg.WorkStartHour {
		return nil, fmt.Errorf("calendar: work_end_hour (%v) must be after work_start_hour (%v)", cfg.WorkEndHour, cfg.WorkStartHour)
	}
	if cfg.LunchDurationMinutes < 0 {
		return nil, fmt.Errorf("calendar: lunch_duration_minutes must be non-negative")
	}

	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}

	windows := cfg.Windows
	if windows == nil {
		windows = map[time.Weekday]WorkWindow{
			time.Monday:    {cfg.WorkStartHour, cfg.WorkEndHour},
			time.Tuesday:   {cfg.WorkStartHour, cfg.WorkEndHour},
			time.Wednesday: {cfg.WorkStartHour, cfg.WorkEndHour},
			time.Thursday:  {cfg.WorkStartHour, cfg.WorkEndHour},
			time.Friday:    {cfg.WorkStartHour, cfg.WorkEndHour},
		}
	}

	holidays := make(map[string]bool, len(cfg.HolidayDates))
	for _, h := range cfg.HolidayDates {
		holidays[h.In(loc).Format("2006-01-02")] = true
	}

	return &BusinessCalendar{
		windows:          windows,
		lunchStartHour:   cfg.LunchStartHour,
		lunchDurationMin: cfg.LunchDurationMinutes,
		holidays:         holidays,
		location:         loc,
	}, nil
}

// isHoliday reports whether t's calendar date is a holiday.
func (c *BusinessCalendar) isHoliday(t time.Time) bool {
	return c.holidays[t.In(c.location).Format("2006-01-02")]
}

// IsWorking reports whether t falls inside a working interval: the
// weekday has a window, t is within [start,end) of that window, t is not
// within the lunch window, and t's date is not a holiday.
func (c *BusinessCalendar) IsWorking(t time.Time) bool {
	local := t.In(c.location)
	if c.isHoliday(local) {
		return false
	}

	window, ok := c.windows[local.Weekday()]
	if !ok {
		return false
	}

	hour := hourOfDay(local)
	if hour < window.StartHour || hour >= window.EndHour {
		return false
	}

	if c.lunchDurationMin > 0 {
		lunchEnd := c.lunchStartHour + c.lunchDurationMin/60.0
		if hour >= c.lunchStartHour && hour < lunchEnd {
			return false
		}
	}

	return true
}

// IsWorkingIgnoringLunch is IsWorking without the lunch-window exclusion,
// for tasks flagged lunch-pauseable (spec.md §4.2: a lunch-pauseable task
// may occupy the lunch window, it just doesn't make progress during it in
// the real world — for placement purposes it is still a legal minute to
// schedule within).
func (c *BusinessCalendar) IsWorkingIgnoringLunch(t time.Time) bool {
	local := t.In(c.location)
	if c.isHoliday(local) {
		return false
	}

	window, ok := c.windows[local.Weekday()]
	if !ok {
		return false
	}

	hour := hourOfDay(local)
	return hour >= window.StartHour && hour < window.EndHour
}

func hourOfDay(t time.Time) float64 {
	return float64(t.Hour()) + float64(t.Minute())/60.0 + float64(t.Second())/3600.0
}

// NextWorkingInstant returns the earliest instant >= t that is working.
func (c *BusinessCalendar) NextWorkingInstant(t time.Time) time.Time {
	cur := t.In(c.location).Truncate(time.Minute)
	// Bound the search: at most a year of minutes, which is far beyond the
	// 90-day horizon cap (spec.md §6) and guards against a misconfigured
	// calendar with no working windows at all.
	limit := cur.AddDate(1, 0, 0)
	for cur.Before(limit) {
		if c.IsWorking(cur) {
			return cur
		}
		cur = c.nextCandidate(cur)
	}
	return t
}

// nextCandidate jumps to the next point worth re-checking: either the next
// minute, or — when we're clearly outside today's window — midnight of the
// next day, to avoid a slow minute-by-minute scan across weekends/holidays.
func (c *BusinessCalendar) nextCandidate(t time.Time) time.Time {
	local := t.In(c.location)
	window, ok := c.windows[local.Weekday()]
	hour := hourOfDay(local)

	if !ok || hour >= window.EndHour || c.isHoliday(local) {
		// Jump to the start of the next calendar day.
		next := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, c.location)
		return next.AddDate(0, 0, 1)
	}

	if hour < window.StartHour {
		return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, c.location).
			Add(time.Duration(window.StartHour * float64(time.Hour)))
	}

	return t.Add(time.Minute)
}

// WorkingMinutesBetween returns the total working minutes contained in
// [from, to). Returns zero if to is not after from.
func (c *BusinessCalendar) WorkingMinutesBetween(from, to time.Time) Duration {
	if !to.After(from) {
		return Zero
	}

	cur := from.In(c.location).Truncate(time.Minute)
	end := to.In(c.location)
	total := 0.0

	for cur.Before(end) {
		if c.IsWorking(cur) {
			total++
			cur = cur.Add(time.Minute)
			continue
		}
		cur = c.nextCandidate(cur)
		if cur.After(end) {
			break
		}
	}

	d, _ := NewMinutes(total)
	return d
}

// AddWorkingDuration advances start by d working minutes, skipping
// non-working time, and returns the resulting instant. It is the inverse
// direction of WorkingMinutesBetween.
func (c *BusinessCalendar) AddWorkingDuration(start time.Time, d Duration) time.Time {
	remaining := d.Minutes()
	cur := c.NextWorkingInstant(start)

	for remaining > 0 {
		if c.IsWorking(cur) {
			remaining--
			cur = cur.Add(time.Minute)
			continue
		}
		cur = c.nextCandidate(cur)
	}
	return cur
}

package models

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var ErrInvalidSchedule = errors.New("invalid notification schedule")

type Frequency string

const (
	FrequencyRealtime Frequency = "realtime"
	FrequencyDaily    Frequency = "daily"
	FrequencyWeekly   Frequency = "weekly"
	FrequencyMonthly  Frequency = "monthly"
)

// TimeOfDay is a wall-clock minute, e.g. 08:00
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay accepts HH:MM, and HH:MM:SS as returned by Postgres TIME columns
// (seconds are dropped).
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 && len(parts) != 3 {
		return TimeOfDay{}, fmt.Errorf("%w: time %q is not HH:MM", ErrInvalidSchedule, s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return TimeOfDay{}, fmt.Errorf("%w: bad hour in %q", ErrInvalidSchedule, s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 || len(parts[1]) != 2 {
		return TimeOfDay{}, fmt.Errorf("%w: bad minute in %q", ErrInvalidSchedule, s)
	}
	return TimeOfDay{Hour: h, Minute: m}, nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

func (t TimeOfDay) matches(now time.Time) bool {
	return now.Hour() == t.Hour && now.Minute() == t.Minute
}

// Schedule is the notification frequency of a saved search. The set of variants is
// closed: each one must implement due.
type Schedule interface {
	Frequency() Frequency
	due(now time.Time) bool
}

// Realtime searches run on every trigger tick
type Realtime struct{}

type Daily struct {
	At TimeOfDay
}

type Weekly struct {
	At   TimeOfDay
	Days []time.Weekday
}

// Monthly searches run on the 1st and the 15th
type Monthly struct {
	At TimeOfDay
}

func (Realtime) Frequency() Frequency { return FrequencyRealtime }
func (Daily) Frequency() Frequency    { return FrequencyDaily }
func (Weekly) Frequency() Frequency   { return FrequencyWeekly }
func (Monthly) Frequency() Frequency  { return FrequencyMonthly }

func (Realtime) due(time.Time) bool { return true }

func (d Daily) due(now time.Time) bool { return d.At.matches(now) }

func (w Weekly) due(now time.Time) bool {
	if !w.At.matches(now) {
		return false
	}
	for _, day := range w.Days {
		if day == now.Weekday() {
			return true
		}
	}
	return false
}

func (m Monthly) due(now time.Time) bool {
	day := now.Day()
	return (day == 1 || day == 15) && m.At.matches(now)
}

// ScheduledAt reports whether now (already in the portal's wall-clock zone) is a
// scheduled moment for s
func ScheduledAt(s Schedule, now time.Time) bool {
	if s == nil {
		return false
	}
	return s.due(now)
}

// NewSchedule builds a Schedule from its persisted form and enforces the invariants:
// every frequency but realtime needs a time, weekly needs at least one day.
func NewSchedule(freq Frequency, at string, days []string) (Schedule, error) {
	if freq == FrequencyRealtime {
		return Realtime{}, nil
	}

	if strings.TrimSpace(at) == "" {
		return nil, fmt.Errorf("%w: %s requires a notification time", ErrInvalidSchedule, freq)
	}
	tod, err := ParseTimeOfDay(at)
	if err != nil {
		return nil, err
	}

	switch freq {
	case FrequencyDaily:
		return Daily{At: tod}, nil
	case FrequencyMonthly:
		return Monthly{At: tod}, nil
	case FrequencyWeekly:
		if len(days) == 0 {
			return nil, fmt.Errorf("%w: weekly requires notification days", ErrInvalidSchedule)
		}
		weekdays := make([]time.Weekday, 0, len(days))
		seen := make(map[time.Weekday]bool)
		for _, name := range days {
			wd, err := ParseWeekday(name)
			if err != nil {
				return nil, err
			}
			if !seen[wd] {
				seen[wd] = true
				weekdays = append(weekdays, wd)
			}
		}
		return Weekly{At: tod, Days: weekdays}, nil
	default:
		return nil, fmt.Errorf("%w: unknown frequency %q", ErrInvalidSchedule, freq)
	}
}

// ScheduleFields flattens a Schedule back into its persisted columns
func ScheduleFields(s Schedule) (freq Frequency, at string, days []string) {
	switch v := s.(type) {
	case Realtime:
		return FrequencyRealtime, "", nil
	case Daily:
		return FrequencyDaily, v.At.String(), nil
	case Monthly:
		return FrequencyMonthly, v.At.String(), nil
	case Weekly:
		names := make([]string, 0, len(v.Days))
		for _, d := range v.Days {
			names = append(names, WeekdayName(d))
		}
		return FrequencyWeekly, v.At.String(), names
	}
	return "", "", nil
}

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

func ParseWeekday(name string) (time.Weekday, error) {
	wd, ok := weekdayNames[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, fmt.Errorf("%w: unknown weekday %q", ErrInvalidSchedule, name)
	}
	return wd, nil
}

func WeekdayName(d time.Weekday) string {
	return strings.ToLower(d.String())
}

package generic

import (
	"strconv"
	"strings"
	"time"
)

// =============================================================================
// CADENCE - Recurring meeting calendar (weekday + frequency)
// =============================================================================

// Weekday numbers days Monday=0 ... Sunday=6, the convention used by group
// meeting rules. Note this differs from time.Weekday (Sunday=0).
type Weekday int

const (
	Monday Weekday = iota
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

var weekdayNames = [...]string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"}

// Valid reports whether w is one of the seven weekdays.
func (w Weekday) Valid() bool { return w >= Monday && w <= Sunday }

// OrMonday returns w, or Monday for any out-of-range value.
func (w Weekday) OrMonday() Weekday {
	if !w.Valid() {
		return Monday
	}
	return w
}

func (w Weekday) String() string { return weekdayNames[w.OrMonday()] }

// WeekdayOf converts from the standard library numbering.
func WeekdayOf(wd time.Weekday) Weekday {
	return Weekday((int(wd) + 6) % 7)
}

// ParseWeekday accepts English or Spanish names, three-letter
// abbreviations and the integers 0..6. Anything else is Monday.
func ParseWeekday(s string) Weekday {
	s = strings.ToLower(strings.TrimSpace(s))
	if n, err := strconv.Atoi(s); err == nil {
		return Weekday(n).OrMonday()
	}
	switch s {
	case "monday", "mon", "lunes", "lun":
		return Monday
	case "tuesday", "tue", "martes", "mar":
		return Tuesday
	case "wednesday", "wed", "miercoles", "miércoles", "mie", "mié":
		return Wednesday
	case "thursday", "thu", "jueves", "jue":
		return Thursday
	case "friday", "fri", "viernes", "vie":
		return Friday
	case "saturday", "sat", "sabado", "sábado", "sab", "sáb":
		return Saturday
	case "sunday", "sun", "domingo", "dom":
		return Sunday
	default:
		return Monday
	}
}

// Frequency is how often a group meets.
type Frequency string

const (
	FrequencyWeekly   Frequency = "weekly"
	FrequencyBiweekly Frequency = "biweekly"
	FrequencyMonthly  Frequency = "monthly"
)

// ParseFrequency accepts English or Spanish spellings. Anything
// unrecognized is weekly.
func ParseFrequency(s string) Frequency {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "biweekly", "fortnightly", "quincenal", "catorcenal":
		return FrequencyBiweekly
	case "monthly", "mensual":
		return FrequencyMonthly
	default:
		return FrequencyWeekly
	}
}

// =============================================================================
// NEXT OCCURRENCE - The "next meeting" calculator
// =============================================================================

// NextOccurrence returns the first date strictly after anchor that falls on
// weekday, honoring the meeting frequency:
//
//	weekly:   the next matching weekday (anchor itself never qualifies)
//	biweekly: one week after the weekly answer
//	monthly:  the first matching weekday on/after the 1st of next month
//
// Out-of-range weekdays are treated as Monday and unknown frequencies as
// weekly.
func NextOccurrence(anchor Date, weekday Weekday, freq Frequency) Date {
	weekday = weekday.OrMonday()

	switch freq {
	case FrequencyMonthly:
		first := anchor.FirstOfNextMonth()
		return first.AddDays(daysUntil(first.Weekday(), weekday))

	case FrequencyBiweekly:
		return anchor.AddDays(nextDaysUntil(anchor.Weekday(), weekday) + 7)

	default:
		return anchor.AddDays(nextDaysUntil(anchor.Weekday(), weekday))
	}
}

// daysUntil is (to - from) mod 7, in 0..6.
func daysUntil(from, to Weekday) int {
	return ((int(to)-int(from))%7 + 7) % 7
}

// nextDaysUntil is daysUntil with 0 forced to 7.
func nextDaysUntil(from, to Weekday) int {
	d := daysUntil(from, to)
	if d == 0 {
		return 7
	}
	return d
}

// Package fines computes payment deadlines for group fines.
//
// A fine is due at the group's next meeting after it was issued. The
// meeting calendar (weekday + frequency) belongs to the group; this package
// only reads it. Fines never accumulate into new fines here.
package fines

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/lending-engine/generic"
)

// MeetingRules is the recurring calendar inherited from the group.
type MeetingRules struct {
	Weekday   generic.Weekday
	Frequency generic.Frequency
}

// ParseMeetingRules reads rules as stored by the group module. Unknown
// values fall back to Monday / weekly.
func ParseMeetingRules(weekday, frequency string) MeetingRules {
	return MeetingRules{
		Weekday:   generic.ParseWeekday(weekday),
		Frequency: generic.ParseFrequency(frequency),
	}
}

type Fine struct {
	ID       string
	MemberID string
	GroupID  string
	Amount   decimal.Decimal
	IssuedOn generic.Date
	Rules    MeetingRules
}

// Validate rejects fines the deadline cannot be computed for.
func (f Fine) Validate() error {
	if f.IssuedOn.IsZero() {
		return fmt.Errorf("%w: fine %s has no issue date", generic.ErrMissingParameter, f.ID)
	}
	if f.Amount.IsNegative() {
		return fmt.Errorf("%w: fine %s has negative amount", generic.ErrInvalidAmount, f.ID)
	}
	return nil
}

// DueDate is the group's next meeting strictly after the issue date.
func (f Fine) DueDate() generic.Date {
	return generic.NextOccurrence(f.IssuedOn, f.Rules.Weekday, f.Rules.Frequency)
}

// IsOverdue reports whether asOf is past the due date.
func (f Fine) IsOverdue(asOf generic.Date) bool {
	return asOf.After(f.DueDate())
}

// DaysOverdue is 0 until the due date has passed.
func (f Fine) DaysOverdue(asOf generic.Date) int {
	if !f.IsOverdue(asOf) {
		return 0
	}
	return generic.DaysBetween(f.DueDate(), asOf)
}

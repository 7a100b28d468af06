// Package fines holds the overdue fine arithmetic shared by the lifecycle
// engine and the read-side projections, so both always agree on amounts.
package fines

import "time"

const (
	// FinePerWeek is the fine amount (in currency units) charged per week overdue.
	FinePerWeek = 80

	// DaysPerWeek is the rounding unit for overdue time: any partial week
	// counts as a full week.
	DaysPerWeek = 7
)

// Assessment is the result of evaluating a due date at a point in time.
type Assessment struct {
	AmountDue    int
	WeeksOverdue int
}

// Calculate returns the fine owed on dueDate as of now.
//
// Rules:
//   - Zero if dueDate is unset or now is at or before dueDate.
//   - Days late use ceiling: any part of a day past due counts as a day.
//   - Weeks use ceiling too: a record 1 day overdue owes a full week's fine.
//
// The function is pure; callers decide what to do with the result.
func Calculate(dueDate *time.Time, now time.Time) Assessment {
	if dueDate == nil || !now.After(*dueDate) {
		return Assessment{}
	}

	days := OverdueDays(dueDate, now)
	weeks := (days + DaysPerWeek - 1) / DaysPerWeek

	return Assessment{
		AmountDue:    weeks * FinePerWeek,
		WeeksOverdue: weeks,
	}
}

// OverdueDays returns the number of days now is past dueDate, rounded up.
// Returns 0 when dueDate is unset or not yet passed.
func OverdueDays(dueDate *time.Time, now time.Time) int {
	if dueDate == nil || !now.After(*dueDate) {
		return 0
	}
	elapsed := now.Sub(*dueDate)
	days := int(elapsed / (24 * time.Hour))
	if elapsed%(24*time.Hour) != 0 {
		days++
	}
	return days
}

package engine

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for guard violations. None are retried automatically;
// callers map them to responses.
var (
	// ErrBookNotFound is returned when the referenced book does not exist.
	ErrBookNotFound = errors.New("book not found")

	// ErrUserNotFound is returned when the referenced user does not exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrBorrowNotFound is returned when the referenced borrow record does not exist.
	ErrBorrowNotFound = errors.New("borrow record not found")

	// ErrRelatedBookMissing is returned when a borrow record references a book
	// that has since been deleted.
	ErrRelatedBookMissing = errors.New("related book not found")

	// ErrBookUnavailable is returned when a borrow request targets a book
	// currently borrowed by someone else.
	ErrBookUnavailable = errors.New("book is currently borrowed")

	// ErrActiveRequestExists is returned when the user already has an open
	// request or loan for the same book.
	ErrActiveRequestExists = errors.New("an active request already exists for this book")

	// ErrInvalidTransition is returned when an admin status change is not
	// permitted from the record's current status.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrNotEligible is returned when a reissue or return is requested on a
	// record that is not currently issued or overdue.
	ErrNotEligible = errors.New("only issued or overdue records are eligible")

	// ErrNotCancellable is returned when cancellation is attempted on a record
	// that is not in a pending-request status.
	ErrNotCancellable = errors.New("only pending requests can be cancelled")

	// ErrNoFinePending is returned when a fine payment is attempted with
	// nothing owed or the fine already paid.
	ErrNoFinePending = errors.New("no fine pending")

	// ErrNotDeletable is returned when deletion is attempted on a record that
	// must be retained for audit (issued or later).
	ErrNotDeletable = errors.New("record cannot be deleted in its current status")
)

// CooldownError reports that a new borrow request is blocked by the
// rejection retry window. DaysLeft is rounded up so "1 day left" means the
// request becomes possible tomorrow at the rejection anniversary instant.
type CooldownError struct {
	AvailableAfter time.Time
	DaysLeft       int
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("request blocked by rejection cooldown, available after %s (%d days left)",
		e.AvailableAfter.Format(time.RFC3339), e.DaysLeft)
}

// ReissueLockedError reports that the 30-day reissue lock is still active.
type ReissueLockedError struct {
	UnlockAt time.Time
}

func (e *ReissueLockedError) Error() string {
	return fmt.Sprintf("reissue locked until %s", e.UnlockAt.Format(time.RFC3339))
}

// FineOutstandingError reports that an unpaid fine blocks a reissue.
type FineOutstandingError struct {
	Amount int
}

func (e *FineOutstandingError) Error() string {
	return fmt.Sprintf("clear outstanding fine of %d before reissuing", e.Amount)
}

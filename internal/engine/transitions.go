package engine

import (
	"time"

	"github.com/aliraza-090/Library-Management/internal/models"
)

const (
	// LoanPeriodDays is the loan length granted on issue and on each reissue.
	LoanPeriodDays = 30

	// ReissueLockDays is the lock window after a reissue (or reissue request)
	// during which no further reissue may be asked for.
	ReissueLockDays = 30

	// RejectionCooldownDays is the wait before the same user may request the
	// same book again after a rejection.
	RejectionCooldownDays = 12
)

// TargetReissued is the admin approval target for a pending reissue request.
// It is an action name, not a stored status: approving lands the record back
// in issued with a fresh due date.
const TargetReissued models.BorrowStatus = "reissued"

// adminTransitions maps each status an admin may set to the statuses it is
// legal from. Anything not listed here is an invalid transition, full stop —
// there is no fall-through.
var adminTransitions = map[models.BorrowStatus][]models.BorrowStatus{
	models.BorrowStatusIssued: {
		models.BorrowStatusRequested,
	},
	TargetReissued: {
		models.BorrowStatusReissueRequested,
	},
	models.BorrowStatusReturned: {
		models.BorrowStatusReturnRequested,
		models.BorrowStatusIssued,
		models.BorrowStatusOverdue,
	},
	models.BorrowStatusRejected: {
		models.BorrowStatusRequested,
	},
}

// cancellableStatuses are the pending-request statuses a student may cancel.
var cancellableStatuses = []models.BorrowStatus{
	models.BorrowStatusRequested,
	models.BorrowStatusReissueRequested,
	models.BorrowStatusReturnRequested,
}

// deletableStatuses are the statuses with no active commitment or audit
// value; everything else is retained.
var deletableStatuses = []models.BorrowStatus{
	models.BorrowStatusRequested,
	models.BorrowStatusRejected,
	models.BorrowStatusCancelled,
}

// reissueEligibleStatuses are the statuses from which a student may ask for
// a reissue or a return.
var reissueEligibleStatuses = []models.BorrowStatus{
	models.BorrowStatusIssued,
	models.BorrowStatusOverdue,
}

func canTransition(target, from models.BorrowStatus) bool {
	return statusIn(from, adminTransitions[target])
}

func statusIn(s models.BorrowStatus, set []models.BorrowStatus) bool {
	for _, c := range set {
		if s == c {
			return true
		}
	}
	return false
}

// ReissueUnlockAt returns the instant the reissue lock expires, or zero time
// when the record was never reissued. The boundary instant itself is already
// unlocked.
func ReissueUnlockAt(b *models.BorrowRecord) time.Time {
	if b.LastReissueDate == nil {
		return time.Time{}
	}
	return b.LastReissueDate.AddDate(0, 0, ReissueLockDays)
}

// RejectionRetryAt returns the instant a rejected (book, user) pair may
// request again. Zero time when no rejection date is recorded.
func RejectionRetryAt(b *models.BorrowRecord) time.Time {
	if b.RejectedDate == nil {
		return time.Time{}
	}
	return b.RejectedDate.AddDate(0, 0, RejectionCooldownDays)
}

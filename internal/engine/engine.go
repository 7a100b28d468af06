// Package engine implements the borrow lifecycle state machine: requesting,
// issuing, rejecting, cancelling, reissuing, returning, fine accrual and the
// scheduler-invoked sweeps. It is the only writer of borrow record status
// and the only caller of the availability tracker.
package engine

import (
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aliraza-090/Library-Management/internal/availability"
	"github.com/aliraza-090/Library-Management/internal/fines"
	"github.com/aliraza-090/Library-Management/internal/models"
	"github.com/aliraza-090/Library-Management/internal/repositories"
)

// Engine owns all borrow record transitions. Every operation runs in a
// single transaction with the borrow row locked FOR UPDATE, and any paired
// book availability change happens inside the same transaction, so a failed
// availability update rolls the status change back with it.
type Engine struct {
	db         *gorm.DB
	userRepo   repositories.UserRepository
	bookRepo   repositories.BookRepository
	borrowRepo repositories.BorrowRepository
	fineRepo   repositories.FineAssessmentRepository
	tracker    *availability.Tracker

	now func() time.Time
}

func NewEngine(
	db *gorm.DB,
	userRepo repositories.UserRepository,
	bookRepo repositories.BookRepository,
	borrowRepo repositories.BorrowRepository,
	fineRepo repositories.FineAssessmentRepository,
	tracker *availability.Tracker,
) *Engine {
	return &Engine{
		db:         db,
		userRepo:   userRepo,
		bookRepo:   bookRepo,
		borrowRepo: borrowRepo,
		fineRepo:   fineRepo,
		tracker:    tracker,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// SweepResult summarizes one batch sweep run.
type SweepResult struct {
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// CreateBorrowRequest opens a new borrow record for (book, user) and
// reserves the book.
//
// Guards, in order: user and book must exist, the book must not be borrowed
// by someone else, the 12-day rejection cooldown must have elapsed, and no
// active record for the pair may exist.
func (e *Engine) CreateBorrowRequest(bookID, userID uuid.UUID) (*models.BorrowRecord, error) {
	var created *models.BorrowRecord

	err := e.db.Transaction(func(tx *gorm.DB) error {
		if _, err := e.userRepo.GetByID(tx, userID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return err
		}

		book, err := e.bookRepo.GetByIDForUpdate(tx, bookID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrBookNotFound
			}
			return err
		}

		if book.Status == models.BookStatusBorrowed {
			return ErrBookUnavailable
		}

		now := e.now()

		rejected, err := e.borrowRepo.FindLatestRejected(tx, bookID, userID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if rejected != nil {
			if retryAt := RejectionRetryAt(rejected); now.Before(retryAt) {
				return &CooldownError{
					AvailableAfter: retryAt,
					DaysLeft:       daysLeft(now, retryAt),
				}
			}
		}

		existing, err := e.borrowRepo.FindActive(tx, bookID, userID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if existing != nil {
			log.Printf("[WARN] CreateBorrowRequest: user %s already has record %s (status=%s) for book %s",
				userID, existing.ID, existing.Status, bookID)
			return ErrActiveRequestExists
		}

		borrow := &models.BorrowRecord{
			BookID:      bookID,
			UserID:      userID,
			RequestType: models.RequestTypeBorrow,
			Status:      models.BorrowStatusRequested,
			CreatedAt:   now,
		}
		if err := e.borrowRepo.Create(tx, borrow); err != nil {
			log.Printf("[ERROR] CreateBorrowRequest: failed to create record: %v", err)
			return err
		}

		if err := e.tracker.Reserve(tx, book); err != nil {
			log.Printf("[ERROR] CreateBorrowRequest: failed to reserve book %s: %v", bookID, err)
			return err
		}

		created = borrow
		log.Printf("[INFO] CreateBorrowRequest: record %s created for user %s / book %s", borrow.ID, userID, bookID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// SetStatus applies an admin transition: issued, reissued, returned or
// rejected. Any other target, or a target the current status does not allow,
// is ErrInvalidTransition.
func (e *Engine) SetStatus(borrowID uuid.UUID, target models.BorrowStatus, adminNotes string) (*models.BorrowRecord, error) {
	var updated *models.BorrowRecord

	err := e.db.Transaction(func(tx *gorm.DB) error {
		borrow, err := e.borrowRepo.GetByIDForUpdate(tx, borrowID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrBorrowNotFound
			}
			return err
		}

		book, err := e.bookRepo.GetByIDForUpdate(tx, borrow.BookID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRelatedBookMissing
			}
			return err
		}

		if !canTransition(target, borrow.Status) {
			log.Printf("[WARN] SetStatus: illegal transition %s -> %s for record %s", borrow.Status, target, borrowID)
			return ErrInvalidTransition
		}

		now := e.now()
		oldStatus := borrow.Status

		switch target {
		case models.BorrowStatusIssued:
			due := now.AddDate(0, 0, LoanPeriodDays)
			borrow.IssueDate = &now
			borrow.DueDate = &due
			borrow.Status = models.BorrowStatusIssued
			if err := e.tracker.MarkBorrowed(tx, book); err != nil {
				return err
			}

		case TargetReissued:
			due := now.AddDate(0, 0, LoanPeriodDays)
			borrow.ReissueCount++
			borrow.LastReissueDate = &now
			borrow.IsReissueLocked = true
			borrow.IssueDate = &now
			borrow.DueDate = &due
			borrow.Status = models.BorrowStatusIssued

		case models.BorrowStatusReturned:
			borrow.ReturnDate = &now
			borrow.ActualReturnDate = &now
			if _, err := e.applyAssessment(tx, borrow, fines.Calculate(borrow.DueDate, now), now); err != nil {
				return err
			}
			if err := e.tracker.MarkAvailable(tx, book); err != nil {
				return err
			}
			if borrow.Fine > 0 && !borrow.FinePaid {
				borrow.Status = models.BorrowStatusFinePending
			} else {
				borrow.Status = models.BorrowStatusCompleted
			}

		case models.BorrowStatusRejected:
			borrow.RejectedDate = &now
			borrow.Status = models.BorrowStatusRejected
			if err := e.tracker.Release(tx, book); err != nil {
				return err
			}
		}

		if adminNotes != "" {
			borrow.AdminNotes = adminNotes
		}

		if err := e.borrowRepo.Save(tx, borrow); err != nil {
			log.Printf("[ERROR] SetStatus: failed to save record %s: %v", borrowID, err)
			return err
		}

		updated = borrow
		log.Printf("[INFO] SetStatus: record %s: %s -> %s (fine=%d)", borrowID, oldStatus, borrow.Status, borrow.Fine)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// RequestReissue asks for a loan extension on an issued or overdue record.
// Blocked while a fine is outstanding or the 30-day reissue lock is active;
// the lock boundary instant itself is already unlocked.
func (e *Engine) RequestReissue(borrowID uuid.UUID) (*models.BorrowRecord, error) {
	var updated *models.BorrowRecord

	err := e.db.Transaction(func(tx *gorm.DB) error {
		borrow, err := e.borrowRepo.GetByIDForUpdate(tx, borrowID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrBorrowNotFound
			}
			return err
		}

		if !statusIn(borrow.Status, reissueEligibleStatuses) {
			return ErrNotEligible
		}

		now := e.now()

		if unlockAt := ReissueUnlockAt(borrow); !unlockAt.IsZero() && now.Before(unlockAt) {
			return &ReissueLockedError{UnlockAt: unlockAt}
		}

		outstanding := borrow.Fine
		if due := fines.Calculate(borrow.DueDate, now).AmountDue; due > outstanding {
			outstanding = due
		}
		if outstanding > 0 && !borrow.FinePaid {
			return &FineOutstandingError{Amount: outstanding}
		}

		// Lock immediately so a second reissue ask cannot slip in while the
		// first awaits admin approval.
		borrow.Status = models.BorrowStatusReissueRequested
		borrow.LastReissueDate = &now
		borrow.IsReissueLocked = true

		if err := e.borrowRepo.Save(tx, borrow); err != nil {
			return err
		}

		updated = borrow
		log.Printf("[INFO] RequestReissue: record %s locked and queued for approval", borrowID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// RequestReturn flags an issued or overdue record for return confirmation.
// The fine is recomputed as of now, and keeps accruing until the admin
// confirms the physical return.
func (e *Engine) RequestReturn(borrowID uuid.UUID) (*models.BorrowRecord, error) {
	var updated *models.BorrowRecord

	err := e.db.Transaction(func(tx *gorm.DB) error {
		borrow, err := e.borrowRepo.GetByIDForUpdate(tx, borrowID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrBorrowNotFound
			}
			return err
		}

		if !statusIn(borrow.Status, reissueEligibleStatuses) {
			return ErrNotEligible
		}

		now := e.now()
		if _, err := e.applyAssessment(tx, borrow, fines.Calculate(borrow.DueDate, now), now); err != nil {
			return err
		}

		borrow.Status = models.BorrowStatusReturnRequested
		if err := e.borrowRepo.Save(tx, borrow); err != nil {
			return err
		}

		updated = borrow
		log.Printf("[INFO] RequestReturn: record %s queued for return confirmation (fine=%d)", borrowID, borrow.Fine)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// CancelRequest cancels a pending request. Cancelling an original borrow
// request releases the reservation; reissue and return requests never held
// the book's availability in the first place.
func (e *Engine) CancelRequest(borrowID uuid.UUID) (*models.BorrowRecord, error) {
	var updated *models.BorrowRecord

	err := e.db.Transaction(func(tx *gorm.DB) error {
		borrow, err := e.borrowRepo.GetByIDForUpdate(tx, borrowID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrBorrowNotFound
			}
			return err
		}

		if !statusIn(borrow.Status, cancellableStatuses) {
			return ErrNotCancellable
		}

		wasRequested := borrow.Status == models.BorrowStatusRequested
		borrow.Status = models.BorrowStatusCancelled
		if err := e.borrowRepo.Save(tx, borrow); err != nil {
			return err
		}

		if wasRequested && borrow.RequestType == models.RequestTypeBorrow {
			book, err := e.bookRepo.GetByIDForUpdate(tx, borrow.BookID)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					// Book deleted since the request; nothing to release.
					log.Printf("[WARN] CancelRequest: book %s missing for record %s", borrow.BookID, borrowID)
					updated = borrow
					return nil
				}
				return err
			}
			if err := e.tracker.Release(tx, book); err != nil {
				return err
			}
		}

		updated = borrow
		log.Printf("[INFO] CancelRequest: record %s cancelled", borrowID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// PayFine settles the outstanding fine. A fine-pending record completes;
// once paid the fine amount is frozen for good.
func (e *Engine) PayFine(borrowID uuid.UUID) (*models.BorrowRecord, error) {
	var updated *models.BorrowRecord

	err := e.db.Transaction(func(tx *gorm.DB) error {
		borrow, err := e.borrowRepo.GetByIDForUpdate(tx, borrowID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrBorrowNotFound
			}
			return err
		}

		if borrow.Fine <= 0 || borrow.FinePaid {
			return ErrNoFinePending
		}

		borrow.FinePaid = true
		if borrow.Status == models.BorrowStatusFinePending {
			borrow.Status = models.BorrowStatusCompleted
		}
		if err := e.borrowRepo.Save(tx, borrow); err != nil {
			return err
		}

		updated = borrow
		log.Printf("[INFO] PayFine: record %s paid %d, status=%s", borrowID, borrow.Fine, borrow.Status)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteBorrow removes a record that never became an active loan. Issued and
// returned records are retained for audit. Deleting a still-pending borrow
// request also releases the book it reserved.
func (e *Engine) DeleteBorrow(borrowID uuid.UUID) error {
	return e.db.Transaction(func(tx *gorm.DB) error {
		borrow, err := e.borrowRepo.GetByIDForUpdate(tx, borrowID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrBorrowNotFound
			}
			return err
		}

		if !statusIn(borrow.Status, deletableStatuses) {
			return ErrNotDeletable
		}

		if borrow.Status == models.BorrowStatusRequested && borrow.RequestType == models.RequestTypeBorrow {
			book, err := e.bookRepo.GetByIDForUpdate(tx, borrow.BookID)
			if err == nil {
				if err := e.tracker.Release(tx, book); err != nil {
					return err
				}
			} else if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
		}

		if err := e.borrowRepo.Delete(tx, borrow.ID); err != nil {
			return err
		}
		log.Printf("[INFO] DeleteBorrow: record %s deleted (was %s)", borrowID, borrow.Status)
		return nil
	})
}

// RecomputeOverdue sweeps all issued and overdue records and applies the
// fine formula as of the given instant. Fines only ever increase, and one
// record's failure never aborts the sweep.
func (e *Engine) RecomputeOverdue(asOf time.Time) SweepResult {
	records, err := e.borrowRepo.ListByStatuses(nil, reissueEligibleStatuses)
	if err != nil {
		log.Printf("[ERROR] RecomputeOverdue: failed to list records: %v", err)
		return SweepResult{Failed: 1}
	}

	var result SweepResult
	for i := range records {
		id := records[i].ID
		var changed bool
		err := e.db.Transaction(func(tx *gorm.DB) error {
			borrow, err := e.borrowRepo.GetByIDForUpdate(tx, id)
			if err != nil {
				return err
			}
			if !statusIn(borrow.Status, reissueEligibleStatuses) {
				// Raced with a user-facing transition; leave it alone.
				return nil
			}

			changed, err = e.applyAssessment(tx, borrow, fines.Calculate(borrow.DueDate, asOf), asOf)
			if err != nil {
				return err
			}
			if !changed {
				return nil
			}
			borrow.Status = models.BorrowStatusOverdue
			return e.borrowRepo.Save(tx, borrow)
		})
		switch {
		case err != nil:
			log.Printf("[ERROR] RecomputeOverdue: record %s failed: %v", id, err)
			result.Failed++
		case changed:
			result.Updated++
		default:
			result.Skipped++
		}
	}

	log.Printf("[INFO] RecomputeOverdue: updated=%d skipped=%d failed=%d", result.Updated, result.Skipped, result.Failed)
	return result
}

// UnlockExpiredReissues clears the reissue lock on every record whose 30-day
// window has elapsed as of the given instant.
func (e *Engine) UnlockExpiredReissues(asOf time.Time) SweepResult {
	records, err := e.borrowRepo.ListReissueLocked(nil)
	if err != nil {
		log.Printf("[ERROR] UnlockExpiredReissues: failed to list records: %v", err)
		return SweepResult{Failed: 1}
	}

	var result SweepResult
	for i := range records {
		id := records[i].ID
		err := e.db.Transaction(func(tx *gorm.DB) error {
			borrow, err := e.borrowRepo.GetByIDForUpdate(tx, id)
			if err != nil {
				return err
			}
			if !borrow.IsReissueLocked {
				return nil
			}
			unlockAt := ReissueUnlockAt(borrow)
			if unlockAt.IsZero() || asOf.Before(unlockAt) {
				return nil
			}
			borrow.IsReissueLocked = false
			if err := e.borrowRepo.Save(tx, borrow); err != nil {
				return err
			}
			result.Updated++
			return nil
		})
		if err != nil {
			log.Printf("[ERROR] UnlockExpiredReissues: record %s failed: %v", id, err)
			result.Failed++
		}
	}

	result.Skipped = len(records) - result.Updated - result.Failed
	log.Printf("[INFO] UnlockExpiredReissues: unlocked=%d skipped=%d failed=%d", result.Updated, result.Skipped, result.Failed)
	return result
}

// applyAssessment raises the record's fine to the assessed amount if higher
// and appends an audit entry. Paid fines are frozen and never touched.
// Reports whether the fine changed.
func (e *Engine) applyAssessment(tx *gorm.DB, borrow *models.BorrowRecord, a fines.Assessment, asOf time.Time) (bool, error) {
	if borrow.FinePaid || a.AmountDue <= borrow.Fine {
		return false, nil
	}
	borrow.Fine = a.AmountDue
	entry := &models.FineAssessment{
		BorrowID:     borrow.ID,
		Weeks:        a.WeeksOverdue,
		Amount:       a.AmountDue,
		CalculatedAt: asOf,
	}
	if err := e.fineRepo.Create(tx, entry); err != nil {
		return false, err
	}
	return true, nil
}

// daysLeft rounds the remaining wait up to whole days; a partial day still
// counts as one day of waiting.
func daysLeft(now, until time.Time) int {
	remaining := until.Sub(now)
	if remaining <= 0 {
		return 0
	}
	days := int(remaining / (24 * time.Hour))
	if remaining%(24*time.Hour) != 0 {
		days++
	}
	return days
}

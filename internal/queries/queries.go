// Package queries builds the read-side projections: the student's own view,
// the admin dashboard list and the dashboard stats. Fines and lock windows
// are recomputed at read time with the same shared calculator the engine
// uses, so the two sides can never disagree; reads mutate nothing.
package queries

import (
	"time"

	"github.com/google/uuid"

	"github.com/aliraza-090/Library-Management/internal/engine"
	"github.com/aliraza-090/Library-Management/internal/fines"
	"github.com/aliraza-090/Library-Management/internal/models"
	"github.com/aliraza-090/Library-Management/internal/repositories"
)

type Service struct {
	borrowRepo repositories.BorrowRepository

	now func() time.Time
}

func NewService(borrowRepo repositories.BorrowRepository) *Service {
	return &Service{
		borrowRepo: borrowRepo,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// BookSummary is the slice of book fields students see on their borrows.
type BookSummary struct {
	ID         uuid.UUID         `json:"id"`
	Title      string            `json:"title"`
	Author     string            `json:"author"`
	Department string            `json:"department"`
	Status     models.BookStatus `json:"status"`
}

// StudentBorrowView is one borrow record projected for its owner, with all
// derived state (current fine, overdue info, lock windows) computed as of
// the read instant.
type StudentBorrowView struct {
	ID                 uuid.UUID               `json:"id"`
	Book               BookSummary             `json:"book"`
	Status             models.BorrowStatus     `json:"status"`
	RequestType        models.RequestType      `json:"request_type"`
	IssueDate          *time.Time              `json:"issue_date,omitempty"`
	DueDate            *time.Time              `json:"due_date,omitempty"`
	ReturnDate         *time.Time              `json:"return_date,omitempty"`
	RejectedDate       *time.Time              `json:"rejected_date,omitempty"`
	Fine               int                     `json:"fine"`
	FinePaid           bool                    `json:"fine_paid"`
	FineHistory        []models.FineAssessment `json:"fine_history,omitempty"`
	IsOverdue          bool                    `json:"is_overdue"`
	OverdueDays        int                     `json:"overdue_days"`
	CanReissue         bool                    `json:"can_reissue"`
	ReissueLockedUntil *time.Time              `json:"reissue_locked_until,omitempty"`
	CanRequestAgain    bool                    `json:"can_request_again"`
	ReissueCount       int                     `json:"reissue_count"`
	AdminNotes         string                  `json:"admin_notes,omitempty"`
	CreatedAt          time.Time               `json:"created_at"`
}

// AdminBorrowView is one flattened dashboard row.
type AdminBorrowView struct {
	ID           uuid.UUID           `json:"id"`
	Student      string              `json:"student"`
	RollNo       string              `json:"roll_no"`
	Batch        string              `json:"batch"`
	Book         string              `json:"book"`
	Department   string              `json:"department"`
	RequestedOn  time.Time           `json:"requested_on"`
	IssueDate    *time.Time          `json:"issue_date,omitempty"`
	DueDate      *time.Time          `json:"due_date,omitempty"`
	ReturnDate   *time.Time          `json:"return_date,omitempty"`
	Status       models.BorrowStatus `json:"status"`
	RequestType  models.RequestType  `json:"request_type"`
	Fine         int                 `json:"fine"`
	FinePaid     bool                `json:"fine_paid"`
	CanReissue   bool                `json:"can_reissue"`
	ReissueCount int                 `json:"reissue_count"`
}

// DashboardStats aggregates the admin dashboard counters.
type DashboardStats struct {
	TotalRequests   int64 `json:"total_requests"`
	PendingRequests int64 `json:"pending_requests"`
	IssuedBooks     int64 `json:"issued_books"`
	OverdueBooks    int64 `json:"overdue_books"`
	TotalFines      int   `json:"total_fines"`
}

var pendingStatuses = []models.BorrowStatus{
	models.BorrowStatusRequested,
	models.BorrowStatusReissueRequested,
	models.BorrowStatusReturnRequested,
}

// StudentBorrows returns every borrow record of one user, newest first.
func (s *Service) StudentBorrows(userID uuid.UUID) ([]StudentBorrowView, error) {
	records, err := s.borrowRepo.ListByUserDetailed(nil, userID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	views := make([]StudentBorrowView, 0, len(records))
	for i := range records {
		b := &records[i]
		views = append(views, StudentBorrowView{
			ID: b.ID,
			Book: BookSummary{
				ID:         b.Book.ID,
				Title:      b.Book.Title,
				Author:     b.Book.Author,
				Department: b.Book.Department,
				Status:     b.Book.Status,
			},
			Status:             b.Status,
			RequestType:        b.RequestType,
			IssueDate:          b.IssueDate,
			DueDate:            b.DueDate,
			ReturnDate:         b.ReturnDate,
			RejectedDate:       b.RejectedDate,
			Fine:               currentFine(b, now),
			FinePaid:           b.FinePaid,
			FineHistory:        b.FineHistory,
			IsOverdue:          isOverdue(b, now),
			OverdueDays:        overdueDays(b, now),
			CanReissue:         canReissueNow(b, now),
			ReissueLockedUntil: lockedUntil(b),
			CanRequestAgain:    canRequestAgain(b, now),
			ReissueCount:       b.ReissueCount,
			AdminNotes:         b.AdminNotes,
			CreatedAt:          b.CreatedAt,
		})
	}
	return views, nil
}

// AdminBorrows returns the full dashboard list, newest first.
func (s *Service) AdminBorrows() ([]AdminBorrowView, error) {
	records, err := s.borrowRepo.ListAllDetailed(nil)
	if err != nil {
		return nil, err
	}

	now := s.now()
	views := make([]AdminBorrowView, 0, len(records))
	for i := range records {
		b := &records[i]
		views = append(views, AdminBorrowView{
			ID:           b.ID,
			Student:      b.User.FullName,
			RollNo:       b.User.RollNo,
			Batch:        b.User.Batch,
			Book:         b.Book.Title,
			Department:   b.Book.Department,
			RequestedOn:  b.CreatedAt,
			IssueDate:    b.IssueDate,
			DueDate:      b.DueDate,
			ReturnDate:   b.ReturnDate,
			Status:       b.Status,
			RequestType:  b.RequestType,
			Fine:         currentFine(b, now),
			FinePaid:     b.FinePaid,
			CanReissue:   canReissueNow(b, now),
			ReissueCount: b.ReissueCount,
		})
	}
	return views, nil
}

// Stats computes the admin dashboard counters. TotalFines sums the accrued
// fine of every currently issued or overdue record as of the read instant.
func (s *Service) Stats() (*DashboardStats, error) {
	now := s.now()

	total, err := s.borrowRepo.CountAll(nil)
	if err != nil {
		return nil, err
	}
	pending, err := s.borrowRepo.CountByStatuses(nil, pendingStatuses)
	if err != nil {
		return nil, err
	}
	issued, err := s.borrowRepo.CountByStatuses(nil, []models.BorrowStatus{models.BorrowStatusIssued})
	if err != nil {
		return nil, err
	}
	overdue, err := s.borrowRepo.CountOverdue(nil, now)
	if err != nil {
		return nil, err
	}

	open, err := s.borrowRepo.ListByStatuses(nil, []models.BorrowStatus{
		models.BorrowStatusIssued,
		models.BorrowStatusOverdue,
	})
	if err != nil {
		return nil, err
	}
	totalFines := 0
	for i := range open {
		totalFines += currentFine(&open[i], now)
	}

	return &DashboardStats{
		TotalRequests:   total,
		PendingRequests: pending,
		IssuedBooks:     issued,
		OverdueBooks:    overdue,
		TotalFines:      totalFines,
	}, nil
}

// currentFine is the stored fine raised to the live recomputation, except a
// paid fine, which is frozen at its stored amount.
func currentFine(b *models.BorrowRecord, now time.Time) int {
	if b.FinePaid || b.ReturnDate != nil {
		return b.Fine
	}
	if due := fines.Calculate(b.DueDate, now).AmountDue; due > b.Fine {
		return due
	}
	return b.Fine
}

func isOverdue(b *models.BorrowRecord, now time.Time) bool {
	return b.ReturnDate == nil && b.DueDate != nil && now.After(*b.DueDate)
}

func overdueDays(b *models.BorrowRecord, now time.Time) int {
	if b.ReturnDate != nil {
		return 0
	}
	return fines.OverdueDays(b.DueDate, now)
}

func canReissueNow(b *models.BorrowRecord, now time.Time) bool {
	if b.Status != models.BorrowStatusIssued && b.Status != models.BorrowStatusOverdue {
		return false
	}
	unlockAt := engine.ReissueUnlockAt(b)
	return unlockAt.IsZero() || !now.Before(unlockAt)
}

func lockedUntil(b *models.BorrowRecord) *time.Time {
	unlockAt := engine.ReissueUnlockAt(b)
	if unlockAt.IsZero() {
		return nil
	}
	return &unlockAt
}

func canRequestAgain(b *models.BorrowRecord, now time.Time) bool {
	if b.Status != models.BorrowStatusRejected {
		return true
	}
	retryAt := engine.RejectionRetryAt(b)
	return retryAt.IsZero() || !now.Before(retryAt)
}

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type UserRole string

const (
	UserRoleStudent UserRole = "STUDENT"
	UserRoleAdmin   UserRole = "ADMIN"
)

// BookStatus is the availability state of a book. Lost and Damaged are
// administrative overrides set outside the borrow flow.
type BookStatus string

const (
	BookStatusAvailable BookStatus = "Available"
	BookStatusBorrowed  BookStatus = "Borrowed"
	BookStatusReserved  BookStatus = "Reserved"
	BookStatusLost      BookStatus = "Lost"
	BookStatusDamaged   BookStatus = "Damaged"
)

// BorrowStatus is the lifecycle state of a single borrow record.
type BorrowStatus string

const (
	BorrowStatusRequested        BorrowStatus = "requested"
	BorrowStatusIssued           BorrowStatus = "issued"
	BorrowStatusReturned         BorrowStatus = "returned"
	BorrowStatusRejected         BorrowStatus = "rejected"
	BorrowStatusOverdue          BorrowStatus = "overdue"
	BorrowStatusReissueRequested BorrowStatus = "reissue-requested"
	BorrowStatusReturnRequested  BorrowStatus = "return-requested"
	BorrowStatusCancelled        BorrowStatus = "cancelled"
	BorrowStatusFinePending      BorrowStatus = "fine-pending"
	BorrowStatusCompleted        BorrowStatus = "completed"
)

// ActiveBorrowStatuses are the statuses that count as an open commitment
// between a user and a book; at most one record per (book, user) may hold
// any of these at a time.
var ActiveBorrowStatuses = []BorrowStatus{
	BorrowStatusRequested,
	BorrowStatusIssued,
	BorrowStatusOverdue,
	BorrowStatusReissueRequested,
	BorrowStatusReturnRequested,
}

// RequestType distinguishes why a borrow record was opened.
type RequestType string

const (
	RequestTypeBorrow  RequestType = "borrow"
	RequestTypeReissue RequestType = "reissue"
	RequestTypeReturn  RequestType = "return"
)

type User struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	FullName string    `gorm:"size:255;not null" json:"full_name"`
	RollNo   string    `gorm:"size:64" json:"roll_no"`
	Batch    string    `gorm:"size:64" json:"batch"`
	Email    string    `gorm:"size:255;uniqueIndex" json:"email"`
	Role     UserRole  `gorm:"size:20;not null;default:'STUDENT'" json:"role"`
}

type Book struct {
	ID              uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Title           string     `gorm:"size:255;not null" json:"title"`
	Author          string     `gorm:"size:255;not null" json:"author"`
	ISBN            string     `gorm:"size:32;uniqueIndex;not null" json:"isbn"`
	Publisher       string     `gorm:"size:255" json:"publisher,omitempty"`
	PublicationYear int        `json:"publication_year,omitempty"`
	Category        string     `gorm:"size:128" json:"category,omitempty"`
	Department      string     `gorm:"size:128;not null" json:"department"`
	Pages           int        `json:"pages,omitempty"`
	TotalCopies     int        `gorm:"not null;default:1" json:"total_copies"`
	AvailableCopies int        `gorm:"not null;default:1" json:"available_copies"`
	Location        string     `gorm:"size:128" json:"location,omitempty"`
	Description     string     `json:"description,omitempty"`
	Status          BookStatus `gorm:"size:20;not null;default:'Available';index" json:"status"`
}

// BorrowRecord is one request/issue/return lifecycle instance tied to a book
// and a user. Status is driven exclusively by the lifecycle engine.
type BorrowRecord struct {
	ID              uuid.UUID   `gorm:"type:uuid;primaryKey" json:"id"`
	BookID          uuid.UUID   `gorm:"type:uuid;not null;index" json:"book_id"`
	Book            Book        `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;" json:"-"`
	UserID          uuid.UUID   `gorm:"type:uuid;not null;index" json:"user_id"`
	User            User        `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;" json:"-"`
	RequestType     RequestType `gorm:"size:16;not null;default:'borrow'" json:"request_type"`
	ParentRequestID *uuid.UUID  `gorm:"type:uuid" json:"parent_request_id,omitempty"`

	Status BorrowStatus `gorm:"size:24;not null;default:'requested';index" json:"status"`

	CreatedAt        time.Time  `gorm:"not null" json:"created_at"`
	IssueDate        *time.Time `json:"issue_date,omitempty"`
	DueDate          *time.Time `json:"due_date,omitempty"`
	ReturnDate       *time.Time `json:"return_date,omitempty"`
	ActualReturnDate *time.Time `json:"actual_return_date,omitempty"`
	RejectedDate     *time.Time `json:"rejected_date,omitempty"`
	LastReissueDate  *time.Time `json:"last_reissue_date,omitempty"`

	ReissueCount    int  `gorm:"not null;default:0" json:"reissue_count"`
	IsReissueLocked bool `gorm:"not null;default:false;index" json:"is_reissue_locked"`

	Fine     int  `gorm:"not null;default:0" json:"fine"`
	FinePaid bool `gorm:"not null;default:false" json:"fine_paid"`

	FineHistory []FineAssessment `gorm:"foreignKey:BorrowID" json:"fine_history,omitempty"`

	AdminNotes string `json:"admin_notes,omitempty"`
}

// FineAssessment is one append-only fine audit entry; rows are never updated
// or deleted once written.
type FineAssessment struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	BorrowID     uuid.UUID `gorm:"type:uuid;not null;index" json:"borrow_id"`
	Weeks        int       `gorm:"not null" json:"weeks"`
	Amount       int       `gorm:"not null" json:"amount"`
	CalculatedAt time.Time `gorm:"not null" json:"calculated_at"`
}

// IDs are assigned application-side so the same models work against both
// postgres and the in-memory sqlite databases used in tests.

func (u *User) BeforeCreate(_ *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

func (b *Book) BeforeCreate(_ *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

func (b *BorrowRecord) BeforeCreate(_ *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

func (f *FineAssessment) BeforeCreate(_ *gorm.DB) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	return nil
}

// IsActive reports whether the record's status counts against the
// one-active-record-per-(book,user) rule.
func (b *BorrowRecord) IsActive() bool {
	for _, s := range ActiveBorrowStatuses {
		if b.Status == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the record can never transition again.
func (b *BorrowRecord) IsTerminal() bool {
	switch b.Status {
	case BorrowStatusCompleted, BorrowStatusCancelled, BorrowStatusRejected:
		return true
	}
	return false
}

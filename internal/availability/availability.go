// Package availability owns book availability transitions. Only the borrow
// lifecycle engine calls it; handlers never flip book status directly.
package availability

import (
	"errors"

	"gorm.io/gorm"

	"github.com/aliraza-090/Library-Management/internal/models"
	"github.com/aliraza-090/Library-Management/internal/repositories"
)

// ErrBookOutOfCirculation is returned when a transition is attempted on a
// book administratively marked Lost or Damaged.
var ErrBookOutOfCirculation = errors.New("book is lost or damaged")

// Tracker applies availability transitions to a book row. Every operation is
// no-op safe: re-applying a transition the book is already in never errors,
// since multiple lifecycle paths may try to restore availability after
// partial failures.
type Tracker struct {
	bookRepo repositories.BookRepository
}

func NewTracker(bookRepo repositories.BookRepository) *Tracker {
	return &Tracker{bookRepo: bookRepo}
}

// Reserve marks an Available book Reserved. Idempotent when already Reserved.
func (t *Tracker) Reserve(tx *gorm.DB, book *models.Book) error {
	switch book.Status {
	case models.BookStatusReserved:
		return nil
	case models.BookStatusLost, models.BookStatusDamaged:
		return ErrBookOutOfCirculation
	}
	return t.set(tx, book, models.BookStatusReserved)
}

// Release restores a Reserved book to Available. Any other state is left
// untouched: releasing an already-Available book is a no-op, and a Borrowed
// book stays Borrowed (the reservation being released never issued it).
func (t *Tracker) Release(tx *gorm.DB, book *models.Book) error {
	if book.Status != models.BookStatusReserved {
		return nil
	}
	return t.set(tx, book, models.BookStatusAvailable)
}

// MarkBorrowed marks the book Borrowed when a request is issued.
func (t *Tracker) MarkBorrowed(tx *gorm.DB, book *models.Book) error {
	switch book.Status {
	case models.BookStatusBorrowed:
		return nil
	case models.BookStatusLost, models.BookStatusDamaged:
		return ErrBookOutOfCirculation
	}
	return t.set(tx, book, models.BookStatusBorrowed)
}

// MarkAvailable returns the book to circulation after a confirmed return.
func (t *Tracker) MarkAvailable(tx *gorm.DB, book *models.Book) error {
	switch book.Status {
	case models.BookStatusAvailable:
		return nil
	case models.BookStatusLost, models.BookStatusDamaged:
		return ErrBookOutOfCirculation
	}
	return t.set(tx, book, models.BookStatusAvailable)
}

func (t *Tracker) set(tx *gorm.DB, book *models.Book, status models.BookStatus) error {
	if err := t.bookRepo.UpdateStatus(tx, book.ID, status); err != nil {
		return err
	}
	book.Status = status
	return nil
}

package repositories

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aliraza-090/Library-Management/internal/models"
)

// All methods accept an optional *gorm.DB so callers running inside a
// transaction can pass their tx handle; nil falls back to the base handle.

type UserRepository interface {
	Create(db *gorm.DB, user *models.User) error
	GetByID(db *gorm.DB, id uuid.UUID) (*models.User, error)
}

type BookRepository interface {
	Create(db *gorm.DB, book *models.Book) error
	List(db *gorm.DB) ([]models.Book, error)
	GetByID(db *gorm.DB, id uuid.UUID) (*models.Book, error)
	GetByIDForUpdate(db *gorm.DB, id uuid.UUID) (*models.Book, error)
	UpdateStatus(db *gorm.DB, id uuid.UUID, status models.BookStatus) error
}

type BorrowRepository interface {
	Create(db *gorm.DB, borrow *models.BorrowRecord) error
	Save(db *gorm.DB, borrow *models.BorrowRecord) error
	Delete(db *gorm.DB, id uuid.UUID) error

	GetByID(db *gorm.DB, id uuid.UUID) (*models.BorrowRecord, error)
	GetByIDForUpdate(db *gorm.DB, id uuid.UUID) (*models.BorrowRecord, error)

	FindActive(db *gorm.DB, bookID, userID uuid.UUID) (*models.BorrowRecord, error)
	FindLatestRejected(db *gorm.DB, bookID, userID uuid.UUID) (*models.BorrowRecord, error)

	ListByUser(db *gorm.DB, userID uuid.UUID) ([]models.BorrowRecord, error)
	ListByUserDetailed(db *gorm.DB, userID uuid.UUID) ([]models.BorrowRecord, error)
	ListAll(db *gorm.DB) ([]models.BorrowRecord, error)
	ListAllDetailed(db *gorm.DB) ([]models.BorrowRecord, error)
	ListByStatuses(db *gorm.DB, statuses []models.BorrowStatus) ([]models.BorrowRecord, error)
	ListReissueLocked(db *gorm.DB) ([]models.BorrowRecord, error)

	CountAll(db *gorm.DB) (int64, error)
	CountByStatuses(db *gorm.DB, statuses []models.BorrowStatus) (int64, error)
	CountOverdue(db *gorm.DB, asOf time.Time) (int64, error)
}

type FineAssessmentRepository interface {
	Create(db *gorm.DB, assessment *models.FineAssessment) error
	ListByBorrow(db *gorm.DB, borrowID uuid.UUID) ([]models.FineAssessment, error)
}

// concrete implementations

type userRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(db *gorm.DB, user *models.User) error {
	if db == nil {
		db = r.db
	}
	return db.Create(user).Error
}

func (r *userRepository) GetByID(db *gorm.DB, id uuid.UUID) (*models.User, error) {
	if db == nil {
		db = r.db
	}
	var user models.User
	if err := db.First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

type bookRepository struct {
	db *gorm.DB
}

func NewBookRepository(db *gorm.DB) BookRepository {
	return &bookRepository{db: db}
}

func (r *bookRepository) Create(db *gorm.DB, book *models.Book) error {
	if db == nil {
		db = r.db
	}
	return db.Create(book).Error
}

func (r *bookRepository) List(db *gorm.DB) ([]models.Book, error) {
	if db == nil {
		db = r.db
	}
	var books []models.Book
	if err := db.Find(&books).Error; err != nil {
		return nil, err
	}
	return books, nil
}

func (r *bookRepository) GetByID(db *gorm.DB, id uuid.UUID) (*models.Book, error) {
	if db == nil {
		db = r.db
	}
	var book models.Book
	if err := db.First(&book, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &book, nil
}

func (r *bookRepository) GetByIDForUpdate(db *gorm.DB, id uuid.UUID) (*models.Book, error) {
	if db == nil {
		db = r.db
	}
	var book models.Book
	err := db.
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&book, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &book, nil
}

func (r *bookRepository) UpdateStatus(db *gorm.DB, id uuid.UUID, status models.BookStatus) error {
	if db == nil {
		db = r.db
	}
	return db.Model(&models.Book{}).
		Where("id = ?", id).
		Update("status", status).
		Error
}

type borrowRepository struct {
	db *gorm.DB
}

func NewBorrowRepository(db *gorm.DB) BorrowRepository {
	return &borrowRepository{db: db}
}

func (r *borrowRepository) Create(db *gorm.DB, borrow *models.BorrowRecord) error {
	if db == nil {
		db = r.db
	}
	return db.Create(borrow).Error
}

func (r *borrowRepository) Save(db *gorm.DB, borrow *models.BorrowRecord) error {
	if db == nil {
		db = r.db
	}
	// Omit associations so saving a record never rewrites fine history rows.
	return db.Omit("FineHistory", "Book", "User").Save(borrow).Error
}

func (r *borrowRepository) Delete(db *gorm.DB, id uuid.UUID) error {
	if db == nil {
		db = r.db
	}
	return db.Delete(&models.BorrowRecord{}, "id = ?", id).Error
}

func (r *borrowRepository) GetByID(db *gorm.DB, id uuid.UUID) (*models.BorrowRecord, error) {
	if db == nil {
		db = r.db
	}
	var borrow models.BorrowRecord
	if err := db.First(&borrow, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &borrow, nil
}

func (r *borrowRepository) GetByIDForUpdate(db *gorm.DB, id uuid.UUID) (*models.BorrowRecord, error) {
	if db == nil {
		db = r.db
	}
	var borrow models.BorrowRecord
	err := db.
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&borrow, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &borrow, nil
}

func (r *borrowRepository) FindActive(db *gorm.DB, bookID, userID uuid.UUID) (*models.BorrowRecord, error) {
	if db == nil {
		db = r.db
	}
	var borrow models.BorrowRecord
	err := db.
		Where("book_id = ? AND user_id = ? AND status IN ?", bookID, userID, models.ActiveBorrowStatuses).
		First(&borrow).Error
	if err != nil {
		return nil, err
	}
	return &borrow, nil
}

func (r *borrowRepository) FindLatestRejected(db *gorm.DB, bookID, userID uuid.UUID) (*models.BorrowRecord, error) {
	if db == nil {
		db = r.db
	}
	var borrow models.BorrowRecord
	err := db.
		Where("book_id = ? AND user_id = ? AND status = ?", bookID, userID, models.BorrowStatusRejected).
		Order("rejected_date DESC").
		First(&borrow).Error
	if err != nil {
		return nil, err
	}
	return &borrow, nil
}

func (r *borrowRepository) ListByUser(db *gorm.DB, userID uuid.UUID) ([]models.BorrowRecord, error) {
	if db == nil {
		db = r.db
	}
	var borrows []models.BorrowRecord
	err := db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&borrows).Error
	if err != nil {
		return nil, err
	}
	return borrows, nil
}

func (r *borrowRepository) ListByUserDetailed(db *gorm.DB, userID uuid.UUID) ([]models.BorrowRecord, error) {
	if db == nil {
		db = r.db
	}
	var borrows []models.BorrowRecord
	err := db.Preload("Book").Preload("FineHistory").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&borrows).Error
	if err != nil {
		return nil, err
	}
	return borrows, nil
}

func (r *borrowRepository) ListAll(db *gorm.DB) ([]models.BorrowRecord, error) {
	if db == nil {
		db = r.db
	}
	var borrows []models.BorrowRecord
	if err := db.Order("created_at DESC").Find(&borrows).Error; err != nil {
		return nil, err
	}
	return borrows, nil
}

func (r *borrowRepository) ListAllDetailed(db *gorm.DB) ([]models.BorrowRecord, error) {
	if db == nil {
		db = r.db
	}
	var borrows []models.BorrowRecord
	err := db.Preload("Book").Preload("User").
		Order("created_at DESC").
		Find(&borrows).Error
	if err != nil {
		return nil, err
	}
	return borrows, nil
}

func (r *borrowRepository) ListByStatuses(db *gorm.DB, statuses []models.BorrowStatus) ([]models.BorrowRecord, error) {
	if db == nil {
		db = r.db
	}
	var borrows []models.BorrowRecord
	if err := db.Where("status IN ?", statuses).Find(&borrows).Error; err != nil {
		return nil, err
	}
	return borrows, nil
}

func (r *borrowRepository) ListReissueLocked(db *gorm.DB) ([]models.BorrowRecord, error) {
	if db == nil {
		db = r.db
	}
	var borrows []models.BorrowRecord
	err := db.
		Where("is_reissue_locked = ? AND last_reissue_date IS NOT NULL", true).
		Find(&borrows).Error
	if err != nil {
		return nil, err
	}
	return borrows, nil
}

func (r *borrowRepository) CountAll(db *gorm.DB) (int64, error) {
	if db == nil {
		db = r.db
	}
	var count int64
	err := db.Model(&models.BorrowRecord{}).Count(&count).Error
	return count, err
}

func (r *borrowRepository) CountByStatuses(db *gorm.DB, statuses []models.BorrowStatus) (int64, error) {
	if db == nil {
		db = r.db
	}
	var count int64
	err := db.Model(&models.BorrowRecord{}).
		Where("status IN ?", statuses).
		Count(&count).Error
	return count, err
}

func (r *borrowRepository) CountOverdue(db *gorm.DB, asOf time.Time) (int64, error) {
	if db == nil {
		db = r.db
	}
	var count int64
	err := db.Model(&models.BorrowRecord{}).
		Where("status IN ? AND due_date < ?", []models.BorrowStatus{models.BorrowStatusIssued, models.BorrowStatusOverdue}, asOf).
		Count(&count).Error
	return count, err
}

type fineAssessmentRepository struct {
	db *gorm.DB
}

func NewFineAssessmentRepository(db *gorm.DB) FineAssessmentRepository {
	return &fineAssessmentRepository{db: db}
}

func (r *fineAssessmentRepository) Create(db *gorm.DB, assessment *models.FineAssessment) error {
	if db == nil {
		db = r.db
	}
	return db.Create(assessment).Error
}

func (r *fineAssessmentRepository) ListByBorrow(db *gorm.DB, borrowID uuid.UUID) ([]models.FineAssessment, error) {
	if db == nil {
		db = r.db
	}
	var assessments []models.FineAssessment
	err := db.Where("borrow_id = ?", borrowID).
		Order("calculated_at ASC").
		Find(&assessments).Error
	if err != nil {
		return nil, err
	}
	return assessments, nil
}

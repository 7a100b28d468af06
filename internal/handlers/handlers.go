package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/aliraza-090/Library-Management/internal/availability"
	"github.com/aliraza-090/Library-Management/internal/engine"
	"github.com/aliraza-090/Library-Management/internal/models"
	"github.com/aliraza-090/Library-Management/internal/queries"
	"github.com/aliraza-090/Library-Management/internal/repositories"
)

type BorrowHandler struct {
	eng      *engine.Engine
	queries  *queries.Service
	bookRepo repositories.BookRepository
	userRepo repositories.UserRepository
}

func RegisterRoutes(r *gin.Engine, eng *engine.Engine, qs *queries.Service, bookRepo repositories.BookRepository, userRepo repositories.UserRepository) {
	h := &BorrowHandler{eng: eng, queries: qs, bookRepo: bookRepo, userRepo: userRepo}

	// Catalogue
	r.POST("/books", h.createBook)
	r.GET("/books", h.listBooks)
	r.GET("/books/:id", h.getBook)
	r.PUT("/books/:id/availability", h.overrideBookStatus)
	r.POST("/users", h.createUser)

	// Student actions
	r.POST("/borrows/request", h.requestBook)
	r.POST("/borrows/:id/reissue", h.requestReissue)
	r.POST("/borrows/:id/return", h.requestReturn)
	r.PUT("/borrows/:id/cancel", h.cancelRequest)
	r.PUT("/borrows/:id/pay-fine", h.payFine)
	r.GET("/users/:id/borrows", h.listUserBorrows)

	// Admin actions
	r.GET("/borrows", h.listBorrows)
	r.PUT("/borrows/:id/status", h.setStatus)
	r.DELETE("/borrows/:id", h.deleteBorrow)
	r.GET("/borrows/stats", h.stats)

	// Sweep entry points for an external scheduler
	r.POST("/sweeps/recompute-overdue", h.recomputeOverdue)
	r.POST("/sweeps/unlock-reissues", h.unlockReissues)
}

// respondEngineError maps engine errors onto HTTP statuses. Temporal-policy
// errors carry their unlock data so clients can tell the user exactly when
// to retry.
func respondEngineError(c *gin.Context, err error) {
	var cooldown *engine.CooldownError
	if errors.As(err, &cooldown) {
		c.JSON(http.StatusConflict, gin.H{
			"error":           err.Error(),
			"available_after": cooldown.AvailableAfter,
			"days_left":       cooldown.DaysLeft,
		})
		return
	}
	var locked *engine.ReissueLockedError
	if errors.As(err, &locked) {
		c.JSON(http.StatusConflict, gin.H{
			"error":     err.Error(),
			"unlock_at": locked.UnlockAt,
		})
		return
	}
	var outstanding *engine.FineOutstandingError
	if errors.As(err, &outstanding) {
		c.JSON(http.StatusConflict, gin.H{
			"error":       err.Error(),
			"fine_amount": outstanding.Amount,
		})
		return
	}

	switch {
	case errors.Is(err, engine.ErrBookNotFound),
		errors.Is(err, engine.ErrUserNotFound),
		errors.Is(err, engine.ErrBorrowNotFound),
		errors.Is(err, engine.ErrRelatedBookMissing):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, engine.ErrBookUnavailable),
		errors.Is(err, engine.ErrActiveRequestExists),
		errors.Is(err, engine.ErrInvalidTransition),
		errors.Is(err, engine.ErrNotEligible),
		errors.Is(err, engine.ErrNotCancellable),
		errors.Is(err, engine.ErrNoFinePending),
		errors.Is(err, engine.ErrNotDeletable),
		errors.Is(err, availability.ErrBookOutOfCirculation):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// ─── Catalogue ────────────────────────────────────────────────────────────────

type createBookRequest struct {
	Title           string `json:"title" binding:"required"`
	Author          string `json:"author" binding:"required"`
	ISBN            string `json:"isbn" binding:"required"`
	Department      string `json:"department" binding:"required"`
	Publisher       string `json:"publisher"`
	PublicationYear int    `json:"publication_year"`
	Category        string `json:"category"`
	Pages           int    `json:"pages"`
	TotalCopies     int    `json:"total_copies"`
	Location        string `json:"location"`
	Description     string `json:"description"`
}

func (h *BorrowHandler) createBook(c *gin.Context) {
	var req createBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	copies := req.TotalCopies
	if copies < 1 {
		copies = 1
	}
	book := &models.Book{
		Title:           req.Title,
		Author:          req.Author,
		ISBN:            req.ISBN,
		Department:      req.Department,
		Publisher:       req.Publisher,
		PublicationYear: req.PublicationYear,
		Category:        req.Category,
		Pages:           req.Pages,
		TotalCopies:     copies,
		AvailableCopies: copies,
		Location:        req.Location,
		Description:     req.Description,
		Status:          models.BookStatusAvailable,
	}
	if err := h.bookRepo.Create(nil, book); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, book)
}

func (h *BorrowHandler) listBooks(c *gin.Context) {
	books, err := h.bookRepo.List(nil)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, books)
}

func (h *BorrowHandler) getBook(c *gin.Context) {
	bookID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid book id"})
		return
	}
	book, err := h.bookRepo.GetByID(nil, bookID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "book not found"})
		return
	}
	c.JSON(http.StatusOK, book)
}

type overrideStatusRequest struct {
	Status models.BookStatus `json:"status" binding:"required"`
}

// overrideBookStatus is the administrative escape hatch for taking a book
// out of circulation (Lost, Damaged) or putting it back. It deliberately
// bypasses the lifecycle engine, which never sets these states.
func (h *BorrowHandler) overrideBookStatus(c *gin.Context) {
	bookID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid book id"})
		return
	}

	var req overrideStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	switch req.Status {
	case models.BookStatusLost, models.BookStatusDamaged, models.BookStatusAvailable:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "status must be Lost, Damaged or Available"})
		return
	}

	if _, err := h.bookRepo.GetByID(nil, bookID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "book not found"})
		return
	}
	if err := h.bookRepo.UpdateStatus(nil, bookID, req.Status); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "book status updated", "status": req.Status})
}

type createUserRequest struct {
	FullName string          `json:"full_name" binding:"required"`
	RollNo   string          `json:"roll_no"`
	Batch    string          `json:"batch"`
	Email    string          `json:"email" binding:"required,email"`
	Role     models.UserRole `json:"role"`
}

func (h *BorrowHandler) createUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	role := req.Role
	if role == "" {
		role = models.UserRoleStudent
	}
	user := &models.User{
		FullName: req.FullName,
		RollNo:   req.RollNo,
		Batch:    req.Batch,
		Email:    req.Email,
		Role:     role,
	}
	if err := h.userRepo.Create(nil, user); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, user)
}

// ─── Student actions ──────────────────────────────────────────────────────────

type borrowRequest struct {
	BookID string `json:"book_id" binding:"required,uuid"`
	UserID string `json:"user_id" binding:"required,uuid"`
}

func (h *BorrowHandler) requestBook(c *gin.Context) {
	var req borrowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	bookID, _ := uuid.Parse(req.BookID)
	userID, _ := uuid.Parse(req.UserID)

	borrow, err := h.eng.CreateBorrowRequest(bookID, userID)
	if err != nil {
		respondEngineError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message": "book requested, waiting for admin approval",
		"borrow":  borrow,
	})
}

func (h *BorrowHandler) borrowIDParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid borrow id"})
		return uuid.Nil, false
	}
	return id, true
}

func (h *BorrowHandler) requestReissue(c *gin.Context) {
	id, ok := h.borrowIDParam(c)
	if !ok {
		return
	}
	borrow, err := h.eng.RequestReissue(id)
	if err != nil {
		respondEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "reissue request sent to admin", "borrow": borrow})
}

func (h *BorrowHandler) requestReturn(c *gin.Context) {
	id, ok := h.borrowIDParam(c)
	if !ok {
		return
	}
	borrow, err := h.eng.RequestReturn(id)
	if err != nil {
		respondEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":     "return request sent to admin",
		"fine_amount": borrow.Fine,
		"borrow":      borrow,
	})
}

func (h *BorrowHandler) cancelRequest(c *gin.Context) {
	id, ok := h.borrowIDParam(c)
	if !ok {
		return
	}
	borrow, err := h.eng.CancelRequest(id)
	if err != nil {
		respondEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "request cancelled", "borrow": borrow})
}

func (h *BorrowHandler) payFine(c *gin.Context) {
	id, ok := h.borrowIDParam(c)
	if !ok {
		return
	}
	borrow, err := h.eng.PayFine(id)
	if err != nil {
		respondEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":     "fine paid",
		"paid_amount": borrow.Fine,
		"new_status":  borrow.Status,
	})
}

func (h *BorrowHandler) listUserBorrows(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}
	views, err := h.queries.StudentBorrows(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, views)
}

// ─── Admin actions ────────────────────────────────────────────────────────────

func (h *BorrowHandler) listBorrows(c *gin.Context) {
	views, err := h.queries.AdminBorrows()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, views)
}

type setStatusRequest struct {
	Status     models.BorrowStatus `json:"status" binding:"required"`
	AdminNotes string              `json:"admin_notes"`
}

func (h *BorrowHandler) setStatus(c *gin.Context) {
	id, ok := h.borrowIDParam(c)
	if !ok {
		return
	}
	var req setStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	borrow, err := h.eng.SetStatus(id, req.Status, req.AdminNotes)
	if err != nil {
		respondEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":     "borrow status updated",
		"new_status":  borrow.Status,
		"fine_amount": borrow.Fine,
		"borrow":      borrow,
	})
}

func (h *BorrowHandler) deleteBorrow(c *gin.Context) {
	id, ok := h.borrowIDParam(c)
	if !ok {
		return
	}
	if err := h.eng.DeleteBorrow(id); err != nil {
		respondEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "borrow request deleted"})
}

func (h *BorrowHandler) stats(c *gin.Context) {
	stats, err := h.queries.Stats()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// ─── Sweeps ───────────────────────────────────────────────────────────────────

func (h *BorrowHandler) recomputeOverdue(c *gin.Context) {
	c.JSON(http.StatusOK, h.eng.RecomputeOverdue(time.Now().UTC()))
}

func (h *BorrowHandler) unlockReissues(c *gin.Context) {
	c.JSON(http.StatusOK, h.eng.UnlockExpiredReissues(time.Now().UTC()))
}

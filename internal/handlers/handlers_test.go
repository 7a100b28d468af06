package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/aliraza-090/Library-Management/internal/availability"
	"github.com/aliraza-090/Library-Management/internal/engine"
	"github.com/aliraza-090/Library-Management/internal/models"
	"github.com/aliraza-090/Library-Management/internal/queries"
	"github.com/aliraza-090/Library-Management/internal/repositories"
)

func setupRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Book{},
		&models.BorrowRecord{},
		&models.FineAssessment{},
	))

	userRepo := repositories.NewUserRepository(db)
	bookRepo := repositories.NewBookRepository(db)
	borrowRepo := repositories.NewBorrowRepository(db)
	fineRepo := repositories.NewFineAssessmentRepository(db)
	eng := engine.NewEngine(db, userRepo, bookRepo, borrowRepo, fineRepo, availability.NewTracker(bookRepo))
	qs := queries.NewService(borrowRepo)

	r := gin.New()
	RegisterRoutes(r, eng, qs, bookRepo, userRepo)
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	parsed := map[string]any{}
	if len(w.Body.Bytes()) > 0 && w.Body.Bytes()[0] == '{' {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &parsed))
	}
	return w, parsed
}

func createTestUser(t *testing.T, r *gin.Engine) string {
	t.Helper()
	w, body := doJSON(t, r, http.MethodPost, "/users", gin.H{
		"full_name": "Priya Nair",
		"roll_no":   "22ME007",
		"batch":     "2022",
		"email":     "priya@example.edu",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	return body["id"].(string)
}

func createTestBook(t *testing.T, r *gin.Engine) string {
	t.Helper()
	w, body := doJSON(t, r, http.MethodPost, "/books", gin.H{
		"title":      "Design of Machine Elements",
		"author":     "V. B. Bhandari",
		"isbn":       "978-9339221126",
		"department": "ME",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	return body["id"].(string)
}

func requestBorrow(t *testing.T, r *gin.Engine, bookID, userID string) string {
	t.Helper()
	w, body := doJSON(t, r, http.MethodPost, "/borrows/request", gin.H{
		"book_id": bookID,
		"user_id": userID,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	borrow := body["borrow"].(map[string]any)
	return borrow["id"].(string)
}

func TestRequestBorrowLifecycleOverHTTP(t *testing.T) {
	r := setupRouter(t)
	userID := createTestUser(t, r)
	bookID := createTestBook(t, r)

	borrowID := requestBorrow(t, r, bookID, userID)

	// The book is reserved while the request awaits approval.
	w, book := doJSON(t, r, http.MethodGet, "/books/"+bookID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, string(models.BookStatusReserved), book["status"])

	// A duplicate request for the same pair conflicts.
	w, body := doJSON(t, r, http.MethodPost, "/borrows/request", gin.H{
		"book_id": bookID,
		"user_id": userID,
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, body["error"], "active request")

	// Admin approves the issue.
	w, body = doJSON(t, r, http.MethodPut, "/borrows/"+borrowID+"/status", gin.H{
		"status": "issued",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "issued", body["new_status"])

	w, book = doJSON(t, r, http.MethodGet, "/books/"+bookID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, string(models.BookStatusBorrowed), book["status"])

	// Student asks to return, admin confirms, no fine means completed.
	w, _ = doJSON(t, r, http.MethodPost, "/borrows/"+borrowID+"/return", nil)
	require.Equal(t, http.StatusOK, w.Code)
	w, body = doJSON(t, r, http.MethodPut, "/borrows/"+borrowID+"/status", gin.H{
		"status": "returned",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "completed", body["new_status"])
	assert.Equal(t, float64(0), body["fine_amount"])
}

func TestIllegalTransitionConflicts(t *testing.T) {
	r := setupRouter(t)
	userID := createTestUser(t, r)
	bookID := createTestBook(t, r)
	borrowID := requestBorrow(t, r, bookID, userID)

	w, body := doJSON(t, r, http.MethodPut, "/borrows/"+borrowID+"/status", gin.H{
		"status": "returned",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, body["error"], "transition")
}

func TestReissueLockPayload(t *testing.T) {
	r := setupRouter(t)
	userID := createTestUser(t, r)
	bookID := createTestBook(t, r)
	borrowID := requestBorrow(t, r, bookID, userID)

	_, _ = doJSON(t, r, http.MethodPut, "/borrows/"+borrowID+"/status", gin.H{"status": "issued"})

	w, _ := doJSON(t, r, http.MethodPost, "/borrows/"+borrowID+"/reissue", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, body := doJSON(t, r, http.MethodPut, "/borrows/"+borrowID+"/status", gin.H{"status": "reissued"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "issued", body["new_status"])

	// A second ask inside the 30-day window reports its unlock instant.
	w, body = doJSON(t, r, http.MethodPost, "/borrows/"+borrowID+"/reissue", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.NotEmpty(t, body["unlock_at"])
}

func TestCancelReleasesReservationOverHTTP(t *testing.T) {
	r := setupRouter(t)
	userID := createTestUser(t, r)
	bookID := createTestBook(t, r)
	borrowID := requestBorrow(t, r, bookID, userID)

	w, _ := doJSON(t, r, http.MethodPut, "/borrows/"+borrowID+"/cancel", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, book := doJSON(t, r, http.MethodGet, "/books/"+bookID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, string(models.BookStatusAvailable), book["status"])

	// Cancelling twice conflicts; the record is already terminal.
	w, _ = doJSON(t, r, http.MethodPut, "/borrows/"+borrowID+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestPayFineWithoutFineConflicts(t *testing.T) {
	r := setupRouter(t)
	userID := createTestUser(t, r)
	bookID := createTestBook(t, r)
	borrowID := requestBorrow(t, r, bookID, userID)

	w, body := doJSON(t, r, http.MethodPut, "/borrows/"+borrowID+"/pay-fine", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, body["error"], "fine")
}

func TestBorrowNotFoundAndBadID(t *testing.T) {
	r := setupRouter(t)

	w, _ := doJSON(t, r, http.MethodPost, "/borrows/not-a-uuid/reissue", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = doJSON(t, r, http.MethodPost, "/borrows/5d2f0c5e-0c1f-4a4f-9d18-4e6b3a9c1f00/reissue", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestOverrideBookStatusValidation(t *testing.T) {
	r := setupRouter(t)
	bookID := createTestBook(t, r)

	w, _ := doJSON(t, r, http.MethodPut, "/books/"+bookID+"/availability", gin.H{"status": "Borrowed"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, body := doJSON(t, r, http.MethodPut, "/books/"+bookID+"/availability", gin.H{"status": "Lost"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Lost", body["status"])

	// A lost book cannot be requested.
	userID := createTestUser(t, r)
	w, _ = doJSON(t, r, http.MethodPost, "/borrows/request", gin.H{
		"book_id": bookID,
		"user_id": userID,
	})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestStatsEndpoint(t *testing.T) {
	r := setupRouter(t)
	userID := createTestUser(t, r)

	for i := 0; i < 2; i++ {
		w, body := doJSON(t, r, http.MethodPost, "/books", gin.H{
			"title":      fmt.Sprintf("Volume %d", i+1),
			"author":     "Various",
			"isbn":       fmt.Sprintf("978-000000000%d", i),
			"department": "GEN",
		})
		require.Equal(t, http.StatusCreated, w.Code)
		requestBorrow(t, r, body["id"].(string), userID)
	}

	w, stats := doJSON(t, r, http.MethodGet, "/borrows/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), stats["total_requests"])
	assert.Equal(t, float64(2), stats["pending_requests"])
	assert.Equal(t, float64(0), stats["issued_books"])
}

func TestListUserBorrowsProjection(t *testing.T) {
	r := setupRouter(t)
	userID := createTestUser(t, r)
	bookID := createTestBook(t, r)
	requestBorrow(t, r, bookID, userID)

	req := httptest.NewRequest(http.MethodGet, "/users/"+userID+"/borrows", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var views []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &views))
	require.Len(t, views, 1)
	assert.Equal(t, "requested", views[0]["status"])
	book := views[0]["book"].(map[string]any)
	assert.Equal(t, "Design of Machine Elements", book["title"])
}

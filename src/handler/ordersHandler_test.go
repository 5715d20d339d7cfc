package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"strangleexecutor/src/auth"
	"strangleexecutor/src/model"
	"strangleexecutor/src/repository"

	"github.com/stretchr/testify/assert"
)

type mockOrderSearcher struct {
	orders        []model.OrderLedger
	err           error
	sessionID     *uint
	symbol        *string
	side          *string
	status        *string
	createdAfter  *time.Time
	createdBefore *time.Time
	limit         int
	offset        int
	calledCount   int
}

func (m *mockOrderSearcher) Search(ctx context.Context, options repository.OrderSearchOptions) ([]model.OrderLedger, error) {
	m.calledCount++
	m.sessionID = options.SessionID
	m.symbol = options.Symbol
	m.side = options.Side
	m.status = options.Status
	m.createdAfter = options.CreatedAfter
	m.createdBefore = options.CreatedBefore
	m.limit = options.Limit
	m.offset = options.Offset
	return m.orders, m.err
}

func TestSearchOrdersHandler_Unauthorized(t *testing.T) {
	handler := SearchOrdersHandler(&mockOrderSearcher{})

	req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
}

func TestSearchOrdersHandler_InvalidSession(t *testing.T) {
	handler := SearchOrdersHandler(&mockOrderSearcher{})

	req := httptest.NewRequest(http.MethodGet, "/api/orders?sessionId=abc", nil)
	req = req.WithContext(context.WithValue(req.Context(), auth.UserKey, &model.User{ID: 1}))
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestSearchOrdersHandler_RepoError(t *testing.T) {
	mockRepo := &mockOrderSearcher{err: assert.AnError}
	handler := SearchOrdersHandler(mockRepo)

	req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	req = req.WithContext(context.WithValue(req.Context(), auth.UserKey, &model.User{ID: 42}))
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rr.Code)
	}

	if mockRepo.calledCount != 1 {
		t.Fatalf("expected repository to be called once, got %d", mockRepo.calledCount)
	}
}

func TestSearchOrdersHandler_Success(t *testing.T) {
	sessionID := uint(3)
	orders := []model.OrderLedger{{ID: 1, Symbol: "C-BTC-64000-100226"}}
	mockRepo := &mockOrderSearcher{orders: orders}
	handler := SearchOrdersHandler(mockRepo)

	req := httptest.NewRequest(http.MethodGet, "/api/orders?sessionId=3&symbol=C-BTC-64000-100226&side=sell&status=closed&createdFrom=2026-01-01T00:00:00Z&createdTo=2026-02-01T00:00:00Z&page=2&pageSize=5", nil)
	req = req.WithContext(context.WithValue(req.Context(), auth.UserKey, &model.User{ID: 7}))
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	if mockRepo.calledCount != 1 {
		t.Fatalf("expected repository to be called once, got %d", mockRepo.calledCount)
	}

	if mockRepo.sessionID == nil || *mockRepo.sessionID != sessionID {
		t.Fatalf("expected session ID %d, got %v", sessionID, mockRepo.sessionID)
	}

	if mockRepo.symbol == nil || *mockRepo.symbol != "C-BTC-64000-100226" {
		t.Fatalf("expected symbol C-BTC-64000-100226, got %v", mockRepo.symbol)
	}

	if mockRepo.side == nil || *mockRepo.side != "sell" {
		t.Fatalf("expected side sell, got %v", mockRepo.side)
	}

	if mockRepo.status == nil || *mockRepo.status != "closed" {
		t.Fatalf("expected status closed, got %v", mockRepo.status)
	}

	if mockRepo.createdAfter == nil || mockRepo.createdBefore == nil {
		t.Fatalf("expected createdAt filters to be set")
	}

	if mockRepo.limit != 5 || mockRepo.offset != 5 {
		t.Fatalf("expected limit 5 and offset 5, got limit=%d offset=%d", mockRepo.limit, mockRepo.offset)
	}

	if rr.Body.String() == "" {
		t.Fatalf("expected response body to be set")
	}
}

func TestSearchOrdersHandler_InvalidPagination(t *testing.T) {
	handler := SearchOrdersHandler(&mockOrderSearcher{})

	req := httptest.NewRequest(http.MethodGet, "/api/orders?page=0", nil)
	req = req.WithContext(context.WithValue(req.Context(), auth.UserKey, &model.User{ID: 1}))
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestSearchOrdersHandler_InvalidDate(t *testing.T) {
	handler := SearchOrdersHandler(&mockOrderSearcher{})

	req := httptest.NewRequest(http.MethodGet, "/api/orders?createdFrom=invalid", nil)
	req = req.WithContext(context.WithValue(req.Context(), auth.UserKey, &model.User{ID: 1}))
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"strangleexecutor/src/risk"
)

func TestEstimateFeesHandler_Success(t *testing.T) {
	handler := EstimateFeesHandler()

	payload := `{
		"underlying_price": 26200,
		"contract_size": 0.001,
		"quantity": 300,
		"premium": 15,
		"order_type": "taker"
	}`
	req := httptest.NewRequest(http.MethodPost, "/api/fees/estimate", strings.NewReader(payload))
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var estimate risk.OptionFeeEstimate
	if err := json.NewDecoder(rr.Body).Decode(&estimate); err != nil {
		t.Fatalf("decode estimate: %v", err)
	}
	if !estimate.CapApplied {
		t.Fatalf("expected the premium cap to apply: %+v", estimate)
	}
	if estimate.TotalWithGST <= estimate.AppliedFee {
		t.Fatalf("expected GST on top of the applied fee: %+v", estimate)
	}
}

func TestEstimateFeesHandler_InvalidInput(t *testing.T) {
	handler := EstimateFeesHandler()

	req := httptest.NewRequest(http.MethodPost, "/api/fees/estimate",
		strings.NewReader(`{"underlying_price": 0, "contract_size": 0.001, "quantity": 1, "premium": 10}`))
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestEstimateFeesHandler_UnknownField(t *testing.T) {
	handler := EstimateFeesHandler()

	req := httptest.NewRequest(http.MethodPost, "/api/fees/estimate",
		strings.NewReader(`{"bogus": 1}`))
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

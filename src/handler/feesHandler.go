package handler

import (
	"encoding/json"
	"net/http"

	"strangleexecutor/src/risk"

	logger "github.com/sirupsen/logrus"
)

// EstimateFeesHandler prices the exchange fee for an option order: notional
// fee capped at a fraction of premium value, plus GST.
func EstimateFeesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input risk.OptionFeeInput
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&input); err != nil {
			logger.WithError(err).Warn("invalid fee estimate payload")
			http.Error(w, "Invalid payload", http.StatusBadRequest)
			return
		}

		estimate, err := risk.EstimateOptionFee(input)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(estimate); err != nil {
			logger.WithError(err).Error("failed to encode fee estimate response")
		}
	}
}

package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"strangleexecutor/src/model"
	"strangleexecutor/src/repository"

	"github.com/go-chi/chi/v5"
	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type configurationStore interface {
	List(ctx context.Context) ([]model.TradingConfiguration, error)
	FindByID(ctx context.Context, id uint) (*model.TradingConfiguration, error)
	Create(ctx context.Context, config *model.TradingConfiguration) error
	Update(ctx context.Context, config *model.TradingConfiguration) error
	Delete(ctx context.Context, id uint) error
	Activate(ctx context.Context, id uint) (*model.TradingConfiguration, error)
}

// idPathParam parses the {id} chi route parameter.
func idPathParam(r *http.Request) (uint, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// ListConfigurationsHandler returns every trading configuration, newest first.
func ListConfigurationsHandler(store configurationStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		configs, err := store.List(r.Context())
		if err != nil {
			logger.WithError(err).Error("failed to list configurations")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(configs); err != nil {
			logger.WithError(err).Error("failed to encode configuration list")
		}
	}
}

// CreateConfigurationHandler validates and stores a new configuration.
// New configurations always start inactive; use the activate endpoint.
func CreateConfigurationHandler(store configurationStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var config model.TradingConfiguration
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&config); err != nil {
			logger.WithError(err).Warn("invalid configuration payload")
			http.Error(w, "Invalid payload", http.StatusBadRequest)
			return
		}

		config.ID = 0
		config.IsActive = false

		if err := config.Validate(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		if err := store.Create(r.Context(), &config); err != nil {
			logger.WithError(err).Error("failed to create configuration")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		if err := json.NewEncoder(w).Encode(config); err != nil {
			logger.WithError(err).Error("failed to encode configuration response")
		}
	}
}

// GetConfigurationHandler returns one configuration by id.
func GetConfigurationHandler(store configurationStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idPathParam(r)
		if !ok {
			http.Error(w, "invalid configuration id", http.StatusBadRequest)
			return
		}

		config, err := store.FindByID(r.Context(), id)
		if err != nil {
			logger.WithError(err).Error("failed to load configuration")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if config == nil {
			http.Error(w, "configuration not found", http.StatusNotFound)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(config); err != nil {
			logger.WithError(err).Error("failed to encode configuration response")
		}
	}
}

// UpdateConfigurationHandler replaces a configuration's parameters. The active
// flag is not writable here; activation has its own endpoint.
func UpdateConfigurationHandler(store configurationStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idPathParam(r)
		if !ok {
			http.Error(w, "invalid configuration id", http.StatusBadRequest)
			return
		}

		existing, err := store.FindByID(r.Context(), id)
		if err != nil {
			logger.WithError(err).Error("failed to load configuration")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if existing == nil {
			http.Error(w, "configuration not found", http.StatusNotFound)
			return
		}

		var payload model.TradingConfiguration
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&payload); err != nil {
			logger.WithError(err).Warn("invalid configuration payload")
			http.Error(w, "Invalid payload", http.StatusBadRequest)
			return
		}

		payload.ID = existing.ID
		payload.IsActive = existing.IsActive
		payload.CreatedAt = existing.CreatedAt

		if err := payload.Validate(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		if err := store.Update(r.Context(), &payload); err != nil {
			logger.WithError(err).Error("failed to update configuration")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			logger.WithError(err).Error("failed to encode configuration response")
		}
	}
}

// DeleteConfigurationHandler removes a configuration. Deleting the active
// configuration is rejected; deactivate it first by activating another.
func DeleteConfigurationHandler(store configurationStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idPathParam(r)
		if !ok {
			http.Error(w, "invalid configuration id", http.StatusBadRequest)
			return
		}

		err := store.Delete(r.Context(), id)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			http.Error(w, "configuration not found", http.StatusNotFound)
			return
		}
		if errors.Is(err, repository.ErrConfigurationActive) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		if err != nil {
			logger.WithError(err).Error("failed to delete configuration")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]string{"status": "deleted"}); err != nil {
			logger.WithError(err).Error("failed to encode delete response")
		}
	}
}

// ActivateConfigurationHandler flags one configuration active and clears the
// flag on all others.
func ActivateConfigurationHandler(store configurationStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idPathParam(r)
		if !ok {
			http.Error(w, "invalid configuration id", http.StatusBadRequest)
			return
		}

		config, err := store.Activate(r.Context(), id)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			http.Error(w, "configuration not found", http.StatusNotFound)
			return
		}
		if err != nil {
			logger.WithError(err).Error("failed to activate configuration")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(config); err != nil {
			logger.WithError(err).Error("failed to encode configuration response")
		}
	}
}

// The Default* constructors wire the CRUD handlers to the production
// repository implementation.

func DefaultListConfigurationsHandler() http.HandlerFunc {
	return ListConfigurationsHandler(repository.NewConfigurationRepository())
}

func DefaultCreateConfigurationHandler() http.HandlerFunc {
	return CreateConfigurationHandler(repository.NewConfigurationRepository())
}

func DefaultGetConfigurationHandler() http.HandlerFunc {
	return GetConfigurationHandler(repository.NewConfigurationRepository())
}

func DefaultUpdateConfigurationHandler() http.HandlerFunc {
	return UpdateConfigurationHandler(repository.NewConfigurationRepository())
}

func DefaultDeleteConfigurationHandler() http.HandlerFunc {
	return DeleteConfigurationHandler(repository.NewConfigurationRepository())
}

func DefaultActivateConfigurationHandler() http.HandlerFunc {
	return ActivateConfigurationHandler(repository.NewConfigurationRepository())
}

package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/nexbit/backoffice/internal/models"
	"github.com/nexbit/backoffice/internal/repository"
	"github.com/nexbit/backoffice/internal/service"
)

// Setting keys recognized by the policy reload.
const (
	settingDepositGrace      = "deposit_grace"
	settingWithdrawalTimeout = "withdrawal_timeout"
	settingAnomalyThreshold  = "anomaly_threshold"
	settingAnomalyWindow     = "anomaly_window"
)

type SettingsHandler struct {
	repo   *repository.Repository
	engine *service.StatusEngine
}

func NewSettingsHandler(repo *repository.Repository, engine *service.StatusEngine) *SettingsHandler {
	return &SettingsHandler{repo: repo, engine: engine}
}

func (h *SettingsHandler) List(w http.ResponseWriter, r *http.Request) {
	settings, err := h.repo.ListSettings(r.Context())
	if err != nil {
		zap.L().Error("list settings failed", zap.Error(err))
		RespondError(w, r, http.StatusInternalServerError, "settings/list-failed", "Failed to list settings")
		return
	}
	if settings == nil {
		settings = []models.Setting{}
	}
	RespondJSON(w, http.StatusOK, settings)
}

// Update persists the submitted key/value pairs and applies any policy keys
// to the running engine immediately.
func (h *SettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req map[string]string
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}
	if len(req) == 0 {
		RespondError(w, r, http.StatusBadRequest, "request/empty-settings", "no settings provided")
		return
	}

	policy := h.engine.Policy()
	for key, value := range req {
		switch key {
		case settingDepositGrace:
			d, err := time.ParseDuration(value)
			if err != nil || d < 0 {
				RespondError(w, r, http.StatusBadRequest, "settings/invalid-duration", "invalid deposit_grace duration")
				return
			}
			policy.DepositGrace = d
		case settingWithdrawalTimeout:
			d, err := time.ParseDuration(value)
			if err != nil || d <= 0 {
				RespondError(w, r, http.StatusBadRequest, "settings/invalid-duration", "invalid withdrawal_timeout duration")
				return
			}
			policy.WithdrawalTimeout = d
		case settingAnomalyThreshold:
			n, err := strconv.Atoi(value)
			if err != nil || n < 0 {
				RespondError(w, r, http.StatusBadRequest, "settings/invalid-threshold", "invalid anomaly_threshold")
				return
			}
			policy.AnomalyThreshold = n
		case settingAnomalyWindow:
			d, err := time.ParseDuration(value)
			if err != nil || d < 0 {
				RespondError(w, r, http.StatusBadRequest, "settings/invalid-duration", "invalid anomaly_window")
				return
			}
			policy.AnomalyWindow = d
		}
	}

	for key, value := range req {
		if err := h.repo.UpsertSetting(r.Context(), key, value); err != nil {
			zap.L().Error("upsert setting failed", zap.Error(err), zap.String("key", key))
			RespondError(w, r, http.StatusInternalServerError, "settings/write-failed", "Failed to save settings")
			return
		}
	}
	h.engine.UpdatePolicy(policy)

	settings, err := h.repo.ListSettings(r.Context())
	if err != nil {
		zap.L().Error("list settings failed", zap.Error(err))
		RespondError(w, r, http.StatusInternalServerError, "settings/list-failed", "Failed to list settings")
		return
	}
	RespondJSON(w, http.StatusOK, settings)
}

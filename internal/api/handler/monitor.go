package handler

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/nexbit/backoffice/internal/domain"
	"github.com/nexbit/backoffice/internal/models"
	"github.com/nexbit/backoffice/internal/repository"
	"github.com/nexbit/backoffice/internal/service"
)

type MonitorHandler struct {
	repo   *repository.Repository
	engine *service.StatusEngine
}

func NewMonitorHandler(repo *repository.Repository, engine *service.StatusEngine) *MonitorHandler {
	return &MonitorHandler{repo: repo, engine: engine}
}

// Snapshot returns the recent deposits and withdrawals plus the active sweep
// policy, the view the back-office dashboard polls.
func (h *MonitorHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	limit, _ := pagination(r)
	if limit > 50 {
		limit = 50
	}

	deposits, err := h.repo.ListMovements(r.Context(), string(domain.KindDeposit), "", limit, 0)
	if err != nil {
		zap.L().Error("monitor deposits query failed", zap.Error(err))
		RespondError(w, r, http.StatusInternalServerError, "monitor/read-failed", "Failed to load monitor snapshot")
		return
	}
	withdrawals, err := h.repo.ListMovements(r.Context(), string(domain.KindWithdrawal), "", limit, 0)
	if err != nil {
		zap.L().Error("monitor withdrawals query failed", zap.Error(err))
		RespondError(w, r, http.StatusInternalServerError, "monitor/read-failed", "Failed to load monitor snapshot")
		return
	}
	if deposits == nil {
		deposits = []models.Movement{}
	}
	if withdrawals == nil {
		withdrawals = []models.Movement{}
	}

	policy := h.engine.Policy()
	RespondJSON(w, http.StatusOK, map[string]interface{}{
		"deposits":    deposits,
		"withdrawals": withdrawals,
		"policy": map[string]interface{}{
			"deposit_grace":      policy.DepositGrace.String(),
			"withdrawal_timeout": policy.WithdrawalTimeout.String(),
			"anomaly_threshold":  policy.AnomalyThreshold,
			"anomaly_window":     policy.AnomalyWindow.String(),
		},
	})
}

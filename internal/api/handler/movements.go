package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/nexbit/backoffice/internal/domain"
	"github.com/nexbit/backoffice/internal/models"
	"github.com/nexbit/backoffice/internal/notifier"
	"github.com/nexbit/backoffice/internal/repository"
	"github.com/nexbit/backoffice/internal/service"
)

type MovementsHandler struct {
	repo     *repository.Repository
	engine   *service.StatusEngine
	notifier notifier.Notifier
}

func NewMovementsHandler(repo *repository.Repository, engine *service.StatusEngine, n notifier.Notifier) *MovementsHandler {
	return &MovementsHandler{repo: repo, engine: engine, notifier: n}
}

// List returns movements filtered by optional kind and status query
// parameters. Unknown filter values are rejected rather than silently
// matching nothing.
func (h *MovementsHandler) List(w http.ResponseWriter, r *http.Request) {
	kindFilter := r.URL.Query().Get("kind")
	statusFilter := r.URL.Query().Get("status")

	if kindFilter != "" {
		if _, err := domain.ParseKind(kindFilter); err != nil {
			RespondError(w, r, http.StatusBadRequest, "request/invalid-kind", "invalid movement kind")
			return
		}
	}
	if statusFilter != "" && !validStatusFilter(kindFilter, statusFilter) {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-status", "invalid movement status")
		return
	}

	limit, offset := pagination(r)
	movements, err := h.repo.ListMovements(r.Context(), kindFilter, statusFilter, limit, offset)
	if err != nil {
		zap.L().Error("list movements failed", zap.Error(err))
		RespondError(w, r, http.StatusInternalServerError, "movement/list-failed", "Failed to list movements")
		return
	}
	if movements == nil {
		movements = []models.Movement{}
	}
	RespondJSON(w, http.StatusOK, movements)
}

func validStatusFilter(kindFilter, statusFilter string) bool {
	if kindFilter != "" {
		kind, err := domain.ParseKind(kindFilter)
		if err != nil {
			return false
		}
		_, err = domain.ParseStatus(kind, statusFilter)
		return err == nil
	}
	// No kind filter: the status is valid when either kind accepts it.
	if _, err := domain.ParseStatus(domain.KindDeposit, statusFilter); err == nil {
		return true
	}
	_, err := domain.ParseStatus(domain.KindWithdrawal, statusFilter)
	return err == nil
}

// ListDeposits is shorthand for the kind=deposit listing.
func (h *MovementsHandler) ListDeposits(w http.ResponseWriter, r *http.Request) {
	h.listKind(w, r, domain.KindDeposit)
}

// ListWithdrawals is shorthand for the kind=withdrawal listing.
func (h *MovementsHandler) ListWithdrawals(w http.ResponseWriter, r *http.Request) {
	h.listKind(w, r, domain.KindWithdrawal)
}

func (h *MovementsHandler) listKind(w http.ResponseWriter, r *http.Request, kind domain.MovementKind) {
	statusFilter := r.URL.Query().Get("status")
	if statusFilter != "" {
		if _, err := domain.ParseStatus(kind, statusFilter); err != nil {
			RespondError(w, r, http.StatusBadRequest, "request/invalid-status", "invalid movement status")
			return
		}
	}

	limit, offset := pagination(r)
	movements, err := h.repo.ListMovements(r.Context(), string(kind), statusFilter, limit, offset)
	if err != nil {
		zap.L().Error("list movements failed", zap.Error(err), zap.String("kind", string(kind)))
		RespondError(w, r, http.StatusInternalServerError, "movement/list-failed", "Failed to list movements")
		return
	}
	if movements == nil {
		movements = []models.Movement{}
	}
	RespondJSON(w, http.StatusOK, movements)
}

// CreateDeposit records an inbound deposit in pending state; the monitor
// sweep settles it after the grace period.
func (h *MovementsHandler) CreateDeposit(w http.ResponseWriter, r *http.Request) {
	h.create(w, r, domain.KindDeposit, domain.StatusPending)
}

// CreateWithdrawal records an outbound withdrawal in processing state; the
// monitor sweep fails it if it is not resolved before the timeout.
func (h *MovementsHandler) CreateWithdrawal(w http.ResponseWriter, r *http.Request) {
	h.create(w, r, domain.KindWithdrawal, domain.StatusProcessing)
}

func (h *MovementsHandler) create(w http.ResponseWriter, r *http.Request, kind domain.MovementKind, initial domain.MovementStatus) {
	var req struct {
		MemberID string `json:"member_id"`
		Amount   string `json:"amount"`
		Currency string `json:"currency"`
		OrderID  string `json:"order_id"`
		Note     string `json:"note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}

	amount, err := domain.ParseAmount(req.Amount)
	if err != nil || amount <= 0 {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-amount", "amount must be a positive number")
		return
	}
	if req.Currency == "" {
		req.Currency = "USD"
	}

	member, err := h.repo.GetMember(r.Context(), req.MemberID)
	if err != nil {
		if errors.Is(err, models.ErrMemberNotFound) {
			RespondError(w, r, http.StatusNotFound, "member/not-found", "member not found")
			return
		}
		zap.L().Error("member lookup failed", zap.Error(err), zap.String("member_id", req.MemberID))
		RespondError(w, r, http.StatusInternalServerError, "movement/create-failed", "Failed to create movement")
		return
	}

	mov := &models.Movement{
		OrderID:  req.OrderID,
		MemberID: member.ID,
		Amount:   amount,
		Currency: req.Currency,
		Status:   initial,
		Kind:     kind,
		Note:     req.Note,
	}
	if err := h.repo.CreateMovement(r.Context(), mov); err != nil {
		if status, pType, msg, ok := mapDBError(err); ok {
			RespondError(w, r, status, pType, msg)
			return
		}
		zap.L().Error("create movement failed", zap.Error(err), zap.String("kind", string(kind)))
		RespondError(w, r, http.StatusInternalServerError, "movement/create-failed", "Failed to create movement")
		return
	}

	h.notifier.Notify(r.Context(), notifier.ChannelAdmin, fmt.Sprintf(
		"new %s %s for member %s, amount %s %s",
		kind, mov.OrderID, member.Username, domain.FormatAmount(amount), mov.Currency))
	RespondJSON(w, http.StatusCreated, mov)
}

// SetStatus is the administrative status override.
func (h *MovementsHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	_, username, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	kind, err := domain.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-kind", "invalid movement kind")
		return
	}
	id := chi.URLParam(r, "id")

	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}

	mov, err := h.engine.SetStatus(r.Context(), kind, id, req.Status, username)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidStatus):
			RespondError(w, r, http.StatusBadRequest, "request/invalid-status", "invalid status for this movement kind")
		case errors.Is(err, models.ErrMovementNotFound):
			RespondError(w, r, http.StatusNotFound, "movement/not-found", "movement not found")
		case errors.Is(err, models.ErrMemberNotFound):
			RespondError(w, r, http.StatusNotFound, "member/not-found", "member not found")
		default:
			zap.L().Error("set status failed", zap.Error(err),
				zap.String("kind", string(kind)), zap.String("movement_id", id))
			RespondError(w, r, http.StatusInternalServerError, "movement/set-status-failed", "Failed to set status")
		}
		return
	}
	RespondJSON(w, http.StatusOK, mov)
}

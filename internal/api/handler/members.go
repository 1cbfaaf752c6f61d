package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/nexbit/backoffice/internal/domain"
	"github.com/nexbit/backoffice/internal/models"
	"github.com/nexbit/backoffice/internal/repository"
	"github.com/nexbit/backoffice/internal/service"
)

type MembersHandler struct {
	repo   *repository.Repository
	engine *service.StatusEngine
}

func NewMembersHandler(repo *repository.Repository, engine *service.StatusEngine) *MembersHandler {
	return &MembersHandler{repo: repo, engine: engine}
}

func (h *MembersHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	members, err := h.repo.ListMembers(r.Context(), limit, offset)
	if err != nil {
		zap.L().Error("list members failed", zap.Error(err))
		RespondError(w, r, http.StatusInternalServerError, "member/list-failed", "Failed to list members")
		return
	}
	if members == nil {
		members = []models.Member{}
	}
	RespondJSON(w, http.StatusOK, members)
}

func (h *MembersHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Balance  string `json:"balance"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}
	if req.Username == "" {
		RespondError(w, r, http.StatusBadRequest, "request/missing-username", "username is required")
		return
	}

	var balance int64
	if req.Balance != "" {
		var err error
		balance, err = domain.ParseAmount(req.Balance)
		if err != nil {
			RespondError(w, r, http.StatusBadRequest, "request/invalid-amount", "invalid balance amount")
			return
		}
	}

	member := &models.Member{Username: req.Username, Email: req.Email, BalanceMicros: balance}
	if err := h.repo.CreateMember(r.Context(), member); err != nil {
		if status, pType, msg, ok := mapDBError(err); ok {
			RespondError(w, r, status, pType, msg)
			return
		}
		zap.L().Error("create member failed", zap.Error(err))
		RespondError(w, r, http.StatusInternalServerError, "member/create-failed", "Failed to create member")
		return
	}
	RespondJSON(w, http.StatusCreated, member)
}

// Get returns a member together with its recent ledger entries.
func (h *MembersHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	member, err := h.repo.GetMember(r.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrMemberNotFound) {
			RespondError(w, r, http.StatusNotFound, "member/not-found", "member not found")
			return
		}
		zap.L().Error("get member failed", zap.Error(err), zap.String("member_id", id))
		RespondError(w, r, http.StatusInternalServerError, "member/read-failed", "Failed to load member")
		return
	}

	limit, offset := pagination(r)
	ledger, err := h.repo.ListLedger(r.Context(), id, limit, offset)
	if err != nil {
		zap.L().Error("list ledger failed", zap.Error(err), zap.String("member_id", id))
		RespondError(w, r, http.StatusInternalServerError, "member/ledger-read-failed", "Failed to load ledger")
		return
	}
	if ledger == nil {
		ledger = []models.LedgerEntry{}
	}

	RespondJSON(w, http.StatusOK, map[string]interface{}{
		"member": member,
		"ledger": ledger,
	})
}

func (h *MembersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.repo.DeleteMember(r.Context(), id); err != nil {
		if errors.Is(err, models.ErrMemberNotFound) {
			RespondError(w, r, http.StatusNotFound, "member/not-found", "member not found")
			return
		}
		zap.L().Error("delete member failed", zap.Error(err), zap.String("member_id", id))
		RespondError(w, r, http.StatusInternalServerError, "member/delete-failed", "Failed to delete member")
		return
	}
	RespondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// Adjust applies a signed balance delta with an audit trail.
func (h *MembersHandler) Adjust(w http.ResponseWriter, r *http.Request) {
	_, username, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	id := chi.URLParam(r, "id")
	var req struct {
		Delta  string `json:"delta"`
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}

	delta, err := domain.ParseAmount(req.Delta)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-amount", "invalid delta amount")
		return
	}
	if delta == 0 {
		RespondError(w, r, http.StatusBadRequest, "request/zero-delta", "delta must be non-zero")
		return
	}
	if req.Reason == "" {
		RespondError(w, r, http.StatusBadRequest, "request/missing-reason", "reason is required")
		return
	}

	balance, err := h.engine.AdjustBalance(r.Context(), id, delta, req.Reason, username)
	if err != nil {
		if errors.Is(err, models.ErrMemberNotFound) {
			RespondError(w, r, http.StatusNotFound, "member/not-found", "member not found")
			return
		}
		zap.L().Error("adjust balance failed", zap.Error(err), zap.String("member_id", id))
		RespondError(w, r, http.StatusInternalServerError, "member/adjust-failed", "Failed to adjust balance")
		return
	}

	RespondJSON(w, http.StatusOK, map[string]interface{}{
		"member_id":      id,
		"balance_micros": balance,
		"balance":        domain.FormatAmount(balance),
	})
}

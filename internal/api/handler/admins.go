package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/nexbit/backoffice/internal/models"
	"github.com/nexbit/backoffice/internal/repository"
)

type AdminsHandler struct {
	repo *repository.Repository
}

func NewAdminsHandler(repo *repository.Repository) *AdminsHandler {
	return &AdminsHandler{repo: repo}
}

func (h *AdminsHandler) List(w http.ResponseWriter, r *http.Request) {
	admins, err := h.repo.ListAdmins(r.Context())
	if err != nil {
		zap.L().Error("list admins failed", zap.Error(err))
		RespondError(w, r, http.StatusInternalServerError, "admin/list-failed", "Failed to list admins")
		return
	}
	if admins == nil {
		admins = []models.Admin{}
	}
	RespondJSON(w, http.StatusOK, admins)
}

func (h *AdminsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username     string `json:"username"`
		Password     string `json:"password"`
		Email        string `json:"email"`
		IsSuper      bool   `json:"is_super"`
		TwoFAEnabled bool   `json:"two_fa_enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}
	if req.Username == "" {
		RespondError(w, r, http.StatusBadRequest, "request/missing-username", "username is required")
		return
	}
	if len(req.Password) < 8 {
		RespondError(w, r, http.StatusBadRequest, "request/weak-password", "password must be at least 8 characters")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		zap.L().Error("hash password failed", zap.Error(err))
		RespondError(w, r, http.StatusInternalServerError, "admin/create-failed", "Failed to create admin")
		return
	}

	admin := &models.Admin{
		Username:     req.Username,
		PasswordHash: string(hash),
		Email:        req.Email,
		IsSuper:      req.IsSuper,
		TwoFAEnabled: req.TwoFAEnabled,
	}
	if err := h.repo.CreateAdmin(r.Context(), admin); err != nil {
		if status, pType, msg, ok := mapDBError(err); ok {
			RespondError(w, r, status, pType, msg)
			return
		}
		zap.L().Error("create admin failed", zap.Error(err))
		RespondError(w, r, http.StatusInternalServerError, "admin/create-failed", "Failed to create admin")
		return
	}
	RespondJSON(w, http.StatusCreated, admin)
}

func (h *AdminsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actorID, _, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	id := chi.URLParam(r, "id")
	if id == actorID {
		RespondError(w, r, http.StatusBadRequest, "admin/self-delete", "cannot delete your own account")
		return
	}

	if err := h.repo.DeleteAdmin(r.Context(), id); err != nil {
		if errors.Is(err, models.ErrAdminNotFound) {
			RespondError(w, r, http.StatusNotFound, "admin/not-found", "admin not found")
			return
		}
		zap.L().Error("delete admin failed", zap.Error(err), zap.String("admin_id", id))
		RespondError(w, r, http.StatusInternalServerError, "admin/delete-failed", "Failed to delete admin")
		return
	}
	RespondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/nexbit/backoffice/internal/api/middleware"
	"github.com/nexbit/backoffice/internal/models"
	"github.com/nexbit/backoffice/internal/notifier"
	"github.com/nexbit/backoffice/internal/repository"
	"github.com/nexbit/backoffice/internal/twofa"
)

const sessionTTL = 24 * time.Hour

type AuthHandler struct {
	repo     *repository.Repository
	codes    *twofa.Store
	notifier notifier.Notifier
}

func NewAuthHandler(repo *repository.Repository, codes *twofa.Store, n notifier.Notifier) *AuthHandler {
	return &AuthHandler{repo: repo, codes: codes, notifier: n}
}

// Login verifies the password and, when the account has two-factor enabled,
// the outstanding login code. Successful logins are announced on the admin
// channel.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
		Code     string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}

	admin, err := h.repo.GetAdminByUsername(r.Context(), req.Username)
	if err != nil {
		if errors.Is(err, models.ErrAdminNotFound) {
			RespondError(w, r, http.StatusUnauthorized, "auth/invalid-credentials", "invalid username or password")
			return
		}
		zap.L().Error("login lookup failed", zap.Error(err))
		RespondError(w, r, http.StatusInternalServerError, "auth/login-failed", "login failed")
		return
	}

	if bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(req.Password)) != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-credentials", "invalid username or password")
		return
	}

	if admin.TwoFAEnabled {
		if err := h.codes.Verify(r.Context(), admin.ID, req.Code); err != nil {
			if errors.Is(err, twofa.ErrCodeExpired) {
				RespondError(w, r, http.StatusUnauthorized, "auth/invalid-code", "invalid or expired two-factor code")
				return
			}
			zap.L().Error("two-factor verify failed", zap.Error(err))
			RespondError(w, r, http.StatusServiceUnavailable, "auth/two-factor-unavailable", "two-factor verification unavailable")
			return
		}
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"admin_id": admin.ID,
		"username": admin.Username,
		"is_super": admin.IsSuper,
		"sub":      admin.ID,
		"iss":      middleware.JWTIssuer(),
		"aud":      middleware.JWTAudience(),
		"iat":      now.Unix(),
		"exp":      now.Add(sessionTTL).Unix(),
	})
	tokenString, err := token.SignedString(middleware.JWTSecret())
	if err != nil {
		zap.L().Error("sign session token failed", zap.Error(err))
		RespondError(w, r, http.StatusInternalServerError, "auth/sign-failed", "Failed to sign token")
		return
	}

	h.notifier.Notify(r.Context(), notifier.ChannelAdmin,
		fmt.Sprintf("admin %s logged in", admin.Username))

	RespondJSON(w, http.StatusOK, map[string]interface{}{
		"token": tokenString,
		"admin": admin,
	})
}

// RequestTwoFA issues a login code for accounts with two-factor enabled and
// delivers it over the admin channel. The response never reveals whether the
// username exists.
func (h *AuthHandler) RequestTwoFA(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}

	admin, err := h.repo.GetAdminByUsername(r.Context(), req.Username)
	if err != nil {
		if !errors.Is(err, models.ErrAdminNotFound) {
			zap.L().Error("two-factor lookup failed", zap.Error(err))
		}
		RespondJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
		return
	}
	if !admin.TwoFAEnabled {
		RespondJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
		return
	}

	code, err := h.codes.Issue(r.Context(), admin.ID)
	if err != nil {
		zap.L().Error("two-factor issue failed", zap.Error(err))
		RespondError(w, r, http.StatusServiceUnavailable, "auth/two-factor-unavailable", "two-factor delivery unavailable")
		return
	}

	h.notifier.Notify(r.Context(), notifier.ChannelAdmin,
		fmt.Sprintf("login code for %s: %s", admin.Username, code))
	RespondJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
}

// Me returns the authenticated admin account.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	id, _, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	admin, err := h.repo.GetAdmin(r.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrAdminNotFound) {
			RespondError(w, r, http.StatusNotFound, "admin/not-found", "admin not found")
			return
		}
		zap.L().Error("load admin failed", zap.Error(err))
		RespondError(w, r, http.StatusInternalServerError, "admin/read-failed", "Failed to load admin")
		return
	}
	RespondJSON(w, http.StatusOK, admin)
}

// Logout only audits the event; session tokens are stateless and expire on
// their own.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	_, username, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	h.notifier.Notify(r.Context(), notifier.ChannelAdmin,
		fmt.Sprintf("admin %s logged out", username))
	RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

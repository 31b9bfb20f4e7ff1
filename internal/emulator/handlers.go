package emulator

import (
	"errors"
	"net/http"

	"github.com/dropDatabas3/littlejohn/internal/observability/logger"
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	resp, err := s.accounts.SignUp(r.Context(), req.Email, req.Password)
	if err != nil {
		writeAccountErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSignInPassword(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	resp, err := s.accounts.SignInPassword(r.Context(), req.Email, req.Password)
	if err != nil {
		writeAccountErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSignInIDP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProviderToken string `json:"provider_token"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	resp, err := s.accounts.SignInIDP(r.Context(), req.ProviderToken)
	if err != nil {
		writeAccountErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	resp, err := s.accounts.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeAccountErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	s.accounts.SignOut(r.Context(), req.RefreshToken)
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleSendReset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.accounts.SendPasswordReset(r.Context(), req.Email); err != nil {
		logger.From(r.Context()).Error("send password reset", logger.Err(err))
		writeErr(w, http.StatusInternalServerError, "internal", "could not send reset email")
		return
	}
	// Siempre ok: no filtrar si el email existe.
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OOBCode     string `json:"oob_code"`
		NewPassword string `json:"new_password"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.accounts.ResetPassword(r.Context(), req.OOBCode, req.NewPassword); err != nil {
		writeAccountErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// writeAccountErr mapea errores del servicio a status+code wire. El message
// va verbatim: es lo que el SDK muestra al usuario.
func writeAccountErr(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrInvalidEmail):
		writeErr(w, http.StatusBadRequest, "invalid_email", err.Error())
	case errors.Is(err, ErrWeakPassword):
		writeErr(w, http.StatusBadRequest, "weak_password", err.Error())
	case errors.Is(err, ErrEmailTaken):
		writeErr(w, http.StatusConflict, "email_taken", err.Error())
	case errors.Is(err, ErrInvalidCredentials):
		writeErr(w, http.StatusUnauthorized, "invalid_credentials", err.Error())
	case errors.Is(err, ErrProviderDisabled):
		writeErr(w, http.StatusBadRequest, "provider_disabled", err.Error())
	case errors.Is(err, ErrInvalidIDPToken):
		writeErr(w, http.StatusUnauthorized, "invalid_idp_token", err.Error())
	case errors.Is(err, ErrInvalidRefresh):
		writeErr(w, http.StatusUnauthorized, "invalid_refresh", err.Error())
	case errors.Is(err, ErrInvalidResetCode):
		writeErr(w, http.StatusBadRequest, "invalid_reset_code", err.Error())
	default:
		logger.From(r.Context()).Error("account operation failed", logger.Err(err))
		writeErr(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

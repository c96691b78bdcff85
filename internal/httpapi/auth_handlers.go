package httpapi

import (
	"net/http"
	"time"

	"github.com/HeshamAbdallah02/E7GEZLY-API-sub001/internal/auth"
)

type registerRequest struct {
	Name   string `json:"name"`
	Email  string `json:"email"`
	Secret string `json:"secret"`
}

type loginRequest struct {
	Email  string `json:"email"`
	Secret string `json:"secret"`
}

type gatewayLoginResponse struct {
	Token                 string            `json:"token"`
	ExpiresAt             time.Time         `json:"expires_at"`
	RequiresOperatorSetup bool              `json:"requires_operator_setup"`
	Venue                 auth.VenueSummary `json:"venue"`
}

type operatorLoginRequest struct {
	Username string `json:"username"`
	Secret   string `json:"secret"`
}

type operatorLoginResponse struct {
	Token            string               `json:"token"`
	ExpiresAt        time.Time            `json:"expires_at"`
	RefreshToken     string               `json:"refresh_token"`
	RefreshExpiresAt time.Time            `json:"refresh_expires_at"`
	Operator         auth.OperatorSummary `json:"operator"`
	MustChangeSecret bool                 `json:"must_change_secret"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type refreshResponse struct {
	Token            string    `json:"token"`
	ExpiresAt        time.Time `json:"expires_at"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

type changeSecretRequest struct {
	CurrentSecret string `json:"current_secret"`
	NewSecret     string `json:"new_secret"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	venue, err := a.svc.RegisterVenue(r.Context(), req.Name, req.Email, req.Secret)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":    venue.ID,
		"name":  venue.Name,
		"email": venue.Email,
	})
}

func (a *API) handleGatewayLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	res, err := a.svc.GatewayLogin(r.Context(), req.Email, req.Secret, device(r))
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, gatewayLoginResponse{
		Token:                 res.Token,
		ExpiresAt:             res.ExpiresAt,
		RequiresOperatorSetup: res.RequiresOperatorSetup,
		Venue:                 res.Venue,
	})
}

// handleOperatorLogin is the second factor: the venue identity comes from
// the caller's gateway token, never from the request body.
func (a *API) handleOperatorLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	principal, ok := a.authorize(w, r, auth.Requirement{Tier: auth.TierGateway})
	if !ok {
		return
	}
	var req operatorLoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	res, err := a.svc.OperatorLogin(r.Context(), principal.VenueID, req.Username, req.Secret, device(r))
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, operatorLoginResponse{
		Token:            res.Token,
		ExpiresAt:        res.ExpiresAt,
		RefreshToken:     res.RefreshToken,
		RefreshExpiresAt: res.RefreshExpiresAt,
		Operator:         res.Operator,
		MustChangeSecret: res.MustChangeSecret,
	})
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	pair, err := a.svc.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, refreshResponse{
		Token:            pair.AccessToken,
		ExpiresAt:        pair.AccessExpiresAt,
		RefreshToken:     pair.RefreshToken,
		RefreshExpiresAt: pair.RefreshExpiresAt,
	})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	principal, ok := a.authorize(w, r, auth.Requirement{Tier: auth.TierAny})
	if !ok {
		return
	}
	if err := a.svc.Logout(r.Context(), principal, device(r)); err != nil {
		handleAuthError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	principal, ok := a.authorize(w, r, auth.Requirement{Tier: auth.TierAny})
	if !ok {
		return
	}
	if err := a.svc.LogoutAll(r.Context(), principal, device(r)); err != nil {
		handleAuthError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleChangeSecret(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	principal, ok := a.authorize(w, r, auth.Requirement{Tier: auth.TierOperational})
	if !ok {
		return
	}
	var req changeSecretRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.svc.ChangeOwnSecret(r.Context(), principal, req.CurrentSecret, req.NewSecret, device(r)); err != nil {
		handleAuthError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

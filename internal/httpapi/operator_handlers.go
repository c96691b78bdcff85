package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/HeshamAbdallah02/E7GEZLY-API-sub001/internal/auth"
)

type createOperatorRequest struct {
	Username    string `json:"username"`
	Secret      string `json:"secret"`
	Role        string `json:"role"`
	Permissions uint64 `json:"permissions"`
}

type updateOperatorRequest struct {
	Role        *string `json:"role"`
	Permissions *uint64 `json:"permissions"`
	Active      *bool   `json:"active"`
}

type resetSecretRequest struct {
	NewSecret string `json:"new_secret"`
}

// handleVenueScoped routes /v1/venues/{id}/... resources.
func (a *API) handleVenueScoped(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/venues/")
	path = strings.Trim(path, "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	if len(parts) < 2 {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	venueID := parts[0]
	switch parts[1] {
	case "operators":
		switch len(parts) {
		case 2:
			a.handleOperators(w, r, venueID)
		case 3:
			a.handleOperatorResource(w, r, venueID, parts[2])
		case 4:
			if parts[3] != "reset-secret" {
				writeError(w, r, http.StatusNotFound, "resource not found")
				return
			}
			a.handleOperatorResetSecret(w, r, venueID, parts[2])
		default:
			writeError(w, r, http.StatusNotFound, "resource not found")
		}
	case "audit":
		switch {
		case len(parts) == 2:
			a.handleAuditQuery(w, r, venueID)
		case len(parts) == 3 && parts[2] == "stream":
			a.handleAuditStream(w, r, venueID)
		default:
			writeError(w, r, http.StatusNotFound, "resource not found")
		}
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleOperators(w http.ResponseWriter, r *http.Request, venueID string) {
	switch r.Method {
	case http.MethodGet:
		if _, ok := a.authorize(w, r, auth.Requirement{
			Tier:       auth.TierOperational,
			Capability: auth.CapViewOperators,
			VenueID:    venueID,
		}); !ok {
			return
		}
		operators, err := a.svc.ListOperators(r.Context(), venueID)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"operators": operators})
	case http.MethodPost:
		// Tier is left open: a gateway token may create the founding
		// operator while the venue still requires setup. The service
		// enforces the capability for operational callers.
		principal, ok := a.authorize(w, r, auth.Requirement{
			Tier:    auth.TierAny,
			VenueID: venueID,
		})
		if !ok {
			return
		}
		var req createOperatorRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		op, err := a.svc.CreateOperator(r.Context(), principal, venueID, auth.CreateOperatorParams{
			Username:    req.Username,
			Secret:      req.Secret,
			Role:        auth.Role(req.Role),
			Permissions: auth.Capability(req.Permissions),
		}, device(r))
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		w.Header().Set("Location", fmt.Sprintf("/v1/venues/%s/operators/%s", venueID, op.ID))
		writeJSON(w, http.StatusCreated, map[string]any{
			"id":          op.ID,
			"username":    op.Username,
			"role":        op.Role,
			"permissions": op.EffectivePermissions(),
			"founder":     op.Founder,
		})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleOperatorResource(w http.ResponseWriter, r *http.Request, venueID, operatorID string) {
	switch r.Method {
	case http.MethodPatch:
		principal, ok := a.authorize(w, r, auth.Requirement{
			Tier:       auth.TierOperational,
			Capability: auth.CapEditOperators,
			VenueID:    venueID,
		})
		if !ok {
			return
		}
		var req updateOperatorRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		params := auth.UpdateOperatorParams{Active: req.Active}
		if req.Role != nil {
			role := auth.Role(*req.Role)
			params.Role = &role
		}
		if req.Permissions != nil {
			mask := auth.Capability(*req.Permissions)
			params.Permissions = &mask
		}
		op, err := a.svc.UpdateOperator(r.Context(), principal, venueID, operatorID, params, device(r))
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"id":          op.ID,
			"username":    op.Username,
			"role":        op.Role,
			"permissions": op.EffectivePermissions(),
			"active":      op.Active,
		})
	case http.MethodDelete:
		principal, ok := a.authorize(w, r, auth.Requirement{
			Tier:       auth.TierOperational,
			Capability: auth.CapDeleteOperators,
			VenueID:    venueID,
		})
		if !ok {
			return
		}
		if err := a.svc.DeleteOperator(r.Context(), principal, venueID, operatorID, device(r)); err != nil {
			handleAuthError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodPatch, http.MethodDelete)
	}
}

func (a *API) handleOperatorResetSecret(w http.ResponseWriter, r *http.Request, venueID, operatorID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	principal, ok := a.authorize(w, r, auth.Requirement{
		Tier:       auth.TierOperational,
		Capability: auth.CapResetOperatorSecrets,
		VenueID:    venueID,
	})
	if !ok {
		return
	}
	var req resetSecretRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	secret, err := a.svc.ResetOperatorSecret(r.Context(), principal, venueID, operatorID, req.NewSecret, device(r))
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	// The temporary secret is returned exactly once; it is stored only
	// as a bcrypt hash.
	writeJSON(w, http.StatusOK, map[string]any{
		"secret":             secret,
		"must_change_secret": true,
	})
}

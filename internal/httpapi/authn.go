package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/HeshamAbdallah02/E7GEZLY-API-sub001/internal/auth"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

// authorize runs the gate against the bearer token and writes the error
// response itself on failure. Handlers check the second return value and
// bail out without touching the writer again.
func (a *API) authorize(w http.ResponseWriter, r *http.Request, req auth.Requirement) (auth.Principal, bool) {
	token, err := extractBearerToken(r.Header.Get(authHeader))
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, err.Error())
		return auth.Principal{}, false
	}
	principal, err := a.gate.Authorize(r.Context(), token, req)
	if err != nil {
		handleAuthError(w, r, err)
		return auth.Principal{}, false
	}
	*r = *r.WithContext(auth.ContextWithPrincipal(r.Context(), principal))
	return principal, true
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

// device collects client metadata for sessions and audit entries.
func device(r *http.Request) auth.DeviceInfo {
	return auth.DeviceInfo{
		Name:      strings.TrimSpace(r.Header.Get("X-Device-Name")),
		Type:      strings.TrimSpace(r.Header.Get("X-Device-Type")),
		IP:        clientIP(r),
		UserAgent: r.UserAgent(),
	}
}

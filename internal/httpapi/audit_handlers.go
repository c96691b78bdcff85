package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/HeshamAbdallah02/E7GEZLY-API-sub001/internal/audit"
	"github.com/HeshamAbdallah02/E7GEZLY-API-sub001/internal/auth"
)

func (a *API) handleAuditQuery(w http.ResponseWriter, r *http.Request, venueID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if _, ok := a.authorize(w, r, auth.Requirement{
		Tier:       auth.TierOperational,
		Capability: auth.CapViewAuditLogs,
		VenueID:    venueID,
	}); !ok {
		return
	}

	q := r.URL.Query()
	limit, err := parsePositiveInt(q.Get("limit"), 100, 1, 500)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	filter := audit.Filter{
		ActorOperatorID: strings.TrimSpace(q.Get("actor")),
		Action:          strings.TrimSpace(q.Get("action")),
		Limit:           limit,
		AfterID:         strings.TrimSpace(q.Get("after")),
	}
	if raw := q.Get("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "from must be RFC3339")
			return
		}
		filter.From = t
	}
	if raw := q.Get("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "to must be RFC3339")
			return
		}
		filter.To = t
	}

	entries, err := a.svc.QueryAudit(r.Context(), venueID, filter)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	resp := map[string]any{"entries": entries}
	if len(entries) == filter.Limit {
		resp["next_after"] = entries[len(entries)-1].ID
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleAuditStream serves the venue's live audit feed over SSE.
func (a *API) handleAuditStream(w http.ResponseWriter, r *http.Request, venueID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if a.stream == nil {
		writeError(w, r, http.StatusServiceUnavailable, "streaming disabled")
		return
	}
	if _, ok := a.authorize(w, r, auth.Requirement{
		Tier:       auth.TierOperational,
		Capability: auth.CapViewAuditLogs,
		VenueID:    venueID,
	}); !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := a.stream.Subscribe(r.Context(), venueID)

	_, _ = w.Write([]byte(": stream started\n\n"))
	flusher.Flush()

	for entry := range ch {
		payload, err := json.Marshal(entry)
		if err != nil {
			continue
		}
		_, _ = w.Write([]byte("data: "))
		_, _ = w.Write(payload)
		_, _ = w.Write([]byte("\n\n"))
		flusher.Flush()
	}
}

package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"notathome.app/internal/audit"
	"notathome.app/internal/auth"
	"notathome.app/internal/export"
	"notathome.app/internal/obs"
	"notathome.app/internal/session"
	"notathome.app/internal/stream"
)

type createSessionRequest struct {
	CongregationID string `json:"congregation_id"`
	MapNumber      int    `json:"map_number"`
}

type exportSessionRequest struct {
	CongregationName string `json:"congregation_name"`
}

type listSessionsResponse struct {
	Items []session.Session `json:"items"`
	AsOf  time.Time         `json:"as_of"`
}

func (a *API) handleSessionsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.createSession(w, r)
	case http.MethodGet:
		a.listSessions(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

// handleSessionSubtree routes everything under /v1/sessions/: the by-code
// lookup plus the per-session resources.
func (a *API) handleSessionSubtree(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/sessions/")
	if path == "" || strings.HasSuffix(path, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	if code, ok := strings.CutPrefix(path, "by-code/"); ok {
		if code == "" || strings.Contains(code, "/") {
			writeError(w, r, http.StatusNotFound, "resource not found")
			return
		}
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.findSessionByCode(w, r, code)
		return
	}

	parts := strings.Split(path, "/")
	id := parts[0]
	if id == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	switch {
	case len(parts) == 1:
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.getSession(w, r, id)
	case len(parts) == 2 && parts[1] == "close":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.closeSession(w, r, id)
	case len(parts) == 2 && parts[1] == "export":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.exportSession(w, r, id)
	case len(parts) == 2 && parts[1] == "addresses":
		a.handleAddresses(w, r, id)
	case len(parts) == 2 && parts[1] == "stream":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.streamSession(w, r, id)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	congregationID := strings.TrimSpace(req.CongregationID)
	if congregationID == "" {
		writeError(w, r, http.StatusBadRequest, "congregation_id is required")
		return
	}
	if req.MapNumber < 1 {
		writeError(w, r, http.StatusBadRequest, "map_number must be >= 1")
		return
	}

	principal, ok := a.requireManage(w, r, congregationID)
	if !ok {
		return
	}

	sess, err := a.sessions.Create(r.Context(), session.CreateSessionInput{
		CongregationID: congregationID,
		CreatedBy:      principal.UserID,
		MapNumber:      req.MapNumber,
	})
	if err != nil {
		handleSessionError(w, r, err)
		return
	}

	obs.IncSessionsCreated()
	_ = audit.LogEvent(r.Context(), "session.created", map[string]any{
		"session_id":      sess.ID,
		"congregation_id": sess.CongregationID,
		"map_number":      sess.MapNumber,
		"expires_at":      sess.ExpiresAt.Format(time.RFC3339),
	})

	w.Header().Set("Location", "/v1/sessions/"+sess.ID)
	writeJSON(w, http.StatusCreated, sess)
}

func (a *API) listSessions(w http.ResponseWriter, r *http.Request) {
	congregationID := strings.TrimSpace(r.URL.Query().Get("congregation_id"))
	if congregationID == "" {
		writeError(w, r, http.StatusBadRequest, "congregation_id query parameter is required")
		return
	}

	principal, ok := a.requireManage(w, r, congregationID)
	if !ok {
		return
	}

	filter := session.Filter{CongregationID: congregationID}
	if r.URL.Query().Get("mine") == "true" {
		filter.CreatedBy = principal.UserID
	}

	items, err := a.sessions.ListActive(r.Context(), filter)
	if err != nil {
		handleSessionError(w, r, err)
		return
	}
	if items == nil {
		items = []session.Session{}
	}
	writeJSON(w, http.StatusOK, listSessionsResponse{
		Items: items,
		AsOf:  time.Now().UTC(),
	})
}

func (a *API) findSessionByCode(w http.ResponseWriter, r *http.Request, code string) {
	sess, err := a.sessions.FindByCode(r.Context(), code)
	if err != nil {
		handleSessionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// getSession serves token holders with a binding for the congregation, and
// anonymous code-holders as long as the session is still joinable.
func (a *API) getSession(w http.ResponseWriter, r *http.Request, id string) {
	sess, err := a.sessions.Get(r.Context(), id)
	if err != nil {
		handleSessionError(w, r, err)
		return
	}
	if _, ok := auth.PrincipalFromContext(r.Context()); ok {
		if _, ok := a.requireMember(w, r, sess.CongregationID); !ok {
			return
		}
	} else if !sess.Joinable(time.Now().UTC()) {
		writeError(w, r, http.StatusNotFound, "session not found or no longer active")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// closeSession stops joins and writes. Data stays until export or expiry.
func (a *API) closeSession(w http.ResponseWriter, r *http.Request, id string) {
	sess, err := a.sessions.Get(r.Context(), id)
	if err != nil {
		handleSessionError(w, r, err)
		return
	}
	if _, ok := a.requireManage(w, r, sess.CongregationID); !ok {
		return
	}

	if err := a.sessions.Deactivate(r.Context(), id); err != nil {
		handleSessionError(w, r, err)
		return
	}

	a.publish(stream.Event{
		Type:      stream.EventSessionClosed,
		SessionID: id,
		At:        time.Now().UTC(),
	})
	_ = audit.LogEvent(r.Context(), "session.closed", map[string]any{
		"session_id": id,
	})

	sess.IsActive = false
	writeJSON(w, http.StatusOK, sess)
}

func (a *API) exportSession(w http.ResponseWriter, r *http.Request, id string) {
	sess, err := a.sessions.Get(r.Context(), id)
	if err != nil {
		handleSessionError(w, r, err)
		return
	}
	if _, ok := a.requireManage(w, r, sess.CongregationID); !ok {
		return
	}

	// The body only narrows the document header, so it may be omitted.
	var req exportSessionRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
	}

	res, err := a.exporter.ExportAndEnd(r.Context(), id, req.CongregationName)
	if err != nil {
		if errors.Is(err, export.ErrTeardownFailed) {
			_ = audit.LogEvent(r.Context(), "session.export.teardown_failed", map[string]any{
				"session_id":  id,
				"entry_count": res.EntryCount,
			})
		}
		handleExportError(w, r, res, err)
		return
	}

	obs.IncSessionsExported()
	a.publish(stream.Event{
		Type:      stream.EventSessionClosed,
		SessionID: id,
		At:        time.Now().UTC(),
	})
	_ = audit.LogEvent(r.Context(), "session.exported", map[string]any{
		"session_id":  id,
		"entry_count": res.EntryCount,
	})

	writeJSON(w, http.StatusOK, res)
}

// --- helpers ---

// decodeJSON reads a strict JSON body. Size is already capped by the
// MaxBodyBytes middleware, so the configured limit applies here too.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func handleSessionError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, session.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, session.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, session.ErrCodeExhausted):
		writeError(w, r, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func handleExportError(w http.ResponseWriter, r *http.Request, res export.Result, err error) {
	switch {
	case errors.Is(err, export.ErrShareCanceled):
		writeError(w, r, http.StatusConflict, "share canceled, session preserved")
	case errors.Is(err, export.ErrShareFailed):
		writeError(w, r, http.StatusBadGateway, "share failed, session preserved")
	case errors.Is(err, export.ErrTeardownFailed):
		// The document went out but cleanup did not finish. Return the
		// result so the caller knows the data was shared and can retry.
		writeJSON(w, http.StatusInternalServerError, res)
	default:
		handleSessionError(w, r, err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

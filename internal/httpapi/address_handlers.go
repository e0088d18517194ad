package httpapi

import (
	"errors"
	"net/http"
	"time"

	"notathome.app/internal/audit"
	"notathome.app/internal/auth"
	"notathome.app/internal/ledger"
	"notathome.app/internal/obs"
	"notathome.app/internal/stream"
)

type recordAddressRequest struct {
	BlockNumber int      `json:"block_number"`
	Address     string   `json:"address"`
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
}

type listAddressesResponse struct {
	Items []ledger.AddressEntry `json:"items"`
	AsOf  time.Time             `json:"as_of"`
}

func (a *API) handleAddresses(w http.ResponseWriter, r *http.Request, sessionID string) {
	switch r.Method {
	case http.MethodPost:
		a.recordAddress(w, r, sessionID)
	case http.MethodGet:
		a.listAddresses(w, r, sessionID)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) recordAddress(w http.ResponseWriter, r *http.Request, sessionID string) {
	var req recordAddressRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	in := ledger.RecordAddressInput{
		SessionID:   sessionID,
		BlockNumber: req.BlockNumber,
		Address:     req.Address,
		Latitude:    req.Latitude,
		Longitude:   req.Longitude,
	}
	// Volunteers usually hold no account; attribute the entry only when a
	// token was presented.
	if principal, ok := auth.PrincipalFromContext(r.Context()); ok {
		in.CreatedBy = principal.UserID
	}

	entry, err := a.entries.Record(r.Context(), in)
	if err != nil {
		handleLedgerError(w, r, err)
		return
	}

	obs.IncAddressesRecorded()
	a.publish(stream.Event{
		Type:      stream.EventAddressRecorded,
		SessionID: sessionID,
		Entry:     &entry,
		At:        time.Now().UTC(),
	})
	_ = audit.LogEvent(r.Context(), "address.recorded", map[string]any{
		"session_id":   sessionID,
		"entry_id":     entry.ID,
		"block_number": entry.BlockNumber,
	})

	writeJSON(w, http.StatusCreated, entry)
}

func (a *API) listAddresses(w http.ResponseWriter, r *http.Request, sessionID string) {
	items, err := a.entries.List(r.Context(), sessionID)
	if err != nil {
		handleLedgerError(w, r, err)
		return
	}
	if items == nil {
		items = []ledger.AddressEntry{}
	}
	writeJSON(w, http.StatusOK, listAddressesResponse{
		Items: items,
		AsOf:  time.Now().UTC(),
	})
}

func handleLedgerError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ledger.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, ledger.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/TalkingPanda0/epochtal/internal/lobby"
)

type api struct {
	reg *lobby.Registry
	log *zap.Logger
}

// writeError converts a domain error to its stable code. Full context stays
// in the log; the caller only ever sees the code.
func (a *api) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := lobby.Code(err)
	a.log.Warn("request failed",
		zap.String("path", r.URL.Path),
		zap.String("code", code),
		zap.Error(err))
	writeJSON(w, statusFor(code), map[string]string{"error": code})
}

func statusFor(code string) int {
	switch code {
	case "NAME_INVALID", "WEEK_MAP", "UNKNOWN_COMMAND":
		return http.StatusBadRequest
	case "NAME_MISSING":
		return http.StatusNotFound
	case "NAME_TAKEN", "ALREADY_JOINED", "GAME_IN_PROGRESS", "MAP_NOT_PRESENT",
		"NO_MAP_SELECTED", "GAME_CLIENT_NOT_CONNECTED":
		return http.StatusConflict
	case "PASSWORD_MISMATCH", "UNKNOWN_PARTICIPANT":
		return http.StatusForbidden
	case "TIMEOUT":
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.New("bad request body")
	}
	return nil
}

func (a *api) list(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.reg.List())
}

func (a *api) get(w http.ResponseWriter, r *http.Request) {
	entry, err := a.reg.Get(chi.URLParam(r, "name"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (a *api) getData(w http.ResponseWriter, r *http.Request) {
	data, err := a.reg.GetData(chi.URLParam(r, "name"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

func (a *api) create(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name     string `json:"name"`
		Password string `json:"password"`
	}
	if err := decode(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "NAME_INVALID"})
		return
	}
	if err := a.reg.Create(body.Name, body.Password); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"result": "SUCCESS"})
}

func (a *api) join(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Password string `json:"password"`
		SteamID  string `json:"steamid"`
	}
	if err := decode(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "UNKNOWN_PARTICIPANT"})
		return
	}
	if err := a.reg.Join(chi.URLParam(r, "name"), body.Password, body.SteamID); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"result": "SUCCESS"})
}

func (a *api) rename(w http.ResponseWriter, r *http.Request) {
	var body struct {
		NewName string `json:"newName"`
	}
	if err := decode(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "NAME_INVALID"})
		return
	}
	if err := a.reg.Rename(chi.URLParam(r, "name"), body.NewName); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"result": "SUCCESS"})
}

func (a *api) password(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Password string `json:"password"`
	}
	if err := decode(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "NAME_INVALID"})
		return
	}
	if err := a.reg.Password(chi.URLParam(r, "name"), body.Password); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"result": "SUCCESS"})
}

func (a *api) setMap(w http.ResponseWriter, r *http.Request) {
	// Clients send the workshop id as either a string or a bare number.
	var body struct {
		MapID any `json:"mapid"`
	}
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "NAME_INVALID"})
		return
	}
	if err := a.reg.Map(r.Context(), chi.URLParam(r, "name"), fmt.Sprint(body.MapID)); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"result": "SUCCESS"})
}

func (a *api) ready(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Ready   bool   `json:"ready"`
		SteamID string `json:"steamid"`
	}
	if err := decode(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "UNKNOWN_PARTICIPANT"})
		return
	}
	// The forced reset path is internal only; the control plane can never
	// request it.
	if err := a.reg.Ready(r.Context(), chi.URLParam(r, "name"), body.Ready, body.SteamID, false); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"result": "SUCCESS"})
}

func healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

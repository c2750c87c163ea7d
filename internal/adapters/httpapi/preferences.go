package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/scriptducks/hashes-gui/internal/app"
	"github.com/scriptducks/hashes-gui/internal/domain"
	"github.com/scriptducks/hashes-gui/internal/httpjson"
	"github.com/scriptducks/hashes-gui/internal/ports"
)

const maxPreferencesBody = 1 << 20

type PreferencesHandler struct {
	prefs *app.PreferencesService
	bus   ports.EventBus
}

func NewPreferencesHandler(prefs *app.PreferencesService, bus ports.EventBus) *PreferencesHandler {
	return &PreferencesHandler{prefs: prefs, bus: bus}
}

func (h *PreferencesHandler) Routes(r chi.Router) {
	r.Get("/preferences", h.get)
	r.Put("/preferences", h.put)
	r.Patch("/preferences", h.patch)
	r.Put("/preferences/api-key", h.putAPIKey)
}

func (h *PreferencesHandler) get(w http.ResponseWriter, r *http.Request) {
	p, err := h.prefs.Get(r.Context())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	httpjson.Write(w, http.StatusOK, p)
}

// put replaces the whole record with the flat object in the body.
func (h *PreferencesHandler) put(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxPreferencesBody))
	if err != nil {
		httpjson.WriteError(w, http.StatusBadRequest, "cannot read body")
		return
	}
	var p domain.Preferences
	if err := p.UnmarshalJSON(body); err != nil {
		httpjson.WriteCodedError(w, http.StatusBadRequest, "invalid_params", err.Error())
		return
	}
	h.commit(w, r, func() (domain.Preferences, error) { return h.prefs.Put(r.Context(), p) })
}

// patch merges the body into the record; null removes a key.
func (h *PreferencesHandler) patch(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxPreferencesBody))
	if err != nil {
		httpjson.WriteError(w, http.StatusBadRequest, "cannot read body")
		return
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var values map[string]any
	if err := dec.Decode(&values); err != nil || values == nil {
		httpjson.WriteCodedError(w, http.StatusBadRequest, "invalid_params", "body must be a JSON object")
		return
	}
	h.commit(w, r, func() (domain.Preferences, error) { return h.prefs.Patch(r.Context(), values) })
}

type apiKeyRequest struct {
	APIKey string `json:"apiKey"`
}

func (h *PreferencesHandler) putAPIKey(w http.ResponseWriter, r *http.Request) {
	var req apiKeyRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxPreferencesBody)).Decode(&req); err != nil {
		httpjson.WriteError(w, http.StatusBadRequest, "invalid json")
		return
	}
	h.commit(w, r, func() (domain.Preferences, error) { return h.prefs.SetAPIKey(r.Context(), req.APIKey) })
}

func (h *PreferencesHandler) commit(w http.ResponseWriter, r *http.Request, save func() (domain.Preferences, error)) {
	updated, err := save()
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	if h.bus != nil {
		// the key itself never goes on the bus
		h.bus.Publish("preferences.saved", []byte(`{}`))
	}
	httpjson.Write(w, http.StatusOK, updated)
}

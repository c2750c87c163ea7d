package httpapi

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog/hlog"

	"github.com/scriptducks/hashes-gui/internal/app"
	"github.com/scriptducks/hashes-gui/internal/domain"
	"github.com/scriptducks/hashes-gui/internal/httpjson"
)

// writeAppError maps service errors to a status and a stable code. Save
// failures are reported with their message so the shell can show them.
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		perr   *app.PersistenceError
		apiErr *app.APIError
		coded  *app.CodedError
	)
	switch {
	case errors.As(err, &perr):
		hlog.FromRequest(r).Error().Err(err).Str("path", perr.Path).Msg("preferences not saved")
		httpjson.WriteCodedError(w, http.StatusInternalServerError, "persistence_error", err.Error())
	case errors.Is(err, app.ErrAPIKeyRequired):
		httpjson.WriteCodedError(w, http.StatusBadRequest, "api_key_required", err.Error())
	case errors.Is(err, app.ErrNoHashes),
		errors.Is(err, app.ErrTooManyHashes),
		errors.Is(err, app.ErrNoJobsSelected),
		errors.Is(err, domain.ErrMalformedPreferences):
		httpjson.WriteCodedError(w, http.StatusBadRequest, "invalid_params", err.Error())
	case errors.As(err, &apiErr):
		hlog.FromRequest(r).Warn().Err(err).Msg("hashes.com request failed")
		httpjson.WriteCodedError(w, http.StatusBadGateway, "api_error", apiErr.Message)
	case errors.As(err, &coded):
		httpjson.WriteCodedError(w, http.StatusBadRequest, coded.Code, coded.Error())
	case errors.Is(err, app.ErrNotFound):
		httpjson.WriteCodedError(w, http.StatusNotFound, "not_found", "not found")
	default:
		hlog.FromRequest(r).Error().Err(err).Msg("request failed")
		httpjson.WriteCodedError(w, http.StatusInternalServerError, "internal", err.Error())
	}
}

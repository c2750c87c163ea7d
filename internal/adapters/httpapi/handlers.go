package httpapi

import (
	"net/http"
	"time"

	"github.com/rs/zerolog/hlog"

	"github.com/scriptducks/hashes-gui/internal/buildinfo"
	"github.com/scriptducks/hashes-gui/internal/httpjson"
)

const defaultRequestTimeout = 60 * time.Second

type healthResponse struct {
	Status           string `json:"status"`
	APIKeyConfigured bool   `json:"apiKeyConfigured"`
	Algorithms       int    `json:"algorithms"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	if s.deps.Preferences != nil {
		key, _ := s.deps.Preferences.APIKey(r.Context())
		resp.APIKeyConfigured = key != ""
	}
	if s.deps.Catalog != nil {
		resp.Algorithms = len(s.deps.Catalog.List())
	}
	httpjson.Write(w, http.StatusOK, resp)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	httpjson.Write(w, http.StatusOK, buildinfo.Current())
}

func accessLogFn(r *http.Request, status, size int, duration time.Duration) {
	hlog.FromRequest(r).Info().
		Int("status", status).
		Int("size", size).
		Dur("duration", duration).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Msg("http")
}

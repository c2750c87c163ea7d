package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/scriptducks/hashes-gui/internal/app"
	"github.com/scriptducks/hashes-gui/internal/domain"
	"github.com/scriptducks/hashes-gui/internal/httpjson"
)

const maxLookupBody = 1 << 20

type HashesHandler struct {
	client  *app.HashesClient
	catalog *app.AlgorithmCatalog
	prefs   *app.PreferencesService
}

func NewHashesHandler(client *app.HashesClient, catalog *app.AlgorithmCatalog, prefs *app.PreferencesService) *HashesHandler {
	return &HashesHandler{client: client, catalog: catalog, prefs: prefs}
}

func (h *HashesHandler) Routes(r chi.Router) {
	r.Route("/hashes", func(r chi.Router) {
		r.Get("/algorithms", h.algorithms)
		r.Get("/jobs", h.jobs)
		r.Get("/jobs.csv", h.jobsCSV)
		r.Get("/balance", h.balance)
		r.Get("/identify", h.identify)
		r.Post("/lookup", h.lookup)
	})
}

type algorithmsResponse struct {
	Algorithms []domain.Algorithm `json:"algorithms"`
	Options    []string           `json:"options"`
	UpdatedAt  *time.Time         `json:"updatedAt,omitempty"`
}

// algorithms serves the cached catalogue; ?refresh=1 fetches it first.
func (h *HashesHandler) algorithms(w http.ResponseWriter, r *http.Request) {
	if h.catalog == nil {
		list, err := h.client.Algorithms(r.Context())
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		httpjson.Write(w, http.StatusOK, algorithmsResponse{Algorithms: list, Options: []string{"All"}})
		return
	}
	if refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh")); refresh || len(h.catalog.List()) == 0 {
		if _, err := h.catalog.Refresh(r.Context()); err != nil {
			writeAppError(w, r, err)
			return
		}
	}
	resp := algorithmsResponse{Algorithms: h.catalog.List(), Options: h.catalog.Options()}
	if at := h.catalog.UpdatedAt(); !at.IsZero() {
		resp.UpdatedAt = &at
	}
	httpjson.Write(w, http.StatusOK, resp)
}

type jobsResponse struct {
	Jobs       []domain.EscrowJob `json:"jobs"`
	Stats      domain.JobStats    `json:"stats"`
	Currencies []string           `json:"currencies"`
	Total      int                `json:"total"`
	Sort       string             `json:"sort"`
	Desc       bool               `json:"desc"`
}

// jobView resolves filters and sort order: query parameters first, then the
// values saved by the shell.
type jobView struct {
	filter app.JobFilter
	sort   string
	desc   bool
}

func (h *HashesHandler) resolveView(r *http.Request) jobView {
	prefs := domain.DefaultPreferences()
	if h.prefs != nil {
		if p, err := h.prefs.Get(r.Context()); err == nil {
			prefs = p
		}
	}
	v := jobView{
		filter: app.JobFilterFromPreferences(prefs),
		sort:   prefs.String(domain.KeyJobsSortColumn, app.SortCreated),
		desc:   prefs.Bool(domain.KeyJobsSortDesc, true),
	}

	q := r.URL.Query()
	if q.Has("currency") {
		v.filter.Currency = q.Get("currency")
	}
	if q.Has("algorithm") {
		v.filter.Algorithm = q.Get("algorithm")
	}
	if q.Has("minLeft") {
		v.filter.MinLeft, _ = strconv.Atoi(q.Get("minLeft"))
	}
	if q.Has("sort") {
		v.sort = q.Get("sort")
		v.desc = app.DefaultSortDesc(v.sort)
	}
	if q.Has("desc") {
		if b, err := strconv.ParseBool(q.Get("desc")); err == nil {
			v.desc = b
		}
	}
	return v
}

func (h *HashesHandler) loadJobs(w http.ResponseWriter, r *http.Request) ([]domain.EscrowJob, []domain.EscrowJob, jobView, bool) {
	all, err := h.client.Jobs(r.Context())
	if err != nil {
		writeAppError(w, r, err)
		return nil, nil, jobView{}, false
	}
	view := h.resolveView(r)
	filtered := app.FilterJobs(all, view.filter)
	app.SortJobs(filtered, view.sort, view.desc)
	return all, filtered, view, true
}

func (h *HashesHandler) jobs(w http.ResponseWriter, r *http.Request) {
	all, filtered, view, ok := h.loadJobs(w, r)
	if !ok {
		return
	}
	httpjson.Write(w, http.StatusOK, jobsResponse{
		Jobs:       filtered,
		Stats:      app.SummarizeJobs(filtered),
		Currencies: app.CurrencyOptions(all),
		Total:      len(all),
		Sort:       view.sort,
		Desc:       view.desc,
	})
}

func (h *HashesHandler) jobsCSV(w http.ResponseWriter, r *http.Request) {
	_, filtered, _, ok := h.loadJobs(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := app.WriteJobsCSV(&buf, filtered); err != nil {
		writeAppError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="jobs.csv"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (h *HashesHandler) balance(w http.ResponseWriter, r *http.Request) {
	report, err := h.client.BalanceReport(r.Context())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	httpjson.Write(w, http.StatusOK, report)
}

func (h *HashesHandler) identify(w http.ResponseWriter, r *http.Request) {
	hash := strings.TrimSpace(r.URL.Query().Get("hash"))
	if hash == "" {
		httpjson.WriteCodedError(w, http.StatusBadRequest, "invalid_params", "missing hash")
		return
	}
	extended, _ := strconv.ParseBool(r.URL.Query().Get("extended"))
	names, err := h.client.Identify(r.Context(), hash, extended)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	httpjson.Write(w, http.StatusOK, map[string]any{"hash": hash, "algorithms": names})
}

type lookupRequest struct {
	Hashes []string `json:"hashes"`
}

// lookup accepts {"hashes":[...]} or a text/plain body with one hash per
// line. ?format=text answers with "hash[:salt]:plain" lines, ?algorithm=1
// appends the algorithm.
func (h *HashesHandler) lookup(w http.ResponseWriter, r *http.Request) {
	body := io.LimitReader(r.Body, maxLookupBody)
	var hashes []string
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "text/plain" {
		lines, err := app.ReadHashes(body)
		if err != nil {
			httpjson.WriteError(w, http.StatusBadRequest, "cannot read body")
			return
		}
		hashes = lines
	} else {
		var req lookupRequest
		if err := json.NewDecoder(body).Decode(&req); err != nil {
			httpjson.WriteError(w, http.StatusBadRequest, "invalid json")
			return
		}
		hashes = req.Hashes
	}

	res, err := h.client.Lookup(r.Context(), hashes)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	if r.URL.Query().Get("format") == "text" {
		withAlg, _ := strconv.ParseBool(r.URL.Query().Get("algorithm"))
		var buf bytes.Buffer
		if err := app.WriteLookupResults(&buf, res.Founds, withAlg); err != nil {
			writeAppError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(buf.Bytes())
		return
	}
	httpjson.Write(w, http.StatusOK, res)
}

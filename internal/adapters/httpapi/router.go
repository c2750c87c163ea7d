package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/scriptducks/hashes-gui/internal/app"
	"github.com/scriptducks/hashes-gui/internal/ports"
)

// Deps are the services behind the HTTP shell. Nil services leave their
// routes unmounted.
type Deps struct {
	Preferences *app.PreferencesService
	Hashes      *app.HashesClient
	Catalog     *app.AlgorithmCatalog
	Tasks       *app.TaskService
	Executors   app.ExecutorRegistry
	Bus         ports.EventBus
}

type Server struct {
	logger zerolog.Logger
	deps   Deps
}

func NewServer(logger zerolog.Logger, deps Deps) *Server {
	return &Server{logger: logger, deps: deps}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(hlog.NewHandler(s.logger))
	r.Use(hlog.RequestIDHandler("request_id", "Request-Id"))
	r.Use(hlog.RemoteAddrHandler("remote_ip"))
	r.Use(hlog.UserAgentHandler("user_agent"))
	r.Use(hlog.AccessHandler(accessLogFn))

	r.Route("/api/v1", func(r chi.Router) {
		// long-lived stream, kept out of the request timeout
		r.Get("/events", s.handleEvents)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(defaultRequestTimeout))

			r.Get("/health", s.handleHealth)
			r.Get("/version", s.handleVersion)
			r.Get("/openapi.json", s.handleOpenAPI)

			if s.deps.Preferences != nil {
				NewPreferencesHandler(s.deps.Preferences, s.deps.Bus).Routes(r)
			}
			if s.deps.Hashes != nil {
				NewHashesHandler(s.deps.Hashes, s.deps.Catalog, s.deps.Preferences).Routes(r)
			}
			if s.deps.Tasks != nil {
				NewTasksHandler(s.deps.Tasks, s.deps.Executors).Routes(r)
			}
		})
	})

	return r
}

package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/restkit/restkit/internal/config"
	"github.com/restkit/restkit/internal/csrf"
	"github.com/restkit/restkit/internal/records"
)

type Server struct {
	Router *chi.Mux
	Port   int
	logger *slog.Logger
}

// New assembles the router and middleware chain. The CSRF Protect instance
// is constructed by the caller and passed in by reference; route groups tag
// themselves with identities the exemption registry can target.
func New(cfg *config.Config, logger *slog.Logger, protect *csrf.Protect, recordsHandler *records.Handler) *Server {
	r := chi.NewRouter()

	// Apply middleware in order
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))
	r.Use(TimeoutMiddleware(30 * time.Second))
	r.Use(middleware.Recoverer)

	// Wrap with OpenTelemetry HTTP instrumentation
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "restkit")
	})

	r.Route("/records", func(rr chi.Router) {
		guard := func(view string) chi.Router {
			return rr.With(csrf.Tag(view, "records"), viewLogger(view), protect.Middleware)
		}
		idParam := func(req *http.Request) string {
			return chi.URLParam(req, "id")
		}

		guard("records.list").Get("/", recordsHandler.List())
		guard("records.get").Get("/{id}", recordsHandler.Get(idParam))
		guard("records.create").Post("/", recordsHandler.Create())
		guard("records.update").Put("/{id}", recordsHandler.Update(idParam))
	})

	return &Server{
		Router: r,
		Port:   cfg.Server.Port,
		logger: logger,
	}
}

// viewLogger records the route's view identity in the request log.
func viewLogger(view string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			AddLogField(r.Context(), "view", view)
			next.ServeHTTP(w, r)
		})
	}
}

// CSRFOptions maps the loaded configuration onto csrf.Options.
func CSRFOptions(cfg *config.Config) csrf.Options {
	return csrf.Options{
		CookieName:         cfg.CSRF.CookieName,
		Header:             cfg.CSRF.Header,
		Methods:            cfg.CSRF.Methods,
		TokenLength:        cfg.CSRF.TokenLength,
		AllowedChars:       cfg.CSRF.AllowedChars,
		ForceSecureReferer: cfg.CSRF.ForceSecureReferer,
		AllowedHosts:       cfg.Server.AllowedHosts,
		CookieSameSite:     cfg.CSRF.CookieSameSite,
		CookieSecure:       cfg.CSRF.CookieSecure,
		CookieMaxAge:       cfg.CSRF.CookieMaxAge,
		TokenExpiresIn:     cfg.CSRF.TokenExpiresIn,
		GracePeriod:        cfg.CSRF.TokenGracePeriod,
	}
}

func (s *Server) Start() error {
	s.logger.Info("starting server", slog.Int("port", s.Port))
	return http.ListenAndServe(fmt.Sprintf(":%d", s.Port), s.Router)
}

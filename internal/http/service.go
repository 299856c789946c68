package service

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httplog"
	h "github.com/hyphengolang/prelude/http"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

// Service is a chi router with JSON helpers and a request logger.
type Service interface {
	chi.Router

	Log() *zerolog.Logger

	Respond(http.ResponseWriter, *http.Request, any, int)
	RespondText(w http.ResponseWriter, r *http.Request, status int)
}

type service struct {
	chi.Router

	log     zerolog.Logger
	origins []string
}

func (s *service) Log() *zerolog.Logger { return &s.log }

// Respond implements Service
func (*service) Respond(w http.ResponseWriter, r *http.Request, v any, status int) {
	h.Respond(w, r, v, status)
}

func (s *service) RespondText(w http.ResponseWriter, r *http.Request, status int) {
	s.Respond(w, r, http.StatusText(status), status)
}

func New(opt ...Option) Service {
	s := service{log: zerolog.Nop()}
	for _, o := range opt {
		o(&s)
	}

	if s.Router == nil {
		s.Router = chi.NewRouter()
	}

	s.Use(httplog.RequestLogger(s.log))
	if len(s.origins) > 0 {
		s.Use(cors.New(cors.Options{
			AllowedOrigins: s.origins,
			AllowedMethods: []string{http.MethodGet},
		}).Handler)
	}

	return &s
}

type Option func(*service)

func WithRouter(mux chi.Router) Option {
	return func(s *service) {
		s.Router = mux
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *service) {
		s.log = l
	}
}

// WithOrigins enables CORS for the given origins, "*" for any.
func WithOrigins(origins ...string) Option {
	return func(s *service) {
		s.origins = origins
	}
}

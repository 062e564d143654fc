package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"htmlpng/internal/httpapi/handlers"
	"htmlpng/internal/httpkit"
	"htmlpng/internal/pkg/logger"
	"htmlpng/internal/pkg/middleware"
)

type Deps struct {
	Handlers           handlers.Deps
	CORSAllowedOrigins []string
	Log                *logger.Logger
}

func NewRouter(d Deps) http.Handler {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	if d.Handlers.Log == nil {
		d.Handlers.Log = log
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logging(log))
	r.Use(middleware.Recovery(log))

	origins := d.CORSAllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(httpkit.CORS(httpkit.CORSOptions{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Accept", middleware.RequestIDHeader},
		ExposedHeaders: []string{middleware.RequestIDHeader, handlers.RenderIDHeader},
		MaxAgeSeconds:  600,
	}))

	h := handlers.New(d.Handlers)

	// ---- HEALTH ----
	r.Get("/health", h.Health)

	// ---- RENDER ----
	r.Post("/api/render-html-to-png", middleware.WrapHandler(log, h.RenderHTMLToPNG))

	// ---- HISTORY ----
	if d.Handlers.History != nil {
		r.Get("/api/renders", middleware.WrapHandler(log, h.ListRenders))
	}

	return r
}

package router

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/kiwari-pos/terminal/internal/config"
	"github.com/kiwari-pos/terminal/internal/handler"
	mw "github.com/kiwari-pos/terminal/internal/middleware"
	"github.com/kiwari-pos/terminal/internal/terminal"
	"github.com/kiwari-pos/terminal/internal/ws"
)

// Deps are the collaborators the routes are served by. Journal is nil when
// no database is configured.
type Deps struct {
	Terminals *terminal.Manager
	Lists     handler.ListService
	Journal   handler.JournalStore
	Hub       *ws.Hub
}

// New creates a Chi router with all terminal routes wired up.
func New(cfg *config.Config, deps Deps) chi.Router {
	r := chi.NewRouter()

	// Standard middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // 5 minutes
	}))

	// Public routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	// WebSocket route (handles auth internally via query param)
	if deps.Hub != nil {
		r.Get("/ws/terminal", func(w http.ResponseWriter, r *http.Request) {
			ws.ServeWS(deps.Hub, cfg.JWTSecret, w, r)
		})
	}

	// Protected routes (require authentication)
	r.Group(func(r chi.Router) {
		r.Use(mw.Authenticate(cfg.JWTSecret))

		terminalHandler := handler.NewTerminalHandler(deps.Terminals)
		paymentHandler := handler.NewPaymentHandler(deps.Terminals)
		r.Route("/terminal", func(r chi.Router) {
			terminalHandler.RegisterRoutes(r)
			r.Route("/payment", paymentHandler.RegisterRoutes)
		})

		listHandler := handler.NewListHandler(deps.Lists)
		listHandler.RegisterRoutes(r)

		if deps.Journal != nil {
			r.Group(func(r chi.Router) {
				r.Use(mw.RequireRole("OWNER", "MANAGER"))
				journalHandler := handler.NewJournalHandler(deps.Journal)
				r.Route("/journal", journalHandler.RegisterRoutes)
			})
		}
	})

	log.Println("Router initialized with all handlers")
	return r
}

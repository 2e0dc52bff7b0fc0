// Package server wires every handler into one chi router.
package server

import (
	"context"
	"net/http"
	"time"

	"bookswap/internal/catalog"
	"bookswap/internal/config"
	"bookswap/internal/exchange"
	"bookswap/internal/httpx"
	"bookswap/internal/journal"
	"bookswap/internal/membership"
	"bookswap/internal/notification"
	"bookswap/internal/storage"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"
)

// Deps holds the services behind the router.
type Deps struct {
	DB            *storage.DB
	Membership    membership.Service
	Sessions      *membership.Sessions
	Catalog       catalog.Service
	Notifications notification.Service
	Exchange      exchange.Service
}

// NewDeps builds every service on top of db.
func NewDeps(cfg *config.Config, db *storage.DB) *Deps {
	j := journal.New(db)
	members := membership.NewService(db)
	return &Deps{
		DB:            db,
		Membership:    members,
		Sessions:      membership.NewSessions(cfg.SessionSecret, cfg.SessionTTL),
		Catalog:       catalog.NewService(db, j),
		Notifications: notification.NewService(db),
		Exchange:      exchange.NewService(db, j, members),
	}
}

// NewRouter builds and returns the application router. ctx bounds the
// background work of the rate limiter.
func NewRouter(ctx context.Context, cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	if cfg.TrustProxy {
		r.Use(chimiddleware.RealIP)
	}
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	authRL := httpx.NewRateLimiter(ctx, rate.Limit(cfg.AuthRateLimit), cfg.AuthRateBurst)

	membershipH := membership.NewHandler(deps.Membership, deps.Sessions)
	catalogH := catalog.NewHandler(deps.Catalog)
	notificationH := notification.NewHandler(deps.Notifications)
	exchangeH := exchange.NewHandler(deps.Exchange)

	r.Get("/health", health(deps.DB))
	r.With(authRL.Limit).Post("/users", membershipH.Register)
	r.With(authRL.Limit).Post("/sessions", membershipH.Login)
	r.Get("/books", catalogH.ListAvailable)
	r.Get("/books/{id}", catalogH.Get)

	r.Group(func(r chi.Router) {
		r.Use(httpx.Authenticate(deps.Sessions))

		r.Get("/me/books", catalogH.ListMine)
		r.Post("/books", catalogH.Add)
		r.Post("/books/{id}/propose", exchangeH.Propose)

		r.Get("/notifications", notificationH.ListUnread)
		r.Get("/notifications/{id}", exchangeH.Get)
		r.Post("/notifications/{id}/read", notificationH.MarkRead)
		r.Get("/notifications/{id}/books", exchangeH.OfferableBooks)
		r.Post("/notifications/{id}/confirm", exchangeH.Confirm)
	})

	return r
}

func health(db *storage.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			httpx.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

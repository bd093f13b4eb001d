package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/andreasstove999/ecommerce-system/storefront-go/internal/clients"
	"github.com/andreasstove999/ecommerce-system/storefront-go/internal/config"
	"github.com/andreasstove999/ecommerce-system/storefront-go/internal/http/handlers"
	"github.com/andreasstove999/ecommerce-system/storefront-go/internal/middleware"
	"github.com/andreasstove999/ecommerce-system/storefront-go/internal/session"
)

type Deps struct {
	Logger *zap.Logger
	Cfg    config.Config

	Sessions *session.Registry

	HealthProbes []clients.HealthProbe
}

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	// Middlewares (outer -> inner)
	r.Use(middleware.Logging(d.Logger))
	r.Use(chimw.RealIP)
	r.Use(middleware.CorrelationID)
	r.Use(middleware.CORS(d.Cfg.CORSAllowOrigins))
	r.Use(middleware.RequireSessionIDForMeRoutes)
	r.Use(middleware.Recover(d.Logger))

	// Health
	health := &handlers.HealthHandler{Probes: d.HealthProbes}
	r.Get("/health", health.Service)
	r.Get("/health/upstreams", health.Upstreams)

	r.Route("/me", func(r chi.Router) {
		sess := handlers.NewSessionHandler(d.Sessions, d.Logger)
		r.Get("/session", sess.Status)
		r.Post("/session", sess.Login)
		r.Delete("/session", sess.Logout)

		cart := handlers.NewCartHandler(d.Sessions)
		r.Get("/cart", cart.GetCartMe)
		r.Get("/cart/snapshot", cart.SnapshotMe)
		r.Post("/cart/items", cart.AddItemMe)
		r.Patch("/cart/items/{itemId}", cart.UpdateItemMe)
		r.Delete("/cart/items/{itemId}", cart.RemoveItemMe)
		r.Post("/cart/checkout", cart.CheckoutMe)
	})

	return r
}

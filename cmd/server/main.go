package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/flipbase/marketplace/internal/api"
	"github.com/flipbase/marketplace/internal/auth"
	"github.com/flipbase/marketplace/internal/config"
	"github.com/flipbase/marketplace/internal/db"
	"github.com/flipbase/marketplace/internal/market"
	"github.com/flipbase/marketplace/internal/ws"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

// Main entry point: sets up database, marketplace engines, and HTTP server
func main() {
	ctx := context.Background()
	cfg := config.Load()

	database, err := db.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close(ctx)

	hub := ws.NewHub(database)

	marketCfg := market.DefaultConfig()
	marketCfg.AntiSnipeWindow = time.Duration(cfg.AntiSnipeWindowMin) * time.Minute
	marketCfg.AntiSnipeExtension = time.Duration(cfg.AntiSnipeExtensionMin) * time.Minute
	marketCfg.DisputeResponseTime = time.Duration(cfg.DisputeResponseHours) * time.Hour

	svc := market.NewService(database, market.RealClock(), hub, marketCfg)
	authService := auth.NewAuthService(database, cfg.JWTSecret)
	handler := api.NewHandler(svc, authService)

	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Public endpoints
	r.Post("/auth/register", handler.Register)
	r.Post("/auth/login", handler.Login)
	r.Get("/listings", handler.SearchListings)
	r.Get("/listings/{id}", handler.GetListing)

	// Protected endpoints (require JWT)
	r.Group(func(r chi.Router) {
		r.Use(handler.JWTAuthMiddleware)

		r.Post("/listings", handler.CreateListing)
		r.Delete("/listings/{id}", handler.CancelListing)
		r.Post("/listings/{id}/bids", handler.PlaceBid)
		r.Post("/listings/{id}/offers", handler.CreateOffer)

		r.Post("/offers/{id}/counter", handler.CounterOffer)
		r.Post("/offers/{id}/accept", handler.AcceptOffer)
		r.Post("/offers/{id}/reject", handler.RejectOffer)
		r.Post("/offers/{id}/withdraw", handler.WithdrawOffer)
		r.Post("/offers/{id}/respond", handler.RespondToCounter)

		r.Get("/transactions/{id}", handler.GetTransaction)
		r.Post("/transactions/{id}/advance", handler.AdvanceTransaction)
		r.Get("/transactions/{id}/checklist", handler.GetChecklist)
		r.Post("/transactions/{id}/checklist/{itemID}/confirm", handler.ConfirmChecklistItem)
		r.Post("/transactions/{id}/complete", handler.CompleteTransaction)
		r.Post("/transactions/{id}/cancel", handler.CancelTransaction)
		r.Post("/transactions/{id}/sign", handler.SignAgreement)
		r.Post("/transactions/{id}/dispute", handler.OpenDispute)
		r.Post("/transactions/{id}/partners", handler.AddPartner)
		r.Get("/disputes/{id}", handler.GetDispute)
		r.Post("/disputes/{id}/resolve", handler.ResolveDispute)

		r.Get("/withdrawals", handler.GetWithdrawals)
		r.Post("/withdrawals", handler.CreateWithdrawal)
		r.Post("/withdrawals/{id}/claim", handler.ClaimWithdrawal)
		r.Get("/notifications", handler.GetNotifications)

		// WebSocket notification stream
		r.Get("/ws", func(w http.ResponseWriter, req *http.Request) {
			userID, ok := api.UserID(req)
			if !ok {
				http.Error(w, `{"error": "Unauthorized"}`, http.StatusUnauthorized)
				return
			}
			hub.Handler(userID)(w, req)
		})
	})

	// Periodic deadline sweep: expiries, ended auctions, dispute
	// reminders. Correctness does not depend on it; it just makes
	// deadline transitions proactive.
	go func() {
		ticker := time.NewTicker(cfg.SweepInterval)
		for range ticker.C {
			if err := svc.Sweep(ctx); err != nil {
				log.Printf("sweep failed: %v", err)
			}
		}
	}()

	log.Printf("Starting server on %s", cfg.Addr)
	if err := http.ListenAndServe(cfg.Addr, r); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

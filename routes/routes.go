package routes

import (
	"net/http"

	"github.com/Dosada05/tournament-settlement/handlers"
	"github.com/Dosada05/tournament-settlement/middleware"
	"github.com/Dosada05/tournament-settlement/models"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type Handlers struct {
	Tournaments *handlers.TournamentHandler
	Ledger      *handlers.LedgerHandler
	Entries     *handlers.EntryHandler
	Payouts     *handlers.PayoutHandler
	Webhooks    *handlers.WebhookHandler
	WebSocket   *handlers.WebSocketHandler
}

func SetupRoutes(router chi.Router, h Handlers, jwtSecret []byte, allowedOrigins []string) {
	origins := allowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(chiMiddleware.Logger)
	router.Use(chiMiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Публичные маршруты
	router.Get("/tournaments/{tournamentID}/standings", h.Tournaments.StandingsHandler)
	router.Get("/tournaments/{tournamentID}/pairings", h.Tournaments.PairingsHandler)
	router.Get("/ws/tournaments/{tournamentID}", h.WebSocket.ServeWs)
	router.Post("/webhooks/stripe", h.Webhooks.StripeHandler)

	router.Group(func(r chi.Router) {
		r.Use(middleware.Authenticate(jwtSecret))

		// Игрок
		r.Post("/tournaments/{tournamentID}/entries", h.Entries.RegisterHandler)
		r.Get("/tournaments/{tournamentID}/refund-eligibility", h.Entries.RefundEligibilityHandler)
		r.Post("/tournaments/{tournamentID}/refund", h.Entries.RefundHandler)
		r.Get("/tournaments/{tournamentID}/entitlement", h.Payouts.EntitlementHandler)
		r.Post("/tournaments/{tournamentID}/payouts", h.Payouts.RequestHandler)

		// Администратор
		r.Group(func(r chi.Router) {
			r.Use(middleware.Authorize(models.RoleAdmin))

			r.Post("/tournaments", h.Tournaments.CreateHandler)
			r.Post("/tournaments/{tournamentID}/start", h.Tournaments.StartHandler)
			r.Post("/tournaments/{tournamentID}/advance", h.Tournaments.AdvanceHandler)
			r.Post("/matches/{matchID}/result", h.Tournaments.ReportResultHandler)

			r.Post("/tournaments/{tournamentID}/seed", h.Ledger.SeedHandler)
			r.Get("/tournaments/{tournamentID}/ledger", h.Ledger.ListHandler)
			r.Get("/tournaments/{tournamentID}/ledger/verify", h.Ledger.VerifyHandler)
			r.Post("/tournaments/{tournamentID}/statement", h.Ledger.StatementHandler)

			r.Post("/payouts/{payoutID}/approve", h.Payouts.ApproveHandler)
			r.Post("/payouts/{payoutID}/reject", h.Payouts.RejectHandler)
		})
	})
}

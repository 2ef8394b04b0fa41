package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/vendor-payouts/api/controllers"
	"github.com/angelmondragon/vendor-payouts/api/middleware"
	"github.com/angelmondragon/vendor-payouts/internal/payouts"
	"github.com/angelmondragon/vendor-payouts/pkg/config"
	"github.com/angelmondragon/vendor-payouts/pkg/db"
	"github.com/angelmondragon/vendor-payouts/pkg/enums"
	"github.com/angelmondragon/vendor-payouts/pkg/logger"
	"github.com/angelmondragon/vendor-payouts/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	payoutsService payouts.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.Recoverer(logg),
		middleware.CORS(cfg.API.CORSOrigins),
	)

	deps := map[string]controllers.Pinger{}
	if dbP != nil {
		deps["database"] = dbP
	}
	// a nil *redis.Client must not leak into the middleware interfaces
	var (
		idempotencyStore redis.IdempotencyStore
		rateStore        *redis.Client
	)
	if redisClient != nil {
		deps["redis"] = redisClient
		idempotencyStore = redisClient
		rateStore = redisClient
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps))
	})
	r.Handle("/metrics", promhttp.Handler())

	mutationPolicy := middleware.NewRateLimitPolicy("payouts", cfg.API.MutationRateWindow, cfg.API.MutationRateLimit)

	r.Route("/api/admin/v1/payouts", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(logg, enums.RoleAdmin, enums.RoleFinance))
		if rateStore != nil {
			r.Use(middleware.MutationRateLimit(mutationPolicy, rateStore, logg))
		}
		r.Use(middleware.Idempotency(idempotencyStore, logg))

		r.Get("/balances", controllers.AdminVendorBalances(payoutsService, logg))
		r.Post("/reconcile", controllers.AdminReconcileBalances(payoutsService, logg))
		r.Get("/vendors/{vendorId}/history", controllers.AdminVendorPayoutHistory(payoutsService, logg))

		r.Route("/batches", func(r chi.Router) {
			r.Get("/", controllers.AdminListPayoutBatches(payoutsService, logg))
			r.Post("/", controllers.AdminCreatePayoutBatch(payoutsService, logg))
			r.Get("/{batchId}", controllers.AdminGetPayoutBatch(payoutsService, logg))
			r.Delete("/{batchId}", controllers.AdminDeletePayoutBatch(payoutsService, logg))
			r.Post("/{batchId}/advance", controllers.AdminAdvancePayoutBatch(payoutsService, logg))
			r.Post("/{batchId}/finalize", controllers.AdminFinalizePayoutBatch(payoutsService, logg))
			r.Post("/{batchId}/fail", controllers.AdminFailPayoutBatch(payoutsService, logg))
		})
	})

	return r
}

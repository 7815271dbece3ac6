package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/tableside-sync/api/controllers"
	"github.com/angelmondragon/tableside-sync/api/middleware"
	"github.com/angelmondragon/tableside-sync/pkg/config"
	"github.com/angelmondragon/tableside-sync/pkg/db"
	"github.com/angelmondragon/tableside-sync/pkg/logger"
)

// NewRouter mounts the device API consumed by the POS UI.
func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	gatherer prometheus.Gatherer,
	orderService controllers.OrderService,
	queueReader controllers.QueueReader,
	reconciler controllers.Reconciler,
	conn controllers.Connectivity,
) http.Handler {
	r := chi.NewRouter()

	var origins []string
	if cfg != nil {
		origins = cfg.App.CORSOrigins
	}
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(origins),
	)

	r.Get("/healthz", controllers.Healthz(cfg, dbP, logg))
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Get("/status", controllers.SyncStatus(conn, queueReader, logg))
	r.Get("/events", controllers.ConnectivityEvents(conn, logg))
	r.Post("/sync", controllers.SyncNow(reconciler, logg))

	r.Route("/queue", func(r chi.Router) {
		r.Get("/", controllers.QueueList(queueReader, logg))
		r.Get("/dead-letters", controllers.DeadLetters(queueReader, logg))
	})

	r.Route("/tables/{table}", func(r chi.Router) {
		r.Get("/order", controllers.TableOrder(orderService, logg))
		r.Post("/lines", controllers.AddLine(orderService, logg))
	})

	r.Route("/orders", func(r chi.Router) {
		r.Post("/", controllers.SubmitOrder(orderService, logg))
		r.Delete("/{orderId}", controllers.DiscardOrder(orderService, logg))
		r.Patch("/{orderId}/status", controllers.SetOrderStatus(orderService, logg))
		r.Post("/{orderId}/gratuity", controllers.AddGratuity(orderService, logg))
		r.Patch("/{orderId}/lines/{lineId}", controllers.SetLineQuantity(orderService, logg))
		r.Delete("/{orderId}/lines/{lineId}", controllers.RemoveLine(orderService, logg))
	})

	return r
}

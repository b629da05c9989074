package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Movements = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gestionmatos",
		Name:      "movements_total",
		Help:      "Ledger movements recorded by the checkout/checkin workflow.",
	}, []string{"type"})

	WorkflowRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gestionmatos",
		Name:      "workflow_rejections_total",
		Help:      "Checkout/checkin attempts rejected or failed, by reason.",
	}, []string{"reason"})
)

// Handler serves the default registry in the Prometheus text format.
func Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}

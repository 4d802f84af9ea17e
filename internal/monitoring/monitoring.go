package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Metrics holds the engine's Prometheus instruments.
type Metrics struct {
	OrdersPlaced  *prometheus.CounterVec
	OrdersFilled  *prometheus.CounterVec
	OrderFailures *prometheus.CounterVec
	CurrentPrice  prometheus.Gauge
	AccountValue  prometheus.Gauge
	OpenOrders    prometheus.Gauge
}

// NewMetrics registers the instruments on a fresh registry.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		OrdersPlaced: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "grid_orders_placed_total",
			Help: "Orders placed, by side.",
		}, []string{"side"}),
		OrdersFilled: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "grid_orders_filled_total",
			Help: "Orders confirmed filled, by side.",
		}, []string{"side"}),
		OrderFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "grid_order_failures_total",
			Help: "Order placements that failed after all retries, by side.",
		}, []string{"side"}),
		CurrentPrice: factory.NewGauge(prometheus.GaugeOpts{
			Name: "grid_current_price",
			Help: "Latest observed market price.",
		}),
		AccountValue: factory.NewGauge(prometheus.GaugeOpts{
			Name: "grid_account_value",
			Help: "Total account value at the latest price, reservations included.",
		}),
		OpenOrders: factory.NewGauge(prometheus.GaugeOpts{
			Name: "grid_open_orders",
			Help: "Orders currently open on the exchange.",
		}),
	}
}

// Server exposes /metrics and /healthz over HTTP.
type Server struct {
	httpServer *http.Server
	logger     *zap.SugaredLogger
	started    time.Time
}

// NewServer builds the monitoring server on the given listen address.
func NewServer(addr string, reg *prometheus.Registry, logger *zap.SugaredLogger) *Server {
	s := &Server{logger: logger, started: time.Now()}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":         "ok",
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
	})
}

// Start serves until Shutdown is called.
func (s *Server) Start() {
	go func() {
		s.logger.Infof("Monitoring server listening on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Errorf("Monitoring server failed: %v", err)
		}
	}()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Package metrics provides Prometheus instrumentation for the game engine.
package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RoundsTotal counts round advances across all matches.
	RoundsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stockparty_rounds_total",
		Help: "Total number of rounds advanced",
	})

	// MatchesTotal counts completed matches.
	MatchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stockparty_matches_total",
		Help: "Total number of matches completed",
	})

	// TradesTotal counts executed trades, partitioned by side.
	TradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stockparty_trades_total",
		Help: "Total number of trades executed",
	}, []string{"side"})

	// TradeRejections counts rejected trades by reason.
	TradeRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stockparty_trade_rejections_total",
		Help: "Trades rejected by validation",
	}, []string{"reason"})

	// CardsDrawn counts card draws by template.
	CardsDrawn = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stockparty_cards_drawn_total",
		Help: "Cards distributed to players",
	}, []string{"template"})

	// CardsUsed counts consumed cards by template.
	CardsUsed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stockparty_cards_used_total",
		Help: "Cards played by players",
	}, []string{"template"})

	// ActivePlayers tracks players currently in the match.
	ActivePlayers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stockparty_active_players",
		Help: "Number of players in the current match",
	})

	// WebSocketClients tracks connected WebSocket sessions.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stockparty_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stockparty_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stockparty_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the raw path for the label; the route surface is small.
		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack passes through to the underlying writer so the WebSocket upgrade
// on /ws works behind this middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("metrics: underlying writer does not support hijacking")
	}
	return hj.Hijack()
}

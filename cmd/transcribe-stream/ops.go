package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lexiqai/transcribe-stream/internal/config"
	"github.com/lexiqai/transcribe-stream/internal/observability"
	"github.com/lexiqai/transcribe-stream/internal/resilience"
	"github.com/lexiqai/transcribe-stream/internal/stt"
)

// startOpsServer serves health, readiness and metrics in the background
func startOpsServer(addr string, cfg *config.Config, client *stt.Client) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", observability.HealthCheckHandler())
	mux.HandleFunc("/ready", observability.ReadinessHandler(map[string]observability.HealthCheckFunc{
		"endpoint":        observability.TCPCheck(endpointAddr(cfg.Endpoint)),
		"circuit_breaker": breakerCheck(client.Breaker()),
	}))
	if cfg.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
	}

	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", addr).Bool("metrics", cfg.MetricsEnabled).Msg("Ops server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("Ops server failed")
		}
	}()
	return srv
}

func shutdownOpsServer(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn().Err(err).Msg("Ops server shutdown")
	}
}

func breakerCheck(cb *resilience.CircuitBreaker) observability.HealthCheckFunc {
	return func(context.Context) (bool, error) {
		if cb.GetState() == resilience.StateOpen {
			return false, resilience.ErrCircuitOpen
		}
		return true, nil
	}
}

// endpointAddr returns host:port for a streaming endpoint URL
func endpointAddr(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		return endpoint
	}
	if u.Port() != "" {
		return u.Host
	}
	port := "80"
	switch u.Scheme {
	case "https", "wss":
		port = "443"
	}
	return net.JoinHostPort(u.Hostname(), port)
}

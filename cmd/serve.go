package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zamong25/AIS2025-sub001/internal/collect"
	"github.com/zamong25/AIS2025-sub001/internal/invoke"
	"github.com/zamong25/AIS2025-sub001/internal/monitoring"
	"github.com/zamong25/AIS2025-sub001/internal/quality"
	"github.com/zamong25/AIS2025-sub001/internal/resilience"
	"github.com/zamong25/AIS2025-sub001/internal/sanitize"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Expose the protected pipeline and quality gate over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		// The invoke endpoint needs an API key; without one the server still
		// serves health, status, and quality traffic.
		var inv *invoke.Invoker
		if cfg.Inference.APIKey != "" {
			var err error
			inv, err = newInvoker(cfg)
			if err != nil {
				return eris.Wrap(err, "init invoker")
			}
		} else {
			zap.L().Warn("serve: no inference API key set, POST /invoke disabled")
		}

		mgr, err := newQualityManager(cfg)
		if err != nil {
			return err
		}

		collector := monitoring.NewCollector()
		if inv != nil {
			collector.Register(inv.Pipeline())
		}

		if cfg.Monitoring.WebhookURL != "" {
			checker := monitoring.NewChecker(collector, monitoring.NewAlerter(cfg.Monitoring), cfg.Monitoring)
			go checker.Run(ctx)
		}

		router := buildRouter(collector, inv, mgr, cfg.Quality.MinOverall)
		return startServer(ctx, router, resolvePort(servePort, cfg.Server.Port))
	},
}

// resolvePort prefers the flag value over the configured port.
func resolvePort(flag, configured int) int {
	if flag != 0 {
		return flag
	}
	return configured
}

// startServer runs the HTTP server until ctx is cancelled, then shuts it down
// gracefully.
func startServer(ctx context.Context, handler http.Handler, port int) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: handler,
	}

	go func() {
		<-ctx.Done()
		zap.L().Info("serve: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	zap.L().Info("serve: listening", zap.Int("port", port))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return eris.Wrap(err, "server listen")
	}
	return nil
}

// buildRouter assembles the HTTP surface. A nil invoker disables POST /invoke
// with 503; a nil collector or manager falls back to an empty default.
func buildRouter(collector *monitoring.Collector, inv *invoke.Invoker, mgr *quality.Manager, minOverall float64) http.Handler {
	if collector == nil {
		collector = monitoring.NewCollector()
	}
	if mgr == nil {
		mgr = quality.NewManager(nil)
	}

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/readyz", func(w http.ResponseWriter, req *http.Request) {
		if !collector.Ready() {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "circuit open"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})

	r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, collector.Collect())
	})

	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Post("/invoke", func(w http.ResponseWriter, req *http.Request) {
		if inv == nil {
			http.Error(w, `{"error":"inference is not configured"}`, http.StatusServiceUnavailable)
			return
		}

		var body struct {
			Prompt string `json:"prompt"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
			return
		}
		prompt := strings.TrimSpace(body.Prompt)
		if prompt == "" {
			http.Error(w, `{"error":"prompt is required"}`, http.StatusBadRequest)
			return
		}

		res, err := inv.AskJSON(req.Context(), prompt)
		if err != nil {
			status := http.StatusBadGateway
			msg := "invocation failed"
			var parseErr *sanitize.ParseError
			switch {
			case errors.Is(err, resilience.ErrCircuitOpen):
				status = http.StatusServiceUnavailable
				msg = "circuit open"
			case errors.As(err, &parseErr):
				msg = "unparseable answer"
			}
			zap.L().Warn("serve: invocation failed", zap.Error(err))
			http.Error(w, fmt.Sprintf(`{"error":%q}`, msg), status)
			return
		}

		writeJSON(w, http.StatusOK, res)
	})

	r.Post("/quality", func(w http.ResponseWriter, req *http.Request) {
		var observations map[string]collect.Observation
		if err := json.NewDecoder(req.Body).Decode(&observations); err != nil {
			http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
			return
		}
		if len(observations) == 0 {
			http.Error(w, `{"error":"observations are required"}`, http.StatusBadRequest)
			return
		}

		snap := collect.NewCollector(mgr).FromObservations(observations)
		gateErr := gateVerdict(snap, minOverall)
		proceed := gateErr == nil
		collector.ObserveGate(proceed, snap.Report.OverallConfidence)

		resp := struct {
			ID      string         `json:"id"`
			Proceed bool           `json:"proceed"`
			Reason  string         `json:"reason,omitempty"`
			Report  quality.Report `json:"report"`
		}{ID: snap.ID, Proceed: proceed, Report: snap.Report}
		if gateErr != nil {
			resp.Reason = gateErr.Error()
		}
		writeJSON(w, http.StatusOK, resp)
	})

	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

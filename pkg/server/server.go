package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/levenlabs/go-lflag"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/eg4monitor/eg4monitor/pkg/common"
	"github.com/eg4monitor/eg4monitor/pkg/log"
	"github.com/eg4monitor/eg4monitor/pkg/types"
)

// InverterLister is the part of *eg4.Client the server reports on.
type InverterLister interface {
	LoggedIn() bool
	Inverters() []types.Inverter
	Selection() types.InverterSelection
}

// Server exposes the exporter's metrics and a small status API over HTTP.
type Server struct {
	gatherer  prometheus.Gatherer
	inverters InverterLister

	listenAddr  string
	metricsPath string
	serverName  string
	httpServer  *http.Server
}

// Configured initializes the Server with the metrics it serves.
// It uses lflag to register command-line flags for configuration.
func Configured(g prometheus.Gatherer) *Server {
	srv := &Server{
		gatherer:   g,
		serverName: "eg4-exporter/" + common.Version(),
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "9090"
	}

	listenAddr := lflag.String("http-listen", ":"+port, "HTTP server listen address")
	metricsPath := lflag.String("metrics-path", "/metrics", "Path to serve prometheus metrics on")

	lflag.Do(func() {
		srv.listenAddr = *listenAddr
		srv.metricsPath = *metricsPath
	})

	return srv
}

// SetInverters sets the client reported on by /api/inverters. It must be called
// before Run.
func (s *Server) SetInverters(inv InverterLister) {
	s.inverters = inv
}

func (s *Server) setupHandler() http.Handler {
	metricsPath := s.metricsPath
	if metricsPath == "" {
		metricsPath = "/metrics"
	}

	mux := http.NewServeMux()
	// compression is left to gziphandler
	mux.Handle("GET "+metricsPath, promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{
		ErrorHandling:      promhttp.ContinueOnError,
		DisableCompression: true,
	}))
	mux.HandleFunc("GET /api/inverters", s.handleInverters)
	mux.HandleFunc("/healthz", s.handleHealthz)
	return s.revisionMiddleware(gziphandler.GzipHandler(s.securityHeadersMiddleware(mux)))
}

// Run starts the HTTP server and blocks until the context is canceled or an error occurs.
// It also handles graceful shutdown when the context is done.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.listenAddr,
		Handler:      s.setupHandler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	// use a channel to capturing server errors
	errChan := make(chan error, 1)
	go func() {
		defer close(errChan)
		log.Ctx(ctx).InfoContext(ctx, "starting server", slog.String("addr", s.listenAddr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Ctx(ctx).InfoContext(ctx, "shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}
}

func writeJSONError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(struct {
		Error string `json:"error"`
	}{Error: msg}); err != nil {
		slog.Warn("failed to write error response", slog.Any("error", err))
		panic(http.ErrAbortHandler)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok")); err != nil {
		panic(http.ErrAbortHandler)
	}
}

type inverterView struct {
	SerialNumber string `json:"serialNum"`
	Alias        string `json:"alias,omitempty"`
	PlantID      string `json:"plantId"`
	PlantName    string `json:"plantName,omitempty"`
	Selected     bool   `json:"selected"`
}

type inventoryResponse struct {
	LoggedIn  bool           `json:"loggedIn"`
	Selected  string         `json:"selected,omitempty"`
	Inverters []inverterView `json:"inverters"`
}

func (s *Server) handleInverters(w http.ResponseWriter, r *http.Request) {
	if s.inverters == nil {
		writeJSONError(w, "no inverter source configured", http.StatusServiceUnavailable)
		return
	}

	sel := s.inverters.Selection()
	resp := inventoryResponse{
		LoggedIn:  s.inverters.LoggedIn(),
		Selected:  sel.SerialNumber,
		Inverters: []inverterView{},
	}
	for _, inv := range s.inverters.Inverters() {
		resp.Inverters = append(resp.Inverters, inverterView{
			SerialNumber: inv.SerialNumber,
			Alias:        inv.Alias,
			PlantID:      inv.PlantID,
			PlantName:    inv.PlantName,
			Selected:     inv.SerialNumber == sel.SerialNumber,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Ctx(r.Context()).WarnContext(r.Context(), "failed to write inverters response", slog.Any("error", err))
		panic(http.ErrAbortHandler)
	}
}

func (s *Server) revisionMiddleware(next http.Handler) http.Handler {
	if s.serverName == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", s.serverName)
		next.ServeHTTP(w, r)
	})
}

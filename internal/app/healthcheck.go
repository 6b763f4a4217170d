package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"slices"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vk/gridcrawl/internal/ctxlog"
	"github.com/vk/gridcrawl/internal/task"
)

// shutdownTimeout bounds the graceful shutdown of the health check server.
const shutdownTimeout = 5 * time.Second

// healthHandler reports that the process is alive.
func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	a.logger.Debug("Health check endpoint hit.", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

// statusResponse is the body of /status.
type statusResponse struct {
	Counts map[task.Status]int      `json:"counts"`
	Tasks  map[task.Key]task.Status `json:"tasks"`
}

// taskResponse is the body of /task.
type taskResponse struct {
	Key    string      `json:"key"`
	Status task.Status `json:"status"`
	Bytes  int         `json:"bytes,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// statusHandler writes per-status totals and the live status of every task.
func (a *App) statusHandler(w http.ResponseWriter, r *http.Request) {
	a.logger.Debug("Status endpoint hit.", "remote_addr", r.RemoteAddr)
	a.writeJSON(w, http.StatusOK, statusResponse{
		Counts: a.store.Counts(),
		Tasks:  a.store.Statuses(),
	})
}

// taskHandler reports a single task named by the key query parameter.
func (a *App) taskHandler(w http.ResponseWriter, r *http.Request) {
	key := task.Key(r.URL.Query().Get("key"))
	a.logger.Debug("Task endpoint hit.", "remote_addr", r.RemoteAddr, "key", key)
	if key == "" {
		http.Error(w, "missing key parameter", http.StatusBadRequest)
		return
	}
	if !slices.Contains(a.scheduler.Keys(), key) {
		http.Error(w, "unknown task", http.StatusNotFound)
		return
	}

	resp := taskResponse{Key: key.String(), Status: a.store.Status(key)}
	if res, ok := a.store.Result(key); ok {
		resp.Bytes = len(res.Content)
		if res.Failed() {
			resp.Error = res.Err.Error()
		}
	}
	a.writeJSON(w, http.StatusOK, resp)
}

func (a *App) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Warn("Failed to encode response.", "error", err)
	}
}

// healthcheckHandler routes the endpoints of the health check server.
func (a *App) healthcheckHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", a.healthHandler)
	mux.HandleFunc("/status", a.statusHandler)
	mux.HandleFunc("/task", a.taskHandler)
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	return mux
}

// startHealthcheckServer binds the configured port and serves in the
// background. Binding errors are returned immediately.
func (a *App) startHealthcheckServer(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Configuring health check server.")

	addr := fmt.Sprintf(":%d", a.config.HealthcheckPort)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to start health check server: %w", err)
	}

	a.httpServer = &http.Server{
		Handler:           a.healthcheckHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("🩺 Health check server starting", "address", fmt.Sprintf("http://localhost%s/health", addr))
		// Serve returns ErrServerClosed on graceful shutdown.
		if err := a.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Health check server failed unexpectedly", "error", err)
		}
	}()
	return nil
}

func (a *App) closeHealthcheckServer(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	if a.httpServer == nil {
		logger.Debug("Health check server was not running.")
		return nil
	}

	// The run context may already be cancelled; shutdown gets its own deadline.
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	logger.Info("🩺 Shutting down health check server...")
	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	a.httpServer = nil
	logger.Debug("Health check server shut down gracefully.")
	return nil
}

package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"relay_bot/internal/logger"
	"relay_bot/internal/relay/status"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	checkTimeout    = 3 * time.Second
	shutdownTimeout = 10 * time.Second
)

// StatusReporter /status 数据来源
type StatusReporter interface {
	Report(ctx context.Context) (status.Report, error)
}

// Pinger 存储连通性检查（MongoDB / Redis）
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc 让普通函数满足 Pinger
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

type healthResponse struct {
	Status string            `json:"status"` // ok / degraded
	Checks map[string]string `json:"checks,omitempty"`
}

type handler struct {
	reporter StatusReporter
	checks   map[string]Pinger
}

// NewRouter 运维接口：/healthz /status /metrics
func NewRouter(reporter StatusReporter, checks map[string]Pinger) *chi.Mux {
	h := &handler{reporter: reporter, checks: checks}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestLogger)
	r.Use(chimw.Recoverer)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", h.health)
	r.Get("/status", h.status)

	return r
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
	defer cancel()

	resp := healthResponse{Status: "ok"}
	code := http.StatusOK
	if len(h.checks) > 0 {
		resp.Checks = make(map[string]string, len(h.checks))
	}
	for name, check := range h.checks {
		if err := check.Ping(ctx); err != nil {
			resp.Checks[name] = "fail"
			resp.Status = "degraded"
			code = http.StatusServiceUnavailable
			logger.L().Warnf("Health check %s failed: %v", name, err)
			continue
		}
		resp.Checks[name] = "pass"
	}

	writeJSON(w, code, resp)
}

func (h *handler) status(w http.ResponseWriter, r *http.Request) {
	if h.reporter == nil {
		writeError(w, http.StatusServiceUnavailable, "relay not started")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
	defer cancel()

	report, err := h.reporter.Report(ctx)
	if err != nil {
		logger.L().Errorf("Failed to build status report: %v", err)
		writeError(w, http.StatusInternalServerError, "status unavailable")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func writeJSON(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.L().Warnf("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}

// Server 运维 HTTP 服务
type Server struct {
	srv *http.Server
}

func NewServer(addr string, handler http.Handler) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
	}
}

// Run 监听直到 ctx 取消，然后优雅关闭
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve 在给定 listener 上提供服务
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		logger.L().Infof("Ops HTTP server listening on %s", ln.Addr())
		errCh <- s.srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.L().Info("Ops HTTP server stopped")
	return nil
}

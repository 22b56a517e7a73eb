// Package health provides liveness and readiness probes.
//
// Docker and Kubernetes poll the HTTP endpoints; gRPC-aware load balancers
// use the standard grpc.health.v1 service. Both report NOT_SERVING until
// SetReady(true) is called once the models and index are loaded.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the gRPC health service name reported alongside the
// overall ("") status.
const ServiceName = "supportline"

// Server exposes /healthz and /readyz over HTTP and grpc.health.v1 over gRPC.
type Server struct {
	port     int
	grpcPort int
	ready    atomic.Bool

	server     *http.Server
	grpcServer *grpc.Server
	grpcHealth *grpchealth.Server
}

// New creates a health server. A zero grpcPort disables the gRPC endpoint.
func New(port, grpcPort int) *Server {
	s := &Server{
		port:       port,
		grpcPort:   grpcPort,
		grpcHealth: grpchealth.NewServer(),
	}
	s.SetReady(false)
	return s
}

// SetReady marks the service as ready to accept traffic.
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if ready {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.grpcHealth.SetServingStatus("", status)
	s.grpcHealth.SetServingStatus(ServiceName, status)
}

// Handler returns the HTTP probe handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Liveness only needs the process to answer.
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, "ok")
	})

	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if !s.ready.Load() {
			writeStatus(w, http.StatusServiceUnavailable, "not_ready")
			return
		}
		writeStatus(w, http.StatusOK, "ok")
	})
	return mux
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
}

// ListenAndServe starts the HTTP probe server.
// It blocks until the context is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	slog.Info("health server listening", "port", s.port)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("health server: %w", err)
	}
	return nil
}

// ServeGRPC starts the gRPC health and reflection server.
// It blocks until the context is cancelled.
func (s *Server) ServeGRPC(ctx context.Context) error {
	if s.grpcPort == 0 {
		return nil
	}
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.grpcPort))
	if err != nil {
		return fmt.Errorf("grpc health listen: %w", err)
	}
	return s.serveGRPC(ctx, lis)
}

func (s *Server) serveGRPC(ctx context.Context, lis net.Listener) error {
	s.grpcServer = grpc.NewServer()
	healthpb.RegisterHealthServer(s.grpcServer, s.grpcHealth)
	reflection.Register(s.grpcServer)

	slog.Info("grpc health server listening", "addr", lis.Addr().String())

	go func() {
		<-ctx.Done()
		s.grpcHealth.Shutdown()
		s.grpcServer.GracefulStop()
	}()

	if err := s.grpcServer.Serve(lis); err != nil && err != grpc.ErrServerStopped {
		return fmt.Errorf("grpc health server: %w", err)
	}
	return nil
}

// Package grpc runs the side listener that load balancers health-check. It serves
// grpc.health.v1.Health for the whole process ("") and for kshop.Shop, and
// answers NOT_SERVING while the database check fails.
//
//	srv, err := grpc.Start(config.GRPCPort(), database.Ping)
//	defer grpc.Stop(srv)
package grpc

import (
	"context"
	"fmt"
	"net"
	"runtime/debug"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"

	"github.com/shashiranjanraj/kashvi-shop/pkg/logger"
	"github.com/shashiranjanraj/kashvi-shop/pkg/metrics"
)

const (
	ServiceName = "kshop.Shop"

	maxMessageSize = 4 << 20
	watchInterval  = 5 * time.Second
	stopGrace      = 10 * time.Second
)

var (
	rpcHandled = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kshop", Subsystem: "grpc", Name: "handled_total",
		Help: "RPCs completed, by method and status code.",
	}, []string{"method", "code"})
	rpcSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "kshop", Subsystem: "grpc", Name: "handling_seconds",
		Help:    "RPC latency in seconds.",
		Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5},
	}, []string{"method"})
)

func init() {
	_ = metrics.Register(rpcHandled)
	_ = metrics.Register(rpcSeconds)
}

// Checker reports whether a dependency is usable.
type Checker func() error

// recoverUnary turns a handler panic into codes.Internal.
func recoverUnary(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (resp interface{}, err error) {
	defer func() {
		if v := recover(); v != nil {
			logger.Error("grpc: panic recovered", "method", info.FullMethod, "panic", v, "stack", string(debug.Stack()))
			err = status.Error(codes.Internal, "internal server error")
		}
	}()
	return next(ctx, req)
}

// observeUnary logs and measures every call.
func observeUnary(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (interface{}, error) {
	start := time.Now()
	resp, err := next(ctx, req)
	code := status.Code(err)

	rpcHandled.WithLabelValues(info.FullMethod, code.String()).Inc()
	rpcSeconds.WithLabelValues(info.FullMethod).Observe(time.Since(start).Seconds())
	logger.Debug("grpc: call", "method", info.FullMethod, "code", code.String(), "duration_ms", time.Since(start).Milliseconds())
	return resp, err
}

type healthServer struct {
	grpc_health_v1.UnimplementedHealthServer
	check    Checker
	interval time.Duration
}

// NewHealthServer answers health checks with check. A nil check is always SERVING.
func NewHealthServer(check Checker) grpc_health_v1.HealthServer {
	return &healthServer{check: check, interval: watchInterval}
}

func (h *healthServer) current() grpc_health_v1.HealthCheckResponse_ServingStatus {
	if h.check == nil {
		return grpc_health_v1.HealthCheckResponse_SERVING
	}
	if err := h.check(); err != nil {
		logger.Warn("grpc: health check failing", "error", err)
		return grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}
	return grpc_health_v1.HealthCheckResponse_SERVING
}

func known(service string) error {
	if service != "" && service != ServiceName {
		return status.Errorf(codes.NotFound, "unknown service %q", service)
	}
	return nil
}

func (h *healthServer) Check(_ context.Context, req *grpc_health_v1.HealthCheckRequest) (*grpc_health_v1.HealthCheckResponse, error) {
	if err := known(req.GetService()); err != nil {
		return nil, err
	}
	return &grpc_health_v1.HealthCheckResponse{Status: h.current()}, nil
}

// Watch sends the status immediately and again whenever it changes, until
// the client goes away. An unknown service is reported as SERVICE_UNKNOWN
// rather than failing the stream.
func (h *healthServer) Watch(req *grpc_health_v1.HealthCheckRequest, stream grpc_health_v1.Health_WatchServer) error {
	if known(req.GetService()) != nil {
		return stream.Send(&grpc_health_v1.HealthCheckResponse{Status: grpc_health_v1.HealthCheckResponse_SERVICE_UNKNOWN})
	}

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	last := grpc_health_v1.HealthCheckResponse_UNKNOWN
	for {
		if s := h.current(); s != last {
			if err := stream.Send(&grpc_health_v1.HealthCheckResponse{Status: s}); err != nil {
				return err
			}
			last = s
		}
		select {
		case <-stream.Context().Done():
			return status.FromContextError(stream.Context().Err()).Err()
		case <-ticker.C:
		}
	}
}

// NewServer builds the server with its interceptors and the health service,
// without listening.
func NewServer(check Checker) *grpc.Server {
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(recoverUnary, observeUnary),
		grpc.MaxRecvMsgSize(maxMessageSize),
		grpc.MaxSendMsgSize(maxMessageSize),
	)
	grpc_health_v1.RegisterHealthServer(srv, NewHealthServer(check))
	reflection.Register(srv)
	return srv
}

// Start listens on port and serves in the background.
func Start(port string, check Checker) (*grpc.Server, error) {
	lis, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return nil, fmt.Errorf("grpc: listen on :%s: %w", port, err)
	}
	srv := NewServer(check)
	logger.Info("grpc listening", "addr", lis.Addr().String())
	go func() {
		if err := srv.Serve(lis); err != nil {
			logger.Error("grpc: serve", "error", err)
		}
	}()
	return srv, nil
}

// Stop drains in-flight RPCs, then cuts off whatever is left after
// stopGrace; health Watch streams never end on their own. A nil server is
// ignored.
func Stop(srv *grpc.Server) {
	if srv == nil {
		return
	}
	drained := make(chan struct{})
	go func() {
		srv.GracefulStop()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(stopGrace):
		srv.Stop()
		<-drained
	}
	logger.Info("grpc stopped")
}

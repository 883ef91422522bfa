package rpc

import (
	"context"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"strategy-core/internal/events"
	"strategy-core/internal/strategy"
)

// StatusSource lists the strategies whose health is reported.
type StatusSource interface {
	List() []strategy.Info
}

// ServiceName is the health service name of one strategy.
func ServiceName(strategyID string) string {
	return "strategy." + strategyID
}

// HealthServer exposes grpc.health.v1 for the process ("") and for every
// registered strategy. Active strategies are SERVING, paused ones NOT_SERVING.
type HealthServer struct {
	srv    *grpc.Server
	health *health.Server
	source StatusSource
}

func NewHealthServer(source StatusSource) *HealthServer {
	h := &HealthServer{
		srv:    grpc.NewServer(),
		health: health.NewServer(),
		source: source,
	}
	healthpb.RegisterHealthServer(h.srv, h.health)
	h.Sync()
	return h
}

// Sync copies the current strategy statuses into the health table.
func (h *HealthServer) Sync() {
	h.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	for _, info := range h.source.List() {
		status := healthpb.HealthCheckResponse_SERVING
		if info.Status == strategy.StatusPaused {
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
		h.health.SetServingStatus(ServiceName(info.ID), status)
	}
}

// Follow re-syncs on every strategy status event until ctx is done.
func (h *HealthServer) Follow(ctx context.Context, bus *events.Bus) {
	ch, unsub := bus.Subscribe(events.EventStrategyStatus, 16)
	go func() {
		defer unsub()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-ch:
				if !ok {
					return
				}
				h.Sync()
			}
		}
	}()
}

// Serve blocks serving on lis.
func (h *HealthServer) Serve(lis net.Listener) error {
	return h.srv.Serve(lis)
}

// ListenAndServe binds addr and serves until Stop.
func (h *HealthServer) ListenAndServe(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return h.Serve(lis)
}

// Stop marks every service NOT_SERVING and drains open calls.
func (h *HealthServer) Stop() {
	h.health.Shutdown()
	h.srv.GracefulStop()
}

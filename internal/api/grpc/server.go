// Package grpcapi registers the service's gRPC surface: the standard health
// service and reflection.
package grpcapi

import (
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health-checked service name.
const ServiceName = "ai.voice.relay.VoiceRelay"

// Server tracks serving status for health checks.
type Server struct {
	health *health.Server
}

// Register installs health and reflection on g. The relay starts NOT_SERVING
// until SetServing is called.
func Register(g *grpc.Server) *Server {
	s := &Server{health: health.NewServer()}
	grpc_health_v1.RegisterHealthServer(g, s.health)
	reflection.Register(g)
	s.health.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	return s
}

// SetServing marks the process and the relay service as serving or not.
func (s *Server) SetServing(serving bool) {
	st := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if serving {
		st = grpc_health_v1.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
}

// Shutdown marks every service NOT_SERVING permanently.
func (s *Server) Shutdown() {
	s.health.Shutdown()
}

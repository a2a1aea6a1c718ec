// Package grpc runs the gRPC listener of the orchestration service. It
// exposes grpc.health.v1.Health for the server and for the
// carecoord.Orchestrator service.
package grpc

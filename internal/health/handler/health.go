// Package handler serves readiness for load balancers and Kubernetes, over HTTP and the standard gRPC health service.
package handler

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// checkTimeout bounds one readiness check.
const checkTimeout = 2 * time.Second

// Pinger checks database connectivity (e.g. *sql.DB).
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PolicyChecker checks that the policy engine can evaluate (e.g. OPA evaluator).
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// Checker reports readiness. A nil pinger or policy checker is skipped.
type Checker struct {
	pinger Pinger
	policy PolicyChecker
}

// NewChecker returns a Checker for the given dependencies.
func NewChecker(pinger Pinger, policy PolicyChecker) *Checker {
	return &Checker{pinger: pinger, policy: policy}
}

// Check returns the first failing dependency's error, or nil when ready.
func (c *Checker) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	if c.pinger != nil {
		if err := c.pinger.PingContext(ctx); err != nil {
			return err
		}
	}
	if c.policy != nil {
		if err := c.policy.HealthCheck(ctx); err != nil {
			return err
		}
	}
	return nil
}

// ServeHTTP implements GET /healthz: 200 {"status":"SERVING"} or 503 {"status":"NOT_SERVING"}.
// Dependency errors are logged, never returned to the caller.
func (c *Checker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	code, body := http.StatusOK, "SERVING"
	if err := c.Check(r.Context()); err != nil {
		log.Printf("health: not ready: %v", err)
		code, body = http.StatusServiceUnavailable, "NOT_SERVING"
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": body})
}

// SyncGRPC runs Check and publishes the result for the whole server ("") on hs.
// It is run periodically by the scheduler.
func (c *Checker) SyncGRPC(ctx context.Context, hs *health.Server) error {
	err := c.Check(ctx)
	st := healthpb.HealthCheckResponse_SERVING
	if err != nil {
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}
	hs.SetServingStatus("", st)
	return err
}

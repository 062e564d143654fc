package handlers

import (
	"context"
	"net/http"
	"time"

	"htmlpng/internal/httpkit"
	"htmlpng/internal/pkg/errors"
	"htmlpng/internal/pkg/logger"
)

const healthCheckTimeout = 5 * time.Second

// Health performs a health check of the service.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	health := map[string]any{
		"status":  "ok",
		"service": "htmlpng",
		"version": h.version,
	}

	status := http.StatusOK
	if r.URL.Query().Get("deep") == "true" {
		log := h.log.FromContext(ctx)
		checks, ok := h.deepHealthCheck(ctx, log)
		health["checks"] = checks
		if !ok {
			health["status"] = "degraded"
			status = errors.Unavailable("htmlpng").HTTPStatus()
			log.Warn("health check degraded", "checks", checks)
		}
	}

	httpkit.WriteJSON(w, status, health)
}

// deepHealthCheck probes every configured dependency.
func (h *Handler) deepHealthCheck(ctx context.Context, log *logger.Logger) (map[string]any, bool) {
	checks := make(map[string]any, len(h.checks))
	ok := true
	for _, c := range h.checks {
		result := runCheck(ctx, c, log)
		if result["status"] != "ok" {
			ok = false
		}
		checks[c.Name] = result
	}
	return checks, ok
}

// runCheck reports only the public message of a failure; the cause may carry
// connection strings and is logged instead.
func runCheck(ctx context.Context, c HealthCheck, log *logger.Logger) map[string]any {
	start := time.Now()
	result := map[string]any{
		"status": "ok",
	}

	checkCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	if err := c.Check(checkCtx); err != nil {
		unavailable := errors.Unavailable(c.Name)
		log.WithError(err).WithFields(unavailable.Fields).Warn("dependency check failed")
		result["status"] = "error"
		result["error"] = unavailable.Message
	}

	result["latency_ms"] = time.Since(start).Milliseconds()
	return result
}

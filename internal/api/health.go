package api

import (
	"context"
	"net/http"
	"time"
)

// Pinger checks connectivity to a backing service.
type Pinger func(ctx context.Context) error

// HealthHandler reports the health of the API and its backing services.
// Nil pingers mean the service is not configured and is skipped.
type HealthHandler struct {
	DBPing    Pinger
	RedisPing Pinger
}

type serviceStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type healthResponse struct {
	Status   string                   `json:"status"`
	Services map[string]serviceStatus `json:"services"`
}

func (h *HealthHandler) check(ctx context.Context, ping Pinger) serviceStatus {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := ping(ctx); err != nil {
		return serviceStatus{Status: "error", Message: err.Error()}
	}
	return serviceStatus{Status: "connected"}
}

// Health handles GET /api/v1/health — an aggregate check across all
// configured backing services.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status: "healthy",
		Services: map[string]serviceStatus{
			"api": {Status: "running"},
		},
	}

	if h.DBPing != nil {
		st := h.check(r.Context(), h.DBPing)
		resp.Services["postgresql"] = st
		if st.Status != "connected" {
			resp.Status = "unhealthy"
		}
	}
	if h.RedisPing != nil {
		st := h.check(r.Context(), h.RedisPing)
		resp.Services["redis"] = st
		if st.Status != "connected" {
			resp.Status = "unhealthy"
		}
	}

	status := http.StatusOK
	if resp.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// HealthDB handles GET /api/v1/health/db.
func (h *HealthHandler) HealthDB(w http.ResponseWriter, r *http.Request) {
	h.single(w, r, h.DBPing, "database")
}

// HealthRedis handles GET /api/v1/health/redis.
func (h *HealthHandler) HealthRedis(w http.ResponseWriter, r *http.Request) {
	h.single(w, r, h.RedisPing, "redis")
}

func (h *HealthHandler) single(w http.ResponseWriter, r *http.Request, ping Pinger, name string) {
	if ping == nil {
		writeError(w, name+" not configured", http.StatusServiceUnavailable)
		return
	}
	st := h.check(r.Context(), ping)
	if st.Status != "connected" {
		writeError(w, name+" unavailable: "+st.Message, http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

package handler

import (
	"encoding/json"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/palpitai/platform/internal/infra"
	"github.com/redis/go-redis/v9"
)

// HealthHandler returns a health check endpoint. rdb may be nil when Redis is disabled.
func HealthHandler(pool *pgxpool.Pool, rdb *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := infra.HealthCheck(r.Context(), pool); err != nil {
			unhealthy(w, "postgres", err)
			return
		}
		if rdb != nil {
			if err := rdb.Ping(r.Context()).Err(); err != nil {
				unhealthy(w, "redis", err)
				return
			}
		}
		json.NewEncoder(w).Encode(map[string]string{
			"status": "healthy",
		})
	}
}

func unhealthy(w http.ResponseWriter, component string, err error) {
	w.WriteHeader(http.StatusServiceUnavailable)
	json.NewEncoder(w).Encode(map[string]string{
		"status":    "unhealthy",
		"component": component,
		"error":     err.Error(),
	})
}

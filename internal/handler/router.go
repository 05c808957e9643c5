package handler

import (
	"net/http"

	"filesync-server/internal/config"
	"filesync-server/internal/middleware"
	"filesync-server/pkg/response"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

type Handlers struct {
	Devices    *DeviceHandler
	Sync       *SyncHandler
	Signatures *SignatureHandler
}

// NewRouter mounts the API under /api/v1 behind bearer authentication.
// /health stays public.
func NewRouter(h Handlers, jwtSecret string, cors config.CORSConfig, log logrus.FieldLogger) *mux.Router {
	r := mux.NewRouter()

	r.Use(middleware.LoggerMiddleware(log))
	r.Use(middleware.CORSMiddleware(
		cors.AllowedOrigins,
		cors.AllowedMethods,
		cors.AllowedHeaders,
	))

	r.HandleFunc("/health", healthHandler).Methods("GET")

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.AuthMiddleware(jwtSecret))

	api.HandleFunc("/devices", h.Devices.Register).Methods("POST", "OPTIONS")
	api.HandleFunc("/devices", h.Devices.List).Methods("GET", "OPTIONS")
	api.HandleFunc("/devices/{deviceId}/deactivate", h.Devices.Deactivate).Methods("POST", "OPTIONS")
	api.HandleFunc("/devices/{deviceId}", h.Devices.Remove).Methods("DELETE", "OPTIONS")

	api.HandleFunc("/sync", h.Sync.Sync).Methods("GET", "OPTIONS")
	api.HandleFunc("/sync/changes", h.Sync.RecordChange).Methods("POST", "OPTIONS")
	api.HandleFunc("/sync/conflicts", h.Sync.ListConflicts).Methods("GET", "OPTIONS")
	api.HandleFunc("/sync/conflicts/{id}", h.Sync.GetConflict).Methods("GET", "OPTIONS")
	api.HandleFunc("/sync/conflicts/{id}/resolve", h.Sync.ResolveConflict).Methods("POST", "OPTIONS")

	api.HandleFunc("/items/{itemId}/versions/{version}/signature", h.Signatures.Generate).Methods("GET", "OPTIONS")

	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	response.Success(w, map[string]string{"status": "healthy", "service": "filesync-server"})
}

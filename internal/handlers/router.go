package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/voltlink-io/onboardflow/internal/apperrors"
	"github.com/voltlink-io/onboardflow/internal/buildinfo"
	"github.com/voltlink-io/onboardflow/internal/config"
	"github.com/voltlink-io/onboardflow/internal/database"
	"github.com/voltlink-io/onboardflow/internal/erp"
	"github.com/voltlink-io/onboardflow/internal/events"
	"github.com/voltlink-io/onboardflow/internal/middleware"
	"github.com/voltlink-io/onboardflow/internal/repository"
	"github.com/voltlink-io/onboardflow/internal/schema"
	"github.com/voltlink-io/onboardflow/internal/workflow"
)

// Router wraps the mux router and the application services
type Router struct {
	*mux.Router
	db       *database.DB
	cfg      *config.Config
	engine   *workflow.Engine
	tasks    *repository.TaskRepository
	store    *schema.Store
	importer *erp.Importer
	hub      *events.Hub
}

// NewRouter creates a new HTTP router with all routes
func NewRouter(db *database.DB, cfg *config.Config, engine *workflow.Engine, tasks *repository.TaskRepository, store *schema.Store, importer *erp.Importer, hub *events.Hub) *Router {
	r := &Router{
		Router:   mux.NewRouter(),
		db:       db,
		cfg:      cfg,
		engine:   engine,
		tasks:    tasks,
		store:    store,
		importer: importer,
		hub:      hub,
	}

	// Health check endpoint
	r.HandleFunc("/health", r.healthCheck).Methods("GET")

	// Auth routes
	auth := r.PathPrefix("/auth").Subrouter()
	auth.HandleFunc("/login", r.login).Methods("POST")
	auth.HandleFunc("/register", r.register).Methods("POST")

	// Everything below requires a valid token
	api := r.PathPrefix("/api").Subrouter()
	api.Use(middleware.Auth(cfg.JWTSecret))

	api.HandleFunc("/status", r.getStatus).Methods("GET")

	// Task workflow routes
	api.HandleFunc("/tasks", r.createTask).Methods("POST")
	api.HandleFunc("/tasks", r.listTasks).Methods("GET")
	api.HandleFunc("/tasks/{id}", r.getTask).Methods("GET")
	api.HandleFunc("/tasks/{id}/status", r.updateStatus).Methods("PUT")
	api.HandleFunc("/tasks/{id}/assign", r.assignUser).Methods("PUT")
	api.HandleFunc("/tasks/{id}/sop", r.getSOPSnapshot).Methods("GET")
	api.HandleFunc("/tasks/{id}/labels", r.getLabelSheet).Methods("GET")
	api.HandleFunc("/tasks/{id}/devices/{deviceId}/qr", r.getDeviceQR).Methods("GET")

	// Per-product form definitions
	api.HandleFunc("/products/{id}/sop", r.getSOPDefinition).Methods("GET")
	api.HandleFunc("/products/{id}/sop", r.updateSOPDefinition).Methods("PUT")
	api.HandleFunc("/products/{id}/report-schema", r.getReportSchema).Methods("GET")
	api.HandleFunc("/products/{id}/report-schema", r.updateReportSchema).Methods("PUT")
	api.HandleFunc("/products/{id}/report-schema/validate", r.validateSubmission).Methods("POST")

	// Hardware catalog refresh from the ERP
	api.HandleFunc("/hardware/import", r.importHardware).Methods("POST")

	// Dashboard event stream
	r.HandleFunc("/ws/events", hub.HandleWS)

	return r
}

// healthCheck returns the health status of the API
func (r *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// getStatus returns the current status
func (r *Router) getStatus(w http.ResponseWriter, req *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":    "running",
		"commit":    buildinfo.CommitHash,
		"buildTime": buildinfo.BuildTime,
		"startedAt": buildinfo.StartTime,
	})
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

// respondAppError maps the error taxonomy onto HTTP status codes.
// ValidationFailed additionally carries the full structured result.
func respondAppError(w http.ResponseWriter, err error) {
	var notFound *apperrors.NotFoundError
	var conflict *apperrors.ConflictError
	var invalidState *apperrors.InvalidStateError
	var forbidden *apperrors.ForbiddenError
	var invalidTransition *apperrors.InvalidTransitionError
	var validationFailed *schema.ValidationFailedError

	switch {
	case errors.As(err, &notFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &conflict):
		respondError(w, http.StatusConflict, err.Error())
	case errors.As(err, &invalidState):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &forbidden):
		respondError(w, http.StatusForbidden, err.Error())
	case errors.As(err, &invalidTransition):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &validationFailed):
		respondJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"error":  err.Error(),
			"result": validationFailed.Result,
		})
	default:
		respondError(w, http.StatusInternalServerError, "Internal server error")
	}
}

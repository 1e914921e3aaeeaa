package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/voltlink-io/onboardflow/internal/schema"
)

// definitionResponse wraps a form definition with its version
type definitionResponse struct {
	Version int                `json:"version"`
	Fields  []schema.FormField `json:"fields"`
}

// getSOPDefinition returns the live SOP step list of a product
func (r *Router) getSOPDefinition(w http.ResponseWriter, req *http.Request) {
	fields, version, err := r.store.SOPDefinition(mux.Vars(req)["id"])
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, definitionResponse{Version: version, Fields: fields})
}

// updateSOPDefinition validates and stores a new SOP step list
func (r *Router) updateSOPDefinition(w http.ResponseWriter, req *http.Request) {
	var fields []schema.FormField
	if err := json.NewDecoder(req.Body).Decode(&fields); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	version, err := r.store.UpdateSOPDefinition(mux.Vars(req)["id"], fields)
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"version": version})
}

// getReportSchema returns the live report form definition of a product
func (r *Router) getReportSchema(w http.ResponseWriter, req *http.Request) {
	fields, version, err := r.store.ReportSchema(mux.Vars(req)["id"])
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, definitionResponse{Version: version, Fields: fields})
}

// updateReportSchema validates and stores a new report form definition
func (r *Router) updateReportSchema(w http.ResponseWriter, req *http.Request) {
	var fields []schema.FormField
	if err := json.NewDecoder(req.Body).Decode(&fields); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	version, err := r.store.UpdateReportSchema(mux.Vars(req)["id"], fields)
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"version": version})
}

// validateSubmission dry-runs a submission against the product's current
// report schema without persisting anything.
func (r *Router) validateSubmission(w http.ResponseWriter, req *http.Request) {
	var payload map[string]interface{}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	fields, _, err := r.store.ReportSchema(mux.Vars(req)["id"])
	if err != nil {
		respondAppError(w, err)
		return
	}

	validator := schema.NewValidator()
	result := validator.ValidateSubmission(fields, validator.Sanitize(payload))
	respondJSON(w, http.StatusOK, result)
}

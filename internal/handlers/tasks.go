package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/voltlink-io/onboardflow/internal/middleware"
	"github.com/voltlink-io/onboardflow/internal/models"
	"github.com/voltlink-io/onboardflow/internal/qr"
	"github.com/voltlink-io/onboardflow/internal/workflow"
)

// UpdateStatusRequest is the transition request body
type UpdateStatusRequest struct {
	Status  models.TaskStatus          `json:"status"`
	Payload workflow.TransitionPayload `json:"payload"`
}

// AssignRequest is the assignment request body
type AssignRequest struct {
	UserID string `json:"userId"`
}

// createTask opens a new onboarding task
func (r *Router) createTask(w http.ResponseWriter, req *http.Request) {
	var input workflow.CreateTaskInput
	if err := json.NewDecoder(req.Body).Decode(&input); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	task, err := r.engine.CreateTask(req.Context(), input)
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, task)
}

// listTasks returns tasks, optionally filtered by status and client
func (r *Router) listTasks(w http.ResponseWriter, req *http.Request) {
	status := models.TaskStatus(req.URL.Query().Get("status"))
	clientID := req.URL.Query().Get("clientId")

	tasks, err := r.tasks.List(req.Context(), status, clientID)
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, tasks)
}

// getTask returns one task with all relations
func (r *Router) getTask(w http.ResponseWriter, req *http.Request) {
	task, err := r.tasks.FindByID(req.Context(), mux.Vars(req)["id"])
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, task)
}

// updateStatus executes a workflow transition on behalf of the acting user
func (r *Router) updateStatus(w http.ResponseWriter, req *http.Request) {
	var body UpdateStatusRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if body.Status == "" {
		respondError(w, http.StatusBadRequest, "status is required")
		return
	}

	userID, role := middleware.ActingUser(req)
	task, err := r.engine.UpdateStatus(req.Context(), mux.Vars(req)["id"], body.Status, role, userID, body.Payload)
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, task)
}

// assignUser reassigns a task
func (r *Router) assignUser(w http.ResponseWriter, req *http.Request) {
	var body AssignRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body.UserID == "" {
		respondError(w, http.StatusBadRequest, "userId is required")
		return
	}

	task, err := r.engine.AssignUser(req.Context(), mux.Vars(req)["id"], body.UserID)
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, task)
}

// getSOPSnapshot returns the frozen SOP checklist of a task
func (r *Router) getSOPSnapshot(w http.ResponseWriter, req *http.Request) {
	fields, version, err := r.engine.GetSOPSnapshot(req.Context(), mux.Vars(req)["id"])
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"version": version,
		"steps":   fields,
	})
}

// getDeviceQR renders the stored QR payload of one device as PNG
func (r *Router) getDeviceQR(w http.ResponseWriter, req *http.Request) {
	vars := mux.Vars(req)
	task, err := r.tasks.FindByID(req.Context(), vars["id"])
	if err != nil {
		respondAppError(w, err)
		return
	}

	for _, device := range task.Devices {
		if device.ID != vars["deviceId"] {
			continue
		}
		if device.QRCode == models.QRCodePending {
			respondError(w, http.StatusConflict, "QR code has not been generated for this device yet")
			return
		}
		png, err := qr.RenderPNG(device.QRCode)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "Failed to render QR code")
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Content-Length", strconv.Itoa(len(png)))
		w.Write(png)
		return
	}
	respondError(w, http.StatusNotFound, "device not found on this task")
}

// getLabelSheet renders a printable A4 label PDF for a task's devices
func (r *Router) getLabelSheet(w http.ResponseWriter, req *http.Request) {
	task, err := r.tasks.FindByID(req.Context(), mux.Vars(req)["id"])
	if err != nil {
		respondAppError(w, err)
		return
	}

	pdfBytes, err := qr.GenerateLabelSheet(task, qr.DefaultLayout)
	if err != nil {
		respondError(w, http.StatusConflict, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"labels_%s.pdf\"", task.TaskNo))
	w.Header().Set("Content-Length", strconv.Itoa(len(pdfBytes)))
	w.Write(pdfBytes)
}

// importHardware refreshes the hardware catalog from the ERP
func (r *Router) importHardware(w http.ResponseWriter, req *http.Request) {
	_, role := middleware.ActingUser(req)
	if role != models.RoleAdmin {
		respondError(w, http.StatusForbidden, "catalog import requires the ADMIN role")
		return
	}
	if !r.importer.Configured() {
		respondError(w, http.StatusServiceUnavailable, "ERP endpoint not configured")
		return
	}

	count, err := r.importer.ImportHardware(req.Context())
	if err != nil {
		respondError(w, http.StatusBadGateway, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"imported": count})
}

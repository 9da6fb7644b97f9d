// Package http exposes the engine's in-process contract over a thin REST
// surface plus a websocket ranking feed. Handlers decode, call the service
// and map sentinel errors to status codes; no business logic lives here.
package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"osce-prep-service/internal/app"
	"osce-prep-service/internal/domain"
)

// actorHeader names the trusted upstream identity header. Authentication
// itself happens outside this service.
const actorHeader = "X-User-ID"

type APIHandler struct {
	service *app.PracticeService
}

func NewAPIHandler(service *app.PracticeService) *APIHandler {
	return &APIHandler{service: service}
}

// Register wires the REST routes onto the mux.
func (h *APIHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/attempts", h.startAttempt)
	mux.HandleFunc("POST /api/attempts/{id}/complete", h.completeAttempt)
	mux.HandleFunc("GET /api/users/{id}/performance", h.userPerformance)
	mux.HandleFunc("GET /api/users/{id}/specialties", h.userSpecialties)
	mux.HandleFunc("GET /api/users/{id}/recommendations", h.userRecommendations)
	mux.HandleFunc("GET /api/users/{id}/attempts", h.userRecentAttempts)
	mux.HandleFunc("GET /api/ranking", h.ranking)
	mux.HandleFunc("GET /api/specialties", h.listSpecialties)
	mux.HandleFunc("GET /api/specialties/{id}/scenarios", h.listSpecialtyScenarios)
	mux.HandleFunc("GET /api/scenarios", h.listScenarios)
	mux.HandleFunc("GET /api/scenarios/{id}/checklists", h.listScenarioChecklists)
	mux.HandleFunc("GET /api/checklists/{id}/items", h.listChecklistItems)
	mux.HandleFunc("GET /api/categories", h.listCategories)
}

type startAttemptRequest struct {
	ChecklistID int64 `json:"checklistId"`
}

func (h *APIHandler) startAttempt(w http.ResponseWriter, r *http.Request) {
	actor := r.Header.Get(actorHeader)
	if actor == "" {
		http.Error(w, "missing "+actorHeader+" header", http.StatusBadRequest)
		return
	}
	var req startAttemptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	attempt, err := h.service.StartAttempt(r.Context(), actor, req.ChecklistID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, attempt)
}

type completeAttemptRequest struct {
	Responses []domain.ItemResponse `json:"responses"`
}

func (h *APIHandler) completeAttempt(w http.ResponseWriter, r *http.Request) {
	actor := r.Header.Get(actorHeader)
	if actor == "" {
		http.Error(w, "missing "+actorHeader+" header", http.StatusBadRequest)
		return
	}
	attemptID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid attempt id", http.StatusBadRequest)
		return
	}
	var req completeAttemptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	result, err := h.service.CompleteAttempt(r.Context(), actor, attemptID, req.Responses)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *APIHandler) userPerformance(w http.ResponseWriter, r *http.Request) {
	metrics, err := h.service.GetUserPerformanceMetrics(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, metrics)
}

func (h *APIHandler) userSpecialties(w http.ResponseWriter, r *http.Request) {
	metrics, err := h.service.GetUserSpecialtyPerformance(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, metrics)
}

func (h *APIHandler) userRecommendations(w http.ResponseWriter, r *http.Request) {
	scenarios, err := h.service.GetUserRecommendations(r.Context(), r.PathValue("id"), limitParam(r, 5))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, scenarios)
}

func (h *APIHandler) userRecentAttempts(w http.ResponseWriter, r *http.Request) {
	attempts, err := h.service.GetUserRecentAttempts(r.Context(), r.PathValue("id"), limitParam(r, 10))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, attempts)
}

func (h *APIHandler) ranking(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.GetUserRanking(r.Context(), limitParam(r, 10))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *APIHandler) listSpecialties(w http.ResponseWriter, r *http.Request) {
	specialties, err := h.service.ListSpecialties(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, specialties)
}

func (h *APIHandler) listSpecialtyScenarios(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid specialty id", http.StatusBadRequest)
		return
	}
	scenarios, err := h.service.ListScenariosBySpecialty(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, scenarios)
}

func (h *APIHandler) listScenarios(w http.ResponseWriter, r *http.Request) {
	scenarios, err := h.service.ListScenarios(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, scenarios)
}

func (h *APIHandler) listScenarioChecklists(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid scenario id", http.StatusBadRequest)
		return
	}
	checklists, err := h.service.ListChecklistsByScenario(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, checklists)
}

func (h *APIHandler) listChecklistItems(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid checklist id", http.StatusBadRequest)
		return
	}
	items, err := h.service.GetChecklistItems(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *APIHandler) listCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.service.ListCategories(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, categories)
}

func limitParam(r *http.Request, fallback int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return fallback
	}
	return limit
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrAttemptNotFound),
		errors.Is(err, domain.ErrChecklistNotFound),
		errors.Is(err, domain.ErrScenarioNotFound),
		errors.Is(err, domain.ErrSpecialtyNotFound),
		errors.Is(err, domain.ErrUserNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrAttemptAlreadyCompleted):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, domain.ErrUnauthorized):
		http.Error(w, err.Error(), http.StatusForbidden)
	default:
		log.Printf("internal error: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

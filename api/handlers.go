package api

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/Santoshkurmi/pro-cache-testing/state"
)

// Handler exposes the internal HTTP API: credential registration and
// invalidation submission. Both callers are trusted internal services; the
// listener is expected to be bound to a non-public interface.
type Handler struct {
	svc *Service
}

// NewHandler creates the internal API handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Routes returns the internal API mux.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/register", h.RegisterToken)
	mux.HandleFunc("/invalidate", h.Invalidate)
	return mux
}

type registerTokenRequest struct {
	Token     string `json:"token"`
	UserID    string `json:"user_id"`
	ProjectID string `json:"project_id"`
	TTL       uint64 `json:"ttl"` // Seconds; zero means the default
}

// RegisterToken handles POST /auth/register.
func (h *Handler) RegisterToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req registerTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Token == "" || req.UserID == "" || req.ProjectID == "" {
		http.Error(w, "token, user_id and project_id are required", http.StatusBadRequest)
		return
	}

	h.svc.RegisterToken(req.Token, req.UserID, req.ProjectID, req.TTL)

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"message": "Token registered",
	})
}

type invalidateRequest struct {
	ProjectID string `json:"project_id"`
	Path      any    `json:"path"`  // string or number
	Paths     []any  `json:"paths"` // array of strings or numbers
	UserID    string `json:"user_id"`
}

// Invalidate handles POST /invalidate.
func (h *Handler) Invalidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// UseNumber keeps numeric route IDs in their decimal literal form so
	// the path 42 normalizes to "42" rather than a float rendering.
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()

	var req invalidateRequest
	if err := dec.Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.ProjectID == "" {
		http.Error(w, "No project_id provided", http.StatusBadRequest)
		return
	}

	var targetPaths []string
	if req.Path != nil {
		targetPaths = append(targetPaths, state.NormalizePath(req.Path))
	}
	for _, p := range req.Paths {
		targetPaths = append(targetPaths, state.NormalizePath(p))
	}
	if len(targetPaths) == 0 {
		http.Error(w, "No paths provided", http.StatusBadRequest)
		return
	}

	result, err := h.svc.Invalidate(req.ProjectID, targetPaths, req.UserID)
	if err != nil {
		log.Printf("Invalidation failed for project %s: %v", req.ProjectID, err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if result.ClockReset {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":     "clock_reset",
			"message":    "System clock drift detected. BROADCAST: Future invalidations issued.",
			"drift_time": result.DriftTime,
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "success",
		"broadcast_count": result.BroadcastCount,
		"affected_paths":  result.AffectedPaths,
		"timestamp":       result.Timestamp,
		"drift_time":      result.DriftTime,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("Failed to write response: %v", err)
	}
}

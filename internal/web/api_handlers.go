package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/evcraddock/carevisit/internal/auth"
	"github.com/evcraddock/carevisit/internal/visit"
)

// apiError writes a JSON error response.
func apiError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	resp := map[string]string{"error": msg}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, `{"error":"encode failed"}`, http.StatusInternalServerError)
	}
}

// apiJSON writes a JSON response with the given status code.
func apiJSON(w http.ResponseWriter, data interface{}, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, `{"error":"encode failed"}`, http.StatusInternalServerError)
	}
}

// apiFail maps a repository error onto a status code.
func apiFail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, visit.ErrNotFound):
		apiError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, visit.ErrInvalidTransition):
		apiError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, visit.ErrInvalid):
		apiError(w, err.Error(), http.StatusBadRequest)
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		apiError(w, "internal error", http.StatusInternalServerError)
	}
}

type checkRequest struct {
	Location *visit.Coordinate `json:"location"`
}

type meResponse struct {
	KeyID       string `json:"key_id,omitempty"`
	Name        string `json:"name,omitempty"`
	CaregiverID string `json:"caregiver_id"`
}

// handleMe reports which caregiver the caller's key belongs to.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		apiError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	key, ok := auth.KeyFromContext(r.Context())
	if !ok {
		apiJSON(w, meResponse{}, http.StatusOK)
		return
	}
	apiJSON(w, meResponse{KeyID: key.ID, Name: key.Name, CaregiverID: key.CaregiverID}, http.StatusOK)
}

// handleAPISchedules routes /api/schedules requests.
func (s *Server) handleAPISchedules(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/schedules")
	path = strings.TrimPrefix(path, "/")

	// /api/schedules (list)
	if path == "" {
		if r.Method != http.MethodGet {
			apiError(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.apiListSchedules(w, r)
		return
	}

	id, action, _ := strings.Cut(path, "/")
	if id == "" {
		apiError(w, "invalid schedule ID", http.StatusBadRequest)
		return
	}

	// /api/schedules/{id}
	if action == "" {
		if r.Method != http.MethodGet {
			apiError(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.apiGetSchedule(w, r, id)
		return
	}

	if r.Method != http.MethodPost {
		apiError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	switch action {
	case "checkin":
		s.apiCheck(w, r, id, s.visits.CheckIn)
	case "checkout":
		s.apiCheck(w, r, id, s.visits.CheckOut)
	case "cancel-checkin":
		s.apiCancelCheckIn(w, r, id)
	default:
		apiError(w, "not found", http.StatusNotFound)
	}
}

// handleAPITasks routes /api/tasks/{id}/update.
func (s *Server) handleAPITasks(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/tasks/")
	if !strings.HasSuffix(path, "/update") {
		apiError(w, "not found", http.StatusNotFound)
		return
	}
	id := strings.TrimSuffix(path, "/update")
	if id == "" || strings.Contains(id, "/") {
		apiError(w, "invalid task ID", http.StatusBadRequest)
		return
	}
	if r.Method != http.MethodPost {
		apiError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.apiUpdateTask(w, r, id)
}

// caregiverScope returns the caregiver the caller is limited to, or "" for
// unrestricted callers (dev mode, or keys not bound to a caregiver).
func caregiverScope(r *http.Request) string {
	if key, ok := auth.KeyFromContext(r.Context()); ok {
		return key.CaregiverID
	}
	return ""
}

// loadOwnedVisit reads a visit, hiding visits of other caregivers.
func (s *Server) loadOwnedVisit(r *http.Request, id string) (*visit.Visit, error) {
	v, err := s.visits.Get(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if scope := caregiverScope(r); scope != "" && v.CaregiverID != scope {
		return nil, fmt.Errorf("visit %s: %w", id, visit.ErrNotFound)
	}
	return v, nil
}

func (s *Server) apiListSchedules(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	caregiverID := q.Get("caregiver")
	if scope := caregiverScope(r); scope != "" {
		if caregiverID != "" && caregiverID != scope {
			apiError(w, "cannot list another caregiver's schedules", http.StatusForbidden)
			return
		}
		caregiverID = scope
	}
	if caregiverID == "" {
		apiError(w, "caregiver is required", http.StatusBadRequest)
		return
	}

	day := s.now().UTC()
	if ds := q.Get("date"); ds != "" {
		parsed, err := time.ParseInLocation(time.DateOnly, ds, time.UTC)
		if err != nil {
			apiError(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		day = parsed
	}

	visits, err := s.visits.ListForCaregiver(r.Context(), caregiverID, day)
	if err != nil {
		apiFail(w, r, err)
		return
	}
	if visits == nil {
		visits = []*visit.Visit{}
	}
	apiJSON(w, visits, http.StatusOK)
}

func (s *Server) apiGetSchedule(w http.ResponseWriter, r *http.Request, id string) {
	v, err := s.loadOwnedVisit(r, id)
	if err != nil {
		apiFail(w, r, err)
		return
	}
	apiJSON(w, v, http.StatusOK)
}

func (s *Server) apiCheck(w http.ResponseWriter, r *http.Request, id string,
	fn func(ctx context.Context, id string, at visit.Coordinate) (*visit.Transition, error)) {
	var body checkRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		apiError(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if body.Location == nil {
		apiError(w, "location is required", http.StatusBadRequest)
		return
	}
	if _, err := s.loadOwnedVisit(r, id); err != nil {
		apiFail(w, r, err)
		return
	}

	tr, err := fn(r.Context(), id, *body.Location)
	if err != nil {
		apiFail(w, r, err)
		return
	}
	zerolog.Ctx(r.Context()).Info().Str("visit_id", id).Str("status", string(tr.Status)).Msg("visit transition")
	apiJSON(w, tr, http.StatusOK)
}

func (s *Server) apiCancelCheckIn(w http.ResponseWriter, r *http.Request, id string) {
	if _, err := s.loadOwnedVisit(r, id); err != nil {
		apiFail(w, r, err)
		return
	}
	tr, err := s.visits.CancelCheckIn(r.Context(), id)
	if err != nil {
		apiFail(w, r, err)
		return
	}
	zerolog.Ctx(r.Context()).Info().Str("visit_id", id).Str("status", string(tr.Status)).Msg("visit transition")
	apiJSON(w, tr, http.StatusOK)
}

func (s *Server) apiUpdateTask(w http.ResponseWriter, r *http.Request, id string) {
	var upd visit.TaskUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		apiError(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if err := upd.Validate(); err != nil {
		apiFail(w, r, err)
		return
	}

	t, err := s.visits.GetTask(r.Context(), id)
	if err != nil {
		apiFail(w, r, err)
		return
	}
	if _, err := s.loadOwnedVisit(r, t.VisitID); err != nil {
		if errors.Is(err, visit.ErrNotFound) {
			apiError(w, "task "+id+": not found", http.StatusNotFound)
			return
		}
		apiFail(w, r, err)
		return
	}

	updated, err := s.visits.UpdateTask(r.Context(), id, upd)
	if err != nil {
		apiFail(w, r, err)
		return
	}
	apiJSON(w, updated, http.StatusOK)
}

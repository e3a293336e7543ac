package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/evcraddock/carevisit/internal/auth"
)

// apikeyHandlers lets a caregiver manage the keys bound to them, e.g. to
// issue a key for a new device and revoke the old one.
type apikeyHandlers struct {
	apiKeys *auth.APIKeyStore
}

type apiKeyResponse struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	CaregiverID string  `json:"caregiver_id"`
	KeyPrefix   string  `json:"key_prefix"`
	CreatedAt   string  `json:"created_at"`
	LastUsedAt  *string `json:"last_used_at,omitempty"`
}

type apiKeyCreateResponse struct {
	Key            string         `json:"key"` // raw key, shown once
	APIKeyResponse apiKeyResponse `json:"api_key"`
}

func toAPIKeyResponse(k auth.APIKey) apiKeyResponse {
	resp := apiKeyResponse{
		ID:          k.ID,
		Name:        k.Name,
		CaregiverID: k.CaregiverID,
		KeyPrefix:   k.KeyPrefix,
		CreatedAt:   k.CreatedAt.UTC().Format(time.RFC3339),
	}
	if k.LastUsedAt != nil {
		s := k.LastUsedAt.UTC().Format(time.RFC3339)
		resp.LastUsedAt = &s
	}
	return resp
}

// owns reports whether the caller may see and revoke k.
func owns(r *http.Request, k auth.APIKey) bool {
	scope := caregiverScope(r)
	return scope == "" || k.CaregiverID == scope
}

// handleCreateKey generates a new API key for the caller's caregiver.
func (h *apikeyHandlers) handleCreateKey(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		apiError(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	name := strings.TrimSpace(body.Name)
	if name == "" {
		name = "API Key"
	}

	rawKey, key, err := h.apiKeys.Create(r.Context(), name, caregiverScope(r))
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("creating api key")
		apiError(w, "internal error", http.StatusInternalServerError)
		return
	}

	apiJSON(w, apiKeyCreateResponse{Key: rawKey, APIKeyResponse: toAPIKeyResponse(*key)}, http.StatusCreated)
}

// handleListKeys returns the caller's API keys (without raw keys).
func (h *apikeyHandlers) handleListKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := h.apiKeys.List(r.Context())
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("listing api keys")
		apiError(w, "internal error", http.StatusInternalServerError)
		return
	}

	resp := make([]apiKeyResponse, 0, len(keys))
	for _, k := range keys {
		if owns(r, k) {
			resp = append(resp, toAPIKeyResponse(k))
		}
	}
	apiJSON(w, resp, http.StatusOK)
}

// handleDeleteKey revokes an API key.
func (h *apikeyHandlers) handleDeleteKey(w http.ResponseWriter, r *http.Request, id string) {
	keys, err := h.apiKeys.List(r.Context())
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("listing api keys")
		apiError(w, "internal error", http.StatusInternalServerError)
		return
	}
	found := false
	for _, k := range keys {
		if k.ID == id && owns(r, k) {
			found = true
			break
		}
	}
	if !found {
		apiError(w, "key not found", http.StatusNotFound)
		return
	}

	if err := h.apiKeys.Delete(r.Context(), id); err != nil {
		if errors.Is(err, auth.ErrKeyNotFound) {
			apiError(w, "key not found", http.StatusNotFound)
			return
		}
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("deleting api key")
		apiError(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleAPIKeysRoute routes /api/keys and /api/keys/{id}.
func (h *apikeyHandlers) handleAPIKeysRoute(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/keys")
	path = strings.TrimPrefix(path, "/")

	// /api/keys (no trailing path)
	if path == "" {
		switch r.Method {
		case http.MethodGet:
			h.handleListKeys(w, r)
		case http.MethodPost:
			h.handleCreateKey(w, r)
		default:
			apiError(w, "method not allowed", http.StatusMethodNotAllowed)
		}
		return
	}

	// /api/keys/{id}
	if r.Method == http.MethodDelete {
		h.handleDeleteKey(w, r, path)
		return
	}

	apiError(w, "method not allowed", http.StatusMethodNotAllowed)
}

package web

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
)

func TestAPIKeysCreateAndList(t *testing.T) {
	srv, token := testAPIServer(t)
	if _, _, err := srv.apiKeys.Create(context.Background(), "someone else", "cg-2"); err != nil {
		t.Fatalf("create: %v", err)
	}

	w := apiRequest(t, srv, "POST", "/api/keys", token, map[string]string{"name": "Tablet"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", w.Code, w.Body.String())
	}
	var created apiKeyCreateResponse
	if err := json.NewDecoder(w.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.Key == "" || created.APIKeyResponse.CaregiverID != "cg-1" {
		t.Errorf("created = %+v", created)
	}

	// The new key works.
	if w := apiRequest(t, srv, "GET", "/api/me", created.Key, nil); w.Code != http.StatusOK {
		t.Errorf("new key: status = %d", w.Code)
	}

	w = apiRequest(t, srv, "GET", "/api/keys", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	var keys []apiKeyResponse
	if err := json.NewDecoder(w.Body).Decode(&keys); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("got %d keys, want 2 (own keys only)", len(keys))
	}
	for _, k := range keys {
		if k.CaregiverID != "cg-1" {
			t.Errorf("listed foreign key %+v", k)
		}
	}
}

func TestAPIKeysCreateDefaultName(t *testing.T) {
	srv, token := testAPIServer(t)
	w := apiRequest(t, srv, "POST", "/api/keys", token, map[string]string{})
	var created apiKeyCreateResponse
	if err := json.NewDecoder(w.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.APIKeyResponse.Name != "API Key" {
		t.Errorf("name = %q", created.APIKeyResponse.Name)
	}
}

func TestAPIKeysDelete(t *testing.T) {
	srv, token := testAPIServer(t)
	ctx := context.Background()
	_, own, err := srv.apiKeys.Create(ctx, "old phone", "cg-1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	_, foreign, err := srv.apiKeys.Create(ctx, "other", "cg-2")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if w := apiRequest(t, srv, "DELETE", "/api/keys/"+foreign.ID, token, nil); w.Code != http.StatusNotFound {
		t.Errorf("foreign delete status = %d, want 404", w.Code)
	}
	if w := apiRequest(t, srv, "DELETE", "/api/keys/"+own.ID, token, nil); w.Code != http.StatusNoContent {
		t.Errorf("delete status = %d, want 204", w.Code)
	}
	if w := apiRequest(t, srv, "DELETE", "/api/keys/"+own.ID, token, nil); w.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", w.Code)
	}
	if w := apiRequest(t, srv, "PUT", "/api/keys/"+own.ID, token, nil); w.Code != http.StatusMethodNotAllowed {
		t.Errorf("put status = %d, want 405", w.Code)
	}
}

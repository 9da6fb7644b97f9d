package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"osce-prep-service/internal/app"
	"osce-prep-service/internal/domain"
	"osce-prep-service/internal/infra/memory"
)

func newTestServer(t *testing.T) (*httptest.Server, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	store.AddUser(domain.User{ID: "u1"})
	store.AddUser(domain.User{ID: "u2"})
	store.AddSpecialty(domain.Specialty{ID: 1, Name: "Pediatrics", Code: "PED"})
	store.AddScenario(domain.Scenario{ID: 1, Title: "Febrile infant", SpecialtyID: 1, Difficulty: "medium"})
	store.AddChecklist(domain.Checklist{ID: 1, Title: "Workup", ScenarioID: 1}, []domain.ChecklistItem{
		{ID: 1, ChecklistID: 1, CategoryID: 1, Weight: 1},
		{ID: 2, ChecklistID: 1, CategoryID: 1, Weight: 1},
	})

	service := app.NewPracticeService(store, store, store, store)
	mux := http.NewServeMux()
	NewAPIHandler(service).Register(mux)
	mux.HandleFunc("/ws/ranking", NewRankingWSHandler(service).ServeWS)

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, store
}

func doJSON(t *testing.T, method, url, actor string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if actor != "" {
		req.Header.Set(actorHeader, actor)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	return resp
}

func TestAttemptFlow(t *testing.T) {
	server, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPost, server.URL+"/api/attempts", "u1", startAttemptRequest{ChecklistID: 1})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("start attempt: status %d", resp.StatusCode)
	}
	var attempt domain.Attempt
	if err := json.NewDecoder(resp.Body).Decode(&attempt); err != nil {
		t.Fatalf("decode attempt: %v", err)
	}
	resp.Body.Close()

	completeURL := fmt.Sprintf("%s/api/attempts/%d/complete", server.URL, attempt.ID)
	resp = doJSON(t, http.MethodPost, completeURL, "u1", completeAttemptRequest{
		Responses: []domain.ItemResponse{
			{ChecklistItemID: 1, Completed: true},
			{ChecklistItemID: 2, Completed: false},
		},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("complete attempt: status %d", resp.StatusCode)
	}
	var result app.CompletionResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	resp.Body.Close()
	if result.Score != 5.0 {
		t.Fatalf("expected score 5.0, got %v", result.Score)
	}

	// Re-completing is a conflict.
	resp = doJSON(t, http.MethodPost, completeURL, "u1", completeAttemptRequest{})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 on re-completion, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Ranking reflects the completion.
	resp = doJSON(t, http.MethodGet, server.URL+"/api/ranking?limit=5", "", nil)
	var ranking []domain.User
	if err := json.NewDecoder(resp.Body).Decode(&ranking); err != nil {
		t.Fatalf("decode ranking: %v", err)
	}
	resp.Body.Close()
	if len(ranking) == 0 || ranking[0].ID != "u1" || ranking[0].Rank != 1 {
		t.Fatalf("expected u1 ranked first, got %+v", ranking)
	}
}

func TestCompleteAttemptAuthorization(t *testing.T) {
	server, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPost, server.URL+"/api/attempts", "u1", startAttemptRequest{ChecklistID: 1})
	var attempt domain.Attempt
	_ = json.NewDecoder(resp.Body).Decode(&attempt)
	resp.Body.Close()

	completeURL := fmt.Sprintf("%s/api/attempts/%d/complete", server.URL, attempt.ID)
	resp = doJSON(t, http.MethodPost, completeURL, "u2", completeAttemptRequest{})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for non-owner, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestUnknownAttemptIs404(t *testing.T) {
	server, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPost, server.URL+"/api/attempts/999/complete", "u1", completeAttemptRequest{})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestContentEndpoints(t *testing.T) {
	server, _ := newTestServer(t)

	resp := doJSON(t, http.MethodGet, server.URL+"/api/specialties", "", nil)
	var specialties []domain.Specialty
	if err := json.NewDecoder(resp.Body).Decode(&specialties); err != nil {
		t.Fatalf("decode specialties: %v", err)
	}
	resp.Body.Close()
	if len(specialties) != 1 || specialties[0].Code != "PED" {
		t.Fatalf("unexpected specialties: %+v", specialties)
	}

	resp = doJSON(t, http.MethodGet, server.URL+"/api/specialties/1/scenarios", "", nil)
	var scenarios []domain.Scenario
	if err := json.NewDecoder(resp.Body).Decode(&scenarios); err != nil {
		t.Fatalf("decode scenarios: %v", err)
	}
	resp.Body.Close()
	if len(scenarios) != 1 || scenarios[0].ID != 1 {
		t.Fatalf("unexpected scenarios: %+v", scenarios)
	}

	resp = doJSON(t, http.MethodGet, server.URL+"/api/scenarios/1/checklists", "", nil)
	var checklists []domain.Checklist
	if err := json.NewDecoder(resp.Body).Decode(&checklists); err != nil {
		t.Fatalf("decode checklists: %v", err)
	}
	resp.Body.Close()
	if len(checklists) != 1 || checklists[0].ID != 1 {
		t.Fatalf("unexpected checklists: %+v", checklists)
	}

	resp = doJSON(t, http.MethodGet, server.URL+"/api/checklists/1/items", "", nil)
	var items []domain.ChecklistItem
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		t.Fatalf("decode items: %v", err)
	}
	resp.Body.Close()
	if len(items) != 2 {
		t.Fatalf("unexpected items: %+v", items)
	}

	resp = doJSON(t, http.MethodGet, server.URL+"/api/specialties/99/scenarios", "", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown specialty, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestRecommendationsEndpoint(t *testing.T) {
	server, _ := newTestServer(t)

	resp := doJSON(t, http.MethodGet, server.URL+"/api/users/u1/recommendations?limit=2", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("recommendations: status %d", resp.StatusCode)
	}
	var scenarios []domain.Scenario
	if err := json.NewDecoder(resp.Body).Decode(&scenarios); err != nil {
		t.Fatalf("decode scenarios: %v", err)
	}
	resp.Body.Close()
	if len(scenarios) != 1 || scenarios[0].ID != 1 {
		t.Fatalf("expected the single unattempted scenario, got %+v", scenarios)
	}
}

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/wadjakorntonsri/go-safelink/pkg/adapters/content"
	"github.com/wadjakorntonsri/go-safelink/pkg/adapters/handler"
	"github.com/wadjakorntonsri/go-safelink/pkg/adapters/repository/sqlite"
	"github.com/wadjakorntonsri/go-safelink/pkg/config"
	"github.com/wadjakorntonsri/go-safelink/pkg/core/services"
)

func TestIntegration(t *testing.T) {
	// 1. Setup DB (ModernC sqlite supports shared in-memory databases)
	dbURL := "file:memdb1?mode=memory&cache=shared"
	repo, err := sqlite.NewSQLiteRepository(dbURL)
	if err != nil {
		t.Fatalf("Failed to init db: %v", err)
	}
	defer repo.Close()

	// 2. Setup Services
	cfg := config.Default()
	cfg.BaseURL = "http://safelink.test"
	cfg.ContentURLs = []string{"https://content.example.com/a"}

	clicks := services.NewClickAccountant(repo, nil, 1, 16)
	service := services.NewLinkService(repo, clicks, cfg.BaseURL)

	// 3. Setup Router
	mux := handler.NewRouter(cfg, service, clicks, content.FromConfig(cfg), nil, nil)

	server := httptest.NewServer(mux)
	defer server.Close()

	client := server.Client()
	// Don't follow redirects automatically to check status codes
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}

	// TEST 1: Issue Link
	body, _ := json.Marshal(map[string]string{"originalUrl": "https://example.com"})
	resp, err := client.Post(server.URL+"/links", "application/json", bytes.NewBuffer(body))
	if err != nil {
		t.Fatalf("Failed JSON POST: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	var issued struct {
		Token    string `json:"token"`
		SafeLink string `json:"safelink"`
	}
	json.NewDecoder(resp.Body).Decode(&issued)
	resp.Body.Close()
	if issued.Token == "" {
		t.Fatal("Token is empty")
	}
	if issued.SafeLink != cfg.BaseURL+"/s/"+issued.Token {
		t.Errorf("Unexpected safelink %s", issued.SafeLink)
	}

	// TEST 2: Invalid destination
	resp, err = client.Post(server.URL+"/links", "application/json", strings.NewReader(`{"originalUrl":""}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Empty url expected 400, got %d", resp.StatusCode)
	}

	// TEST 3: Gateway page
	resp, err = client.Get(server.URL + "/s/" + issued.Token)
	if err != nil {
		t.Fatal(err)
	}
	page, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Gateway page expected 200, got %d", resp.StatusCode)
	}
	if !strings.Contains(string(page), issued.Token) {
		t.Error("Gateway page does not carry the token")
	}

	// TEST 4: Handshake, twice
	for i := 0; i < 2; i++ {
		resp, err = client.Get(server.URL + "/links/" + issued.Token + "/handshake?action=start")
		if err != nil {
			t.Fatal(err)
		}
		var ack struct {
			Success bool `json:"success"`
		}
		json.NewDecoder(resp.Body).Decode(&ack)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK || !ack.Success {
			t.Errorf("Handshake %d expected 200 success, got %d", i+1, resp.StatusCode)
		}
	}
	first, err := repo.Get(context.Background(), issued.Token)
	if err != nil {
		t.Fatal(err)
	}
	if first.FirstViewedAt == nil {
		t.Fatal("Expected first view to be recorded")
	}

	// TEST 5: Redirect
	resp, err = client.Get(server.URL + "/links/" + issued.Token)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusFound {
		t.Errorf("Redirect expected 302, got %d", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != "https://example.com" {
		t.Errorf("Redirect location mismatch: %s", loc)
	}

	// TEST 6: Unknown token
	resp, err = client.Get(server.URL + "/links/doesnotexist")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Unknown token expected 404, got %d", resp.StatusCode)
	}

	// TEST 7: Operator API requires auth
	resp, err = client.Get(server.URL + "/api/v1/links/" + issued.Token)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Lookup without cookie expected 401, got %d", resp.StatusCode)
	}

	// TEST 8: Clicks recorded once the queue drains
	clicks.Close()
	link, err := repo.Get(context.Background(), issued.Token)
	if err != nil {
		t.Fatal(err)
	}
	if link.Clicks != 1 {
		t.Errorf("Expected 1 click, got %d", link.Clicks)
	}
	if !link.FirstViewedAt.Equal(*first.FirstViewedAt) {
		t.Errorf("First view moved from %v to %v", first.FirstViewedAt, link.FirstViewedAt)
	}

	// TEST 9: Export (Dump)
	links, err := repo.Dump(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(links) != 1 {
		t.Errorf("Expected 1 link in dump, got %d", len(links))
	}
}

package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fathomlab/fathom/domain"
)

func TestClientFetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/fetch" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		var req struct {
			Capability string `json:"capability"`
			Query      string `json:"query"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Capability != "web.search" || req.Query != "golang" {
			t.Fatalf("unexpected request: %+v", req)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"records":[{"title":"Go","body":"a language","source":"web.search","confidence":0.95}]}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second)
	records, err := client.Fetch(context.Background(), domain.TaskSpec{Capability: "web.search", Query: "golang"})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(records) != 1 || records[0].Title != "Go" {
		t.Fatalf("unexpected records: %+v", records)
	}
}

func TestClientFetchError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		fmt.Fprint(w, `upstream unavailable`)
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second)
	_, err := client.Fetch(context.Background(), domain.TaskSpec{Capability: "web.search", Query: "golang"})
	if err == nil {
		t.Fatalf("expected error")
	}
}

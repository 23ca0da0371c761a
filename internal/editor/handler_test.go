package editor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kalmarr/matrixcbs/internal/autosave"
	"github.com/kalmarr/matrixcbs/internal/repository/draft"
)

func newTestServer(t *testing.T) (*httptest.Server, *autosave.Registry) {
	t.Helper()

	store := draft.NewMemoryStore()
	registry := autosave.NewRegistry(store, autosave.Options{
		Debounce: 10 * time.Millisecond,
		Interval: time.Hour,
		Enabled:  true,
	}, nil)
	t.Cleanup(registry.Shutdown)

	h := NewHandler(registry, store)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/editor/sessions", h.ServeOpenSession)
	mux.HandleFunc("POST /api/drafts/{key}", h.ServeObserve)
	mux.HandleFunc("POST /api/drafts/{key}/save", h.ServeSaveNow)
	mux.HandleFunc("GET /api/drafts/{key}", h.ServeGetDraft)
	mux.HandleFunc("GET /api/drafts/{key}/status", h.ServeStatus)
	mux.HandleFunc("DELETE /api/drafts/{key}", h.ServeDiscard)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, registry
}

func TestOpenSession(t *testing.T) {
	srv, _ := newTestServer(t)

	t.Run("existing post keys by post id", func(t *testing.T) {
		res, err := http.Post(srv.URL+"/api/editor/sessions", "application/json", strings.NewReader(`{"post_id":42}`))
		if err != nil {
			t.Fatal(err)
		}
		defer res.Body.Close()

		var body map[string]string
		if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
			t.Fatal(err)
		}
		if body["key"] != "42" {
			t.Errorf("Expected key '42', got %q", body["key"])
		}
	})

	t.Run("new document gets a fresh key and cookie", func(t *testing.T) {
		res, err := http.Post(srv.URL+"/api/editor/sessions", "application/json", strings.NewReader(`{}`))
		if err != nil {
			t.Fatal(err)
		}
		defer res.Body.Close()

		var body map[string]string
		if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
			t.Fatal(err)
		}
		if body["key"] == "" || body["key"] == "42" {
			t.Errorf("Expected a fresh draft key, got %q", body["key"])
		}

		found := false
		for _, c := range res.Cookies() {
			if c.Name == "draft-key" && c.Value == body["key"] {
				found = true
			}
		}
		if !found {
			t.Error("Expected the draft key cookie to be set")
		}
	})
}

func TestObserveAndAutosave(t *testing.T) {
	srv, _ := newTestServer(t)

	res, err := http.Post(srv.URL+"/api/drafts/7", "application/json",
		strings.NewReader(`{"title":"T","body":"hello","excerpt":"e","post_id":7}`))
	if err != nil {
		t.Fatal(err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusAccepted {
		t.Fatalf("Expected 202 Accepted, got %d", res.StatusCode)
	}

	// The debounced save lands in the store.
	deadline := time.Now().Add(2 * time.Second)
	for {
		res, err := http.Get(srv.URL + "/api/drafts/7")
		if err != nil {
			t.Fatal(err)
		}
		if res.StatusCode == http.StatusOK {
			var d struct {
				Title string `json:"title"`
				Body  string `json:"body"`
			}
			if err := json.NewDecoder(res.Body).Decode(&d); err != nil {
				t.Fatal(err)
			}
			res.Body.Close()
			if d.Body != "hello" {
				t.Errorf("Expected saved body 'hello', got %q", d.Body)
			}
			break
		}
		res.Body.Close()
		if time.Now().After(deadline) {
			t.Fatal("Draft never reached the store")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestExplicitSaveAndStatus(t *testing.T) {
	srv, _ := newTestServer(t)

	res, _ := http.Post(srv.URL+"/api/drafts/9", "application/json",
		strings.NewReader(`{"title":"x","body":"y"}`))
	res.Body.Close()

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/drafts/9/save", nil)
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200 from explicit save, got %d", res.StatusCode)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		res, err = http.Get(srv.URL + "/api/drafts/9/status")
		if err != nil {
			t.Fatal(err)
		}
		var st autosave.Status
		if err := json.NewDecoder(res.Body).Decode(&st); err != nil {
			t.Fatal(err)
		}
		res.Body.Close()
		if !st.Dirty && st.Saved != nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("Expected clean saved status, got %+v", st)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStatusUnknownKey(t *testing.T) {
	srv, _ := newTestServer(t)

	res, err := http.Get(srv.URL + "/api/drafts/nope/status")
	if err != nil {
		t.Fatal(err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown session, got %d", res.StatusCode)
	}
}

func TestDiscard(t *testing.T) {
	srv, registry := newTestServer(t)

	// Build up a saved draft first.
	res, _ := http.Post(srv.URL+"/api/drafts/5", "application/json",
		strings.NewReader(`{"body":"bye"}`))
	res.Body.Close()
	c, _ := registry.Lookup("5")
	c.SaveNow(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for {
		res, _ := http.Get(srv.URL + "/api/drafts/5")
		res.Body.Close()
		if res.StatusCode == http.StatusOK {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("Draft never saved")
		}
		time.Sleep(5 * time.Millisecond)
	}

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/drafts/5", nil)
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("Expected 204 from discard, got %d", res.StatusCode)
	}

	// The draft is gone and the session forgotten.
	res, _ = http.Get(srv.URL + "/api/drafts/5")
	res.Body.Close()
	if res.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 after discard, got %d", res.StatusCode)
	}
	if _, ok := registry.Lookup("5"); ok {
		t.Error("Expected the coordinator to be closed after discard")
	}

	t.Run("discarding a nonexistent draft is not found", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/drafts/never", nil)
		res, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		res.Body.Close()
		if res.StatusCode != http.StatusNotFound {
			t.Errorf("Expected 404, got %d", res.StatusCode)
		}
	})
}

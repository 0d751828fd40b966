package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

func TestIsGPT5(t *testing.T) {
	tests := []struct {
		name  string
		model string
		want  bool
	}{
		{name: "gpt5", model: "gpt-5", want: true},
		{name: "gpt5 variant", model: "gpt-5-mini", want: true},
		{name: "gpt5 uppercase", model: " GPT-5o ", want: true},
		{name: "gpt4", model: "gpt-4o", want: false},
		{name: "empty", model: "", want: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := isGPT5(tt.model); got != tt.want {
				t.Fatalf("isGPT5(%q) = %v, want %v", tt.model, got, tt.want)
			}
		})
	}
}

type recorder struct {
	mu     sync.Mutex
	bodies []map[string]any
}

func (r *recorder) add(t *testing.T, req *http.Request) int {
	t.Helper()
	defer req.Body.Close()
	var payload map[string]any
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		t.Errorf("decode request: %v", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bodies = append(r.bodies, payload)
	return len(r.bodies)
}

func useServer(t *testing.T, h http.HandlerFunc) {
	t.Helper()
	server := httptest.NewServer(h)
	oldURL := apiURL
	apiURL = server.URL
	t.Cleanup(func() {
		apiURL = oldURL
		server.Close()
	})
}

func TestCompleteSendsPromptAsJSONObjectRequest(t *testing.T) {
	rec := &recorder{}
	useServer(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", got)
		}
		rec.add(t, r)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":" {\"summary\":\"s\"} "}}]}`))
	})

	client, err := NewClient("test-key", "gpt-4o-mini")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	out, err := client.Complete(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != `{"summary":"s"}` {
		t.Fatalf("unexpected content %q", out)
	}

	body := rec.bodies[0]
	if body["model"] != "gpt-4o-mini" {
		t.Fatalf("unexpected model %v", body["model"])
	}
	if _, ok := body["temperature"]; !ok {
		t.Fatalf("expected temperature to be set")
	}
	format, _ := body["response_format"].(map[string]any)
	if format["type"] != "json_object" {
		t.Fatalf("unexpected response_format %v", body["response_format"])
	}
	msgs, _ := body["messages"].([]any)
	if len(msgs) != 1 {
		t.Fatalf("expected one message, got %v", body["messages"])
	}
}

func TestCompleteOmitsTemperatureForGPT5(t *testing.T) {
	rec := &recorder{}
	useServer(t, func(w http.ResponseWriter, r *http.Request) {
		rec.add(t, r)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{}"}}]}`))
	})

	client, err := NewClient("test-key", "gpt-5-mini")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if _, err := client.Complete(context.Background(), "hello"); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if _, ok := rec.bodies[0]["temperature"]; ok {
		t.Fatalf("expected temperature to be omitted")
	}
}

func TestCompleteRetriesWithoutTemperature(t *testing.T) {
	rec := &recorder{}
	useServer(t, func(w http.ResponseWriter, r *http.Request) {
		n := rec.add(t, r)
		if n == 1 {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"message":"Unsupported value: 'temperature' does not support 0.2 with this model.","type":"invalid_request_error"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{}"}}]}`))
	})

	client, err := NewClient("test-key", "o4-mini")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if _, err := client.Complete(context.Background(), "hello"); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if len(rec.bodies) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(rec.bodies))
	}
	if _, ok := rec.bodies[1]["temperature"]; ok {
		t.Fatalf("expected retry to omit temperature")
	}
}

func TestCompleteHTTPErrorIncludesStatus(t *testing.T) {
	useServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`upstream busy`))
	})

	client, err := NewClient("test-key", "gpt-4o-mini")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	_, err = client.Complete(context.Background(), "hello")
	if err == nil || !strings.Contains(err.Error(), "openai http status 503") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestNewClientValidates(t *testing.T) {
	if _, err := NewClient("", "gpt-4o"); err == nil {
		t.Fatalf("expected error for missing key")
	}
	if _, err := NewClient("k", " "); err == nil {
		t.Fatalf("expected error for missing model")
	}
}

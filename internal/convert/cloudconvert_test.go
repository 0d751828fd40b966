package convert

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestServer(t *testing.T, exportStatus string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	var srv *httptest.Server

	mux.HandleFunc("/v2/jobs", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer key-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var body struct {
			Tasks map[string]map[string]any `json:"tasks"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode job: %v", err)
		}
		imp := body.Tasks["import-file"]
		decoded, _ := base64.StdEncoding.DecodeString(fmt.Sprint(imp["file"]))
		if string(decoded) != "legacy-doc" {
			t.Errorf("unexpected import payload %q", decoded)
		}
		if body.Tasks["convert-file"]["output_format"] != "docx" {
			t.Errorf("expected docx output format")
		}
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"data":{"id":"job-1","status":"waiting"}}`)
	})
	mux.HandleFunc("/sync/v2/jobs/job-1", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"data":{"id":"job-1","status":"finished","tasks":[
			{"name":"import-file","operation":"import/base64","status":"finished"},
			{"name":"convert-file","operation":"convert","status":"finished"},
			{"name":"export-file","operation":"export/url","status":%q,"result":{"files":[{"filename":"input.docx","url":"%s/files/input.docx"}]}}
		]}}`, exportStatus, srv.URL)
	})
	mux.HandleFunc("/files/input.docx", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "PK-docx-bytes")
	})

	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestConvertDocToDocx(t *testing.T) {
	srv := newTestServer(t, "finished")
	client, err := NewClient("key-1", WithBaseURLs(srv.URL+"/v2", srv.URL+"/sync/v2"), WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	out, err := client.ConvertDocToDocx(context.Background(), []byte("legacy-doc"))
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if string(out) != "PK-docx-bytes" {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestConvertDocToDocxExportFailure(t *testing.T) {
	srv := newTestServer(t, "error")
	client, err := NewClient("key-1", WithBaseURLs(srv.URL+"/v2", srv.URL+"/sync/v2"), WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.ConvertDocToDocx(context.Background(), []byte("legacy-doc")); !errors.Is(err, ErrJobFailed) {
		t.Fatalf("expected ErrJobFailed, got %v", err)
	}
}

func TestNewClientRequiresKey(t *testing.T) {
	if _, err := NewClient("  "); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

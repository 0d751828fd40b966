package convert

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultAPIBaseURL  = "https://api.cloudconvert.com/v2"
	defaultSyncBaseURL = "https://sync.api.cloudconvert.com/v2"
	defaultTimeout     = 90 * time.Second
	maxOutputBytes     = 64 << 20
)

var (
	ErrNotConfigured = errors.New("cloudconvert api key not configured")
	ErrJobFailed     = errors.New("cloudconvert job failed")
)

// Client converts legacy Word documents through the CloudConvert jobs API.
type Client struct {
	apiKey      string
	apiBaseURL  string
	syncBaseURL string
	httpClient  *http.Client
}

// Option customizes a Client.
type Option func(*Client)

// WithBaseURLs points the client at alternative API and sync endpoints.
func WithBaseURLs(apiBaseURL, syncBaseURL string) Option {
	return func(c *Client) {
		c.apiBaseURL = strings.TrimRight(apiBaseURL, "/")
		c.syncBaseURL = strings.TrimRight(syncBaseURL, "/")
	}
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient constructs a CloudConvert client.
func NewClient(apiKey string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrNotConfigured
	}
	c := &Client{
		apiKey:      strings.TrimSpace(apiKey),
		apiBaseURL:  defaultAPIBaseURL,
		syncBaseURL: defaultSyncBaseURL,
		httpClient:  &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type jobTask struct {
	Name      string          `json:"name"`
	Operation string          `json:"operation"`
	Status    string          `json:"status"`
	Message   string          `json:"message,omitempty"`
	Result    *jobTaskResult  `json:"result,omitempty"`
}

type jobTaskResult struct {
	Files []struct {
		Filename string `json:"filename"`
		URL      string `json:"url,omitempty"`
		File     string `json:"file,omitempty"`
	} `json:"files"`
}

type jobEnvelope struct {
	Data struct {
		ID     string    `json:"id"`
		Status string    `json:"status"`
		Tasks  []jobTask `json:"tasks"`
	} `json:"data"`
	Message string `json:"message,omitempty"`
}

// ConvertDocToDocx uploads data as input.doc, converts it to DOCX and downloads the result.
func (c *Client) ConvertDocToDocx(ctx context.Context, data []byte) ([]byte, error) {
	tasks := map[string]any{
		"import-file": map[string]any{
			"operation": "import/base64",
			"file":      base64.StdEncoding.EncodeToString(data),
			"filename":  "input.doc",
		},
		"convert-file": map[string]any{
			"operation":     "convert",
			"input":         []string{"import-file"},
			"input_format":  "doc",
			"output_format": "docx",
		},
		"export-file": map[string]any{
			"operation": "export/url",
			"input":     []string{"convert-file"},
		},
	}
	payload, err := json.Marshal(map[string]any{"tasks": tasks, "tag": "docvault"})
	if err != nil {
		return nil, err
	}

	var created jobEnvelope
	if err := c.doJSON(ctx, http.MethodPost, c.apiBaseURL+"/jobs", payload, &created); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	if created.Data.ID == "" {
		return nil, fmt.Errorf("%w: missing job id", ErrJobFailed)
	}

	var finished jobEnvelope
	if err := c.doJSON(ctx, http.MethodGet, c.syncBaseURL+"/jobs/"+created.Data.ID, nil, &finished); err != nil {
		return nil, fmt.Errorf("wait job %s: %w", created.Data.ID, err)
	}

	for _, t := range finished.Data.Tasks {
		if t.Status == "error" {
			return nil, fmt.Errorf("%w: task %s: %s", ErrJobFailed, t.Name, t.Message)
		}
	}
	for _, t := range finished.Data.Tasks {
		if t.Name != "export-file" {
			continue
		}
		if t.Status != "finished" || t.Result == nil || len(t.Result.Files) == 0 {
			return nil, fmt.Errorf("%w: export task status=%s", ErrJobFailed, t.Status)
		}
		file := t.Result.Files[0]
		if file.File != "" {
			return base64.StdEncoding.DecodeString(file.File)
		}
		return c.download(ctx, file.URL)
	}
	return nil, fmt.Errorf("%w: export task missing", ErrJobFailed)
}

func (c *Client) doJSON(ctx context.Context, method, url string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("cloudconvert status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("cloudconvert response parse: %w", err)
	}
	return nil
}

func (c *Client) download(ctx context.Context, url string) ([]byte, error) {
	if url == "" {
		return nil, fmt.Errorf("%w: export url missing", ErrJobFailed)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download export: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download export: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxOutputBytes+1))
	if err != nil {
		return nil, fmt.Errorf("download export: %w", err)
	}
	if len(data) > maxOutputBytes {
		return nil, fmt.Errorf("download export: exceeds %d bytes", maxOutputBytes)
	}
	return data, nil
}

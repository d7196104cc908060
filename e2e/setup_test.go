package e2e

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"assetbank/internal/config"
	"assetbank/internal/logger"
	"assetbank/internal/server"
)

// TestServer wraps a running assetbank server for testing
type TestServer struct {
	Server *httptest.Server
	App    *server.App
	URL    string
}

// StartTestServer creates a new test server with isolated roots and database
func StartTestServer(t *testing.T) *TestServer {
	t.Helper()

	dir := t.TempDir()
	cfg := &config.Config{
		DatabasePath: filepath.Join(dir, "assetbank.db"),
		Roots: config.Roots{
			Models: map[string][]string{
				"checkpoints": {filepath.Join(dir, "models", "checkpoints")},
				"loras":       {filepath.Join(dir, "models", "loras")},
			},
			Input:  []string{filepath.Join(dir, "input")},
			Output: []string{filepath.Join(dir, "output")},
		},
	}
	cfg.ApplyDefaults()

	log := logger.NewLogger("ERROR") // Suppress logs in tests
	app, err := server.NewApp(cfg, log)
	if err != nil {
		t.Fatalf("failed to create app: %v", err)
	}

	srv := server.NewServer(app, ":0")
	httpServer := httptest.NewServer(srv.Handler())

	ts := &TestServer{
		Server: httpServer,
		App:    app,
		URL:    httpServer.URL,
	}
	t.Cleanup(func() {
		httpServer.Close()
		app.Close()
	})
	return ts
}

// Helper methods for API calls

func (ts *TestServer) GET(path string) (*http.Response, error) {
	return http.Get(ts.URL + path)
}

func (ts *TestServer) POST(path string, body interface{}) (*http.Response, error) {
	jsonBody, _ := json.Marshal(body)
	return http.Post(ts.URL+path, "application/json", bytes.NewReader(jsonBody))
}

func (ts *TestServer) PUT(path string, body interface{}) (*http.Response, error) {
	jsonBody, _ := json.Marshal(body)
	req, err := http.NewRequest("PUT", ts.URL+path, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return http.DefaultClient.Do(req)
}

func (ts *TestServer) DELETE(path string) (*http.Response, error) {
	req, err := http.NewRequest("DELETE", ts.URL+path, nil)
	if err != nil {
		return nil, err
	}
	return http.DefaultClient.Do(req)
}

// UploadFile posts a multipart asset upload. Any empty field is omitted.
func (ts *TestServer) UploadFile(filename string, content []byte, fields map[string]string) (*http.Response, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	if content != nil {
		part, err := writer.CreateFormFile("file", filename)
		if err != nil {
			return nil, err
		}
		part.Write(content)
	}
	for k, v := range fields {
		if v != "" {
			writer.WriteField(k, v)
		}
	}
	writer.Close()

	req, _ := http.NewRequest("POST", ts.URL+"/api/assets", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return http.DefaultClient.Do(req)
}

// UploadFileExpectSuccess uploads and returns the parsed response, fails test on error
func (ts *TestServer) UploadFileExpectSuccess(t *testing.T, filename string, content []byte, fields map[string]string) AssetResponse {
	t.Helper()
	resp, err := ts.UploadFile(filename, content, fields)
	if err != nil {
		t.Fatalf("upload request failed: %v", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read upload response: %v", err)
	}
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		t.Fatalf("upload failed with status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var uploadResp AssetResponse
	if err := json.Unmarshal(bodyBytes, &uploadResp); err != nil {
		t.Fatalf("failed to parse upload response: %v", err)
	}
	// New content answers 201, deduplicated content 200.
	wantStatus := http.StatusOK
	if uploadResp.CreatedNew {
		wantStatus = http.StatusCreated
	}
	if resp.StatusCode != wantStatus {
		t.Fatalf("upload status = %d with created_new=%v", resp.StatusCode, uploadResp.CreatedNew)
	}
	return uploadResp
}

// GetJSON fetches a path and decodes its JSON body, failing on non-200
func (ts *TestServer) GetJSON(t *testing.T, path string, target interface{}) {
	t.Helper()
	resp, err := ts.GET(path)
	if err != nil {
		t.Fatalf("GET %s failed: %v", path, err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s failed with status %d: %s", path, resp.StatusCode, string(bodyBytes))
	}
	if err := json.Unmarshal(bodyBytes, target); err != nil {
		t.Fatalf("failed to parse response from %s: %v", path, err)
	}
}

// Seed triggers a blocking hashing scan over the given roots and fails the
// test unless it completes.
func (ts *TestServer) Seed(t *testing.T, roots ...string) {
	t.Helper()
	body := map[string]interface{}{"compute_hashes": true}
	if len(roots) > 0 {
		body["roots"] = roots
	}
	resp, err := ts.POST("/api/assets/seed?wait=true", body)
	if err != nil {
		t.Fatalf("seed request failed: %v", err)
	}
	defer resp.Body.Close()

	bodyBytes, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("seed failed with status %d: %s", resp.StatusCode, string(bodyBytes))
	}
	var seedResp struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(bodyBytes, &seedResp); err != nil {
		t.Fatalf("failed to parse seed response: %v", err)
	}
	if seedResp.Status != "completed" {
		t.Fatalf("seed status = %q: %s", seedResp.Status, string(bodyBytes))
	}
}

// WriteRootFile places a file under a configured root directory
func (ts *TestServer) WriteRootFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// WaitFor polls a condition until it returns true or timeout is reached
func WaitFor(t *testing.T, timeout time.Duration, condition func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for: %s", msg)
}

// Response shapes shared across the e2e tests

type AssetResponse struct {
	ID             string                 `json:"id"`
	Name           string                 `json:"name"`
	AssetHash      *string                `json:"asset_hash"`
	Size           *int64                 `json:"size"`
	MimeType       *string                `json:"mime_type"`
	Tags           []string               `json:"tags"`
	UserMetadata   map[string]interface{} `json:"user_metadata"`
	PreviewID      *string                `json:"preview_id"`
	CreatedNew     bool                   `json:"created_new"`
	LastAccessTime time.Time              `json:"last_access_time"`
}

type AssetListResponse struct {
	Assets  []AssetResponse `json:"assets"`
	Total   int             `json:"total"`
	HasMore bool            `json:"has_more"`
}

type TagListResponse struct {
	Tags []struct {
		Name  string `json:"name"`
		Type  string `json:"type"`
		Count int    `json:"count"`
	} `json:"tags"`
	Total   int  `json:"total"`
	HasMore bool `json:"has_more"`
}

type ErrorResponse struct {
	Error struct {
		Code    string                 `json:"code"`
		Message string                 `json:"message"`
		Details map[string]interface{} `json:"details"`
	} `json:"error"`
}

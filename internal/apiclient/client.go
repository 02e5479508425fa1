package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// maxBodyBytes caps how much of a backend response we are willing to read.
	maxBodyBytes = 4 << 20 // 4 MiB

	defaultTimeout = 60 * time.Second
)

// Client is a thin HTTP client for the RAG document backend.
//
// It translates the backend's four operations (chat, upload, list, delete)
// plus the health probe into requests and normalizes success and failure
// shapes. It holds no conversation or document state of its own.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// New builds a client for the given backend base URL (no trailing slash).
func New(baseURL string, timeout time.Duration) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return nil, errors.New("missing backend base url")
	}
	u, err := url.Parse(base)
	if err != nil || strings.TrimSpace(u.Scheme) == "" || strings.TrimSpace(u.Host) == "" {
		return nil, fmt.Errorf("invalid backend base url %q", baseURL)
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    base,
	}, nil
}

type ChatRequest struct {
	Question  string `json:"question"`
	SessionID string `json:"session_id,omitempty"`
	Model     string `json:"model"`
}

type ChatResponse struct {
	Answer    string `json:"answer"`
	SessionID string `json:"session_id"`
	Model     string `json:"model"`
}

type UploadResponse struct {
	Message string `json:"message"`
	FileID  string `json:"file_id"`
}

type DocumentInfo struct {
	FileID          string `json:"file_id"`
	Filename        string `json:"filename"`
	UploadTimestamp string `json:"upload_timestamp,omitempty"`
}

type DeleteResponse struct {
	Message string `json:"message"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Chat sends one question and returns the backend's answer. When SessionID is
// empty the backend starts a new session and returns its id.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return ChatResponse{}, &TransportError{Op: "encode chat request", Err: err}
	}

	var out ChatResponse
	if err := c.do(ctx, http.MethodPost, "/chat", "application/json", bytes.NewReader(body), &out); err != nil {
		return ChatResponse{}, err
	}
	return out, nil
}

// UploadDocument streams one file to the backend as a multipart form.
// Extension validation happens upstream; the client does not second-guess
// content beyond what the caller accepted.
func (c *Client) UploadDocument(ctx context.Context, filename string, data io.Reader) (UploadResponse, error) {
	filename = strings.TrimSpace(filename)
	if filename == "" {
		return UploadResponse{}, &ValidationError{Message: "missing filename"}
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return UploadResponse{}, &TransportError{Op: "build upload form", Err: err}
	}
	if _, err := io.Copy(part, data); err != nil {
		return UploadResponse{}, &TransportError{Op: "read upload content", Err: err}
	}
	if err := mw.Close(); err != nil {
		return UploadResponse{}, &TransportError{Op: "build upload form", Err: err}
	}

	var out UploadResponse
	if err := c.do(ctx, http.MethodPost, "/upload-docs", mw.FormDataContentType(), &buf, &out); err != nil {
		return UploadResponse{}, err
	}
	return out, nil
}

// ListDocuments returns the backend's authoritative document list.
func (c *Client) ListDocuments(ctx context.Context) ([]DocumentInfo, error) {
	var out []DocumentInfo
	if err := c.do(ctx, http.MethodGet, "/list-docs", "", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteDocument removes one document by its server-assigned id. An empty id
// fails locally; no request is made.
func (c *Client) DeleteDocument(ctx context.Context, fileID string) (DeleteResponse, error) {
	fileID = strings.TrimSpace(fileID)
	if fileID == "" {
		return DeleteResponse{}, &ValidationError{Message: "file id is required to delete a document"}
	}

	var out DeleteResponse
	if err := c.do(ctx, http.MethodDelete, "/delete-docs/"+url.PathEscape(fileID), "", nil, &out); err != nil {
		return DeleteResponse{}, err
	}
	return out, nil
}

// Health probes the backend's health endpoint.
func (c *Client) Health(ctx context.Context) (HealthResponse, error) {
	var out HealthResponse
	if err := c.do(ctx, http.MethodGet, "/health", "", nil, &out); err != nil {
		return HealthResponse{}, err
	}
	return out, nil
}

// errorBody is the backend's structured error shape: FastAPI uses {detail},
// some deployments use {message}.
type errorBody struct {
	Detail  string `json:"detail"`
	Message string `json:"message"`
}

func (c *Client) do(ctx context.Context, method string, path string, contentType string, body io.Reader, out any) error {
	if ctx == nil {
		ctx = context.Background()
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return &TransportError{Op: method + " " + path, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{Op: method + " " + path, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return &TransportError{Op: method + " " + path, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &RemoteError{
			StatusCode: resp.StatusCode,
			Message:    remoteErrorMessage(resp.StatusCode, raw),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &TransportError{Op: method + " " + path, Err: fmt.Errorf("invalid response body: %w", err)}
	}
	return nil
}

func remoteErrorMessage(statusCode int, raw []byte) string {
	var decoded errorBody
	if err := json.Unmarshal(raw, &decoded); err == nil {
		if msg := strings.TrimSpace(decoded.Detail); msg != "" {
			return msg
		}
		if msg := strings.TrimSpace(decoded.Message); msg != "" {
			return msg
		}
	}
	if text := http.StatusText(statusCode); text != "" {
		return text
	}
	return fmt.Sprintf("API error (status %d)", statusCode)
}

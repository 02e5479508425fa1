package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(srv.URL, 5*time.Second)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c, srv
}

func TestClient_Chat(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/chat" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var req ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Question != "What is this document about?" {
			t.Errorf("question = %q", req.Question)
		}
		if req.SessionID != "" {
			t.Errorf("session_id = %q, want empty", req.SessionID)
		}
		_ = json.NewEncoder(w).Encode(ChatResponse{
			Answer:    "It is a manual.",
			SessionID: "s1",
			Model:     "gemini-2.5-flash-lite",
		})
	}))

	resp, err := c.Chat(context.Background(), ChatRequest{
		Question: "What is this document about?",
		Model:    "gemini-2.5-flash-lite",
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Answer != "It is a manual." {
		t.Fatalf("Answer = %q", resp.Answer)
	}
	if resp.SessionID != "s1" {
		t.Fatalf("SessionID = %q, want s1", resp.SessionID)
	}
}

func TestClient_Chat_remoteErrorDetail(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"detail":"Unsupported file type."}`))
	}))

	_, err := c.Chat(context.Background(), ChatRequest{Question: "q", Model: "m"})
	var re *RemoteError
	if !errors.As(err, &re) {
		t.Fatalf("err = %v, want RemoteError", err)
	}
	if re.StatusCode != http.StatusBadRequest {
		t.Fatalf("StatusCode = %d, want 400", re.StatusCode)
	}
	if re.Message != "Unsupported file type." {
		t.Fatalf("Message = %q", re.Message)
	}
}

func TestClient_Chat_remoteErrorFallsBackToStatusText(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("<html>boom</html>"))
	}))

	_, err := c.Chat(context.Background(), ChatRequest{Question: "q", Model: "m"})
	var re *RemoteError
	if !errors.As(err, &re) {
		t.Fatalf("err = %v, want RemoteError", err)
	}
	if re.Message != "Internal Server Error" {
		t.Fatalf("Message = %q, want status text", re.Message)
	}
}

func TestClient_UploadDocument(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/upload-docs" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		f, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer f.Close()
		if header.Filename != "a.pdf" {
			t.Errorf("filename = %q, want a.pdf", header.Filename)
		}
		_ = json.NewEncoder(w).Encode(UploadResponse{
			Message: "File a.pdf successfully uploaded and indexed.",
			FileID:  "17",
		})
	}))

	resp, err := c.UploadDocument(context.Background(), "a.pdf", strings.NewReader("%PDF-1.4"))
	if err != nil {
		t.Fatalf("UploadDocument: %v", err)
	}
	if resp.FileID != "17" {
		t.Fatalf("FileID = %q, want 17", resp.FileID)
	}
}

func TestClient_ListDocuments(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/list-docs" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		_, _ = w.Write([]byte(`[{"file_id":"1","filename":"a.pdf"},{"file_id":"2","filename":"b.docx"}]`))
	}))

	docs, err := c.ListDocuments(context.Background())
	if err != nil {
		t.Fatalf("ListDocuments: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("len(docs) = %d, want 2", len(docs))
	}
	if docs[0].FileID != "1" || docs[0].Filename != "a.pdf" {
		t.Fatalf("docs[0] = %+v", docs[0])
	}
}

func TestClient_DeleteDocument_emptyIDNeverHitsNetwork(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))

	_, err := c.DeleteDocument(context.Background(), "  ")
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	if n := calls.Load(); n != 0 {
		t.Fatalf("backend calls = %d, want 0", n)
	}
}

func TestClient_DeleteDocument(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete || r.URL.Path != "/delete-docs/42" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(DeleteResponse{Message: "Successfully deleted document with file_id 42."})
	}))

	resp, err := c.DeleteDocument(context.Background(), "42")
	if err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}
	if !strings.Contains(resp.Message, "42") {
		t.Fatalf("Message = %q", resp.Message)
	}
}

func TestClient_TransportError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	c, err := New(srv.URL, time.Second)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	srv.Close()

	_, err = c.ListDocuments(context.Background())
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("err = %v, want TransportError", err)
	}
}

func TestNew_rejectsBadBaseURL(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"", "   ", "not a url", "/relative/only"} {
		if _, err := New(raw, time.Second); err == nil {
			t.Fatalf("New(%q): want error", raw)
		}
	}
}

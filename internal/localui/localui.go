// Package localui serves the client's browser UI on the loopback interface:
// a single embedded page plus a JSON API over the chat session, the document
// set, and the settings store.
package localui

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/above-avg/YourOwnRAG/internal/apiclient"
	"github.com/above-avg/YourOwnRAG/internal/config"
	"github.com/above-avg/YourOwnRAG/internal/docs"
	"github.com/above-avg/YourOwnRAG/internal/session"
	"github.com/above-avg/YourOwnRAG/internal/settings"
)

//go:embed index.html
var indexHTML []byte

// maxUploadBytes bounds one multipart upload request.
const maxUploadBytes = 64 << 20

// HealthChecker reports whether the backend is reachable.
type HealthChecker interface {
	Health(ctx context.Context) (apiclient.HealthResponse, error)
}

type Options struct {
	Logger *slog.Logger
	Port   int

	Session  *session.Manager
	Docs     *docs.Orchestrator
	Settings *settings.Store
	Health   HealthChecker
	Models   *config.ModelCatalog

	// Version is the client build version, shown in the UI footer.
	Version string
}

type Server struct {
	log     *slog.Logger
	port    int
	version string

	session  *session.Manager
	docs     *docs.Orchestrator
	settings *settings.Store
	health   HealthChecker
	models   *config.ModelCatalog

	ln4 net.Listener
	ln6 net.Listener
	srv *http.Server
}

func New(opts Options) (*Server, error) {
	if opts.Session == nil {
		return nil, errors.New("missing Session")
	}
	if opts.Docs == nil {
		return nil, errors.New("missing Docs")
	}
	if opts.Settings == nil {
		return nil, errors.New("missing Settings")
	}
	if opts.Health == nil {
		return nil, errors.New("missing Health")
	}
	port := opts.Port
	if port == 0 {
		port = config.DefaultLocalUIPort
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("invalid Port: %d", port)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	models := opts.Models
	if models == nil {
		models = config.DefaultModelCatalog()
	}

	return &Server{
		log:      logger,
		port:     port,
		version:  strings.TrimSpace(opts.Version),
		session:  opts.Session,
		docs:     opts.Docs,
		settings: opts.Settings,
		health:   opts.Health,
		models:   models,
	}, nil
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/api/local/state", s.handleState)
	mux.HandleFunc("/api/local/chat/send", s.handleChatSend)
	mux.HandleFunc("/api/local/chat/clear", s.handleChatClear)
	mux.HandleFunc("/api/local/docs", s.handleDocs)
	mux.HandleFunc("/api/local/docs/upload", s.handleDocsUpload)
	mux.HandleFunc("/api/local/docs/", s.handleDocsDelete)
	mux.HandleFunc("/api/local/settings", s.handleSettings)
	mux.HandleFunc("/api/local/settings/reset", s.handleSettingsReset)
	mux.HandleFunc("/api/local/health", s.handleHealth)
	return mux
}

func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if s.srv != nil {
		return nil
	}

	addr4 := net.JoinHostPort("127.0.0.1", fmt.Sprintf("%d", s.port))
	ln4, err := net.Listen("tcp", addr4)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr4, err)
	}
	addr6 := net.JoinHostPort("::1", fmt.Sprintf("%d", s.port))
	ln6, err := net.Listen("tcp", addr6)
	if err != nil {
		_ = ln4.Close()
		return fmt.Errorf("listen %s: %w", addr6, err)
	}

	s.srv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.ln4 = ln4
	s.ln6 = ln6

	go func() {
		<-ctx.Done()
		_ = s.Close()
	}()

	go func() {
		if err := s.srv.Serve(ln4); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("local ui server stopped (ipv4)", "error", err)
		}
	}()
	go func() {
		if err := s.srv.Serve(ln6); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("local ui server stopped (ipv6)", "error", err)
		}
	}()

	s.log.Info("local ui listening", "port", s.port)
	return nil
}

func (s *Server) Close() error {
	if s == nil {
		return nil
	}
	if s.srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(ctx)
	}
	if s.ln4 != nil {
		_ = s.ln4.Close()
	}
	if s.ln6 != nil {
		_ = s.ln6.Close()
	}
	s.srv = nil
	s.ln4 = nil
	s.ln6 = nil
	return nil
}

func (s *Server) Port() int {
	if s == nil {
		return 0
	}
	return s.port
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	var ve *apiclient.ValidationError
	if errors.As(err, &ve) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": ve.Message})
		return
	}
	var re *apiclient.RemoteError
	if errors.As(err, &re) {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": re.Message})
		return
	}
	writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(indexHTML)
}

type stateResp struct {
	SessionID string                   `json:"session_id"`
	Sending   bool                     `json:"sending"`
	History   []session.Message        `json:"history"`
	InFlight  []docs.Task              `json:"in_flight"`
	Documents []apiclient.DocumentInfo `json:"documents"`
	Settings  settings.Settings        `json:"settings"`
	Models    []config.Model           `json:"models"`
	Version   string                   `json:"version,omitempty"`
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, stateResp{
		SessionID: s.session.SessionID(),
		Sending:   s.session.Sending(),
		History:   s.session.History(),
		InFlight:  s.docs.InFlight(),
		Documents: s.docs.Documents(),
		Settings:  s.settings.Current(),
		Models:    s.models.Models,
		Version:   s.version,
	})
}

type chatSendReq struct {
	Question string `json:"question"`
}

type chatSendResp struct {
	Accepted bool             `json:"accepted"`
	Reply    *session.Message `json:"reply,omitempty"`
}

func (s *Server) handleChatSend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req chatSendReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	reply, sent := s.session.Send(r.Context(), req.Question)
	if !sent {
		// Blank question or a send already in flight; no state changed.
		writeJSON(w, http.StatusOK, chatSendResp{Accepted: false})
		return
	}
	writeJSON(w, http.StatusOK, chatSendResp{Accepted: true, Reply: &reply})
}

func (s *Server) handleChatClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.session.Clear()
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *Server) handleDocs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if r.URL.Query().Has("refresh") {
		if err := s.docs.Refresh(r.Context()); err != nil {
			writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, s.docs.Filter(r.URL.Query().Get("query")))
}

type uploadResultResp struct {
	Filename string `json:"filename"`
	FileID   string `json:"file_id,omitempty"`
	Error    string `json:"error,omitempty"`
}

func (s *Server) handleDocsUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		http.Error(w, "invalid multipart form", http.StatusBadRequest)
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		http.Error(w, "no files", http.StatusBadRequest)
		return
	}

	inputs := make([]docs.FileInput, 0, len(headers))
	for _, h := range headers {
		f, err := h.Open()
		if err != nil {
			http.Error(w, "unreadable file part", http.StatusBadRequest)
			return
		}
		defer f.Close()
		inputs = append(inputs, docs.FileInput{Name: h.Filename, Data: f})
	}

	results := s.docs.Submit(r.Context(), inputs)
	out := make([]uploadResultResp, len(results))
	for i, res := range results {
		out[i] = uploadResultResp{Filename: res.Filename, FileID: res.FileID}
		if res.Err != nil {
			out[i].Error = res.Err.Error()
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDocsDelete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	fileID := strings.TrimPrefix(r.URL.Path, "/api/local/docs/")
	if err := s.docs.Remove(r.Context(), fileID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type settingsUpdateReq struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.settings.Current())
	case http.MethodPut:
		var req settingsUpdateReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		cur, err := s.settings.Update(r.Context(), req.Key, req.Value)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, cur)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleSettingsReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	cur, err := s.settings.Reset(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cur)
}

type healthResp struct {
	Backend string `json:"backend"`
	Detail  string `json:"detail,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if _, err := s.health.Health(r.Context()); err != nil {
		writeJSON(w, http.StatusOK, healthResp{Backend: "unreachable", Detail: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, healthResp{Backend: "ok"})
}

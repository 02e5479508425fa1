package docs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/above-avg/YourOwnRAG/internal/apiclient"
)

// Client is the slice of the transport the orchestrator drives.
type Client interface {
	UploadDocument(ctx context.Context, filename string, data io.Reader) (apiclient.UploadResponse, error)
	ListDocuments(ctx context.Context) ([]apiclient.DocumentInfo, error)
	DeleteDocument(ctx context.Context, fileID string) (apiclient.DeleteResponse, error)
}

// Extensions the backend can index.
var allowedExtensions = map[string]struct{}{
	".pdf":  {},
	".docx": {},
	".html": {},
}

// AllowedExtensions returns the accepted upload extensions, sorted.
func AllowedExtensions() []string {
	out := make([]string, 0, len(allowedExtensions))
	for ext := range allowedExtensions {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// Task states. A task is pending while it waits for an upload slot, then
// uploading; it leaves the in-flight set as soon as it reaches a terminal
// state, so done/failed are only ever observed through a Submit Result.
const (
	TaskPending   = "pending"
	TaskUploading = "uploading"
	TaskDone      = "done"
	TaskFailed    = "failed"
)

// Task is transient bookkeeping for one file's upload. Tasks are keyed by a
// generated id, not the filename, so two simultaneous uploads of files with
// the same name cannot collide.
type Task struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	State    string `json:"state"`
}

// FileInput is one candidate file for upload.
type FileInput struct {
	Name string
	Data io.Reader
}

// Result is the per-file outcome of a Submit batch, in input order.
type Result struct {
	Filename string
	FileID   string
	Err      error
}

type Options struct {
	Logger *slog.Logger
	Client Client

	// MaxConcurrent caps simultaneous uploads. 0 means unbounded.
	MaxConcurrent int

	// OnChange is invoked after the cached document list is replaced
	// following a successful mutation. Optional.
	OnChange func()
}

// Orchestrator owns the set of in-flight uploads and the client's view of the
// backend's document list. The cached list is replaced by a full refetch
// after every mutation; it is never patched incrementally, so interleaved
// upload completions converge to the same final list.
type Orchestrator struct {
	log      *slog.Logger
	client   Client
	sem      chan struct{}
	onChange func()

	mu     sync.Mutex
	tasks  map[string]Task
	cached []apiclient.DocumentInfo
}

func NewOrchestrator(opts Options) (*Orchestrator, error) {
	if opts.Client == nil {
		return nil, errors.New("missing Client")
	}
	if opts.MaxConcurrent < 0 {
		return nil, fmt.Errorf("invalid MaxConcurrent: %d", opts.MaxConcurrent)
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	var sem chan struct{}
	if opts.MaxConcurrent > 0 {
		sem = make(chan struct{}, opts.MaxConcurrent)
	}

	return &Orchestrator{
		log:      log,
		client:   opts.Client,
		sem:      sem,
		onChange: opts.OnChange,
		tasks:    make(map[string]Task),
	}, nil
}

// Submit filters a batch of candidate files and uploads the accepted ones
// concurrently. One bad file never blocks its siblings: a disallowed
// extension yields a ValidationError in that file's Result and the rest
// proceed. Submit returns once the whole batch has settled.
func (o *Orchestrator) Submit(ctx context.Context, files []FileInput) []Result {
	results := make([]Result, len(files))

	var wg sync.WaitGroup
	for i, f := range files {
		results[i].Filename = f.Name

		ext := strings.ToLower(filepath.Ext(f.Name))
		if _, ok := allowedExtensions[ext]; !ok {
			results[i].Err = &apiclient.ValidationError{
				Message: fmt.Sprintf("%s is not supported. Use PDF, DOCX, or HTML files.", f.Name),
			}
			continue
		}

		wg.Add(1)
		go func(i int, f FileInput) {
			defer wg.Done()
			results[i] = o.upload(ctx, f)
		}(i, f)
	}
	wg.Wait()

	return results
}

func (o *Orchestrator) upload(ctx context.Context, f FileInput) Result {
	taskID := uuid.NewString()
	o.setTask(Task{ID: taskID, Filename: f.Name, State: TaskPending})

	if o.sem != nil {
		o.sem <- struct{}{}
		defer func() { <-o.sem }()
	}
	o.setTask(Task{ID: taskID, Filename: f.Name, State: TaskUploading})

	resp, err := o.client.UploadDocument(ctx, f.Name, f.Data)

	// The task leaves the in-flight set on either terminal outcome.
	o.mu.Lock()
	delete(o.tasks, taskID)
	o.mu.Unlock()

	if err != nil {
		o.log.Warn("upload failed", "filename", f.Name, "error", err)
		return Result{Filename: f.Name, Err: err}
	}

	o.log.Info("document uploaded", "filename", f.Name, "file_id", resp.FileID)
	o.afterMutation(ctx)
	return Result{Filename: f.Name, FileID: resp.FileID}
}

func (o *Orchestrator) setTask(t Task) {
	o.mu.Lock()
	o.tasks[t.ID] = t
	o.mu.Unlock()
}

// Remove deletes one document by id, then refetches the authoritative list.
// On failure the cached list is left untouched.
func (o *Orchestrator) Remove(ctx context.Context, fileID string) error {
	if _, err := o.client.DeleteDocument(ctx, fileID); err != nil {
		return err
	}
	o.log.Info("document deleted", "file_id", fileID)
	o.afterMutation(ctx)
	return nil
}

func (o *Orchestrator) afterMutation(ctx context.Context) {
	if err := o.Refresh(ctx); err != nil {
		o.log.Warn("document list refresh failed", "error", err)
		return
	}
	if o.onChange != nil {
		o.onChange()
	}
}

// Refresh unconditionally refetches the backend's document list and replaces
// the cached snapshot.
func (o *Orchestrator) Refresh(ctx context.Context) error {
	list, err := o.client.ListDocuments(ctx)
	if err != nil {
		return err
	}

	o.mu.Lock()
	o.cached = list
	o.mu.Unlock()
	return nil
}

// Documents returns a copy of the last-fetched snapshot.
func (o *Orchestrator) Documents() []apiclient.DocumentInfo {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]apiclient.DocumentInfo(nil), o.cached...)
}

// Filter returns the snapshot entries whose filename contains term,
// case-insensitively. Purely a view over the cache; no network involved.
func (o *Orchestrator) Filter(term string) []apiclient.DocumentInfo {
	term = strings.ToLower(strings.TrimSpace(term))
	docs := o.Documents()
	if term == "" {
		return docs
	}

	out := docs[:0]
	for _, d := range docs {
		if strings.Contains(strings.ToLower(d.Filename), term) {
			out = append(out, d)
		}
	}
	return out
}

// InFlight returns the current upload tasks, ordered by filename.
func (o *Orchestrator) InFlight() []Task {
	o.mu.Lock()
	out := make([]Task, 0, len(o.tasks))
	for _, t := range o.tasks {
		out = append(out, t)
	}
	o.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Filename != out[j].Filename {
			return out[i].Filename < out[j].Filename
		}
		return out[i].ID < out[j].ID
	})
	return out
}

package docs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/above-avg/YourOwnRAG/internal/apiclient"
)

// fakeClient is an in-memory backend: uploads append to its document set,
// deletes remove, list returns the current set.
type fakeClient struct {
	mu          sync.Mutex
	docs        []apiclient.DocumentInfo
	nextID      int
	uploads     int
	deletes     int
	lists       int
	uploadErr   error
	deleteErr   error
	listErr     error
	inFlight    int
	maxInFlight int
	gate        chan struct{} // when set, uploads block until it closes
}

func (f *fakeClient) UploadDocument(ctx context.Context, filename string, data io.Reader) (apiclient.UploadResponse, error) {
	f.mu.Lock()
	f.uploads++
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.inFlight--
	if f.uploadErr != nil {
		return apiclient.UploadResponse{}, f.uploadErr
	}
	f.nextID++
	id := fmt.Sprintf("%d", f.nextID)
	f.docs = append(f.docs, apiclient.DocumentInfo{FileID: id, Filename: filename})
	return apiclient.UploadResponse{Message: "ok", FileID: id}, nil
}

func (f *fakeClient) ListDocuments(ctx context.Context) ([]apiclient.DocumentInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]apiclient.DocumentInfo(nil), f.docs...), nil
}

func (f *fakeClient) DeleteDocument(ctx context.Context, fileID string) (apiclient.DeleteResponse, error) {
	fileID = strings.TrimSpace(fileID)
	if fileID == "" {
		return apiclient.DeleteResponse{}, &apiclient.ValidationError{Message: "file id is required to delete a document"}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes++
	if f.deleteErr != nil {
		return apiclient.DeleteResponse{}, f.deleteErr
	}
	kept := f.docs[:0]
	for _, d := range f.docs {
		if d.FileID != fileID {
			kept = append(kept, d)
		}
	}
	f.docs = kept
	return apiclient.DeleteResponse{Message: "deleted"}, nil
}

func newTestOrchestrator(t *testing.T, client Client, maxConcurrent int) *Orchestrator {
	t.Helper()
	o, err := NewOrchestrator(Options{Client: client, MaxConcurrent: maxConcurrent})
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}
	return o
}

func TestOrchestrator_Submit_rejectsBadExtensionWithoutBlockingSiblings(t *testing.T) {
	t.Parallel()

	client := &fakeClient{}
	o := newTestOrchestrator(t, client, 0)

	results := o.Submit(context.Background(), []FileInput{
		{Name: "a.pdf", Data: strings.NewReader("pdf")},
		{Name: "b.exe", Data: strings.NewReader("mz")},
	})

	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
	if results[0].Err != nil || results[0].FileID == "" {
		t.Fatalf("a.pdf result = %+v, want success", results[0])
	}
	var ve *apiclient.ValidationError
	if !errors.As(results[1].Err, &ve) {
		t.Fatalf("b.exe err = %v, want ValidationError", results[1].Err)
	}
	if client.uploads != 1 {
		t.Fatalf("uploads = %d, want 1 (b.exe never reaches the transport)", client.uploads)
	}

	docs := o.Documents()
	if len(docs) != 1 || docs[0].Filename != "a.pdf" {
		t.Fatalf("cached docs = %+v, want only a.pdf", docs)
	}
}

func TestOrchestrator_Submit_extensionCheckIsCaseInsensitive(t *testing.T) {
	t.Parallel()

	client := &fakeClient{}
	o := newTestOrchestrator(t, client, 0)

	results := o.Submit(context.Background(), []FileInput{
		{Name: "REPORT.PDF", Data: strings.NewReader("pdf")},
		{Name: "notes.Docx", Data: strings.NewReader("docx")},
	})
	for _, r := range results {
		if r.Err != nil {
			t.Fatalf("%s: %v", r.Filename, r.Err)
		}
	}
	if client.uploads != 2 {
		t.Fatalf("uploads = %d, want 2", client.uploads)
	}
}

func TestOrchestrator_Submit_failureDoesNotAbortSiblings(t *testing.T) {
	t.Parallel()

	// Every upload fails; each file still gets its own result and the batch
	// settles.
	client := &fakeClient{uploadErr: &apiclient.RemoteError{StatusCode: 500, Message: "index failure"}}
	o := newTestOrchestrator(t, client, 0)

	results := o.Submit(context.Background(), []FileInput{
		{Name: "a.pdf", Data: strings.NewReader("1")},
		{Name: "b.html", Data: strings.NewReader("2")},
	})
	if client.uploads != 2 {
		t.Fatalf("uploads = %d, want 2", client.uploads)
	}
	for _, r := range results {
		var re *apiclient.RemoteError
		if !errors.As(r.Err, &re) {
			t.Fatalf("%s err = %v, want RemoteError", r.Filename, r.Err)
		}
	}
	if got := len(o.InFlight()); got != 0 {
		t.Fatalf("in-flight tasks = %d after batch settled, want 0", got)
	}
	if client.lists != 0 {
		t.Fatalf("lists = %d, want 0 (no refetch after failed mutation)", client.lists)
	}
}

func TestOrchestrator_Submit_cachedListMatchesFreshFetchAfterUpload(t *testing.T) {
	t.Parallel()

	client := &fakeClient{}
	o := newTestOrchestrator(t, client, 2)

	files := []FileInput{
		{Name: "a.pdf", Data: strings.NewReader("1")},
		{Name: "b.docx", Data: strings.NewReader("2")},
		{Name: "c.html", Data: strings.NewReader("3")},
	}
	results := o.Submit(context.Background(), files)
	for _, r := range results {
		if r.Err != nil {
			t.Fatalf("%s: %v", r.Filename, r.Err)
		}
	}

	fresh, err := client.ListDocuments(context.Background())
	if err != nil {
		t.Fatalf("ListDocuments: %v", err)
	}
	cached := o.Documents()
	if len(cached) != len(fresh) {
		t.Fatalf("cached len = %d, fresh len = %d", len(cached), len(fresh))
	}
	for i := range fresh {
		if cached[i] != fresh[i] {
			t.Fatalf("cached[%d] = %+v, fresh[%d] = %+v", i, cached[i], i, fresh[i])
		}
	}
}

func TestOrchestrator_Submit_respectsConcurrencyCap(t *testing.T) {
	t.Parallel()

	gate := make(chan struct{})
	client := &fakeClient{gate: gate}
	o := newTestOrchestrator(t, client, 2)

	done := make(chan []Result, 1)
	go func() {
		done <- o.Submit(context.Background(), []FileInput{
			{Name: "a.pdf", Data: strings.NewReader("1")},
			{Name: "b.pdf", Data: strings.NewReader("2")},
			{Name: "c.pdf", Data: strings.NewReader("3")},
			{Name: "d.pdf", Data: strings.NewReader("4")},
		})
	}()

	close(gate)
	results := <-done
	for _, r := range results {
		if r.Err != nil {
			t.Fatalf("%s: %v", r.Filename, r.Err)
		}
	}

	client.mu.Lock()
	peak := client.maxInFlight
	client.mu.Unlock()
	if peak > 2 {
		t.Fatalf("max concurrent uploads = %d, want <= 2", peak)
	}
}

func TestOrchestrator_Remove_emptyIDFailsLocally(t *testing.T) {
	t.Parallel()

	client := &fakeClient{docs: []apiclient.DocumentInfo{{FileID: "1", Filename: "a.pdf"}}}
	o := newTestOrchestrator(t, client, 0)
	if err := o.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	err := o.Remove(context.Background(), "")
	var ve *apiclient.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	if client.deletes != 0 {
		t.Fatalf("deletes = %d, want 0", client.deletes)
	}
	if got := len(o.Documents()); got != 1 {
		t.Fatalf("cached docs = %d, want untouched 1", got)
	}
}

func TestOrchestrator_Remove_refetchesOnSuccessOnly(t *testing.T) {
	t.Parallel()

	client := &fakeClient{docs: []apiclient.DocumentInfo{
		{FileID: "1", Filename: "a.pdf"},
		{FileID: "2", Filename: "b.docx"},
	}}

	var changes int
	o, err := NewOrchestrator(Options{Client: client, OnChange: func() { changes++ }})
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}
	if err := o.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	if err := o.Remove(context.Background(), "1"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	docs := o.Documents()
	if len(docs) != 1 || docs[0].FileID != "2" {
		t.Fatalf("cached docs = %+v", docs)
	}
	if changes != 1 {
		t.Fatalf("changes = %d, want 1", changes)
	}

	client.deleteErr = &apiclient.RemoteError{StatusCode: 500, Message: "Failed to delete document from Chroma."}
	if err := o.Remove(context.Background(), "2"); err == nil {
		t.Fatalf("Remove: want error")
	}
	if got := len(o.Documents()); got != 1 {
		t.Fatalf("cached docs = %d, want untouched 1 after failed delete", got)
	}
	if changes != 1 {
		t.Fatalf("changes = %d, want still 1", changes)
	}
}

func TestOrchestrator_Filter(t *testing.T) {
	t.Parallel()

	client := &fakeClient{docs: []apiclient.DocumentInfo{
		{FileID: "1", Filename: "Quarterly-Report.pdf"},
		{FileID: "2", Filename: "notes.docx"},
		{FileID: "3", Filename: "report-final.html"},
	}}
	o := newTestOrchestrator(t, client, 0)
	if err := o.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	got := o.Filter("REPORT")
	if len(got) != 2 {
		t.Fatalf("Filter(REPORT) = %+v, want 2 entries", got)
	}
	if all := o.Filter("  "); len(all) != 3 {
		t.Fatalf("Filter(blank) = %d entries, want 3", len(all))
	}
	if none := o.Filter("zzz"); len(none) != 0 {
		t.Fatalf("Filter(zzz) = %+v, want none", none)
	}
}

func TestAllowedExtensions(t *testing.T) {
	t.Parallel()

	got := AllowedExtensions()
	want := []string{".docx", ".html", ".pdf"}
	if len(got) != len(want) {
		t.Fatalf("AllowedExtensions = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("AllowedExtensions = %v, want %v", got, want)
		}
	}
}

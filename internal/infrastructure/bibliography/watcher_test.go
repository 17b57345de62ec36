package bibliography

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type changeRecorder struct {
	mu      sync.Mutex
	changes []string
	notify  chan struct{}
}

func newChangeRecorder() *changeRecorder {
	return &changeRecorder{notify: make(chan struct{}, 16)}
}

func (r *changeRecorder) record(_ context.Context, project, _ string) {
	r.mu.Lock()
	r.changes = append(r.changes, project)
	r.mu.Unlock()
	r.notify <- struct{}{}
}

func (r *changeRecorder) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.notify:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for change notification")
	}
}

func (r *changeRecorder) projects() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.changes...)
}

func startWatcher(t *testing.T, root string, rec *changeRecorder) {
	t.Helper()
	w, err := NewWatcher(root, 30*time.Millisecond, rec.record, nil)
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestWatcherReportsBibliographyChangesPerProject(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "proj-1", "papers"), 0o755); err != nil {
		t.Fatal(err)
	}
	rec := newChangeRecorder()
	startWatcher(t, root, rec)

	for i := 0; i < 3; i++ {
		if err := os.WriteFile(filepath.Join(root, "proj-1", "refs.bib"), []byte("@article{A2020, title={A}}"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	rec.wait(t)

	if err := os.WriteFile(filepath.Join(root, "proj-1", "papers", "A2020.pdf"), []byte("%PDF"), 0o644); err != nil {
		t.Fatal(err)
	}
	rec.wait(t)

	got := rec.projects()
	if len(got) != 2 || got[0] != "proj-1" || got[1] != "proj-1" {
		t.Fatalf("expected one debounced change per burst, got %v", got)
	}
}

func TestWatcherIgnoresUnrelatedFiles(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "proj-1"), 0o755); err != nil {
		t.Fatal(err)
	}
	rec := newChangeRecorder()
	startWatcher(t, root, rec)

	if err := os.WriteFile(filepath.Join(root, "proj-1", "main.tex"), []byte(`\section{x}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "top.bib"), []byte(""), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-rec.notify:
		t.Fatalf("unexpected change: %v", rec.projects())
	case <-time.After(200 * time.Millisecond):
	}
}

func TestProjectOf(t *testing.T) {
	w := &Watcher{root: "/data/projects"}
	cases := map[string]string{
		"/data/projects/p1/refs.bib":  "p1",
		"/data/projects/p1/sub/x.pdf": "p1",
		"/data/projects/refs.bib":     "",
		"/data/other/p1/refs.bib":     "",
		"/data/projects":              "",
	}
	for in, want := range cases {
		if got := w.projectOf(in); got != want {
			t.Errorf("projectOf(%q) = %q, want %q", in, got, want)
		}
	}
}

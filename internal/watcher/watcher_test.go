package watcher

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/lucasnoah/autobuilder/internal/changes"
)

func TestPatternsMatch(t *testing.T) {
	p := NewPatterns([]string{"*.cpp", "*.H", "CMakeLists.txt", "src/*.c", ""})

	tests := []struct {
		path string
		want bool
	}{
		{"/proj/src/main.cpp", true},
		{"/proj/include/util.h", true},
		{"/proj/MAIN.CPP", true},
		{"/proj/cmakelists.txt", true},
		{"/proj/src/a.c", true},
		{"/proj/lib/a.c", false},
		{"/proj/README.md", false},
		{"/proj/build/main.o", false},
	}
	for _, tt := range tests {
		if got := p.Match(tt.path); got != tt.want {
			t.Errorf("Match(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestPatternsEmpty(t *testing.T) {
	if NewPatterns(nil).Match("/a/b.c") {
		t.Error("empty pattern set should match nothing")
	}
}

func TestConvertOp(t *testing.T) {
	tests := []struct {
		op     fsnotify.Op
		want   changes.Kind
		wantOK bool
	}{
		{fsnotify.Write, changes.KindModified, true},
		{fsnotify.Create, changes.KindCreated, true},
		{fsnotify.Remove, changes.KindDeleted, true},
		{fsnotify.Rename, changes.KindDeleted, true},
		{fsnotify.Create | fsnotify.Write, changes.KindCreated, true},
		{fsnotify.Chmod, 0, false},
	}
	for _, tt := range tests {
		got, ok := convertOp(tt.op)
		if ok != tt.wantOK || (ok && got != tt.want) {
			t.Errorf("convertOp(%v) = (%v, %v), want (%v, %v)", tt.op, got, ok, tt.want, tt.wantOK)
		}
	}
}

type recordedEvent struct {
	Path string
	Kind changes.Kind
}

type recorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *recorder) OnFileEvent(path string, kind changes.Kind) {
	r.mu.Lock()
	r.events = append(r.events, recordedEvent{path, kind})
	r.mu.Unlock()
}

func (r *recorder) snapshot() []recordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]recordedEvent, len(r.events))
	copy(out, r.events)
	return out
}

func (r *recorder) waitFor(t *testing.T, pred func(recordedEvent) bool) bool {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		for _, e := range r.snapshot() {
			if pred(e) {
				return true
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	return false
}

func startWatcher(t *testing.T, dir string, patterns []string) (*Watcher, *recorder) {
	t.Helper()
	rec := &recorder{}
	w, err := New(dir, patterns, rec)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { w.Close() })
	return w, rec
}

func TestWatcherDeliversMatchingEvents(t *testing.T) {
	dir := t.TempDir()
	_, rec := startWatcher(t, dir, []string{"*.c"})

	target := filepath.Join(dir, "main.c")
	if err := os.WriteFile(target, []byte("int main;"), 0o644); err != nil {
		t.Fatal(err)
	}
	if !rec.waitFor(t, func(e recordedEvent) bool { return e.Path == target && e.Kind == changes.KindCreated }) {
		t.Fatalf("no created event for %s, got %v", target, rec.snapshot())
	}

	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(200 * time.Millisecond)
	for _, e := range rec.snapshot() {
		if filepath.Base(e.Path) == "notes.txt" {
			t.Errorf("unmatched file delivered: %v", e)
		}
	}
}

func TestWatcherRecursiveAndNewDirs(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "src", "core"), 0o755); err != nil {
		t.Fatal(err)
	}
	w, rec := startWatcher(t, dir, []string{"*.c"})

	nested := filepath.Join(dir, "src", "core", "a.c")
	if err := os.WriteFile(nested, []byte("a"), 0o644); err != nil {
		t.Fatal(err)
	}
	if !rec.waitFor(t, func(e recordedEvent) bool { return e.Path == nested }) {
		t.Fatalf("no event for nested file, got %v", rec.snapshot())
	}

	newDir := filepath.Join(dir, "lib")
	if err := os.Mkdir(newDir, 0o755); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(3 * time.Second)
	for {
		found := false
		for _, d := range w.WatchedDirs() {
			if d == newDir {
				found = true
			}
		}
		if found {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("new directory %s never watched", newDir)
		}
		time.Sleep(20 * time.Millisecond)
	}

	for _, e := range rec.snapshot() {
		if e.Path == newDir {
			t.Errorf("directory event delivered: %v", e)
		}
	}

	inNew := filepath.Join(newDir, "b.c")
	if err := os.WriteFile(inNew, []byte("b"), 0o644); err != nil {
		t.Fatal(err)
	}
	if !rec.waitFor(t, func(e recordedEvent) bool { return e.Path == inNew }) {
		t.Fatalf("no event for file in new directory, got %v", rec.snapshot())
	}
}

func TestWatcherSetPatterns(t *testing.T) {
	dir := t.TempDir()
	w, rec := startWatcher(t, dir, []string{"*.c"})
	w.SetPatterns([]string{"*.h"})

	header := filepath.Join(dir, "a.h")
	if err := os.WriteFile(header, []byte("h"), 0o644); err != nil {
		t.Fatal(err)
	}
	if !rec.waitFor(t, func(e recordedEvent) bool { return e.Path == header }) {
		t.Fatalf("no event after SetPatterns, got %v", rec.snapshot())
	}
}

func TestNewRejectsFile(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(f, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := New(f, nil, &recorder{}); err == nil {
		t.Error("expected error for non-directory root")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	w, err := New(t.TempDir(), nil, &recorder{})
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("first Close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

package tail

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func receive(t *testing.T, ch <-chan Batch) Batch {
	t.Helper()
	select {
	case b := <-ch:
		return b
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for batch")
		return Batch{}
	}
}

func TestWatcherDeliversOnlyNewGrowth(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	existing := filepath.Join(dir, "old.jsonl")
	writeFile(t, existing, "history\n")

	tl := NewTailer(NewRegistry())
	w := NewWatcher(dir, tl, Options{Scanner: Scanner{Pattern: "*.jsonl"}, ScanInterval: 50 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := make(chan Batch, 8)
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, out) }()

	deadline := time.Now().Add(5 * time.Second)
	for !tl.Registry().IsKnown(existing) {
		if time.Now().After(deadline) {
			t.Fatal("existing file never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	appendFile(t, existing, "fresh\n")
	b := receive(t, out)
	if b.Path != existing || !reflect.DeepEqual(b.Lines, []string{"fresh"}) {
		t.Errorf("got %+v, want [fresh] from %s", b, existing)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestWatcherRegistersFilesCreatedLater(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	tl := NewTailer(NewRegistry())
	w := NewWatcher(dir, tl, Options{ScanInterval: 50 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := make(chan Batch, 8)
	go w.Run(ctx, out)

	path := filepath.Join(dir, "new.jsonl")
	writeFile(t, path, "")

	deadline := time.Now().Add(5 * time.Second)
	for !tl.Registry().IsKnown(path) {
		if time.Now().After(deadline) {
			t.Fatal("new file never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	appendFile(t, path, "line\n")
	b := receive(t, out)
	if !reflect.DeepEqual(b.Lines, []string{"line"}) {
		t.Errorf("Lines = %q, want [line]", b.Lines)
	}
}

func TestWatcherDeliversContentOfFilesCreatedLater(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	tl := NewTailer(NewRegistry())
	w := NewWatcher(dir, tl, Options{Scanner: Scanner{Pattern: "*.jsonl"}, ScanInterval: 50 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := make(chan Batch, 8)
	go w.Run(ctx, out)

	// Give Run time to finish the initial scan so the file counts as new.
	time.Sleep(100 * time.Millisecond)

	path := filepath.Join(dir, "conv.jsonl")
	prompt := `{"type":"user","cwd":"/p","message":{"role":"user","content":"fix bug"}}`
	writeFile(t, path, prompt+"\n")

	b := receive(t, out)
	if b.Path != path || !reflect.DeepEqual(b.Lines, []string{prompt}) {
		t.Errorf("got %+v, want the prompt line from %s", b, path)
	}
}

package tail

import (
	"os"
	"sync"
)

// WatchedFile is the per-file tailing state. LastByteSize and
// ProcessedLineCount only move backwards on rotation.
type WatchedFile struct {
	Path               string
	LastByteSize       int64
	ProcessedLineCount int

	offset int64
	info   os.FileInfo
}

// Registry maps file paths to their tailing state.
type Registry struct {
	mu    sync.Mutex
	files map[string]*WatchedFile
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{files: make(map[string]*WatchedFile)}
}

// Register records a file as known with its existing content treated as
// already processed. Registering a known path is a no-op and returns false.
func (r *Registry) Register(path string, size int64, lines int, offset int64, info os.FileInfo) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.files[path]; ok {
		return false
	}
	r.files[path] = &WatchedFile{
		Path:               path,
		LastByteSize:       size,
		ProcessedLineCount: lines,
		offset:             offset,
		info:               info,
	}
	return true
}

func (r *Registry) IsKnown(path string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.files[path]
	return ok
}

// Get returns a copy of the state for path.
func (r *Registry) Get(path string) (WatchedFile, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	wf, ok := r.files[path]
	if !ok {
		return WatchedFile{}, false
	}
	return *wf, true
}

// RecordRead stores the result of a successful incremental read. A line
// count below the processed count is refused; regressions go through Reset.
func (r *Registry) RecordRead(path string, size int64, lines int, offset int64, info os.FileInfo) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	wf, ok := r.files[path]
	if !ok || lines < wf.ProcessedLineCount {
		return false
	}
	wf.LastByteSize = size
	wf.ProcessedLineCount = lines
	wf.offset = offset
	if info != nil {
		wf.info = info
	}
	return true
}

// Reset re-baselines a rotated file: everything currently present counts
// as processed.
func (r *Registry) Reset(path string, size int64, lines int, offset int64, info os.FileInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	wf, ok := r.files[path]
	if !ok {
		return
	}
	wf.LastByteSize = size
	wf.ProcessedLineCount = lines
	wf.offset = offset
	wf.info = info
}

// Forget drops path so it is treated as unknown again.
func (r *Registry) Forget(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.files, path)
}

// Paths returns every registered path.
func (r *Registry) Paths() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.files))
	for p := range r.files {
		out = append(out, p)
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.files)
}

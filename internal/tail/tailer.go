package tail

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
)

// Batch is the set of complete lines appended to one file since its last
// read. A rotated batch carries no lines: content present at rotation time
// is marked consumed and never replayed.
type Batch struct {
	Path  string
	Lines []string

	Rotated   bool
	PrevLines int
	NowLines  int
}

func (b Batch) Empty() bool { return len(b.Lines) == 0 && !b.Rotated }

// Tailer reads new complete lines from registered files. Only
// newline-terminated lines are consumed; a trailing partial line is left for
// the next read.
type Tailer struct {
	reg *Registry
}

func NewTailer(reg *Registry) *Tailer {
	return &Tailer{reg: reg}
}

func (t *Tailer) Registry() *Registry { return t.reg }

// Seed registers path with all of its current content marked processed.
// Seeding a known path is a no-op.
func (t *Tailer) Seed(path string) error {
	if t.reg.IsKnown(path) {
		return nil
	}
	info, lines, offset, err := countFile(path)
	if err != nil {
		return err
	}
	t.reg.Register(path, info.Size(), lines, offset, info)
	return nil
}

// Track registers path as new growth: none of its content counts as
// processed, so the next ReadNew delivers everything already in it. Tracking
// a known path is a no-op.
func (t *Tailer) Track(path string) error {
	if t.reg.IsKnown(path) {
		return nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	t.reg.Register(path, 0, 0, 0, info)
	return nil
}

// ReadNew returns the lines appended to path since the last read. A missing
// file yields an empty batch and is forgotten, so a file later created under
// the same name is treated as new.
func (t *Tailer) ReadNew(path string) (Batch, error) {
	batch := Batch{Path: path}

	wf, ok := t.reg.Get(path)
	if !ok {
		return batch, t.Seed(path)
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			t.reg.Forget(path)
			return batch, nil
		}
		return batch, fmt.Errorf("stat %s: %w", path, err)
	}

	size := info.Size()
	replaced := wf.info != nil && !os.SameFile(wf.info, info)
	if size < wf.LastByteSize || replaced {
		return t.reset(path, wf)
	}
	if size <= wf.offset {
		t.reg.RecordRead(path, size, wf.ProcessedLineCount, wf.offset, info)
		return batch, nil
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return batch, nil
		}
		return batch, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	// The byte before the offset must still be the newline that ended the
	// last consumed line, otherwise the file was rewritten in place.
	if wf.offset > 0 {
		var prev [1]byte
		if _, err := f.ReadAt(prev[:], wf.offset-1); err != nil || prev[0] != '\n' {
			return t.reset(path, wf)
		}
	}

	buf := make([]byte, size-wf.offset)
	n, err := f.ReadAt(buf, wf.offset)
	if err != nil && !errors.Is(err, io.EOF) {
		return batch, fmt.Errorf("read %s: %w", path, err)
	}
	buf = buf[:n]

	end := bytes.LastIndexByte(buf, '\n')
	if end < 0 {
		t.reg.RecordRead(path, size, wf.ProcessedLineCount, wf.offset, info)
		return batch, nil
	}

	batch.Lines = splitLines(buf[:end+1])
	t.reg.RecordRead(path, size, wf.ProcessedLineCount+len(batch.Lines), wf.offset+int64(end+1), info)
	return batch, nil
}

// reset re-baselines a rotated or truncated file at its current content.
func (t *Tailer) reset(path string, prev WatchedFile) (Batch, error) {
	info, lines, offset, err := countFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Batch{Path: path}, nil
		}
		return Batch{Path: path}, err
	}
	t.reg.Reset(path, info.Size(), lines, offset, info)
	return Batch{
		Path:      path,
		Rotated:   true,
		PrevLines: prev.ProcessedLineCount,
		NowLines:  lines,
	}, nil
}

// countFile returns the number of complete lines in path and the byte offset
// just past the last newline.
func countFile(path string) (os.FileInfo, int, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, 0, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, 0, 0, fmt.Errorf("stat %s: %w", path, err)
	}

	var (
		lines  int
		offset int64
		pos    int64
	)
	buf := make([]byte, 32*1024)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			lines += bytes.Count(chunk, []byte{'\n'})
			if i := bytes.LastIndexByte(chunk, '\n'); i >= 0 {
				offset = pos + int64(i) + 1
			}
			pos += int64(n)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, 0, fmt.Errorf("read %s: %w", path, err)
		}
	}
	return info, lines, offset, nil
}

func splitLines(b []byte) []string {
	b = bytes.TrimSuffix(b, []byte{'\n'})
	parts := bytes.Split(b, []byte{'\n'})
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = string(bytes.TrimSuffix(p, []byte{'\r'}))
	}
	return out
}

package tail

import "testing"

func TestRegistry(t *testing.T) {
	t.Parallel()
	r := NewRegistry()

	if r.IsKnown("/a") {
		t.Fatal("empty registry should not know /a")
	}
	if !r.Register("/a", 10, 2, 10, nil) {
		t.Fatal("first Register should report a new entry")
	}
	if r.Register("/a", 99, 9, 99, nil) {
		t.Error("second Register should be a no-op")
	}
	wf, _ := r.Get("/a")
	if wf.LastByteSize != 10 || wf.ProcessedLineCount != 2 {
		t.Errorf("entry mutated by re-register: %+v", wf)
	}

	if !r.RecordRead("/a", 20, 4, 20, nil) {
		t.Error("RecordRead forward should succeed")
	}
	if r.RecordRead("/a", 25, 3, 25, nil) {
		t.Error("RecordRead must refuse a line count regression")
	}
	wf, _ = r.Get("/a")
	if wf.ProcessedLineCount != 4 {
		t.Errorf("ProcessedLineCount = %d, want 4", wf.ProcessedLineCount)
	}

	r.Reset("/a", 5, 1, 5, nil)
	wf, _ = r.Get("/a")
	if wf.ProcessedLineCount != 1 || wf.LastByteSize != 5 {
		t.Errorf("Reset did not re-baseline: %+v", wf)
	}

	if r.RecordRead("/missing", 1, 1, 1, nil) {
		t.Error("RecordRead on unknown path should fail")
	}
	if r.Len() != 1 || len(r.Paths()) != 1 {
		t.Errorf("Len = %d, Paths = %v", r.Len(), r.Paths())
	}
	r.Forget("/a")
	if r.IsKnown("/a") {
		t.Error("Forget should drop the entry")
	}
}

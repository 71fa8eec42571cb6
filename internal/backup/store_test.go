package backup

import (
	"os"
	"testing"

	"github.com/nxthongbk/datahub/internal/observation"
	"github.com/nxthongbk/datahub/internal/sample"
)

func TestWriteThenRestore(t *testing.T) {
	st := New(t.TempDir())

	samples := []sample.Sample{sample.NewString(1, "a"), sample.NewString(2, "b")}
	if err := st.Write("log", sample.String, samples); err != nil {
		t.Fatalf("write: %v", err)
	}

	o := observation.New()
	o.SetMaxCount(2)

	var pushedType sample.Type
	var pushedSample sample.Sample
	var pushed bool
	st.Restore("log", o, func(t sample.Type, s sample.Sample) {
		pushed = true
		pushedType = t
		pushedSample = s
	})

	if !pushed {
		t.Fatal("expected newest restored sample to be pushed")
	}
	if pushedType != sample.String {
		t.Fatalf("pushed type = %v, want String", pushedType)
	}
	text, _ := pushedSample.Text()
	if text != "b" {
		t.Fatalf("pushed value = %q, want %q", text, "b")
	}

	if o.Len() != 2 {
		t.Fatalf("expected restored buffer length 2, got %d", o.Len())
	}
}

func TestRestoreMissingFileLeavesEmpty(t *testing.T) {
	st := New(t.TempDir())
	o := observation.New()

	called := false
	st.Restore("does/not/exist", o, func(sample.Type, sample.Sample) { called = true })

	if called {
		t.Fatal("expected no push when no backup file exists")
	}
	if o.Len() != 0 {
		t.Fatalf("expected empty buffer, got len %d", o.Len())
	}
}

func TestRestoreCorruptFileDiscardsBuffer(t *testing.T) {
	dir := t.TempDir()
	st := New(dir)

	if err := st.Write("corrupt", sample.Numeric, []sample.Sample{sample.NewNumeric(1, 1.0)}); err != nil {
		t.Fatalf("write: %v", err)
	}
	// Corrupt the version byte.
	path := st.filePath("corrupt")
	data := []byte{9, 'n', 0, 0, 0, 0}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("corrupt file: %v", err)
	}

	o := observation.New()
	called := false
	st.Restore("corrupt", o, func(sample.Type, sample.Sample) { called = true })

	if called {
		t.Fatal("expected no push on corrupt backup")
	}
	if o.Len() != 0 {
		t.Fatalf("expected empty buffer after corrupt restore, got %d", o.Len())
	}
}

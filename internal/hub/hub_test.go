package hub

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nxthongbk/datahub/internal/observation"
	"github.com/nxthongbk/datahub/internal/sample"
)

func TestRouteInputThroughObservationToOutput(t *testing.T) {
	h := New(t.TempDir(), 0)

	if _, err := h.CreateInput("a/temp", "C", sample.Numeric); err != nil {
		t.Fatalf("create input: %v", err)
	}
	if _, err := h.CreateObservation("obs/hot"); err != nil {
		t.Fatalf("create observation: %v", err)
	}
	if _, err := h.CreateOutput("b/alarm", "", sample.Numeric); err != nil {
		t.Fatalf("create output: %v", err)
	}

	obs, _, err := h.Observation("obs/hot")
	if err != nil {
		t.Fatalf("lookup observation: %v", err)
	}
	obs.SetHighLimit(30)

	if err := h.SetSource("obs/hot", "a/temp"); err != nil {
		t.Fatalf("route temp->hot: %v", err)
	}
	if err := h.SetSource("b/alarm", "obs/hot"); err != nil {
		t.Fatalf("route hot->alarm: %v", err)
	}

	if _, _, err := h.Push("a/temp", sample.Numeric, sample.NewNumeric(1.0, 25.0)); err != nil {
		t.Fatalf("push: %v", err)
	}

	cur, ok, err := h.Current("b/alarm")
	if err != nil || !ok {
		t.Fatalf("expected alarm current value, ok=%v err=%v", ok, err)
	}
	if v, _ := cur.Float(); v != 25.0 {
		t.Fatalf("expected alarm = 25.0, got %v", v)
	}

	if _, _, err := h.Push("a/temp", sample.Numeric, sample.NewNumeric(2.0, 35.0)); err != nil {
		t.Fatalf("push: %v", err)
	}
	cur, _, _ = h.Current("b/alarm")
	if v, _ := cur.Float(); v != 25.0 {
		t.Fatalf("expected alarm to stay 25.0 after above-highLimit push, got %v", v)
	}
}

func TestBackupRoundTripAcrossRestart(t *testing.T) {
	root := t.TempDir()

	h1 := New(root, 0)
	if _, err := h1.CreateObservation("obs/log"); err != nil {
		t.Fatalf("create observation: %v", err)
	}
	obs, _, _ := h1.Observation("obs/log")
	obs.SetMaxCount(2)

	if _, _, err := h1.Push("obs/log", sample.String, sample.NewString(1, "a")); err != nil {
		t.Fatalf("push: %v", err)
	}
	if _, _, err := h1.Push("obs/log", sample.String, sample.NewString(2, "b")); err != nil {
		t.Fatalf("push: %v", err)
	}
	if err := h1.SetBackupPeriod("obs/log", 1); err != nil {
		t.Fatalf("set backup period: %v", err)
	}
	bufType, _ := obs.BufferedType()
	if err := h1.store.Write(backupKey("obs/log"), bufType, obs.Snapshot()); err != nil {
		t.Fatalf("write backup: %v", err)
	}

	h2 := New(root, 0)
	if _, err := h2.CreateObservation("obs/log"); err != nil {
		t.Fatalf("restore create observation: %v", err)
	}

	cur, ok, err := h2.Current("obs/log")
	if err != nil || !ok {
		t.Fatalf("expected restored current value, ok=%v err=%v", ok, err)
	}
	text, _ := cur.Text()
	if text != "b" {
		t.Fatalf("expected restored current value %q, got %q", "b", text)
	}

	obs2, _, _ := h2.Observation("obs/log")
	if obs2.Len() != 2 {
		t.Fatalf("expected restored buffer length 2, got %d", obs2.Len())
	}
}

func TestJSONExtractionEndToEnd(t *testing.T) {
	h := New(t.TempDir(), 0)
	if _, err := h.CreateObservation("obs/extract"); err != nil {
		t.Fatalf("create observation: %v", err)
	}
	obs, _, _ := h.Observation("obs/extract")
	obs.SetJSONExtraction("sensor.temp")

	_, reported, err := h.Push("obs/extract", sample.JSON, sample.NewJSON(1.0, `{"sensor":{"temp":21.5}}`))
	if err != nil {
		t.Fatalf("push: %v", err)
	}
	if reported.Type() != sample.Numeric {
		t.Fatalf("expected Numeric current value, got %s", reported.Type())
	}
	v, _ := reported.Float()
	if v != 21.5 {
		t.Fatalf("expected 21.5, got %v", v)
	}
}

func TestStreamingReaderOverHub(t *testing.T) {
	h := New(t.TempDir(), 0)
	if _, err := h.CreateObservation("obs/log"); err != nil {
		t.Fatalf("create observation: %v", err)
	}
	obs, _, _ := h.Observation("obs/log")
	obs.SetMaxCount(10)
	// Pin the clock at t=10 so reading the last 10 seconds covers t=1 and t=2.
	obs.SetClock(func() time.Time { return time.Unix(10, 0) })

	h.Push("obs/log", sample.String, sample.NewString(1, "a"))
	h.Push("obs/log", sample.String, sample.NewString(2, "b"))

	sink := newCollectingSink()
	done := make(chan observation.Result, 1)
	if err := h.ReadBufferJSON(context.Background(), "obs/log", 10, sink, func(r observation.Result) { done <- r }); err != nil {
		t.Fatalf("read buffer json: %v", err)
	}

	if r := <-done; r != observation.ResultOK {
		t.Fatalf("expected ResultOK, got %v", r)
	}
	want := `[{"t":1,"v":"a"},{"t":2,"v":"b"}]`
	if sink.String() != want {
		t.Fatalf("got %s, want %s", sink.String(), want)
	}
}

func TestDeleteObservationRemovesBackupFile(t *testing.T) {
	root := t.TempDir()
	h := New(root, 0)
	if _, err := h.CreateObservation("obs/gone"); err != nil {
		t.Fatalf("create observation: %v", err)
	}
	obs, _, _ := h.Observation("obs/gone")
	obs.SetMaxCount(1)
	h.Push("obs/gone", sample.Numeric, sample.NewNumeric(1, 1.0))
	if err := h.SetBackupPeriod("obs/gone", 1); err != nil {
		t.Fatalf("set backup period: %v", err)
	}
	backupFile := filepath.Join(root, "gone.bak")
	if _, err := os.Stat(backupFile); err != nil {
		t.Fatalf("expected backup file before delete, got %v", err)
	}

	if err := h.Delete("obs/gone"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := os.Stat(backupFile); !os.IsNotExist(err) {
		t.Fatalf("expected backup file to be removed by delete, got %v", err)
	}

	if _, _, err := h.Observation("obs/gone"); err == nil {
		t.Fatal("expected observation to be gone after delete")
	}
}

type collectingSink struct {
	data  []byte
	ready chan struct{}
}

func newCollectingSink() *collectingSink { return &collectingSink{ready: make(chan struct{})} }

func (s *collectingSink) TryWrite(p []byte) (int, bool, error) {
	s.data = append(s.data, p...)
	return len(p), true, nil
}
func (s *collectingSink) WriteReady() <-chan struct{} { return s.ready }
func (s *collectingSink) String() string              { return string(s.data) }

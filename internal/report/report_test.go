// internal/report/report_test.go
package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/user/proctord/internal/types"
)

func sampleEntries() []types.EventEntry {
	at := time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)
	return []types.EventEntry{
		{ID: "e1", At: at, Description: "call started by alice"},
		{ID: "e2", At: at.Add(30 * time.Second), Description: "intruder faces=2"},
		{ID: "e3", At: at.Add(time.Minute), Description: "terminated due to repeated_violations"},
	}
}

func TestRenderText(t *testing.T) {
	gen, err := NewGenerator(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	path, err := gen.RenderText("call-1", sampleEntries(), "repeated_violations")
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(path) != "report_call-1.txt" {
		t.Errorf("unexpected report name %q", filepath.Base(path))
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	text := string(raw)
	for _, want := range []string{
		"Interview Integrity Report",
		"Call ID: call-1",
		"Termination reason: repeated_violations",
		"[2026-03-14T10:30:30Z] intruder faces=2",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("report missing %q", want)
		}
	}
}

func TestRenderTextNoReason(t *testing.T) {
	gen, err := NewGenerator(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	path, err := gen.RenderText("call-1", sampleEntries(), "")
	if err != nil {
		t.Fatal(err)
	}
	raw, _ := os.ReadFile(path)
	if strings.Contains(string(raw), "Termination reason") {
		t.Error("on-demand export must not carry a termination reason line")
	}
}

func TestRenderTextOverwrites(t *testing.T) {
	gen, err := NewGenerator(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	first, err := gen.RenderText("call-1", sampleEntries()[:1], "")
	if err != nil {
		t.Fatal(err)
	}
	second, err := gen.RenderText("call-1", sampleEntries(), "")
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Errorf("expected deterministic path, got %q and %q", first, second)
	}
	raw, _ := os.ReadFile(second)
	if !strings.Contains(string(raw), "intruder") {
		t.Error("expected re-render to replace the file")
	}
}

func TestRenderPDF(t *testing.T) {
	gen, err := NewGenerator(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	path, err := gen.RenderPDF("call-1", sampleEntries(), "repeated_violations")
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(path) != "report_call-1.pdf" {
		t.Errorf("unexpected report name %q", filepath.Base(path))
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(raw) < 4 || string(raw[:4]) != "%PDF" {
		t.Error("expected a PDF header")
	}
}

func TestSanitizeCallID(t *testing.T) {
	gen, err := NewGenerator(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	path, err := gen.RenderText("../../etc/passwd", nil, "")
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(path) != "report______etc_passwd.txt" {
		t.Errorf("unexpected sanitized name %q", filepath.Base(path))
	}
	if strings.Contains(path, "..") {
		t.Error("sanitized path must not escape the reports dir")
	}
}

// Package report renders a call's event log into downloadable artifacts:
// a plain-text file and a paginated PDF. Rendering is best-effort from the
// session lifecycle's point of view; callers log failures and move on.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/user/proctord/internal/types"
)

// Generator writes report artifacts into a fixed directory with
// deterministic names derived from the call ID.
type Generator struct {
	dir string
}

// Compile-time interface compliance check.
var _ types.ReportRenderer = (*Generator)(nil)

// NewGenerator creates a Generator writing into dir, creating it if needed.
func NewGenerator(dir string) (*Generator, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create reports dir: %w", err)
	}
	return &Generator{dir: dir}, nil
}

// RenderText writes the plain-text report and returns its path.
func (g *Generator) RenderText(callID types.CallID, entries []types.EventEntry, reason string) (string, error) {
	path := filepath.Join(g.dir, fmt.Sprintf("report_%s.txt", sanitize(callID)))

	var b strings.Builder
	for _, line := range header(callID, reason) {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	for _, e := range entries {
		fmt.Fprintf(&b, "[%s] %s\n", e.At.Format(time.RFC3339), e.Description)
	}

	// Write via temp file then rename so a concurrent download never sees
	// a half-written report.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(b.String()), 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("rename report: %w", err)
	}
	return path, nil
}

// RenderPDF writes the paginated PDF report and returns its path.
func (g *Generator) RenderPDF(callID types.CallID, entries []types.EventEntry, reason string) (string, error) {
	path := filepath.Join(g.dir, fmt.Sprintf("report_%s.pdf", sanitize(callID)))

	pdf := fpdf.New("P", "mm", "Letter", "")
	pdf.SetAutoPageBreak(true, 15)
	pdf.AddPage()
	pdf.SetFont("Helvetica", "", 11)

	for _, line := range header(callID, reason) {
		pdf.CellFormat(0, 6, line, "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)
	for _, e := range entries {
		pdf.MultiCell(0, 5, fmt.Sprintf("[%s] %s", e.At.Format(time.RFC3339), e.Description), "", "L", false)
	}

	if err := pdf.OutputFileAndClose(path); err != nil {
		return "", fmt.Errorf("write pdf report: %w", err)
	}
	return path, nil
}

func header(callID types.CallID, reason string) []string {
	lines := []string{
		"Interview Integrity Report",
		fmt.Sprintf("Call ID: %s", callID),
		fmt.Sprintf("Generated: %s", time.Now().UTC().Format(time.RFC3339)),
	}
	if reason != "" {
		lines = append(lines, fmt.Sprintf("Termination reason: %s", reason))
	}
	return lines
}

// sanitize keeps call IDs filesystem-safe. Anything outside a conservative
// character set becomes an underscore.
func sanitize(callID types.CallID) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, string(callID))
}

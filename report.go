package sqlexec

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// TimestampLayout names per-run log directories and report files.
const TimestampLayout = "2006-01-02_150405"

// ReportWriter writes one listing file per ledger bucket into Dir.
type ReportWriter struct {
	Dir string

	// Timestamp labels the run. Defaults to the run's start time.
	Timestamp string

	Logger *zap.Logger
}

// Listing is one labelled sequence of report lines.
type Listing struct {
	Name  string
	Lines []string
}

// Listings returns the report listings for result in a fixed order.
func Listings(result *RunResult) []Listing {
	out := result.Outcome
	errored := make([]string, 0, len(out.Errored))
	for _, fe := range out.Errored {
		line := fe.File.Rel
		if fe.Err != nil {
			if fe.Err.Code != "" {
				line += fmt.Sprintf("  [%s] %s", fe.Err.Code, oneLine(fe.Err.Message))
			} else {
				line += "  " + oneLine(fe.Err.Message)
			}
		}
		errored = append(errored, line)
	}
	anomalies := make([]string, 0, len(out.Anomalies))
	for _, a := range out.Anomalies {
		anomalies = append(anomalies, a.String())
	}
	return []Listing{
		{Name: result.CommittedLabel(), Lines: relPaths(out.Committed)},
		{Name: "file_anomalies", Lines: anomalies},
		{Name: "errors", Lines: errored},
		{Name: "empty_files", Lines: relPaths(out.Empty)},
		{Name: "unprocessed_files", Lines: relPaths(out.Unprocessed)},
	}
}

// Report writes the listings of result. It implements Reporter.
func (w *ReportWriter) Report(_ context.Context, result *RunResult) error {
	log := w.Logger
	if log == nil {
		log = zap.NewNop()
	}
	stamp := w.Timestamp
	if stamp == "" {
		stamp = result.Started.Format(TimestampLayout)
	}
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return fmt.Errorf("create report directory %s: %w", w.Dir, err)
	}

	prefix := stamp + "_" + strings.ReplaceAll(string(result.Mode), "-", "_")
	common := fmt.Sprintf("Mode: '%s' | Run: %s | ID: %s", result.Mode, stamp, result.ID)
	for _, l := range Listings(result) {
		path := filepath.Join(w.Dir, fmt.Sprintf("%s_%s.txt", prefix, l.Name))
		header := fmt.Sprintf("Listing: '%s' | %s", l.Name, common)
		if err := WriteListing(path, header, l.Lines); err != nil {
			return err
		}
	}
	log.Info("report files created", zap.String("dir", w.Dir))
	return nil
}

// WriteListing writes header, a rule of the same length and one line per
// entry, or "None" when lines is empty.
func WriteListing(path, header string, lines []string) error {
	var b strings.Builder
	b.WriteString(header)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("-", len(header)))
	b.WriteString("\n")
	if len(lines) == 0 {
		b.WriteString("None")
	} else {
		b.WriteString(strings.Join(lines, "\n"))
	}
	b.WriteString("\n")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write report %s: %w", path, err)
	}
	return nil
}

func relPaths(files []ScriptFile) []string {
	paths := make([]string, 0, len(files))
	for _, f := range files {
		paths = append(paths, f.Rel)
	}
	return paths
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

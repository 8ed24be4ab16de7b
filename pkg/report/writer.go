package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileStem returns the base name, without extension, of the files for r:
// its start time plus the head of its run ID, so runs that start in the
// same second do not overwrite each other.
func FileStem(r TestReport) string {
	stem := "REPORT_" + r.StartTime.Format("20060102_15-04-05")
	id := strings.ReplaceAll(r.RunID, "-", "")
	if len(id) > 8 {
		id = id[:8]
	}
	if id != "" {
		stem += "_" + id
	}
	return stem
}

// Write saves the report as Markdown and JSON into dir and returns the
// Markdown path.
func Write(dir string, r TestReport) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create report directory: %w", err)
	}

	stem := FileStem(r)
	mdPath := filepath.Join(dir, stem+".md")
	if err := atomicWriteFile(mdPath, []byte(Markdown(r))); err != nil {
		return "", err
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}
	if err := atomicWriteFile(filepath.Join(dir, stem+".json"), data); err != nil {
		return "", err
	}
	return mdPath, nil
}

// atomicWriteFile writes through a temp file in the same directory and
// renames it into place, so readers never observe a half-written report.
func atomicWriteFile(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".report-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

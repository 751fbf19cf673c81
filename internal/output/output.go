// Package output renders a generation report. The text writer emits the
// bare commit message so it can be piped straight into git; the JSON
// writer emits the full report for tooling.
package output

import (
	"fmt"
	"io"
	"os"
)

// Report is the final result of one generation run.
type Report struct {
	Message  string   `json:"message"`
	Provider string   `json:"provider"`
	Model    string   `json:"model"`
	MapModel string   `json:"mapModel,omitempty"`
	Mode     string   `json:"mode"`
	Ref      string   `json:"ref,omitempty"`
	Files    []string `json:"files,omitempty"`
	Repo     RepoInfo `json:"repo"`
	Stats    Stats    `json:"stats"`
}

// RepoInfo identifies the repository the diff came from.
type RepoInfo struct {
	Root   string `json:"root"`
	Head   string `json:"head,omitempty"`
	Branch string `json:"branch,omitempty"`
}

// Stats describes how the message was produced.
type Stats struct {
	Chunks        int   `json:"chunks"`
	FailedChunks  int   `json:"failedChunks"`
	FilesFiltered int   `json:"filesFiltered"`
	BytesFiltered int64 `json:"bytesFiltered"`
	Truncated     bool  `json:"truncated"`
	CacheHit      bool  `json:"cacheHit"`
	ElapsedMs     int64 `json:"elapsedMs"`
}

// Writer writes a report in a specific format.
type Writer interface {
	Write(w io.Writer, report *Report) error
}

// GetWriter returns a writer for the specified format.
func GetWriter(format string) (Writer, error) {
	switch format {
	case "text":
		return &TextWriter{}, nil
	case "json":
		return &JSONWriter{}, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}

// WriteReport writes the report to the given file path, or stdout when
// outPath is empty.
func WriteReport(report *Report, format, outPath string) error {
	writer, err := GetWriter(format)
	if err != nil {
		return err
	}

	var w io.Writer
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer f.Close()
		w = f
	} else {
		w = os.Stdout
	}

	return writer.Write(w, report)
}

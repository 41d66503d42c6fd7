package orchestrator

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/nidhogg/campus-eval/internal/evaluation"
)

// ResultsFile is the JSONL results log under the output directory.
const ResultsFile = "results.jsonl"

// FileSink appends one JSON line per judged task.
type FileSink struct {
	mu   sync.Mutex
	file *os.File
	path string
}

var _ Sink = (*FileSink)(nil)

type resultLine struct {
	RunID string `json:"run_id"`
	evaluation.Result
}

// NewFileSink opens <outputDir>/results.jsonl for appending.
func NewFileSink(outputDir string) (*FileSink, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(outputDir, ResultsFile)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open results file: %w", err)
	}
	return &FileSink{file: f, path: path}, nil
}

// Path returns the results file path.
func (s *FileSink) Path() string { return s.path }

// Record appends res.
func (s *FileSink) Record(_ context.Context, runID string, res evaluation.Result) error {
	data, err := json.Marshal(resultLine{RunID: runID, Result: res})
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	return nil
}

// Close closes the file.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}

// ReadResults loads every result recorded under outputDir, in order. A
// missing file yields no results; a torn last line is ignored.
func ReadResults(outputDir string) ([]evaluation.Result, error) {
	f, err := os.Open(filepath.Join(outputDir, ResultsFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open results file: %w", err)
	}
	defer f.Close()

	var out []evaluation.Result
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for sc.Scan() {
		var line resultLine
		if json.Unmarshal(sc.Bytes(), &line) != nil || line.TaskID == "" {
			continue
		}
		out = append(out, line.Result)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read results file: %w", err)
	}
	return out, nil
}

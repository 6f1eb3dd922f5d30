package reporting

import (
	"fmt"
	"io"
	"sync"

	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/dialtest-cli/api/schemas"
)

// JSONReporter buffers conversation verdicts and emits a single JSON document
// on Close. It is thread safe.
type JSONReporter struct {
	writer  io.WriteCloser
	mu      sync.Mutex
	results []*schemas.GoalTestResult
	closed  bool
}

// NewJSONReporter creates a reporter that takes ownership of the writer.
func NewJSONReporter(writer io.WriteCloser) *JSONReporter {
	return &JSONReporter{writer: writer}
}

// Write buffers one result for the final document.
func (r *JSONReporter) Write(result *schemas.GoalTestResult) error {
	if result == nil {
		return fmt.Errorf("cannot report a nil result")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return fmt.Errorf("reporter is already closed")
	}
	r.results = append(r.results, result)
	return nil
}

// jsonReport is the top-level document emitted by Close.
type jsonReport struct {
	Total   int                       `json:"total"`
	Passed  int                       `json:"passed"`
	Failed  int                       `json:"failed"`
	Results []*schemas.GoalTestResult `json:"results"`
}

// Close serializes the buffered results and releases the writer.
func (r *JSONReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true

	report := jsonReport{
		Total:   len(r.results),
		Results: r.results,
	}
	if report.Results == nil {
		report.Results = []*schemas.GoalTestResult{}
	}
	for _, res := range r.results {
		if res.Passed {
			report.Passed++
		} else {
			report.Failed++
		}
	}

	enc := json.NewEncoder(r.writer)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		r.writer.Close()
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return r.writer.Close()
}

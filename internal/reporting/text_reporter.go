package reporting

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/xkilldash9x/dialtest-cli/api/schemas"
)

// TextReporter renders conversation verdicts as a human-readable report.
// It is thread safe.
type TextReporter struct {
	writer io.WriteCloser
	mu     sync.Mutex
	passed int
	failed int
}

// NewTextReporter creates a reporter that takes ownership of the writer.
func NewTextReporter(writer io.WriteCloser) *TextReporter {
	return &TextReporter{writer: writer}
}

// Write renders one result. Failed goals and violations get the detail:
// a pass only needs the one-line summary.
func (r *TextReporter) Write(result *schemas.GoalTestResult) error {
	if result == nil {
		return fmt.Errorf("cannot report a nil result")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var b strings.Builder

	verdict := "PASS"
	if result.Passed {
		r.passed++
	} else {
		verdict = "FAIL"
		r.failed++
	}

	fmt.Fprintf(&b, "=== %s  session %s  (%d turns, %s)\n",
		verdict, result.SessionID, result.FinalState.Turn, result.Duration.Round(time.Second))
	fmt.Fprintf(&b, "    %s\n", result.Summary)

	for _, g := range result.Goals {
		if g.Passed {
			continue
		}
		label := "optional"
		if g.Required {
			label = "required"
		}
		fmt.Fprintf(&b, "    goal %-30s FAILED (%s)", g.GoalID, label)
		if len(g.MissingFields) > 0 {
			fmt.Fprintf(&b, "  missing: %s", joinFields(g.MissingFields))
		}
		if g.Reason != "" {
			fmt.Fprintf(&b, "  %s", g.Reason)
		}
		b.WriteString("\n")
	}

	for _, v := range result.Violations {
		fmt.Fprintf(&b, "    constraint %-24s %s severity=%s", v.ConstraintID, v.Type, v.Severity)
		if v.Turn > 0 {
			fmt.Fprintf(&b, " turn=%d", v.Turn)
		}
		if v.Description != "" {
			fmt.Fprintf(&b, "  %s", v.Description)
		}
		b.WriteString("\n")
	}

	for _, issue := range result.FinalState.Issues {
		fmt.Fprintf(&b, "    issue %-29s severity=%s turn=%d  %s\n",
			issue.Type, issue.Severity, issue.Turn, issue.Description)
	}

	if fields := result.FinalState.CollectedFields; len(fields) > 0 {
		names := make([]string, 0, len(fields))
		for f := range fields {
			names = append(names, string(f))
		}
		sort.Strings(names)
		fmt.Fprintf(&b, "    collected: %s\n", strings.Join(names, ", "))
	}

	_, err := io.WriteString(r.writer, b.String())
	return err
}

// Close writes the aggregate tally and releases the writer.
func (r *TextReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	total := r.passed + r.failed
	if total > 0 {
		fmt.Fprintf(r.writer, "\n%d/%d conversations passed\n", r.passed, total)
	}
	return r.writer.Close()
}

func joinFields(fields []schemas.DataField) string {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = string(f)
	}
	return strings.Join(names, ", ")
}

package report

import (
	"fmt"
	"strings"
)

// Markdown renders the report as a Markdown document.
func Markdown(r TestReport) string {
	var b strings.Builder

	b.WriteString("# Test suite report\n\n")
	if r.Partial() {
		b.WriteString("> ⚠️ Run aborted: this report is partial.\n")
		if r.AbortReason != "" {
			fmt.Fprintf(&b, "> Reason: %s\n", r.AbortReason)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Test file: %s\n\n", r.TestFile)
	if r.Name != "" {
		fmt.Fprintf(&b, "Name: %s\n\n", r.Name)
	}
	fmt.Fprintf(&b, "Platform: %s\n\n", r.Platform)
	fmt.Fprintf(&b, "Run ID: %s\n\n", r.RunID)
	fmt.Fprintf(&b, "🕒 Date and time: %s\n\n", r.StartTime.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "✅ Steps executed: %d (%d passed, %d failed)\n\n", r.StepsExecuted, r.Passed, r.Failed)
	fmt.Fprintf(&b, "⏱️ Total execution time: %.2f seconds\n\n", r.Elapsed.Seconds())
	b.WriteString("## Test Details\n\n")
	for _, line := range r.Details {
		b.WriteString(line)
		b.WriteString("\n\n")
	}
	return b.String()
}

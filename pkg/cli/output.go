package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/devicelab-dev/apptest-runner/pkg/report"
)

// Steps slower than this are flagged in live output.
const slowThresholdMs = 5000

// printer renders live progress and the final summary.
type printer struct {
	w      io.Writer
	green  func(a ...interface{}) string
	red    func(a ...interface{}) string
	yellow func(a ...interface{}) string
	cyan   func(a ...interface{}) string
	gray   func(a ...interface{}) string
	bold   func(a ...interface{}) string
}

func newPrinter(w io.Writer) *printer {
	return &printer{
		w:      w,
		green:  color.New(color.FgGreen).SprintFunc(),
		red:    color.New(color.FgRed).SprintFunc(),
		yellow: color.New(color.FgYellow).SprintFunc(),
		cyan:   color.New(color.FgCyan).SprintFunc(),
		gray:   color.New(color.FgHiBlack).SprintFunc(),
		bold:   color.New(color.Bold).SprintFunc(),
	}
}

func (p *printer) header(name, file, platform string) {
	fmt.Fprintf(p.w, "\n  %s %s (%s, %s)\n", p.cyan("▶"), p.bold(name), file, platform)
	fmt.Fprintln(p.w, strings.Repeat("─", 60))
}

func (p *printer) setup(msg string) {
	fmt.Fprintf(p.w, "  %s %s\n", p.cyan("⏳"), msg)
}

func (p *printer) stepComplete(idx int, desc string, passed bool, durationMs int64, errMsg string) {
	durStr := formatDuration(durationMs)
	if passed {
		if durationMs >= slowThresholdMs {
			fmt.Fprintf(p.w, "    %s %d. %s %s\n", p.yellow("⚠"), idx, desc, p.yellow("("+durStr+")"))
			return
		}
		fmt.Fprintf(p.w, "    %s %d. %s (%s)\n", p.green("✓"), idx, desc, durStr)
		return
	}
	fmt.Fprintf(p.w, "    %s %d. %s (%s)\n", p.red("✗"), idx, desc, durStr)
	if errMsg != "" {
		fmt.Fprintf(p.w, "      %s %s\n", p.gray("╰─"), errMsg)
	}
}

func (p *printer) summary(r report.TestReport, reportPath string) {
	fmt.Fprintln(p.w)
	elapsed := formatDuration(r.Elapsed.Milliseconds())
	if r.Passed > 0 {
		fmt.Fprintf(p.w, "  %s (%s)\n", p.green(fmt.Sprintf("%d steps passing", r.Passed)), elapsed)
	}
	if r.Failed > 0 {
		fmt.Fprintf(p.w, "  %s\n", p.red(fmt.Sprintf("%d steps failing", r.Failed)))
	}
	if r.Partial() {
		fmt.Fprintf(p.w, "  %s %s\n", p.red("⛔ aborted:"), r.AbortReason)
	}
	if reportPath != "" {
		fmt.Fprintf(p.w, "  %s %s\n", p.gray("report:"), reportPath)
	}
	fmt.Fprintln(p.w)
}

// formatDuration formats milliseconds to a human-readable string.
// Shows milliseconds for values < 1s, seconds otherwise.
func formatDuration(ms int64) string {
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	if ms < 60000 {
		return fmt.Sprintf("%.1fs", float64(ms)/1000)
	}
	mins := ms / 60000
	secs := (ms % 60000) / 1000
	return fmt.Sprintf("%dm %ds", mins, secs)
}

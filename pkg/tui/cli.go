// Package tui renders discovery results and progress on the terminal.
package tui

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/schollz/progressbar/v3"

	"github.com/logflow/hminer/pkg/heuristics"
	"github.com/logflow/hminer/pkg/index"
)

// Colors (Swiss minimal)
var (
	accent  = lipgloss.Color("#FF0000")
	muted   = lipgloss.Color("#666666")
	success = lipgloss.Color("#00CC66")
	white   = lipgloss.Color("#FFFFFF")
)

// Styles
var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(white)
	accentStyle  = lipgloss.NewStyle().Foreground(accent).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(muted)
	successStyle = lipgloss.NewStyle().Foreground(success).Bold(true)
)

const rule = "  ─────────────────────────────────────"

// ReportOptions controls what RenderReport prints.
type ReportOptions struct {
	// Source is shown in the header, usually the input path.
	Source string

	// Cached marks a result served from the cache.
	Cached bool

	// Verbose adds stage timings.
	Verbose bool
}

// RenderReport writes a summary of result to w. idx adds case coverage of
// nodes and edges and may be nil.
func RenderReport(w io.Writer, result *heuristics.Result, idx *index.CaseIndex, opts ReportOptions) {
	var sb strings.Builder

	sb.WriteString("\n")
	header := titleStyle.Render("  HEURISTICS MINER")
	if opts.Source != "" {
		header += " " + mutedStyle.Render(opts.Source)
	}
	if opts.Cached {
		header += " " + successStyle.Render("(cached)")
	}
	sb.WriteString(header + "\n")
	sb.WriteString(mutedStyle.Render(rule) + "\n")

	st := result.Stats
	fmt.Fprintf(&sb, "  %s %s  %s %s  %s %s\n",
		mutedStyle.Render("Events:"), titleStyle.Render(formatNumber(int64(st.Events))),
		mutedStyle.Render("Cases:"), titleStyle.Render(formatNumber(int64(st.Cases))),
		mutedStyle.Render("Activities:"), titleStyle.Render(formatNumber(int64(st.Activities))))
	fmt.Fprintf(&sb, "  %s %d %s %d\n",
		mutedStyle.Render("Pairs:"), st.Pairs,
		mutedStyle.Render("after noise filter:"), st.FilteredPairs)
	if st.NoiseReverted {
		sb.WriteString(accentStyle.Render("  ! noise filter removed every pair, unfiltered counts used") + "\n")
	}

	sb.WriteString("\n" + accentStyle.Render("▸ NODES") + "\n")
	width := 0
	for _, n := range result.Nodes {
		if len(n) > width {
			width = len(n)
		}
	}
	for _, n := range result.Nodes {
		line := "    " + titleStyle.Render(pad(n, width))
		if idx != nil && idx.Cases() > 0 {
			line += "  " + mutedStyle.Render(fmt.Sprintf("%d cases (%.0f%%)", idx.CaseFrequency(n), 100*idx.Coverage(n)))
		}
		sb.WriteString(line + "\n")
	}

	sb.WriteString("\n" + accentStyle.Render("▸ EDGES") + "\n")
	if len(result.Edges) == 0 {
		sb.WriteString(mutedStyle.Render("    (none)") + "\n")
	}
	coverage := idx != nil && idx.Cases() > 0
	for _, e := range result.Edges {
		if e.Loop {
			line := fmt.Sprintf("    %s %s %s  %s", e.Source, mutedStyle.Render("⇄"), e.Target, mutedStyle.Render("loop"))
			if coverage {
				line += "  " + mutedStyle.Render(fmt.Sprintf("(%d cases with both)", idx.CasesWithBoth(e.Source, e.Target)))
			}
			sb.WriteString(line + "\n")
			continue
		}
		line := fmt.Sprintf("    %s → %s  %s", e.Source, e.Target, successStyle.Render(fmt.Sprintf("%.3f", e.Weight)))
		if coverage {
			line += "  " + mutedStyle.Render(fmt.Sprintf("(%d cases)", idx.PairCases(e.Source, e.Target)))
		}
		sb.WriteString(line + "\n")
	}

	if opts.Verbose && len(st.Stages) > 0 {
		sb.WriteString("\n" + accentStyle.Render("▸ STAGES") + "\n")
		names := make([]string, 0, len(st.Stages))
		for name := range st.Stages {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(&sb, "    %s %s\n", mutedStyle.Render(pad(name, 14)), formatDuration(st.Stages[name]))
		}
		fmt.Fprintf(&sb, "    %s %s\n", mutedStyle.Render(pad("total", 14)), titleStyle.Render(formatDuration(st.Duration)))
	}
	sb.WriteString("\n")

	io.WriteString(w, sb.String())
}

// PrintSuccess prints a success line to stdout.
func PrintSuccess(format string, args ...interface{}) {
	fmt.Println(successStyle.Render("  ✓ " + fmt.Sprintf(format, args...)))
}

// PrintError prints an error line to stderr.
func PrintError(err error) {
	fmt.Fprintln(os.Stderr, accentStyle.Render("  ✗ "+err.Error()))
}

// PrintInfo prints a muted line to stderr.
func PrintInfo(format string, args ...interface{}) {
	fmt.Fprintln(os.Stderr, mutedStyle.Render("  "+fmt.Sprintf(format, args...)))
}

// Spinner returns an indeterminate progress bar on stderr. Call Finish when
// the work is done.
func Spinner(description string) *progressbar.ProgressBar {
	bar := progressbar.NewOptions64(-1,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription("  "+description),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionThrottle(80*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
	bar.RenderBlank()
	return bar
}

func pad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}

func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}

// FormatBytes formats a byte count, e.g. "1.5 MB".
func FormatBytes(b int64) string {
	return formatBytes(b)
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%dµs", d.Microseconds())
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}

func formatNumber(n int64) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1000000 {
		return fmt.Sprintf("%.1fK", float64(n)/1000)
	}
	return fmt.Sprintf("%.1fM", float64(n)/1000000)
}

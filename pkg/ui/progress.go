package ui

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

const (
	ProgressBar   = "█"
	ProgressEmpty = "░"
)

// QueryResult is the per-query summary shown to the user
type QueryResult struct {
	Query      string
	Candidates int
	Downloaded int
	Skipped    int
	Reasons    map[string]int
	Duration   time.Duration
}

// StatusTracker keeps cumulative counts across queries
type StatusTracker struct {
	TotalDownloaded int
	TotalSkipped    int
	Queries         int
	StartTime       time.Time
}

// NewStatusTracker creates a new status tracker
func NewStatusTracker() *StatusTracker {
	return &StatusTracker{
		StartTime: time.Now(),
	}
}

// Add folds one query result into the totals
func (st *StatusTracker) Add(r QueryResult) {
	st.Queries++
	st.TotalDownloaded += r.Downloaded
	st.TotalSkipped += r.Skipped
}

// GetElapsedTime returns the elapsed time since tracking started
func (st *StatusTracker) GetElapsedTime() time.Duration {
	return time.Since(st.StartTime)
}

// RatioBar renders downloaded out of candidates as a fixed width bar
func RatioBar(done, total int) string {
	const width = 20
	filled := 0
	if total > 0 {
		filled = done * width / total
	}
	if filled > width {
		filled = width
	}
	bar := strings.Repeat(ProgressBar, filled) + strings.Repeat(ProgressEmpty, width-filled)
	return fmt.Sprintf("[%s] %d/%d", bar, done, total)
}

// FormatReasons renders skip counts as "duplicate=3 filtered=1", sorted by name
func FormatReasons(reasons map[string]int) string {
	keys := make([]string, 0, len(reasons))
	for k, n := range reasons {
		if n > 0 {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%d", k, reasons[k])
	}
	return strings.Join(parts, " ")
}

// PrintQueryResult prints the outcome of one query
func (p *Printer) PrintQueryResult(r QueryResult) {
	fmt.Fprintf(p.out, "%s %q %s\n", p.paint(Green)("[HARVESTED]"), r.Query, RatioBar(r.Downloaded, r.Candidates))
	fmt.Fprintf(p.out, "  downloaded: %d  skipped: %d  took: %s\n", r.Downloaded, r.Skipped, r.Duration.Round(time.Millisecond))
	if s := FormatReasons(r.Reasons); s != "" {
		fmt.Fprintf(p.out, "  %s\n", p.paint(Dim)(s))
	}
}

// PrintTotals prints the cumulative counts and the on-disk image count
func (p *Printer) PrintTotals(st *StatusTracker, onDisk int) {
	fmt.Fprintf(p.out, "%s total downloaded: %d | total skipped: %d | images on disk: %d\n",
		p.paint(Magenta)("[TOTAL]"), st.TotalDownloaded, st.TotalSkipped, onDisk)
}

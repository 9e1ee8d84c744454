// Package runloop drives sessions from operator input, one query per line.
package runloop

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
	"imgharvest/pkg/logger"
	"imgharvest/pkg/session"
	"imgharvest/pkg/ui"
)

// PromptText asks for the next query
const PromptText = "Search query (type 'done' to finish): "

// MaxQueryBytes bounds one input line. Longer lines are reported and dropped.
const MaxQueryBytes = 1 << 20

// Runner runs one query
type Runner interface {
	Run(ctx context.Context, query string) (*session.Report, error)
}

// Counter reports how many images are on disk
type Counter interface {
	CountImages() (int, error)
}

// Totals are cumulative counts over all queries in one loop
type Totals struct {
	Queries    int
	Downloaded int
	Skipped    int
}

// Loop reads queries and runs a session for each
type Loop struct {
	runner  Runner
	counter Counter
	in      io.Reader
	printer *ui.Printer
	tracker *ui.StatusTracker
	prompt  bool
	logger  logger.Logger
}

// Option customises a Loop
type Option func(*Loop)

// WithPrompt forces the prompt on or off
func WithPrompt(show bool) Option {
	return func(l *Loop) { l.prompt = show }
}

// WithPrinter replaces the output printer
func WithPrinter(p *ui.Printer) Option {
	return func(l *Loop) { l.printer = p }
}

// New creates a Loop. The prompt is shown only when in is a terminal unless
// WithPrompt says otherwise.
func New(runner Runner, counter Counter, in io.Reader, out io.Writer, log logger.Logger, opts ...Option) *Loop {
	if log == nil {
		log = logger.GetLogger()
	}
	interactive := isTerminal(in)
	l := &Loop{
		runner:  runner,
		counter: counter,
		in:      in,
		printer: ui.NewPrinter(out, interactive && isTerminal(out)),
		tracker: ui.NewStatusTracker(),
		prompt:  interactive,
		logger:  log.WithField("component", "runloop"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func isTerminal(v interface{}) bool {
	f, ok := v.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Run reads lines until "done", EOF or cancellation. Cancellation is only
// observed between queries and is returned as the context error.
func (l *Loop) Run(ctx context.Context) (Totals, error) {
	lines := readLines(l.in, l.logger)

	for {
		if err := ctx.Err(); err != nil {
			return l.totals(), err
		}
		if l.prompt {
			l.printer.Prompt(PromptText)
		}

		var line inputLine
		var ok bool
		select {
		case <-ctx.Done():
			return l.totals(), ctx.Err()
		case line, ok = <-lines:
		}
		if !ok {
			return l.totals(), nil
		}

		if line.tooLong {
			l.logger.WithField("limit", MaxQueryBytes).Warn("Input line too long")
			l.printer.Error(fmt.Sprintf("Query longer than %d bytes ignored", MaxQueryBytes))
			continue
		}
		query := strings.TrimSpace(line.text)
		if query == "" {
			continue
		}
		if strings.EqualFold(query, "done") {
			return l.totals(), nil
		}
		l.runOne(ctx, query)
	}
}

// RunQueries runs the given queries in order without reading input
func (l *Loop) RunQueries(ctx context.Context, queries []string) (Totals, error) {
	for _, q := range queries {
		if err := ctx.Err(); err != nil {
			return l.totals(), err
		}
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		l.runOne(ctx, q)
	}
	return l.totals(), nil
}

// runOne runs a session that cannot be interrupted halfway
func (l *Loop) runOne(ctx context.Context, query string) {
	l.printer.Info("Searching", query)

	report, err := l.runner.Run(context.WithoutCancel(ctx), query)
	if report == nil {
		report = &session.Report{Query: query}
	}
	switch {
	case errors.Is(err, session.ErrNoCandidates):
		l.printer.Warning(fmt.Sprintf("No images found for %q", query))
	case err != nil:
		l.logger.WithError(err).WithField("query", query).Error("Session failed")
		l.printer.Error(fmt.Sprintf("Query %q failed", query), err)
	}

	result := ui.QueryResult{
		Query:      query,
		Candidates: report.Candidates,
		Downloaded: report.Downloaded,
		Skipped:    report.Skipped,
		Duration:   report.Duration,
		Reasons:    make(map[string]int, len(report.Reasons)),
	}
	for reason, n := range report.Reasons {
		if reason != session.ReasonNone {
			result.Reasons[string(reason)] = n
		}
	}
	l.tracker.Add(result)
	l.printer.PrintQueryResult(result)

	onDisk, err := l.counter.CountImages()
	if err != nil {
		l.logger.WithError(err).Warn("Failed to count images on disk")
		onDisk = 0
	}
	l.printer.PrintTotals(l.tracker, onDisk)
}

func (l *Loop) totals() Totals {
	return Totals{
		Queries:    l.tracker.Queries,
		Downloaded: l.tracker.TotalDownloaded,
		Skipped:    l.tracker.TotalSkipped,
	}
}

// inputLine is one line of operator input
type inputLine struct {
	text    string
	tooLong bool
}

// readLines feeds lines from r until EOF. The goroutine may outlive Run when
// r blocks; stdin is never closed underneath it.
func readLines(r io.Reader, log logger.Logger) <-chan inputLine {
	ch := make(chan inputLine)
	go func() {
		defer close(ch)
		br := bufio.NewReader(r)
		for {
			line, err := readLine(br)
			if err == nil || line.text != "" || line.tooLong {
				ch <- line
			}
			if err != nil {
				if !errors.Is(err, io.EOF) {
					log.WithError(err).Warn("Input read failed")
				}
				return
			}
		}
	}()
	return ch
}

// readLine reads up to the next newline, keeping at most MaxQueryBytes.
// The rest of an oversized line is consumed and discarded.
func readLine(br *bufio.Reader) (inputLine, error) {
	var sb strings.Builder
	tooLong := false
	for {
		chunk, err := br.ReadSlice('\n')
		if !tooLong {
			if sb.Len()+len(chunk) > MaxQueryBytes+2 {
				tooLong = true
				sb.Reset()
			} else {
				sb.Write(chunk)
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if tooLong {
			return inputLine{tooLong: true}, err
		}
		return inputLine{text: strings.TrimRight(sb.String(), "\r\n")}, err
	}
}

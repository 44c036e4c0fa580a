package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// ProgressReporter reports progress for long-running operations.
type ProgressReporter interface {
	Start(total int64)
	Update(current int64)
	Finish()
	Error(err error)
}

// SimpleProgress renders a bar that redraws in place on a terminal and
// falls back to one line per tenth of the work elsewhere.
type SimpleProgress struct {
	mu          sync.Mutex
	total       int64
	current     int64
	started     time.Time
	writer      io.Writer
	interactive bool
	width       int
	lastDecile  int64
}

// NewProgressReporter creates a new progress reporter that writes to w.
// If w is nil, it defaults to os.Stderr.
func NewProgressReporter(w io.Writer) ProgressReporter {
	if w == nil {
		w = os.Stderr
	}
	return &SimpleProgress{
		writer:      w,
		interactive: IsTerminal(w),
		width:       TerminalWidth(w, 80),
	}
}

// Start initializes the progress reporter with the total number of items.
func (p *SimpleProgress) Start(total int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.total = total
	p.current = 0
	p.lastDecile = -1
	p.started = time.Now()
	p.render()
}

// Update updates the current progress. Out-of-order updates from
// concurrent workers never move the bar backwards.
func (p *SimpleProgress) Update(current int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if current < p.current {
		return
	}
	p.current = min(current, p.total)
	p.render()
}

// Finish marks the progress as complete.
func (p *SimpleProgress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.total == 0 {
		return
	}
	p.current = p.total
	p.render()
	if p.interactive {
		fmt.Fprintln(p.writer)
	}
}

// Error reports an error during progress.
func (p *SimpleProgress) Error(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.interactive {
		fmt.Fprintln(p.writer)
	}
	fmt.Fprintf(p.writer, "Error: %v\n", err)
}

func (p *SimpleProgress) render() {
	if p.total <= 0 {
		return
	}

	percent := float64(p.current) / float64(p.total) * 100
	elapsed := time.Since(p.started)
	rate := 0.0
	if s := elapsed.Seconds(); s > 0 {
		rate = float64(p.current) / s
	}

	if !p.interactive {
		decile := p.current * 10 / p.total
		if decile == p.lastDecile {
			return
		}
		p.lastDecile = decile
		fmt.Fprintf(p.writer, "Progress: %.0f%% (%d/%d) %.1f/s\n", percent, p.current, p.total, rate)
		return
	}

	barWidth := max(10, min(40, p.width-40))
	filled := int(float64(barWidth) * percent / 100)
	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)
	fmt.Fprintf(p.writer, "\rProgress: [%s] %.1f%% (%d/%d) %.1f/s", bar, percent, p.current, p.total, rate)
}

package cli

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"testing"
)

func TestProgressNonInteractive(t *testing.T) {
	buf := &bytes.Buffer{}
	progress := NewProgressReporter(buf)

	progress.Start(100)
	for i := int64(1); i <= 100; i++ {
		progress.Update(i)
	}
	progress.Finish()

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 11 {
		t.Fatalf("expected one line per decile, got %d:\n%s", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[0], "Progress: 0% (0/100)") {
		t.Errorf("unexpected first line %q", lines[0])
	}
	if !strings.HasPrefix(lines[10], "Progress: 100% (100/100)") {
		t.Errorf("unexpected last line %q", lines[10])
	}
	if strings.Contains(buf.String(), "\r") {
		t.Error("non-terminal output must not use carriage returns")
	}
}

func TestProgressZeroTotal(t *testing.T) {
	buf := &bytes.Buffer{}
	progress := NewProgressReporter(buf)

	progress.Start(0)
	progress.Update(0)
	progress.Finish()

	if buf.Len() != 0 {
		t.Errorf("expected no output, got %q", buf.String())
	}
}

func TestProgressNeverMovesBackwards(t *testing.T) {
	progress := NewProgressReporter(&bytes.Buffer{}).(*SimpleProgress)

	progress.Start(10)
	progress.Update(7)
	progress.Update(3)
	if progress.current != 7 {
		t.Errorf("expected 7, got %d", progress.current)
	}
	progress.Update(50)
	if progress.current != 10 {
		t.Errorf("expected clamp to total, got %d", progress.current)
	}
}

func TestProgressError(t *testing.T) {
	buf := &bytes.Buffer{}
	progress := NewProgressReporter(buf)

	progress.Start(100)
	progress.Error(fmt.Errorf("test error"))

	if !strings.Contains(buf.String(), "Error: test error") {
		t.Errorf("expected error line, got %q", buf.String())
	}
}

func TestProgressConcurrent(t *testing.T) {
	buf := &bytes.Buffer{}
	progress := NewProgressReporter(buf)
	progress.Start(1000)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(start int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				progress.Update(int64(start*100 + j))
			}
		}(i)
	}
	wg.Wait()
	progress.Finish()

	if !strings.Contains(buf.String(), "100%") {
		t.Error("expected completed progress output")
	}
}

func TestIsTerminal(t *testing.T) {
	if IsTerminal(&bytes.Buffer{}) {
		t.Error("a buffer is never a terminal")
	}
	if got := TerminalWidth(&bytes.Buffer{}, 72); got != 72 {
		t.Errorf("expected fallback width, got %d", got)
	}
}

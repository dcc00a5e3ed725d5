package observability

import (
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"golang.org/x/term"
)

var startTime = time.Now()

const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorCyan   = "\033[36m"
	colorPurple = "\033[35m"
)

// termMu synchronizes all terminal output so that status lines
// are never interleaved with log writes.
var termMu sync.Mutex

func termWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return 80
	}
	return w
}

// termWriter is a mutex-guarded io.Writer for log output.
type termWriter struct{}

func (tw termWriter) Write(p []byte) (n int, err error) {
	termMu.Lock()
	defer termMu.Unlock()
	return os.Stderr.Write(p)
}

// NewTermWriter returns an io.Writer suitable for log.SetOutput().
func NewTermWriter() termWriter {
	return termWriter{}
}

// PrintBanner writes the startup banner.
func PrintBanner() {
	termMu.Lock()
	defer termMu.Unlock()

	fmt.Printf("%s%s VIDYA %s study companion core%s\n", colorBold, colorPurple, colorCyan, colorReset)
	fmt.Printf("  go %s · %s/%s · cols %d\n", runtime.Version(), runtime.GOOS, runtime.GOARCH, termWidth())
}

// PrintLiveStatus writes a one-line status summary. Intended to be
// called periodically from main.
func PrintLiveStatus() {
	phase, turn, beat := GetStatus()

	termMu.Lock()
	defer termMu.Unlock()

	uptime := time.Since(startTime).Round(time.Second)
	line := fmt.Sprintf("[%s] up %s · last beat %s", phase, uptime, time.Since(beat).Round(time.Second))
	if turn != "" {
		line += " · turn " + turn
	}
	if n := ActiveTurnCount(); n > 1 {
		line += fmt.Sprintf(" (+%d more)", n-1)
	}
	fmt.Fprintf(os.Stderr, "\r%-*s", termWidth()-1, line)
}

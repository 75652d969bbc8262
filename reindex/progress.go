package reindex

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// ProgressTracker reports how many documents a rebuild has written.
// The number of documents is not known up front, so only counts and the
// rate are reported.
type ProgressTracker struct {
	writer         io.Writer
	reportInterval int
	done           int
	skipped        int
	failed         int
	lastReported   int
	startTime      time.Time
	started        bool
	mu             sync.Mutex
}

// NewProgressTracker creates a progress tracker writing to writer every
// reportInterval processed documents. A nil writer discards the output.
func NewProgressTracker(writer io.Writer, reportInterval int) *ProgressTracker {
	if writer == nil {
		writer = io.Discard
	}
	if reportInterval <= 0 {
		reportInterval = 1
	}
	return &ProgressTracker{
		writer:         writer,
		reportInterval: reportInterval,
	}
}

// Start begins tracking progress.
func (p *ProgressTracker) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.startTime = time.Now()
	p.started = true
	p.done, p.skipped, p.failed, p.lastReported = 0, 0, 0, 0
}

// Indexed counts a document written to the new index.
func (p *ProgressTracker) Indexed() { p.add(&p.done) }

// Skipped counts a document that was gone or deleted when it was read.
func (p *ProgressTracker) Skipped() { p.add(&p.skipped) }

// Failed counts a document that could not be written.
func (p *ProgressTracker) Failed() { p.add(&p.failed) }

func (p *ProgressTracker) add(counter *int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return
	}
	*counter++
	if n := p.processed(); n-p.lastReported >= p.reportInterval {
		p.report()
		p.lastReported = n
	}
}

// Counts returns the indexed, skipped and failed totals.
func (p *ProgressTracker) Counts() (indexed, skipped, failed int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done, p.skipped, p.failed
}

// Finish prints the final progress.
func (p *ProgressTracker) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return
	}
	p.report()
	fmt.Fprintln(p.writer)
}

// Elapsed returns the time elapsed since Start was called.
func (p *ProgressTracker) Elapsed() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return 0
	}
	return time.Since(p.startTime)
}

func (p *ProgressTracker) processed() int {
	return p.done + p.skipped + p.failed
}

// report prints the current progress. Must be called with lock held.
func (p *ProgressTracker) report() {
	rate := 0.0
	if elapsed := time.Since(p.startTime).Seconds(); elapsed > 0 {
		rate = float64(p.processed()) / elapsed
	}
	fmt.Fprintf(p.writer, "\rIndexed: %d, skipped: %d, failed: %d - %.1f documents/s",
		p.done, p.skipped, p.failed, rate)
}

// Package progress draws terminal progress for sync runs and file transfers.
// Bars are only drawn on an interactive, colored stderr; otherwise the start and
// end of the work are logged at debug level.
package progress

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"github.com/klauern/padsync/internal/logging"
	"github.com/klauern/padsync/internal/ui"
)

// Bar is a progress indicator that becomes a no-op when output is not interactive.
type Bar struct {
	bar   *progressbar.ProgressBar
	label string
}

// Options configures a bar.
type Options struct {
	// Total is the number of steps, or -1 for a spinner.
	Total int64
	// Label is shown before the bar.
	Label string
	// Out defaults to os.Stderr.
	Out io.Writer
	// Bytes renders the counter as a byte size with a transfer rate.
	Bytes bool
}

// New returns a bar for opts.
func New(opts Options) *Bar {
	if opts.Out == nil {
		opts.Out = os.Stderr
	}
	b := &Bar{label: opts.Label}
	if !interactive(opts.Out) {
		logging.Debug(opts.Label+" started", logging.Count(int(opts.Total)))
		return b
	}

	barOpts := []progressbar.Option{
		progressbar.OptionSetDescription(opts.Label),
		progressbar.OptionSetWriter(opts.Out),
		progressbar.OptionSetWidth(20),
		progressbar.OptionThrottle(65 * time.Millisecond),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionEnableColorCodes(ui.IsColorEnabled()),
		progressbar.OptionOnCompletion(func() {
			_, _ = io.WriteString(opts.Out, "\n")
		}),
	}
	if opts.Bytes {
		barOpts = append(barOpts, progressbar.OptionShowBytes(true))
	} else if opts.Total > 0 {
		barOpts = append(barOpts, progressbar.OptionShowCount(), progressbar.OptionShowElapsedTimeOnFinish())
	}
	b.bar = progressbar.NewOptions64(opts.Total, barOpts...)
	return b
}

// Spinner is an indeterminate indicator for one step of unknown length,
// such as a single sync attempt.
func Spinner(label string) *Bar {
	return New(Options{Total: -1, Label: label})
}

// Simple counts total steps, one per profile in a batch sync.
func Simple(total int64, label string) *Bar {
	return New(Options{Total: total, Label: label})
}

// Reader wraps r so reading it advances a byte bar of size bytes.
// Close the returned bar when reading is done.
func Reader(r io.Reader, size int64, label string) (io.Reader, *Bar) {
	b := New(Options{Total: size, Label: label, Bytes: true})
	if b.bar == nil {
		return r, b
	}
	pr := progressbar.NewReader(r, b.bar)
	return &pr, b
}

// Active reports whether the bar is drawn.
func (b *Bar) Active() bool {
	return b.bar != nil
}

// Add advances the bar by n steps.
func (b *Bar) Add(n int) error {
	if b.bar == nil {
		return nil
	}
	return b.bar.Add(n)
}

// Describe replaces the label.
func (b *Bar) Describe(label string) {
	b.label = label
	if b.bar != nil {
		b.bar.Describe(label)
	}
}

// Finish completes the bar.
func (b *Bar) Finish() error {
	if b.bar == nil {
		logging.Debug(b.label + " finished")
		return nil
	}
	return b.bar.Finish()
}

// Clear erases the bar from the terminal.
func (b *Bar) Clear() error {
	if b.bar == nil {
		return nil
	}
	return b.bar.Clear()
}

// interactive reports whether bars should be drawn on w: colors on, w a
// terminal, and debug logging off so log lines are not interleaved.
func interactive(w io.Writer) bool {
	if !ui.IsColorEnabled() {
		return false
	}
	if f, ok := w.(*os.File); ok && !term.IsTerminal(int(f.Fd())) {
		return false
	}
	return !logging.Default().Enabled(context.Background(), logging.LevelDebug)
}

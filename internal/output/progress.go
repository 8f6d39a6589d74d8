// internal/output/progress.go
// Progress bar and debug snapshot reporters

package output

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aspnmy/porttester/internal/models"
	"github.com/aspnmy/porttester/pkg/logger"
	"github.com/aspnmy/porttester/pkg/throttle"
)

// ProgressBarConfig configures a ProgressBar
type ProgressBarConfig struct {
	Width       int           // bar cells between the brackets, see FitWidth
	Refresh     time.Duration // min spacing between redraws
	Color       bool
	Interactive bool // redraw in place with \r instead of printing lines
}

// ProgressBar renders "(done/total) [ ####      ]". Overlapping updates are
// serialized and an update older than the one already shown is dropped, so
// the displayed count never goes backwards.
type ProgressBar struct {
	w        io.Writer
	cfg      ProgressBarConfig
	throttle *throttle.Throttle
	styles   palette
	log      *zap.Logger

	mu    sync.Mutex
	shown int
}

// NewProgressBar creates a progress bar writing to w
func NewProgressBar(w io.Writer, cfg ProgressBarConfig) *ProgressBar {
	if cfg.Width <= 0 {
		cfg.Width = 50
	}
	return &ProgressBar{
		w:        w,
		cfg:      cfg,
		throttle: throttle.New(throttle.Config{Interval: cfg.Refresh}),
		styles:   newPalette(w, cfg.Color),
		log:      logger.Named("progress"),
		shown:    -1,
	}
}

// Update redraws the bar unless throttled. The final update always draws.
func (b *ProgressBar) Update(progress models.Progress) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if progress.Done <= b.shown {
		return
	}
	if progress.Done < progress.Total && progress.Done > 0 && !b.throttle.Allow() {
		return
	}
	b.shown = progress.Done
	b.draw(progress)
}

// Finish draws the final state and ends the line
func (b *ProgressBar) Finish(final models.Progress) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if final.Done > b.shown {
		b.shown = final.Done
		b.draw(final)
	}
	if b.cfg.Interactive {
		fmt.Fprintln(b.w)
	}

	stats := b.throttle.GetStats()
	b.log.Debug("Progress finished",
		zap.Int("width", b.cfg.Width),
		zap.Int64("redraws_allowed", stats.Allowed),
		zap.Int64("redraws_suppressed", stats.Suppressed),
	)
}

func (b *ProgressBar) draw(p models.Progress) {
	line := fmt.Sprintf("%s [ %s ]",
		b.styles.count.Render(fmt.Sprintf("(%d/%d)", p.Done, p.Total)),
		b.styles.bar.Render(Bar(p.Done, p.Total, b.cfg.Width)),
	)
	if b.cfg.Interactive {
		fmt.Fprint(b.w, "\r"+line)
		return
	}
	fmt.Fprintln(b.w, line)
}

// minBarWidth keeps the bar readable on very narrow terminals
const minBarWidth = 10

// FitWidth returns the bar width that keeps "(total/total) [ bar ]" on one
// line of cols columns. cols <= 0 means the size is unknown and yields
// fallback.
func FitWidth(cols, total, fallback int) int {
	if cols <= 0 {
		return fallback
	}
	label := len(fmt.Sprintf("(%d/%d) [  ]", total, total))
	// the last column stays free so a \r redraw never wraps
	return max(cols-label-1, minBarWidth)
}

// Bar returns a fixed-width bar with done/total of the cells filled
func Bar(done, total, width int) string {
	if width <= 0 {
		return ""
	}
	fill := width
	if total > 0 {
		fill = width * done / total
	}
	fill = min(max(fill, 0), width)
	return strings.Repeat("#", fill) + strings.Repeat(" ", width-fill)
}

// DebugReporter prints the open-port accumulator after every completion
type DebugReporter struct {
	w      io.Writer
	styles palette
	mu     sync.Mutex
}

// NewDebugReporter creates a debug reporter
func NewDebugReporter(w io.Writer, color bool) *DebugReporter {
	return &DebugReporter{w: w, styles: newPalette(w, color)}
}

// Update prints one snapshot line
func (d *DebugReporter) Update(progress models.Progress) {
	d.mu.Lock()
	defer d.mu.Unlock()

	open := progress.Open
	if open == nil {
		open = []int{}
	}
	fmt.Fprintln(d.w, d.styles.debug.Render(fmt.Sprintf("[DEBUG] %d/%d %v", progress.Done, progress.Total, open)))
}

// Finish is a no-op for debug output
func (d *DebugReporter) Finish(models.Progress) {}

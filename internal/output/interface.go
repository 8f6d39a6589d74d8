// internal/output/interface.go
// Output interfaces

package output

import (
	"errors"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"golang.org/x/term"

	"github.com/aspnmy/porttester/internal/models"
)

// ProgressReporter receives progress after every completed probe.
// Update may be called concurrently and out of order.
type ProgressReporter interface {
	// Update reports the latest (done, total)
	Update(progress models.Progress)

	// Finish is called once after the last probe
	Finish(final models.Progress)
}

// MultiReporter fans progress out to several reporters
type MultiReporter struct {
	reporters []ProgressReporter
}

// NewMultiReporter creates a multi-reporter, skipping nil entries
func NewMultiReporter(reporters ...ProgressReporter) *MultiReporter {
	m := &MultiReporter{}
	for _, r := range reporters {
		if r != nil {
			m.reporters = append(m.reporters, r)
		}
	}
	return m
}

// Update forwards to all reporters
func (m *MultiReporter) Update(progress models.Progress) {
	for _, r := range m.reporters {
		r.Update(progress)
	}
}

// Finish forwards to all reporters
func (m *MultiReporter) Finish(final models.Progress) {
	for _, r := range m.reporters {
		r.Finish(final)
	}
}

// IsTerminal reports whether f is attached to a terminal
func IsTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// TerminalColumns returns the width of the terminal f is attached to, or
// false when f is not a terminal or its size is unknown.
func TerminalColumns(f *os.File) (int, bool) {
	cols, _, err := term.GetSize(int(f.Fd()))
	if err != nil || cols <= 0 {
		return 0, false
	}
	return cols, true
}

// palette holds the styles shared by reporters and presenters
type palette struct {
	count   lipgloss.Style
	bar     lipgloss.Style
	debug   lipgloss.Style
	port    lipgloss.Style
	warn    lipgloss.Style
	number  lipgloss.Style
	header  lipgloss.Style
	cell    lipgloss.Style
	border  lipgloss.Style
	opened  lipgloss.Style
	blocked lipgloss.Style
}

// newPalette binds styles to w so color is only emitted where w supports it
func newPalette(w io.Writer, color bool) palette {
	r := lipgloss.NewRenderer(w)
	plain := r.NewStyle()
	cell := r.NewStyle().Padding(0, 1)
	if !color {
		return palette{
			count: plain, bar: plain, debug: plain, port: plain, warn: plain, number: plain,
			header: cell.Bold(true), cell: cell, border: plain, opened: cell, blocked: cell,
		}
	}
	return palette{
		count:   r.NewStyle().Foreground(lipgloss.Color("6")),
		bar:     r.NewStyle().Foreground(lipgloss.Color("118")),
		debug:   r.NewStyle().Foreground(lipgloss.Color("3")),
		port:    r.NewStyle().Foreground(lipgloss.Color("69")),
		warn:    r.NewStyle().Foreground(lipgloss.Color("9")),
		number:  r.NewStyle().Foreground(lipgloss.Color("51")),
		header:  cell.Bold(true).Foreground(lipgloss.Color("#FAFAFA")).Background(lipgloss.Color("#7D56F4")),
		cell:    cell,
		border:  r.NewStyle().Foreground(lipgloss.Color("#7D56F4")),
		opened:  cell.Foreground(lipgloss.Color("#04B575")),
		blocked: cell.Foreground(lipgloss.Color("#FF6B6B")),
	}
}

// Common output errors
var (
	ErrUnknownFormat = errors.New("unknown output format")
	ErrNoResult      = errors.New("no result to present")
)

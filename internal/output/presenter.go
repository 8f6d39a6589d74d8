// internal/output/presenter.go
// Final result presentation (list, table, json)

package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/aspnmy/porttester/internal/models"
)

// Presenter renders a FinalResult in one of the supported formats
type Presenter struct {
	format string
	writer io.Writer
	styles palette
}

// NewPresenter creates a presenter
func NewPresenter(format string, color bool, w io.Writer) *Presenter {
	return &Presenter{
		format: format,
		writer: w,
		styles: newPalette(w, color),
	}
}

// Present outputs the result in the configured format
func (p *Presenter) Present(res *models.FinalResult) error {
	if res == nil {
		return ErrNoResult
	}
	switch p.format {
	case "list", "":
		return p.presentList(res)
	case "table":
		return p.presentTable(res)
	case "json":
		return p.presentJSON(res)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownFormat, p.format)
	}
}

func (p *Presenter) presentList(res *models.FinalResult) error {
	if err := p.elapsed(res); err != nil {
		return err
	}

	if len(res.Ports) == 0 {
		return p.none(res)
	}

	if _, err := fmt.Fprintf(p.writer, "List of ports %s\n", res.State()); err != nil {
		return err
	}
	for _, port := range res.Ports {
		if _, err := fmt.Fprintf(p.writer, "  - %s\n", p.styles.port.Render(fmt.Sprintf("%5d", port))); err != nil {
			return err
		}
	}
	return nil
}

func (p *Presenter) elapsed(res *models.FinalResult) error {
	_, err := fmt.Fprintf(p.writer, "\nTime elapsed: %s\n\n", FormatElapsed(res.Elapsed))
	return err
}

func (p *Presenter) none(res *models.FinalResult) error {
	_, err := fmt.Fprintf(p.writer, "%s %s %s %s %s\n",
		p.styles.warn.Render("  - None of port between"),
		p.styles.number.Render(strconv.Itoa(res.Range.From)),
		p.styles.warn.Render("to"),
		p.styles.number.Render(strconv.Itoa(res.Range.To)),
		p.styles.warn.Render(res.State()+"..."),
	)
	return err
}

func (p *Presenter) presentTable(res *models.FinalResult) error {
	if len(res.Ports) == 0 {
		if err := p.elapsed(res); err != nil {
			return err
		}
		return p.none(res)
	}

	state := res.State()
	stateStyle := p.styles.opened
	if res.Blocked {
		stateStyle = p.styles.blocked
	}

	rows := make([][]string, len(res.Ports))
	for i, port := range res.Ports {
		rows[i] = []string{strconv.Itoa(port), state}
	}

	// Headers are pre-rendered so the style func only deals with data cells
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(p.styles.border).
		Headers(p.styles.header.Render("PORT"), p.styles.header.Render("STATE")).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if col == 1 {
				return stateStyle
			}
			return p.styles.cell
		})

	if _, err := fmt.Fprintln(p.writer, t.Render()); err != nil {
		return err
	}
	_, err := fmt.Fprintf(p.writer, "\nTotal: %d of %d ports %s (%s:%s) in %s\n",
		len(res.Ports), res.Probed, state, res.Endpoint.Host, res.Range, FormatElapsed(res.Elapsed))
	return err
}

// jsonResult is the stable json shape of a FinalResult
type jsonResult struct {
	RunID     string `json:"run_id"`
	Protocol  string `json:"protocol"`
	Host      string `json:"host"`
	Path      string `json:"path,omitempty"`
	From      int    `json:"from"`
	To        int    `json:"to"`
	State     string `json:"state"`
	Ports     []int  `json:"ports"`
	Probed    int    `json:"probed"`
	ElapsedMS int64  `json:"elapsed_ms"`
}

func (p *Presenter) presentJSON(res *models.FinalResult) error {
	ports := res.Ports
	if ports == nil {
		ports = []int{}
	}
	encoder := json.NewEncoder(p.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(jsonResult{
		RunID:     res.RunID,
		Protocol:  res.Endpoint.Protocol,
		Host:      res.Endpoint.Host,
		Path:      res.Endpoint.Path,
		From:      res.Range.From,
		To:        res.Range.To,
		State:     res.State(),
		Ports:     ports,
		Probed:    res.Probed,
		ElapsedMS: res.Elapsed.Milliseconds(),
	})
}

// FormatElapsed rounds to whole seconds, or to milliseconds below one second
func FormatElapsed(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(time.Second).String()
}

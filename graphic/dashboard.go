// Package graphic draws the pipeline state on the terminal.
package graphic

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/noriah/brainwave"
	"github.com/noriah/brainwave/dsp"
	"github.com/nsf/termbox-go"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// DefaultRefreshRate is how often the dashboard redraws.
const DefaultRefreshRate = 50 * time.Millisecond

// Styles
const (
	StyleDefault     = termbox.ColorDefault
	StyleDefaultBack = termbox.ColorDefault
	StyleTitle       = termbox.ColorWhite | termbox.AttrBold
	StyleError       = termbox.ColorRed
	StyleFatigue     = termbox.ColorBlue
	StyleFocus       = termbox.ColorGreen
	StyleCritical    = termbox.ColorRed
)

const (
	barWidth    = 8
	barGap      = 4
	tableTop    = 3
	tableWidth  = 43
	footerLines = 2
)

// Controller is the part of a pipeline the dashboard drives.
type Controller interface {
	Start(ctx context.Context) error
	Stop() error
	Snapshot() brainwave.Snapshot
}

// Dashboard polls snapshots and draws a table of channel values beside the
// fatigue and focus bars. Keys: s starts, x stops, q or Ctrl-C quits.
type Dashboard struct {
	ctrl Controller
	rate time.Duration
	log  *zap.Logger

	restore func()

	// eases both bars down after a peak.
	falloff *dsp.Falloff
	session string

	// serializes start and stop requests from the keyboard.
	ctrlMu sync.Mutex
}

// NewDashboard returns a dashboard for ctrl redrawing every rate.
func NewDashboard(ctrl Controller, rate time.Duration, logger *zap.Logger) *Dashboard {
	if rate <= 0 {
		rate = DefaultRefreshRate
	}

	return &Dashboard{
		ctrl:    ctrl,
		rate:    rate,
		log:     logger,
		falloff: dsp.NewFalloff(2, dsp.DefaultFalloffWeight),
	}
}

// Init takes over the terminal.
func (d *Dashboard) Init() error {
	restore, err := normalizeTerminal()
	if err != nil {
		return errors.Wrap(err, "failed to normalize terminal")
	}

	if err := termbox.Init(); err != nil {
		restore()
		return errors.Wrap(err, "failed to init termbox")
	}

	termbox.HideCursor()
	termbox.SetInputMode(termbox.InputEsc)

	d.restore = restore

	return nil
}

// Close gives the terminal back.
func (d *Dashboard) Close() error {
	termbox.Close()

	if d.restore != nil {
		d.restore()
	}

	return nil
}

// Run draws until ctx ends or the user quits. Sessions started from the
// keyboard live until ctx ends.
func (d *Dashboard) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	polling := make(chan struct{})
	go func() {
		defer close(polling)
		d.poll(ctx, cancel)
	}()

	ticker := time.NewTicker(d.rate)
	defer ticker.Stop()

	for {
		if err := d.draw(d.ctrl.Snapshot()); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			select {
			case <-polling:
			default:
				// wake the poller. Interrupt blocks until it is received.
				go termbox.Interrupt()
			}
			return nil
		case <-ticker.C:
		}
	}
}

// poll handles key events. It cancels the run on quit.
func (d *Dashboard) poll(ctx context.Context, quit context.CancelFunc) {
	defer quit()

	for {
		ev := termbox.PollEvent()

		select {
		case <-ctx.Done():
			return
		default:
		}

		switch ev.Type {
		case termbox.EventKey:
			switch {
			case ev.Key == termbox.KeyCtrlC, ev.Ch == 'q', ev.Ch == 'Q':
				return

			case ev.Ch == 's', ev.Ch == 'S':
				go d.control(func() error { return d.ctrl.Start(ctx) }, "start")

			case ev.Ch == 'x', ev.Ch == 'X':
				go d.control(d.ctrl.Stop, "stop")
			}

		case termbox.EventError:
			d.log.Error("[dashboard] terminal error", zap.Error(ev.Err))
			return

		case termbox.EventInterrupt:
			return
		}
	}
}

func (d *Dashboard) control(fn func() error, what string) {
	d.ctrlMu.Lock()
	defer d.ctrlMu.Unlock()

	if err := fn(); err != nil {
		d.log.Warn("[dashboard] "+what+" failed", zap.Error(err))
	}
}

func (d *Dashboard) draw(s brainwave.Snapshot) error {
	if err := termbox.Clear(StyleDefault, StyleDefaultBack); err != nil {
		return errors.Wrap(err, "failed to clear screen")
	}

	width, height := termbox.Size()

	printAt(0, 0, StyleTitle, fmt.Sprintf("brainwave  %-9s  session %s", s.State, shortID(s.Session)))
	printAt(0, 1, StyleDefault, fmt.Sprintf("samples %d  t %.2fs", s.Samples, s.Timestamp))

	if s.LastError != nil {
		printAt(0, 2, StyleError, s.LastError.Error())
	}

	barsLeft := width - 2*barWidth - barGap - 1
	plotWidth := width - tableWidth - 2
	if barsLeft > 40 {
		plotWidth = barsLeft - tableWidth - 2
	}

	d.drawTable(s, height, plotWidth)

	if barsLeft > 40 {
		m := s.Metrics
		rows := height - tableTop - footerLines - 2

		fatigueStyle := StyleFatigue
		if m.FatigueCritical {
			fatigueStyle = StyleCritical
		}

		focusStyle := StyleFocus
		if m.FocusCritical {
			focusStyle = StyleCritical
		}

		fatigue, focus := d.levels(s)

		drawBar(barsLeft, tableTop, rows, barRows(fatigue, rows), fatigueStyle,
			"fatigue", fmt.Sprintf("%.0f", m.FatigueLevel))

		focusLabel := "-"
		if m.FocusReady {
			focusLabel = fmt.Sprintf("%.1f", m.FocusLevel)
		}

		drawBar(barsLeft+barWidth+barGap, tableTop, rows, barRows(focus, rows), focusStyle,
			"focus", focusLabel)
	}

	printAt(0, height-1, StyleDefault, "s start  x stop  q quit")

	return termbox.Flush()
}

// levels returns the bar levels for s. A new session starts from empty bars.
func (d *Dashboard) levels(s brainwave.Snapshot) (float64, float64) {
	if s.Session != d.session {
		d.session = s.Session
		d.falloff.Reset()
	}

	return d.falloff.Update(0, s.Metrics.FatigueLevel), d.falloff.Update(1, s.Metrics.FocusLevel)
}

func (d *Dashboard) drawTable(s brainwave.Snapshot, height, plotWidth int) {
	printAt(0, tableTop, StyleTitle, fmt.Sprintf("%-4s %12s %12s %12s", "ch", "latest", "mean", "std"))

	for ch, v := range s.Latest {
		y := tableTop + 1 + ch
		if y >= height-footerLines {
			return
		}

		line := fmt.Sprintf("%-4d %12.2f", ch+1, v)
		if ch < len(s.Stats) {
			line += fmt.Sprintf(" %12.2f %12.2f", s.Stats[ch].Mean, s.Stats[ch].StdDev)
		}

		printAt(0, y, StyleDefault, line)

		if ch < len(s.Channels) {
			drawPlot(tableWidth+1, y, s.Channels[ch], plotWidth)
		}
	}
}

// drawPlot draws a channel window as a one-row plot, red above the
// threshold.
func drawPlot(x, y int, values []float64, width int) {
	line, over := sparkline(values, width, PlotThreshold)

	for idx, r := range line {
		style := StyleFocus
		if over[idx] {
			style = StyleCritical
		}
		termbox.SetCell(x+idx, y, r, style, StyleDefaultBack)
	}
}

// drawBar draws a bar of value rows up from the bottom of a rows tall box at
// x, y, with the title above and the label below.
func drawBar(x, y, rows int, value float64, style termbox.Attribute, title, label string) {
	if rows < 1 {
		return
	}

	printAt(x, y, StyleTitle, title)
	printAt(x, y+rows+2, style, label)

	stop, top := stopAndTop(value, rows)
	base := y + 1

	for xCol := x; xCol < x+barWidth; xCol++ {
		for xRow := stop; xRow < rows; xRow++ {
			termbox.SetCell(xCol, base+xRow, BarRune, style, StyleDefaultBack)
		}

		if stop > 0 && top != ' ' {
			termbox.SetCell(xCol, base+stop-1, top, style, StyleDefaultBack)
		}
	}
}

func printAt(x, y int, fg termbox.Attribute, s string) {
	for _, r := range s {
		termbox.SetCell(x, y, r, fg, StyleDefaultBack)
		x++
	}
}

func shortID(id string) string {
	if id == "" {
		return "-"
	}

	if len(id) > 8 {
		return id[:8]
	}

	return id
}

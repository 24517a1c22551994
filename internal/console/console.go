// Package console prints fleet events for an operator watching a run.
package console

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/fatih/color"

	"github.com/roach88/qfleet/internal/fleet"
)

// Printer formats events, one line each.
type Printer struct {
	w        io.Writer
	useColor bool
}

// NewPrinter creates a printer. Colour is used only when w is stdout or
// stderr and colour output is not disabled.
func NewPrinter(w io.Writer) *Printer {
	if w == nil {
		w = os.Stdout
	}
	useColor := false
	if f, ok := w.(*os.File); ok && !color.NoColor {
		useColor = f == os.Stdout || f == os.Stderr
	}
	return &Printer{w: w, useColor: useColor}
}

// NewPlainPrinter creates a printer that never colours.
func NewPlainPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// Print writes one event.
func (p *Printer) Print(e fleet.Event) {
	fmt.Fprintln(p.w, p.Format(e))
}

// Format renders an event as "#seq type key=value ...".
func (p *Printer) Format(e fleet.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "#%-4d %s", e.Seq, p.colorize(string(e.Type), typeColor(e)))

	keys := make([]string, 0, len(e.Data))
	for k := range e.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := fmt.Sprint(e.Data[k])
		if k == "status" {
			v = p.colorize(v, statusColor(v))
		}
		fmt.Fprintf(&b, " %s=%s", k, v)
	}
	return b.String()
}

// Follow prints events from bus as they arrive until ctx is done or the
// bus closes, then prints whatever is left.
func (p *Printer) Follow(ctx context.Context, bus *fleet.Bus) {
	const batch = 100
	flush := func() {
		for _, e := range bus.Drain(batch) {
			p.Print(e)
		}
	}
	for {
		select {
		case <-ctx.Done():
			for bus.Len() > 0 {
				flush()
			}
			return
		case _, ok := <-bus.Wait():
			for bus.Len() > 0 {
				flush()
			}
			if !ok {
				return
			}
		}
	}
}

func (p *Printer) colorize(text string, attrs ...color.Attribute) string {
	if !p.useColor || len(attrs) == 0 {
		return text
	}
	return color.New(attrs...).Sprint(text)
}

func typeColor(e fleet.Event) color.Attribute {
	switch e.Type {
	case fleet.EventQueryFailed, fleet.EventGenerationFailed:
		return color.FgRed
	case fleet.EventAwaitingApproval, fleet.EventPaused:
		return color.FgYellow
	case fleet.EventApproved, fleet.EventResumed, fleet.EventQueryCompleted:
		return color.FgGreen
	case fleet.EventPipelineStarted, fleet.EventPipelineCompleted:
		return color.FgCyan
	}
	return color.FgBlue
}

func statusColor(status string) color.Attribute {
	switch status {
	case "WIN", "IMPROVED":
		return color.FgGreen
	case "NEUTRAL":
		return color.FgYellow
	}
	return color.FgRed
}

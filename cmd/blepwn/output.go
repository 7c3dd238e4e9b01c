package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/srg/blepwn/internal/device"
	"github.com/srg/blepwn/internal/notify"
	"golang.org/x/term"
)

const eventTimeFormat = "15:04:05.000"

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// eventPrinter renders session events, one per line, either as text or as
// JSON objects.
type eventPrinter struct {
	w        io.Writer
	json     bool
	progress *ProgressPrinter // optional; cleared before each line

	ok, warn, fail, dim *color.Color
}

func newEventPrinter(w io.Writer, asJSON bool) *eventPrinter {
	p := &eventPrinter{
		w:    w,
		json: asJSON,
		ok:   color.New(color.FgGreen, color.Bold),
		warn: color.New(color.FgYellow),
		fail: color.New(color.FgRed, color.Bold),
		dim:  color.New(color.Faint),
	}
	if asJSON || !isTerminal(w) {
		for _, c := range []*color.Color{p.ok, p.warn, p.fail, p.dim} {
			c.DisableColor()
		}
	}
	return p
}

// Print writes one event.
func (p *eventPrinter) Print(e notify.Event) error {
	if p.json {
		return json.NewEncoder(p.w).Encode(e)
	}

	if p.progress != nil {
		p.progress.Clear()
		if e.Type == notify.StatusChanged {
			p.progress.SetPhase(e.Status.String())
		}
	}

	ts := p.dim.Sprint(e.At.Format(eventTimeFormat))
	var line string
	switch e.Type {
	case notify.StatusChanged:
		c := p.warn
		if e.Status == device.Connected {
			c = p.ok
		}
		line = "status " + c.Sprint(e.Status)
	case notify.CharacteristicReady:
		line = p.ok.Sprint("characteristic ready")
	case notify.CharacteristicUnavailable:
		line = p.warn.Sprint("characteristic unavailable")
	case notify.OperationFailed:
		line = fmt.Sprintf("%s %s", p.fail.Sprint(e.Kind), e.Detail)
	case notify.PwnSuccess:
		line = p.ok.Sprint("payloads delivered")
	default:
		line = e.String()
	}
	_, err := fmt.Fprintf(p.w, "%s %s\n", ts, line)
	return err
}

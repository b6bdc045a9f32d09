package models

import (
	"fmt"
	"io"
	"os"

	"github.com/mgutz/ansi"
)

var warnColor = ansi.ColorCode("yellow+b")

// Diag is the sink for warnings and verbose notes emitted during a build.
// Warnings are retained so library callers can inspect them afterwards.
type Diag struct {
	Out     io.Writer // defaults to stderr
	Color   bool
	Verbose bool

	Warnings []string
}

func (d *Diag) writer() io.Writer {
	if d.Out == nil {
		return os.Stderr
	}
	return d.Out
}

func (d *Diag) Warnf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	d.Warnings = append(d.Warnings, msg)
	if d.Color {
		fmt.Fprintf(d.writer(), "%swarning:%s %s\n", warnColor, ansi.Reset, msg)
	} else {
		fmt.Fprintf(d.writer(), "warning: %s\n", msg)
	}
}

func (d *Diag) Notef(format string, args ...interface{}) {
	if !d.Verbose {
		return
	}
	fmt.Fprintf(d.writer(), format+"\n", args...)
}

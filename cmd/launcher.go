package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
)

type command struct {
	name, desc string
	main       func(args []string)
}

var commands = make(map[string]*command)
var order []string
var pad int

// Register adds a subcommand to the launcher. Command packages call this
// from init(), and the main package pulls them in with blank imports.
func Register(name, desc string, main func(args []string)) {
	if len(name) > pad {
		pad = len(name)
	}
	commands[name] = &command{name, desc, main}
	order = append(order, name)
}

func Main() {
	usage := func() {
		fmt.Fprintln(os.Stderr, "Commands:")
		fstr := fmt.Sprintf("%%-%ds | %%s\n", pad)
		for _, name := range order {
			cmd := commands[name]
			fmt.Fprintf(os.Stderr, fstr, cmd.name, cmd.desc)
		}
		fmt.Fprintf(os.Stderr, "\nExample: %s pack -manifest app.toml\n\n", os.Args[0])
	}
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}
	cmd, ok := commands[os.Args[1]]
	if !ok {
		fmt.Fprintf(os.Stderr, "Command '%s' not found.\n\n", os.Args[1])
		usage()
		os.Exit(1)
	}
	args := append([]string{strings.Join(os.Args[:2], " ")}, os.Args[2:]...)
	cmd.main(args)
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

// PrintError prints err, and the stack up to main() when one is attached.
func PrintError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %s\n", err)
	st, ok := err.(stackTracer)
	if !ok {
		return
	}
	var frames [][2]string
	width := 0
	for _, f := range st.StackTrace() {
		fileline := fmt.Sprintf("%s:%d", f, f)
		method := fmt.Sprintf("%n", f)
		if len(fileline) > width {
			width = len(fileline)
		}
		frames = append(frames, [2]string{fileline, method})
		if method == "main" {
			break
		}
	}
	for _, f := range frames {
		gap := strings.Repeat(" ", width-len(f[0]))
		fmt.Fprintf(os.Stderr, "%s%s | %s()\n", f[0], gap, f[1])
	}
}

package pack

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/xyproto/env/v2"

	"github.com/lowtemp/permafrost"
	"github.com/lowtemp/permafrost/cmd"
	"github.com/lowtemp/permafrost/manifest"
	"github.com/lowtemp/permafrost/models"
	"github.com/lowtemp/permafrost/modset"
)

type strslice []string

func (s *strslice) Set(val string) error {
	*s = append(*s, val)
	return nil
}

func (s *strslice) String() string {
	return fmt.Sprintf("%v", *s)
}

func Main(args []string) {
	fs := flag.NewFlagSet("args", flag.ExitOnError)
	stubPath := fs.String("stub", env.Str("PERMAFROST_STUB"), "stub binary to pack into")
	outPath := fs.String("o", "", "output path")
	manifestPath := fs.String("manifest", "", "TOML build manifest")
	modsetPath := fs.String("modset", "", "read module records from a modset file")
	symbol := fs.String("sym", "", "locator symbol name")
	segment := fs.String("segment", "", "Mach-O placeholder segment")
	align := fs.Uint64("align", 0, "blob alignment (0 picks a per-format default)")
	logAppend := fs.Bool("log-append", false, "loader appends to its log file")
	logStrftime := fs.Bool("log-strftime", false, "loader expands strftime patterns in the log filename")
	keepDebug := fs.Bool("keep-debug", false, "loader keeps module debug info")
	verbose := fs.Bool("v", false, "verbose output")
	var fields strslice
	fs.Var(&fields, "field", "set a loader field as name=value (can be repeated)")
	fs.Usage = func() {
		fmt.Printf("Usage: %s [options]\n", args[0])
		fs.PrintDefaults()
	}
	fs.Parse(args[1:])

	if *manifestPath != "" && *modsetPath != "" {
		fmt.Fprintln(os.Stderr, "-manifest and -modset are mutually exclusive")
		os.Exit(1)
	}
	if *manifestPath == "" && *modsetPath == "" {
		fmt.Fprintln(os.Stderr, "need a module source: -manifest or -modset")
		fs.Usage()
		os.Exit(1)
	}

	cfg := cmd.BaseConfig()

	var records []models.Record
	if *manifestPath != "" {
		m, err := manifest.Load(*manifestPath)
		if err != nil {
			cmd.PrintError(err)
			os.Exit(1)
		}
		m.Apply(cfg)
		if *stubPath == "" && m.Stub != "" {
			*stubPath = m.Path(m.Stub)
		}
		if *outPath == "" && m.Output != "" {
			*outPath = m.Path(m.Output)
		}
		if records, err = m.Records(); err != nil {
			cmd.PrintError(err)
			os.Exit(1)
		}
	} else {
		var err error
		if records, err = modset.ReadFile(*modsetPath); err != nil {
			cmd.PrintError(err)
			os.Exit(1)
		}
	}

	if *symbol != "" {
		cfg.Symbol = *symbol
	}
	if *segment != "" {
		cfg.Segment = *segment
	}
	if *align != 0 {
		cfg.Align = *align
	}
	if *logAppend {
		cfg.LogAppend = true
	}
	if *logStrftime {
		cfg.LogStrftime = true
	}
	if *keepDebug {
		cfg.KeepDebug = true
	}
	if *verbose {
		cfg.Verbose = true
		cfg.Diag.Verbose = true
	}
	for _, kv := range fields {
		split := strings.SplitN(kv, "=", 2)
		if len(split) != 2 {
			fmt.Fprintf(os.Stderr, "warning: skipping invalid -field %#v\n", kv)
			continue
		}
		if cfg.Fields == nil {
			cfg.Fields = make(map[string]string)
		}
		cfg.Fields[split[0]] = split[1]
	}

	if *stubPath == "" || *outPath == "" {
		fmt.Fprintln(os.Stderr, "need -stub and -o (or a manifest that sets them)")
		fs.Usage()
		os.Exit(1)
	}

	if err := permafrost.PackFile(*stubPath, *outPath, records, cfg); err != nil {
		cmd.PrintError(err)
		os.Exit(1)
	}
	cfg.Diag.Notef("wrote %s", *outPath)
}

func init() {
	cmd.Register("pack", "freeze module records into a stub binary", Main)
}

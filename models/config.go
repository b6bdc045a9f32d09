package models

// Header flag bits understood by the frozen loader.
const (
	FlagLogAppend   = 1 << 0
	FlagLogStrftime = 1 << 1
	FlagKeepDebug   = 1 << 2
)

const (
	DefaultSymbol  = "blobinfo"
	DefaultSegment = "__FROZEN"
)

type Config struct {
	Symbol  string // locator symbol to patch in the stub
	Segment string // Mach-O placeholder segment for in-place insertion
	Align   uint64 // explicit blob alignment, 0 picks a per-target default

	LogAppend   bool
	LogStrftime bool
	KeepDebug   bool

	// Fields holds the loader configuration slots by name. A present key
	// with an empty value still gets a pointer; an absent key encodes as 0.
	Fields map[string]string

	Color   bool
	Verbose bool
	Diag    *Diag
}

// Init fills unset values with defaults. Safe to call more than once.
func (c *Config) Init() {
	if c.Symbol == "" {
		c.Symbol = DefaultSymbol
	}
	if c.Segment == "" {
		c.Segment = DefaultSegment
	}
	if c.Diag == nil {
		c.Diag = &Diag{Color: c.Color, Verbose: c.Verbose}
	}
}

// Flags packs the boolean options into the header flag word.
func (c *Config) Flags() uint16 {
	var flags uint16
	if c.LogAppend {
		flags |= FlagLogAppend
	}
	if c.LogStrftime {
		flags |= FlagLogStrftime
	}
	if c.KeepDebug {
		flags |= FlagKeepDebug
	}
	return flags
}

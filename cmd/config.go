package cmd

import (
	"os"

	"github.com/BurntSushi/toml"
	"github.com/mattn/go-isatty"
	"github.com/shibukawa/configdir"
	"github.com/xyproto/env/v2"

	"github.com/lowtemp/permafrost/models"
)

// userDefaults is the schema of the optional defaults.toml in the user's
// config directory: the packing knobs worth setting once for every build.
// Manifests and flags override it.
type userDefaults struct {
	Symbol  string `toml:"symbol"`
	Segment string `toml:"segment"`
	Align   uint64 `toml:"align"`
}

// BaseConfig assembles a Config from the low-precedence sources: the first
// defaults.toml found in the config directories, then the PERMAFROST_*
// environment variables.
func BaseConfig() *models.Config {
	cfg := &models.Config{}
	configDirs := configdir.New("permafrost", "")
	for _, config := range configDirs.QueryFolders(configdir.All) {
		data, err := config.ReadFile("defaults.toml")
		if err != nil {
			continue
		}
		var d userDefaults
		if err := toml.Unmarshal(data, &d); err == nil {
			cfg.Symbol = d.Symbol
			cfg.Segment = d.Segment
			cfg.Align = d.Align
		}
		break
	}
	cfg.Symbol = env.Str("PERMAFROST_SYMBOL", cfg.Symbol)
	cfg.Segment = env.Str("PERMAFROST_SEGMENT", cfg.Segment)
	if align := env.Int("PERMAFROST_ALIGN", 0); align > 0 {
		cfg.Align = uint64(align)
	}
	if env.Bool("PERMAFROST_VERBOSE") {
		cfg.Verbose = true
	}
	cfg.Color = isatty.IsTerminal(os.Stderr.Fd())
	cfg.Init()
	return cfg
}

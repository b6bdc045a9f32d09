// Package manifest loads permafrost build manifests from TOML.
package manifest

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"

	"github.com/lowtemp/permafrost/models"
	"github.com/lowtemp/permafrost/modset"
)

// Manifest describes one packing run: the stub to patch, the output path,
// and the module records to freeze into it.
type Manifest struct {
	Stub        string            `toml:"stub"`
	Output      string            `toml:"output"`
	Symbol      string            `toml:"symbol"`
	Segment     string            `toml:"segment"`
	Align       uint64            `toml:"align"`
	ModulesFrom string            `toml:"modules_from"`
	KeepDebug   bool              `toml:"keep_debug"`
	Log         Log               `toml:"log"`
	Fields      map[string]string `toml:"fields"`
	Modules     []Module          `toml:"modules"`

	// Dir is the directory containing the manifest (set at load time).
	Dir string `toml:"-"`
}

// Log configures the frozen loader's log file.
type Log struct {
	Filename string `toml:"filename"`
	Append   bool   `toml:"append"`
	Strftime bool   `toml:"strftime"`
}

// Module is one record: either a payload file or a forbidden name.
type Module struct {
	Name    string `toml:"name"`
	File    string `toml:"file"`
	Package bool   `toml:"package"`
	Forbid  bool   `toml:"forbid"`
}

// Load parses and validates a manifest file. Relative paths inside the
// manifest are resolved against its directory.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read %s", path)
	}
	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrapf(err, "parse error in %s", path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot resolve path %s", path)
	}
	m.Dir = filepath.Dir(abs)
	if err := m.validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid manifest %s", path)
	}
	return &m, nil
}

func (m *Manifest) validate() error {
	if m.ModulesFrom != "" && len(m.Modules) > 0 {
		return errors.New("modules_from and [[modules]] are mutually exclusive")
	}
	for i, mod := range m.Modules {
		if mod.Name == "" {
			return errors.Errorf("module %d: name is required", i)
		}
		if mod.Forbid && mod.File != "" {
			return errors.Errorf("module %q: file and forbid are mutually exclusive", mod.Name)
		}
		if !mod.Forbid && mod.File == "" {
			return errors.Errorf("module %q: needs a file or forbid", mod.Name)
		}
	}
	for k := range m.Fields {
		if !models.KnownField(k) {
			return errors.Errorf("unknown field %q", k)
		}
	}
	return nil
}

// Path resolves a manifest-relative path.
func (m *Manifest) Path(name string) string {
	if name == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(m.Dir, name)
}

// Records loads the module payloads and returns the record sequence in
// manifest order.
func (m *Manifest) Records() ([]models.Record, error) {
	if m.ModulesFrom != "" {
		return modset.ReadFile(m.Path(m.ModulesFrom))
	}
	var records []models.Record
	for _, mod := range m.Modules {
		rec := models.Record{Name: mod.Name, Package: mod.Package, Forbid: mod.Forbid}
		if !mod.Forbid {
			payload, err := os.ReadFile(m.Path(mod.File))
			if err != nil {
				return nil, errors.Wrapf(err, "module %q", mod.Name)
			}
			rec.Payload = payload
		}
		records = append(records, rec)
	}
	return records, nil
}

// Apply copies the manifest's packing options onto a config, leaving
// anything the manifest does not set untouched.
func (m *Manifest) Apply(cfg *models.Config) {
	if m.Symbol != "" {
		cfg.Symbol = m.Symbol
	}
	if m.Segment != "" {
		cfg.Segment = m.Segment
	}
	if m.Align != 0 {
		cfg.Align = m.Align
	}
	if m.KeepDebug {
		cfg.KeepDebug = true
	}
	if m.Log.Filename != "" {
		if cfg.Fields == nil {
			cfg.Fields = make(map[string]string)
		}
		cfg.Fields["log_filename"] = m.Log.Filename
		cfg.LogAppend = m.Log.Append
		cfg.LogStrftime = m.Log.Strftime
	}
	for k, v := range m.Fields {
		if cfg.Fields == nil {
			cfg.Fields = make(map[string]string)
		}
		cfg.Fields[k] = v
	}
}

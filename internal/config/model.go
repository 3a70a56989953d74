// internal/config/model.go
//
// Typed configuration model for Gridkit.
//
// Context
// -------
// These structs define the shape of the configuration tree that
// `internal/config/loader.go` builds from three overlay layers:
//
//   • optional `.env`                           – dotenv values,
//   • `conf/global.yaml`                        – primary static file,
//   • `GRIDKIT_`-prefixed environment overrides – highest precedence.
//
// Validation happens immediately after unmarshal; the app fails fast if
// required fields are missing.
//
// Notes
// -----
//   • Struct tags use `koanf:"…"`, not `yaml:"…"`.  Koanf ignores `yaml` tags
//     unless configured otherwise.
//   • Durations accept Go syntax (“10s”, “1m30s”).
//   • The `Paths` block is filled at runtime; YAML must not try to set it.

package config

import "time"

//
// HTTP section
//

// HTTP holds web-server tunables.  Zero timeouts fall back to the server
// package defaults.
type HTTP struct {
	ListenAddr   string        `koanf:"listen_addr"   validate:"required,hostname_port"`
	ReadTimeout  time.Duration `koanf:"read_timeout"  validate:"gte=0"`
	WriteTimeout time.Duration `koanf:"write_timeout" validate:"gte=0"`
	IdleTimeout  time.Duration `koanf:"idle_timeout"  validate:"gte=0"`
	ForceHTTPS   bool          `koanf:"force_https"`
}

//
// Database section
//

// Database holds the record store connection.
type Database struct {
	DSN     string `koanf:"dsn"      validate:"required"`
	Table   string `koanf:"table"    validate:"omitempty,max=64"`
	MaxOpen int    `koanf:"max_open" validate:"gte=0"`
	MaxIdle int    `koanf:"max_idle" validate:"gte=0"`
}

//
// Log section
//

// Log controls the file logger.  An empty Dir disables the file core.
type Log struct {
	Dir   string `koanf:"dir"`
	Level string `koanf:"level" validate:"omitempty,oneof=debug info warn error"`
	Tee   bool   `koanf:"tee"`
}

//
// Forms section
//

// Forms names the dialog form served on /records and the extra base
// directories searched for definitions (overrides first).  The runtime root
// is always searched last.
type Forms struct {
	ID   string   `koanf:"id"   validate:"required"`
	Dirs []string `koanf:"dirs" validate:"dive,required"`
}

//
// Paths section (runtime only)
//

// Paths is resolved at runtime, never set in YAML or env.
type Paths struct {
	Root string // GRIDKIT_ROOT or discovered parent
}

//
// Root aggregate
//

// Config is the immutable aggregate returned by Load() and cached in an
// atomic.Pointer for lock-free reads throughout the app lifetime.
type Config struct {
	HTTP     HTTP     `koanf:"http"`
	Database Database `koanf:"database"`
	Log      Log      `koanf:"log"`
	Forms    Forms    `koanf:"forms"`
	Paths    Paths    `koanf:"-"`
}

// FormDirs returns the definition search path, overrides first.
func (c *Config) FormDirs() []string {
	out := append([]string(nil), c.Forms.Dirs...)
	return append(out, c.Paths.Root)
}

// defaults fills optional fields left empty by every layer.
func (c *Config) defaults() {
	if c.Forms.ID == "" {
		c.Forms.ID = "records/record"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

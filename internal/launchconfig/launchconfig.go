// Package launchconfig decodes the per-session `launch`/`attach` request
// arguments (spec.md §6 Configuration table) from the front-end's JSON
// body into a typed struct, applying the documented defaults.
package launchconfig

import (
	"encoding/json"
	"fmt"

	"github.com/stratos/gdbmiadapter/internal/adaptererrors"
)

// ImageAndSymbols configures an extra symbol/image load, used for split
// debug-info or flashed-image targets.
type ImageAndSymbols struct {
	SymbolFileName string `json:"symbolFileName,omitempty"`
	SymbolOffset   string `json:"symbolOffset,omitempty"`
	ImageFileName  string `json:"imageFileName,omitempty"`
	ImageOffset    string `json:"imageOffset,omitempty"`
}

// Target configures remote target-select and, optionally, the target
// server spawned to host it.
type Target struct {
	Type               string   `json:"type,omitempty"` // default "remote"
	Parameters         string   `json:"parameters,omitempty"`
	Host               string   `json:"host,omitempty"`
	Port               int      `json:"port,omitempty"`
	Server             string   `json:"server,omitempty"`
	ServerParameters   []string `json:"serverParameters,omitempty"`
	Cwd                string   `json:"cwd,omitempty"`
	ServerPortRegExp   string   `json:"serverPortRegExp,omitempty"`
	ServerStartupDelay int      `json:"serverStartupDelay,omitempty"` // milliseconds
	ConnectCommands    []string `json:"connectCommands,omitempty"`
	Environment        map[string]*string `json:"environment,omitempty"`
}

// Config is the fully decoded launch/attach argument set, spec.md §6's
// configuration table.
type Config struct {
	Program     string            `json:"program,omitempty"`
	Arguments   []string          `json:"arguments,omitempty"`
	Environment map[string]*string `json:"environment,omitempty"` // nil value = unset

	GDB                string `json:"gdb,omitempty"`
	GDBAsync           bool   `json:"gdbAsync"`
	GDBNonStop         bool   `json:"gdbNonStop"`
	HardwareBreakpoint bool   `json:"hardwareBreakpoint,omitempty"`

	InitCommands        []string `json:"initCommands,omitempty"`
	PreConnectCommands  []string `json:"preConnectCommands,omitempty"`
	PreRunCommands      []string `json:"preRunCommands,omitempty"`
	CustomResetCommands []string `json:"customResetCommands,omitempty"`

	Target Target `json:"target"`

	ImageAndSymbols ImageAndSymbols `json:"imageAndSymbols"`

	AuxiliaryGDB            bool `json:"auxiliaryGdb,omitempty"`
	SteppingResponseTimeout *int `json:"steppingResponseTimeout,omitempty"` // ms; nil = default ~100; negative disables
	OpenGDBConsole          bool `json:"openGdbConsole,omitempty"`

	Verbose bool   `json:"verbose,omitempty"`
	LogFile string `json:"logFile,omitempty"`

	// AttachPID is set only by `attach` requests, not `launch`.
	AttachPID int `json:"-"`

	isAttach bool
}

// Parse decodes raw launch/attach request arguments and applies defaults
// (gdb defaults to "gdb", gdbAsync to true and target.type to "remote";
// everything else keeps its zero value).
func Parse(raw json.RawMessage, attach bool) (Config, error) {
	cfg := Config{
		GDB:      "gdb",
		GDBAsync: true,
		isAttach: attach,
	}
	// decode into a shadow type so the GDBAsync default survives an
	// explicit `"gdbAsync": false` in the payload (can't use the zero
	// value trick on a bool field that defaults to true).
	var shadow struct {
		Config
		GDBAsync *bool `json:"gdbAsync"`
	}
	shadow.Config = cfg
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &shadow); err != nil {
			return Config{}, &adaptererrors.ProtocolError{Request: "launch", Reason: fmt.Sprintf("invalid arguments: %v", err)}
		}
	}
	cfg = shadow.Config
	if shadow.GDBAsync != nil {
		cfg.GDBAsync = *shadow.GDBAsync
	}
	if cfg.GDB == "" {
		cfg.GDB = "gdb"
	}
	if cfg.Target.Type == "" {
		cfg.Target.Type = "remote"
	}
	cfg.isAttach = attach
	return cfg, nil
}

// IsAttach reports whether this Config came from an `attach` request.
func (c Config) IsAttach() bool { return c.isAttach }

// IsRemote reports whether the session targets a remote connection
// (spec.md §4.5 step 4's launch/attach branch).
func (c Config) IsRemote() bool {
	return c.Target.Type == "" || c.Target.Type == "remote"
}

// SteppingTimeoutMillis resolves the configured stepping response
// timeout, applying spec.md §6's "default ≈100; negative disables".
func (c Config) SteppingTimeoutMillis() int {
	if c.SteppingResponseTimeout == nil {
		return 100
	}
	return *c.SteppingResponseTimeout
}

// EnvPairs flattens Environment into "KEY=VALUE" pairs for a child
// process, dropping any key explicitly unset (a nil JSON value).
func EnvPairs(env map[string]*string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		if v == nil {
			continue
		}
		out = append(out, k+"="+*v)
	}
	return out
}

// UnsetKeys returns the environment keys this Config asks to be removed
// from the inherited environment (a JSON null value).
func UnsetKeys(env map[string]*string) []string {
	var out []string
	for k, v := range env {
		if v == nil {
			out = append(out, k)
		}
	}
	return out
}

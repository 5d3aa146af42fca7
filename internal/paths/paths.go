// Package paths centralizes the file names used under the relay's data
// directory. Every component resolves its files through [DataDir] so the
// layout is defined in one place.
package paths

import "path/filepath"

// ///////////////////////////////////////////////
// Constants
// ///////////////////////////////////////////////

// Data directory file names.
const (
	PIDFile    = "daemon.pid"
	ConfigFile = "config.toml"
	LogFile    = "daemon.log"
)

const (
	BinaryName = "sigrelay"
	DataDirRel = ".sigrelay" // relative to $HOME
)

// ///////////////////////////////////////////////
// DataDir
// ///////////////////////////////////////////////

// DataDir provides path construction methods rooted at a data directory.
type DataDir struct {
	Root string
	// ConfigPath overrides the config location; empty means Root/config.toml.
	ConfigPath string
}

// PID returns the full path to the PID file.
func (d DataDir) PID() string { return filepath.Join(d.Root, PIDFile) }

// Config returns the full path to the config file.
func (d DataDir) Config() string {
	if d.ConfigPath != "" {
		return d.ConfigPath
	}
	return filepath.Join(d.Root, ConfigFile)
}

// Log returns the full path to the log file.
func (d DataDir) Log() string { return filepath.Join(d.Root, LogFile) }

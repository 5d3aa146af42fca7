// Package sigrelay provides embedded assets for the sigrelay daemon.
//
// The root package exists solely to embed [config.default.toml] via
// [DefaultConfigTOML]. The "config init" command writes it to the data
// directory so first-run users start from a commented file.
package sigrelay

import _ "embed"

// DefaultConfigTOML holds the raw bytes of config.default.toml, embedded at
// build time. It decodes to the same values as [config.DefaultConfig].
//
//go:embed config.default.toml
var DefaultConfigTOML []byte

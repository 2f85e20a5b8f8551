// Package config loads and hot-reloads the broadcastd configuration file.
//
// JSON and YAML are accepted; YAML is converted to JSON first so both go
// through the same strict decoder that rejects unknown keys.
package config

// SPDX-License-Identifier: MPL-2.0

// Package config loads runtime configuration using Viper with CUE as the file format.
//
// Configuration is read from $XDG_CONFIG_HOME/confinity/config.cue (or the platform
// equivalent, see ConfigDir) or from an explicit file path. Every key can be overridden
// through a CONFINITY_ prefixed environment variable, with dots in nested keys replaced
// by underscores (CONFINITY_STAGING_KEEP=true). Files are validated against the embedded
// config_schema.cue before they are merged.
package config

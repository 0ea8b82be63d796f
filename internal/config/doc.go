// Package config provides configuration management for the Rudder
// arbitration service.
//
// # Overview
//
// The config package uses Viper to load configuration from YAML files and
// environment variables. It provides a type-safe configuration structure with
// validation, default values, and automatic file creation.
//
// # Configuration File
//
// The configuration is stored at ~/.rudder/config.yaml and is automatically
// created with sensible defaults on first use. The file structure mirrors
// the Go structs defined in this package.
//
// # Environment Variables
//
// All configuration values can be overridden using environment variables
// with the RUDDER_ prefix. Nested fields are separated by underscores.
//
// Examples:
//   - RUDDER_SERVER_PORT=9100
//   - RUDDER_STORAGE_DATA_DIR=/var/lib/rudder
//   - RUDDER_LOGGING_LEVEL=debug
//
// # Runtime Overrides
//
// OverrideStore holds key/value overrides changed at runtime (for example
// from a CLI flag or an admin call) without rewriting the config file.
package config

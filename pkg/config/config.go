package config

import internalconfig "github.com/SmitUplenchwar2687/gatekeeper/internal/config"

// Config is the top-level gatekeeper configuration.
type Config = internalconfig.Config

// AdmissionConfig holds the controller and adaptive scaling tunables.
type AdmissionConfig = internalconfig.AdmissionConfig

// StorageConfig selects and configures the counter store.
type StorageConfig = internalconfig.StorageConfig

// CoordinatorConfig configures cluster-wide coordination.
type CoordinatorConfig = internalconfig.CoordinatorConfig

// RecorderConfig configures outcome recording.
type RecorderConfig = internalconfig.RecorderConfig

// Default returns a Config with sensible defaults.
func Default() Config {
	return internalconfig.Default()
}

// LoadFile reads a YAML config file and merges it with defaults.
func LoadFile(path string) (Config, error) {
	return internalconfig.LoadFile(path)
}

// Parse merges YAML data over the defaults.
func Parse(data []byte) (Config, error) {
	return internalconfig.Parse(data)
}

// WriteExample writes an example config file to the given path.
func WriteExample(path string) error {
	return internalconfig.WriteExample(path)
}

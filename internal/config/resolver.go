package config

import (
	"os"
	"path/filepath"
)

// StandardConfigResolver follows this module's universal config
// convention, generalized from the teacher's resolver of the same name:
//
// 1. Command-line flag (--config=/path/to/file)
// 2. Environment variable SYNAPSE_CONFIG_PATH
// 3. CWD-relative: ./config/<name>.yaml
// 4. Binary-relative: <binary-dir>/config/<name>.yaml
// 5. No config file found (caller uses Defaults() plus env overrides)
type StandardConfigResolver struct {
	Name       string
	ConfigFlag *string
}

// Resolve returns the config file path, or "" if none was found.
func (r *StandardConfigResolver) Resolve() string {
	if r.ConfigFlag != nil && *r.ConfigFlag != "" {
		return *r.ConfigFlag
	}

	if path := os.Getenv("SYNAPSE_CONFIG_PATH"); path != "" && fileExists(path) {
		return path
	}

	path := filepath.Join("config", r.Name+".yaml")
	if fileExists(path) {
		return path
	}

	binaryDir := filepath.Dir(os.Args[0])
	path = filepath.Join(binaryDir, "config", r.Name+".yaml")
	if fileExists(path) {
		return path
	}

	return ""
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Resolve loads this process's configuration following the full
// flag/env/file/default priority order.
func Resolve(name string, configFlag *string) Config {
	resolver := StandardConfigResolver{Name: name, ConfigFlag: configFlag}

	var cfg Config
	if path := resolver.Resolve(); path != "" {
		loaded, err := Load(path)
		if err == nil {
			cfg = loaded
		} else {
			cfg = Defaults()
		}
	} else {
		cfg = Defaults()
	}

	ApplyEnvOverrides(&cfg)
	return cfg
}

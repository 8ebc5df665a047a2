// Package env resolves the deployment profile and the configuration location
// from the process environment.
package env

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	// ProfileVar selects the configuration profile (dev, prod, ...).
	ProfileVar     = "ENV"
	DefaultProfile = "dev"

	// ConfigDirVar overrides the directory holding config.<profile>.yaml.
	ConfigDirVar     = "TBOX_CONFIG_DIR"
	DefaultConfigDir = "../config"
)

// Lookup reads one variable. os.LookupEnv satisfies it.
type Lookup func(key string) (string, bool)

// OS returns the process environment lookup.
func OS() Lookup { return os.LookupEnv }

func get(l Lookup, key string) string {
	if l == nil {
		l = os.LookupEnv
	}
	v, _ := l(key)
	return strings.TrimSpace(v)
}

// Profile returns the active profile; empty or unset means DefaultProfile.
func Profile(l Lookup) string {
	if p := get(l, ProfileVar); p != "" {
		return p
	}
	return DefaultProfile
}

// ConfigDir returns the configuration directory.
func ConfigDir(l Lookup) string {
	if d := get(l, ConfigDirVar); d != "" {
		return d
	}
	return DefaultConfigDir
}

// ConfigPath joins dir and profile into the profile's file name. Path
// separators in profile are stripped so a profile can never escape dir.
func ConfigPath(dir, profile string) string {
	profile = strings.NewReplacer("/", "", "\\", "", "..", "").Replace(profile)
	if profile == "" {
		profile = DefaultProfile
	}
	return filepath.Join(dir, "config."+profile+".yaml")
}

// FromMap adapts a map to Lookup; used by tests and embedders.
func FromMap(m map[string]string) Lookup {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

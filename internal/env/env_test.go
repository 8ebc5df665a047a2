package env

import (
	"path/filepath"
	"testing"
)

func TestProfileDefault(t *testing.T) {
	if got := Profile(FromMap(nil)); got != DefaultProfile {
		t.Fatalf("want %q got %q", DefaultProfile, got)
	}
	if got := Profile(FromMap(map[string]string{ProfileVar: "  "})); got != DefaultProfile {
		t.Fatalf("blank ENV should fall back, got %q", got)
	}
}

func TestProfileFromEnv(t *testing.T) {
	if got := Profile(FromMap(map[string]string{ProfileVar: "prod"})); got != "prod" {
		t.Fatalf("got %q", got)
	}
}

func TestProfileFromProcess(t *testing.T) {
	t.Setenv(ProfileVar, "staging")
	if got := Profile(OS()); got != "staging" {
		t.Fatalf("got %q", got)
	}
	if got := Profile(nil); got != "staging" {
		t.Fatalf("nil lookup should use the process env, got %q", got)
	}
}

func TestConfigDir(t *testing.T) {
	if got := ConfigDir(FromMap(nil)); got != DefaultConfigDir {
		t.Fatalf("got %q", got)
	}
	if got := ConfigDir(FromMap(map[string]string{ConfigDirVar: "/etc/tbox"})); got != "/etc/tbox" {
		t.Fatalf("got %q", got)
	}
}

func TestConfigPath(t *testing.T) {
	if got, want := ConfigPath("/etc/tbox", "prod"), filepath.Join("/etc/tbox", "config.prod.yaml"); got != want {
		t.Fatalf("got %q want %q", got, want)
	}
	if got, want := ConfigPath("cfg", "../../etc/passwd"), filepath.Join("cfg", "config.etcpasswd.yaml"); got != want {
		t.Fatalf("got %q want %q", got, want)
	}
	if got, want := ConfigPath("cfg", ""), filepath.Join("cfg", "config.dev.yaml"); got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

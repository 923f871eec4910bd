package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"

	cfg "github.com/dogwoodfire/MouseEye/internal/config"
)

// isolate points every config search location at empty temp directories so
// tests never pick up a real mouseye.yaml.
func isolate(t *testing.T) {
	t.Helper()
	tmp := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmp)
	t.Setenv("HOME", tmp)
	t.Chdir(t.TempDir())
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	c, err := cfg.Load(nil, "")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if c.Host != "raspberrypi.local" {
		t.Errorf("default host = %q, want raspberrypi.local", c.Host)
	}
	if c.User != "pi" {
		t.Errorf("default user = %q, want pi", c.User)
	}
	if c.RemoteDir != "/home/pi/timelapse" {
		t.Errorf("default remote_dir = %q, want /home/pi/timelapse", c.RemoteDir)
	}
	if c.Service != "timelapse.service" {
		t.Errorf("default service = %q, want timelapse.service", c.Service)
	}
	if c.Branch != "main" {
		t.Errorf("default branch = %q, want main", c.Branch)
	}
	if c.Message != "quick deploy" {
		t.Errorf("default message = %q, want: quick deploy", c.Message)
	}
	if c.Database.Type != "sqlite" || c.Database.DSN != "./mouseye.db" {
		t.Errorf("default database = %+v, want sqlite ./mouseye.db", c.Database)
	}
	if c.Language != "en" {
		t.Errorf("default language = %q, want en", c.Language)
	}
}

func TestLoad_ReadsExplicitFile(t *testing.T) {
	isolate(t)

	yaml := "host: pi4.lan\nremote_dir: /opt/timelapse\ndatabase:\n  type: postgres\n  dsn: postgresql://user@/deploys\nlanguage: de\n"
	file := filepath.Join(t.TempDir(), "cfg.yaml")
	if err := os.WriteFile(file, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	c, err := cfg.Load(nil, file)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if c.Host != "pi4.lan" {
		t.Errorf("host = %q, want pi4.lan", c.Host)
	}
	if c.RemoteDir != "/opt/timelapse" {
		t.Errorf("remote_dir = %q, want /opt/timelapse", c.RemoteDir)
	}
	if c.Database.Type != "postgres" {
		t.Errorf("database.type = %q, want postgres", c.Database.Type)
	}
	if c.Language != "de" {
		t.Errorf("language = %q, want de", c.Language)
	}
	// Values the file doesn't set keep their defaults.
	if c.Branch != "main" {
		t.Errorf("branch = %q, want main", c.Branch)
	}
}

func TestLoad_EnvOverridesDefaults(t *testing.T) {
	isolate(t)
	t.Setenv("MOUSEYE_HOST", "env-pi.local")
	t.Setenv("MOUSEYE_DATABASE_TYPE", "mysql")

	c, err := cfg.Load(nil, "")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.Host != "env-pi.local" {
		t.Errorf("host = %q, want env-pi.local", c.Host)
	}
	if c.Database.Type != "mysql" {
		t.Errorf("database.type = %q, want mysql", c.Database.Type)
	}
}

func TestLoad_FlagOverridesFile(t *testing.T) {
	isolate(t)

	yaml := "host: file-pi.local\nremote_dir: /from/file\n"
	file := filepath.Join(t.TempDir(), "cfg.yaml")
	if err := os.WriteFile(file, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cmd := &cobra.Command{}
	cmd.Flags().String("host", "raspberrypi.local", "")
	cmd.Flags().String("remote-dir", "/home/pi/timelapse", "")
	if err := cmd.Flags().Set("host", "flag-pi.local"); err != nil {
		t.Fatalf("set flag: %v", err)
	}
	if err := cmd.Flags().Set("remote-dir", "/from/flag"); err != nil {
		t.Fatalf("set flag: %v", err)
	}

	c, err := cfg.Load(cmd, file)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.Host != "flag-pi.local" {
		t.Errorf("host = %q, want flag-pi.local (flag should beat file)", c.Host)
	}
	if c.RemoteDir != "/from/flag" {
		t.Errorf("remote_dir = %q, want /from/flag (flag should beat file)", c.RemoteDir)
	}
}

func TestLoad_UnchangedFlagDoesNotOverrideFile(t *testing.T) {
	isolate(t)

	yaml := "host: file-pi.local\n"
	file := filepath.Join(t.TempDir(), "cfg.yaml")
	if err := os.WriteFile(file, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cmd := &cobra.Command{}
	cmd.Flags().String("host", "raspberrypi.local", "")

	c, err := cfg.Load(cmd, file)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.Host != "file-pi.local" {
		t.Errorf("host = %q, want file-pi.local (unset flag should not beat file)", c.Host)
	}
}

func TestWriteConfigFile_RoundTrip(t *testing.T) {
	isolate(t)

	c := cfg.Config{
		Host:      "pi4.lan",
		User:      "deploy",
		RemoteDir: "/opt/timelapse",
		Service:   "timelapse.service",
		Branch:    "release",
		Message:   "quick deploy",
		Language:  "de",
	}
	c.Database.Type = "sqlite"
	c.Database.DSN = "./mouseye.db"

	path, err := cfg.WriteConfigFile(&c, false)
	if err != nil {
		t.Fatalf("WriteConfigFile failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected config file at %s: %v", path, err)
	}

	got, err := cfg.Load(nil, path)
	if err != nil {
		t.Fatalf("Load of written file failed: %v", err)
	}
	if got.Host != c.Host || got.User != c.User || got.Branch != c.Branch {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, c)
	}
	if got.Database.Type != "sqlite" || got.Database.DSN != "./mouseye.db" {
		t.Errorf("round trip database mismatch: %+v", got.Database)
	}
}

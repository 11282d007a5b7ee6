package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
)

func withConfigFile(t *testing.T, path string) {
	t.Helper()
	viper.Reset()
	cfgFile = path
	t.Cleanup(func() {
		viper.Reset()
		cfgFile = ""
	})
}

func TestInitConfigRejectsMissingConfigFile(t *testing.T) {
	withConfigFile(t, filepath.Join(t.TempDir(), "missing.yaml"))

	if err := initConfig(); err == nil {
		t.Fatalf("expected error for a missing config file")
	}
}

func TestInitConfigRejectsMalformedConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "foodshare.yaml")
	if err := os.WriteFile(path, []byte("http: [unterminated\n"), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	withConfigFile(t, path)

	if err := initConfig(); err == nil {
		t.Fatalf("expected error for a malformed config file")
	}
}

func TestInitConfigReadsConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "foodshare.yaml")
	if err := os.WriteFile(path, []byte("http:\n  address: 127.0.0.1:9090\n"), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	withConfigFile(t, path)

	if err := initConfig(); err != nil {
		t.Fatalf("unexpected config error: %v", err)
	}
	if got := viper.GetString("http.address"); got != "127.0.0.1:9090" {
		t.Fatalf("expected address from file, got %q", got)
	}
}

func TestInitConfigWithoutFileIsOptional(t *testing.T) {
	withConfigFile(t, "")

	if err := initConfig(); err != nil {
		t.Fatalf("expected no error without a config file, got %v", err)
	}
}

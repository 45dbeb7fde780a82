package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadEnvFileParsesAndRespectsExistingValues(t *testing.T) {
	tmp := t.TempDir()
	envPath := filepath.Join(tmp, "env")
	content := `
# comment
export FOO=bar
QUOTED="hello world"
SINGLE='x y'
INVALID_LINE
`
	if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	origFoo := os.Getenv("FOO")
	origQuoted := os.Getenv("QUOTED")
	defer os.Setenv("FOO", origFoo)
	defer os.Setenv("QUOTED", origQuoted)
	defer os.Unsetenv("SINGLE")

	_ = os.Setenv("FOO", "existing")
	_ = os.Unsetenv("QUOTED")
	_ = os.Unsetenv("SINGLE")

	if err := loadEnvFile(envPath); err != nil {
		t.Fatalf("load env file: %v", err)
	}

	if got := os.Getenv("FOO"); got != "existing" {
		t.Fatalf("expected existing FOO preserved, got %q", got)
	}
	if got := os.Getenv("QUOTED"); got != "hello world" {
		t.Fatalf("expected QUOTED loaded, got %q", got)
	}
	if got := os.Getenv("SINGLE"); got != "x y" {
		t.Fatalf("expected SINGLE loaded, got %q", got)
	}
}

func TestLoadUsesEnvFileCandidate(t *testing.T) {
	home := isolate(t)
	envDir := filepath.Join(home, ".config", "kafmarket")
	if err := os.MkdirAll(envDir, 0o755); err != nil {
		t.Fatalf("mkdir env dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(envDir, "env"), []byte("KAFMARKET_GATEWAY_PORT=19999\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	defer os.Unsetenv("KAFMARKET_GATEWAY_PORT")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Gateway.Port != 19999 {
		t.Fatalf("expected gateway port from env file, got %d", cfg.Gateway.Port)
	}
}

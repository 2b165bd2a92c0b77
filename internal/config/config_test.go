package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewConfigDefaults(t *testing.T) {
	c := NewConfig()
	if c.Listen != ":8000" {
		t.Errorf("Listen = %q", c.Listen)
	}
	if c.Sqlite.Prefix != "aepaudit_" {
		t.Errorf("Sqlite.Prefix = %q", c.Sqlite.Prefix)
	}
	if c.Log.Level != "info" {
		t.Errorf("Log.Level = %q", c.Log.Level)
	}
	if c.Crawl.Concurrency != 3 {
		t.Errorf("Crawl.Concurrency = %d", c.Crawl.Concurrency)
	}
	if c.Validate.WindowSeconds != 1.0 {
		t.Errorf("Validate.WindowSeconds = %v", c.Validate.WindowSeconds)
	}
	if c.Validate.LimitKiB != 32.0 {
		t.Errorf("Validate.LimitKiB = %v", c.Validate.LimitKiB)
	}
	if c.Validate.ECIDMode != "post_data" {
		t.Errorf("Validate.ECIDMode = %q", c.Validate.ECIDMode)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `
listen: ":9000"
log:
  level: debug
crawl:
  maxPages: 25
  patterns:
    - adobedc\.net
validate:
  windowSeconds: 2.5
  ecidMode: all
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Listen != ":9000" {
		t.Errorf("Listen = %q", c.Listen)
	}
	if c.Log.Level != "debug" {
		t.Errorf("Log.Level = %q", c.Log.Level)
	}
	if c.Crawl.MaxPages != 25 {
		t.Errorf("Crawl.MaxPages = %d", c.Crawl.MaxPages)
	}
	if len(c.Crawl.Patterns) != 1 || c.Crawl.Patterns[0] != `adobedc\.net` {
		t.Errorf("Crawl.Patterns = %v", c.Crawl.Patterns)
	}
	if c.Validate.WindowSeconds != 2.5 {
		t.Errorf("Validate.WindowSeconds = %v", c.Validate.WindowSeconds)
	}
	if c.Validate.ECIDMode != "all" {
		t.Errorf("Validate.ECIDMode = %q", c.Validate.ECIDMode)
	}
	// 文件未提及的字段保持缺省值
	if c.Crawl.MaxDepth != 2 {
		t.Errorf("Crawl.MaxDepth = %d", c.Crawl.MaxDepth)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("AEPAUDIT_LOG_LEVEL", "warn")
	t.Setenv("AEPAUDIT_LISTEN", ":7777")
	t.Setenv("AEPAUDIT_DEVTOOLS_URL", "http://10.0.0.5:9222")

	c, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Log.Level != "warn" {
		t.Errorf("Log.Level = %q", c.Log.Level)
	}
	if c.Listen != ":7777" {
		t.Errorf("Listen = %q", c.Listen)
	}
	if c.Crawl.DevtoolsURL != "http://10.0.0.5:9222" {
		t.Errorf("Crawl.DevtoolsURL = %q", c.Crawl.DevtoolsURL)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadBadYaml(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(path, []byte("listen: [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for malformed yaml")
	}
}

package config

import (
	"flag"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

func resetFlags(t *testing.T, args ...string) {
	t.Helper()
	oldArgs := os.Args
	oldFlag := flag.CommandLine
	t.Cleanup(func() {
		os.Args = oldArgs
		flag.CommandLine = oldFlag
	})
	flag.CommandLine = flag.NewFlagSet("cmd", flag.ExitOnError)
	os.Args = append([]string{"cmd"}, args...)
}

func TestParseCommaSeparated(t *testing.T) {
	res := parseCommaSeparated("a,b , c")
	if len(res) != 3 || res[1] != "b" {
		t.Fatalf("unexpected result: %v", res)
	}
	if res := parseCommaSeparated(""); len(res) != 0 {
		t.Fatalf("expected empty slice")
	}
}

func TestParseHeaders(t *testing.T) {
	res := parseHeaders("Authorization=Bearer x, Env=prod,bad,=novalue")
	if len(res) != 2 || res["Authorization"] != "Bearer x" || res["Env"] != "prod" {
		t.Fatalf("unexpected headers: %v", res)
	}
}

func TestLoadFromJSONFile(t *testing.T) {
	tmp, err := os.CreateTemp("", "cfg*.json")
	if err != nil {
		t.Fatalf("temp: %v", err)
	}
	tmp.WriteString(`{"input_file":"inv.json","include_vendor_apps":true,"select":["contoso*"],"sources":["file"]}`)
	tmp.Close()
	defer os.Remove(tmp.Name())

	cfg := &Config{}
	if err := cfg.loadFromFile(tmp.Name()); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.InputFile != "inv.json" || !cfg.IncludeVendorApps || cfg.Select[0] != "contoso*" || !cfg.SourcesSet {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
}

func TestLoadFromYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pruneware.yaml")
	content := "input_file: inv.ndjson\ntimeout: 90s\nuninstall_interval: 2s\nselect:\n  - fabrikam*\ndry_run: true\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg := defaultConfig()
	if err := cfg.loadFromFile(path); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.InputFile != "inv.ndjson" || cfg.Timeout != 90*time.Second || cfg.UninstallInterval != 2*time.Second {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if !cfg.DryRun || len(cfg.Select) != 1 || cfg.SourcesSet {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
}

func TestLoadDurationsFromJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pruneware.json")
	content := `{"timeout":"90s","uninstall_interval":"2s","scan_timeout":3000000000,"otel_timeout":null}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg := defaultConfig()
	otelTimeout := cfg.OtelTimeout
	if err := cfg.loadFromFile(path); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Timeout != 90*time.Second || cfg.UninstallInterval != 2*time.Second || cfg.ScanTimeout != 3*time.Second {
		t.Fatalf("unexpected durations: %+v", cfg)
	}
	if cfg.OtelTimeout != otelTimeout {
		t.Fatalf("null must keep the default, got %s", cfg.OtelTimeout)
	}

	os.WriteFile(path, []byte(`{"timeout":"five minutes"}`), 0o644)
	if err := cfg.loadFromFile(path); err == nil {
		t.Fatal("expected error for invalid duration")
	}
}

func TestLoadFromFileErrors(t *testing.T) {
	cfg := &Config{}
	if err := cfg.loadFromFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
	path := filepath.Join(t.TempDir(), "bad.json")
	os.WriteFile(path, []byte("{not json"), 0o644)
	if err := cfg.loadFromFile(path); err == nil {
		t.Fatal("expected error for invalid json")
	}
}

func validConfig() *Config {
	cfg := defaultConfig()
	cfg.InputFile = "inv.json"
	cfg.Sources = []string{SourceFile}
	return cfg
}

func TestValidate(t *testing.T) {
	if err := validConfig().validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg := validConfig()
	cfg.Sources = []string{"winget"}
	if err := cfg.validate(); err == nil {
		t.Fatal("expected invalid source error")
	}
	cfg = validConfig()
	cfg.InputFile = ""
	if err := cfg.validate(); err == nil {
		t.Fatal("expected error for file source without input")
	}
	cfg = validConfig()
	cfg.Sources = nil
	if err := cfg.validate(); err == nil {
		t.Fatal("expected error with no sources")
	}
	cfg = validConfig()
	cfg.Timeout = 0
	if err := cfg.validate(); err == nil {
		t.Fatal("expected invalid timeout")
	}
	cfg = validConfig()
	cfg.UninstallInterval = -time.Second
	if err := cfg.validate(); err == nil {
		t.Fatal("expected invalid interval")
	}
	cfg = validConfig()
	cfg.Uninstall = true
	if err := cfg.validate(); err == nil {
		t.Fatal("expected uninstall without selection to fail")
	}
	cfg.SelectIDs = []string{"abc"}
	if err := cfg.validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg = validConfig()
	cfg.OtelEndpoint = "otel.example.com"
	if err := cfg.validate(); err == nil {
		t.Fatal("expected endpoint scheme error")
	}
	cfg = validConfig()
	cfg.LogLevel = "bad"
	if err := cfg.validate(); err == nil {
		t.Fatal("expected invalid log level")
	}
}

func TestInputFlagSelectsFileSource(t *testing.T) {
	resetFlags(t, "--input", "inventory.json", "--select", "contoso*, fabrikam", "--uninstall", "--dry-run", "--timeout", "30s")
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Sources) != 1 || cfg.Sources[0] != SourceFile {
		t.Fatalf("expected file source, got %v", cfg.Sources)
	}
	if len(cfg.Select) != 2 || cfg.Select[1] != "fabrikam" {
		t.Fatalf("unexpected selection %v", cfg.Select)
	}
	if !cfg.Uninstall || !cfg.DryRun || cfg.Timeout != 30*time.Second {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
}

func TestFlagsOverrideConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.json")
	os.WriteFile(path, []byte(`{"input_file":"from-file.json","log_level":"debug","include_vendor_apps":true}`), 0o644)
	resetFlags(t, "--config", path, "--log-level", "WARN", "--include-vendor-apps=false")
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.InputFile != "from-file.json" || cfg.LogLevel != "warn" || cfg.IncludeVendorApps {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
}

func TestOtelFlags(t *testing.T) {
	resetFlags(t,
		"--input", "inv.json",
		"--otel-endpoint", "https://otel.example.com/v1/logs",
		"--otel-export-paths",
		"--otel-headers", "Authorization=Bearer test,Env=prod",
		"--otel-service-name", "pruneware-agent",
		"--otel-timeout", "10s",
	)
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.OtelEndpoint != "https://otel.example.com/v1/logs" || cfg.OtelServiceName != "pruneware-agent" {
		t.Fatalf("unexpected otel cfg: %+v", cfg)
	}
	if cfg.OtelTimeout != 10*time.Second || !cfg.OtelExportPaths {
		t.Fatalf("unexpected otel cfg: %+v", cfg)
	}
	if cfg.OtelHeaders["Authorization"] != "Bearer test" || cfg.OtelHeaders["Env"] != "prod" {
		t.Fatalf("unexpected otel headers: %v", cfg.OtelHeaders)
	}
}

func TestDefaultsWithoutInput(t *testing.T) {
	resetFlags(t)
	cfg, err := LoadConfig()
	if runtime.GOOS != "windows" {
		if err == nil {
			t.Fatal("expected --input to be required off Windows")
		}
		return
	}
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.HasSource(SourceRegistry) || !cfg.HasSource(SourcePackages) || cfg.Timeout != 5*time.Minute {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

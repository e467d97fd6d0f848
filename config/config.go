package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"pruneware/version"

	"gopkg.in/yaml.v3"
)

const (
	SourceRegistry     = "registry"
	SourcePackages     = "packages"
	SourceCapabilities = "capabilities"
	SourceFile         = "file"
)

var knownSources = []string{SourceRegistry, SourcePackages, SourceCapabilities, SourceFile}

type Config struct {
	InputFile            string            `json:"input_file" yaml:"input_file"`
	Sources              []string          `json:"sources" yaml:"sources"`
	IncludeVendorApps    bool              `json:"include_vendor_apps" yaml:"include_vendor_apps"`
	OnlyAfterOSInstall   bool              `json:"only_after_os_install" yaml:"only_after_os_install"`
	DetectInstallerFiles bool              `json:"detect_installer_files" yaml:"detect_installer_files"`
	SystemRoot           string            `json:"system_root" yaml:"system_root"`
	ProgramFiles         string            `json:"program_files" yaml:"program_files"`
	Select               []string          `json:"select" yaml:"select"`
	Exclude              []string          `json:"exclude" yaml:"exclude"`
	SelectIDs            []string          `json:"select_ids" yaml:"select_ids"`
	Uninstall            bool              `json:"uninstall" yaml:"uninstall"`
	AssumeYes            bool              `json:"assume_yes" yaml:"assume_yes"`
	DryRun               bool              `json:"dry_run" yaml:"dry_run"`
	Timeout              time.Duration     `json:"timeout" yaml:"timeout"`
	ScanTimeout          time.Duration     `json:"scan_timeout" yaml:"scan_timeout"`
	UninstallInterval    time.Duration     `json:"uninstall_interval" yaml:"uninstall_interval"`
	OutputFileName       string            `json:"output_file_name" yaml:"output_file_name"`
	LogLevel             string            `json:"log_level" yaml:"log_level"`
	LogFile              string            `json:"log_file" yaml:"log_file"`
	LogMaxSizeMB         int               `json:"log_max_size_mb" yaml:"log_max_size_mb"`
	ConfigFile           string            `json:"config_file" yaml:"-"`
	OtelEndpoint         string            `json:"otel_endpoint" yaml:"otel_endpoint"`
	OtelFromEnv          bool              `json:"otel_from_env" yaml:"otel_from_env"`
	OtelHeaders          map[string]string `json:"otel_headers" yaml:"otel_headers"`
	OtelServiceName      string            `json:"otel_service_name" yaml:"otel_service_name"`
	OtelTimeout          time.Duration     `json:"otel_timeout" yaml:"otel_timeout"`
	OtelExportPaths      bool              `json:"otel_export_paths" yaml:"otel_export_paths"`
	SourcesSet           bool              `json:"-" yaml:"-"`
}

func defaultSources() []string {
	if runtime.GOOS == "windows" {
		return []string{SourceRegistry, SourcePackages, SourceCapabilities}
	}
	return []string{}
}

func defaultConfig() *Config {
	now := time.Now().UTC()
	timestamp := now.Format("20060102-150405")
	return &Config{
		Sources:              defaultSources(),
		DetectInstallerFiles: runtime.GOOS == "windows",
		Select:               []string{},
		Exclude:              []string{},
		SelectIDs:            []string{},
		Timeout:              5 * time.Minute,
		ScanTimeout:          60 * time.Second,
		OutputFileName:       fmt.Sprintf("pruneware-%s-%d.ndjson", timestamp, now.Unix()),
		LogLevel:             "info",
		LogMaxSizeMB:         10,
		OtelHeaders:          map[string]string{},
		OtelServiceName:      "pruneware",
		OtelTimeout:          5 * time.Second,
	}
}

func LoadConfig() (*Config, error) {
	cfg := defaultConfig()

	input := flag.String("input", "", "Read the raw inventory from a JSON or NDJSON file instead of the local machine (default: none).")
	sources := flag.String("sources", strings.Join(cfg.Sources, ","), fmt.Sprintf("Comma-separated inventory sources: registry, packages, capabilities, file (default: %s).", strings.Join(cfg.Sources, ",")))
	includeVendorApps := flag.Bool("include-vendor-apps", cfg.IncludeVendorApps, "Show vendor-bundled apps such as the built-in browser and sync client (default: false).")
	onlyAfterOSInstall := flag.Bool("only-after-os-install", cfg.OnlyAfterOSInstall, "Hide software installed before the OS was installed (default: false).")
	detectInstallerFiles := flag.Bool("detect-installer-files", cfg.DetectInstallerFiles, fmt.Sprintf("Sniff uninstaller executables to identify the installer type (default: %t).", cfg.DetectInstallerFiles))
	systemRoot := flag.String("system-root", "", "Override the protected system directory (default: %SystemRoot%).")
	programFiles := flag.String("program-files", "", "Override the Program Files directory (default: %ProgramFiles%).")
	selectPatterns := flag.String("select", "", "Comma-separated globs or regexes selecting software by name (default: none).")
	exclude := flag.String("exclude", "", "Comma-separated globs or regexes removed from the selection (default: none).")
	selectIDs := flag.String("select-ids", "", "Comma-separated entry ids to select (default: none).")
	uninstall := flag.Bool("uninstall", cfg.Uninstall, "Uninstall the selected software (default: false).")
	assumeYes := flag.Bool("yes", cfg.AssumeYes, "Do not ask for confirmation before uninstalling (default: false).")
	dryRun := flag.Bool("dry-run", cfg.DryRun, "Print uninstall commands without running them (default: false).")
	timeout := flag.Duration("timeout", cfg.Timeout, "Per-item uninstall timeout (default: 5m).")
	scanTimeout := flag.Duration("scan-timeout", cfg.ScanTimeout, "Timeout for each inventory source (default: 60s).")
	uninstallInterval := flag.Duration("uninstall-interval", cfg.UninstallInterval, "Minimum delay between uninstall starts (default: 0).")
	output := flag.String("output", cfg.OutputFileName, "Output file name (default: pruneware-<timestamp>-<unix>.ndjson).")
	logLevel := flag.String("log-level", cfg.LogLevel, fmt.Sprintf("Log level: debug, info, warn, error, fatal, or panic (default: %s).", cfg.LogLevel))
	logFile := flag.String("log-file", "", "Also write logs to this file, rotated by size (default: none).")
	configFile := flag.String("config", "", "Path to JSON or YAML configuration file (default: none).")
	otelEndpoint := flag.String("otel-endpoint", cfg.OtelEndpoint, "OTLP/HTTP logs endpoint (default: none).")
	otelFromEnv := flag.Bool("otel-from-env", cfg.OtelFromEnv, "Allow OTEL endpoint fallback from OTEL environment variables (default: false).")
	otelHeaders := flag.String("otel-headers", "", "Comma-separated OTEL headers (key=value) for export (default: none).")
	otelServiceName := flag.String("otel-service-name", cfg.OtelServiceName, "OTEL service name for export (default: pruneware).")
	otelTimeout := flag.Duration("otel-timeout", cfg.OtelTimeout, "OTEL export timeout (default: 5s).")
	otelExportPaths := flag.Bool("otel-export-paths", cfg.OtelExportPaths, "Include install paths and uninstall commands in OTEL payloads (default: false).")
	showVersion := flag.Bool("version", false, "Print version and exit")

	flag.Usage = displayHelp
	flag.Parse()

	if *showVersion {
		fmt.Printf("pruneware version %s\n", version.Version)
		os.Exit(0)
	}

	if *configFile != "" {
		cfg.ConfigFile = *configFile
		if err := cfg.loadFromFile(cfg.ConfigFile); err != nil {
			return nil, err
		}
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "input":
			cfg.InputFile = strings.TrimSpace(*input)
		case "sources":
			cfg.Sources = parseCommaSeparated(*sources)
			cfg.SourcesSet = true
		case "include-vendor-apps":
			cfg.IncludeVendorApps = *includeVendorApps
		case "only-after-os-install":
			cfg.OnlyAfterOSInstall = *onlyAfterOSInstall
		case "detect-installer-files":
			cfg.DetectInstallerFiles = *detectInstallerFiles
		case "system-root":
			cfg.SystemRoot = strings.TrimSpace(*systemRoot)
		case "program-files":
			cfg.ProgramFiles = strings.TrimSpace(*programFiles)
		case "select":
			cfg.Select = parseCommaSeparated(*selectPatterns)
		case "exclude":
			cfg.Exclude = parseCommaSeparated(*exclude)
		case "select-ids":
			cfg.SelectIDs = parseCommaSeparated(*selectIDs)
		case "uninstall":
			cfg.Uninstall = *uninstall
		case "yes":
			cfg.AssumeYes = *assumeYes
		case "dry-run":
			cfg.DryRun = *dryRun
		case "timeout":
			cfg.Timeout = *timeout
		case "scan-timeout":
			cfg.ScanTimeout = *scanTimeout
		case "uninstall-interval":
			cfg.UninstallInterval = *uninstallInterval
		case "output":
			cfg.OutputFileName = *output
		case "log-level":
			cfg.LogLevel = *logLevel
		case "log-file":
			cfg.LogFile = strings.TrimSpace(*logFile)
		case "otel-endpoint":
			cfg.OtelEndpoint = strings.TrimSpace(*otelEndpoint)
		case "otel-from-env":
			cfg.OtelFromEnv = *otelFromEnv
		case "otel-headers":
			cfg.OtelHeaders = parseHeaders(*otelHeaders)
		case "otel-service-name":
			cfg.OtelServiceName = strings.TrimSpace(*otelServiceName)
		case "otel-timeout":
			cfg.OtelTimeout = *otelTimeout
		case "otel-export-paths":
			cfg.OtelExportPaths = *otelExportPaths
		}
	})
	cfg.normalize()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (cfg *Config) normalize() {
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	cfg.Sources = normalizeList(cfg.Sources)
	if cfg.InputFile != "" && !cfg.SourcesSet {
		cfg.Sources = []string{SourceFile}
	}
	if cfg.OtelServiceName == "" {
		cfg.OtelServiceName = "pruneware"
	}
	if cfg.LogMaxSizeMB <= 0 {
		cfg.LogMaxSizeMB = 10
	}
	if cfg.SystemRoot == "" {
		cfg.SystemRoot = os.Getenv("SystemRoot")
	}
	if cfg.ProgramFiles == "" {
		cfg.ProgramFiles = os.Getenv("ProgramFiles")
	}
}

// HasSource reports whether the named inventory source is enabled.
func (cfg *Config) HasSource(name string) bool {
	return containsString(cfg.Sources, name)
}

// HasSelection reports whether any selection criteria were given.
func (cfg *Config) HasSelection() bool {
	return len(cfg.Select) > 0 || len(cfg.SelectIDs) > 0
}

func displayHelp() {
	fmt.Println("pruneware - installed software inventory and bulk uninstaller")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  pruneware [options]")
	fmt.Println()
	fmt.Println("Options:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  pruneware")
	fmt.Println("  pruneware --select \"contoso*\" --uninstall --dry-run")
	fmt.Println("  pruneware --input inventory.json --only-after-os-install")
}

func (cfg *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("could not read config file: %v", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var raw map[string]interface{}
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("invalid config file format: %v", err)
		}
		if _, ok := raw["sources"]; ok {
			cfg.SourcesSet = true
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("invalid config file format: %v", err)
		}
	default:
		var raw map[string]json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("invalid config file format: %v", err)
		}
		if _, ok := raw["sources"]; ok {
			cfg.SourcesSet = true
		}
		if err := json.Unmarshal(data, jsonOverlay(cfg)); err != nil {
			return fmt.Errorf("invalid config file format: %v", err)
		}
	}
	return nil
}

type configAlias Config

// jsonOverlay decodes into cfg with the duration fields replaced so JSON
// files can say "5m" the same way YAML files and flags do.
func jsonOverlay(cfg *Config) interface{} {
	return &struct {
		*configAlias
		Timeout           jsonDuration `json:"timeout"`
		ScanTimeout       jsonDuration `json:"scan_timeout"`
		UninstallInterval jsonDuration `json:"uninstall_interval"`
		OtelTimeout       jsonDuration `json:"otel_timeout"`
	}{
		configAlias:       (*configAlias)(cfg),
		Timeout:           jsonDuration{&cfg.Timeout},
		ScanTimeout:       jsonDuration{&cfg.ScanTimeout},
		UninstallInterval: jsonDuration{&cfg.UninstallInterval},
		OtelTimeout:       jsonDuration{&cfg.OtelTimeout},
	}
}

// jsonDuration accepts a duration string or integer nanoseconds.
type jsonDuration struct {
	d *time.Duration
}

func (j *jsonDuration) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		d, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %v", s, err)
		}
		*j.d = d
		return nil
	}
	var n int64
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("invalid duration %s", b)
	}
	*j.d = time.Duration(n)
	return nil
}

func (cfg *Config) validate() error {
	for _, src := range cfg.Sources {
		if !containsString(knownSources, src) {
			return fmt.Errorf("invalid source: %s", src)
		}
	}
	if len(cfg.Sources) == 0 {
		if runtime.GOOS != "windows" {
			return fmt.Errorf("--input is required on %s (no local software inventory)", runtime.GOOS)
		}
		return fmt.Errorf("at least one inventory source must be enabled")
	}
	if cfg.HasSource(SourceFile) && cfg.InputFile == "" {
		return fmt.Errorf("the file source requires --input")
	}
	if cfg.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if cfg.ScanTimeout < 0 {
		return fmt.Errorf("scan-timeout must be zero or positive")
	}
	if cfg.UninstallInterval < 0 {
		return fmt.Errorf("uninstall-interval must be zero or positive")
	}
	if cfg.Uninstall && !cfg.HasSelection() {
		return fmt.Errorf("--uninstall requires --select or --select-ids")
	}
	if cfg.OtelTimeout < 0 {
		return fmt.Errorf("otel-timeout must be zero or positive")
	}
	if cfg.OtelEndpoint != "" {
		if !strings.HasPrefix(cfg.OtelEndpoint, "http://") && !strings.HasPrefix(cfg.OtelEndpoint, "https://") {
			return fmt.Errorf("otel-endpoint must include scheme (http or https)")
		}
	}
	if cfg.LogLevel != "debug" && cfg.LogLevel != "info" && cfg.LogLevel != "warn" &&
		cfg.LogLevel != "error" && cfg.LogLevel != "fatal" && cfg.LogLevel != "panic" {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}
	return nil
}

func parseCommaSeparated(input string) []string {
	if input == "" {
		return []string{}
	}
	items := strings.Split(input, ",")
	for i, item := range items {
		items[i] = strings.TrimSpace(item)
	}
	return items
}

func parseHeaders(input string) map[string]string {
	headers := make(map[string]string)
	if input == "" {
		return headers
	}
	items := strings.Split(input, ",")
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		parts := strings.SplitN(item, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" {
			continue
		}
		headers[key] = value
	}
	return headers
}

func normalizeList(items []string) []string {
	normalized := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.ToLower(strings.TrimSpace(item))
		if item == "" || containsString(normalized, item) {
			continue
		}
		normalized = append(normalized, item)
	}
	return normalized
}

func containsString(items []string, value string) bool {
	for _, item := range items {
		if item == value {
			return true
		}
	}
	return false
}

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"pruneware/config"
	"pruneware/inventory"
	"pruneware/logger"
	"pruneware/output"
	"pruneware/systeminfo"
	"pruneware/uninstall"
	"pruneware/utils"
)

func main() {
	// Initialize configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger.InitWithFile(cfg.LogLevel, cfg.LogFile, cfg.LogMaxSizeMB)

	// Handle graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	sysInfo, err := systeminfo.GetSystemInfo(cfg)
	if err != nil {
		logger.Errorf("Failed to gather system information: %v", err)
	}
	if cfg.Uninstall && !cfg.DryRun && sysInfo != nil && !sysInfo.Elevated {
		logger.Warn("Not running elevated; machine-wide uninstallers will prompt for elevation.")
	}

	writer, err := output.New(cfg, sysInfo)
	if err != nil {
		logger.Fatalf("Failed to initialize output: %v", err)
	}
	defer writer.Close()

	entries, stats := loadInventory(ctx, cfg, sysInfo)
	writer.WriteSoftware(entries)
	logger.Infof("Inventory: %d entries (%d records read, %d essential, %d duplicates, %d before OS install)",
		stats.Output, stats.Input, stats.Essential, stats.Duplicates, stats.BeforeOS)

	ws := uninstall.NewWorkingSet(entries)
	selected := applySelection(ws, cfg)
	if !cfg.Uninstall {
		printInventory(os.Stdout, ws)
		logger.Info("Inventory completed successfully.")
		return
	}
	if selected == 0 {
		logger.Warn("Selection matched no uninstallable software; nothing to do.")
		return
	}

	if !cfg.AssumeYes && !cfg.DryRun {
		if !confirm(os.Stdin, os.Stdout, ws.Selected()) {
			logger.Info("Uninstall aborted by user.")
			return
		}
	}

	if sysInfo != nil && len(sysInfo.ActiveInstallers) > 0 {
		for _, p := range sysInfo.ActiveInstallers {
			logger.Warnf("Installer already running: %s (pid %d); MSI uninstalls may fail with 1618", p.Name, p.PID)
		}
	}

	executor := uninstall.NewExecutor(uninstall.NewExecRunner(), uninstall.ExecutorOptions{
		Timeout: cfg.Timeout,
		DryRun:  cfg.DryRun,
	})
	orchestrator := uninstall.NewOrchestrator(executor, uninstall.OrchestratorOptions{
		Interval: cfg.UninstallInterval,
		Progress: newBarProgress(),
		OnResult: writer.WriteResult,
	})

	batch := orchestrator.RunSelected(ctx, ws)
	writer.WriteBatch(&batch)
	fmt.Fprintln(os.Stdout, batch.Summary())

	if batch.RebootRequired() {
		logger.Warn("One or more uninstalls require a reboot to complete.")
	}
	if batch.Cancelled {
		logger.Info("Uninstall batch cancelled.")
		return
	}
	logger.Info("Uninstall batch completed.")
}

func buildSources(cfg *config.Config) []inventory.RecordSource {
	var sources []inventory.RecordSource
	for _, name := range cfg.Sources {
		switch name {
		case config.SourceRegistry:
			sources = append(sources, inventory.RegistrySource{})
		case config.SourcePackages:
			sources = append(sources, inventory.PackageSource{})
		case config.SourceCapabilities:
			sources = append(sources, inventory.CapabilitySource{})
		case config.SourceFile:
			sources = append(sources, inventory.FileSource{Path: cfg.InputFile})
		}
	}
	return sources
}

func normalizeOptions(cfg *config.Config, sysInfo *systeminfo.SystemInfo) inventory.NormalizeOptions {
	opts := inventory.NormalizeOptions{
		Classifier: inventory.ClassifierConfig{
			IncludeVendorApps: cfg.IncludeVendorApps,
			SystemRoot:        cfg.SystemRoot,
			ProgramFiles:      cfg.ProgramFiles,
		},
		OnlyAfterOSInstall:   cfg.OnlyAfterOSInstall,
		DetectInstallerFiles: cfg.DetectInstallerFiles,
	}
	if sysInfo != nil {
		opts.OSInstallDate = sysInfo.OSInstallDate
	}
	if cfg.OnlyAfterOSInstall && opts.OSInstallDate.IsZero() {
		logger.Warn("OS install date unknown; --only-after-os-install has no effect.")
	}
	return opts
}

func loadInventory(ctx context.Context, cfg *config.Config, sysInfo *systeminfo.SystemInfo) ([]inventory.SoftwareEntry, inventory.NormalizeStats) {
	records := inventory.Collect(ctx, cfg.ScanTimeout, buildSources(cfg)...)
	return inventory.NormalizeWithStats(records, normalizeOptions(cfg, sysInfo))
}

// applySelection marks entries chosen by --select/--exclude and --select-ids.
// Entries that cannot be uninstalled are never selected.
func applySelection(ws *uninstall.WorkingSet, cfg *config.Config) int {
	matcher := utils.NewPatternMatcher(cfg.Select, cfg.Exclude)
	ws.SelectMatching(matcher)
	if n := ws.Select(cfg.SelectIDs...); n < len(cfg.SelectIDs) {
		logger.Warnf("%d of %d requested ids are not in the inventory", len(cfg.SelectIDs)-n, len(cfg.SelectIDs))
	}
	for _, e := range ws.Selected() {
		if !e.Uninstallable {
			logger.Warnf("Skipping %s: no uninstall method available", e.DisplayName())
			ws.Deselect(e.ID)
		}
	}
	return len(ws.Selected())
}

func printInventory(out io.Writer, ws *uninstall.WorkingSet) {
	for _, e := range ws.Entries() {
		mark := " "
		if ws.IsSelected(e.ID) {
			mark = "*"
		}
		fmt.Fprintf(out, "%s %-36s  %-50s  %-20s  %-10s  %s\n",
			mark, e.ID, truncate(e.DisplayName(), 50), truncate(e.Publisher, 20), e.FormattedInstallDate(), e.FormattedSize())
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func confirm(in io.Reader, out io.Writer, selected []inventory.SoftwareEntry) bool {
	fmt.Fprintf(out, "The following %d program(s) will be uninstalled:\n", len(selected))
	for _, e := range selected {
		fmt.Fprintf(out, "  - %s (%s)\n", e.DisplayName(), uninstall.SelectMethod(e))
	}
	fmt.Fprint(out, "Proceed? [y/N]: ")
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

func handleSignals(cancelFunc context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	handleSignalEvent(cancelFunc, sigChan)

	<-sigChan
	logger.Warn("Second interrupt received. Exiting.")
	os.Exit(130)
}

func handleSignalEvent(cancelFunc context.CancelFunc, sigChan <-chan os.Signal) {
	<-sigChan
	logger.Info("Interrupt signal received. Cancelling remaining uninstalls...")
	cancelFunc()
}

//go:build windows
// +build windows

package inventory

import (
	"context"
	"os/exec"
	"strings"
	"syscall"

	"github.com/pkg/errors"
	"golang.org/x/sys/windows/registry"
)

const uninstallKeyPath = `Software\Microsoft\Windows\CurrentVersion\Uninstall`

type registryView struct {
	root   registry.Key
	access uint32
	source Source
}

var registryViews = []registryView{
	{registry.LOCAL_MACHINE, registry.WOW64_64KEY, SourceRegistry64},
	{registry.LOCAL_MACHINE, registry.WOW64_32KEY, SourceRegistry32},
	{registry.CURRENT_USER, 0, SourceRegistryUser},
}

// RegistrySource enumerates the machine (64 and 32 bit views) and current
// user Uninstall keys.
type RegistrySource struct{}

func (RegistrySource) Name() string { return "registry" }

func (RegistrySource) Records(ctx context.Context) ([]RawRecord, error) {
	var records []RawRecord
	var firstErr error
	for _, view := range registryViews {
		if ctx.Err() != nil {
			return records, ctx.Err()
		}
		recs, err := readUninstallView(ctx, view)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		records = append(records, recs...)
	}
	return records, firstErr
}

func readUninstallView(ctx context.Context, view registryView) ([]RawRecord, error) {
	k, err := registry.OpenKey(view.root, uninstallKeyPath, registry.READ|view.access)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s uninstall key", view.source)
	}
	defer k.Close()

	subkeys, err := k.ReadSubKeyNames(0)
	if err != nil {
		return nil, errors.Wrapf(err, "list %s uninstall key", view.source)
	}
	records := make([]RawRecord, 0, len(subkeys))
	for _, subkey := range subkeys {
		if ctx.Err() != nil {
			return records, ctx.Err()
		}
		appKey, err := registry.OpenKey(k, subkey, registry.READ|view.access)
		if err != nil {
			continue
		}
		rec := readUninstallKey(appKey, subkey, view.source)
		appKey.Close()
		records = append(records, rec)
	}
	return records, nil
}

func readUninstallKey(k registry.Key, keyName string, source Source) RawRecord {
	rec := RawRecord{
		Name:                 stringValue(k, "DisplayName"),
		Publisher:            stringValue(k, "Publisher"),
		Version:              stringValue(k, "DisplayVersion"),
		InstallDate:          stringValue(k, "InstallDate"),
		UninstallString:      stringValue(k, "UninstallString"),
		QuietUninstallString: stringValue(k, "QuietUninstallString"),
		InstallLocation:      stringValue(k, "InstallLocation"),
		ParentKeyName:        stringValue(k, "ParentKeyName"),
		SystemComponent:      flagValue(k, "SystemComponent"),
		NoRemove:             flagValue(k, "NoRemove"),
		WindowsInstaller:     flagValue(k, "WindowsInstaller"),
		Is64Bit:              Flag(source == SourceRegistry64),
		Source:               source,
	}
	if size, _, err := k.GetIntegerValue("EstimatedSize"); err == nil {
		rec.EstimatedSize = OptionalSize(size)
	}
	if NormalizeProductCode(keyName) != "" {
		rec.ProductCode = keyName
	}
	switch {
	case stringValue(k, "Inno Setup: Setup Version") != "":
		rec.InstallerType = string(InstallerInnoSetup)
	case stringValue(k, "NSIS: Language") != "":
		rec.InstallerType = string(InstallerNSIS)
	case strings.Contains(strings.ToLower(stringValue(k, "LogFile")), "installshield"):
		rec.InstallerType = string(InstallerInstallShield)
	}
	return rec
}

func stringValue(k registry.Key, name string) string {
	v, _, err := k.GetStringValue(name)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(v)
}

func flagValue(k registry.Key, name string) Flag {
	if v, _, err := k.GetIntegerValue(name); err == nil {
		return v != 0
	}
	return Flag(parseFlagString(stringValue(k, name)))
}

// PackageSource lists packaged apps for the current user.
type PackageSource struct{}

func (PackageSource) Name() string { return "packages" }

func (PackageSource) Records(ctx context.Context) ([]RawRecord, error) {
	out, err := runPowerShell(ctx, appxQuery)
	if err != nil {
		return nil, errors.Wrap(err, "Get-AppxPackage")
	}
	return appxRecords(out)
}

// CapabilitySource lists installed optional features. The query needs an
// elevated token.
type CapabilitySource struct{}

func (CapabilitySource) Name() string { return "capabilities" }

func (CapabilitySource) Records(ctx context.Context) ([]RawRecord, error) {
	out, err := runPowerShell(ctx, capabilityQuery)
	if err != nil {
		return nil, errors.Wrap(err, "Get-WindowsCapability")
	}
	return capabilityRecords(out)
}

func runPowerShell(ctx context.Context, script string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "powershell.exe", "-NoProfile", "-NonInteractive", "-ExecutionPolicy", "Bypass", "-Command", script)
	cmd.SysProcAttr = &syscall.SysProcAttr{HideWindow: true}
	out, err := cmd.Output()
	if err != nil {
		if ee, ok := err.(*exec.ExitError); ok && len(ee.Stderr) > 0 {
			return nil, errors.Errorf("%v: %s", err, strings.TrimSpace(string(ee.Stderr)))
		}
		return nil, err
	}
	return out, nil
}

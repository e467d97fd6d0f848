package systeminfo

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"pruneware/config"
	"pruneware/logger"

	"github.com/djherbis/times"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/process"
)

type SystemInfo struct {
	Hostname         string        `json:"hostname"`
	OSPlatform       string        `json:"os_platform"`
	OSVersion        string        `json:"os_version"`
	KernelArch       string        `json:"kernel_arch"`
	Is64Bit          bool          `json:"is_64bit"`
	Elevated         bool          `json:"elevated"`
	OSInstallDate    time.Time     `json:"os_install_date,omitempty"`
	SystemRoot       string        `json:"system_root,omitempty"`
	ActiveInstallers []ProcessInfo `json:"active_installers,omitempty"`
}

type ProcessInfo struct {
	PID     int32  `json:"pid"`
	Name    string `json:"name"`
	Cmdline string `json:"cmdline,omitempty"`
}

// GetSystemInfo never fails outright; each failing lookup is logged and leaves
// its fields empty.
func GetSystemInfo(cfg *config.Config) (*SystemInfo, error) {
	sysInfo := &SystemInfo{SystemRoot: systemRoot(cfg)}

	if err := gatherHost(sysInfo); err != nil {
		logger.Warnf("Failed to gather host information: %v", err)
	}

	sysInfo.Elevated = isElevated()

	if err := gatherOSInstallDate(sysInfo); err != nil {
		logger.Warnf("Failed to determine OS install date: %v", err)
	}

	if err := gatherActiveInstallers(sysInfo); err != nil {
		logger.Warnf("Failed to list running installers: %v", err)
	}

	return sysInfo, nil
}

func gatherHost(sysInfo *SystemInfo) error {
	info, err := host.Info()
	if err != nil {
		return fmt.Errorf("failed to get host info: %v", err)
	}
	sysInfo.Hostname = info.Hostname
	sysInfo.OSPlatform = info.Platform
	sysInfo.OSVersion = strings.TrimSpace(info.PlatformVersion)
	sysInfo.KernelArch = info.KernelArch
	sysInfo.Is64Bit = is64BitArch(info.KernelArch)
	return nil
}

func is64BitArch(arch string) bool {
	switch strings.ToLower(arch) {
	case "x86_64", "amd64", "arm64", "aarch64", "ia64":
		return true
	}
	return false
}

// birthTime reports when path was created, used as a stand-in for the OS
// install date where the platform does not record one.
func birthTime(path string) (time.Time, error) {
	ts, err := times.Stat(path)
	if err != nil {
		return time.Time{}, err
	}
	if !ts.HasBirthTime() {
		return time.Time{}, fmt.Errorf("no birth time recorded for %s", path)
	}
	return ts.BirthTime(), nil
}

var installerProcessNames = map[string]struct{}{
	"msiexec.exe":          {},
	"trustedinstaller.exe": {},
	"tiworker.exe":         {},
}

func isInstallerProcess(name string) bool {
	name = strings.ToLower(filepath.Base(name))
	if _, ok := installerProcessNames[name]; ok {
		return true
	}
	// Inno Setup uninstallers copy themselves to _iu14D2N.tmp and friends
	return strings.HasPrefix(name, "unins") && strings.HasSuffix(name, ".exe") ||
		strings.HasPrefix(name, "_iu") && strings.HasSuffix(name, ".tmp")
}

// gatherActiveInstallers finds installer processes that would make an
// uninstall fail with "another installation is already in progress".
func gatherActiveInstallers(sysInfo *SystemInfo) error {
	processes, err := process.Processes()
	if err != nil {
		return fmt.Errorf("failed to get running processes: %v", err)
	}
	for _, p := range processes {
		name, err := p.Name()
		if err != nil || !isInstallerProcess(name) {
			continue
		}
		info := ProcessInfo{PID: p.Pid, Name: name}
		if cmdline, err := p.Cmdline(); err == nil {
			info.Cmdline = cmdline
		}
		sysInfo.ActiveInstallers = append(sysInfo.ActiveInstallers, info)
	}
	return nil
}

func systemRoot(cfg *config.Config) string {
	if cfg == nil {
		return ""
	}
	return cfg.SystemRoot
}

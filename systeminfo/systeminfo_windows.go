//go:build windows
// +build windows

package systeminfo

import (
	"fmt"
	"time"

	"golang.org/x/sys/windows"
	"golang.org/x/sys/windows/registry"
)

const currentVersionKey = `SOFTWARE\Microsoft\Windows NT\CurrentVersion`

func isElevated() bool {
	return windows.GetCurrentProcessToken().IsElevated()
}

// gatherOSInstallDate reads the InstallDate value, stored as seconds since the
// epoch. Images that were sysprepped or upgraded in place can lack it, in which
// case the creation time of the system root is used instead.
func gatherOSInstallDate(sysInfo *SystemInfo) error {
	k, err := registry.OpenKey(registry.LOCAL_MACHINE, currentVersionKey, registry.QUERY_VALUE|registry.WOW64_64KEY)
	if err == nil {
		defer k.Close()
		if secs, _, err := k.GetIntegerValue("InstallDate"); err == nil && secs > 0 {
			sysInfo.OSInstallDate = time.Unix(int64(secs), 0)
			return nil
		}
	}

	if sysInfo.SystemRoot == "" {
		return fmt.Errorf("InstallDate not readable and no system root known")
	}
	created, err := birthTime(sysInfo.SystemRoot)
	if err != nil {
		return fmt.Errorf("InstallDate not readable: %v", err)
	}
	sysInfo.OSInstallDate = created
	return nil
}

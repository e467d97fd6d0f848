//go:build !windows
// +build !windows

package systeminfo

import (
	"fmt"
	"os"
)

var installMarkers = []string{
	"/var/log/installer",
	"/etc/machine-id",
	"/",
}

func isElevated() bool {
	return os.Geteuid() == 0
}

func gatherOSInstallDate(sysInfo *SystemInfo) error {
	for _, path := range installMarkers {
		created, err := birthTime(path)
		if err != nil {
			continue
		}
		sysInfo.OSInstallDate = created
		return nil
	}
	return fmt.Errorf("no install marker with a birth time")
}

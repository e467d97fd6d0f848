package inventory

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/cloudflare/ahocorasick"
	"github.com/h2non/filetype"
	"github.com/pkg/errors"
	"golang.org/x/exp/mmap"
)

// InstallerType is the technology that produced an uninstall entry. It
// drives which silent switches are appended to uninstall commands.
type InstallerType string

const (
	InstallerMSI           InstallerType = "MSI"
	InstallerInnoSetup     InstallerType = "InnoSetup"
	InstallerNSIS          InstallerType = "NSIS"
	InstallerInstallShield InstallerType = "InstallShield"
	InstallerUnknown       InstallerType = "Unknown"
)

// ParseInstallerType maps free-form tags ("msi", "Inno Setup", "nullsoft")
// onto the known installer types.
func ParseInstallerType(tag string) InstallerType {
	t := strings.ToLower(strings.TrimSpace(tag))
	t = strings.NewReplacer(" ", "", "-", "", "_", "").Replace(t)
	switch t {
	case "msi", "windowsinstaller", "wix":
		return InstallerMSI
	case "inno", "innosetup":
		return InstallerInnoSetup
	case "nsis", "nullsoft":
		return InstallerNSIS
	case "installshield":
		return InstallerInstallShield
	}
	return InstallerUnknown
}

var (
	innoUninstallerName = regexp.MustCompile(`(?i)\bunins\d{3}\.exe`)
	nsisUninstallerName = regexp.MustCompile(`(?i)\buninst(all)?\.exe`)
	installShieldToken  = regexp.MustCompile(`(?i)(installshield|-runfromtemp|\bisun\w*\.exe|setup\.exe"?\s+-removeonly)`)
	msiexecToken        = regexp.MustCompile(`(?i)\bmsiexec(\.exe)?\b`)
)

// InferInstallerType derives the installer type from the record's explicit
// tag and its command strings.
func InferInstallerType(r RawRecord) InstallerType {
	if t := ParseInstallerType(r.InstallerType); t != InstallerUnknown {
		return t
	}
	cmd := r.QuietUninstallString + " " + r.UninstallString
	switch {
	case bool(r.WindowsInstaller), msiexecToken.MatchString(cmd):
		return InstallerMSI
	case innoUninstallerName.MatchString(cmd):
		return InstallerInnoSetup
	case installShieldToken.MatchString(cmd):
		return InstallerInstallShield
	case nsisUninstallerName.MatchString(cmd):
		return InstallerNSIS
	}
	return InstallerUnknown
}

const installerMarkerWindow = 512 * 1024

var installerMarkers = []string{
	"Inno Setup",
	"Nullsoft",
	"InstallShield",
}

var installerMarkerTypes = []InstallerType{
	InstallerInnoSetup,
	InstallerNSIS,
	InstallerInstallShield,
}

var installerMarkerMatcher = ahocorasick.NewStringMatcher(installerMarkers)

// DetectInstallerFile sniffs an uninstaller executable for the marker
// strings the common installer toolkits embed. Non-PE files and files that
// cannot be read yield InstallerUnknown.
func DetectInstallerFile(path string) (InstallerType, error) {
	path = strings.Trim(strings.TrimSpace(path), `"`)
	if path == "" {
		return InstallerUnknown, nil
	}
	if strings.EqualFold(filepath.Ext(path), ".msi") {
		return InstallerMSI, nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return InstallerUnknown, errors.Wrapf(err, "stat %s", path)
	}
	if info.IsDir() || info.Size() == 0 {
		return InstallerUnknown, nil
	}

	r, err := mmap.Open(path)
	if err != nil {
		return InstallerUnknown, errors.Wrapf(err, "map %s", path)
	}
	defer r.Close()

	size := r.Len()
	if size > installerMarkerWindow {
		size = installerMarkerWindow
	}
	buf := make([]byte, size)
	if _, err := r.ReadAt(buf, 0); err != nil {
		return InstallerUnknown, errors.Wrapf(err, "read %s", path)
	}
	if !filetype.IsType(buf, filetype.GetType("exe")) {
		return InstallerUnknown, nil
	}
	for _, idx := range installerMarkerMatcher.MatchThreadSafe(buf) {
		if idx >= 0 && idx < len(installerMarkerTypes) {
			return installerMarkerTypes[idx], nil
		}
	}
	return InstallerUnknown, nil
}

package inventory

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Source tags where a raw record came from.
type Source string

const (
	SourceRegistry64   Source = "registry-64"
	SourceRegistry32   Source = "registry-32"
	SourceRegistryUser Source = "registry-user"
	SourcePackagedApp  Source = "packaged-app"
	SourceCapability   Source = "capability"
)

var sourceOrder = map[Source]int{
	SourceRegistry64:   0,
	SourceRegistry32:   1,
	SourceRegistryUser: 2,
	SourcePackagedApp:  3,
	SourceCapability:   4,
}

// Rank orders sources for display. Unknown tags sort last.
func (s Source) Rank() int {
	if r, ok := sourceOrder[s]; ok {
		return r
	}
	return len(sourceOrder)
}

func (s Source) IsRegistry() bool {
	return s == SourceRegistry64 || s == SourceRegistry32 || s == SourceRegistryUser
}

// IsPackaged reports whether removal goes through the package manager
// rather than an uninstall command.
func (s Source) IsPackaged() bool {
	return s == SourcePackagedApp || s == SourceCapability
}

// Flag decodes registry style flags: bools, 0/1 numbers and strings.
type Flag bool

func (f *Flag) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = false
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = Flag(parseFlagString(s))
		return nil
	}
	switch string(data) {
	case "true":
		*f = true
		return nil
	case "false":
		*f = false
		return nil
	}
	n, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("invalid flag value %s", string(data))
	}
	*f = n != 0
	return nil
}

func parseFlagString(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// OptionalSize is an estimated size in KB; zero means absent.
type OptionalSize int64

func (o *OptionalSize) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*o = 0
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	raw := string(data)
	if data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil
		}
	}
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || n < 0 {
		// malformed sizes are treated as absent
		return nil
	}
	*o = OptionalSize(n)
	return nil
}

// RawRecord is one uninstall registry key, packaged app or capability as
// delivered by a Source. Missing fields are empty/false.
type RawRecord struct {
	Name                 string       `json:"Name"`
	Publisher            string       `json:"Publisher,omitempty"`
	Version              string       `json:"Version,omitempty"`
	InstallDate          string       `json:"InstallDate,omitempty"`
	EstimatedSize        OptionalSize `json:"EstimatedSize,omitempty"`
	UninstallString      string       `json:"UninstallString,omitempty"`
	QuietUninstallString string       `json:"QuietUninstallString,omitempty"`
	ProductCode          string       `json:"ProductCode,omitempty"`
	InstallLocation      string       `json:"InstallLocation,omitempty"`
	SystemComponent      Flag         `json:"SystemComponent,omitempty"`
	ParentKeyName        string       `json:"ParentKeyName,omitempty"`
	NoRemove             Flag         `json:"NoRemove,omitempty"`
	IsFramework          Flag         `json:"IsFramework,omitempty"`
	IsResource           Flag         `json:"IsResource,omitempty"`
	SignatureKind        string       `json:"SignatureKind,omitempty"`
	Source               Source       `json:"Source"`
	Is64Bit              Flag         `json:"Is64Bit,omitempty"`
	InstallerType        string       `json:"InstallerType,omitempty"`
	WindowsInstaller     Flag         `json:"WindowsInstaller,omitempty"`
	PackageFullName      string       `json:"PackageFullName,omitempty"`
}

// SoftwareEntry is the canonical, normalized view of installed software.
// Entries are never mutated after Normalize returns them; selection state
// lives in uninstall.WorkingSet.
type SoftwareEntry struct {
	ID                   string        `json:"id"`
	Name                 string        `json:"name"`
	Publisher            string        `json:"publisher,omitempty"`
	Version              string        `json:"version,omitempty"`
	InstallDate          time.Time     `json:"install_date,omitempty"`
	RawInstallDate       string        `json:"raw_install_date,omitempty"`
	EstimatedSizeKB      int64         `json:"estimated_size_kb,omitempty"`
	UninstallString      string        `json:"uninstall_string,omitempty"`
	QuietUninstallString string        `json:"quiet_uninstall_string,omitempty"`
	ProductCode          string        `json:"product_code,omitempty"`
	InstallLocation      string        `json:"install_location,omitempty"`
	InstallerType        InstallerType `json:"installer_type"`
	WindowsInstaller     bool          `json:"windows_installer,omitempty"`
	Is64Bit              bool          `json:"is_64bit,omitempty"`
	Source               Source        `json:"source"`
	PackageFullName      string        `json:"package_full_name,omitempty"`
	Uninstallable        bool          `json:"uninstallable"`
}

func (e SoftwareEntry) IsPackaged() bool {
	return e.Source.IsPackaged()
}

func (e SoftwareEntry) FormattedInstallDate() string {
	if e.InstallDate.IsZero() {
		return ""
	}
	return e.InstallDate.Format("2006-01-02")
}

// FormattedSize renders EstimatedSizeKB, or "" when unknown.
func (e SoftwareEntry) FormattedSize() string {
	if e.EstimatedSizeKB <= 0 {
		return ""
	}
	size := float64(e.EstimatedSizeKB)
	units := []string{"KB", "MB", "GB", "TB"}
	i := 0
	for size >= 1024 && i < len(units)-1 {
		size /= 1024
		i++
	}
	if i == 0 {
		return fmt.Sprintf("%d KB", e.EstimatedSizeKB)
	}
	return fmt.Sprintf("%.1f %s", size, units[i])
}

// DisplayName is name plus version, used in logs and summaries.
func (e SoftwareEntry) DisplayName() string {
	if e.Version == "" {
		return e.Name
	}
	return e.Name + " " + e.Version
}

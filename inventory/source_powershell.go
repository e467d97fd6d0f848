package inventory

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
)

const appxQuery = `Get-AppxPackage | Select-Object Name, PackageFullName, Publisher, Version, InstallLocation, IsFramework, IsResourcePackage, @{n='SignatureKind';e={$_.SignatureKind.ToString()}}, @{n='Architecture';e={$_.Architecture.ToString()}} | ConvertTo-Json -Compress`

const capabilityQuery = `Get-WindowsCapability -Online | Where-Object { $_.State -eq 'Installed' } | Select-Object Name | ConvertTo-Json -Compress`

type appxPackage struct {
	Name              string `json:"Name"`
	PackageFullName   string `json:"PackageFullName"`
	Publisher         string `json:"Publisher"`
	Version           string `json:"Version"`
	InstallLocation   string `json:"InstallLocation"`
	IsFramework       Flag   `json:"IsFramework"`
	IsResourcePackage Flag   `json:"IsResourcePackage"`
	SignatureKind     string `json:"SignatureKind"`
	Architecture      string `json:"Architecture"`
}

type windowsCapability struct {
	Name string `json:"Name"`
}

// splitPowerShellJSON handles ConvertTo-Json collapsing one-element results
// into a bare object.
func splitPowerShellJSON(data []byte) ([]json.RawMessage, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}
	if data[0] == '{' {
		return []json.RawMessage{data}, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, errors.Wrap(err, "decode powershell output")
	}
	return items, nil
}

func appxRecords(data []byte) ([]RawRecord, error) {
	items, err := splitPowerShellJSON(data)
	if err != nil {
		return nil, err
	}
	records := make([]RawRecord, 0, len(items))
	for _, item := range items {
		var pkg appxPackage
		if err := json.Unmarshal(item, &pkg); err != nil {
			continue
		}
		if pkg.Name == "" {
			continue
		}
		records = append(records, RawRecord{
			Name:            pkg.Name,
			Publisher:       pkg.Publisher,
			Version:         pkg.Version,
			InstallLocation: pkg.InstallLocation,
			IsFramework:     pkg.IsFramework,
			IsResource:      pkg.IsResourcePackage,
			SignatureKind:   pkg.SignatureKind,
			PackageFullName: pkg.PackageFullName,
			Is64Bit:         Flag(strings.EqualFold(pkg.Architecture, "X64") || strings.EqualFold(pkg.Architecture, "Arm64")),
			Source:          SourcePackagedApp,
		})
	}
	return records, nil
}

// capabilityRecords turns "App.StepsRecorder~~~~0.0.1.0" identities into a
// display name and version while keeping the full identity for removal.
func capabilityRecords(data []byte) ([]RawRecord, error) {
	items, err := splitPowerShellJSON(data)
	if err != nil {
		return nil, err
	}
	records := make([]RawRecord, 0, len(items))
	for _, item := range items {
		var capability windowsCapability
		if err := json.Unmarshal(item, &capability); err != nil || capability.Name == "" {
			continue
		}
		name, version := capability.Name, ""
		if i := strings.Index(capability.Name, "~"); i > 0 {
			name = capability.Name[:i]
			parts := strings.Split(capability.Name, "~")
			version = parts[len(parts)-1]
		}
		records = append(records, RawRecord{
			Name:            name,
			Version:         version,
			PackageFullName: capability.Name,
			Source:          SourceCapability,
		})
	}
	return records, nil
}

package uninstall

import "pruneware/inventory"

// Method is the removal strategy chosen for an entry.
type Method string

const (
	MethodNone                 Method = "None"
	MethodUninstallString      Method = "UninstallString"
	MethodQuietUninstallString Method = "QuietUninstallString"
	MethodMsiProductCode       Method = "MsiProductCode"
	MethodAppxPackage          Method = "AppxPackage"
	MethodWindowsCapability    Method = "WindowsCapability"
)

func (m Method) IsMSI() bool { return m == MethodMsiProductCode }

// Elevated reports whether the method needs an administrator token.
func (m Method) Elevated() bool {
	switch m {
	case MethodUninstallString, MethodAppxPackage, MethodWindowsCapability:
		return true
	}
	return false
}

// SelectMethod picks one removal method, first match wins:
// not uninstallable, package removal, quiet string, MSI product code,
// uninstall string. A quiet string beats the product code even on MSI
// packages that export both.
func SelectMethod(e inventory.SoftwareEntry) Method {
	if !e.Uninstallable {
		return MethodNone
	}
	if e.IsPackaged() && e.PackageFullName != "" {
		if e.Source == inventory.SourceCapability {
			return MethodWindowsCapability
		}
		return MethodAppxPackage
	}
	if e.QuietUninstallString != "" {
		return MethodQuietUninstallString
	}
	if e.ProductCode != "" || e.WindowsInstaller {
		return MethodMsiProductCode
	}
	if e.UninstallString != "" {
		return MethodUninstallString
	}
	return MethodNone
}

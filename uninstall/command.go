package uninstall

import (
	"regexp"
	"strings"

	"pruneware/inventory"
	"pruneware/utils"
)

// Command is an uninstall string split for process creation. Shell commands
// run through cmd.exe /c with Args as the full original string.
type Command struct {
	Path  string
	Args  string
	Shell bool
}

func (c Command) String() string {
	if c.Args == "" {
		return quoteIfNeeded(c.Path)
	}
	return quoteIfNeeded(c.Path) + " " + c.Args
}

const shellPath = "cmd.exe"

// ParseCommand never fails. Strings without a recognizable executable are
// handed to the command shell.
func ParseCommand(s string) Command {
	s = strings.TrimSpace(s)
	exe, args, ok := utils.SplitExecutable(s)
	if !ok {
		return Command{Path: shellPath, Args: "/c " + s, Shell: true}
	}
	return Command{Path: exe, Args: args}
}

var msiInstallSwitch = regexp.MustCompile(`(?i)(^|\s)[/-]i(\s*\{)`)

// rewriteMsiInstall turns "msiexec /I{GUID}" into "msiexec /X{GUID}".
// Many MSI packages register the repair/modify switch as their uninstall
// string.
func rewriteMsiInstall(args string) string {
	return msiInstallSwitch.ReplaceAllString(args, "${1}/X${2}")
}

func isMsiexecPath(path string) bool {
	base := strings.ToLower(path)
	if i := strings.LastIndexAny(base, `\/`); i >= 0 {
		base = base[i+1:]
	}
	return base == "msiexec.exe" || base == "msiexec"
}

var silentSwitchTokens = map[string]struct{}{
	"/s":                {},
	"-s":                {},
	"/silent":           {},
	"-silent":           {},
	"--silent":          {},
	"/verysilent":       {},
	"/q":                {},
	"/qn":               {},
	"/qb":               {},
	"/qb-":              {},
	"/qn+":              {},
	"/quiet":            {},
	"-quiet":            {},
	"--quiet":           {},
	"/passive":          {},
	"/suppressmsgboxes": {},
	"-q":                {},
}

// HasSilentSwitch reports whether args already carry a known quiet flag.
func HasSilentSwitch(args string) bool {
	for _, tok := range strings.Fields(strings.ToLower(args)) {
		tok = strings.Trim(tok, `"`)
		if _, ok := silentSwitchTokens[tok]; ok {
			return true
		}
		// "/S=1", "/quiet:true"
		if i := strings.IndexAny(tok, "=:"); i > 0 {
			if _, ok := silentSwitchTokens[tok[:i]]; ok {
				return true
			}
		}
	}
	return false
}

// SilentSwitches returns the quiet flags understood by an installer family.
// Unknown installers get a broad set, most of which are ignored by any given
// uninstaller.
func SilentSwitches(t inventory.InstallerType) string {
	switch t {
	case inventory.InstallerMSI:
		return "/qn /norestart"
	case inventory.InstallerInnoSetup:
		return "/VERYSILENT /SUPPRESSMSGBOXES /NORESTART"
	case inventory.InstallerNSIS:
		return "/S"
	case inventory.InstallerInstallShield:
		return "-silent"
	}
	return "/S /SILENT /VERYSILENT /SUPPRESSMSGBOXES /NORESTART /quiet"
}

// silentCommand parses an uninstall string and appends installer specific
// quiet flags when none are present, also when the string runs through the
// command shell. msiexec commands are always treated as MSI regardless of the
// entry's recorded installer type.
func silentCommand(s string, installer inventory.InstallerType) Command {
	cmd := ParseCommand(s)
	if !cmd.Shell && isMsiexecPath(cmd.Path) {
		installer = inventory.InstallerMSI
		cmd.Args = rewriteMsiInstall(cmd.Args)
	}
	if !HasSilentSwitch(cmd.Args) {
		cmd.Args = strings.TrimSpace(cmd.Args + " " + SilentSwitches(installer))
	}
	return cmd
}

func msiUninstallCommand(productCode string) Command {
	return Command{Path: "msiexec.exe", Args: "/x " + productCode + " /qn /norestart"}
}

func powerShellCommand(script string) Command {
	return Command{
		Path: "powershell.exe",
		Args: `-NoProfile -NonInteractive -ExecutionPolicy Bypass -Command "` + script + `"`,
	}
}

func appxRemoveCommand(packageFullName string) Command {
	return powerShellCommand("Remove-AppxPackage -Package '" + psQuote(packageFullName) + "' -ErrorAction Stop")
}

func capabilityRemoveCommand(name string) Command {
	return powerShellCommand("Remove-WindowsCapability -Online -Name '" + psQuote(name) + "' -ErrorAction Stop | Out-Null")
}

// psQuote escapes a value for a single quoted PowerShell string.
func psQuote(s string) string {
	s = strings.ReplaceAll(s, `"`, "")
	return strings.ReplaceAll(s, "'", "''")
}

func quoteIfNeeded(path string) string {
	if strings.ContainsAny(path, " \t") && !strings.HasPrefix(path, `"`) {
		return `"` + path + `"`
	}
	return path
}

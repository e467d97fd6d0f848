package uninstall

import "fmt"

const (
	exitSuccess         = 0
	exitRebootRequired  = 3010
	exitMsiNotInstalled = 1605
)

var msiExitMessages = map[int]string{
	1601: "Windows Installer service could not be accessed",
	1602: "User cancelled installation",
	1603: "Fatal error during installation",
	1604: "Installation suspended, incomplete",
	1618: "Another installation is already in progress",
	1619: "Installation package could not be opened",
	1620: "Installation package could not be opened (invalid)",
	1622: "Error opening installation log file",
	1623: "Language of this installation package is not supported",
	1625: "Installation forbidden by system policy",
	1638: "Another version of this product is already installed",
	1639: "Invalid command line argument",
}

// IsSuccessExitCode reports whether a process exit code means the product is
// gone. 1605 (unknown product) only counts for msiexec runs.
func IsSuccessExitCode(m Method, code int) bool {
	switch code {
	case exitSuccess, exitRebootRequired:
		return true
	case exitMsiNotInstalled:
		return m.IsMSI()
	}
	return false
}

func RebootRequired(code int) bool {
	return code == exitRebootRequired
}

// ExitCodeMessage describes a failing exit code.
func ExitCodeMessage(m Method, code int) string {
	if m.IsMSI() {
		if msg, ok := msiExitMessages[code]; ok {
			return fmt.Sprintf("%s (exit code %d)", msg, code)
		}
	}
	return fmt.Sprintf("Uninstaller exited with code %d", code)
}

package inventory

import (
	"regexp"
	"strings"

	"pruneware/utils"

	"github.com/cloudflare/ahocorasick"
)

// ClassifierConfig tunes the essential-software rules.
type ClassifierConfig struct {
	// IncludeVendorApps keeps vendor-bundled apps (browser, sync client,
	// first-party store apps) in the inventory.
	IncludeVendorApps bool
	SystemRoot        string
	ProgramFiles      string
}

func DefaultClassifierConfig() ClassifierConfig {
	return ClassifierConfig{
		SystemRoot:   `C:\Windows`,
		ProgramFiles: `C:\Program Files`,
	}
}

// RuleScope limits a rule to one family of sources.
type RuleScope int

const (
	ScopeAny RuleScope = iota
	ScopeRegistry
	ScopePackaged
)

func (s RuleScope) applies(src Source) bool {
	switch s {
	case ScopeRegistry:
		return !src.IsPackaged()
	case ScopePackaged:
		return src == SourcePackagedApp
	default:
		return true
	}
}

// Rule is one entry of the classification table. VendorApp rules are skipped
// when IncludeVendorApps is set.
type Rule struct {
	Name      string
	Scope     RuleScope
	VendorApp bool
	Match     func(c *Classifier, r RawRecord) bool
}

var noiseNamePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)windows (update|sdk|feature|hotfix)`),
	regexp.MustCompile(`(?i)\bKB\d{6,}`),
	regexp.MustCompile(`(?i)^\s*update for\b`),
	regexp.MustCompile(`(?i)^\s*security update for\b`),
	regexp.MustCompile(`(?i)^\s*servicing stack`),
	regexp.MustCompile(`(?i)^\s*microsoft update health tools`),
}

var vendorAppKeywords = []string{
	"microsoft edge",
	"microsoft edge update",
	"microsoft edge webview2",
	"microsoft onedrive",
}

var vendorPublishers = []string{
	"cn=microsoft corporation",
	"cn=microsoft windows",
	"microsoft corporation",
}

var vendorNamespaces = []string{
	"microsoft.",
	"microsoftwindows.",
	"windows.",
}

func matchesNoiseName(name string) bool {
	for _, re := range noiseNamePatterns {
		if re.MatchString(name) {
			return true
		}
	}
	return false
}

// Rules are evaluated in order; the first match decides.
var Rules = []Rule{
	{
		Name:  "system-component",
		Scope: ScopeAny,
		Match: func(_ *Classifier, r RawRecord) bool {
			return bool(r.SystemComponent) || strings.TrimSpace(r.ParentKeyName) != ""
		},
	},
	{
		// packaged apps are only protected under SystemApps
		Name:  "protected-path",
		Scope: ScopeAny,
		Match: func(c *Classifier, r RawRecord) bool {
			if r.Source == SourcePackagedApp {
				return false
			}
			return utils.IsWindowsPathWithin(r.InstallLocation, c.systemRoot) ||
				utils.IsWindowsPathWithin(r.InstallLocation, c.appSandboxRoot)
		},
	},
	{
		Name:  "system-apps",
		Scope: ScopePackaged,
		Match: func(c *Classifier, r RawRecord) bool {
			return utils.IsWindowsPathWithin(r.InstallLocation, c.systemAppsRoot)
		},
	},
	{
		Name:  "framework-package",
		Scope: ScopePackaged,
		Match: func(_ *Classifier, r RawRecord) bool { return bool(r.IsFramework) },
	},
	{
		Name:  "resource-package",
		Scope: ScopePackaged,
		Match: func(_ *Classifier, r RawRecord) bool { return bool(r.IsResource) },
	},
	{
		Name:  "noise-name",
		Scope: ScopeAny,
		Match: func(_ *Classifier, r RawRecord) bool {
			if r.Source == SourcePackagedApp {
				return false
			}
			return matchesNoiseName(r.Name)
		},
	},
	{
		Name:      "vendor-app",
		Scope:     ScopeRegistry,
		VendorApp: true,
		Match: func(c *Classifier, r RawRecord) bool {
			name := strings.ToLower(r.Name)
			return len(c.vendorApps.MatchThreadSafe([]byte(name))) > 0
		},
	},
	{
		Name:      "vendor-publisher",
		Scope:     ScopePackaged,
		VendorApp: true,
		Match: func(_ *Classifier, r RawRecord) bool {
			if strings.EqualFold(strings.TrimSpace(r.SignatureKind), "system") {
				return true
			}
			pub := strings.ToLower(strings.TrimSpace(r.Publisher))
			for _, p := range vendorPublishers {
				if pub == p || strings.HasPrefix(pub, p+",") {
					return true
				}
			}
			return false
		},
	},
	{
		Name:      "vendor-namespace",
		Scope:     ScopePackaged,
		VendorApp: true,
		Match: func(_ *Classifier, r RawRecord) bool {
			name := strings.ToLower(strings.TrimSpace(r.Name))
			for _, prefix := range vendorNamespaces {
				if strings.HasPrefix(name, prefix) {
					return true
				}
			}
			return false
		},
	},
}

// Classifier decides whether a raw record is OS-essential noise. It holds no
// mutable state, so one instance may be shared.
type Classifier struct {
	cfg            ClassifierConfig
	systemRoot     string
	systemAppsRoot string
	appSandboxRoot string
	vendorApps     *ahocorasick.Matcher
	rules          []Rule
}

func NewClassifier(cfg ClassifierConfig) *Classifier {
	def := DefaultClassifierConfig()
	if strings.TrimSpace(cfg.SystemRoot) == "" {
		cfg.SystemRoot = def.SystemRoot
	}
	if strings.TrimSpace(cfg.ProgramFiles) == "" {
		cfg.ProgramFiles = def.ProgramFiles
	}
	systemRoot := strings.TrimRight(cfg.SystemRoot, `\/`)
	return &Classifier{
		cfg:            cfg,
		systemRoot:     systemRoot,
		systemAppsRoot: systemRoot + `\SystemApps`,
		appSandboxRoot: strings.TrimRight(cfg.ProgramFiles, `\/`) + `\WindowsApps`,
		vendorApps:     ahocorasick.NewStringMatcher(vendorAppKeywords),
		rules:          Rules,
	}
}

// IsEssential reports whether the record should be hidden from the user.
func (c *Classifier) IsEssential(r RawRecord) bool {
	essential, _ := c.Classify(r)
	return essential
}

// Classify is IsEssential plus the name of the rule that fired.
func (c *Classifier) Classify(r RawRecord) (bool, string) {
	for _, rule := range c.rules {
		if rule.VendorApp && c.cfg.IncludeVendorApps {
			continue
		}
		if !rule.Scope.applies(r.Source) {
			continue
		}
		if rule.Match(c, r) {
			return true, rule.Name
		}
	}
	return false, ""
}

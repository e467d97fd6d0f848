package inventory

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"pruneware/logger"
	"pruneware/utils"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
)

type NormalizeOptions struct {
	Classifier ClassifierConfig
	// OnlyAfterOSInstall drops records whose install date parsed and falls
	// before the day the OS was installed. Ignored when OSInstallDate is zero.
	OnlyAfterOSInstall   bool
	OSInstallDate        time.Time
	DetectInstallerFiles bool
	// NewID overrides the entry id generator. Defaults to random UUIDs.
	NewID func() string
}

// NormalizeStats counts why records did not make it into the inventory.
type NormalizeStats struct {
	Input      int
	EmptyName  int
	Essential  int
	BeforeOS   int
	Duplicates int
	Output     int
}

var (
	productCodePattern = regexp.MustCompile(`^\{[0-9A-Fa-f]{8}-[0-9A-Fa-f]{4}-[0-9A-Fa-f]{4}-[0-9A-Fa-f]{4}-[0-9A-Fa-f]{12}\}$`)
	embeddedGUID       = regexp.MustCompile(`\{[0-9A-Fa-f]{8}-[0-9A-Fa-f]{4}-[0-9A-Fa-f]{4}-[0-9A-Fa-f]{4}-[0-9A-Fa-f]{12}\}`)
)

// NormalizeProductCode returns the upper-cased braced GUID, or "" when the
// value is not one.
func NormalizeProductCode(s string) string {
	s = strings.TrimSpace(s)
	if !productCodePattern.MatchString(s) {
		return ""
	}
	return strings.ToUpper(s)
}

func Normalize(records []RawRecord, opts NormalizeOptions) []SoftwareEntry {
	entries, _ := NormalizeWithStats(records, opts)
	return entries
}

// NormalizeWithStats is Normalize plus the per-reason drop counts.
func NormalizeWithStats(records []RawRecord, opts NormalizeOptions) ([]SoftwareEntry, NormalizeStats) {
	stats := NormalizeStats{Input: len(records)}
	classifier := NewClassifier(opts.Classifier)
	newID := opts.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	var cutoff time.Time
	if opts.OnlyAfterOSInstall && !opts.OSInstallDate.IsZero() {
		cutoff = startOfDay(opts.OSInstallDate)
	}

	seen := make(map[uint64]struct{}, len(records))
	entries := make([]SoftwareEntry, 0, len(records))
	for _, rec := range records {
		rec.Name = strings.TrimSpace(rec.Name)
		if rec.Name == "" {
			stats.EmptyName++
			continue
		}
		if essential, rule := classifier.Classify(rec); essential {
			logger.Debugf("Hiding %q (%s): %s", rec.Name, rec.Source, rule)
			stats.Essential++
			continue
		}
		installed, dated := ParseInstallDate(rec.InstallDate)
		if dated && !cutoff.IsZero() && installed.Before(cutoff) {
			stats.BeforeOS++
			continue
		}
		key := dedupeKey(rec)
		if _, dup := seen[key]; dup {
			stats.Duplicates++
			continue
		}
		seen[key] = struct{}{}

		entry := buildEntry(rec, opts.DetectInstallerFiles)
		entry.ID = newID()
		if dated {
			entry.InstallDate = installed
		}
		entries = append(entries, entry)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		ri, rj := entries[i].Source.Rank(), entries[j].Source.Rank()
		if ri != rj {
			return ri < rj
		}
		return strings.ToLower(entries[i].Name) < strings.ToLower(entries[j].Name)
	})
	stats.Output = len(entries)
	return entries, stats
}

func dedupeKey(r RawRecord) uint64 {
	d := xxhash.New()
	for _, part := range []string{r.Name, r.Version, r.Publisher} {
		d.WriteString(strings.ToLower(strings.TrimSpace(part)))
		d.Write([]byte{0})
	}
	return d.Sum64()
}

func buildEntry(r RawRecord, detectFiles bool) SoftwareEntry {
	e := SoftwareEntry{
		Name:            r.Name,
		Publisher:       strings.TrimSpace(r.Publisher),
		Version:         strings.TrimSpace(r.Version),
		RawInstallDate:  strings.TrimSpace(r.InstallDate),
		EstimatedSizeKB: int64(r.EstimatedSize),
		InstallLocation: strings.TrimSpace(r.InstallLocation),
		Is64Bit:         bool(r.Is64Bit),
		Source:          r.Source,
		InstallerType:   InstallerUnknown,
	}
	if e.Source == "" {
		e.Source = SourceRegistry64
	}

	if e.Source.IsPackaged() {
		e.PackageFullName = strings.TrimSpace(r.PackageFullName)
		e.Uninstallable = e.PackageFullName != "" && !bool(r.NoRemove)
		return e
	}

	e.UninstallString = strings.TrimSpace(r.UninstallString)
	e.QuietUninstallString = strings.TrimSpace(r.QuietUninstallString)
	e.WindowsInstaller = bool(r.WindowsInstaller)
	e.ProductCode = NormalizeProductCode(r.ProductCode)
	if e.ProductCode == "" && (e.WindowsInstaller || isMsiexec(e.UninstallString)) {
		e.ProductCode = productCodeFromCommand(e.UninstallString)
	}
	e.InstallerType = InferInstallerType(r)
	if e.InstallerType == InstallerUnknown && detectFiles {
		e.InstallerType = detectFromCommand(e.QuietUninstallString, e.UninstallString)
	}
	e.Uninstallable = !bool(r.NoRemove) &&
		(e.UninstallString != "" || e.QuietUninstallString != "" || e.ProductCode != "")
	return e
}

func isMsiexec(cmd string) bool {
	return msiexecToken.MatchString(cmd)
}

func productCodeFromCommand(cmd string) string {
	if !isMsiexec(cmd) {
		return ""
	}
	return strings.ToUpper(embeddedGUID.FindString(cmd))
}

func detectFromCommand(commands ...string) InstallerType {
	for _, cmd := range commands {
		exe, _, ok := utils.SplitExecutable(cmd)
		if !ok || isMsiexec(exe) {
			continue
		}
		kind, err := DetectInstallerFile(exe)
		if err != nil {
			logger.Debugf("Installer detection skipped for %s: %v", exe, err)
			continue
		}
		if kind != InstallerUnknown {
			return kind
		}
	}
	return InstallerUnknown
}

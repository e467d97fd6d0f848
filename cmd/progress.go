package main

import (
	"fmt"
	"os"
	"strings"

	"pruneware/inventory"
	"pruneware/uninstall"

	"github.com/schollz/progressbar/v3"
)

// barProgress renders batch progress on stderr.
type barProgress struct {
	bar *progressbar.ProgressBar
}

func newBarProgress() *barProgress {
	return &barProgress{}
}

func (p *barProgress) Start(total int) {
	p.bar = progressbar.NewOptions(total,
		progressbar.OptionSetDescription("Uninstalling"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionSetVisibility(progressVisible()),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionFullWidth(),
	)
}

func (p *barProgress) Item(index int, entry inventory.SoftwareEntry) {
	if p.bar == nil {
		return
	}
	p.bar.Describe(fmt.Sprintf("Uninstalling %s", entry.DisplayName()))
}

func (p *barProgress) Done(uninstall.Result) {
	if p.bar == nil {
		return
	}
	_ = p.bar.Add(1)
}

func (p *barProgress) Finish() {
	if p.bar == nil {
		return
	}
	_ = p.bar.Finish()
	fmt.Fprintln(os.Stderr)
}

func progressVisible() bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv("PRUNEWARE_DISABLE_PROGRESS")))
	return value != "1" && value != "true" && value != "yes" && value != "on"
}

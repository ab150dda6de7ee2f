// Copyright 2025 Loft Manager Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/briandowns/spinner"
	"github.com/schollz/progressbar/v3"

	"github.com/nextjsreact/loft-envclone/envclone"
)

// progressRenderer turns the clone log stream into terminal output: a
// spinner while a phase runs, a progress bar for row-copy batches.
type progressRenderer struct {
	mu    sync.Mutex
	spin  *spinner.Spinner
	bar   *progressbar.ProgressBar
	phase string
	quiet bool
}

func newProgressRenderer(quiet bool) *progressRenderer {
	return &progressRenderer{quiet: quiet}
}

// Sink is the envclone.LogSink fed to the orchestrator.
func (p *progressRenderer) Sink(entry envclone.CloneLog) {
	if p.quiet {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if entry.Phase != p.phase {
		p.stopSpinnerLocked()
		p.phase = entry.Phase
		p.spin = spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
		p.spin.Suffix = " " + entry.Phase
		p.spin.Start()
	}

	switch entry.Level {
	case envclone.LevelError:
		p.stopSpinnerLocked()
		fmt.Fprintf(os.Stderr, "✗ [%s] %s\n", entry.Phase, entry.Message)
	case envclone.LevelWarning:
		fmt.Fprintf(os.Stderr, "! [%s] %s\n", entry.Phase, entry.Message)
	case envclone.LevelSuccess:
		p.stopSpinnerLocked()
		fmt.Fprintf(os.Stderr, "✓ [%s] %s\n", entry.Phase, entry.Message)
	default:
		if copied, ok := entry.Metadata["copied"].(int64); ok {
			if p.bar == nil {
				p.bar = progressbar.NewOptions64(-1,
					progressbar.OptionSetDescription(entry.Phase),
					progressbar.OptionSetWriter(os.Stderr),
					progressbar.OptionShowCount())
			}
			_ = p.bar.Set64(copied)
		}
	}
}

// Finish stops any live spinner or bar.
func (p *progressRenderer) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopSpinnerLocked()
	if p.bar != nil {
		_ = p.bar.Finish()
		p.bar = nil
	}
}

func (p *progressRenderer) stopSpinnerLocked() {
	if p.spin != nil {
		p.spin.Stop()
		p.spin = nil
	}
}

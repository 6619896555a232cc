package main

import (
	"io"
	"sync"

	"github.com/schollz/progressbar/v3"

	"trapcat/internal/workpool"
)

// terminalProgress draws one bar per phase on an interactive terminal.
type terminalProgress struct {
	mu    sync.Mutex
	w     io.Writer
	phase string
	bar   *progressbar.ProgressBar
}

// newProgress returns a progress callback and a finish function. Both are
// no-ops unless w is a terminal.
func newProgress(w io.Writer, enabled bool) (workpool.ProgressFunc, func()) {
	if !enabled || !isTerminal(w) {
		return nil, func() {}
	}
	p := &terminalProgress{w: w}
	return p.update, p.finish
}

func (p *terminalProgress) update(phase string, done, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if phase != p.phase || p.bar == nil {
		if p.bar != nil {
			_ = p.bar.Finish()
		}
		limit := total
		if limit <= 0 {
			limit = -1
		}
		p.phase = phase
		p.bar = progressbar.NewOptions(limit,
			progressbar.OptionSetWriter(p.w),
			progressbar.OptionSetDescription(phase),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
	}
	_ = p.bar.Set(done)
}

func (p *terminalProgress) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bar != nil {
		_ = p.bar.Finish()
		p.bar = nil
	}
}

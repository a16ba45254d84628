package worker

import (
	"sync"

	"github.com/bobarin/reelrender/internal/models"
)

// ProgressFunc receives a stage label and a percentage at each transition.
type ProgressFunc func(stage models.Stage, percent int)

// Stage progress checkpoints.
const (
	progressInit        = 0
	progressImagesStart = 5
	progressImagesEnd   = 30
	progressAudio       = 32
	progressAudioProbed = 35
	progressClipsStart  = 40
	progressClipsEnd    = 70
	progressConcat      = 75
	progressReconcile   = 82
	progressMux         = 88
	progressValidate    = 93
	progressRead        = 97
	progressCleanup     = 98
	progressComplete    = 100
)

// progressTracker forwards progress and keeps the percentage from ever going
// backwards, including the final failed report.
type progressTracker struct {
	mu   sync.Mutex
	fn   ProgressFunc
	last int
}

func newProgressTracker(fn ProgressFunc) *progressTracker {
	return &progressTracker{fn: fn, last: -1}
}

func (p *progressTracker) report(stage models.Stage, percent int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if percent > 100 {
		percent = 100
	}
	if percent < p.last {
		percent = p.last
	}
	if percent < 0 {
		percent = 0
	}
	p.last = percent
	if p.fn != nil {
		p.fn(stage, percent)
	}
}

// fail reports the failed stage at the current percentage.
func (p *progressTracker) fail() {
	p.mu.Lock()
	last := p.last
	p.mu.Unlock()
	p.report(models.StageFailed, last)
}

// span maps done/total onto [from, to].
func span(from, to, done, total int) int {
	if total <= 0 {
		return to
	}
	return from + (to-from)*done/total
}

package pipeline

// Phase indicates the current stage of a pipeline run.
type Phase string

const (
	PhaseParsing    Phase = "parsing"
	PhaseValidating Phase = "validating"
	PhaseWriting    Phase = "writing"
	PhaseCompleted  Phase = "completed"
	PhaseFailed     Phase = "failed"
)

// ProgressFunc is called at every phase transition and periodically while a
// phase runs. percent is 0-100.
type ProgressFunc func(phase Phase, percent int)

// progress enforces the reporting contract: percent never decreases, stays
// under 100 while work remains, and reaches 100 exactly once on completion.
type progress struct {
	fn    ProgressFunc
	phase Phase
	last  int
	done  bool
}

func newProgress(fn ProgressFunc) *progress {
	return &progress{fn: fn, phase: PhaseParsing}
}

// transition moves to a new phase, re-emitting the current percent.
func (p *progress) transition(phase Phase) {
	if p.done || p.phase == phase {
		return
	}
	p.phase = phase
	p.emit(p.last)
}

// update raises the percent within the current phase. Values at or below the
// last emitted percent, or at 100, are ignored; only finish emits 100.
func (p *progress) update(percent int) {
	if p.done || percent <= p.last {
		return
	}
	if percent > 99 {
		percent = 99
	}
	p.emit(percent)
}

// finish completes the run at exactly 100.
func (p *progress) finish() {
	if p.done {
		return
	}
	p.done = true
	p.phase = PhaseCompleted
	p.emit(100)
}

// fail terminates the run without ever reaching 100.
func (p *progress) fail() {
	if p.done {
		return
	}
	p.done = true
	p.phase = PhaseFailed
	p.emit(p.last)
}

func (p *progress) emit(percent int) {
	if percent > p.last {
		p.last = percent
	}
	if p.fn != nil {
		p.fn(p.phase, percent)
	}
}

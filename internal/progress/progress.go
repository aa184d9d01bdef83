package progress

import (
	"sync"
	"time"
)

// Stage names one phase of a run.
type Stage string

const (
	StageScan   Stage = "scan"
	StageWrite  Stage = "write"
	StageVerify Stage = "verify"
)

// Event reports one unit of finished work within a stage.
type Event struct {
	Stage     Stage
	Path      string
	Bytes     int64
	Err       error
	Timestamp time.Time
}

// Observer receives progress from the core. Implementations must be safe
// for concurrent use; Advance is called from worker goroutines.
type Observer interface {
	Start(stage Stage, totalBytes int64)
	Advance(ev Event)
	Finish(stage Stage)
}

// Nop discards all progress.
type Nop struct{}

func (Nop) Start(Stage, int64) {}
func (Nop) Advance(Event)      {}
func (Nop) Finish(Stage)       {}

// OrNop returns o, or Nop when o is nil.
func OrNop(o Observer) Observer {
	if o == nil {
		return Nop{}
	}
	return o
}

// Recorder keeps every event it observes.
type Recorder struct {
	mu     sync.Mutex
	totals map[Stage]int64
	events []Event
}

// NewRecorder creates an empty recorder
func NewRecorder() *Recorder {
	return &Recorder{totals: make(map[Stage]int64)}
}

func (r *Recorder) Start(stage Stage, totalBytes int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.totals[stage] = totalBytes
}

func (r *Recorder) Advance(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *Recorder) Finish(Stage) {}

// Total returns the byte total announced for stage.
func (r *Recorder) Total(stage Stage) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.totals[stage]
}

// Events returns the events observed for stage, in arrival order.
func (r *Recorder) Events(stage Stage) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Event
	for _, ev := range r.events {
		if ev.Stage == stage {
			out = append(out, ev)
		}
	}
	return out
}

package main

import (
	"io"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/NamanBalaji/tbs/internal/progress"
)

// barObserver renders one byte-based progress bar per stage.
type barObserver struct {
	mu   sync.Mutex
	out  io.Writer
	bars map[progress.Stage]*progressbar.ProgressBar
}

func newBarObserver(out io.Writer) *barObserver {
	return &barObserver{
		out:  out,
		bars: make(map[progress.Stage]*progressbar.ProgressBar),
	}
}

func (o *barObserver) Start(stage progress.Stage, totalBytes int64) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if totalBytes <= 0 {
		return
	}

	o.bars[stage] = progressbar.NewOptions64(totalBytes,
		progressbar.OptionSetWriter(o.out),
		progressbar.OptionSetDescription(describe(stage)),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(30),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionOnCompletion(func() { _, _ = io.WriteString(o.out, "\n") }),
	)
}

func (o *barObserver) Advance(ev progress.Event) {
	o.mu.Lock()
	bar := o.bars[ev.Stage]
	o.mu.Unlock()

	if bar != nil && ev.Bytes > 0 {
		_ = bar.Add64(ev.Bytes)
	}
}

func (o *barObserver) Finish(stage progress.Stage) {
	o.mu.Lock()
	bar := o.bars[stage]
	delete(o.bars, stage)
	o.mu.Unlock()

	if bar != nil {
		_ = bar.Finish()
	}
}

// Close finishes any bar a canceled stage left open.
func (o *barObserver) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()

	for stage, bar := range o.bars {
		_ = bar.Exit()
		delete(o.bars, stage)
	}
}

func describe(stage progress.Stage) string {
	switch stage {
	case progress.StageScan:
		return "Scanning "
	case progress.StageWrite:
		return "Writing  "
	case progress.StageVerify:
		return "Verifying"
	default:
		return string(stage)
	}
}

package diagnostics

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type Severity string

const (
	Info Severity = "info"
	Warn Severity = "warning"
	Err  Severity = "error"
)

// Codes
const (
	CodeBusy       = "PERIPH.BUSY"
	CodeInitFailed = "INIT.FAILED"
	CodeNotReady   = "PERIPH.NOT_READY"
	CodeWriteFail  = "PERIPH.WRITE_FAILED"
)

type Diagnostic struct {
	Time           time.Time      `json:"time"`
	Severity       Severity       `json:"severity"`
	Code           string         `json:"code"`
	Summary        string         `json:"summary"`
	Detail         string         `json:"detail,omitempty"`
	LikelyCauses   []string       `json:"likely_causes,omitempty"`
	SuggestedFixes []string       `json:"suggested_fixes,omitempty"`
	Evidence       map[string]any `json:"evidence,omitempty"`
}

// Sink receives diagnostics.
type Sink interface {
	Report(Diagnostic)
}

// Busy reports a mutation skipped because a peripheral stayed locked.
func Busy(peripheral string, err error) Diagnostic {
	return Diagnostic{
		Time:     time.Now(),
		Severity: Warn,
		Code:     CodeBusy,
		Summary:  peripheral + " busy, update skipped",
		Detail:   err.Error(),
		LikelyCauses: []string{
			"a background task held the peripheral longer than the lock timeout",
		},
		SuggestedFixes: []string{"raise locks.bus_timeout", "retry the request"},
		Evidence:       map[string]any{"peripheral": peripheral},
	}
}

// InitFailed reports a device that could not be brought up at start.
func InitFailed(component string, err error) Diagnostic {
	return Diagnostic{
		Time:     time.Now(),
		Severity: Err,
		Code:     CodeInitFailed,
		Summary:  component + " unavailable",
		Detail:   err.Error(),
		LikelyCauses: []string{
			"device not wired or wrong bus/pin in config",
			"kernel interface (spidev, i2c-dev) not enabled",
		},
		Evidence: map[string]any{"component": component},
	}
}

// NotReady reports a request for a device that failed to initialize.
func NotReady(component string) Diagnostic {
	return Diagnostic{
		Time:     time.Now(),
		Severity: Warn,
		Code:     CodeNotReady,
		Summary:  component + " not initialized, request ignored",
		Evidence: map[string]any{"component": component},
	}
}

// WriteFailed reports a device write that returned an error.
func WriteFailed(component string, err error) Diagnostic {
	return Diagnostic{
		Time:     time.Now(),
		Severity: Err,
		Code:     CodeWriteFail,
		Summary:  component + " write failed",
		Detail:   err.Error(),
		Evidence: map[string]any{"component": component},
	}
}

// Logger logs every diagnostic and passes it on to Next, if set.
type Logger struct {
	Log  zerolog.Logger
	Next Sink
}

func (l Logger) Report(d Diagnostic) {
	var ev *zerolog.Event
	switch d.Severity {
	case Err:
		ev = l.Log.Error()
	case Warn:
		ev = l.Log.Warn()
	default:
		ev = l.Log.Info()
	}
	ev.Str("code", d.Code).Str("detail", d.Detail).Msg(d.Summary)
	if l.Next != nil {
		l.Next.Report(d)
	}
}

// Recorder keeps every diagnostic it receives.
type Recorder struct {
	mu   sync.Mutex
	list []Diagnostic
}

func (r *Recorder) Report(d Diagnostic) {
	r.mu.Lock()
	r.list = append(r.list, d)
	r.mu.Unlock()
}

// All returns the diagnostics received so far.
func (r *Recorder) All() []Diagnostic {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Diagnostic(nil), r.list...)
}

// Codes returns the code of each diagnostic received so far.
func (r *Recorder) Codes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.list))
	for i, d := range r.list {
		out[i] = d.Code
	}
	return out
}

package anticheat

import (
	"fmt"
	"sync"
	"time"
)

// Violation kinds
const (
	ViolationDevTools = "devtools"
	ViolationDebugger = "debugger"
)

const (
	defaultSizeThreshold  = 160
	defaultPauseThreshold = 100 * time.Millisecond
)

// Violation describes a detected cheating signal
type Violation struct {
	Kind   string
	Detail string
}

func (v Violation) String() string {
	if v.Detail == "" {
		return v.Kind
	}
	return v.Kind + ": " + v.Detail
}

// Sample is one poll of window geometry and debugger timing sent by the client
type Sample struct {
	OuterWidth      int   `json:"outerWidth"`
	InnerWidth      int   `json:"innerWidth"`
	OuterHeight     int   `json:"outerHeight"`
	InnerHeight     int   `json:"innerHeight"`
	DebuggerPauseMs int64 `json:"debuggerPauseMs"`
}

// DevToolsDetector flags docked developer tools (a large gap between outer and inner
// window size) and debugger pauses. The violation callback fires at most once.
type DevToolsDetector struct {
	SizeThreshold  int
	PauseThreshold time.Duration

	onViolation func(Violation)
	once        sync.Once
}

// NewDevToolsDetector creates a detector with default thresholds
func NewDevToolsDetector(onViolation func(Violation)) *DevToolsDetector {
	return &DevToolsDetector{
		SizeThreshold:  defaultSizeThreshold,
		PauseThreshold: defaultPauseThreshold,
		onViolation:    onViolation,
	}
}

// Check evaluates s without invoking the callback
func (d *DevToolsDetector) Check(s Sample) (Violation, bool) {
	widthGap := s.OuterWidth - s.InnerWidth
	heightGap := s.OuterHeight - s.InnerHeight
	if widthGap > d.SizeThreshold || heightGap > d.SizeThreshold {
		return Violation{
			Kind:   ViolationDevTools,
			Detail: fmt.Sprintf("window gap %dx%d", widthGap, heightGap),
		}, true
	}
	if pause := time.Duration(s.DebuggerPauseMs) * time.Millisecond; pause > d.PauseThreshold {
		return Violation{
			Kind:   ViolationDebugger,
			Detail: fmt.Sprintf("execution paused %s", pause),
		}, true
	}
	return Violation{}, false
}

// Observe checks s and invokes the violation callback on the first detection
func (d *DevToolsDetector) Observe(s Sample) bool {
	v, found := d.Check(s)
	if !found {
		return false
	}
	d.once.Do(func() {
		if d.onViolation != nil {
			d.onViolation(v)
		}
	})
	return true
}

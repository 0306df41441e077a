package anticheat

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDevToolsDetector_Check(t *testing.T) {
	d := NewDevToolsDetector(nil)

	_, found := d.Check(Sample{OuterWidth: 1440, InnerWidth: 1440, OuterHeight: 900, InnerHeight: 820})
	assert.False(t, found)

	v, found := d.Check(Sample{OuterWidth: 1440, InnerWidth: 1000, OuterHeight: 900, InnerHeight: 820})
	assert.True(t, found)
	assert.Equal(t, ViolationDevTools, v.Kind)

	v, found = d.Check(Sample{OuterHeight: 900, InnerHeight: 500})
	assert.True(t, found)
	assert.Equal(t, ViolationDevTools, v.Kind)

	v, found = d.Check(Sample{DebuggerPauseMs: 250})
	assert.True(t, found)
	assert.Equal(t, ViolationDebugger, v.Kind)

	_, found = d.Check(Sample{DebuggerPauseMs: 100})
	assert.False(t, found)
}

func TestDevToolsDetector_CallbackFiresOnce(t *testing.T) {
	var got []Violation
	d := NewDevToolsDetector(func(v Violation) { got = append(got, v) })

	assert.False(t, d.Observe(Sample{}))
	assert.True(t, d.Observe(Sample{DebuggerPauseMs: 500}))
	assert.True(t, d.Observe(Sample{OuterWidth: 2000, InnerWidth: 1000}))

	if assert.Len(t, got, 1) {
		assert.Equal(t, ViolationDebugger, got[0].Kind)
		assert.Contains(t, got[0].String(), "debugger: ")
	}
}

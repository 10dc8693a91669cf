package bridge

import (
	"bytes"
	"fmt"
	"os/exec"
)

// Collapser is the best-effort side channel that visually collapses a
// scene group on the console. The orchestrator swallows every failure it
// returns.
type Collapser interface {
	Collapse(uniqueID string) error
}

// CollapseFunc adapts a function to the Collapser interface.
type CollapseFunc func(uniqueID string) error

func (f CollapseFunc) Collapse(uniqueID string) error {
	return f(uniqueID)
}

const qlabBundleID = "com.figure53.QLab.5"

// ScriptCollapser collapses a group through the console's scripting
// dictionary via osascript. Only useful on the machine running the
// console.
type ScriptCollapser struct{}

func (ScriptCollapser) Collapse(uniqueID string) error {
	script := fmt.Sprintf(
		`tell application id %q to tell front workspace to collapse (first cue whose uniqueID is %q)`,
		qlabBundleID, uniqueID)

	out, err := exec.Command("osascript", "-e", script).CombinedOutput()
	if err != nil {
		return fmt.Errorf("osascript: %v: %s", err, bytes.TrimSpace(out))
	}
	return nil
}

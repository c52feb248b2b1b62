// Package mocks holds fakes of the system collaborators so the pipeline can be
// exercised without root, kernel modules or nbd devices.
package mocks

import (
	"fmt"
	"strings"
)

// FakeResult is the scripted outcome of a command
type FakeResult struct {
	Output []byte
	Err    error
}

// FakeRunner records every command and answers with scripted results keyed by
// the command name. Commands without a script succeed with empty output.
type FakeRunner struct {
	Results map[string]FakeResult
	cmds    [][]string
}

func NewFakeRunner() *FakeRunner {
	return &FakeRunner{Results: map[string]FakeResult{}}
}

func (r *FakeRunner) Run(command string, args ...string) ([]byte, error) {
	r.cmds = append(r.cmds, append([]string{command}, args...))
	if res, ok := r.Results[command]; ok {
		return res.Output, res.Err
	}
	return []byte{}, nil
}

// SetResult scripts the answer for a command
func (r *FakeRunner) SetResult(command string, output string, err error) {
	r.Results[command] = FakeResult{Output: []byte(output), Err: err}
}

// SetFailure scripts a command exiting with a nonzero status
func (r *FakeRunner) SetFailure(command string, output string) {
	r.SetResult(command, output, fmt.Errorf("exit status 1"))
}

// Commands returns the recorded commands as full command lines
func (r *FakeRunner) Commands() []string {
	out := make([]string, 0, len(r.cmds))
	for _, c := range r.cmds {
		out = append(out, strings.Join(c, " "))
	}
	return out
}

// CmdsMatch checks the recorded commands start with the given command lines, in order
func (r *FakeRunner) CmdsMatch(expected [][]string) error {
	if len(expected) > len(r.cmds) {
		return fmt.Errorf("expected %d commands, got %d: %v", len(expected), len(r.cmds), r.Commands())
	}
	for i, exp := range expected {
		got := r.cmds[i]
		if strings.Join(got, " ") != strings.Join(exp, " ") {
			return fmt.Errorf("command %d: expected %q, got %q", i, strings.Join(exp, " "), strings.Join(got, " "))
		}
	}
	return nil
}

// Called reports whether the command was run at all
func (r *FakeRunner) Called(command string) bool {
	for _, c := range r.cmds {
		if c[0] == command {
			return true
		}
	}
	return false
}

// ClearCmds forgets the recorded commands
func (r *FakeRunner) ClearCmds() {
	r.cmds = nil
}

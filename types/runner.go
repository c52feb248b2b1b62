package types

import (
	"os/exec"
	"strings"
)

// Runner executes external commands and returns their combined output
type Runner interface {
	Run(command string, args ...string) ([]byte, error)
}

// RealRunner shells out using os/exec
type RealRunner struct {
	Logger *Logger
}

func (r RealRunner) Run(command string, args ...string) ([]byte, error) {
	if r.Logger != nil {
		r.Logger.Logger.Debug().Str("cmd", command).Str("args", strings.Join(args, " ")).Msg("Running command")
	}
	out, err := exec.Command(command, args...).CombinedOutput()
	if err != nil && r.Logger != nil {
		r.Logger.Logger.Trace().Str("cmd", command).Bytes("output", out).Err(err).Msg("Command failed")
	}
	return out, err
}

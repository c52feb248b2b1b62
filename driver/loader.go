// Package driver loads the nbd kernel module.
package driver

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"

	"github.com/kairos-io/qcowmount/constants"
	"github.com/kairos-io/qcowmount/types"
)

// ModuleLoader makes sure the nbd driver is available
type ModuleLoader interface {
	EnsureLoaded(maxPartitions int) error
}

// Modprobe loads the module with modprobe and confirms it with lsmod
type Modprobe struct {
	Module string
	runner types.Runner
	logger types.Logger
}

func NewModprobe(runner types.Runner, logger types.Logger) *Modprobe {
	return &Modprobe{Module: constants.NBDModule, runner: runner, logger: logger}
}

// EnsureLoaded is a no-op if the module is already loaded, modprobe returns success in that case.
func (m *Modprobe) EnsureLoaded(maxPartitions int) error {
	param := fmt.Sprintf("max_part=%d", maxPartitions)
	m.logger.Logger.Debug().Str("module", m.Module).Str("param", param).Msg("Loading the NBD driver")

	out, err := m.runner.Run(constants.ModprobeCmd, m.Module, param)
	if err != nil {
		m.logger.Logger.Debug().Str("module", m.Module).Bytes("output", out).Msg("modprobe failed")
		return fmt.Errorf("%w: %v: %s. Perhaps you need to install qemu-utils?",
			types.ErrDriverLoadFailed, err, types.OneLine(out))
	}

	loaded, err := m.IsLoaded()
	if err != nil {
		return err
	}
	if !loaded {
		return fmt.Errorf("%w: try running %s %s manually and see if it works",
			types.ErrDriverNotConfirmed, constants.ModprobeCmd, m.Module)
	}

	m.logger.Logger.Debug().Str("module", m.Module).Msg("NBD driver loaded successfully")
	return nil
}

// IsLoaded looks for the module in the lsmod output
func (m *Modprobe) IsLoaded() (bool, error) {
	out, err := m.runner.Run(constants.LsmodCmd)
	if err != nil {
		return false, fmt.Errorf("%w: listing modules: %v", types.ErrDriverNotConfirmed, err)
	}
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) > 0 && fields[0] == m.Module {
			return true, nil
		}
	}
	return false, nil
}

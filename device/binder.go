package device

import (
	"fmt"

	"github.com/kairos-io/qcowmount/constants"
	"github.com/kairos-io/qcowmount/types"
)

// Binder connects an image to an nbd slot with qemu-nbd
type Binder struct {
	runner    types.Runner
	logger    types.Logger
	extraArgs []string
}

func NewBinder(runner types.Runner, logger types.Logger, extraArgs ...string) *Binder {
	return &Binder{runner: runner, logger: logger, extraArgs: extraArgs}
}

func (b *Binder) Bind(slot types.DeviceSlot, img types.ImageFile) (types.BoundDevice, error) {
	args := []string{fmt.Sprintf("--connect=%s", slot.Path)}
	if img.Format != "" {
		args = append(args, fmt.Sprintf("--format=%s", img.Format))
	}
	args = append(args, b.extraArgs...)
	args = append(args, img.Path)

	out, err := b.runner.Run(constants.QemuNBDCmd, args...)
	if err != nil {
		b.logger.Logger.Debug().Str("device", slot.Path).Bytes("output", out).Msg("qemu-nbd failed")
		return types.BoundDevice{}, fmt.Errorf("%w: %s to %s: %v: %s",
			types.ErrConnectFailed, slot.Path, img.Path, err, types.OneLine(out))
	}

	b.logger.Logger.Debug().Str("device", slot.Path).Str("image", img.Path).Msg("Successfully connected")
	return types.BoundDevice{Slot: slot, Image: img}, nil
}

// DisconnectCommand is the command an operator runs to release the slot
func DisconnectCommand(bound types.BoundDevice) string {
	return fmt.Sprintf("%s -d %s", constants.QemuNBDCmd, bound.Path())
}

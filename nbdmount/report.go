package nbdmount

import (
	"fmt"
	"io"

	"github.com/kairos-io/qcowmount/constants"
	"github.com/kairos-io/qcowmount/device"
	"github.com/kairos-io/qcowmount/mount"
	"github.com/kairos-io/qcowmount/types"
	"github.com/pterm/pterm"
)

// TeardownCommands returns, in order, what an operator runs to undo a session.
// The last one is optional.
func TeardownCommands(s types.Session) []string {
	return []string{
		fmt.Sprintf("sudo %s && sudo %s", mount.UnmountCommand(s.Target), device.DisconnectCommand(s.Device)),
		fmt.Sprintf("sudo rmmod %s", constants.NBDModule),
	}
}

// Report prints the result of a successful run and how to undo it. Nothing is executed.
func Report(w io.Writer, s types.Session, logger types.Logger) {
	pterm.Success.WithWriter(w).Printfln("%s successfully mounted at %s", s.Image.Path, s.Target.Dir)
	pterm.Info.WithWriter(w).Printfln("%s is connected to %s", s.Partition, s.Device.Path())

	cmds := TeardownCommands(s)
	fmt.Fprintln(w, "\nWhen you're finished, run the following to unmount and disconnect the drives:")
	fmt.Fprintf(w, "\n\t%s\n", cmds[0])
	fmt.Fprintf(w, "\n\tOptionally, use %s to unload the NBD driver from memory\n", cmds[1])

	logger.Logger.Debug().
		Str("image", s.Image.Path).
		Str("device", s.Device.Path()).
		Str("mountpoint", s.Target.Dir).
		Strs("teardown", cmds).
		Msg("Mount complete")
}

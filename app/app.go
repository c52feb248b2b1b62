// Package app builds the qcowmount command line.
package app

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/kairos-io/qcowmount/config"
	"github.com/kairos-io/qcowmount/constants"
	"github.com/kairos-io/qcowmount/nbdmount"
	"github.com/kairos-io/qcowmount/types"
	"github.com/urfave/cli/v2"
)

var (
	configFlag *cli.StringFlag = &cli.StringFlag{
		Name:    "config",
		Value:   constants.ConfigFile,
		Usage:   "optional YAML file with defaults",
		EnvVars: []string{constants.EnvPrefix + "_CONFIG"},
	}

	maxPartitionsFlag *cli.IntFlag = &cli.IntFlag{
		Name:    "max-partitions",
		Value:   constants.DefaultMaxPartitions,
		Usage:   "max_part value passed to the nbd driver",
		EnvVars: []string{constants.EnvPrefix + "_MAX_PARTITIONS"},
	}

	poolSizeFlag *cli.IntFlag = &cli.IntFlag{
		Name:    "pool-size",
		Value:   constants.DefaultPoolSize,
		Usage:   "number of /dev/nbdX devices to scan for a free one",
		EnvVars: []string{constants.EnvPrefix + "_POOL_SIZE"},
	}

	partitionSuffixFlag *cli.StringFlag = &cli.StringFlag{
		Name:    "partition-suffix",
		Value:   constants.DefaultPartitionSuffix,
		Usage:   "suffix of the partition device to mount",
		EnvVars: []string{constants.EnvPrefix + "_PARTITION_SUFFIX"},
	}
)

func init() {
	// -v is taken by verbose
	cli.VersionFlag = &cli.BoolFlag{
		Name:  "version",
		Usage: "print the version",
	}
	cli.VersionPrinter = func(cCtx *cli.Context) {
		fmt.Fprintf(cCtx.App.Writer, "%s version %s\n", cCtx.App.Name, cCtx.App.Version)
	}
}

// App holds what the command needs from the outside so tests can replace it
type App struct {
	Version       string
	Out           io.Writer
	Err           io.Writer
	Privileged    func() bool
	ConfigOptions []config.GenericOptions
	Options       []nbdmount.Option

	verbosity int
}

func New(version string) *App {
	return &App{
		Version:    version,
		Out:        os.Stdout,
		Err:        os.Stderr,
		Privileged: nbdmount.IsRoot,
	}
}

func (a *App) CLI() *cli.App {
	a.verbosity = 0
	return &cli.App{
		Name:                   constants.AppName,
		Usage:                  "mounts a QEMU NBD-compatible disk image to a given location",
		UsageText:              fmt.Sprintf("%s [options] <image file> [mount point]", constants.AppName),
		Description:            "Currently only QCOW2 images are accepted. Root privileges are required.",
		Version:                a.Version,
		Writer:                 a.Out,
		ErrWriter:              a.Err,
		UseShortOptionHandling: true,
		HideHelpCommand:        true,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "print more detailed progress messages, repeat for more",
				Count:   &a.verbosity,
			},
			configFlag, maxPartitionsFlag, poolSizeFlag, partitionSuffixFlag,
		},
		Action: a.action,
	}
}

// Run parses args and runs the pipeline, returning the process exit code.
// Privileges are checked before anything is parsed, only help and version run without them.
func (a *App) Run(args []string) int {
	if len(args) > 1 && !wantsInfo(args[1:]) && !a.Privileged() {
		fmt.Fprintf(a.Err, "%s: %s\n", constants.AppName, &types.StageError{Stage: types.StagePrivilege, Err: types.ErrNotPrivileged})
		return 1
	}
	if err := a.CLI().Run(reorderArgs(args)); err != nil {
		fmt.Fprintf(a.Err, "%s: %s\n", constants.AppName, err)
		return 1
	}
	return 0
}

func (a *App) action(cCtx *cli.Context) error {
	if !a.Privileged() {
		return &types.StageError{Stage: types.StagePrivilege, Err: types.ErrNotPrivileged}
	}

	cfg := config.NewConfig(append([]config.GenericOptions{config.WithVerbosity(a.verbosity)}, a.ConfigOptions...)...)
	if err := cfg.Load(cCtx.String(configFlag.Name)); err != nil {
		return err
	}
	if cCtx.IsSet(maxPartitionsFlag.Name) {
		cfg.MaxPartitions = cCtx.Int(maxPartitionsFlag.Name)
	}
	if cCtx.IsSet(poolSizeFlag.Name) {
		cfg.PoolSize = cCtx.Int(poolSizeFlag.Name)
	}
	if cCtx.IsSet(partitionSuffixFlag.Name) {
		cfg.PartitionSuffix = cCtx.String(partitionSuffixFlag.Name)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if cCtx.NArg() < 1 || cCtx.NArg() > 2 {
		_ = cli.ShowAppHelp(cCtx)
		return fmt.Errorf("expected an image file and an optional mount point, got %d arguments", cCtx.NArg())
	}
	imageFile := cCtx.Args().Get(0)
	mountPoint := cfg.MountPoint
	if cCtx.NArg() == 2 {
		mountPoint = cCtx.Args().Get(1)
	}

	cfg.Logger.Logger.Debug().Int("verbosity", a.verbosity).Msg("Basic startup complete, giving verbose output")
	cfg.Logger.Logger.Debug().Str("mountpoint", mountPoint).Msg("Destination mount point")

	o, err := nbdmount.New(cfg, append([]nbdmount.Option{nbdmount.WithPrivilegeCheck(a.Privileged)}, a.Options...)...)
	if err != nil {
		return err
	}
	session, err := o.Run(imageFile, mountPoint)
	if err != nil {
		return err
	}
	nbdmount.Report(a.Out, session, cfg.Logger)
	return nil
}

func wantsInfo(args []string) bool {
	for _, arg := range args {
		switch arg {
		case "--":
			return false
		case "-h", "-help", "--help", "-version", "--version":
			return true
		}
	}
	return false
}

// reorderArgs moves flags ahead of the positional arguments, the flag parser stops at the first positional.
// Anything after a "--" is kept as positional.
func reorderArgs(args []string) []string {
	if len(args) < 2 {
		return args
	}
	valueFlags := map[string]bool{}
	for _, f := range []cli.Flag{configFlag, maxPartitionsFlag, poolSizeFlag, partitionSuffixFlag} {
		for _, name := range f.Names() {
			valueFlags[name] = true
		}
	}

	flags := []string{}
	positional := []string{}
	rest := args[1:]
	for i := 0; i < len(rest); i++ {
		arg := rest[i]
		if arg == "--" {
			positional = append(positional, rest[i+1:]...)
			break
		}
		if len(arg) < 2 || !strings.HasPrefix(arg, "-") {
			positional = append(positional, arg)
			continue
		}
		flags = append(flags, arg)
		name := strings.TrimLeft(arg, "-")
		if valueFlags[name] && i+1 < len(rest) {
			i++
			flags = append(flags, rest[i])
		}
	}

	out := append([]string{args[0]}, flags...)
	if len(positional) > 0 {
		out = append(out, "--")
		out = append(out, positional...)
	}
	return out
}

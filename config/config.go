package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/google/shlex"
	"github.com/hashicorp/go-multierror"
	"github.com/kairos-io/qcowmount/constants"
	"github.com/kairos-io/qcowmount/types"
	"github.com/twpayne/go-vfs/v4"
	"gopkg.in/yaml.v3"
	mountUtils "k8s.io/mount-utils"
)

// Config holds the tunables of a run plus the collaborators the components use.
// Only the tunables are read from the config file.
type Config struct {
	MountPoint      string        `yaml:"mount_point,omitempty"`
	MaxPartitions   int           `yaml:"max_partitions,omitempty"`
	PoolSize        int           `yaml:"pool_size,omitempty"`
	PartitionSuffix string        `yaml:"partition_suffix,omitempty"`
	SettleTimeout   time.Duration `yaml:"settle_timeout,omitempty"`
	SettleInterval  time.Duration `yaml:"settle_interval,omitempty"`
	LockFile        *string       `yaml:"lock_file,omitempty"`
	SizeSource      string        `yaml:"size_source,omitempty"`
	ConnectArgs     string        `yaml:"connect_args,omitempty"`
	MountOptions    string        `yaml:"mount_options,omitempty"`
	Verbosity       int           `yaml:"-"`

	Logger  types.Logger         `yaml:"-"`
	Fs      types.FS             `yaml:"-"`
	Runner  types.Runner         `yaml:"-"`
	Mounter mountUtils.Interface `yaml:"-"`

	loggerSet bool
}

// GenericOptions is a modifier applied when building a Config
type GenericOptions func(a *Config)

func WithFs(f types.FS) GenericOptions {
	return func(c *Config) {
		c.Fs = f
	}
}

func WithLogger(l types.Logger) GenericOptions {
	return func(c *Config) {
		c.Logger = l
		c.loggerSet = true
	}
}

// WithVerbosity sets the -v count, which picks the level of the default logger
func WithVerbosity(v int) GenericOptions {
	return func(c *Config) {
		c.Verbosity = v
	}
}

func WithRunner(r types.Runner) GenericOptions {
	return func(c *Config) {
		c.Runner = r
	}
}

func WithMounter(m mountUtils.Interface) GenericOptions {
	return func(c *Config) {
		c.Mounter = m
	}
}

// NewConfig returns a Config with defaults and the real system collaborators,
// unless overridden by the given options.
func NewConfig(opts ...GenericOptions) *Config {
	lock := constants.DefaultLockFile
	c := &Config{
		MountPoint:      constants.DefaultMountPoint,
		MaxPartitions:   constants.DefaultMaxPartitions,
		PoolSize:        constants.DefaultPoolSize,
		PartitionSuffix: constants.DefaultPartitionSuffix,
		SettleTimeout:   constants.DefaultSettleTimeout,
		SettleInterval:  constants.DefaultSettleInterval,
		LockFile:        &lock,
		SizeSource:      constants.SizeSourceSysfs,
	}
	for _, o := range opts {
		o(c)
	}

	if !c.loggerSet {
		c.Logger = types.NewLogger(constants.AppName, types.VerbosityLevel(c.Verbosity), false)
	}
	if c.Fs == nil {
		c.Fs = vfs.OSFS
	}
	if c.Runner == nil {
		c.Runner = types.RealRunner{Logger: &c.Logger}
	}
	if c.Mounter == nil {
		c.Mounter = mountUtils.New("")
	}
	return c
}

// Load merges the YAML file at path into the config. A missing file is not an error.
func (c *Config) Load(path string) error {
	if path == "" {
		return nil
	}
	data, err := c.Fs.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		c.Logger.Logger.Debug().Str("file", path).Msg("No config file found, using defaults")
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	c.Logger.Logger.Debug().Str("file", path).Msg("Loaded config file")
	return nil
}

// Lock returns the advisory lock file, empty when locking is disabled
func (c Config) Lock() string {
	if c.LockFile == nil {
		return ""
	}
	return *c.LockFile
}

// SplitConnectArgs returns the extra qemu-nbd arguments
func (c Config) SplitConnectArgs() ([]string, error) {
	return shlex.Split(c.ConnectArgs)
}

// SplitMountOptions returns the mount options, accepting both "ro,noatime" and "ro noatime"
func (c Config) SplitMountOptions() ([]string, error) {
	var opts []string
	fields, err := shlex.Split(c.MountOptions)
	if err != nil {
		return nil, err
	}
	for _, f := range fields {
		for _, o := range strings.Split(f, ",") {
			if o != "" {
				opts = append(opts, o)
			}
		}
	}
	return opts, nil
}

// Validate checks every tunable and reports all problems at once
func (c Config) Validate() error {
	var result *multierror.Error

	if c.MountPoint == "" {
		result = multierror.Append(result, errors.New("mount point cannot be empty"))
	}
	if c.MaxPartitions <= 0 {
		result = multierror.Append(result, fmt.Errorf("max partitions must be positive, got %d", c.MaxPartitions))
	}
	if c.PoolSize <= 0 {
		result = multierror.Append(result, fmt.Errorf("pool size must be positive, got %d", c.PoolSize))
	}
	if c.PartitionSuffix == "" {
		result = multierror.Append(result, errors.New("partition suffix cannot be empty"))
	}
	if c.SettleTimeout <= 0 {
		result = multierror.Append(result, fmt.Errorf("settle timeout must be positive, got %s", c.SettleTimeout))
	}
	if c.SettleInterval <= 0 {
		result = multierror.Append(result, fmt.Errorf("settle interval must be positive, got %s", c.SettleInterval))
	}
	if c.SizeSource != constants.SizeSourceSysfs && c.SizeSource != constants.SizeSourceIoctl {
		result = multierror.Append(result, fmt.Errorf("size source must be %q or %q, got %q",
			constants.SizeSourceSysfs, constants.SizeSourceIoctl, c.SizeSource))
	}
	if _, err := c.SplitConnectArgs(); err != nil {
		result = multierror.Append(result, fmt.Errorf("connect args: %w", err))
	}
	if _, err := c.SplitMountOptions(); err != nil {
		result = multierror.Append(result, fmt.Errorf("mount options: %w", err))
	}

	if result != nil {
		result.ErrorFormat = func(errs []error) string {
			msgs := make([]string, 0, len(errs))
			for _, e := range errs {
				msgs = append(msgs, e.Error())
			}
			return strings.Join(msgs, "; ")
		}
	}
	return result.ErrorOrNil()
}

// Package mount prepares the mount point and mounts the partition of a bound nbd device.
package mount

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/avast/retry-go"
	"github.com/kairos-io/qcowmount/constants"
	"github.com/kairos-io/qcowmount/types"
	mountUtils "k8s.io/mount-utils"
)

type Manager struct {
	fs       types.FS
	mounter  mountUtils.Interface
	logger   types.Logger
	options  []string
	timeout  time.Duration
	interval time.Duration
}

type Option func(m *Manager)

// WithOptions sets the options passed to mount, e.g. ro
func WithOptions(opts ...string) Option {
	return func(m *Manager) {
		m.options = opts
	}
}

// WithSettle bounds how long to wait for the partition node to show up
func WithSettle(timeout, interval time.Duration) Option {
	return func(m *Manager) {
		m.timeout = timeout
		m.interval = interval
	}
}

func NewManager(f types.FS, mounter mountUtils.Interface, logger types.Logger, opts ...Option) *Manager {
	m := &Manager{
		fs:       f,
		mounter:  mounter,
		logger:   logger,
		timeout:  constants.DefaultSettleTimeout,
		interval: constants.DefaultSettleInterval,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// MountPartition mounts bound+suffix on mountDir. It never remounts over an existing mount.
func (m *Manager) MountPartition(bound types.BoundDevice, mountDir, suffix string) (types.MountTarget, error) {
	dir, err := filepath.Abs(mountDir)
	if err != nil {
		return types.MountTarget{Dir: mountDir}, fmt.Errorf("%w: %s: %v", types.ErrDirectoryCreateFailed, mountDir, err)
	}
	target := types.MountTarget{Dir: dir}
	partition := bound.PartitionPath(suffix)
	m.logger.Logger.Debug().Str("partition", partition).Str("mountpoint", dir).Msg("Trying to mount")

	if err := m.ensureDir(dir); err != nil {
		return target, err
	}

	source, mounted, err := m.MountedSource(dir)
	if err != nil {
		return target, fmt.Errorf("%w: checking mount table: %v", types.ErrMountFailed, err)
	}
	if mounted {
		target.AlreadyMounted = true
		target.Source = source
		return target, &types.AlreadyMountedError{Dir: dir, Source: source}
	}

	if err := m.WaitForPartition(partition); err != nil {
		return target, err
	}

	if err := m.mounter.Mount(partition, dir, "", m.options); err != nil {
		return target, fmt.Errorf("%w: %s at %s: %v", types.ErrMountFailed, partition, dir, err)
	}

	target.Source = partition
	m.logger.Logger.Debug().Str("partition", partition).Str("mountpoint", dir).Msg("Successfully mounted")
	return target, nil
}

// ensureDir creates the mount point if needed, only the last path element is created
func (m *Manager) ensureDir(dir string) error {
	info, err := m.fs.Stat(dir)
	if err == nil {
		if !info.IsDir() {
			return fmt.Errorf("%w: %s exists and is not a directory", types.ErrDirectoryCreateFailed, dir)
		}
		return nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s: %v", types.ErrDirectoryCreateFailed, dir, err)
	}

	m.logger.Logger.Warn().Str("mountpoint", dir).Msg("Creating the mount point")
	if err := m.fs.Mkdir(dir, constants.DirPerm); err != nil {
		return fmt.Errorf("%w: %s: %v", types.ErrDirectoryCreateFailed, dir, err)
	}
	return nil
}

// MountedSource looks up dir in the mount table and returns what is mounted there
func (m *Manager) MountedSource(dir string) (string, bool, error) {
	mounts, err := m.mounter.List()
	if err != nil {
		return "", false, err
	}
	dir = filepath.Clean(dir)
	for _, mp := range mounts {
		if filepath.Clean(mp.Path) == dir {
			return mp.Device, true, nil
		}
	}
	return "", false, nil
}

// WaitForPartition polls until the partition node exists, the kernel reads the
// partition table asynchronously after qemu-nbd returns.
func (m *Manager) WaitForPartition(partition string) error {
	attempts := uint(m.timeout / m.interval)
	if attempts < 1 {
		attempts = 1
	}

	err := retry.Do(
		func() error {
			_, err := m.fs.Stat(partition)
			return err
		},
		retry.Attempts(attempts+1),
		retry.Delay(m.interval),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			m.logger.Logger.Trace().Uint("attempt", n).Str("partition", partition).Msg("Partition not visible yet")
		}),
	)
	if err != nil {
		return fmt.Errorf("%w: %s after %s: %v", types.ErrPartitionNotVisible, partition, m.timeout, err)
	}
	return nil
}

// UnmountCommand is the command an operator runs to release the mount point
func UnmountCommand(target types.MountTarget) string {
	return fmt.Sprintf("umount %s", target.Dir)
}

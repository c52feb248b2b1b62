// Package nbdmount runs the attach pipeline: validate the image, load the nbd
// driver, pick a free slot, connect the image to it and mount its first partition.
//
// Every step changes host state the next one depends on, so the first failure
// ends the run. Nothing is rolled back: a device bound before a failed mount
// stays bound and the operator is told how to release it.
package nbdmount

import (
	"errors"

	"github.com/kairos-io/qcowmount/config"
	"github.com/kairos-io/qcowmount/constants"
	"github.com/kairos-io/qcowmount/device"
	"github.com/kairos-io/qcowmount/driver"
	"github.com/kairos-io/qcowmount/image"
	"github.com/kairos-io/qcowmount/mount"
	"github.com/kairos-io/qcowmount/types"
	"golang.org/x/sys/unix"
)

type ImageValidator interface {
	Validate(path string) (types.ImageFile, error)
}

type SlotAllocator interface {
	Allocate(poolSize int) (types.DeviceSlot, error)
}

type DeviceBinder interface {
	Bind(slot types.DeviceSlot, img types.ImageFile) (types.BoundDevice, error)
}

type PartitionMounter interface {
	MountPartition(bound types.BoundDevice, mountDir, suffix string) (types.MountTarget, error)
}

type Orchestrator struct {
	validator  ImageValidator
	loader     driver.ModuleLoader
	allocator  SlotAllocator
	binder     DeviceBinder
	mounter    PartitionMounter
	lock       device.PoolLock
	privileged func() bool

	maxPartitions int
	poolSize      int
	suffix        string
	logger        types.Logger

	state       types.Stage
	failedAt    types.Stage
	transitions []types.Stage
}

type Option func(o *Orchestrator)

func WithValidator(v ImageValidator) Option { return func(o *Orchestrator) { o.validator = v } }
func WithLoader(l driver.ModuleLoader) Option { return func(o *Orchestrator) { o.loader = l } }
func WithAllocator(a SlotAllocator) Option { return func(o *Orchestrator) { o.allocator = a } }
func WithBinder(b DeviceBinder) Option { return func(o *Orchestrator) { o.binder = b } }
func WithMounter(m PartitionMounter) Option { return func(o *Orchestrator) { o.mounter = m } }
func WithPoolLock(l device.PoolLock) Option { return func(o *Orchestrator) { o.lock = l } }

// WithPrivilegeCheck replaces the euid check
func WithPrivilegeCheck(f func() bool) Option {
	return func(o *Orchestrator) { o.privileged = f }
}

// IsRoot reports whether the process runs with an effective uid of 0
func IsRoot() bool {
	return unix.Geteuid() == 0
}

// New wires the production components from the config. Options replace single components.
func New(cfg *config.Config, opts ...Option) (*Orchestrator, error) {
	connectArgs, err := cfg.SplitConnectArgs()
	if err != nil {
		return nil, err
	}
	mountOpts, err := cfg.SplitMountOptions()
	if err != nil {
		return nil, err
	}

	var query device.DeviceQuery
	if cfg.SizeSource == constants.SizeSourceIoctl {
		query = device.NewIoctlQuery(cfg.Logger)
	} else {
		query = device.NewSysfsQuery(cfg.Fs, device.NewPaths(""), cfg.Logger)
	}

	var lock device.PoolLock = device.NoLock{}
	if cfg.Lock() != "" {
		lock = device.NewFileLock(cfg.Lock(), cfg.Logger)
	}

	o := &Orchestrator{
		validator: image.NewValidator(cfg.Fs, cfg.Logger),
		loader:    driver.NewModprobe(cfg.Runner, cfg.Logger),
		allocator: device.NewAllocator(constants.NBDDevicePrefix, query, cfg.Logger),
		binder:    device.NewBinder(cfg.Runner, cfg.Logger, connectArgs...),
		mounter: mount.NewManager(cfg.Fs, cfg.Mounter, cfg.Logger,
			mount.WithOptions(mountOpts...),
			mount.WithSettle(cfg.SettleTimeout, cfg.SettleInterval)),
		lock:          lock,
		privileged:    IsRoot,
		maxPartitions: cfg.MaxPartitions,
		poolSize:      cfg.PoolSize,
		suffix:        cfg.PartitionSuffix,
		logger:        cfg.Logger,
		state:         types.StageIdle,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// State is the current stage, StageFailed once a step failed
func (o *Orchestrator) State() types.Stage {
	return o.state
}

// FailedAt is the stage that failed, empty unless State is StageFailed
func (o *Orchestrator) FailedAt() types.Stage {
	return o.failedAt
}

// Transitions lists every stage entered so far, in order
func (o *Orchestrator) Transitions() []types.Stage {
	return append([]types.Stage(nil), o.transitions...)
}

func (o *Orchestrator) enter(stage types.Stage) {
	o.logger.Logger.Trace().Str("from", string(o.state)).Str("to", string(stage)).Msg("Stage transition")
	o.state = stage
	o.transitions = append(o.transitions, stage)
}

func (o *Orchestrator) fail(err error) error {
	stage := o.state
	o.failedAt = stage
	o.enter(types.StageFailed)
	o.logger.Logger.Debug().Err(err).Str("stage", string(stage)).Str("kind", types.Category(err)).Msg("Stage failed")
	return &types.StageError{Stage: stage, Err: err}
}

// CheckPrivileges refuses to go on without root, before anything else touches the host
func (o *Orchestrator) CheckPrivileges() error {
	if o.state != types.StagePrivilege {
		o.enter(types.StagePrivilege)
	}
	if !o.privileged() {
		return o.fail(types.ErrNotPrivileged)
	}
	return nil
}

// Run executes the whole pipeline. The returned error is a *types.StageError.
func (o *Orchestrator) Run(imagePath, mountDir string) (types.Session, error) {
	var session types.Session

	if o.state == types.StageFailed {
		return session, &types.StageError{Stage: o.failedAt, Err: errors.New("pipeline already failed")}
	}
	if err := o.CheckPrivileges(); err != nil {
		return session, err
	}

	o.enter(types.StageValidating)
	img, err := o.validator.Validate(imagePath)
	if err != nil {
		return session, o.fail(err)
	}
	session.Image = img
	o.logger.Logger.Debug().Msg("Image file looks OK")

	o.enter(types.StageDriverLoading)
	if err := o.loader.EnsureLoaded(o.maxPartitions); err != nil {
		return session, o.fail(err)
	}

	o.enter(types.StageAllocating)
	if err := o.lock.Lock(); err != nil {
		return session, o.fail(err)
	}
	slot, err := o.allocator.Allocate(o.poolSize)
	if err != nil {
		o.unlock()
		return session, o.fail(err)
	}

	o.enter(types.StageBinding)
	bound, err := o.binder.Bind(slot, img)
	o.unlock()
	if err != nil {
		return session, o.fail(err)
	}
	session.Device = bound

	o.enter(types.StageMounting)
	target, err := o.mounter.MountPartition(bound, mountDir, o.suffix)
	session.Target = target
	if err != nil {
		o.logger.Logger.Warn().Str("device", bound.Path()).Msg("Device stays connected, disconnect it manually")
		return session, o.fail(err)
	}
	session.Partition = bound.PartitionPath(o.suffix)

	o.enter(types.StageDone)
	return session, nil
}

func (o *Orchestrator) unlock() {
	if err := o.lock.Unlock(); err != nil {
		o.logger.Logger.Warn().Err(err).Msg("Failed to release the pool lock")
	}
}

package types

import (
	"bytes"
	"fmt"
)

// Format is an image format recognized by its leading magic bytes
type Format struct {
	Name  string
	Magic [4]byte
}

// KnownFormats lists the formats accepted by the validator
var KnownFormats = []Format{
	{Name: "qcow2", Magic: [4]byte{'Q', 'F', 'I', 0xfb}},
}

// LookupFormat returns the format whose magic matches the given header
func LookupFormat(header []byte) (Format, bool) {
	for _, f := range KnownFormats {
		if bytes.Equal(header, f.Magic[:]) {
			return f, true
		}
	}
	return Format{}, false
}

// ImageFile is a validated disk image
type ImageFile struct {
	Path      string
	Signature [4]byte
	Format    string
}

// DeviceSlot is one nbd device of the pool, unbound when SizeBytes is zero
type DeviceSlot struct {
	Index     int
	Path      string
	SizeBytes uint64
}

func (s DeviceSlot) Free() bool {
	return s.SizeBytes == 0
}

// NewDeviceSlot builds the slot for the given index under prefix, e.g. /dev/nbd3
func NewDeviceSlot(prefix string, index int) DeviceSlot {
	return DeviceSlot{Index: index, Path: fmt.Sprintf("%s%d", prefix, index)}
}

// Name is the kernel name of the slot, e.g. nbd3
func (s DeviceSlot) Name() string {
	return fmt.Sprintf("nbd%d", s.Index)
}

// BoundDevice is a slot connected to an image
type BoundDevice struct {
	Slot  DeviceSlot
	Image ImageFile
}

func (b BoundDevice) Path() string {
	return b.Slot.Path
}

func (b BoundDevice) PartitionPath(suffix string) string {
	return b.Slot.Path + suffix
}

// MountTarget describes the directory the partition is mounted on
type MountTarget struct {
	Dir            string
	AlreadyMounted bool
	Source         string
}

// Session is what a successful run produced
type Session struct {
	Image     ImageFile
	Device    BoundDevice
	Target    MountTarget
	Partition string
}

// Stage names each step of the mount pipeline
type Stage string

const (
	StageIdle          Stage = "idle"
	StagePrivilege     Stage = "privilege-check"
	StageValidating    Stage = "validating"
	StageDriverLoading Stage = "driver-loading"
	StageAllocating    Stage = "allocating"
	StageBinding       Stage = "binding"
	StageMounting      Stage = "mounting"
	StageDone          Stage = "done"
	StageFailed        Stage = "failed"
)

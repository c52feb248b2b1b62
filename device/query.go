package device

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unsafe"

	"github.com/kairos-io/qcowmount/types"
	"golang.org/x/sys/unix"
)

const (
	sectorSize = 512

	BLKGETSIZE64 = 0x80081272 // ioctl request for block device size
)

// DeviceQuery reports the size of an nbd slot. exists is false when the slot has no device.
type DeviceQuery interface {
	Size(slot types.DeviceSlot) (size uint64, exists bool, err error)
}

type Paths struct {
	SysBlock string
}

// NewPaths returns the sysfs locations, optionally under a prefix.
// $QCOWMOUNT_CHROOT has precedence over the prefix.
func NewPaths(withOptionalPrefix string) *Paths {
	p := &Paths{SysBlock: "/sys/block/"}

	if val, exists := os.LookupEnv("QCOWMOUNT_CHROOT"); exists {
		withOptionalPrefix = val
	}
	if withOptionalPrefix != "" {
		withOptionalPrefix = strings.TrimSuffix(withOptionalPrefix, "/")
		p.SysBlock = fmt.Sprintf("%s%s", withOptionalPrefix, p.SysBlock)
	}
	return p
}

// SysfsQuery reads /sys/block/nbdX/size, which is expressed in 512-byte sectors
type SysfsQuery struct {
	fs     types.FS
	paths  *Paths
	logger types.Logger
}

func NewSysfsQuery(f types.FS, paths *Paths, logger types.Logger) *SysfsQuery {
	return &SysfsQuery{fs: f, paths: paths, logger: logger}
}

func (q *SysfsQuery) Size(slot types.DeviceSlot) (uint64, bool, error) {
	path := filepath.Join(q.paths.SysBlock, slot.Name(), "size")
	q.logger.Logger.Trace().Str("path", path).Msg("Reading device size")
	contents, err := q.fs.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, false, nil
	}
	if err != nil {
		return 0, true, fmt.Errorf("reading %s: %w", path, err)
	}
	size, err := strconv.ParseUint(strings.TrimSpace(string(contents)), 10, 64)
	if err != nil {
		return 0, true, fmt.Errorf("parsing size %q from %s: %w", string(contents), path, err)
	}
	return size * sectorSize, true, nil
}

// IoctlQuery asks the block layer directly, like blockdev --getsize64
type IoctlQuery struct {
	logger types.Logger
}

func NewIoctlQuery(logger types.Logger) *IoctlQuery {
	return &IoctlQuery{logger: logger}
}

func (q *IoctlQuery) Size(slot types.DeviceSlot) (uint64, bool, error) {
	f, err := os.Open(slot.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, false, nil
	}
	if err != nil {
		return 0, true, fmt.Errorf("opening %s: %w", slot.Path, err)
	}
	defer f.Close()

	size, err := ioctlGetUint64(f.Fd(), BLKGETSIZE64)
	if err != nil {
		return 0, true, fmt.Errorf("BLKGETSIZE64 on %s: %w", slot.Path, err)
	}
	return size, true, nil
}

func ioctlGetUint64(fd uintptr, req uint) (uint64, error) {
	var size uint64
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, uintptr(req), uintptr(unsafe.Pointer(&size)))
	if errno != 0 {
		return 0, errno
	}
	return size, nil
}

// Package constants This file contains all the constants that can be reused across the project
package constants

import "time"

const DirPerm = 0755

const (
	AppName    = "qcowmount"
	ConfigFile = "/etc/qcowmount/config.yaml"
	EnvPrefix  = "QCOWMOUNT"

	// DefaultMountPoint is where the image is mounted when no directory is given
	DefaultMountPoint = "/mnt/qcow"

	NBDModule       = "nbd"
	NBDDevicePrefix = "/dev/nbd"
	// DefaultMaxPartitions is passed to the nbd module as max_part
	DefaultMaxPartitions = 16
	// DefaultPoolSize matches the nbds_max default of the nbd module
	DefaultPoolSize = 16
	// DefaultPartitionSuffix selects the first partition of the nbd device
	DefaultPartitionSuffix = "p1"

	DefaultSettleTimeout  = 10 * time.Second
	DefaultSettleInterval = 250 * time.Millisecond

	DefaultLockFile = "/run/qcowmount.lock"

	ModprobeCmd = "modprobe"
	LsmodCmd    = "lsmod"
	QemuNBDCmd  = "qemu-nbd"

	SizeSourceSysfs = "sysfs"
	SizeSourceIoctl = "ioctl"
)

package types

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotPrivileged = errors.New("root privileges are required")

	ErrNotFound           = errors.New("image file does not exist")
	ErrIsDirectory        = errors.New("image path is a directory")
	ErrUnreadable         = errors.New("image file cannot be read")
	ErrUnrecognizedFormat = errors.New("image file format not recognized")

	ErrDriverLoadFailed   = errors.New("failed to load the nbd driver")
	ErrDriverNotConfirmed = errors.New("nbd driver not listed as loaded")

	ErrPoolExhausted     = errors.New("no free nbd device")
	ErrDeviceQueryFailed = errors.New("could not read the nbd device size")
	ErrLockFailed        = errors.New("could not lock the nbd device pool")

	ErrConnectFailed = errors.New("failed to connect the image to the nbd device")

	ErrAlreadyMounted        = errors.New("mount point already in use")
	ErrDirectoryCreateFailed = errors.New("failed to create the mount point")
	ErrPartitionNotVisible   = errors.New("partition device did not appear")
	ErrMountFailed           = errors.New("failed to mount the partition")
)

const (
	CategoryPrivilege  = "PrivilegeError"
	CategoryValidation = "ValidationError"
	CategoryDriver     = "DriverError"
	CategoryAllocation = "AllocationError"
	CategoryBind       = "BindError"
	CategoryMount      = "MountError"
	CategoryUnknown    = "Error"
)

var categories = map[string][]error{
	CategoryPrivilege:  {ErrNotPrivileged},
	CategoryValidation: {ErrNotFound, ErrIsDirectory, ErrUnreadable, ErrUnrecognizedFormat},
	CategoryDriver:     {ErrDriverLoadFailed, ErrDriverNotConfirmed},
	CategoryAllocation: {ErrPoolExhausted, ErrDeviceQueryFailed, ErrLockFailed},
	CategoryBind:       {ErrConnectFailed},
	CategoryMount:      {ErrAlreadyMounted, ErrDirectoryCreateFailed, ErrPartitionNotVisible, ErrMountFailed},
}

// Category returns the error family a failure belongs to
func Category(err error) string {
	for name, kinds := range categories {
		for _, kind := range kinds {
			if errors.Is(err, kind) {
				return name
			}
		}
	}
	return CategoryUnknown
}

// AlreadyMountedError carries what currently occupies the mount point
type AlreadyMountedError struct {
	Dir    string
	Source string
}

func (e *AlreadyMountedError) Error() string {
	return fmt.Sprintf("%s is already mounted on %s, please unmount it first", e.Source, e.Dir)
}

func (e *AlreadyMountedError) Unwrap() error {
	return ErrAlreadyMounted
}

// StageError is returned by the orchestrator and names the stage that failed
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %s", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// OneLine collapses command output so it fits in a single-line error message
func OneLine(out []byte) string {
	return strings.Join(strings.Fields(string(out)), " ")
}

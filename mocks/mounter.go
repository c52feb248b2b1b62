package mocks

import (
	"errors"

	mountUtils "k8s.io/mount-utils"
)

// ErrorMounter is a FakeMounter whose Mount and List calls can be made to fail
type ErrorMounter struct {
	*mountUtils.FakeMounter
	MountErr error
	ListErr  error
}

func NewErrorMounter(mps []mountUtils.MountPoint) *ErrorMounter {
	return &ErrorMounter{FakeMounter: mountUtils.NewFakeMounter(mps)}
}

func (e *ErrorMounter) Mount(source string, target string, fstype string, options []string) error {
	if e.MountErr != nil {
		return e.MountErr
	}
	return e.FakeMounter.Mount(source, target, fstype, options)
}

func (e *ErrorMounter) List() ([]mountUtils.MountPoint, error) {
	if e.ListErr != nil {
		return nil, e.ListErr
	}
	return e.FakeMounter.List()
}

// ErrMountRefused mimics mount rejecting the partition
var ErrMountRefused = errors.New("mount: wrong fs type, bad option, bad superblock")

package types

import (
	"io/fs"
	"os"
)

// FS is the subset of filesystem methods the mounter needs. It is satisfied by
// vfs.OSFS and by the vfst test filesystems.
type FS interface {
	Open(name string) (fs.File, error)
	Mkdir(name string, perm os.FileMode) error
	Stat(name string) (os.FileInfo, error)
	ReadFile(filename string) ([]byte, error)
}

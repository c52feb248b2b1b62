// Package image checks that a file is a disk image the mounter can attach.
package image

import (
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/kairos-io/qcowmount/types"
)

const signatureSize = 4

type Validator struct {
	fs     types.FS
	logger types.Logger
}

func NewValidator(f types.FS, logger types.Logger) *Validator {
	return &Validator{fs: f, logger: logger}
}

// Validate sniffs the first bytes of path and returns the image when they match a known format.
// It never modifies the file.
func (v *Validator) Validate(path string) (types.ImageFile, error) {
	img := types.ImageFile{Path: path}

	info, err := v.fs.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return img, fmt.Errorf("%w: %s", types.ErrNotFound, path)
	}
	if err != nil {
		return img, fmt.Errorf("%w: %s: %v", types.ErrUnreadable, path, err)
	}
	if info.IsDir() {
		return img, fmt.Errorf("%w: %s, mounting a whole directory won't work", types.ErrIsDirectory, path)
	}
	if !info.Mode().IsRegular() {
		return img, fmt.Errorf("%w: %s is not a regular file", types.ErrUnreadable, path)
	}

	f, err := v.fs.Open(path)
	if err != nil {
		return img, fmt.Errorf("%w: %s: %v", types.ErrUnreadable, path, err)
	}
	defer f.Close()

	header := make([]byte, signatureSize)
	n, err := io.ReadFull(f, header)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return img, fmt.Errorf("%w: %s: %v", types.ErrUnreadable, path, err)
	}

	format, ok := types.LookupFormat(header[:n])
	if !ok {
		v.logger.Logger.Debug().Str("image", path).Hex("header", header[:n]).Msg("Unknown image signature")
		return img, fmt.Errorf("%w: %s doesn't look like a QCOW2 image file", types.ErrUnrecognizedFormat, path)
	}

	copy(img.Signature[:], header)
	img.Format = format.Name
	v.logger.Logger.Debug().Str("image", path).Str("format", format.Name).Msg("Image appears to be a compatible format")
	return img, nil
}

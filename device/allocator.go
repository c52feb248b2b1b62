// Package device finds a free nbd slot and connects an image to it.
package device

import (
	"fmt"

	"github.com/kairos-io/qcowmount/types"
)

type Allocator struct {
	prefix string
	query  DeviceQuery
	logger types.Logger
}

func NewAllocator(prefix string, query DeviceQuery, logger types.Logger) *Allocator {
	return &Allocator{prefix: prefix, query: query, logger: logger}
}

// Allocate returns the lowest indexed slot reporting a zero size.
// Nothing is reserved: the slot may be taken by someone else before it is bound.
// A slot whose size cannot be read stops the scan, it may well be the one in use.
func (a *Allocator) Allocate(poolSize int) (types.DeviceSlot, error) {
	for i := 0; i < poolSize; i++ {
		slot := types.NewDeviceSlot(a.prefix, i)
		size, exists, err := a.query.Size(slot)
		if err != nil {
			return types.DeviceSlot{}, fmt.Errorf("%w: %s: %v", types.ErrDeviceQueryFailed, slot.Path, err)
		}
		if !exists {
			a.logger.Logger.Debug().Str("device", slot.Path).Msg("Device does not exist, skipping")
			continue
		}
		slot.SizeBytes = size
		if slot.Free() {
			a.logger.Logger.Debug().Str("device", slot.Path).Msg("Device is empty, using it")
			return slot, nil
		}
		a.logger.Logger.Info().Str("device", slot.Path).Uint64("size", size).Msg("Device is already mapped to a file, trying the next one")
	}

	return types.DeviceSlot{}, fmt.Errorf("%w among %s0-%d", types.ErrPoolExhausted, a.prefix, poolSize-1)
}

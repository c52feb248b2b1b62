package mocks

import (
	"github.com/kairos-io/qcowmount/types"
)

// FakeQuery reports scripted sizes per slot index. Indexes not in Sizes do not exist.
type FakeQuery struct {
	Sizes   map[int]uint64
	Errors  map[int]error
	Queried []int
}

func NewFakeQuery(sizes map[int]uint64) *FakeQuery {
	return &FakeQuery{Sizes: sizes, Errors: map[int]error{}}
}

func (q *FakeQuery) Size(slot types.DeviceSlot) (uint64, bool, error) {
	q.Queried = append(q.Queried, slot.Index)
	if err, ok := q.Errors[slot.Index]; ok {
		return 0, true, err
	}
	size, ok := q.Sizes[slot.Index]
	return size, ok, nil
}

// FakeLock counts lock usage
type FakeLock struct {
	Locked   bool
	Acquired int
	Err      error
}

func (l *FakeLock) Lock() error {
	if l.Err != nil {
		return l.Err
	}
	l.Locked = true
	l.Acquired++
	return nil
}

func (l *FakeLock) Unlock() error {
	l.Locked = false
	return nil
}

// FakeLoader stands in for the nbd module loader
type FakeLoader struct {
	MaxPartitions int
	Calls         int
	Err           error
}

func (l *FakeLoader) EnsureLoaded(maxPartitions int) error {
	l.Calls++
	l.MaxPartitions = maxPartitions
	return l.Err
}

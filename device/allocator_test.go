package device_test

import (
	"bytes"
	"errors"

	"github.com/kairos-io/qcowmount/device"
	"github.com/kairos-io/qcowmount/mocks"
	"github.com/kairos-io/qcowmount/types"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Allocator", Label("allocator"), func() {
	var buf bytes.Buffer
	var logger types.Logger

	BeforeEach(func() {
		buf = bytes.Buffer{}
		logger = types.NewBufferLogger(&buf)
	})
	AfterEach(func() {
		if CurrentSpecReport().Failed() {
			_, _ = GinkgoWriter.Write(buf.Bytes())
		}
	})

	It("returns slot 0 when it is free", func() {
		query := mocks.NewFakeQuery(map[int]uint64{0: 0, 1: 0})
		slot, err := device.NewAllocator("/dev/nbd", query, logger).Allocate(16)
		Expect(err).ToNot(HaveOccurred())
		Expect(slot.Index).To(Equal(0))
		Expect(slot.Path).To(Equal("/dev/nbd0"))
		Expect(query.Queried).To(Equal([]int{0}))
	})
	It("returns the lowest indexed free slot", func() {
		query := mocks.NewFakeQuery(map[int]uint64{0: 1024, 1: 4096, 2: 512, 3: 0, 4: 0})
		slot, err := device.NewAllocator("/dev/nbd", query, logger).Allocate(16)
		Expect(err).ToNot(HaveOccurred())
		Expect(slot.Index).To(Equal(3))
		Expect(slot.Path).To(Equal("/dev/nbd3"))
		Expect(slot.SizeBytes).To(BeZero())
		Expect(query.Queried).To(Equal([]int{0, 1, 2, 3}))
	})
	It("fails with PoolExhausted when every slot is in use", func() {
		query := mocks.NewFakeQuery(map[int]uint64{0: 1, 1: 1, 2: 1, 3: 1})
		_, err := device.NewAllocator("/dev/nbd", query, logger).Allocate(4)
		Expect(err).To(MatchError(types.ErrPoolExhausted))
		Expect(query.Queried).To(Equal([]int{0, 1, 2, 3}))
	})
	It("never looks past the pool size", func() {
		query := mocks.NewFakeQuery(map[int]uint64{0: 1, 1: 1, 2: 0})
		_, err := device.NewAllocator("/dev/nbd", query, logger).Allocate(2)
		Expect(err).To(MatchError(types.ErrPoolExhausted))
		Expect(query.Queried).To(Equal([]int{0, 1}))
	})
	It("skips slots without a device", func() {
		query := mocks.NewFakeQuery(map[int]uint64{1: 0})
		slot, err := device.NewAllocator("/dev/nbd", query, logger).Allocate(4)
		Expect(err).ToNot(HaveOccurred())
		Expect(slot.Index).To(Equal(1))
	})
	It("stops at a slot whose size cannot be read instead of handing out a later one", func() {
		query := mocks.NewFakeQuery(map[int]uint64{0: 0, 1: 0})
		query.Errors[0] = errors.New("permission denied")
		slot, err := device.NewAllocator("/dev/nbd", query, logger).Allocate(4)
		Expect(err).To(MatchError(types.ErrDeviceQueryFailed))
		Expect(err).ToNot(MatchError(types.ErrPoolExhausted))
		Expect(types.Category(err)).To(Equal(types.CategoryAllocation))
		Expect(err.Error()).To(ContainSubstring("/dev/nbd0: permission denied"))
		Expect(slot).To(Equal(types.DeviceSlot{}))
		Expect(query.Queried).To(Equal([]int{0}))
	})
})

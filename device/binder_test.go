package device_test

import (
	"bytes"

	"github.com/kairos-io/qcowmount/device"
	"github.com/kairos-io/qcowmount/mocks"
	"github.com/kairos-io/qcowmount/types"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Binder", Label("binder"), func() {
	var runner *mocks.FakeRunner
	var buf bytes.Buffer
	var slot types.DeviceSlot
	var img types.ImageFile

	BeforeEach(func() {
		buf = bytes.Buffer{}
		runner = mocks.NewFakeRunner()
		slot = types.NewDeviceSlot("/dev/nbd", 2)
		img = types.ImageFile{Path: "/images/disk.qcow2", Format: "qcow2"}
	})

	It("connects the image to the slot with qemu-nbd", func() {
		bound, err := device.NewBinder(runner, types.NewBufferLogger(&buf)).Bind(slot, img)
		Expect(err).ToNot(HaveOccurred())
		Expect(bound.Path()).To(Equal("/dev/nbd2"))
		Expect(bound.Image).To(Equal(img))
		Expect(runner.CmdsMatch([][]string{
			{"qemu-nbd", "--connect=/dev/nbd2", "--format=qcow2", "/images/disk.qcow2"},
		})).To(Succeed())
	})
	It("adds extra arguments before the image", func() {
		_, err := device.NewBinder(runner, types.NewBufferLogger(&buf), "--read-only", "--cache=none").Bind(slot, img)
		Expect(err).ToNot(HaveOccurred())
		Expect(runner.Commands()).To(Equal([]string{
			"qemu-nbd --connect=/dev/nbd2 --format=qcow2 --read-only --cache=none /images/disk.qcow2",
		}))
	})
	It("fails with ConnectFailed and includes the tool output", func() {
		runner.SetFailure("qemu-nbd", "qemu-nbd: Failed to open /dev/nbd2: Device or resource busy\n")
		_, err := device.NewBinder(runner, types.NewBufferLogger(&buf)).Bind(slot, img)
		Expect(err).To(MatchError(types.ErrConnectFailed))
		Expect(err.Error()).To(ContainSubstring("Device or resource busy"))
	})
	It("keeps multi-line tool output on a single error line", func() {
		runner.SetFailure("qemu-nbd", "qemu-nbd: Failed to blk_new_open 'disk.qcow2'\nqemu-nbd: Could not open image:\n  Permission denied\n")
		_, err := device.NewBinder(runner, types.NewBufferLogger(&buf)).Bind(slot, img)
		Expect(err).To(MatchError(types.ErrConnectFailed))
		Expect(err.Error()).ToNot(ContainSubstring("\n"))
		Expect(err.Error()).To(ContainSubstring("Could not open image: Permission denied"))
		Expect(buf.String()).To(ContainSubstring("qemu-nbd failed"))
	})
	It("builds the disconnect command", func() {
		Expect(device.DisconnectCommand(types.BoundDevice{Slot: slot})).To(Equal("qemu-nbd -d /dev/nbd2"))
	})
})

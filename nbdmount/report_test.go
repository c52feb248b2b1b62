package nbdmount_test

import (
	"bytes"

	"github.com/kairos-io/qcowmount/nbdmount"
	"github.com/kairos-io/qcowmount/types"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Report", Label("report"), func() {
	var session types.Session

	BeforeEach(func() {
		session = types.Session{
			Image:     types.ImageFile{Path: "disk.qcow2"},
			Device:    types.BoundDevice{Slot: types.NewDeviceSlot("/dev/nbd", 0)},
			Target:    types.MountTarget{Dir: "/mnt/qcow"},
			Partition: "/dev/nbd0p1",
		}
	})

	It("lists the teardown commands in order", func() {
		Expect(nbdmount.TeardownCommands(session)).To(Equal([]string{
			"sudo umount /mnt/qcow && sudo qemu-nbd -d /dev/nbd0",
			"sudo rmmod nbd",
		}))
	})
	It("prints the result and how to undo it", func() {
		var out, logs bytes.Buffer
		nbdmount.Report(&out, session, types.NewBufferLogger(&logs))
		Expect(out.String()).To(ContainSubstring("disk.qcow2 successfully mounted at /mnt/qcow"))
		Expect(out.String()).To(ContainSubstring("sudo umount /mnt/qcow && sudo qemu-nbd -d /dev/nbd0"))
		Expect(out.String()).To(ContainSubstring("sudo rmmod nbd"))
		Expect(logs.String()).To(ContainSubstring("Mount complete"))
	})
})
